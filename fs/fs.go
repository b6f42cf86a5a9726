// Package appfs exposes the project's embedded static assets:
// goose migrations and email templates.
package appfs

import "embed"

//go:embed migrations all:assets
var FS embed.FS
