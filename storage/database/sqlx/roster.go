package sqlxrepos

import (
	"context"

	"github.com/basantashrestha/seepalaya/core"
	"github.com/basantashrestha/seepalaya/core/account"
	"github.com/basantashrestha/seepalaya/core/classroom"
	"github.com/basantashrestha/seepalaya/core/delegation"
)

// rosterWriter lets the provisioning flow wire delegation edges and
// classroom memberships in the same transaction as the account rows.
type rosterWriter struct {
	delegs delegation.Repository
	rooms  classroom.Repository
}

var _ account.RosterWriter = (*rosterWriter)(nil)

func NewRosterWriter(delegs delegation.Repository, rooms classroom.Repository) account.RosterWriter {
	return &rosterWriter{delegs: delegs, rooms: rooms}
}

func (w *rosterWriter) CreateEdge(ctx context.Context, edge account.DelegationEdge, exec ...core.DBExecutor) error {
	return w.delegs.CreateEdge(ctx, edge, exec...)
}

func (w *rosterWriter) AddClassroomMember(ctx context.Context, classroomID, accountID string, exec ...core.DBExecutor) error {
	return w.rooms.AddMember(ctx, classroomID, accountID, exec...)
}
