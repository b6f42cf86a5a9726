package main

import (
	"context"
	"time"

	"github.com/basantashrestha/seepalaya/core"
	"github.com/basantashrestha/seepalaya/core/account"
)

// addAccount updates or creates an account, verified and with full roles when
// -admin is set.
func (cli *commandLine) addAccount(uname, email, pwd string, isAdmin bool) error {
	ctx := context.Background()
	uname = core.CleanString(uname, true /* lower */)
	email = core.CleanString(email, true /* lower */)

	now := time.Now().UTC()
	acct, err := cli.acctRepo.GetAccount(ctx, account.GetFilter{UsernameOrEmail: uname})
	if err != nil {
		if err != account.ErrNotFound {
			return err
		}
		acct = account.Account{
			Username:  uname,
			Email:     email,
			CreatedAt: now,
		}
	}
	if isAdmin {
		acct.Roles = account.AllRoles
	}
	acct.IsVerified = true
	acct.UpdatedAt = now
	if err := acct.SetPassword(pwd); err != nil {
		return err
	}
	if acct.ID == "" {
		_, err = cli.acctRepo.CreateAccount(ctx, acct)
	} else {
		_, err = cli.acctRepo.UpdateAccount(ctx, acct)
	}
	return err
}
