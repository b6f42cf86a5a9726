package main

import (
	"context"
	"time"

	"github.com/basantashrestha/seepalaya/core/account"
)

func (cli *commandLine) resetPassword(uname, pwd string) error {
	ctx := context.Background()
	acct, err := cli.acctRepo.GetAccount(ctx, account.GetFilter{UsernameOrEmail: uname})
	if err != nil {
		return err
	}
	if err := acct.SetPassword(pwd); err != nil {
		return err
	}
	acct.UpdatedAt = time.Now().UTC()
	_, err = cli.acctRepo.UpdateAccount(ctx, acct)
	return err
}
