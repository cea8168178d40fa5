// Command accounts manages the gateway's account pool from a terminal:
// add (interactive OAuth), list, remove, and a status snapshot.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/arkline-dev/antigravity-gateway/internal/accountmanager"
	"github.com/arkline-dev/antigravity-gateway/internal/accountstore"
	"github.com/arkline-dev/antigravity-gateway/internal/config"
	"github.com/arkline-dev/antigravity-gateway/internal/ratelimit"
	"github.com/arkline-dev/antigravity-gateway/internal/utils"
)

const addAccountTimeout = 5 * time.Minute

func main() {
	args := os.Args[1:]
	command := "list"
	if len(args) > 0 {
		command = args[0]
	}

	store := accountstore.New(config.AccountsFilePath())
	ledger := ratelimit.NewLedger(nil)
	manager := accountmanager.New(store, ledger, config.GetConfig())

	var err error
	switch command {
	case "add":
		err = runAdd(manager)
	case "list":
		err = runList(manager)
	case "remove":
		if len(args) < 2 {
			err = fmt.Errorf("usage: accounts remove <email>")
		} else {
			err = runRemove(manager, args[1])
		}
	case "status":
		err = runStatus(manager)
	default:
		err = fmt.Errorf("unknown command %q (expected add, list, remove, or status)", command)
	}

	if err != nil {
		utils.Error("%v", err)
		os.Exit(1)
	}
}

func runAdd(manager *accountmanager.Manager) error {
	ctx, cancel := context.WithTimeout(context.Background(), addAccountTimeout)
	defer cancel()

	account, err := manager.AddAccount(ctx, addAccountTimeout)
	if err != nil {
		return fmt.Errorf("add account: %w", err)
	}
	utils.Success("added account %s", utils.MaskEmail(account.Email))
	return nil
}

func runList(manager *accountmanager.Manager) error {
	accounts := manager.ListAccounts()
	if len(accounts) == 0 {
		fmt.Println("no accounts configured")
		return nil
	}
	for _, a := range accounts {
		state := "ok"
		if a.IsInvalid {
			state = "invalid: " + a.InvalidReason
		}
		fmt.Printf("%-40s project=%-20s %s\n", utils.MaskEmail(a.Email), a.ProjectID, state)
	}
	return nil
}

func runRemove(manager *accountmanager.Manager, email string) error {
	removed, err := manager.RemoveAccount(email)
	if err != nil {
		return fmt.Errorf("remove account: %w", err)
	}
	if !removed {
		return fmt.Errorf("no account found for %s", utils.MaskEmail(email))
	}
	utils.Success("removed account %s", utils.MaskEmail(email))
	return nil
}

func runStatus(manager *accountmanager.Manager) error {
	status := manager.Status()
	fmt.Printf("total=%d available=%d rate_limited=%d invalid=%d\n",
		status.Total, status.Available, status.RateLimited, status.Invalid)
	for _, a := range status.Accounts {
		fmt.Printf("  %-40s rate_limited=%-5v invalid=%v\n", utils.MaskEmail(a.Email), a.IsRateLimited, a.IsInvalid)
	}
	return nil
}
