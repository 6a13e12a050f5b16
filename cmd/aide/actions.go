package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sandevgo/aide/internal/config"
	"github.com/sandevgo/aide/internal/core"
	"github.com/sandevgo/aide/internal/providers/pim"
	"github.com/sandevgo/aide/internal/service/actions"
	"github.com/sandevgo/aide/internal/storage/sqlite"
)

var historyLimit int

var actionsCmd = &cobra.Command{
	Use:   "actions",
	Short: "Inspect proposed actions",
}

var actionsPendingCmd = &cobra.Command{
	Use:   "pending",
	Short: "List actions awaiting approval",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, flushLog := setupLogger(cmd.Context())
		defer flushLog()

		store, closeDB, err := openStore(ctx, false)
		if err != nil {
			return err
		}
		defer closeDB()

		pending, err := store.ListPending(ctx)
		if err != nil {
			return err
		}
		if len(pending) == 0 {
			fmt.Println("No pending actions.")
			return nil
		}
		for _, a := range pending {
			fmt.Println(actions.FormatForChat(a))
			fmt.Println()
		}
		return nil
	},
}

var actionsHistoryCmd = &cobra.Command{
	Use:   "history",
	Short: "List recent actions, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, flushLog := setupLogger(cmd.Context())
		defer flushLog()

		store, closeDB, err := openStore(ctx, false)
		if err != nil {
			return err
		}
		defer closeDB()

		history, err := store.History(ctx, historyLimit)
		if err != nil {
			return err
		}
		if len(history) == 0 {
			fmt.Println("No actions recorded.")
			return nil
		}
		for _, a := range history {
			fmt.Printf("%s  %-12s %-9s %s\n", a.CreatedAt.Format("2006-01-02 15:04"), a.Type, a.Status, summarize(a))
		}
		return nil
	},
}

var actionsApproveCmd = &cobra.Command{
	Use:   "approve <id>",
	Short: "Approve a pending action and execute it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return decideAction(cmd, args[0], true)
	},
}

var actionsRejectCmd = &cobra.Command{
	Use:   "reject <id>",
	Short: "Reject a pending action",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return decideAction(cmd, args[0], false)
	},
}

func decideAction(cmd *cobra.Command, id string, approve bool) error {
	ctx, flushLog := setupLogger(cmd.Context())
	defer flushLog()

	store, closeDB, err := openStore(ctx, approve)
	if err != nil {
		return err
	}
	defer closeDB()

	var action core.ProposedAction
	if approve {
		action, err = store.Approve(ctx, id)
	} else {
		action, err = store.Reject(ctx, id)
	}

	switch {
	case errors.Is(err, core.ErrNotFound):
		return fmt.Errorf("no action with id %s", id)
	case errors.Is(err, core.ErrNotPending):
		return fmt.Errorf("action %s was already decided", id)
	case err != nil:
		return err
	}

	switch action.Status {
	case core.StatusExecuted:
		fmt.Printf("Done: %s executed (%s).\n", action.Type, action.Result)
	case core.StatusFailed:
		fmt.Printf("Approved, but execution failed: %s\n", action.Error)
	case core.StatusRejected:
		fmt.Println("Rejected.")
	}
	return nil
}

func openStore(ctx context.Context, withExecutor bool) (*actions.Store, func() error, error) {
	cfg := config.NewAppConfig(ctx)
	db, err := sqlite.NewDB(ctx, cfg.GetDatabasePath())
	if err != nil {
		return nil, nil, err
	}

	// Only approval needs the executor wired; listing stays read-only
	exec := &actions.Executor{}
	if withExecutor {
		pimCfg := config.NewPIMConfig(ctx)
		client := pim.New(pimCfg.BaseURL, pimCfg.Token)
		exec = &actions.Executor{Tasks: client, Events: client, Notes: client, Mail: client}
	}

	return actions.NewStore(sqlite.NewActionsRepo(db), exec, nil), db.Close, nil
}

func summarize(a core.ProposedAction) string {
	if a.Status == core.StatusFailed && a.Error != "" {
		return a.ID + "  " + a.Error
	}
	return a.ID + "  " + a.Reason
}

func init() {
	actionsHistoryCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "number of actions to show")
	actionsCmd.AddCommand(actionsPendingCmd, actionsHistoryCmd, actionsApproveCmd, actionsRejectCmd)
	rootCmd.AddCommand(actionsCmd)
}
