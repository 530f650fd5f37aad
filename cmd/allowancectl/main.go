// Command allowancectl runs ledger maintenance against the configured
// database without going through the HTTP server or the job queue.
//
//	allowancectl recompute --workspace ws-1 --member m-1
//	allowancectl recompute --workspace ws-1
//	allowancectl rollover            # every workspace
//	allowancectl rollover --workspace ws-1
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/absentify/allowance-engine/allowance"
	"github.com/absentify/allowance-engine/config"
	"github.com/absentify/allowance-engine/events"
	"github.com/absentify/allowance-engine/generic"
	"github.com/absentify/allowance-engine/logger"
	"github.com/absentify/allowance-engine/store/sqlstore"
	"github.com/absentify/allowance-engine/workspace"
)

type app struct {
	log        *logger.Logger
	store      *sqlstore.Store
	ledger     *allowance.Service
	workspaces *workspace.Service
}

func open(driver, dsn string) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if driver != "" {
		cfg.Database.Driver = driver
	}
	if dsn != "" {
		cfg.Database.DSN = dsn
	}
	log := logger.New("allowancectl", cfg.Server.Environment).SetLevel(cfg.Log.Level)

	store, err := sqlstore.New(cfg.Database, log)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	ledger := allowance.NewService(store.Allowances(), log)
	return &app{
		log:        log,
		store:      store,
		ledger:     ledger,
		workspaces: workspace.NewService(store.Workspaces(), ledger, events.Nop{}, log),
	}, nil
}

func printBatch(cmd *cobra.Command, ws generic.WorkspaceID, res allowance.BatchResult) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s: %d succeeded, %d failed\n", ws, len(res.Succeeded), len(res.Failed))
	for id, err := range res.Failed {
		fmt.Fprintf(out, "  %s: %v\n", id, err)
	}
}

func main() {
	var driver, dsn string
	var a *app

	root := &cobra.Command{
		Use:           "allowancectl",
		Short:         "Recompute and roll over member allowances",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			a, err = open(driver, dsn)
			return err
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if a != nil {
				return a.store.Close()
			}
			return nil
		},
	}
	root.PersistentFlags().StringVar(&driver, "driver", "", "Database driver, sqlite3 or postgres (default from config)")
	root.PersistentFlags().StringVar(&dsn, "dsn", "", "Database DSN (default from config)")

	var workspaceID, memberID string

	recompute := &cobra.Command{
		Use:   "recompute",
		Short: "Recompute one member or every member of a workspace",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			ws := generic.WorkspaceID(workspaceID)
			if memberID != "" {
				res, err := a.ledger.Recompute(ctx, ws, generic.MemberID(memberID))
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s: %d rows updated, %d requests refreshed\n",
					res.MemberID, res.UpdatedRows, res.RefreshedRequests)
				return nil
			}
			res, err := a.ledger.RecomputeWorkspace(ctx, ws)
			if err != nil {
				return err
			}
			printBatch(cmd, ws, res)
			return res.Err()
		},
	}
	recompute.Flags().StringVar(&workspaceID, "workspace", "", "Workspace id")
	recompute.Flags().StringVar(&memberID, "member", "", "Member id (default: every member)")
	_ = recompute.MarkFlagRequired("workspace")

	var rolloverWorkspace string
	rollover := &cobra.Command{
		Use:   "rollover",
		Short: "Provision the current and next fiscal year",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			ids := []generic.WorkspaceID{generic.WorkspaceID(rolloverWorkspace)}
			if rolloverWorkspace == "" {
				all, err := a.workspaces.ListWorkspaces(ctx)
				if err != nil {
					return err
				}
				ids = ids[:0]
				for _, ws := range all {
					ids = append(ids, ws.ID)
				}
			}

			var failed int
			for _, ws := range ids {
				res, err := a.ledger.Rollover(ctx, ws)
				if err != nil {
					a.log.Error().Err(err).Str("workspace_id", string(ws)).Msg("rollover failed")
					failed++
					continue
				}
				printBatch(cmd, ws, res)
				if res.Err() != nil {
					failed++
				}
			}
			if failed > 0 {
				return fmt.Errorf("rollover failed for %d of %d workspaces", failed, len(ids))
			}
			return nil
		},
	}
	rollover.Flags().StringVar(&rolloverWorkspace, "workspace", "", "Workspace id (default: every workspace)")

	root.AddCommand(recompute, rollover)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
