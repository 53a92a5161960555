package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"

	sqliteRepo "github.com/rustaceans-org/rustaceans-sync/internal/repository/sqlite"
	"github.com/rustaceans-org/rustaceans-sync/internal/server"
	"github.com/rustaceans-org/rustaceans-sync/internal/service"
)

// errUsersFailed makes the process exit non-zero when any user failed.
var errUsersFailed = errors.New("one or more users failed to sync")

var syncPR int

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Reconcile profile files into the directory",
}

var syncUserCmd = &cobra.Command{
	Use:   "user <username>...",
	Short: "Reconcile the named users in one batch",
	Long: `Reconcile the named users in one batch. With --pr the outcome of every user
is commented on that pull request, the same way a merged PR webhook does.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if syncPR < 0 {
			return fmt.Errorf("--pr must be positive")
		}
		reqs := make([]service.Request, 0, len(args))
		for _, username := range args {
			reqs = append(reqs, service.Request{Username: username, PRNumber: syncPR})
		}
		return runSync(cmd, func(ctx context.Context, rc *service.Reconciler) ([]service.Result, error) {
			return rc.ProcessMany(ctx, reqs)
		})
	},
}

var syncPRCmd = &cobra.Command{
	Use:   "pr <number>",
	Short: "Reconcile every profile file touched by a pull request",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		number, err := strconv.Atoi(args[0])
		if err != nil || number <= 0 {
			return fmt.Errorf("invalid pull request number %q", args[0])
		}
		return runSync(cmd, func(ctx context.Context, rc *service.Reconciler) ([]service.Result, error) {
			return rc.ProcessPullRequest(ctx, number)
		})
	},
}

var syncAllCmd = &cobra.Command{
	Use:   "all",
	Short: "Reconcile every profile file in the repository",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSync(cmd, func(ctx context.Context, rc *service.Reconciler) ([]service.Result, error) {
			return rc.ProcessAll(ctx)
		})
	},
}

func init() {
	syncUserCmd.Flags().IntVar(&syncPR, "pr", 0, "pull request to comment the outcome on")

	syncCmd.AddCommand(syncUserCmd, syncPRCmd, syncAllCmd)
	rootCmd.AddCommand(syncCmd)
}

// runSync opens the store, runs fn and prints one line per user. Ctrl-C
// stops the batch between users.
func runSync(cmd *cobra.Command, fn func(context.Context, *service.Reconciler) ([]service.Result, error)) error {
	cfg, logger, closer, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	defer closer.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := sqliteRepo.New(ctx, cfg.DBPath, logger)
	if err != nil {
		return err
	}
	defer db.Close()

	rc, err := server.NewReconciler(cfg, db, logger)
	if err != nil {
		return err
	}

	results, err := fn(ctx, rc)
	if failed := printResults(cmd.OutOrStdout(), results); failed > 0 && err == nil {
		err = errUsersFailed
	}
	return err
}

// printResults writes one line per user and returns the number that failed.
func printResults(w io.Writer, results []service.Result) int {
	failed := 0
	for _, res := range results {
		switch {
		case res.Failed():
			failed++
			fmt.Fprintf(w, "FAIL  %-39s  %s: %v\n", res.Username, res.Reason, res.Err)
		case res.StorageErr != nil:
			fmt.Fprintf(w, "WARN  %-39s  %s with statement errors: %v\n", res.Username, res.Outcome, res.StorageErr)
		default:
			fmt.Fprintf(w, "ok    %-39s  %s\n", res.Username, res.Outcome)
		}
		if res.NotifyErr != nil {
			fmt.Fprintf(w, "      comment on #%d failed: %v\n", res.PRNumber, res.NotifyErr)
		}
	}
	fmt.Fprintf(w, "%d/%d ok\n", len(results)-failed, len(results))
	return failed
}
