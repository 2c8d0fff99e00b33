package main

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/openmined/assetsync/internal/assets"
	"github.com/openmined/assetsync/internal/client/workspace"
	"github.com/spf13/cobra"
)

func newWatchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch [dir]",
		Short: "Sync a directory and keep syncing it on every change",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runWatch,
	}
	addSyncFlags(cmd.Flags())
	cmd.Flags().Duration("quiet-period", workspace.DefaultQuietPeriod, "wait for changes to settle before syncing")
	return cmd
}

func runWatch(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd, args)
	if err != nil {
		return err
	}
	cmd.SilenceUsage = true

	if dryRun, _ := cmd.Flags().GetBool("dry-run"); dryRun {
		return errors.New("watch does not support --dry-run")
	}

	closeLog, err := setupLogging(cmd, cfg)
	if err != nil {
		return err
	}
	defer closeLog()

	runner, err := newSyncRunner(cmd, cfg)
	if err != nil {
		return err
	}
	defer runner.Close()

	if err := runner.ws.Lock(); err != nil {
		return err
	}
	defer runner.ws.Unlock()

	watcher := runner.ws.Watcher()
	if quiet, _ := cmd.Flags().GetDuration("quiet-period"); quiet > 0 {
		watcher.SetQuietPeriod(quiet)
	}
	if err := watcher.Start(cmd.Context()); err != nil {
		return err
	}
	defer watcher.Stop()

	defer slog.Info("Bye!")
	return watchLoop(cmd.Context(), runner.Run, watcher.Changes())
}

// watchLoop syncs once, then again after every change set, until ctx is done.
// A failed run is logged and retried on the next change.
func watchLoop(ctx context.Context, sync func(context.Context) (*assets.Result, error), changes <-chan []string) error {
	runOnce := func(reason string) {
		tStart := time.Now()
		if _, err := sync(ctx); err != nil {
			if ctx.Err() != nil {
				return
			}
			slog.Error("sync failed", "trigger", reason, "error", err)
			return
		}
		slog.Debug("sync finished", "trigger", reason, "took", time.Since(tStart).Round(time.Millisecond))
	}

	runOnce("startup")
	for {
		select {
		case <-ctx.Done():
			return nil
		case paths, ok := <-changes:
			if !ok {
				return nil
			}
			slog.Info("changes detected", "paths", len(paths))
			runOnce("change")
		}
	}
}
