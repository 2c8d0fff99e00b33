package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/mattn/go-isatty"
	"github.com/openmined/assetsync/internal/assets"
	"github.com/openmined/assetsync/internal/assetsdk"
	"github.com/openmined/assetsync/internal/client/config"
	"github.com/openmined/assetsync/internal/client/workspace"
	"github.com/spf13/cobra"
)

func newSyncCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sync [dir]",
		Short: "Sync a directory once and exit",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runSync,
	}
	addSyncFlags(cmd.Flags())
	return cmd
}

func runSync(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd, args)
	if err != nil {
		return err
	}
	cmd.SilenceUsage = true

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

	_, err = runner.Run(cmd.Context())
	return err
}

// syncRunner runs the uploader against one workspace. It is reused across
// the runs of the watch command.
type syncRunner struct {
	cfg    *config.Config
	ws     *workspace.Workspace
	sdk    *assetsdk.AssetSDK
	opts   assets.UploadOptions
	out    io.Writer
	dryRun bool
}

func newSyncRunner(cmd *cobra.Command, cfg *config.Config) (*syncRunner, error) {
	ws, err := workspace.NewWorkspace(cfg.Dir)
	if err != nil {
		return nil, err
	}

	retries := cfg.Sync.HTTPRetries
	if retries == 0 {
		retries = assetsdk.DefaultRetryCount
	}
	dump, _ := cmd.Flags().GetBool("dump-http")
	sdk, err := assetsdk.New(&assetsdk.Config{
		BaseURL:    cfg.ServerURL,
		RetryCount: retries,
		Debug:      dump,
	})
	if err != nil {
		return nil, err
	}

	yes, _ := cmd.Flags().GetBool("yes")
	dryRun, _ := cmd.Flags().GetBool("dry-run")

	opts := cfg.Sync.UploadOptions()
	opts.DryRun = dryRun
	opts.Progress = newProgressLogger().Handle
	opts.Consent = consentFunc(yes, stdinIsTerminal(cmd), cmd.InOrStdin(), cmd.OutOrStdout())

	return &syncRunner{
		cfg:    cfg,
		ws:     ws,
		sdk:    sdk,
		opts:   opts,
		out:    cmd.OutOrStdout(),
		dryRun: dryRun,
	}, nil
}

// Run syncs the current content of the workspace. The caller holds the workspace lock.
func (r *syncRunner) Run(ctx context.Context) (*assets.Result, error) {
	files, err := r.ws.Files()
	if err != nil {
		return nil, fmt.Errorf("list files: %w", err)
	}
	rules, err := r.ws.Rules()
	if err != nil {
		return nil, err
	}

	slog.Info("sync start", "dir", r.ws.Root, "server", r.sdk.BaseURL(), "files", len(files), "rules", len(rules))

	res, err := assets.NewUploader(r.ws.Fs(), r.sdk, r.opts).Sync(ctx, files, rules)
	if err != nil {
		return res, explainSyncError(err)
	}

	if r.dryRun {
		printPlan(r.out, res)
		return res, nil
	}

	if res.Operations == 0 {
		slog.Info("sync done, store is up to date", "assets", res.Assets, "took", res.Duration.Round(time.Millisecond))
		return res, nil
	}

	stats := r.sdk.Stats()
	slog.Info("sync done",
		"assets", res.Assets,
		"operations", res.Operations,
		"batches", res.Batches,
		"chunks", res.Chunks,
		"content", humanize.Bytes(uint64(res.Bytes)),
		"sent", humanize.Bytes(uint64(stats.BytesSentTotal)),
		"requests", stats.Requests,
		"took", res.Duration.Round(time.Millisecond),
	)
	return res, nil
}

func (r *syncRunner) Close() {
	r.sdk.Close()
}

// explainSyncError adds a hint for the failures a user can act on.
func explainSyncError(err error) error {
	var stageErr *assets.Error
	if !errors.As(err, &stageErr) {
		return err
	}

	switch {
	case errors.Is(err, assets.ErrConsentDeclined):
		return fmt.Errorf("%w (nothing was changed, rerun with --yes to apply deletions)", err)
	case stageErr.NothingChanged():
		return fmt.Errorf("%w (nothing was changed)", err)
	case len(stageErr.Committed) > 0:
		return fmt.Errorf("%w (batches %v were applied, rerun to converge)", err, stageErr.Committed)
	}
	return err
}

func printPlan(w io.Writer, res *assets.Result) {
	if len(res.Plan) == 0 {
		fmt.Fprintln(w, green.Render("Nothing to do, the store is up to date."))
		return
	}

	fmt.Fprintf(w, "%s %d operation(s) in %d batch(es)\n", cyan.Render("Plan:"), res.Operations, len(res.Plan))
	for _, b := range res.Plan {
		fmt.Fprintf(w, "%s %d: %d operation(s), %s, %d chunk(s)\n",
			cyan.Render("batch"), b.Index, len(b.Operations), humanize.Bytes(uint64(b.Bytes)), b.ChunkCount())
		for _, op := range b.Operations {
			line := fmt.Sprintf("  %v", op)
			switch op.(type) {
			case *assets.DeleteAsset, *assets.UnsetAssetContent:
				line = red.Render(line)
			case *assets.CreateAsset:
				line = green.Render(line)
			default:
				line = lightGray.Render(line)
			}
			fmt.Fprintln(w, line)
		}
	}
}

func stdinIsTerminal(cmd *cobra.Command) bool {
	f, ok := cmd.InOrStdin().(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}
