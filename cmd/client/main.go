package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/openmined/assetsync/internal/client/config"
	"github.com/openmined/assetsync/internal/utils"
	"github.com/openmined/assetsync/internal/version"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	envPrefix      = "ASSETSYNC"
	configFileName = "config"
)

var (
	rootCmd        = newRootCmd()
	envKeyReplacer = strings.NewReplacer(".", "_", "-", "_")
)

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "assetsync [dir]",
		Short: "Sync a directory of static assets to an asset store",
		Long: "assetsync makes the asset store mirror a local directory.\n" +
			"Only the operations needed to converge are sent, grouped into atomic batches.",
		Version:       version.Detailed(),
		Args:          cobra.MaximumNArgs(1),
		SilenceErrors: true,
		RunE:          runSync,
	}

	cmd.PersistentFlags().SortFlags = false
	cmd.PersistentFlags().StringP("config", "c", config.DefaultConfigPath, "config file")
	cmd.PersistentFlags().StringP("server", "s", config.DefaultServerURL, "asset store url")
	cmd.PersistentFlags().String("log-file", "", "also write logs to this file")
	cmd.PersistentFlags().BoolP("verbose", "v", false, "enable debug logging")
	cmd.PersistentFlags().Bool("dump-http", false, "dump http requests and responses")
	_ = cmd.PersistentFlags().MarkHidden("dump-http")
	addSyncFlags(cmd.Flags())

	cmd.AddCommand(newSyncCmd())
	cmd.AddCommand(newWatchCmd())
	cmd.AddCommand(newVersionCmd())
	return cmd
}

// addSyncFlags registers the flags shared by the commands that run a sync.
func addSyncFlags(flags *pflag.FlagSet) {
	flags.SortFlags = false
	flags.BoolP("yes", "y", false, "apply deletions without asking")
	flags.Bool("dry-run", false, "print the planned batches without changing the store")
	flags.Bool("async", false, "commit through propose and poll")
	flags.Int("max-inline-size", 0, "largest encoding sent inline with a commit (bytes)")
	flags.Int("max-chunk-size", 0, "size of an uploaded chunk (bytes)")
	flags.Int("max-batch-operations", 0, "soft limit of operations per batch")
	flags.Int("max-batch-bytes", 0, "soft limit of content bytes per batch")
	flags.Int("chunk-concurrency", 0, "parallel chunk uploads per batch")
	flags.Int("chunk-retries", 0, "retries of a failed chunk upload")
	flags.Duration("call-timeout", 0, "timeout of a single store call")
	flags.Duration("poll-timeout", 0, "how long to wait for the outcome of an async commit")
	flags.Int("http-retries", 0, "transport retries of an idempotent request")
}

// flagKeys maps command line flags to config keys.
var flagKeys = map[string]string{
	"server":               "server_url",
	"log-file":             "log_file",
	"async":                "sync.async",
	"max-inline-size":      "sync.max_inline_size",
	"max-chunk-size":       "sync.max_chunk_size",
	"max-batch-operations": "sync.max_batch_operations",
	"max-batch-bytes":      "sync.max_batch_bytes",
	"chunk-concurrency":    "sync.chunk_concurrency",
	"chunk-retries":        "sync.chunk_retries",
	"call-timeout":         "sync.call_timeout",
	"poll-timeout":         "sync.poll_timeout",
	"http-retries":         "sync.http_retries",
}

// loadConfig merges the config file, the environment and the flags of cmd,
// in increasing order of precedence.
func loadConfig(cmd *cobra.Command, args []string) (*config.Config, error) {
	v := viper.New()

	if cmd.Flag("config").Changed {
		configFilePath, _ := cmd.Flags().GetString("config")
		v.SetConfigFile(configFilePath)
	} else {
		v.AddConfigPath(filepath.Dir(config.DefaultConfigPath))
		v.SetConfigName(configFileName)
		v.SetConfigType("json")
	}

	if err := v.ReadInConfig(); err != nil {
		enoent := errors.Is(err, os.ErrNotExist)
		_, ok := err.(viper.ConfigFileNotFoundError)
		if !enoent && !ok {
			return nil, fmt.Errorf("config read '%s': %w", v.ConfigFileUsed(), err)
		}
	}

	for flag, key := range flagKeys {
		if f := cmd.Flags().Lookup(flag); f != nil {
			if err := v.BindPFlag(key, f); err != nil {
				return nil, err
			}
		}
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(envKeyReplacer)
	v.AutomaticEnv()
	// AutomaticEnv only sees keys viper already knows about
	for _, key := range []string{"dir", "sync.max_inline_size", "sync.max_chunk_size", "sync.max_batch_operations", "sync.max_batch_bytes"} {
		_ = v.BindEnv(key)
	}

	cfg := &config.Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("config decode: %w", err)
	}
	if len(args) > 0 {
		cfg.Dir = args[0]
	}
	cfg.Path = v.ConfigFileUsed()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// setupLogging installs the logger for a command run. The caller closes the result.
func setupLogging(cmd *cobra.Command, cfg *config.Config) (func(), error) {
	level := slog.LevelInfo
	if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
		level = slog.LevelDebug
	}

	closer, err := utils.SetupLogging(os.Stdout, utils.LogOptions{
		Level:   level,
		LogFile: cfg.LogFile,
	})
	if err != nil {
		return nil, err
	}
	return func() { _ = closer.Close() }, nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, red.Render("Error:"), err)
		os.Exit(1)
	}
}
