package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/openmined/assetsync/internal/server"
	"github.com/openmined/assetsync/internal/server/blob"
	"github.com/openmined/assetsync/internal/server/store"
	"github.com/openmined/assetsync/internal/utils"
	"github.com/openmined/assetsync/internal/version"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const envPrefix = "ASSETSYNC"

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "assetsync-server",
		Short:   "Reference asset store server",
		Version: version.Detailed(),
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return loadConfig(cmd)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := configFromViper()
			if err != nil {
				return err
			}
			cmd.SilenceUsage = true

			level := slog.LevelInfo
			if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
				level = slog.LevelDebug
			}
			closer, err := utils.SetupLogging(os.Stdout, utils.LogOptions{Level: level})
			if err != nil {
				return err
			}
			defer closer.Close()

			srv, err := server.New(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer slog.Info("Bye!")
			return srv.Start(cmd.Context())
		},
	}

	defaults := store.DefaultConfig()
	cmd.Flags().SortFlags = false
	cmd.Flags().StringP("config", "f", "", "Server config file (yaml or json)")
	cmd.Flags().StringP("bind", "b", server.DefaultAddr, "Address to bind the server")
	cmd.Flags().StringP("cert", "c", "", "Path to the certificate file")
	cmd.Flags().StringP("key", "k", "", "Path to the key file")
	cmd.Flags().Bool("hsts", false, "Redirect to https and send HSTS headers (requires tls)")
	cmd.Flags().String("rate-limit", server.DefaultRateLimit, "API rate limit per client ip, e.g. 100-S (empty disables)")
	cmd.Flags().StringP("data-dir", "d", ".data", "Directory for the asset index")
	cmd.Flags().String("blob-backend", blob.BackendFile, "Content backend: file, memory or s3")
	cmd.Flags().Duration("batch-ttl", defaults.BatchTTL, "How long an unused batch stays open")
	cmd.Flags().Int("max-chunk-size", defaults.MaxChunkSize, "Largest accepted chunk in bytes")
	cmd.Flags().Duration("prune-interval", 0, "Delete unreferenced content at this interval (0 disables)")
	cmd.Flags().BoolP("verbose", "v", false, "Log debug messages")
	return cmd
}

func main() {
	// a .env next to the binary is optional
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "Failed to load .env: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func loadConfig(cmd *cobra.Command) error {
	if path, _ := cmd.Flags().GetString("config"); path != "" {
		viper.SetConfigFile(path)
		if err := viper.ReadInConfig(); err != nil {
			return fmt.Errorf("config read '%s': %w", path, err)
		}
	}

	bindings := map[string]string{
		"http.addr":            "bind",
		"http.cert_file":       "cert",
		"http.key_file":        "key",
		"http.hsts":            "hsts",
		"http.rate_limit":      "rate-limit",
		"data_dir":             "data-dir",
		"blob.backend":         "blob-backend",
		"store.batch_ttl":      "batch-ttl",
		"store.max_chunk_size": "max-chunk-size",
		"store.prune_interval": "prune-interval",
	}
	for key, flag := range bindings {
		if err := viper.BindPFlag(key, cmd.Flags().Lookup(flag)); err != nil {
			return err
		}
	}

	// ASSETSYNC_BLOB_S3_BUCKET_NAME and friends
	viper.SetEnvPrefix(envPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()
	for _, key := range []string{
		"blob.s3.bucket_name", "blob.s3.region", "blob.s3.endpoint",
		"blob.s3.access_key", "blob.s3.secret_key", "blob.s3.prefix", "blob.dir", "db_path",
	} {
		if err := viper.BindEnv(key); err != nil {
			return err
		}
	}
	return nil
}

func configFromViper() (*server.Config, error) {
	var cfg server.Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config decode: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
