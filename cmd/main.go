package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/okian/yap/internal/config"
	"github.com/okian/yap/pkg/logger"
)

var cfgFile string

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "yap",
		Short:         "Score short videos by trusted comment engagement",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&cfgFile, "config", "", "YAML config file (overrides "+config.EnvConfigFile+")")

	root.AddCommand(serveCmd())
	root.AddCommand(calculateCmd())
	root.AddCommand(batchCmd())
	root.AddCommand(leaderboardCmd())
	root.AddCommand(registryCmd())
	root.AddCommand(smokeCmd())
	return root
}

// setup loads configuration and initializes logging. The returned context
// is cancelled on SIGINT or SIGTERM.
func setup(cmd *cobra.Command) (context.Context, context.CancelFunc, *config.Config, error) {
	if cfgFile != "" {
		if err := os.Setenv(config.EnvConfigFile, cfgFile); err != nil {
			return nil, nil, nil, err
		}
	}
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)

	cfg, err := config.Load(ctx)
	if err != nil {
		stop()
		return nil, nil, nil, err
	}
	format, _ := logger.ParseFormat(cfg.LogFormat)
	// CLI output goes to stdout, logs go to stderr.
	if err := logger.Init(logger.WithFormat(format), logger.WithOutput(os.Stderr)); err != nil {
		stop()
		return nil, nil, nil, fmt.Errorf("init logging: %w", err)
	}
	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		logger.Get().Warn(ctx, "invalid log_level; falling back to info", logger.String("log_level", cfg.LogLevel), logger.Error(err))
		_ = logger.SetLevelString("info")
	}
	return ctx, stop, cfg, nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
