package main

import (
	"context"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/okian/yap/internal/smoke"
	"github.com/okian/yap/pkg/logger"
)

const defaultSmokeTimeout = 30 * time.Minute

func smokeCmd() *cobra.Command {
	cfg := smoke.Config{}
	var file string

	cmd := &cobra.Command{
		Use:   "smoke [video-url]...",
		Short: "Drive a running server end to end and verify its rankings",
		RunE: func(cmd *cobra.Command, args []string) error {
			urls := args
			if file != "" {
				f, err := os.Open(file)
				if err != nil {
					return err
				}
				defer f.Close()
				fromFile, err := smoke.ReadURLs(f)
				if err != nil {
					return err
				}
				urls = append(urls, fromFile...)
			}
			cfg.URLs = urls
			if err := logger.Init(logger.WithOutput(cmd.ErrOrStderr())); err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			ctx, cancel := context.WithTimeout(ctx, defaultSmokeTimeout)
			defer cancel()

			stats, err := smoke.Run(ctx, cfg)
			if stats != nil {
				_ = printJSON(cmd.OutOrStdout(), stats)
			}
			return err
		},
	}
	cmd.Flags().StringVar(&cfg.BaseURL, "url", "http://localhost:9080", "base URL of the service")
	cmd.Flags().StringVar(&file, "file", "", "file with one video URL per line")
	cmd.Flags().StringVar(&cfg.ProfileID, "profile", "", "owner profile id for every yap")
	cmd.Flags().IntVar(&cfg.TopN, "top", smoke.DefaultTopN, "leaderboard entries to verify")
	cmd.Flags().IntVar(&cfg.Workers, "workers", runtime.NumCPU(), "concurrent HTTP workers")
	cmd.Flags().DurationVar(&cfg.Timeout, "timeout", smoke.DefaultTimeout, "per-request timeout")
	cmd.Flags().DurationVar(&cfg.Wait, "wait", smoke.DefaultWait, "how long to wait for the queue to drain")
	return cmd
}
