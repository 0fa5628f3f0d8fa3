package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/okian/yap/internal/adapters/graph"
	"github.com/okian/yap/internal/adapters/repository"
	"github.com/okian/yap/internal/config"
	"github.com/okian/yap/pkg/logger"
)

// withStack runs fn against a started service and releases it afterwards.
func withStack(cmd *cobra.Command, fn func(ctx context.Context, rt *stack) error) error {
	ctx, stop, cfg, err := setup(cmd)
	if err != nil {
		return err
	}
	defer stop()
	rt, err := build(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := rt.Close(context.Background()); err != nil {
			logger.Get().Warn(ctx, "release resources", logger.Error(err))
		}
	}()
	return fn(ctx, rt)
}

func calculateCmd() *cobra.Command {
	var save bool
	var profileID string

	cmd := &cobra.Command{
		Use:   "calculate <video-url>",
		Short: "Score one video",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStack(cmd, func(ctx context.Context, rt *stack) error {
				if save {
					res, err := rt.svc.Process(ctx, args[0], profileID)
					if err != nil {
						return err
					}
					return printJSON(cmd.OutOrStdout(), res)
				}
				sc, err := rt.svc.Calculate(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), sc)
			})
		},
	}
	cmd.Flags().BoolVar(&save, "save", false, "store the result as a yap")
	cmd.Flags().StringVar(&profileID, "profile", "", "owner profile id when saving (default: the video author)")
	return cmd
}

func batchCmd() *cobra.Command {
	var concurrency int
	var profileID string

	cmd := &cobra.Command{
		Use:   "batch <video-url>...",
		Short: "Score and store several videos with bounded concurrency",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStack(cmd, func(ctx context.Context, rt *stack) error {
				items, err := rt.svc.Batch(ctx, args, profileID, concurrency)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), items)
			})
		},
	}
	cmd.Flags().IntVar(&concurrency, "concurrency", 0, "max in-flight fetches (default from config)")
	cmd.Flags().StringVar(&profileID, "profile", "", "owner profile id (default: each video's author)")
	return cmd
}

func leaderboardCmd() *cobra.Command {
	var limit int
	var profiles bool

	cmd := &cobra.Command{
		Use:   "leaderboard",
		Short: "Show the top yaps, or the profile ranking with --profiles",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withStack(cmd, func(ctx context.Context, rt *stack) error {
				if profiles {
					ranked, err := rt.svc.ProfileRanking(ctx, limit)
					if err != nil {
						return err
					}
					return printJSON(cmd.OutOrStdout(), ranked)
				}
				top, err := rt.svc.Leaderboard(ctx, limit)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), top)
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "entries to show")
	cmd.Flags().BoolVar(&profiles, "profiles", false, "rank profiles instead of yaps")
	return cmd
}

func registryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "registry",
		Short: "Inspect or load the trust graph",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withStack(cmd, func(_ context.Context, rt *stack) error {
				return printJSON(cmd.OutOrStdout(), rt.svc.RegistryInfo())
			})
		},
	}
	cmd.AddCommand(registryExportCmd(), registryImportCmd())
	return cmd
}

func registryExportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "export",
		Short: "Write the configured graph source as seeds YAML",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop, cfg, err := setup(cmd)
			if err != nil {
				return err
			}
			defer stop()
			store, err := openStore(ctx, cfg)
			if err != nil {
				return err
			}
			defer store.Close()
			src, closeSrc, err := openGraph(ctx, cfg, store)
			if err != nil {
				return err
			}
			if closeSrc != nil {
				defer closeSrc(context.Background())
			}
			g, err := src.Load(ctx)
			if err != nil {
				return err
			}
			return graph.Encode(cmd.OutOrStdout(), g)
		},
	}
}

func registryImportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import <seeds.yaml>",
		Short: "Load a seeds YAML file into the SQL graph tables",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop, cfg, err := setup(cmd)
			if err != nil {
				return err
			}
			defer stop()
			if cfg.DBDriver == config.DBMemory {
				return fmt.Errorf("registry import needs a sql db_driver, got %s", cfg.DBDriver)
			}
			return importGraph(ctx, cfg, args[0])
		},
	}
}

func importGraph(ctx context.Context, cfg *config.Config, path string) error {
	file, err := graph.NewFileSource(path)
	if err != nil {
		return err
	}
	g, err := file.Load(ctx)
	if err != nil {
		return err
	}
	store, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer store.Close()
	sqlStore, ok := store.(*repository.SQLStore)
	if !ok {
		return fmt.Errorf("registry import needs a sql store")
	}
	if err := graph.NewSQLSource(sqlStore.DB()).Save(ctx, g); err != nil {
		return err
	}
	logger.Get().Info(ctx, "graph imported",
		logger.String("path", path),
		logger.Int("seeds", len(g.Seeds)),
		logger.Int("profiles", len(g.Profiles)),
		logger.Int("follows", len(g.Follows)),
	)
	return nil
}
