package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cloudwego/hertz/pkg/app/server"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	gormrepo "mearth/internal/adapter/repo/gorm"
	"mearth/internal/app/scheduler"
	"mearth/internal/config"
)

const shutdownTimeout = 10 * time.Second

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var cfgFile string
	root := &cobra.Command{
		Use:           "mearth",
		Short:         "Middle-earth agent mechanics engine",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (yaml)")

	load := func() (config.Config, *slog.Logger, error) {
		cfg, err := config.Load(viper.New(), cfgFile)
		if err != nil {
			return config.Config{}, nil, err
		}
		logger := newLogger(cfg.Log)
		slog.SetDefault(logger)
		return cfg, logger, nil
	}

	root.AddCommand(newServeCmd(load), newSimulateCmd(load), newMigrateCmd(load))
	return root
}

type loader func() (config.Config, *slog.Logger, error)

func newServeCmd(load loader) *cobra.Command {
	var (
		noLoops bool
		restore bool
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the agent decision loops",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := load()
			if err != nil {
				return err
			}
			if cfg.Loop.Seed == 0 {
				cfg.Loop.Seed = randomSeed()
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg, logger, !noLoops, restore)
		},
	}
	cmd.Flags().BoolVar(&noLoops, "no-loops", false, "serve the API without running decision loops")
	cmd.Flags().BoolVar(&restore, "restore", false, "restore agent checkpoints from the cache before starting")
	return cmd
}

func serve(ctx context.Context, cfg config.Config, logger *slog.Logger, runLoops, restore bool) error {
	rt, err := buildRuntime(ctx, cfg, logger, time.Now)
	if err != nil {
		return err
	}
	defer rt.close()

	if restore {
		res, err := rt.checkpoint.RestoreAll(ctx)
		if err != nil {
			return fmt.Errorf("restore checkpoints: %w", err)
		}
		logger.Info("checkpoints restored", "restored", len(res.Restored), "skipped", len(res.Skipped))
	}
	if err := rt.seedAgents(ctx); err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)

	var loops *scheduler.Manager
	if runLoops {
		loops = scheduler.NewManager(rt.schedulerDeps())
		if err := loops.Start(gctx); err != nil {
			return err
		}
		g.Go(loops.Wait)
	}

	if rt.hub != nil {
		g.Go(func() error { rt.hub.Run(gctx); return nil })
	}
	if cfg.HTTP.FeedAddr != "" && rt.hub != nil {
		mux := http.NewServeMux()
		mux.Handle("/feed", rt.hub)
		feedSrv := &http.Server{Addr: cfg.HTTP.FeedAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		g.Go(func() error {
			logger.Info("feed listening", "addr", cfg.HTTP.FeedAddr)
			if err := feedSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return feedSrv.Shutdown(sctx)
		})
	}

	s := server.Default(server.WithHostPorts(cfg.HTTP.Addr), server.WithExitWaitTime(shutdownTimeout))
	rt.handler(loops).RegisterRoutes(s)
	g.Go(func() error {
		logger.Info("mearth server listening", "addr", cfg.HTTP.Addr, "loops", runLoops)
		return s.Run()
	})
	g.Go(func() error {
		<-gctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if loops != nil {
			loops.StopAll()
		}
		return s.Shutdown(sctx)
	})

	err = g.Wait()
	if res, cerr := rt.checkpoint.SaveAll(context.Background()); cerr != nil {
		logger.Warn("checkpoint on shutdown", "err", cerr)
	} else {
		logger.Info("checkpoints saved", "agents", len(res.Saved))
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func newMigrateCmd(load loader) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply SQL migrations to the postgres store",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := load()
			if err != nil {
				return err
			}
			if cfg.Store.Driver != "postgres" {
				return fmt.Errorf("%w: migrate needs store.driver=postgres", config.ErrInvalidConfig)
			}
			db, err := gormrepo.OpenPostgres(cfg.Store.DSN)
			if err != nil {
				return err
			}
			if sqlDB, err := db.DB(); err == nil {
				defer sqlDB.Close()
			}
			applied, err := gormrepo.ApplyMigrations(cmd.Context(), db, gormrepo.MigrationSource(cfg.Store.MigrationsDir))
			if err != nil {
				return err
			}
			logger.Info("migrations applied", "count", len(applied), "files", applied)
			return nil
		},
	}
}
