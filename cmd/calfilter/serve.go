package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"calfilter/internal/config"
	"calfilter/internal/ics"
	appLog "calfilter/internal/log"
	"calfilter/internal/metrics"
	"calfilter/internal/refresh"
	"calfilter/internal/storage"
	"calfilter/internal/web"
	"calfilter/internal/workspace"
)

func newServeCommand(a *app) *cobra.Command {
	var listen string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the scheduled feed refresh",
		RunE: func(cmd *cobra.Command, _ []string) error {
			// --listen overrides config file listen if provided.
			if listen != "" {
				a.cfg.Listen = listen
			}
			return serve(a.cfg)
		},
	}
	cmd.Flags().StringVar(&listen, "listen", "", "HTTP listen address (overrides config if set)")
	return cmd
}

func serve(cfg *config.Config) error {
	appLog.Info("calfilter starting", "version", version)
	appLog.Info("effective config",
		"listen", cfg.Listen,
		"timezone", cfg.Timezone,
		"refresh", cfg.RefreshCron,
		"database", cfg.Database,
		"feed_count", len(cfg.Feeds),
		"reapply_rules", cfg.ReapplyRules,
	)

	// Root context with cancellation on SIGINT/SIGTERM.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	go func() {
		select {
		case sig := <-sigCh:
			appLog.Info("signal received, shutting down", "signal", sig.String())
			cancel()
		case <-ctx.Done():
		}
	}()

	loc := resolveLocation(cfg.Timezone)

	db, err := storage.Open(cfg.Database)
	if err != nil {
		return err
	}
	defer func() {
		if err := db.Close(); err != nil {
			appLog.Error("database close failed", err)
		}
	}()

	m := metrics.New()
	ws := workspace.New(workspace.Options{
		Storage:      db,
		Metrics:      m,
		Location:     loc,
		ReapplyRules: cfg.ReapplyRules,
	})
	if err := ws.Load(ctx); err != nil {
		return err
	}

	fetcher := ics.NewFetcher(cfg.CacheDir, time.Duration(cfg.FetchTimeoutSeconds)*time.Second)
	r := refresh.New(fetcher, ws, feedsOf(cfg), m)

	// Initial refresh runs in the background so the API is reachable
	// while slow feeds download.
	go func() {
		if _, err := r.RunOnce(ctx); err != nil {
			if errors.Is(err, refresh.ErrNoFeeds) {
				appLog.Warn("no feeds configured; waiting for configuration")
				return
			}
			appLog.Error("initial refresh failed", err)
		}
	}()

	if err := r.Schedule(ctx, cfg.RefreshCron, loc); err != nil {
		return err
	}
	r.Start()
	defer r.Stop()

	if os.Getenv("GIN_MODE") == "" {
		gin.SetMode(gin.ReleaseMode)
	}
	srv := web.NewServer(cfg, ws, r, m)
	err = srv.Serve(ctx)

	appLog.Info("calfilter exiting")
	return err
}

func feedsOf(cfg *config.Config) []ics.Feed {
	feeds := make([]ics.Feed, 0, len(cfg.Feeds))
	for _, f := range cfg.Feeds {
		if f.URL == "" {
			continue
		}
		feeds = append(feeds, ics.Feed{ID: f.ID, URL: f.URL})
	}
	return feeds
}

// resolveLocation loads the configured zone, falling back to UTC.
func resolveLocation(name string) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		appLog.Warn("invalid timezone, using UTC", "timezone", name, "err", err)
		return time.UTC
	}
	return loc
}
