package main

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/rickgao/linkpulse/internal/api"
	"github.com/rickgao/linkpulse/internal/auth"
	"github.com/rickgao/linkpulse/internal/config"
	"github.com/rickgao/linkpulse/internal/connection"
	"github.com/rickgao/linkpulse/internal/database"
	"github.com/rickgao/linkpulse/internal/metrics"
	"github.com/rickgao/linkpulse/internal/model"
	"github.com/rickgao/linkpulse/internal/poller"
	"github.com/rickgao/linkpulse/internal/realtime"
	"github.com/rickgao/linkpulse/internal/version"
	"github.com/rickgao/linkpulse/internal/writer"
)

const shutdownTimeout = 30 * time.Second

var watchCmd = &cobra.Command{
	Use:   "watch <code>...",
	Short: "Stream clicks for one or more short codes",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		logger, err := newLogger(logLevel)
		if err != nil {
			return err
		}
		cfg, err := loadConfig(configPath)
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		return runWatch(ctx, cfg, args, newRenderer(cmd.OutOrStdout()), logger)
	},
}

func runWatch(ctx context.Context, cfg *config.Config, codes []string, out *renderer, logger *slog.Logger) error {
	logger.Info("starting linkpulse",
		"version", version.Version,
		"commit", version.Commit,
		"ws_url", cfg.API.WSURL,
		"codes", codes,
	)

	creds, err := auth.LoadCredentials(cfg.API.Token, cfg.API.TokenPath)
	if err != nil {
		return err
	}
	logger.Info("credentials loaded", "token", creds.Redacted())

	collector := metrics.New()

	// Wakes the subscribe loop whenever the connection opens. The observer
	// runs under the manager's lock, so it only signals.
	opened := make(chan struct{}, 1)
	client := realtime.NewWebSocketClient(cfg.ClientConfig(), cfg.ManagerConfig(), logger,
		realtime.WithStateObserver(func(from, to connection.State) {
			collector.ObserveState(from, to)
			out.State(to)
			if to == connection.StateConnected {
				select {
				case opened <- struct{}{}:
				default:
				}
			}
		}),
	)
	if err := collector.RegisterClient(client); err != nil {
		return fmt.Errorf("register client metrics: %w", err)
	}

	var (
		recorder *writer.ClickWriter
		pool     *pgxpool.Pool
	)
	if cfg.Recorder.Enabled {
		pool, recorder, err = startRecorder(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer pool.Close()
		if err := collector.RegisterRecorder(recorder); err != nil {
			return fmt.Errorf("register recorder metrics: %w", err)
		}
	}

	listener := realtime.NewListener(func(ev model.ClickEvent) {
		out.Click(ev)
		if recorder != nil {
			recorder.Record(ev)
		}
	})

	var statsPoller *poller.Poller
	if cfg.Poller.Enabled {
		apiClient := api.NewClient(cfg.API.RestURL, creds,
			api.WithLogger(logger),
			api.WithTimeout(cfg.API.Timeout),
			api.WithRetries(cfg.API.MaxRetries, time.Second),
		)
		statsPoller = poller.New(poller.Config{
			Interval:    cfg.Poller.Interval,
			Concurrency: cfg.Poller.Concurrency,
			Timeout:     cfg.Poller.Timeout,
		}, apiClient, client, poller.StatsHandlerFunc(out.Totals), logger.With("component", "poller"))
	}

	g, gctx := errgroup.WithContext(ctx)

	if cfg.Metrics.Enabled {
		srv := metrics.NewServer(fmt.Sprintf(":%d", cfg.Metrics.Port), cfg.Metrics.Path, collector.Handler(), logger)
		g.Go(func() error {
			return srv.Run(gctx)
		})
	}

	// Subscriptions made while disconnected are ignored, so (re)subscribe
	// each time the connection opens. Repeat subscribes of the same
	// listener are no-ops.
	g.Go(func() error {
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-opened:
				for _, code := range codes {
					client.Subscribe(code, listener)
				}
			}
		}
	})

	if err := client.Connect(gctx, creds.Token); err != nil {
		logger.Warn("initial connect failed, retrying in background", "error", err)
	}

	if statsPoller != nil {
		if err := statsPoller.Start(gctx); err != nil {
			return fmt.Errorf("start poller: %w", err)
		}
	}

	<-gctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if statsPoller != nil {
		if err := statsPoller.Stop(shutdownCtx); err != nil {
			logger.Warn("poller stop failed", "error", err)
		}
	}
	if err := client.Stop(shutdownCtx); err != nil {
		logger.Warn("client stop failed", "error", err)
	}
	if recorder != nil {
		if err := recorder.Stop(shutdownCtx); err != nil {
			logger.Warn("recorder stop failed", "error", err)
		}
	}

	err = g.Wait()
	stats := client.Stats()
	logger.Info("linkpulse stopped",
		"messages", stats.Router.MessagesReceived,
		"dispatched", stats.Router.EventsDispatched,
		"dropped", stats.Router.EventsDropped,
		"reconnects", stats.Connection.Reconnects,
	)
	return err
}

func startRecorder(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*pgxpool.Pool, *writer.ClickWriter, error) {
	logger.Info("connecting to database",
		"host", cfg.Database.Host,
		"port", cfg.Database.Port,
		"database", cfg.Database.Name,
	)

	pool, err := database.Connect(ctx, cfg.Database)
	if err != nil {
		return nil, nil, fmt.Errorf("connect database: %w", err)
	}
	if err := database.EnsureSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, nil, err
	}

	recorder := writer.NewClickWriter(writer.Config{
		BatchSize:     cfg.Recorder.BatchSize,
		FlushInterval: cfg.Recorder.FlushInterval,
		BufferSize:    cfg.Recorder.BufferSize,
	}, pool, logger)
	// The recorder outlives the signal context so Stop can drain it.
	if err := recorder.Start(context.WithoutCancel(ctx)); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("start recorder: %w", err)
	}
	return pool, recorder, nil
}
