package main

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"github.com/rickgao/linkpulse/internal/api"
	"github.com/rickgao/linkpulse/internal/auth"
	"github.com/rickgao/linkpulse/internal/config"
	"github.com/rickgao/linkpulse/internal/model"
	"github.com/rickgao/linkpulse/internal/poller"
)

var statsCmd = &cobra.Command{
	Use:   "stats [code...]",
	Short: "Print click totals for short codes (all links when none are given)",
	RunE: func(cmd *cobra.Command, args []string) error {
		logger, err := newLogger(logLevel)
		if err != nil {
			return err
		}
		cfg, err := loadConfig(configPath)
		if err != nil {
			return err
		}
		return runStats(cmd.Context(), cfg, args, newRenderer(cmd.OutOrStdout()), logger)
	},
}

func runStats(ctx context.Context, cfg *config.Config, codes []string, out *renderer, logger *slog.Logger) error {
	creds, err := auth.LoadCredentials(cfg.API.Token, cfg.API.TokenPath)
	if err != nil {
		return err
	}
	client := api.NewClient(cfg.API.RestURL, creds,
		api.WithLogger(logger),
		api.WithTimeout(cfg.API.Timeout),
		api.WithRetries(cfg.API.MaxRetries, time.Second),
	)

	if len(codes) == 0 {
		links, err := client.GetAllLinks(ctx)
		if err != nil {
			return err
		}
		for _, l := range links {
			codes = append(codes, l.ShortCode)
		}
		if len(codes) == 0 {
			fmt.Fprintln(out.out, "no links")
			return nil
		}
	}

	var (
		mu    sync.Mutex
		stats []model.LinkStats
	)
	collect := poller.StatsHandlerFunc(func(s model.LinkStats) error {
		mu.Lock()
		stats = append(stats, s)
		mu.Unlock()
		return nil
	})

	p := poller.New(poller.Config{
		Concurrency: cfg.Poller.Concurrency,
		Timeout:     cfg.Poller.Timeout,
	}, client, poller.StaticTopics(codes), collect, logger.With("component", "poller"))
	cycle := p.PollOnce(ctx)

	slices.SortFunc(stats, func(a, b model.LinkStats) int {
		return strings.Compare(a.ShortCode, b.ShortCode)
	})
	out.Table(stats)

	if cycle.Errors > 0 {
		return fmt.Errorf("%d of %d lookups failed", cycle.Errors, cycle.Topics)
	}
	return nil
}
