package poller

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/rickgao/linkpulse/internal/model"
)

// TopicSource provides the short codes to poll. realtime.Client satisfies it.
type TopicSource interface {
	ActiveTopics() []string
}

// StaticTopics is a TopicSource over a fixed list.
type StaticTopics []string

func (s StaticTopics) ActiveTopics() []string { return s }

// StatsFetcher fetches stats for one short code. *api.Client satisfies it.
type StatsFetcher interface {
	GetLinkStats(ctx context.Context, code string) (model.LinkStats, error)
}

// StatsHandler receives fetched stats.
type StatsHandler interface {
	HandleStats(stats model.LinkStats) error
}

// StatsHandlerFunc is a function adapter for StatsHandler.
type StatsHandlerFunc func(model.LinkStats) error

func (f StatsHandlerFunc) HandleStats(s model.LinkStats) error {
	return f(s)
}

// Config holds poller configuration.
type Config struct {
	Interval    time.Duration // Poll interval (default: 1m)
	Concurrency int           // Max concurrent requests (default: 4)
	Timeout     time.Duration // Per-request timeout (default: 10s)
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Interval:    time.Minute,
		Concurrency: 4,
		Timeout:     10 * time.Second,
	}
}

// CycleStats summarizes one poll cycle.
type CycleStats struct {
	Topics   int
	Fetched  int64
	Errors   int64
	Duration time.Duration
}

// Poller periodically fetches link stats via the REST API.
type Poller struct {
	cfg     Config
	client  StatsFetcher
	topics  TopicSource
	handler StatsHandler
	logger  *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu   sync.Mutex
	last CycleStats
}

// New creates a new Poller.
func New(cfg Config, client StatsFetcher, topics TopicSource, handler StatsHandler, logger *slog.Logger) *Poller {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	return &Poller{
		cfg:     cfg,
		client:  client,
		topics:  topics,
		handler: handler,
		logger:  logger,
	}
}

// Start begins the polling loop.
func (p *Poller) Start(ctx context.Context) error {
	p.ctx, p.cancel = context.WithCancel(ctx)

	p.wg.Add(1)
	go p.run()

	p.logger.Info("stats poller started",
		"interval", p.cfg.Interval,
		"concurrency", p.cfg.Concurrency,
	)

	return nil
}

// Stop gracefully shuts down the poller.
func (p *Poller) Stop(ctx context.Context) error {
	if p.cancel != nil {
		p.cancel()
	}

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.logger.Info("stats poller stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// LastCycle returns statistics of the most recent completed poll cycle.
func (p *Poller) LastCycle() CycleStats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.last
}

// run is the main polling loop.
func (p *Poller) run() {
	defer p.wg.Done()

	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()

	// Poll immediately on start.
	p.PollOnce(p.ctx)

	for {
		select {
		case <-p.ctx.Done():
			return
		case <-ticker.C:
			p.PollOnce(p.ctx)
		}
	}
}

// PollOnce fetches stats for every topic concurrently and returns once all
// requests have finished. Individual failures are logged and counted.
func (p *Poller) PollOnce(ctx context.Context) CycleStats {
	start := time.Now()

	topics := p.topics.ActiveTopics()
	if len(topics) == 0 {
		p.logger.Debug("no topics to poll")
		return CycleStats{}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.cfg.Concurrency)
	var fetched, failed atomic.Int64

	for _, code := range topics {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := p.pollTopic(gctx, code); err != nil {
				p.logger.Warn("failed to poll link stats",
					"topic", code,
					"error", err,
				)
				failed.Add(1)
				return nil
			}
			fetched.Add(1)
			return nil
		})
	}

	g.Wait()

	stats := CycleStats{
		Topics:   len(topics),
		Fetched:  fetched.Load(),
		Errors:   failed.Load(),
		Duration: time.Since(start),
	}
	p.mu.Lock()
	p.last = stats
	p.mu.Unlock()

	p.logger.Info("poll cycle complete",
		"topics", stats.Topics,
		"fetched", stats.Fetched,
		"errors", stats.Errors,
		"duration", stats.Duration,
	)
	return stats
}

// pollTopic fetches and handles a single link's stats.
func (p *Poller) pollTopic(ctx context.Context, code string) error {
	if p.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.cfg.Timeout)
		defer cancel()
	}

	stats, err := p.client.GetLinkStats(ctx, code)
	if err != nil {
		return err
	}

	if p.handler != nil {
		if err := p.handler.HandleStats(stats); err != nil {
			return err
		}
	}

	return nil
}
