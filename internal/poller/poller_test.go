package poller

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rickgao/linkpulse/internal/api"
	"github.com/rickgao/linkpulse/internal/model"
)

// statsServer serves GET /api/links/{code}/stats with totals derived from code.
func statsServer(t *testing.T, delay time.Duration, inFlight, maxInFlight *atomic.Int32) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if inFlight != nil {
			current := inFlight.Add(1)
			defer inFlight.Add(-1)

			// Track max concurrent requests.
			for {
				old := maxInFlight.Load()
				if current <= old || maxInFlight.CompareAndSwap(old, current) {
					break
				}
			}
		}

		time.Sleep(delay)

		code := strings.TrimSuffix(strings.TrimPrefix(r.URL.Path, "/api/links/"), "/stats")
		if code == "missing" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		json.NewEncoder(w).Encode(api.LinkStatsResponse{
			ShortCode:   code,
			TotalClicks: int64(len(code)),
		})
	}))
}

func TestPoller_PollOnce(t *testing.T) {
	server := statsServer(t, 0, nil, nil)
	defer server.Close()

	client := api.NewClient(server.URL, nil, api.WithTimeout(5*time.Second))

	var mu sync.Mutex
	got := make(map[string]int64)
	handler := StatsHandlerFunc(func(s model.LinkStats) error {
		mu.Lock()
		got[s.ShortCode] = s.TotalClicks
		mu.Unlock()
		return nil
	})

	cfg := Config{
		Interval:    time.Hour, // Long interval, we'll trigger manually.
		Concurrency: 10,
		Timeout:     5 * time.Second,
	}
	p := New(cfg, client, StaticTopics{"a", "bb", "ccc", "missing"}, handler, nil)

	stats := p.PollOnce(context.Background())

	if stats.Topics != 4 || stats.Fetched != 3 || stats.Errors != 1 {
		t.Errorf("stats = %+v, want 4 topics, 3 fetched, 1 error", stats)
	}
	if p.LastCycle() != stats {
		t.Errorf("LastCycle = %+v, want %+v", p.LastCycle(), stats)
	}

	mu.Lock()
	defer mu.Unlock()
	want := map[string]int64{"a": 1, "bb": 2, "ccc": 3}
	for code, n := range want {
		if got[code] != n {
			t.Errorf("TotalClicks[%s] = %d, want %d", code, got[code], n)
		}
	}
}

func TestPoller_HandlerError(t *testing.T) {
	server := statsServer(t, 0, nil, nil)
	defer server.Close()

	client := api.NewClient(server.URL, nil)
	handler := StatsHandlerFunc(func(model.LinkStats) error {
		return errors.New("renderer closed")
	})

	p := New(DefaultConfig(), client, StaticTopics{"a", "b"}, handler, nil)
	stats := p.PollOnce(context.Background())

	if stats.Errors != 2 || stats.Fetched != 0 {
		t.Errorf("stats = %+v, want 2 errors", stats)
	}
}

func TestPoller_NoTopics(t *testing.T) {
	p := New(DefaultConfig(), nil, StaticTopics{}, nil, nil)

	if stats := p.PollOnce(context.Background()); stats != (CycleStats{}) {
		t.Errorf("stats = %+v, want zero", stats)
	}
}

func TestPoller_StartStop(t *testing.T) {
	server := statsServer(t, 0, nil, nil)
	defer server.Close()

	client := api.NewClient(server.URL, nil)

	var called atomic.Bool
	handler := StatsHandlerFunc(func(model.LinkStats) error {
		called.Store(true)
		return nil
	})

	cfg := Config{
		Interval:    100 * time.Millisecond,
		Concurrency: 10,
		Timeout:     5 * time.Second,
	}

	p := New(cfg, client, StaticTopics{"abc123"}, handler, nil)

	ctx := context.Background()
	if err := p.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	// Wait for at least one poll.
	time.Sleep(150 * time.Millisecond)

	stopCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()

	if err := p.Stop(stopCtx); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}

	if !called.Load() {
		t.Error("handler was never called")
	}
}

func TestPoller_Concurrency(t *testing.T) {
	var inFlight, maxInFlight atomic.Int32

	server := statsServer(t, 50*time.Millisecond, &inFlight, &maxInFlight)
	defer server.Close()

	client := api.NewClient(server.URL, nil)

	// Create 20 topics.
	var topics StaticTopics
	for i := 0; i < 20; i++ {
		topics = append(topics, "code-"+string(rune('A'+i)))
	}

	cfg := Config{
		Interval:    time.Hour,
		Concurrency: 5, // Limit to 5 concurrent.
		Timeout:     5 * time.Second,
	}

	p := New(cfg, client, topics, nil, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	stats := p.PollOnce(ctx)

	if got := maxInFlight.Load(); got > 5 {
		t.Errorf("maxInFlight = %d, want <= 5", got)
	}
	if stats.Fetched != 20 {
		t.Errorf("Fetched = %d, want 20", stats.Fetched)
	}
}
