package writer

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/rickgao/linkpulse/internal/model"
)

// Config controls batching.
type Config struct {
	BatchSize     int
	FlushInterval time.Duration
	BufferSize    int // Max queued events before Record starts dropping
}

// DefaultConfig returns the recorder defaults.
func DefaultConfig() Config {
	return Config{
		BatchSize:     500,
		FlushInterval: time.Second,
		BufferSize:    10000,
	}
}

// Stats holds recorder counters.
type Stats struct {
	Recorded  int64 // Events accepted by Record
	Dropped   int64 // Events rejected because the queue was full or closed
	Inserts   int64
	Conflicts int64 // Rows skipped because the ID already existed
	Errors    int64 // Failed batches
	Flushes   int64
	Pending   int // Events queued but not yet batched
}

// BatchSender sends a pgx batch. *pgxpool.Pool satisfies it.
type BatchSender interface {
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

type clickRow struct {
	ID         string
	ShortCode  string
	ClickedAt  time.Time
	ReceivedAt time.Time
	IPAddress  any
	UserAgent  any
	Referrer   any
	Country    any
	Extra      []byte
}

const insertClick = `
	INSERT INTO click_events (id, short_code, clicked_at, received_at, ip_address, user_agent, referrer, country, extra)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	ON CONFLICT (id) DO NOTHING
`

// ClickWriter batches click events into the click_events table.
type ClickWriter struct {
	cfg    Config
	logger *slog.Logger
	db     BatchSender

	input *Queue[model.ClickEvent]

	batch   []clickRow
	batchMu sync.Mutex
	// flushMu serialises inserts so batches land in arrival order.
	flushMu sync.Mutex

	ctx      context.Context
	cancel   context.CancelFunc
	consumed chan struct{} // Closed when consumeLoop has drained the queue
	wg       sync.WaitGroup

	stats Stats
}

// NewClickWriter creates a ClickWriter. Call Start before recording.
func NewClickWriter(cfg Config, db BatchSender, logger *slog.Logger) *ClickWriter {
	if logger == nil {
		logger = slog.Default()
	}
	def := DefaultConfig()
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = def.BatchSize
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = def.FlushInterval
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = def.BufferSize
	}
	return &ClickWriter{
		cfg:    cfg,
		logger: logger.With("component", "click_writer"),
		db:     db,
		input:  NewQueue[model.ClickEvent](min(cfg.BatchSize, cfg.BufferSize), cfg.BufferSize),
		batch:  make([]clickRow, 0, cfg.BatchSize),
	}
}

// Record queues an event for insertion. It never blocks; it returns false
// when the event was dropped.
func (w *ClickWriter) Record(ev model.ClickEvent) bool {
	ok := w.input.Send(ev)

	w.batchMu.Lock()
	if ok {
		w.stats.Recorded++
	} else {
		w.stats.Dropped++
	}
	w.batchMu.Unlock()

	if !ok {
		w.logger.Warn("click dropped", "topic", ev.Topic, "queued", w.input.Len())
	}
	return ok
}

// Start begins consuming events and writing to the database.
func (w *ClickWriter) Start(ctx context.Context) error {
	w.ctx, w.cancel = context.WithCancel(ctx)
	w.consumed = make(chan struct{})

	go w.consumeLoop()

	w.wg.Add(1)
	go w.flushLoop()

	w.logger.Info("click writer started",
		"batch_size", w.cfg.BatchSize,
		"flush_interval", w.cfg.FlushInterval,
		"buffer_size", w.cfg.BufferSize,
	)
	return nil
}

// Stop closes the input, drains what is queued and performs a final flush.
// ctx bounds both the drain and the final insert.
func (w *ClickWriter) Stop(ctx context.Context) error {
	w.logger.Info("stopping click writer")

	w.input.Close()

	if w.cancel != nil {
		select {
		case <-w.consumed:
		case <-ctx.Done():
			w.logger.Warn("click writer drain timed out", "pending", w.input.Len())
		}
		w.cancel()
		w.wg.Wait()
	}

	w.flush(ctx)

	w.logger.Info("click writer stopped", "inserts", w.Stats().Inserts)
	return nil
}

// Stats returns current counters.
func (w *ClickWriter) Stats() Stats {
	w.batchMu.Lock()
	defer w.batchMu.Unlock()
	s := w.stats
	s.Pending = w.input.Len() + len(w.batch)
	return s
}

// consumeLoop moves events from the queue into the pending batch until the
// queue is closed and empty.
func (w *ClickWriter) consumeLoop() {
	defer close(w.consumed)

	for {
		ev, ok := w.input.Receive()
		if !ok {
			return
		}
		w.handleEvent(ev)
	}
}

// flushLoop periodically flushes the batch.
func (w *ClickWriter) flushLoop() {
	defer w.wg.Done()

	ticker := time.NewTicker(w.cfg.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-w.ctx.Done():
			return
		case <-ticker.C:
			w.flush(w.ctx)
		}
	}
}

func (w *ClickWriter) handleEvent(ev model.ClickEvent) {
	row := w.transform(ev)

	w.batchMu.Lock()
	w.batch = append(w.batch, row)
	shouldFlush := len(w.batch) >= w.cfg.BatchSize
	w.batchMu.Unlock()

	if shouldFlush {
		w.flush(w.ctx)
	}
}

func (w *ClickWriter) transform(ev model.ClickEvent) clickRow {
	row := clickRow{
		ID:         ev.ID.String(),
		ShortCode:  ev.Topic,
		ClickedAt:  ev.Timestamp,
		ReceivedAt: ev.ReceivedAt,
		IPAddress:  nullable(ev.IPAddress),
		UserAgent:  nullable(ev.UserAgent),
		Referrer:   nullable(ev.Referrer),
		Country:    nullable(ev.Country),
	}
	if len(ev.Extra) > 0 {
		extra, err := json.Marshal(ev.Extra)
		if err != nil {
			w.logger.Warn("discarding unencodable extra fields", "topic", ev.Topic, "error", err)
		} else {
			row.Extra = extra
		}
	}
	return row
}

// flush writes the current batch to the database.
func (w *ClickWriter) flush(ctx context.Context) {
	w.flushMu.Lock()
	defer w.flushMu.Unlock()

	w.batchMu.Lock()
	if len(w.batch) == 0 {
		w.batchMu.Unlock()
		return
	}

	// Take ownership of current batch
	batch := w.batch
	w.batch = make([]clickRow, 0, w.cfg.BatchSize)
	w.batchMu.Unlock()

	start := time.Now()
	conflicts, err := w.batchInsert(ctx, batch)
	if err != nil {
		w.logger.Error("batch insert failed", "error", err, "count", len(batch))
		w.batchMu.Lock()
		w.stats.Errors++
		w.batchMu.Unlock()
		return
	}

	w.batchMu.Lock()
	w.stats.Inserts += int64(len(batch) - conflicts)
	w.stats.Conflicts += int64(conflicts)
	w.stats.Flushes++
	w.batchMu.Unlock()

	w.logger.Debug("flushed clicks",
		"count", len(batch),
		"conflicts", conflicts,
		"duration", time.Since(start),
	)
}

// batchInsert inserts rows using pgx.Batch with ON CONFLICT DO NOTHING.
func (w *ClickWriter) batchInsert(ctx context.Context, rows []clickRow) (conflicts int, err error) {
	batch := &pgx.Batch{}
	for _, r := range rows {
		batch.Queue(insertClick,
			r.ID, r.ShortCode, r.ClickedAt, r.ReceivedAt,
			r.IPAddress, r.UserAgent, r.Referrer, r.Country, r.Extra)
	}

	results := w.db.SendBatch(ctx, batch)
	defer results.Close()

	for range rows {
		ct, err := results.Exec()
		if err != nil {
			return 0, err
		}
		if ct.RowsAffected() == 0 {
			conflicts++
		}
	}

	return conflicts, nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
