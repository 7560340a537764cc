package processor

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/gosight/gosight/gaze/internal/config"
	"github.com/gosight/gosight/gaze/internal/dwell"
	"github.com/gosight/gosight/gaze/internal/producer"
	"github.com/gosight/gosight/gaze/internal/storage"
)

// Store persists interaction batches
type Store interface {
	InsertInteractions(ctx context.Context, rows []storage.InteractionRow) error
}

// Publisher forwards interactions downstream
type Publisher interface {
	PublishInteraction(ctx context.Context, ev producer.Interaction) error
}

// Aggregator folds interactions into per-target totals and moves them to
// long-term storage
type Aggregator interface {
	Update(ctx context.Context, row storage.InteractionRow) error
	FlushAll(ctx context.Context) error
}

// InteractionProcessor turns dwell state changes into stored, published
// and aggregated interaction rows. Process only buffers; all I/O happens
// on the processor's own goroutine so the gaze loop never waits on it.
type InteractionProcessor struct {
	store     Store
	publisher Publisher
	agg       Aggregator
	batchCfg  config.BatchConfig
	now       func() time.Time

	buffer []storage.InteractionRow

	// rows waiting to be published and aggregated
	pending  chan storage.InteractionRow
	flushNow chan struct{}

	mu        sync.Mutex
	lastFlush time.Time
	ticker    *time.Ticker
	attention *time.Ticker
	done      chan struct{}
	stopped   chan struct{}
	stopOnce  sync.Once
}

// NewInteractionProcessor creates a processor and starts its worker.
// Any of store, publisher and agg may be nil.
func NewInteractionProcessor(store Store, publisher Publisher, agg Aggregator, batchCfg config.BatchConfig) *InteractionProcessor {
	if batchCfg.Size <= 0 {
		batchCfg.Size = 1000
	}
	if batchCfg.FlushInterval <= 0 {
		batchCfg.FlushInterval = 5 * time.Second
	}
	if batchCfg.AttentionInterval <= 0 {
		batchCfg.AttentionInterval = time.Minute
	}
	if batchCfg.Timeout <= 0 {
		batchCfg.Timeout = 5 * time.Second
	}

	p := &InteractionProcessor{
		store:     store,
		publisher: publisher,
		agg:       agg,
		batchCfg:  batchCfg,
		now:       time.Now,
		buffer:    make([]storage.InteractionRow, 0, batchCfg.Size),
		pending:   make(chan storage.InteractionRow, batchCfg.Size),
		flushNow:  make(chan struct{}, 1),
		lastFlush: time.Now(),
		done:      make(chan struct{}),
		stopped:   make(chan struct{}),
	}

	// Start flush tickers
	p.ticker = time.NewTicker(batchCfg.FlushInterval)
	p.attention = time.NewTicker(batchCfg.AttentionInterval)
	go p.flushLoop()

	return p
}

// Observe is registered with the pointer's state change event. It runs on
// the gaze loop and never blocks.
func (p *InteractionProcessor) Observe(ev dwell.StateChanged) {
	p.Process(ev)
}

// Process records a single state change
func (p *InteractionProcessor) Process(ev dwell.StateChanged) {
	row := p.toRow(ev)

	p.mu.Lock()
	p.buffer = append(p.buffer, row)
	shouldFlush := len(p.buffer) >= p.batchCfg.Size
	p.mu.Unlock()

	select {
	case p.pending <- row:
	default:
		log.Warn().Str("target_id", row.TargetID).Msg("Interaction queue full, skipping publish")
	}

	// Flush if buffer full
	if shouldFlush {
		select {
		case p.flushNow <- struct{}{}:
		default:
		}
	}
}

func (p *InteractionProcessor) toRow(ev dwell.StateChanged) storage.InteractionRow {
	row := storage.InteractionRow{
		EventID:     uuid.New().String(),
		State:       ev.State.String(),
		ElapsedMs:   uint64(max(ev.Elapsed, 0) / time.Millisecond),
		RepeatCount: uint32(max(ev.RepeatCount, 0)),
		SampleTsUs:  ev.Timestamp.Microseconds(),
		Timestamp:   p.now(),
	}
	if ev.Target != nil {
		row.TargetID = string(ev.Target.ID)
		row.Capability = ev.Target.Capability.String()
	}
	if ev.EyesOff {
		row.EyesOff = 1
	}
	return row
}

func toMessage(row storage.InteractionRow) producer.Interaction {
	return producer.Interaction{
		EventID:     row.EventID,
		TargetID:    row.TargetID,
		Capability:  row.Capability,
		State:       row.State,
		ElapsedMs:   int64(row.ElapsedMs),
		RepeatCount: int(row.RepeatCount),
		EyesOff:     row.EyesOff == 1,
		SampleTsUs:  row.SampleTsUs,
		Timestamp:   row.Timestamp.UnixMilli(),
	}
}

func (p *InteractionProcessor) flushLoop() {
	defer close(p.stopped)

	for {
		select {
		case <-p.done:
			p.drain()
			return
		case row := <-p.pending:
			p.forward(row)
		case <-p.flushNow:
			p.Flush()
		case <-p.ticker.C:
			p.Flush()
		case <-p.attention.C:
			p.flushAttention()
		}
	}
}

// forward publishes row and folds it into the attention totals
func (p *InteractionProcessor) forward(row storage.InteractionRow) {
	ctx, cancel := context.WithTimeout(context.Background(), p.batchCfg.Timeout)
	defer cancel()

	// eyes-off events carry no target attention
	if p.agg != nil && row.EyesOff == 0 {
		if err := p.agg.Update(ctx, row); err != nil {
			log.Warn().Err(err).Str("target_id", row.TargetID).Msg("Failed to update attention")
		}
	}

	if p.publisher != nil {
		if err := p.publisher.PublishInteraction(ctx, toMessage(row)); err != nil {
			log.Warn().Err(err).Str("target_id", row.TargetID).Msg("Failed to publish interaction")
		}
	}
}

func (p *InteractionProcessor) drain() {
	for {
		select {
		case row := <-p.pending:
			p.forward(row)
		default:
			return
		}
	}
}

func (p *InteractionProcessor) flushAttention() {
	if p.agg == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), p.batchCfg.Timeout)
	defer cancel()

	if err := p.agg.FlushAll(ctx); err != nil {
		log.Error().Err(err).Msg("Failed to flush attention")
	}
}

// Flush writes all buffered rows to the store
func (p *InteractionProcessor) Flush() {
	p.mu.Lock()

	// Check if there's anything to flush
	if len(p.buffer) == 0 {
		p.mu.Unlock()
		return
	}

	rows := p.buffer
	p.buffer = make([]storage.InteractionRow, 0, p.batchCfg.Size)
	p.lastFlush = time.Now()
	p.mu.Unlock()

	if p.store == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), p.batchCfg.Timeout)
	defer cancel()
	start := time.Now()

	if err := p.store.InsertInteractions(ctx, rows); err != nil {
		log.Error().Err(err).Int("count", len(rows)).Msg("Failed to insert interactions")
		return
	}
	log.Info().
		Int("count", len(rows)).
		Dur("duration", time.Since(start)).
		Msg("Flushed interactions to ClickHouse")
}

// Pending reports how many rows wait for the next flush
func (p *InteractionProcessor) Pending() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.buffer)
}

// Stop drains queued rows, writes the buffer and moves attention totals
// to storage
func (p *InteractionProcessor) Stop() {
	p.stopOnce.Do(func() {
		p.ticker.Stop()
		p.attention.Stop()
		close(p.done)
		<-p.stopped
		p.Flush() // Final flush
		p.flushAttention()
	})
}
