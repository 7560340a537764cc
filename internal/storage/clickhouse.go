package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"

	"github.com/gosight/gosight/gaze/internal/config"
)

type ClickHouse struct {
	conn driver.Conn
}

// InteractionRow represents a row in the interactions table
type InteractionRow struct {
	EventID     string
	TargetID    string
	Capability  string
	State       string
	ElapsedMs   uint64
	RepeatCount uint32
	EyesOff     uint8
	SampleTsUs  int64
	Timestamp   time.Time
}

// AttentionRow represents a row in the target_attention table
type AttentionRow struct {
	TargetID    string
	Enters      uint32
	Fixations   uint32
	Dwells      uint32
	Exits       uint32
	AttentionMs uint64
	FirstSeen   time.Time
	LastSeen    time.Time
}

func NewClickHouse(cfg config.ClickHouseConfig) (*ClickHouse, error) {
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{cfg.Addr},
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.Username,
			Password: cfg.Password,
		},
		MaxOpenConns: cfg.MaxOpenConns,
		MaxIdleConns: cfg.MaxIdleConns,
	})
	if err != nil {
		return nil, err
	}

	// Test connection
	if err := conn.Ping(context.Background()); err != nil {
		return nil, fmt.Errorf("failed to ping clickhouse: %w", err)
	}

	return &ClickHouse{conn: conn}, nil
}

func (c *ClickHouse) InsertInteractions(ctx context.Context, rows []InteractionRow) error {
	if len(rows) == 0 {
		return nil
	}

	batch, err := c.conn.PrepareBatch(ctx, `
		INSERT INTO interactions (
			event_id, target_id, capability, state,
			elapsed_ms, repeat_count, eyes_off,
			sample_ts_us, timestamp
		)
	`)
	if err != nil {
		return err
	}

	for _, r := range rows {
		err := batch.Append(
			r.EventID, r.TargetID, r.Capability, r.State,
			r.ElapsedMs, r.RepeatCount, r.EyesOff,
			r.SampleTsUs, r.Timestamp,
		)
		if err != nil {
			return err
		}
	}

	return batch.Send()
}

// UpsertAttention inserts one attention delta; the table sums them per target
func (c *ClickHouse) UpsertAttention(ctx context.Context, row AttentionRow) error {
	return c.conn.Exec(ctx, `
		INSERT INTO target_attention (
			target_id,
			enters, fixations, dwells, exits,
			attention_ms, first_seen, last_seen
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`,
		row.TargetID,
		row.Enters, row.Fixations, row.Dwells, row.Exits,
		row.AttentionMs, row.FirstSeen, row.LastSeen,
	)
}

func (c *ClickHouse) Close() error {
	return c.conn.Close()
}
