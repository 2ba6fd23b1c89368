package sink

import (
	"context"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/sirupsen/logrus"

	"github.com/cesnet/ipspoof-detector/pkg/metrics"
	"github.com/cesnet/ipspoof-detector/pkg/types"
)

const createSpoofedFlowsTable = `
CREATE TABLE IF NOT EXISTS spoofed_flows (
    Timestamp   DateTime,
    Src         String,
    Dst         String,
    SrcPort     UInt16,
    DstPort     UInt16,
    Protocol    UInt8,
    Direction   UInt8,
    LinkMask    UInt64
) ENGINE = MergeTree()
PARTITION BY toYYYYMM(Timestamp)
ORDER BY (Timestamp, Src, Dst);
`

// ClickHouseSink archives every positively-flagged record for later
// analysis, batching inserts the way the upstream heavy-hitter writer
// this was adapted from does.
type ClickHouseSink struct {
	conn     driver.Conn
	stats    *metrics.SinkMetrics
	ready    chan struct{}
	batch    []*types.FlowRecord
	batchMax int
}

// NewClickHouseSink connects to dsn and ensures the archival table exists.
func NewClickHouseSink(dsn string) (*ClickHouseSink, error) {
	opts, err := clickhouse.ParseDSN(dsn)
	if err != nil {
		return nil, fmt.Errorf("clickhouse sink: parse DSN: %w", err)
	}

	conn, err := clickhouse.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("clickhouse sink: open connection: %w", err)
	}
	if err := conn.Ping(context.Background()); err != nil {
		return nil, fmt.Errorf("clickhouse sink: ping: %w", err)
	}
	if err := conn.Exec(context.Background(), createSpoofedFlowsTable); err != nil {
		return nil, fmt.Errorf("clickhouse sink: create table: %w", err)
	}

	return &ClickHouseSink{
		conn:     conn,
		stats:    &metrics.SinkMetrics{},
		ready:    make(chan struct{}),
		batchMax: 100,
	}, nil
}

func (s *ClickHouseSink) Ready() <-chan struct{} { return s.ready }

func (s *ClickHouseSink) Consume(ctx context.Context, in <-chan *types.FlowRecord) error {
	logrus.Info("Starting ClickHouse sink consumer")
	defer logrus.Info("ClickHouse sink consumer stopped")

	close(s.ready)

	for {
		select {
		case <-ctx.Done():
			return s.flush(context.Background())
		case rec, ok := <-in:
			if !ok {
				return s.flush(context.Background())
			}
			s.batch = append(s.batch, rec)
			if len(s.batch) >= s.batchMax {
				if err := s.flush(ctx); err != nil {
					logrus.Errorf("clickhouse sink: flush failed: %v", err)
					s.stats.WriteErrors++
				}
			}
		}
	}
}

func (s *ClickHouseSink) flush(ctx context.Context) error {
	if len(s.batch) == 0 {
		return nil
	}

	batch, err := s.conn.PrepareBatch(ctx, "INSERT INTO spoofed_flows")
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	for _, rec := range s.batch {
		err := batch.Append(
			time.Unix(int64(rec.TimestampSecs()), 0),
			rec.Src.String(),
			rec.Dst.String(),
			rec.SrcPort,
			rec.DstPort,
			rec.Protocol,
			uint8(rec.Direction),
			rec.LinkMask,
		)
		if err != nil {
			return fmt.Errorf("append row: %w", err)
		}
		s.stats.PacketsWritten++
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}

	logrus.Debugf("clickhouse sink: flushed %d records", len(s.batch))
	s.batch = s.batch[:0]
	return nil
}
