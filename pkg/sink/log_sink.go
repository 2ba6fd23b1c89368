// Package sink implements the pipeline's terminal consumers: a logging
// sink for operator visibility and a ClickHouse sink for archival.
package sink

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/cesnet/ipspoof-detector/pkg/metrics"
	"github.com/cesnet/ipspoof-detector/pkg/types"
)

// LogSink writes every positively-flagged record to the structured log.
// It is the default sink: always available, no external dependency.
type LogSink struct {
	stats *metrics.SinkMetrics
	ready chan struct{}
}

// NewLogSink builds a LogSink.
func NewLogSink() *LogSink {
	return &LogSink{
		stats: &metrics.SinkMetrics{},
		ready: make(chan struct{}),
	}
}

func (s *LogSink) Ready() <-chan struct{} { return s.ready }

func (s *LogSink) Consume(ctx context.Context, in <-chan *types.FlowRecord) error {
	logrus.Info("Starting log sink consumer")
	defer logrus.Info("Log sink consumer stopped")

	close(s.ready)

	for {
		select {
		case <-ctx.Done():
			logrus.Debug("Log sink received context cancellation")
			return nil
		case rec, ok := <-in:
			if !ok {
				logrus.Debug("Log sink input channel closed")
				return nil
			}
			logrus.WithFields(logrus.Fields{
				"src":       rec.Src.String(),
				"dst":       rec.Dst.String(),
				"src_port":  rec.SrcPort,
				"dst_port":  rec.DstPort,
				"protocol":  rec.Protocol,
				"direction": rec.Direction,
			}).Warn("spoofed flow record")
			s.stats.PacketsWritten++
		}
	}
}
