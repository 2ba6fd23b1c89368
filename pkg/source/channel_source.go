package source

import (
	"context"
	"sync"

	"github.com/cesnet/ipspoof-detector/pkg/types"
)

// ChannelSource feeds FlowRecords supplied programmatically, for tests and
// for embedding the detector as a library rather than a standalone
// process.
type ChannelSource struct {
	output chan *types.FlowRecord
}

// NewChannelSource builds a ChannelSource with the given buffer size.
func NewChannelSource(bufSize int) *ChannelSource {
	return &ChannelSource{output: make(chan *types.FlowRecord, bufSize)}
}

func (s *ChannelSource) Output() <-chan *types.FlowRecord { return s.output }

func (s *ChannelSource) SetFilter(filter string) error { return nil }

// Start is a no-op: the caller drives Send/Close directly.
func (s *ChannelSource) Start(ctx context.Context, wg *sync.WaitGroup) error { return nil }

// Send delivers one record, respecting ctx cancellation.
func (s *ChannelSource) Send(ctx context.Context, r *types.FlowRecord) bool {
	select {
	case s.output <- r:
		return true
	case <-ctx.Done():
		return false
	}
}

// Close signals that no further records will be sent.
func (s *ChannelSource) Close() { close(s.output) }
