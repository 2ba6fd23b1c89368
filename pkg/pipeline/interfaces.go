package pipeline

import (
	"context"
	"sync"

	"github.com/cesnet/ipspoof-detector/pkg/config"
	"github.com/cesnet/ipspoof-detector/pkg/metrics"
	"github.com/cesnet/ipspoof-detector/pkg/types"
)

// Source produces flow records for the pipeline to consume.
type Source interface {
	// Start begins producing records, registering its goroutine on wg.
	Start(ctx context.Context, wg *sync.WaitGroup) error
	// Output returns the channel records are delivered on.
	Output() <-chan *types.FlowRecord
	// SetFilter narrows which records the source will emit (BPF-style for
	// live sources, a no-op for replay/channel sources).
	SetFilter(filter string) error
}

// Processor is one stage of the detection pipeline.
type Processor interface {
	// Process consumes in and returns a channel of records to hand to the
	// next stage, spawning its own worker goroutine registered on wg.
	Process(ctx context.Context, in <-chan *types.FlowRecord, wg *sync.WaitGroup) (<-chan *types.FlowRecord, error)
	// Stage reports where this processor sits in the fixed pipeline order.
	Stage() types.Stage
	// Name identifies the processor for logging and metrics.
	Name() string
	// CheckReady reports whether the processor has everything it needs to
	// run (loaded prefix tables, compiled policy rules, and so on).
	CheckReady() error
}

// Sink is the terminal consumer of a pipeline run.
type Sink interface {
	// Consume drains in until it closes or ctx is cancelled.
	Consume(ctx context.Context, in <-chan *types.FlowRecord) error
	// Ready signals once the sink has completed its own setup.
	Ready() <-chan struct{}
}

// Pipeline wires a Source, an ordered chain of Processors, and a Sink.
type Pipeline interface {
	AddProcessor(processor Processor) error
	SetSource(source Source)
	SetSink(sink Sink)
	Start(ctx context.Context) error
	Stop() error
	GetMetrics() map[string]*metrics.ProcessorMetrics
	SetConfig(*config.Config) error
	Status() string
}
