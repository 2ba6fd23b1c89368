package pipeline

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/cesnet/ipspoof-detector/pkg/config"
	"github.com/cesnet/ipspoof-detector/pkg/metrics"
	"github.com/cesnet/ipspoof-detector/pkg/types"
)

type pipeline struct {
	source     Source
	processors []Processor
	sink       Sink
	running    bool
	mu         sync.Mutex
	errChan    chan error
	status     string
	metrics    map[string]*metrics.ProcessorMetrics
	config     *config.Config
	startTime  time.Time
	wg         sync.WaitGroup
}

func NewPipeline() Pipeline {
	return &pipeline{
		processors: make([]Processor, 0),
		errChan:    make(chan error, 1),
		metrics:    make(map[string]*metrics.ProcessorMetrics),
		status:     "initialized",
	}
}

func (p *pipeline) AddProcessor(processor Processor) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.running {
		return fmt.Errorf("cannot add processor while pipeline is running")
	}

	p.processors = append(p.processors, processor)
	sort.Slice(p.processors, func(i, j int) bool {
		return p.processors[i].Stage() < p.processors[j].Stage()
	})

	return nil
}

func (p *pipeline) SetSource(source Source) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.source = source
}

func (p *pipeline) SetSink(sink Sink) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sink = sink
}

func (p *pipeline) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return types.NewPipelineError("start", fmt.Errorf("pipeline already running"))
	}

	p.wg = sync.WaitGroup{}

	p.running = true
	p.startTime = time.Now()
	p.status = "starting"
	p.metrics = make(map[string]*metrics.ProcessorMetrics)
	p.errChan = make(chan error, 100)
	p.mu.Unlock()

	for _, proc := range p.processors {
		p.metrics[proc.Name()] = &metrics.ProcessorMetrics{}
	}

	logrus.Info("Starting pipeline")

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		p.handleErrors(ctx)
	}()

	var input <-chan *types.FlowRecord = p.source.Output()
	var err error

	for _, proc := range p.processors {
		logrus.Debugf("Starting processor at stage: %v", proc.Stage())
		// each stage's output feeds directly into the next stage's input
		input, err = proc.Process(ctx, input, &p.wg)
		if err != nil {
			logrus.Errorf("Failed to start processor at stage %v: %v", proc.Stage(), err)
			p.errChan <- fmt.Errorf("failed to start processor: %w", err)
		}
	}

	// 1. check that every processor is ready
	processorReady := make(chan struct{})
	go func() {
		for _, processor := range p.processors {
			if err := processor.CheckReady(); err != nil {
				logrus.Errorf("Processor %s not ready: %v", processor.Name(), err)
				p.errChan <- fmt.Errorf("processor not ready: %w", err)
				return
			}
		}
		close(processorReady)
	}()

	// 2. wait for readiness, bounded by a timeout
	select {
	case <-processorReady:
		logrus.Debug("All processors are ready")
	case <-time.After(10 * time.Second):
		return types.NewPipelineError("start", fmt.Errorf("timeout waiting for processors to be ready"))
	}

	logrus.Info("All processors have started successfully")

	// 3. processors are ready, now start the sink
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		if err := p.sink.Consume(ctx, input); err != nil {
			logrus.Errorf("Sink error: %v", err)
			p.errChan <- fmt.Errorf("sink error: %w", err)
		}
	}()

	// 4. wait for the sink
	select {
	case <-p.sink.Ready():
		logrus.Debug("Sink is ready")
	case <-time.After(5 * time.Second):
		return types.NewPipelineError("start", fmt.Errorf("timeout waiting for sink to be ready"))
	}

	logrus.Info("Sink have started successfully")

	// 5. finally start the source, which sets the data flowing
	if err := p.source.Start(ctx, &p.wg); err != nil {
		logrus.Errorf("Failed to start source: %v", err)
		return fmt.Errorf("failed to start source: %w", err)
	}

	logrus.Info("Data source have started successfully")

	p.status = "running"
	logrus.Info("Pipeline is now running")
	return nil
}

func (p *pipeline) Stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.running {
		return nil
	}

	p.status = "stopping"
	logrus.Info("Pipeline stopping...")

	p.running = false

	if p.errChan != nil {
		close(p.errChan)
		p.errChan = nil
	}

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		logrus.Info("All processors completed gracefully")
	case <-time.After(30 * time.Second):
		logrus.Warn("Timeout waiting for processors to complete")
	}

	for _, processor := range p.processors {
		if summarizer, ok := processor.(interface{ MetricsSnapshot() map[string]uint64 }); ok {
			logrus.WithFields(snapshotToFields(summarizer.MetricsSnapshot())).
				Infof("Final counters for %s", processor.Name())
		}
		if cleaner, ok := processor.(interface{ Cleanup() error }); ok {
			if err := cleaner.Cleanup(); err != nil {
				logrus.Errorf("Error cleaning up processor %s: %v", processor.Name(), err)
			}
		}
	}

	p.status = "stopped"
	p.processors = nil
	p.metrics = make(map[string]*metrics.ProcessorMetrics)
	p.startTime = time.Time{}

	logrus.Info("Pipeline stopped and cleaned up")
	return nil
}

// snapshotToFields adapts a processor's MetricsSnapshot to logrus.Fields so
// the shutdown summary (records by family, spoofed totals per filter,
// spec.md §7) reads as structured fields rather than a formatted string.
func snapshotToFields(snapshot map[string]uint64) logrus.Fields {
	fields := make(logrus.Fields, len(snapshot))
	for k, v := range snapshot {
		fields[k] = v
	}
	return fields
}

func (p *pipeline) handleErrors(ctx context.Context) {
	logrus.Debug("Starting error handler")
	for {
		select {
		case err, ok := <-p.errChan:
			if !ok {
				logrus.Debug("Error channel closed, stopping error handler")
				return
			}
			logrus.Errorf("Pipeline error: %v", err)
		case <-ctx.Done():
			logrus.Debug("Context cancelled, stopping error handler")
			return
		}
	}
}

func (p *pipeline) GetStats() map[string]interface{} {
	p.mu.Lock()
	defer p.mu.Unlock()

	return map[string]interface{}{
		"status":     p.status,
		"uptime":     time.Since(p.startTime).String(),
		"processors": len(p.processors),
		"metrics":    p.metrics,
	}
}

func (p *pipeline) GetMetrics() map[string]*metrics.ProcessorMetrics {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.metrics
}

func (p *pipeline) SetConfig(cfg *config.Config) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.running {
		return types.NewPipelineError("config", fmt.Errorf("cannot set config while pipeline is running"))
	}

	if err := cfg.Validate(); err != nil {
		return types.NewPipelineError("config", err)
	}

	p.config = cfg
	return nil
}

func (p *pipeline) Status() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.status
}
