package pipeline

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/isometry/accountctl/internal/pwpstate"
	"github.com/isometry/accountctl/internal/rate"
)

// Default pool and queue sizes, applied by New when the corresponding
// Config field is zero.
const (
	DefaultResolverWorkers  = 2
	DefaultOperationWorkers = 8
	DefaultQueueDepth       = 100
)

// Config selects the run's targets, operation, and concurrency shape.
type Config struct {
	Sources    Sources
	Operations []pwpstate.Operation

	BaseDN          string
	UserIDAttribute string
	PageSize        int

	ResolverWorkers  int
	OperationWorkers int
	QueueDepth       int
}

// Pipeline wires the aggregator, resolver pool, and processor pool
// over bounded queues. One Pipeline serves one run.
type Pipeline struct {
	cfg    Config
	dir    Directory
	gate   *rate.Gate
	sink   Recorder
	logger *zap.Logger
	coord  *Coordinator

	directQueue     chan OperationJob
	resolutionQueue chan ResolutionJob
}

// New creates a pipeline over the given collaborators. A nil gate
// means unlimited rate; a nil logger is replaced with a noop logger.
func New(cfg Config, dir Directory, gate *rate.Gate, sink Recorder, logger *zap.Logger) *Pipeline {
	if cfg.ResolverWorkers <= 0 {
		cfg.ResolverWorkers = DefaultResolverWorkers
	}
	if cfg.OperationWorkers <= 0 {
		cfg.OperationWorkers = DefaultOperationWorkers
	}
	if cfg.QueueDepth <= 0 {
		cfg.QueueDepth = DefaultQueueDepth
	}
	if gate == nil {
		gate = rate.NewGate(0)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Pipeline{
		cfg:             cfg,
		dir:             dir,
		gate:            gate,
		sink:            sink,
		logger:          logger,
		directQueue:     make(chan OperationJob, cfg.QueueDepth),
		resolutionQueue: make(chan ResolutionJob, cfg.QueueDepth),
	}
}

// Run executes the pipeline to completion. It returns nil when every
// source was drained, even if individual targets failed; it returns
// the context error when the run was cancelled first. Run may be
// called once per Pipeline.
func (p *Pipeline) Run(ctx context.Context) error {
	p.coord = NewCoordinator(ctx)
	defer p.coord.cancel()

	// Fold parent-context cancellation into the coordinator so the
	// run state reflects draining.
	go func() {
		select {
		case <-ctx.Done():
			p.coord.RequestCancellation()
		case <-p.coord.operationsDone:
		}
	}()

	start := time.Now()
	p.logger.Info("pipeline starting",
		zap.Int("resolver_workers", p.cfg.ResolverWorkers),
		zap.Int("operation_workers", p.cfg.OperationWorkers))

	resolversDone := make(chan struct{})
	go func() {
		defer close(resolversDone)
		p.runResolvers()
	}()

	processorsDone := make(chan struct{})
	go func() {
		defer close(processorsDone)
		p.runProcessors()
	}()

	// Sources are read on the controlling goroutine: file and argument
	// reads are cheap relative to the network operations downstream.
	p.aggregate()

	close(p.resolutionQueue)
	p.coord.MarkAllResolutionSourcesSubmitted()

	// Resolution output also feeds the operation queue, so the queue
	// stays open until the resolver pool drains.
	<-resolversDone
	p.coord.signalResolutionComplete()

	close(p.directQueue)
	p.coord.MarkAllDirectIdentifiersEnqueued()

	<-processorsDone
	p.coord.signalOperationsComplete()

	p.logger.Info("pipeline finished",
		zap.Stringer("state", p.coord.State()),
		zap.Duration("elapsed", time.Since(start)))

	if err := ctx.Err(); err != nil {
		p.coord.RequestCancellation()
		return err
	}
	return nil
}

// Coordinator returns the run's coordinator, available once Run has
// started. External callers use it to request cancellation and to
// wait on stage completion.
func (p *Pipeline) Coordinator() *Coordinator {
	return p.coord
}

// ErrNoSources is returned by Validate when no target source is
// configured.
var ErrNoSources = errors.New("no target sources configured")

// Validate checks the configuration before any stage starts.
func (c *Config) Validate() error {
	if c.Sources.Empty() {
		return ErrNoSources
	}
	return nil
}
