package pipeline

import (
	"context"
	"sync"
	"sync/atomic"
)

// RunState is the lifecycle state of one pipeline run.
type RunState int32

const (
	// StateRunning means stages are accepting and executing work.
	StateRunning RunState = iota
	// StateDraining means cancellation was requested: stages stop
	// taking new work but finish what is in flight.
	StateDraining
	// StateTerminated means every stage has drained.
	StateTerminated
)

// String returns the string representation of the run state.
func (s RunState) String() string {
	switch s {
	case StateRunning:
		return "running"
	case StateDraining:
		return "draining"
	case StateTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// Coordinator tracks the run's completion flags and cancellation
// signal. The two submission flags are monotonic: set exactly once,
// readable any number of times without blocking. Cancellation is
// idempotent and observed by every stage through the derived context.
type Coordinator struct {
	ctx    context.Context
	cancel context.CancelFunc

	allResolutionSourcesSubmitted atomic.Bool
	allDirectIdentifiersEnqueued  atomic.Bool
	cancelled                     atomic.Bool
	state                         atomic.Int32

	cancelOnce     sync.Once
	resolutionOnce sync.Once
	operationsOnce sync.Once

	resolutionDone chan struct{}
	operationsDone chan struct{}
}

// NewCoordinator creates a coordinator for one run. The derived
// context is cancelled by RequestCancellation or when parent is
// cancelled.
func NewCoordinator(parent context.Context) *Coordinator {
	ctx, cancel := context.WithCancel(parent)
	return &Coordinator{
		ctx:            ctx,
		cancel:         cancel,
		resolutionDone: make(chan struct{}),
		operationsDone: make(chan struct{}),
	}
}

// Context returns the run context observed by every stage.
func (c *Coordinator) Context() context.Context {
	return c.ctx
}

// RequestCancellation asks every stage to stop taking new work.
// Idempotent. In-flight jobs finish, already-produced records remain
// valid.
func (c *Coordinator) RequestCancellation() {
	c.cancelOnce.Do(func() {
		c.cancelled.Store(true)
		c.state.CompareAndSwap(int32(StateRunning), int32(StateDraining))
		c.cancel()
	})
}

// Cancelled reports whether cancellation has been requested.
func (c *Coordinator) Cancelled() bool {
	return c.cancelled.Load()
}

// State returns the run's current lifecycle state.
func (c *Coordinator) State() RunState {
	return RunState(c.state.Load())
}

// MarkAllResolutionSourcesSubmitted records that the aggregator has
// submitted every filter and user-ID source. Monotonic.
func (c *Coordinator) MarkAllResolutionSourcesSubmitted() {
	c.allResolutionSourcesSubmitted.Store(true)
}

// AllResolutionSourcesSubmitted reports the resolution-submission flag.
func (c *Coordinator) AllResolutionSourcesSubmitted() bool {
	return c.allResolutionSourcesSubmitted.Load()
}

// MarkAllDirectIdentifiersEnqueued records that every direct and
// resolved identifier has been placed on the operation queue.
// Monotonic.
func (c *Coordinator) MarkAllDirectIdentifiersEnqueued() {
	c.allDirectIdentifiersEnqueued.Store(true)
}

// AllDirectIdentifiersEnqueued reports the direct-enqueue flag.
func (c *Coordinator) AllDirectIdentifiersEnqueued() bool {
	return c.allDirectIdentifiersEnqueued.Load()
}

// signalResolutionComplete marks the resolver stage drained.
func (c *Coordinator) signalResolutionComplete() {
	c.resolutionOnce.Do(func() { close(c.resolutionDone) })
}

// signalOperationsComplete marks the processor stage drained and the
// run terminated.
func (c *Coordinator) signalOperationsComplete() {
	c.operationsOnce.Do(func() {
		c.state.Store(int32(StateTerminated))
		close(c.operationsDone)
	})
}

// WaitForResolution blocks until the resolver stage has consumed every
// submitted resolution job and enqueued its output.
func (c *Coordinator) WaitForResolution() {
	<-c.resolutionDone
}

// WaitForOperations blocks until the operation queue is closed and
// every in-flight job has produced a terminal record.
func (c *Coordinator) WaitForOperations() {
	<-c.operationsDone
}
