package pipeline

import (
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/isometry/accountctl/internal/output"
	"github.com/isometry/accountctl/internal/pwpstate"
)

// runProcessors starts the operation worker pool and blocks until the
// operation queue is drained or the run is cancelled. Every dequeued
// job produces exactly one terminal record.
func (p *Pipeline) runProcessors() {
	var group errgroup.Group
	for i := 0; i < p.cfg.OperationWorkers; i++ {
		worker := i
		group.Go(func() error {
			p.processWorker(worker)
			return nil
		})
	}
	_ = group.Wait()
}

func (p *Pipeline) processWorker(worker int) {
	ctx := p.coord.Context()
	logger := p.logger.With(zap.Int("worker", worker))

	for {
		select {
		case <-ctx.Done():
			return
		case job, ok := <-p.directQueue:
			if !ok {
				return
			}
			p.process(logger, job)
		}
	}
}

// process executes one operation job: wait for a rate permit, invoke
// the extended operation, and record the outcome. Stale-connection
// retries happen inside the directory client; every other failure is
// terminal for the job because retrying an already-applied mutation
// could double-apply it.
func (p *Pipeline) process(logger *zap.Logger, job OperationJob) {
	if err := p.gate.Acquire(p.coord.Context()); err != nil {
		// Cancelled while waiting for a permit; the job was never
		// attempted.
		return
	}

	result, err := p.dir.PasswordPolicyState(p.coord.Context(), job.DN, job.Operations)
	if err != nil {
		if p.coord.Context().Err() != nil {
			return
		}
		logger.Debug("account operation failed",
			zap.String("dn", job.DN),
			zap.Error(err))
		p.sink.Record(&output.Record{
			DN:         job.DN,
			Failed:     true,
			ErrorType:  output.FailureOperation,
			Diagnostic: err.Error(),
		})
		return
	}

	p.sink.Record(&output.Record{
		DN:         job.DN,
		Attributes: resultAttributes(result),
	})
}

// resultAttributes renders the response operations as named attribute
// groups, preserving server order.
func resultAttributes(result *pwpstate.StateResult) []output.Attribute {
	if result == nil {
		return nil
	}

	attrs := make([]output.Attribute, 0, len(result.Operations))
	for _, op := range result.Operations {
		attrs = append(attrs, output.Attribute{
			Name:   pwpstate.AttributeName(op.Type),
			Values: op.Values,
		})
	}
	return attrs
}
