package pipeline

import (
	"fmt"

	goldap "github.com/go-ldap/ldap/v3"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/isometry/accountctl/internal/ldap"
	"github.com/isometry/accountctl/internal/output"
)

// runResolvers starts the resolver worker pool and blocks until the
// resolution queue is drained or the run is cancelled. Per-job
// failures are routed to the sink, never returned.
func (p *Pipeline) runResolvers() {
	var group errgroup.Group
	for i := 0; i < p.cfg.ResolverWorkers; i++ {
		worker := i
		group.Go(func() error {
			p.resolveWorker(worker)
			return nil
		})
	}
	_ = group.Wait()
}

func (p *Pipeline) resolveWorker(worker int) {
	ctx := p.coord.Context()
	logger := p.logger.With(zap.Int("resolver", worker))

	for {
		select {
		case <-ctx.Done():
			return
		case job, ok := <-p.resolutionQueue:
			if !ok {
				return
			}
			switch job.Identifier.Kind {
			case KindFilter:
				p.resolveFilter(logger, job)
			case KindUserID:
				p.resolveUserID(logger, job)
			}
		}
	}
}

// resolveFilter streams a paged search for the job's filter, turning
// every matched entry into an operation job.
func (p *Pipeline) resolveFilter(logger *zap.Logger, job ResolutionJob) {
	matched := 0
	err := p.dir.SearchPaged(p.coord.Context(), &ldap.SearchRequest{
		BaseDN:     job.BaseDN,
		Scope:      ldap.ScopeWholeSubtree,
		Filter:     job.Identifier.Value,
		Attributes: []string{"1.1"},
		PageSize:   job.PageSize,
	}, func(entries []*goldap.Entry) error {
		for _, entry := range entries {
			matched++
			p.submitDirect(OperationJob{
				DN:         entry.DN,
				Source:     job.Identifier.Source,
				Operations: p.cfg.Operations,
			})
		}
		return p.coord.Context().Err()
	})
	if err != nil {
		if p.coord.Context().Err() != nil {
			return
		}
		p.resolutionFailure(job.Identifier, searchDiagnostic(job, err))
		return
	}

	logger.Debug("filter resolved",
		zap.String("filter", job.Identifier.Value),
		zap.Int("matched", matched))
}

// resolveUserID looks the identifier up by equality search. Values
// shaped like a DN, GUID, SID, or UPN are translated to the matching
// filter form; anything else matches on the user-ID attribute. Zero
// matches and multiple matches are both resolution failures.
func (p *Pipeline) resolveUserID(logger *zap.Logger, job ResolutionJob) {
	filter, err := ldap.IdentifierFilter(job.Identifier.Value, job.UserIDAttribute)
	if err != nil {
		p.resolutionFailure(job.Identifier, fmt.Sprintf("invalid user identifier: %v", err))
		return
	}

	result, err := p.dir.Search(p.coord.Context(), &ldap.SearchRequest{
		BaseDN:     job.BaseDN,
		Scope:      ldap.ScopeWholeSubtree,
		Filter:     filter,
		Attributes: []string{"objectSid"},
	})
	if err != nil {
		if p.coord.Context().Err() != nil {
			return
		}
		p.resolutionFailure(job.Identifier, searchDiagnostic(job, err))
		return
	}

	switch len(result.Entries) {
	case 0:
		p.resolutionFailure(job.Identifier, "no entry matched the identifier")
	case 1:
		entry := result.Entries[0]
		logger.Debug("user identifier resolved",
			zap.String("identifier", job.Identifier.Value),
			zap.String("dn", entry.DN),
			zap.String("sid", ldap.EntrySID(entry)))
		p.submitDirect(OperationJob{
			DN:         entry.DN,
			Source:     job.Identifier.Source,
			Operations: p.cfg.Operations,
		})
	default:
		p.resolutionFailure(job.Identifier,
			fmt.Sprintf("identifier is ambiguous: matched %d entries", len(result.Entries)))
	}
}

// searchDiagnostic produces the reject-record diagnostic for a failed
// resolution search. A no-such-object result means the search base
// itself is wrong, which is worth calling out over the raw error.
func searchDiagnostic(job ResolutionJob, err error) string {
	if ldap.IsNotFoundError(err) {
		return fmt.Sprintf("search base %q does not exist: %v", job.BaseDN, err)
	}
	return fmt.Sprintf("search failed: %v", err)
}

func (p *Pipeline) resolutionFailure(id TargetIdentifier, diagnostic string) {
	p.logger.Warn("target resolution failed",
		zap.String("identifier", id.Value),
		zap.Stringer("kind", id.Kind),
		zap.String("source", id.Source))
	p.sink.Record(&output.Record{
		DN:         id.Value,
		Failed:     true,
		ErrorType:  output.FailureResolution,
		Diagnostic: diagnostic,
	})
}
