// Package pipeline implements the concurrent selection-and-execution
// engine: an input aggregator feeding a search resolver pool and an
// operation processor pool over bounded queues, with a shared rate
// gate, a result sink, and a completion/cancellation coordinator.
package pipeline

import (
	"context"

	"github.com/isometry/accountctl/internal/ldap"
	"github.com/isometry/accountctl/internal/output"
	"github.com/isometry/accountctl/internal/pwpstate"
)

// IdentifierKind tags how a target identifier selects entries.
type IdentifierKind int

const (
	// KindDN names one entry directly by distinguished name.
	KindDN IdentifierKind = iota
	// KindFilter selects entries via a directory search filter.
	KindFilter
	// KindUserID selects one entry via an equality search on the
	// configured user-ID attribute.
	KindUserID
)

// String returns the string representation of the identifier kind.
func (k IdentifierKind) String() string {
	switch k {
	case KindDN:
		return "dn"
	case KindFilter:
		return "filter"
	case KindUserID:
		return "user-id"
	default:
		return "unknown"
	}
}

// TargetIdentifier is one configured target: a direct DN, a search
// filter, or a user ID. Source records which input produced it, for
// diagnostics only.
type TargetIdentifier struct {
	Kind   IdentifierKind
	Value  string
	Source string
}

// ResolutionJob is an indirect identifier paired with everything
// needed to resolve it to distinguished names.
type ResolutionJob struct {
	Identifier      TargetIdentifier
	BaseDN          string
	UserIDAttribute string
	PageSize        int
}

// OperationJob is one unit of executable work: a resolved DN plus the
// run's operation list. Self-contained; no further lookups needed.
type OperationJob struct {
	DN         string
	Source     string
	Operations []pwpstate.Operation
}

// Directory is the subset of the LDAP client the pipeline depends on.
// *ldap.Client satisfies it; tests substitute an in-memory fake.
type Directory interface {
	Search(ctx context.Context, req *ldap.SearchRequest) (*ldap.SearchResult, error)
	SearchPaged(ctx context.Context, req *ldap.SearchRequest, fn ldap.PageFunc) error
	PasswordPolicyState(ctx context.Context, targetDN string, ops []pwpstate.Operation) (*pwpstate.StateResult, error)
}

// Recorder receives one terminal record per target. *output.Sink
// satisfies it.
type Recorder interface {
	Record(rec *output.Record)
}
