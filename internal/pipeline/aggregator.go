package pipeline

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	goldap "github.com/go-ldap/ldap/v3"
	"go.uber.org/zap"

	"github.com/isometry/accountctl/internal/output"
)

// Sources is the configured set of target inputs, in submission
// precedence order: explicit DNs, DN files, explicit filters, filter
// files, explicit user IDs, user-ID files.
type Sources struct {
	DNs         []string
	DNFiles     []string
	Filters     []string
	FilterFiles []string
	UserIDs     []string
	UserIDFiles []string
}

// Empty reports whether no target source is configured.
func (s *Sources) Empty() bool {
	return len(s.DNs) == 0 && len(s.DNFiles) == 0 &&
		len(s.Filters) == 0 && len(s.FilterFiles) == 0 &&
		len(s.UserIDs) == 0 && len(s.UserIDFiles) == 0
}

// aggregate submits every configured target source in precedence
// order. Direct DNs go to the operation queue; filters and user IDs
// go to the resolution queue. Cancellation is checked before each
// source and each line; on cancellation submission stops immediately.
func (p *Pipeline) aggregate() {
	for _, dn := range p.cfg.Sources.DNs {
		if p.coord.Context().Err() != nil {
			return
		}
		p.submitDirect(OperationJob{DN: dn, Source: "arg", Operations: p.cfg.Operations})
	}

	for _, path := range p.cfg.Sources.DNFiles {
		if !p.eachLine(path, func(line, source string) {
			if _, err := goldap.ParseDN(line); err != nil {
				p.sourceFailure(line, source, fmt.Sprintf("invalid distinguished name: %v", err))
				return
			}
			p.submitDirect(OperationJob{DN: line, Source: source, Operations: p.cfg.Operations})
		}) {
			return
		}
	}

	for _, filter := range p.cfg.Sources.Filters {
		if p.coord.Context().Err() != nil {
			return
		}
		p.submitFilter(filter, "arg")
	}

	for _, path := range p.cfg.Sources.FilterFiles {
		if !p.eachLine(path, func(line, source string) {
			p.submitFilter(line, source)
		}) {
			return
		}
	}

	for _, userID := range p.cfg.Sources.UserIDs {
		if p.coord.Context().Err() != nil {
			return
		}
		p.submitResolution(TargetIdentifier{Kind: KindUserID, Value: userID, Source: "arg"})
	}

	for _, path := range p.cfg.Sources.UserIDFiles {
		if !p.eachLine(path, func(line, source string) {
			p.submitResolution(TargetIdentifier{Kind: KindUserID, Value: line, Source: source})
		}) {
			return
		}
	}
}

// submitFilter validates the filter syntax before submission; a
// malformed filter becomes a failure record rather than a resolver
// error.
func (p *Pipeline) submitFilter(filter, source string) {
	if _, err := goldap.CompileFilter(filter); err != nil {
		p.sourceFailure(filter, source, fmt.Sprintf("invalid search filter: %v", err))
		return
	}
	p.submitResolution(TargetIdentifier{Kind: KindFilter, Value: filter, Source: source})
}

// eachLine reads a line-oriented source file, skipping blank and
// comment lines, and invokes fn per remaining line. An unreadable
// file becomes one failure record; reading stops early only on
// cancellation. Returns false when the run was cancelled.
func (p *Pipeline) eachLine(path string, fn func(line, source string)) bool {
	f, err := os.Open(path)
	if err != nil {
		p.sourceFailure(path, path, fmt.Sprintf("cannot read source file: %v", err))
		return p.coord.Context().Err() == nil
	}
	defer f.Close()

	lineNo := 0
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		if p.coord.Context().Err() != nil {
			return false
		}
		lineNo++

		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fn(line, fmt.Sprintf("%s:%d", path, lineNo))
	}
	if err := scanner.Err(); err != nil {
		p.sourceFailure(path, path, fmt.Sprintf("error reading source file: %v", err))
	}
	return p.coord.Context().Err() == nil
}

// submitDirect places one operation job on the operation queue,
// returning early if the run is cancelled while the queue is full.
func (p *Pipeline) submitDirect(job OperationJob) {
	select {
	case p.directQueue <- job:
	case <-p.coord.Context().Done():
	}
}

// submitResolution places one indirect identifier on the resolution
// queue.
func (p *Pipeline) submitResolution(id TargetIdentifier) {
	job := ResolutionJob{
		Identifier:      id,
		BaseDN:          p.cfg.BaseDN,
		UserIDAttribute: p.cfg.UserIDAttribute,
		PageSize:        p.cfg.PageSize,
	}
	select {
	case p.resolutionQueue <- job:
	case <-p.coord.Context().Done():
	}
}

// sourceFailure records a malformed or unreadable input as a failure
// without aborting the source.
func (p *Pipeline) sourceFailure(value, source, diagnostic string) {
	p.logger.Warn("skipping malformed target source entry",
		zap.String("value", value),
		zap.String("source", source))
	p.sink.Record(&output.Record{
		DN:         value,
		Failed:     true,
		ErrorType:  output.FailureSource,
		Diagnostic: diagnostic,
	})
}
