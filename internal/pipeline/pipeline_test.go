package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	goldap "github.com/go-ldap/ldap/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/isometry/accountctl/internal/ldap"
	"github.com/isometry/accountctl/internal/output"
	"github.com/isometry/accountctl/internal/pwpstate"
	"github.com/isometry/accountctl/internal/rate"
)

// fakeDirectory is an in-memory Directory: searches are answered from
// a filter-to-DN table and every password-policy-state invocation is
// recorded.
type fakeDirectory struct {
	mu         sync.Mutex
	matches    map[string][]string // filter -> matched DNs
	searchErrs map[string]error    // filter -> search error
	opErrs     map[string]error    // DN -> operation error
	processed  []string            // DNs executed, in order
}

func newFakeDirectory() *fakeDirectory {
	return &fakeDirectory{
		matches:    make(map[string][]string),
		searchErrs: make(map[string]error),
		opErrs:     make(map[string]error),
	}
}

func (d *fakeDirectory) searchErrFor(filter string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.searchErrs[filter]
}

func (d *fakeDirectory) entriesFor(filter string) []*goldap.Entry {
	d.mu.Lock()
	defer d.mu.Unlock()

	var entries []*goldap.Entry
	for _, dn := range d.matches[filter] {
		entries = append(entries, goldap.NewEntry(dn, nil))
	}
	return entries
}

func (d *fakeDirectory) Search(_ context.Context, req *ldap.SearchRequest) (*ldap.SearchResult, error) {
	if err := d.searchErrFor(req.Filter); err != nil {
		return nil, err
	}
	entries := d.entriesFor(req.Filter)
	return &ldap.SearchResult{Entries: entries, Total: len(entries)}, nil
}

func (d *fakeDirectory) SearchPaged(_ context.Context, req *ldap.SearchRequest, fn ldap.PageFunc) error {
	if err := d.searchErrFor(req.Filter); err != nil {
		return err
	}
	entries := d.entriesFor(req.Filter)

	pageSize := req.PageSize
	if pageSize <= 0 {
		pageSize = len(entries)
	}
	for len(entries) > 0 {
		n := min(pageSize, len(entries))
		if err := fn(entries[:n]); err != nil {
			return err
		}
		entries = entries[n:]
	}
	return nil
}

func (d *fakeDirectory) PasswordPolicyState(_ context.Context, targetDN string, ops []pwpstate.Operation) (*pwpstate.StateResult, error) {
	d.mu.Lock()
	d.processed = append(d.processed, targetDN)
	err := d.opErrs[targetDN]
	d.mu.Unlock()

	if err != nil {
		return nil, err
	}
	return &pwpstate.StateResult{
		TargetDN: targetDN,
		Operations: []pwpstate.Operation{
			{Type: pwpstate.OpTypeGetPasswordChangedTime, Values: []string{"20240101000000Z"}},
		},
	}, nil
}

func (d *fakeDirectory) processedCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.processed)
}

// memorySink collects records for assertions.
type memorySink struct {
	mu      sync.Mutex
	records []*output.Record
}

func (s *memorySink) Record(rec *output.Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, rec)
}

func (s *memorySink) all() []*output.Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*output.Record(nil), s.records...)
}

func (s *memorySink) failures() []*output.Record {
	var out []*output.Record
	for _, rec := range s.all() {
		if rec.Failed {
			out = append(out, rec)
		}
	}
	return out
}

func getAllOps() []pwpstate.Operation {
	return nil // empty operation list requests every state property
}

func writeLines(t *testing.T, name string, lines ...string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	content := ""
	for _, line := range lines {
		content += line + "\n"
	}
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestPipelineEndToEnd(t *testing.T) {
	dir := newFakeDirectory()
	dir.matches["(department=eng)"] = []string{
		"uid=resolved1,ou=People,dc=example,dc=com",
		"uid=resolved2,ou=People,dc=example,dc=com",
	}
	dir.matches["(uid=jdoe)"] = []string{"uid=jdoe,ou=People,dc=example,dc=com"}

	userIDFile := writeLines(t, "users.txt",
		"# user IDs",
		"jdoe",
		"",
		"ghost",
	)

	sink := &memorySink{}
	p := New(Config{
		Sources: Sources{
			DNs: []string{
				"uid=direct1,ou=People,dc=example,dc=com",
				"uid=direct2,ou=People,dc=example,dc=com",
				"uid=direct3,ou=People,dc=example,dc=com",
			},
			Filters:     []string{"(department=eng)"},
			UserIDFiles: []string{userIDFile},
		},
		Operations:       getAllOps(),
		BaseDN:           "dc=example,dc=com",
		OperationWorkers: 2,
	}, dir, nil, sink, nil)

	require.NoError(t, p.Run(context.Background()))

	// 3 direct + 2 resolved + 1 valid user ID succeed; the unmatched
	// user ID fails. Exactly one terminal record per target.
	records := sink.all()
	assert.Len(t, records, 7)

	failures := sink.failures()
	require.Len(t, failures, 1)
	assert.Equal(t, "ghost", failures[0].DN)
	assert.Equal(t, output.FailureResolution, failures[0].ErrorType)

	seen := make(map[string]int)
	for _, dn := range dir.processed {
		seen[dn]++
	}
	assert.Len(t, seen, 6)
	for dn, count := range seen {
		assert.Equal(t, 1, count, "DN %s executed %d times", dn, count)
	}

	assert.True(t, p.Coordinator().AllResolutionSourcesSubmitted())
	assert.True(t, p.Coordinator().AllDirectIdentifiersEnqueued())
	assert.Equal(t, StateTerminated, p.Coordinator().State())
}

func TestPipelineRatePacing(t *testing.T) {
	if testing.Short() {
		t.Skip("timing test")
	}

	dir := newFakeDirectory()

	var dns []string
	for i := 0; i < 6; i++ {
		dns = append(dns, fmt.Sprintf("uid=user%d,ou=People,dc=example,dc=com", i))
	}

	sink := &memorySink{}
	p := New(Config{
		Sources:          Sources{DNs: dns},
		Operations:       getAllOps(),
		OperationWorkers: 2,
	}, dir, rate.NewGate(2), sink, nil)

	start := time.Now()
	require.NoError(t, p.Run(context.Background()))
	elapsed := time.Since(start)

	assert.Len(t, sink.all(), 6)
	// One immediate permit and five half-second refills: 6 operations
	// at 2/sec cannot finish in under 2.5 seconds.
	assert.GreaterOrEqual(t, elapsed, 2500*time.Millisecond,
		"6 ops at 2/sec finished too fast: %v", elapsed)
}

func TestPipelineCancellation(t *testing.T) {
	dir := newFakeDirectory()

	var dns []string
	for i := 0; i < 1000; i++ {
		dns = append(dns, fmt.Sprintf("uid=user%d,ou=People,dc=example,dc=com", i))
	}

	sink := &memorySink{}
	p := New(Config{
		Sources:          Sources{DNs: dns},
		Operations:       getAllOps(),
		OperationWorkers: 1,
	}, dir, rate.NewGate(1), sink, nil)

	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("pipeline did not terminate after cancellation")
	}

	assert.Less(t, dir.processedCount(), 5,
		"too many operations executed after immediate cancellation")
	assert.True(t, p.Coordinator().Cancelled())
	assert.Equal(t, StateTerminated, p.Coordinator().State())
}

func TestPipelineUserIDResolution(t *testing.T) {
	dir := newFakeDirectory()
	dir.matches["(uid=unique)"] = []string{"uid=unique,ou=People,dc=example,dc=com"}
	dir.matches["(uid=dup)"] = []string{
		"uid=dup,ou=People,dc=example,dc=com",
		"uid=dup,ou=Contractors,dc=example,dc=com",
	}

	sink := &memorySink{}
	p := New(Config{
		Sources:    Sources{UserIDs: []string{"unique", "dup", "missing"}},
		Operations: getAllOps(),
		BaseDN:     "dc=example,dc=com",
	}, dir, nil, sink, nil)

	require.NoError(t, p.Run(context.Background()))

	records := sink.all()
	require.Len(t, records, 3)

	byDN := make(map[string]*output.Record)
	for _, rec := range records {
		byDN[rec.DN] = rec
	}

	unique := byDN["uid=unique,ou=People,dc=example,dc=com"]
	require.NotNil(t, unique, "unique user ID should resolve to its DN")
	assert.False(t, unique.Failed)

	dup := byDN["dup"]
	require.NotNil(t, dup)
	assert.True(t, dup.Failed)
	assert.Equal(t, output.FailureResolution, dup.ErrorType)
	assert.Contains(t, dup.Diagnostic, "ambiguous")

	missing := byDN["missing"]
	require.NotNil(t, missing)
	assert.True(t, missing.Failed)
	assert.Contains(t, missing.Diagnostic, "no entry matched")
}

func TestPipelineMalformedFileLines(t *testing.T) {
	dir := newFakeDirectory()

	dnFile := writeLines(t, "dns.txt",
		"uid=good,ou=People,dc=example,dc=com",
		"not a distinguished name at all (",
		"# comment",
		"uid=also-good,ou=People,dc=example,dc=com",
	)

	sink := &memorySink{}
	p := New(Config{
		Sources:    Sources{DNFiles: []string{dnFile}},
		Operations: getAllOps(),
	}, dir, nil, sink, nil)

	require.NoError(t, p.Run(context.Background()))

	// Both valid lines execute; the malformed line becomes a failure
	// record without aborting the file.
	assert.Equal(t, 2, dir.processedCount())

	failures := sink.failures()
	require.Len(t, failures, 1)
	assert.Equal(t, output.FailureSource, failures[0].ErrorType)
	assert.Contains(t, failures[0].Diagnostic, "invalid distinguished name")
}

func TestPipelineMalformedFilter(t *testing.T) {
	dir := newFakeDirectory()
	dir.matches["(objectClass=person)"] = []string{"uid=a,dc=example,dc=com"}

	sink := &memorySink{}
	p := New(Config{
		Sources:    Sources{Filters: []string{"(objectClass=person)", "((broken"}},
		Operations: getAllOps(),
	}, dir, nil, sink, nil)

	require.NoError(t, p.Run(context.Background()))

	assert.Equal(t, 1, dir.processedCount())

	failures := sink.failures()
	require.Len(t, failures, 1)
	assert.Equal(t, output.FailureSource, failures[0].ErrorType)
	assert.Contains(t, failures[0].Diagnostic, "invalid search filter")
}

func TestPipelineBadSearchBaseDiagnostic(t *testing.T) {
	dir := newFakeDirectory()
	dir.searchErrs["(objectClass=person)"] = ldap.NewLDAPError("search",
		goldap.NewError(goldap.LDAPResultNoSuchObject, fmt.Errorf("no such object")))

	sink := &memorySink{}
	p := New(Config{
		Sources:    Sources{Filters: []string{"(objectClass=person)"}},
		Operations: getAllOps(),
		BaseDN:     "dc=typo,dc=example,dc=com",
	}, dir, nil, sink, nil)

	require.NoError(t, p.Run(context.Background()))

	failures := sink.failures()
	require.Len(t, failures, 1)
	assert.Equal(t, output.FailureResolution, failures[0].ErrorType)
	assert.Contains(t, failures[0].Diagnostic, `search base "dc=typo,dc=example,dc=com" does not exist`)
}

func TestPipelineFilterStreaming(t *testing.T) {
	dir := newFakeDirectory()

	var matched []string
	for i := 0; i < 250; i++ {
		matched = append(matched, fmt.Sprintf("uid=user%d,ou=People,dc=example,dc=com", i))
	}
	dir.matches["(objectClass=person)"] = matched

	sink := &memorySink{}
	p := New(Config{
		Sources:          Sources{Filters: []string{"(objectClass=person)"}},
		Operations:       getAllOps(),
		PageSize:         100,
		OperationWorkers: 4,
	}, dir, nil, sink, nil)

	require.NoError(t, p.Run(context.Background()))

	assert.Equal(t, 250, dir.processedCount())
	assert.Len(t, sink.all(), 250)
	assert.Empty(t, sink.failures())
}

func TestPipelineOperationFailureIsolated(t *testing.T) {
	dir := newFakeDirectory()
	dir.opErrs["uid=broken,ou=People,dc=example,dc=com"] = fmt.Errorf("insufficient access rights")

	sink := &memorySink{}
	p := New(Config{
		Sources: Sources{DNs: []string{
			"uid=ok1,ou=People,dc=example,dc=com",
			"uid=broken,ou=People,dc=example,dc=com",
			"uid=ok2,ou=People,dc=example,dc=com",
		}},
		Operations: getAllOps(),
	}, dir, nil, sink, nil)

	require.NoError(t, p.Run(context.Background()))

	records := sink.all()
	assert.Len(t, records, 3)

	failures := sink.failures()
	require.Len(t, failures, 1)
	assert.Equal(t, "uid=broken,ou=People,dc=example,dc=com", failures[0].DN)
	assert.Equal(t, output.FailureOperation, failures[0].ErrorType)
	assert.Contains(t, failures[0].Diagnostic, "insufficient access")
}

func TestPipelineSuccessRecordAttributes(t *testing.T) {
	dir := newFakeDirectory()

	sink := &memorySink{}
	p := New(Config{
		Sources:    Sources{DNs: []string{"uid=jdoe,ou=People,dc=example,dc=com"}},
		Operations: getAllOps(),
	}, dir, nil, sink, nil)

	require.NoError(t, p.Run(context.Background()))

	records := sink.all()
	require.Len(t, records, 1)
	require.Len(t, records[0].Attributes, 1)
	assert.Equal(t, "password-changed-time", records[0].Attributes[0].Name)
	assert.Equal(t, []string{"20240101000000Z"}, records[0].Attributes[0].Values)
	assert.True(t, records[0].HasPayload())
}

func TestPipelineMissingSourceFile(t *testing.T) {
	dir := newFakeDirectory()

	sink := &memorySink{}
	p := New(Config{
		Sources: Sources{
			DNFiles: []string{"/nonexistent/dns.txt"},
			DNs:     []string{"uid=ok,ou=People,dc=example,dc=com"},
		},
		Operations: getAllOps(),
	}, dir, nil, sink, nil)

	require.NoError(t, p.Run(context.Background()))

	// The unreadable file is one failure; the explicit DN still runs.
	assert.Equal(t, 1, dir.processedCount())
	require.Len(t, sink.failures(), 1)
	assert.Contains(t, sink.failures()[0].Diagnostic, "cannot read source file")
}

func TestConfigValidate(t *testing.T) {
	cfg := &Config{}
	assert.ErrorIs(t, cfg.Validate(), ErrNoSources)

	cfg.Sources.UserIDs = []string{"jdoe"}
	assert.NoError(t, cfg.Validate())
}
