package output

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

// Config controls where records are written.
type Config struct {
	// Output receives every record.
	Output io.Writer

	// RejectPath, when set, names a file that additionally receives
	// failure records only.
	RejectPath string

	// AppendToReject preserves an existing reject file's contents
	// instead of truncating it.
	AppendToReject bool

	// SuppressEmptyResults drops records that carry no attribute
	// payload from the streams. Accounting is unaffected.
	SuppressEmptyResults bool
}

// Sink serializes per-target outcomes to the configured streams.
// Records arrive from many workers concurrently; each destination is
// guarded by its own write lock so records are never interleaved.
type Sink struct {
	outMu    sync.Mutex
	out      *bufio.Writer
	suppress bool

	rejMu      sync.Mutex
	rejectFile *os.File
	reject     *bufio.Writer

	attempted atomic.Uint64
	succeeded atomic.Uint64
	failed    atomic.Uint64

	logger *zap.Logger
}

// NewSink opens the configured destinations. Failure to open the
// reject file is a setup error; the caller aborts before the pipeline
// starts.
func NewSink(cfg Config, logger *zap.Logger) (*Sink, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Sink{
		out:      bufio.NewWriter(cfg.Output),
		suppress: cfg.SuppressEmptyResults,
		logger:   logger,
	}

	if cfg.RejectPath != "" {
		flags := os.O_WRONLY | os.O_CREATE
		if cfg.AppendToReject {
			flags |= os.O_APPEND
		} else {
			flags |= os.O_TRUNC
		}

		f, err := os.OpenFile(cfg.RejectPath, flags, 0o644)
		if err != nil {
			return nil, fmt.Errorf("failed to open reject file: %w", err)
		}
		s.rejectFile = f
		s.reject = bufio.NewWriter(f)
	}

	return s, nil
}

// Record routes one outcome: every record to the primary stream,
// failures additionally to the reject stream. Suppressed records still
// count toward the totals.
func (s *Sink) Record(rec *Record) {
	s.attempted.Add(1)
	if rec.Failed {
		s.failed.Add(1)
	} else {
		s.succeeded.Add(1)
	}

	if s.suppress && !rec.HasPayload() {
		s.logger.Debug("suppressed empty-result record",
			zap.String("dn", rec.DN),
			zap.Bool("failed", rec.Failed))
		return
	}

	s.outMu.Lock()
	if err := rec.writeTo(s.out); err != nil {
		s.logger.Error("failed to write record", zap.String("dn", rec.DN), zap.Error(err))
	}
	s.outMu.Unlock()

	if rec.Failed && s.reject != nil {
		s.rejMu.Lock()
		if err := rec.writeTo(s.reject); err != nil {
			s.logger.Error("failed to write reject record", zap.String("dn", rec.DN), zap.Error(err))
		}
		s.rejMu.Unlock()
	}
}

// Counts returns the number of attempted, succeeded, and failed
// records so far.
func (s *Sink) Counts() (attempted, succeeded, failed uint64) {
	return s.attempted.Load(), s.succeeded.Load(), s.failed.Load()
}

// Close flushes buffered records and closes the reject file.
func (s *Sink) Close() error {
	s.outMu.Lock()
	err := s.out.Flush()
	s.outMu.Unlock()

	if s.reject != nil {
		s.rejMu.Lock()
		if ferr := s.reject.Flush(); ferr != nil && err == nil {
			err = ferr
		}
		if cerr := s.rejectFile.Close(); cerr != nil && err == nil {
			err = cerr
		}
		s.rejMu.Unlock()
	}

	return err
}
