package rate

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"time"

	"gopkg.in/yaml.v3"
)

// Step is one row of a variable-rate schedule: from Offset after run
// start, admit PerSecond operations per second.
type Step struct {
	Offset    time.Duration `yaml:"offset"`
	PerSecond float64       `yaml:"rate-per-second"`
}

// Profile is an ordered variable-rate schedule. Offsets are relative to
// run start, not wall-clock time, so runs are reproducible and the
// scheduler is testable with short offsets.
type Profile struct {
	Steps []Step `yaml:"steps"`
}

// LoadProfile reads and validates a variable-rate schedule file.
func LoadProfile(path string) (*Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read rate profile: %w", err)
	}
	return ParseProfile(data)
}

// ParseProfile parses and validates YAML schedule data.
func ParseProfile(data []byte) (*Profile, error) {
	var p Profile
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("failed to parse rate profile: %w", err)
	}

	if len(p.Steps) == 0 {
		return nil, fmt.Errorf("rate profile contains no steps")
	}

	for i, step := range p.Steps {
		if step.Offset < 0 {
			return nil, fmt.Errorf("rate profile step %d: offset must not be negative", i)
		}
		if step.PerSecond <= 0 {
			return nil, fmt.Errorf("rate profile step %d: rate-per-second must be positive", i)
		}
	}

	sorted := sort.SliceIsSorted(p.Steps, func(i, j int) bool {
		return p.Steps[i].Offset < p.Steps[j].Offset
	})
	if !sorted {
		return nil, fmt.Errorf("rate profile steps must be ordered by increasing offset")
	}
	for i := 1; i < len(p.Steps); i++ {
		if p.Steps[i].Offset == p.Steps[i-1].Offset {
			return nil, fmt.Errorf("rate profile steps %d and %d share offset %s", i-1, i, p.Steps[i].Offset)
		}
	}

	return &p, nil
}

// RateAt returns the scheduled rate for the given elapsed time since
// run start. Before the first step's offset the first step's rate
// applies; after the last boundary the last rate holds.
func (p *Profile) RateAt(elapsed time.Duration) float64 {
	current := p.Steps[0].PerSecond
	for _, step := range p.Steps {
		if step.Offset > elapsed {
			break
		}
		current = step.PerSecond
	}
	return current
}

// Schedule drives the gate through the profile's steps, anchored to
// start. It blocks until every boundary has been applied or ctx is
// cancelled, so callers normally run it on its own goroutine. The last
// applied rate holds after Schedule returns.
func (p *Profile) Schedule(ctx context.Context, start time.Time, gate *Gate) {
	gate.SetRate(p.RateAt(time.Since(start)))

	for _, step := range p.Steps {
		wait := time.Until(start.Add(step.Offset))
		if wait > 0 {
			timer := time.NewTimer(wait)
			select {
			case <-ctx.Done():
				timer.Stop()
				return
			case <-timer.C:
			}
		}
		gate.SetRate(step.PerSecond)
	}
}

// sampleProfile is the annotated schedule emitted by WriteSample.
const sampleProfile = `# Sample variable-rate schedule.
#
# Each step sets the target operation rate beginning at the given
# offset from the start of the run. Offsets use Go duration syntax
# (for example "30s", "5m", "1h10m") and must be strictly increasing.
# The rate from the last step holds for the remainder of the run.
#
# This sample ramps up over the first few minutes and then backs off.
steps:
  - offset: 0s
    rate-per-second: 100
  - offset: 1m
    rate-per-second: 250
  - offset: 5m
    rate-per-second: 1000
  - offset: 30m
    rate-per-second: 250
`

// WriteSample writes an annotated sample schedule suitable as a
// starting point for a real profile.
func WriteSample(w io.Writer) error {
	_, err := io.WriteString(w, sampleProfile)
	return err
}

// WriteSampleFile writes the sample schedule to path, refusing to
// overwrite an existing file.
func WriteSampleFile(path string) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return fmt.Errorf("failed to create sample rate file: %w", err)
	}
	defer f.Close()

	return WriteSample(f)
}
