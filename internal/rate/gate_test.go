package rate

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGateUnlimited(t *testing.T) {
	gate := NewGate(0)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	start := time.Now()
	for i := 0; i < 1000; i++ {
		require.NoError(t, gate.Acquire(ctx))
	}
	assert.Less(t, time.Since(start), 500*time.Millisecond, "unlimited gate must not block")
}

func TestGateBoundsAdmissionRate(t *testing.T) {
	gate := NewGate(10)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	start := time.Now()
	admitted := 0
	for time.Since(start) < 1100*time.Millisecond {
		if err := gate.Acquire(ctx); err != nil {
			break
		}
		admitted++
	}

	// A window of duration W at rate R admits at most R*W permits,
	// plus one for the boundary.
	assert.LessOrEqual(t, admitted, 12, "admitted %d operations in ~1.1s at 10/sec", admitted)
	assert.GreaterOrEqual(t, admitted, 10, "admitted %d operations in ~1.1s at 10/sec", admitted)
}

func TestGateAcquireUnblocksOnCancel(t *testing.T) {
	gate := NewGate(1)

	ctx, cancel := context.WithCancel(context.Background())

	// Drain the initial permit so the next caller blocks.
	require.NoError(t, gate.Acquire(ctx))

	done := make(chan error, 1)
	go func() {
		done <- gate.Acquire(ctx)
	}()

	cancel()

	select {
	case err := <-done:
		assert.Error(t, err, "cancelled acquire must not report success")
	case <-time.After(time.Second):
		t.Fatal("Acquire did not return within one window of cancellation")
	}
}

func TestGateSetRate(t *testing.T) {
	gate := NewGate(1)
	assert.InDelta(t, 1.0, gate.Rate(), 0.001)

	gate.SetRate(50)
	assert.InDelta(t, 50.0, gate.Rate(), 0.001)

	gate.SetRate(0)
	assert.Zero(t, gate.Rate())
}
