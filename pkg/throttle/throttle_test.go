package throttle

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// tolerance absorbs scheduler jitter on slow CI machines.
const tolerance = 5 * time.Millisecond

func TestGateSpacesConsecutiveCalls(t *testing.T) {
	threshold := 60 * time.Millisecond
	g := New(threshold)

	var starts []time.Time
	for i := 0; i < 4; i++ {
		err := g.Do(context.Background(), func() error {
			starts = append(starts, time.Now())
			return nil
		})
		require.NoError(t, err)
	}

	for i := 1; i < len(starts); i++ {
		gap := starts[i].Sub(starts[i-1])
		assert.GreaterOrEqual(t, gap, threshold-tolerance, "call %d started only %s after the previous one", i, gap)
	}
}

func TestGateAddsNoDelayAfterSlowCall(t *testing.T) {
	threshold := 40 * time.Millisecond
	g := New(threshold)

	require.NoError(t, g.Do(context.Background(), func() error {
		time.Sleep(2 * threshold)
		return nil
	}))

	begin := time.Now()
	require.NoError(t, g.Do(context.Background(), func() error { return nil }))
	assert.Less(t, time.Since(begin), threshold/2, "slow call should leave no residual wait")
}

func TestGateFirstCallIsImmediate(t *testing.T) {
	g := New(time.Hour)
	begin := time.Now()
	require.NoError(t, g.Do(context.Background(), func() error { return nil }))
	assert.Less(t, time.Since(begin), 50*time.Millisecond)
}

func TestGatePropagatesOperationError(t *testing.T) {
	boom := errors.New("boom")
	err := New(time.Millisecond).Do(context.Background(), func() error { return boom })
	assert.ErrorIs(t, err, boom)
}

func TestGateCancelledWaitSkipsOperation(t *testing.T) {
	g := New(time.Hour)
	require.NoError(t, g.Do(context.Background(), func() error { return nil }))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	ran := false
	err := g.Do(ctx, func() error {
		ran = true
		return nil
	})
	require.Error(t, err)
	assert.False(t, ran)
}

func TestZeroThresholdDisablesGate(t *testing.T) {
	g := New(0)
	assert.Equal(t, time.Duration(0), g.Threshold())

	begin := time.Now()
	for i := 0; i < 100; i++ {
		require.NoError(t, g.Do(context.Background(), func() error { return nil }))
	}
	assert.Less(t, time.Since(begin), 50*time.Millisecond)
}
