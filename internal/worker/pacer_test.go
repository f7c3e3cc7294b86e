package worker

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestPacer_UniformWithinRange(t *testing.T) {
	t.Parallel()

	p := NewPacer(PacingOptions{
		MinDelay:     20 * time.Second,
		MaxDelay:     60 * time.Second,
		SessionSize:  100,
		LongPauseMin: 5 * time.Minute,
		LongPauseMax: 10 * time.Minute,
	}, testLogger())

	var slept []time.Duration
	p.sleep = func(_ context.Context, d time.Duration) error {
		slept = append(slept, d)
		return nil
	}

	for _, r := range []float64{0, 0.5, 0.999} {
		p.randFloat = func() float64 { return r }
		require.NoError(t, p.Wait(context.Background()))
	}
	require.Equal(t, []time.Duration{
		20 * time.Second,
		40 * time.Second,
		20*time.Second + time.Duration(0.999*float64(40*time.Second)),
	}, slept)
}

func TestPacer_LongPauseEverySession(t *testing.T) {
	t.Parallel()

	p := NewPacer(PacingOptions{SessionSize: 3, LongPauseMin: time.Minute, LongPauseMax: time.Minute}, testLogger())
	longPauses := 0
	p.sleep = func(_ context.Context, d time.Duration) error {
		if d == time.Minute {
			longPauses++
		}
		return nil
	}

	for range 7 {
		require.NoError(t, p.Wait(context.Background()))
	}
	require.Equal(t, 2, longPauses)
}

func TestPacer_CancelInterruptsSleep(t *testing.T) {
	t.Parallel()

	p := NewPacer(PacingOptions{MinDelay: time.Hour, MaxDelay: time.Hour, SessionSize: 1}, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	err := p.Wait(ctx)
	require.ErrorIs(t, err, context.Canceled)
	require.Less(t, time.Since(start), 5*time.Second)
}
