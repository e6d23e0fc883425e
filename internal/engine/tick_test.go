package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talgya/deer-motility/internal/entropy"
)

func TestDriverRunsToCompletionWithCheckpoints(t *testing.T) {
	g, table := smallWorld(t)
	s, err := NewSession(g, table, Config{Steps: 25}, entropy.NewSource(6))
	require.NoError(t, err)

	d := NewDriver(s)
	d.Interval = 0
	d.CheckpointEvery = 10

	var got Trace
	var froms []int
	d.OnCheckpoint = func(from int, entries Trace) {
		froms = append(froms, from)
		got = append(got, entries...)
	}
	steps := 0
	d.OnStep = func(StepEvent) { steps++ }

	require.NoError(t, d.Run(context.Background()))
	assert.Equal(t, StateFinished, s.State())
	assert.Equal(t, 25, steps)
	assert.Equal(t, []int{0, 10, 20}, froms)
	assert.Equal(t, s.Trace(), got)
	assert.False(t, d.Running())
}

func TestDriverStopWhilePaused(t *testing.T) {
	g, table := smallWorld(t)
	s, err := NewSession(g, table, Config{Steps: 1000}, entropy.NewSource(6))
	require.NoError(t, err)

	d := NewDriver(s)
	d.SetSpeed(0)

	done := make(chan error, 1)
	go func() { done <- d.Run(context.Background()) }()

	require.Eventually(t, d.Running, time.Second, 5*time.Millisecond)
	d.Stop()
	d.Stop()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("driver did not stop")
	}
	assert.Equal(t, StateFinished, s.State())
	assert.Zero(t, s.Steps())
}

func TestDriverContextCancel(t *testing.T) {
	g, table := smallWorld(t)
	s, err := NewSession(g, table, Config{Steps: 1000}, entropy.NewSource(6))
	require.NoError(t, err)

	d := NewDriver(s)
	d.Interval = time.Hour

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Run(ctx) }()

	require.Eventually(t, func() bool { return s.Steps() == 1 }, time.Second, 5*time.Millisecond)
	cancel()
	require.ErrorIs(t, <-done, context.Canceled)
	assert.Equal(t, 1, s.Steps())
}

func TestDriverSpeedClamp(t *testing.T) {
	g, table := smallWorld(t)
	s, err := NewSession(g, table, Config{Steps: 1}, entropy.NewSource(6))
	require.NoError(t, err)

	d := NewDriver(s)
	assert.Equal(t, 1.0, d.Speed())
	d.SetSpeed(5000)
	assert.Equal(t, float64(MaxSpeed), d.Speed())
	d.SetSpeed(-1)
	assert.Equal(t, 0.0, d.Speed())
}
