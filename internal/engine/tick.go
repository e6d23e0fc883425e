package engine

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
)

// MaxSpeed is the largest accepted speed multiplier.
const MaxSpeed = 1000

// pausePoll is how often a paused driver rechecks its speed.
const pausePoll = 100 * time.Millisecond

// Driver paces a session in real time.
type Driver struct {
	Session  *Session
	Interval time.Duration // Base step interval; 0 runs flat out

	// CheckpointEvery > 0 calls OnCheckpoint with the entries since the last
	// checkpoint every that many steps, and once more when the run ends.
	CheckpointEvery int
	OnCheckpoint    func(from int, entries Trace)
	OnStep          func(ev StepEvent)

	mu         sync.Mutex
	speed      float64
	running    bool
	stop       chan struct{}
	checkpoint int
}

// NewDriver creates a driver at speed 1 with a one second interval.
func NewDriver(s *Session) *Driver {
	return &Driver{
		Session:  s,
		Interval: time.Second,
		speed:    1.0,
		stop:     make(chan struct{}),
	}
}

// Speed returns the multiplier: 1.0 = Interval per step, 0 = paused.
func (d *Driver) Speed() float64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.speed
}

// SetSpeed changes the multiplier, clamped to [0, MaxSpeed].
func (d *Driver) SetSpeed(v float64) {
	if v < 0 {
		v = 0
	}
	if v > MaxSpeed {
		v = MaxSpeed
	}
	d.mu.Lock()
	d.speed = v
	d.mu.Unlock()
	slog.Info("driver speed changed", "speed", v)
}

// Running reports whether Run is in progress.
func (d *Driver) Running() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.running
}

// Stop ends Run early and finishes the session. Safe to call more than once.
func (d *Driver) Stop() {
	d.mu.Lock()
	select {
	case <-d.stop:
	default:
		close(d.stop)
	}
	d.mu.Unlock()
	d.Session.Finish()
}

// Run steps the session until it finishes, Stop is called, or ctx is done.
// It blocks. A stopped or finished run returns nil.
func (d *Driver) Run(ctx context.Context) error {
	d.mu.Lock()
	d.running = true
	d.mu.Unlock()
	defer func() {
		d.mu.Lock()
		d.running = false
		d.mu.Unlock()
	}()

	s := d.Session
	slog.Info("driver started", "steps", humanize.Comma(int64(s.Config().Steps)), "speed", d.Speed())
	err := d.loop(ctx)
	d.flush()
	if errors.Is(err, ErrFinished) {
		err = nil
	}
	slog.Info("driver stopped",
		"steps", humanize.Comma(int64(s.Steps())),
		"state", s.State().String(),
	)
	return err
}

func (d *Driver) loop(ctx context.Context) error {
	s := d.Session
	for s.State() != StateFinished {
		if err := d.wait(ctx, 0); err != nil {
			return err
		}
		speed := d.Speed()
		if speed <= 0 {
			if err := d.wait(ctx, pausePoll); err != nil {
				return err
			}
			continue
		}

		start := time.Now()
		ev, err := s.Step()
		if err != nil {
			return err
		}
		if d.OnStep != nil {
			d.OnStep(ev)
		}
		if d.CheckpointEvery > 0 && s.Steps()-d.checkpoint >= d.CheckpointEvery {
			d.flush()
		}

		if d.Interval <= 0 {
			continue
		}
		elapsed := time.Since(start)
		target := time.Duration(float64(d.Interval) / speed)
		if elapsed < target {
			if err := d.wait(ctx, target-elapsed); err != nil {
				return err
			}
		}
	}
	return nil
}

// wait sleeps for dur, returning early on Stop or ctx. A stop reports
// ErrFinished.
func (d *Driver) wait(ctx context.Context, dur time.Duration) error {
	if dur <= 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-d.stop:
			return ErrFinished
		default:
			return nil
		}
	}
	timer := time.NewTimer(dur)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-d.stop:
		return ErrFinished
	case <-timer.C:
		return nil
	}
}

// flush hands the entries since the last checkpoint to OnCheckpoint.
func (d *Driver) flush() {
	if d.OnCheckpoint == nil {
		return
	}
	entries := d.Session.TraceSince(d.checkpoint)
	if len(entries) == 0 {
		return
	}
	from := d.checkpoint
	d.checkpoint += len(entries)
	d.OnCheckpoint(from, entries)
}
