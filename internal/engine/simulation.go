// Package engine runs the agent across the terrain: the session state
// machine, its trace and overlay, and the driver that paces it.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/talgya/deer-motility/internal/agents"
	"github.com/talgya/deer-motility/internal/entropy"
	"github.com/talgya/deer-motility/internal/perception"
	"github.com/talgya/deer-motility/internal/terrain"
	"github.com/talgya/deer-motility/internal/world"
)

// ErrInvalidDimension is world.ErrInvalidDimension, re-exported for callers of Run.
var ErrInvalidDimension = world.ErrInvalidDimension

// ErrFinished is returned by Step once the session has run all its steps.
var ErrFinished = errors.New("session finished")

// State is the session lifecycle stage.
type State uint8

const (
	StateIdle State = iota
	StateRunning
	StateFinished
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateFinished:
		return "finished"
	default:
		return fmt.Sprintf("state(%d)", uint8(s))
	}
}

// Config controls a single run.
type Config struct {
	Steps      int             `json:"steps"`
	Start      *world.Pos      `json:"start,omitempty"` // nil: random interior start
	LightMode  bool            `json:"light_mode"`
	Perception perception.Mode `json:"perception"`
}

// DefaultConfig returns a 10000-step dark-mode view-finder run.
func DefaultConfig() Config {
	return Config{Steps: 10000}
}

// Validate checks the config against the grid it will run on.
func (c Config) Validate(g *world.Grid) error {
	if err := world.CheckDims(g.L, g.W); err != nil {
		return err
	}
	if c.Steps <= 0 {
		return fmt.Errorf("%w: steps must be positive, got %d", ErrInvalidDimension, c.Steps)
	}
	if c.Start != nil && !g.Contains(*c.Start) {
		return fmt.Errorf("%w: start %v outside %s", ErrInvalidDimension, *c.Start, g)
	}
	return nil
}

// StepEvent describes one executed step.
type StepEvent struct {
	Entry TraceEntry          `json:"entry"`
	Move  agents.Displacement `json:"move"`
	Next  world.Pos           `json:"next"`
	Alpha float64             `json:"alpha"`
	State State               `json:"-"`
}

// subscriberBuffer is the channel capacity per observer.
const subscriberBuffer = 64

// Session is one agent's walk over one grid. Step is meant to be called from
// a single goroutine; the read accessors are safe from any goroutine.
type Session struct {
	grid  *world.Grid
	table *terrain.Table
	cfg   Config
	rng   entropy.Source
	start world.Pos

	mu      sync.RWMutex
	state   State
	agent   agents.Agent
	overlay *Overlay
	trace   Trace

	subMu   sync.Mutex
	subs    map[int]chan StepEvent
	nextSub int
}

// NewSession validates cfg and places the agent. Without cfg.Start the start
// is drawn uniformly from the interior [1, L-2] × [1, W-2].
func NewSession(g *world.Grid, t *terrain.Table, cfg Config, rng entropy.Source) (*Session, error) {
	if err := cfg.Validate(g); err != nil {
		return nil, err
	}
	var start world.Pos
	if cfg.Start != nil {
		start = *cfg.Start
	} else {
		start = world.Pos{X: 1 + rng.IntN(g.L-2), Y: 1 + rng.IntN(g.W-2)}
	}
	return &Session{
		grid:    g,
		table:   t,
		cfg:     cfg,
		rng:     rng,
		start:   start,
		agent:   agents.Agent{Pos: start},
		overlay: NewOverlay(g.L, g.W, cfg.LightMode),
		trace:   make(Trace, 0, cfg.Steps),
		subs:    make(map[int]chan StepEvent),
	}, nil
}

// Step advances the agent by one step.
func (s *Session) Step() (StepEvent, error) {
	s.mu.Lock()
	ev, err := s.step()
	s.mu.Unlock()
	if err != nil {
		return ev, err
	}
	s.publish(ev)
	if ev.State == StateFinished {
		s.closeSubscribers()
	}
	return ev, nil
}

func (s *Session) step() (StepEvent, error) {
	switch s.state {
	case StateFinished:
		return StepEvent{}, ErrFinished
	case StateIdle:
		s.state = StateRunning
	}

	pos := s.agent.Pos
	class := int(s.grid.At(pos.X, pos.Y))
	tc, err := s.table.Class(class)
	if err != nil {
		return StepEvent{}, fmt.Errorf("step %d at %v: %w", len(s.trace), pos, err)
	}
	d, err := perception.Perceive(s.cfg.Perception, s.grid, s.table, pos.X, pos.Y)
	if err != nil {
		return StepEvent{}, fmt.Errorf("step %d: %w", len(s.trace), err)
	}
	move := agents.Decide(d, s.rng)

	entry := TraceEntry{
		Step:  len(s.trace),
		X:     pos.X,
		Y:     pos.Y,
		Class: class,
		Tag:   tc.Tag,
		Cost:  tc.Cost,
	}
	s.trace = append(s.trace, entry)
	alpha := s.overlay.Touch(pos.X, pos.Y)
	s.agent.Apply(s.grid, move)

	if len(s.trace) >= s.cfg.Steps {
		s.state = StateFinished
	}
	return StepEvent{Entry: entry, Move: move, Next: s.agent.Pos, Alpha: alpha, State: s.state}, nil
}

// Run steps until the session finishes or ctx is done. The trace and overlay
// stay consistent when it returns early.
func (s *Session) Run(ctx context.Context) error {
	for s.State() != StateFinished {
		if err := ctx.Err(); err != nil {
			return err
		}
		if _, err := s.Step(); err != nil {
			return err
		}
	}
	return nil
}

// Finish ends the session early and closes every observer channel.
// Further calls to Step return ErrFinished.
func (s *Session) Finish() {
	s.mu.Lock()
	already := s.state == StateFinished
	s.state = StateFinished
	steps := len(s.trace)
	s.mu.Unlock()
	if already {
		return
	}
	slog.Info("session finished early", "steps", steps, "of", s.cfg.Steps)
	s.closeSubscribers()
}

// State returns the lifecycle stage.
func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Steps returns the number of executed steps.
func (s *Session) Steps() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.trace)
}

// Position returns the agent's current position.
func (s *Session) Position() world.Pos {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.agent.Pos
}

// Trace returns a copy of the full trace.
func (s *Session) Trace() Trace {
	return s.TraceSince(0)
}

// TraceSince returns a copy of the entries from step n on.
func (s *Session) TraceSince(n int) Trace {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if n < 0 {
		n = 0
	}
	if n >= len(s.trace) {
		return Trace{}
	}
	out := make(Trace, len(s.trace)-n)
	copy(out, s.trace[n:])
	return out
}

// Overlay returns a snapshot of the visitation overlay.
func (s *Session) Overlay() *Overlay {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.overlay.Clone()
}

// Config returns the run configuration.
func (s *Session) Config() Config { return s.cfg }

// Start returns the start position.
func (s *Session) Start() world.Pos { return s.start }

// Grid returns the terrain grid. It must not be modified.
func (s *Session) Grid() *world.Grid { return s.grid }

// Table returns the terrain table.
func (s *Session) Table() *terrain.Table { return s.table }

// Subscribe registers an observer. Events are dropped when its buffer is
// full. The channel is closed once the session finishes, and a channel
// returned after that is already closed.
func (s *Session) Subscribe() (int, <-chan StepEvent) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	id := s.nextSub
	s.nextSub++
	ch := make(chan StepEvent, subscriberBuffer)
	if s.State() == StateFinished {
		close(ch)
		return id, ch
	}
	s.subs[id] = ch
	return id, ch
}

// Unsubscribe removes an observer and closes its channel.
func (s *Session) Unsubscribe(id int) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	if ch, ok := s.subs[id]; ok {
		delete(s.subs, id)
		close(ch)
	}
}

// closeSubscribers closes and drops every observer channel.
func (s *Session) closeSubscribers() {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	for id, ch := range s.subs {
		delete(s.subs, id)
		close(ch)
	}
}

func (s *Session) publish(ev StepEvent) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	for _, ch := range s.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

// Run executes a whole walk and returns its trace and overlay. On early
// termination through ctx the partial results are returned with ctx's error.
func Run(ctx context.Context, g *world.Grid, t *terrain.Table, cfg Config, rng entropy.Source) (Trace, *Overlay, error) {
	s, err := NewSession(g, t, cfg, rng)
	if err != nil {
		return nil, nil, err
	}
	err = s.Run(ctx)
	return s.Trace(), s.Overlay(), err
}
