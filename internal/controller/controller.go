package controller

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/satindergrewal/handpan/internal/generator"
	"github.com/satindergrewal/handpan/internal/voice"
)

// Sentinel errors
var (
	ErrUnknownMode    = errors.New("unknown mode")
	ErrInvalidInput   = errors.New("invalid input")
	ErrAlreadyStarted = errors.New("controller already started")
)

// Mode selects what drives the voice engine.
type Mode string

const (
	ModeManual Mode = "manual"
	ModeAI     Mode = "ai"
)

// ParseMode converts a mode name. Matching is case-insensitive.
func ParseMode(s string) (Mode, error) {
	m := Mode(strings.ToLower(strings.TrimSpace(s)))
	if !m.valid() {
		return m, fmt.Errorf("%w: %q", ErrUnknownMode, s)
	}
	return m, nil
}

func (m Mode) valid() bool {
	return m == ModeManual || m == ModeAI
}

// State is a controller lifecycle phase.
type State int

const (
	StateIdle State = iota
	StateStarting
	StateRunning
	StateStopping
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Factory builds the composition loop for AI mode around the engine.
type Factory func(p generator.Player) generator.Runner

// Option configures a Controller.
type Option func(*Controller)

// WithIO sets the operator input and output used in manual mode. If in is
// an io.Closer it is closed when manual mode ends.
func WithIO(in io.Reader, out io.Writer) Option {
	return func(c *Controller) {
		c.in = in
		c.out = out
	}
}

// WithGenerator sets the generator used in AI mode.
func WithGenerator(name string, f Factory) Option {
	return func(c *Controller) {
		c.genName = name
		c.factory = f
	}
}

// Controller ties one voice engine to one driving activity for its lifetime.
type Controller struct {
	mode    Mode
	engine  voice.Engine
	in      io.Reader
	out     io.Writer
	genName string
	factory Factory
	session string

	mu      sync.Mutex
	state   State
	gen     *generator.Generator
	runner  generator.Runner
	halt    chan struct{} // closed when Stop begins
	stopped chan struct{} // closed when Stop completes
}

// New creates a controller. The mode is validated by Start.
func New(mode Mode, engine voice.Engine, opts ...Option) *Controller {
	c := &Controller{
		mode:    mode,
		engine:  engine,
		in:      os.Stdin,
		out:     os.Stdout,
		genName: "melodic",
		factory: func(p generator.Player) generator.Runner {
			return generator.NewMelodic(p, generator.MelodicConfig{RootNote: generator.DefaultRoot})
		},
		session: uuid.NewString(),
		halt:    make(chan struct{}),
		stopped: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Session returns the id attached to this controller's log lines.
func (c *Controller) Session() string {
	return c.session
}

// Mode returns the controller mode.
func (c *Controller) Mode() Mode {
	return c.mode
}

// State returns the current lifecycle phase.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Start starts the engine and runs the driving activity until it ends or
// ctx is cancelled. It always tears down through Stop before returning,
// except when the mode is unknown, in which case nothing is started.
func (c *Controller) Start(ctx context.Context) (err error) {
	if !c.mode.valid() {
		return fmt.Errorf("%w: %q", ErrUnknownMode, c.mode)
	}

	c.mu.Lock()
	if c.state != StateIdle {
		c.mu.Unlock()
		return ErrAlreadyStarted
	}
	c.state = StateStarting
	c.mu.Unlock()

	defer func() {
		if serr := c.Stop(); err == nil {
			err = serr
		}
	}()

	log.Printf("[%s] Controller starting in %s mode", c.short(), c.mode)
	startErr := c.engine.Start()

	c.mu.Lock()
	if c.state != StateStarting {
		// Stopped while the engine was starting.
		c.mu.Unlock()
		return nil
	}
	if startErr != nil {
		c.mu.Unlock()
		return fmt.Errorf("start voice engine: %w", startErr)
	}
	c.state = StateRunning
	c.mu.Unlock()

	switch c.mode {
	case ModeManual:
		return c.runManual(ctx)
	default:
		return c.runAI(ctx)
	}
}

// runAI runs the generator until ctx is cancelled or the run loop fails.
func (c *Controller) runAI(ctx context.Context) error {
	runner := c.factory(c.engine)
	gen := generator.New(c.genName, runner)

	// Stop reads c.gen under the lock, so the generator is either seen and
	// stopped by Stop or never started.
	c.mu.Lock()
	if c.state != StateRunning {
		c.mu.Unlock()
		return nil
	}
	c.gen = gen
	c.runner = runner
	gen.Start(ctx)
	c.mu.Unlock()

	log.Printf("[%s] Generator %s running, interrupt to stop", c.short(), c.genName)

	select {
	case <-ctx.Done():
		return nil
	case <-gen.Done():
		return gen.Err()
	}
}

// Stop stops the driving activity, then the engine. It is idempotent and
// safe to call concurrently, including while Start is in progress; later
// callers wait for the first to finish. Only the caller that leaves
// Idle/Starting/Running tears down and closes stopped.
func (c *Controller) Stop() error {
	c.mu.Lock()
	if c.state == StateStopping || c.state == StateStopped {
		c.mu.Unlock()
		<-c.stopped
		return nil
	}
	c.state = StateStopping
	gen := c.gen
	close(c.halt)
	c.mu.Unlock()

	log.Printf("[%s] Controller stopping", c.short())

	var errs []error
	if gen != nil {
		if err := gen.Stop(); err != nil {
			errs = append(errs, fmt.Errorf("stop generator: %w", err))
		}
	}
	if err := c.engine.Stop(); err != nil {
		errs = append(errs, fmt.Errorf("stop voice engine: %w", err))
	}

	c.mu.Lock()
	c.state = StateStopped
	c.mu.Unlock()
	close(c.stopped)

	st := c.engine.Stats()
	log.Printf("[%s] Controller stopped (%d notes played, %d cancelled)", c.short(), st.Completed, st.Cancelled)
	return errors.Join(errs...)
}

// Status is a point-in-time view for the status endpoint.
type Status struct {
	Session   string           `json:"session"`
	Mode      Mode             `json:"mode"`
	State     string           `json:"state"`
	Voice     voice.Stats      `json:"voice"`
	Generator string           `json:"generator,omitempty"`
	Melody    *generator.State `json:"melody,omitempty"`
}

// snapshotter is implemented by runners that expose their musical state.
type snapshotter interface {
	Snapshot() generator.State
}

// Status returns the current status.
func (c *Controller) Status() Status {
	c.mu.Lock()
	st := Status{
		Session: c.session,
		Mode:    c.mode,
		State:   c.state.String(),
	}
	runner := c.runner
	if c.gen != nil {
		st.Generator = c.genName
	}
	c.mu.Unlock()

	st.Voice = c.engine.Stats()
	if s, ok := runner.(snapshotter); ok {
		snap := s.Snapshot()
		st.Melody = &snap
	}
	return st
}

func (c *Controller) short() string {
	return c.session[:8]
}
