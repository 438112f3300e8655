package generator

import (
	"context"
	"errors"
	"log"
	"math/rand/v2"
	"sync"
	"time"
)

// Player receives generated notes. Play must not wait for the note to end.
type Player interface {
	Play(pitch, velocity int, d time.Duration) error
}

// Runner is a composition loop. Run returns when ctx is cancelled or the
// player fails; cancellation is not reported as an error.
type Runner interface {
	Run(ctx context.Context) error
}

// Generator owns the lifecycle of a Runner: one run loop at a time,
// started in the background and torn down synchronously.
type Generator struct {
	name   string
	runner Runner

	mu     sync.Mutex
	active bool
	cancel context.CancelFunc
	done   chan struct{}
	err    error
}

// New wraps r in a lifecycle. name is used in log lines only.
func New(name string, r Runner) *Generator {
	return &Generator{name: name, runner: r}
}

// Name returns the generator name.
func (g *Generator) Name() string {
	return g.name
}

// Start launches the run loop and returns without waiting for it. It
// returns false if the generator is already active.
func (g *Generator) Start(ctx context.Context) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.active {
		log.Printf("Generator %s already running", g.name)
		return false
	}

	runCtx, cancel := context.WithCancel(ctx)
	g.active = true
	g.cancel = cancel
	g.done = make(chan struct{})
	g.err = nil

	log.Printf("Starting generator: %s", g.name)
	go g.run(runCtx, g.done)
	return true
}

func (g *Generator) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	err := g.runner.Run(ctx)
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		err = nil
	}
	if err != nil {
		log.Printf("Generator %s failed: %v", g.name, err)
	}

	g.mu.Lock()
	g.err = err
	g.mu.Unlock()
}

// Stop cancels the run loop and waits for it to exit. It returns the error
// that ended the loop, if any. Stop on an inactive generator does nothing.
func (g *Generator) Stop() error {
	g.mu.Lock()
	if !g.active {
		g.mu.Unlock()
		return nil
	}
	cancel, done := g.cancel, g.done
	g.mu.Unlock()

	log.Printf("Stopping generator: %s", g.name)
	cancel()
	<-done

	g.mu.Lock()
	g.active = false
	err := g.err
	g.mu.Unlock()

	log.Printf("Generator %s stopped cleanly", g.name)
	return err
}

// Active reports whether the generator is between Start and the end of Stop.
func (g *Generator) Active() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.active
}

// Done is closed when the current run loop exits. Nil before Start.
func (g *Generator) Done() <-chan struct{} {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.done
}

// Err returns the error that ended the last run loop.
func (g *Generator) Err() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.err
}

// sleep pauses for d. Returns false if ctx was cancelled first.
func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// NewRand returns a PRNG for seed. A zero seed draws one at random.
func NewRand(seed uint64) *rand.Rand {
	if seed == 0 {
		seed = rand.Uint64()
	}
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}

// uniform returns a float in [lo, hi).
func uniform(rng *rand.Rand, lo, hi float64) float64 {
	return lo + (hi-lo)*rng.Float64()
}

// pick returns a random element of xs.
func pick[T any](rng *rand.Rand, xs []T) T {
	return xs[rng.IntN(len(xs))]
}

func scale(d time.Duration, f float64) time.Duration {
	return time.Duration(float64(d) * f)
}
