package voice

import (
	"context"
	"log"
	"sync"
	"time"
)

// Poly spawns an independent playback unit per note. Units never block
// each other, so overlapping notes sound together.
type Poly struct {
	out   output
	cfg   Config
	stats counters

	mu      sync.Mutex
	state   lifecycle
	ctx     context.Context
	cancel  context.CancelFunc
	units   sync.WaitGroup
	stopped chan struct{}
}

// NewPoly creates a polyphonic engine on top of backend.
func NewPoly(backend Backend, cfg Config) *Poly {
	return &Poly{
		out:     output{backend: backend, channel: cfg.Channel},
		cfg:     cfg,
		stopped: make(chan struct{}),
	}
}

// Start loads the instrument and begins accepting notes. Calling it on a
// running engine does nothing.
func (p *Poly) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch p.state {
	case stateRunning:
		return nil
	case stateStopped:
		return ErrStopped
	}

	if err := p.out.load(p.cfg.Bank, p.cfg.Program); err != nil {
		return err
	}
	p.ctx, p.cancel = context.WithCancel(context.Background())
	p.state = stateRunning
	log.Println("Voice engine started (poly)")
	return nil
}

// Play spawns a playback unit for the note and returns immediately.
func (p *Poly) Play(pitch, velocity int, d time.Duration) error {
	n := NewNote(pitch, velocity, d)

	p.mu.Lock()
	if p.state != stateRunning {
		p.mu.Unlock()
		return ErrNotStarted
	}
	p.units.Add(1)
	ctx := p.ctx
	p.mu.Unlock()

	p.stats.submitted.Add(1)
	go p.render(ctx, n)
	return nil
}

// render holds one note for its duration. Note-off always follows note-on,
// whether the timer fires or the engine is stopping.
func (p *Poly) render(ctx context.Context, n Note) {
	defer p.units.Done()

	if ctx.Err() != nil {
		p.stats.cancelled.Add(1)
		return
	}

	p.stats.active.Add(1)
	defer p.stats.active.Add(-1)

	p.out.noteOn(n)
	timer := time.NewTimer(n.Duration)
	defer timer.Stop()

	select {
	case <-timer.C:
		p.stats.completed.Add(1)
	case <-ctx.Done():
		p.stats.cancelled.Add(1)
	}
	p.out.noteOff(n)
}

// Stop cancels every outstanding unit, waits for them to exit, silences
// the full pitch range if the engine ran and releases the backend. Later calls wait for the
// first to finish and return nil.
func (p *Poly) Stop() error {
	p.mu.Lock()
	if p.state == stateStopped {
		p.mu.Unlock()
		<-p.stopped
		return nil
	}
	ran := p.state == stateRunning
	p.state = stateStopped
	cancel := p.cancel
	p.mu.Unlock()

	defer close(p.stopped)

	if cancel != nil {
		cancel()
	}
	p.units.Wait()

	err := p.out.release(ran)
	s := p.stats.snapshot()
	log.Printf("Voice engine stopped (submitted: %d, completed: %d, cancelled: %d)", s.Submitted, s.Completed, s.Cancelled)
	return err
}

// Stats returns note counters.
func (p *Poly) Stats() Stats {
	return p.stats.snapshot()
}
