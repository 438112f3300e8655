package voice

import (
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"
)

// Sentinel errors
var (
	ErrNotStarted = errors.New("voice engine not started")
	ErrStopped    = errors.New("voice engine already stopped")
)

// Backend is the synthesis capability set the engine drives.
type Backend interface {
	LoadInstrument(channel, bank, program int) (int, error)
	NoteOn(channel, pitch, velocity int)
	NoteOff(channel, pitch int)
	Close() error
}

// Engine accepts notes and renders them through a Backend.
// Play never waits for the note to finish.
type Engine interface {
	Start() error
	Play(pitch, velocity int, d time.Duration) error
	Stop() error
	Stats() Stats
}

// Strategy selects how an Engine schedules notes.
type Strategy string

const (
	StrategyPoly  Strategy = "poly"  // one playback unit per note
	StrategyQueue Strategy = "queue" // single consumer, strictly monophonic
)

// Config holds the instrument selection applied when an engine starts.
type Config struct {
	Channel int
	Bank    int
	Program int
}

// New returns an engine for the given strategy.
func New(s Strategy, backend Backend, cfg Config) (Engine, error) {
	switch s {
	case StrategyPoly, "":
		return NewPoly(backend, cfg), nil
	case StrategyQueue:
		return NewQueue(backend, cfg), nil
	default:
		return nil, fmt.Errorf("unknown voice strategy %q", s)
	}
}

// Stats counts notes by outcome.
type Stats struct {
	Submitted uint64 `json:"submitted"`
	Completed uint64 `json:"completed"`
	Cancelled uint64 `json:"cancelled"`
	Active    int64  `json:"active"`
}

type counters struct {
	submitted atomic.Uint64
	completed atomic.Uint64
	cancelled atomic.Uint64
	active    atomic.Int64
}

func (c *counters) snapshot() Stats {
	return Stats{
		Submitted: c.submitted.Load(),
		Completed: c.completed.Load(),
		Cancelled: c.cancelled.Load(),
		Active:    c.active.Load(),
	}
}

// output serializes access to the backend. Both strategies route every
// backend call through it.
type output struct {
	mu      sync.Mutex
	backend Backend
	channel int
}

func (o *output) load(bank, program int) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	id, err := o.backend.LoadInstrument(o.channel, bank, program)
	if err != nil {
		return fmt.Errorf("load instrument %d:%d: %w", bank, program, err)
	}
	log.Printf("Instrument loaded: bank %d program %d (voice %d)", bank, program, id)
	return nil
}

func (o *output) noteOn(n Note) {
	o.mu.Lock()
	o.backend.NoteOn(o.channel, n.Pitch, n.Velocity)
	o.mu.Unlock()
}

func (o *output) noteOff(n Note) {
	o.mu.Lock()
	o.backend.NoteOff(o.channel, n.Pitch)
	o.mu.Unlock()
}

// release closes the backend. An engine that ran first silences every
// pitch; one that never started sends nothing.
func (o *output) release(ran bool) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if ran {
		for p := MinPitch; p <= MaxPitch; p++ {
			o.backend.NoteOff(o.channel, p)
		}
	}
	return o.backend.Close()
}

// lifecycle tracks the idle -> running -> stopped progression shared by
// both engine strategies. Stopped is terminal.
type lifecycle int

const (
	stateIdle lifecycle = iota
	stateRunning
	stateStopped
)
