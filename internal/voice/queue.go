package voice

import (
	"context"
	"log"
	"sync"
	"time"
)

// PollInterval bounds how long the queue consumer waits for a note before
// checking for shutdown again.
const PollInterval = 50 * time.Millisecond

// Queue buffers notes in an unbounded FIFO drained by a single consumer.
// A note is fully rendered before the next one starts, so playback is
// monophonic and in submission order. Notes queue rather than drop.
type Queue struct {
	out   output
	cfg   Config
	stats counters

	mu      sync.Mutex
	state   lifecycle
	pending []Note
	wake    chan struct{}
	cancel  context.CancelFunc
	done    chan struct{}
	stopped chan struct{}
}

// NewQueue creates a serialized engine on top of backend.
func NewQueue(backend Backend, cfg Config) *Queue {
	return &Queue{
		out:     output{backend: backend, channel: cfg.Channel},
		cfg:     cfg,
		wake:    make(chan struct{}, 1),
		stopped: make(chan struct{}),
	}
}

// Start loads the instrument and launches the consumer. Calling it on a
// running engine does nothing.
func (q *Queue) Start() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	switch q.state {
	case stateRunning:
		return nil
	case stateStopped:
		return ErrStopped
	}

	if err := q.out.load(q.cfg.Bank, q.cfg.Program); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	q.cancel = cancel
	q.done = make(chan struct{})
	q.state = stateRunning
	go q.consume(ctx)

	log.Println("Voice engine started (queue)")
	return nil
}

// Play appends the note to the queue and returns immediately.
func (q *Queue) Play(pitch, velocity int, d time.Duration) error {
	n := NewNote(pitch, velocity, d)

	q.mu.Lock()
	if q.state != stateRunning {
		q.mu.Unlock()
		return ErrNotStarted
	}
	q.pending = append(q.pending, n)
	q.mu.Unlock()

	q.stats.submitted.Add(1)
	select {
	case q.wake <- struct{}{}:
	default:
	}
	return nil
}

// Pending returns the number of notes waiting behind the current one.
func (q *Queue) Pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

func (q *Queue) next() (Note, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.pending) == 0 {
		return Note{}, false
	}
	n := q.pending[0]
	q.pending = q.pending[1:]
	return n, true
}

func (q *Queue) consume(ctx context.Context) {
	defer close(q.done)

	poll := time.NewTimer(PollInterval)
	defer poll.Stop()

	for {
		n, ok := q.next()
		if !ok {
			poll.Reset(PollInterval)
			select {
			case <-ctx.Done():
				return
			case <-q.wake:
			case <-poll.C:
			}
			continue
		}

		if !q.render(ctx, n) {
			return
		}
	}
}

// render plays one note to completion. Returns false if shutdown
// interrupted it.
func (q *Queue) render(ctx context.Context, n Note) bool {
	q.stats.active.Add(1)
	defer q.stats.active.Add(-1)

	q.out.noteOn(n)
	timer := time.NewTimer(n.Duration)
	defer timer.Stop()

	select {
	case <-timer.C:
		q.out.noteOff(n)
		q.stats.completed.Add(1)
		return true
	case <-ctx.Done():
		q.out.noteOff(n)
		q.stats.cancelled.Add(1)
		return false
	}
}

// Stop drops queued notes, interrupts the current one, waits for the
// consumer to exit, silences the full pitch range if the engine ran and
// releases the backend.
func (q *Queue) Stop() error {
	q.mu.Lock()
	if q.state == stateStopped {
		q.mu.Unlock()
		<-q.stopped
		return nil
	}
	ran := q.state == stateRunning
	q.state = stateStopped
	dropped := len(q.pending)
	q.pending = nil
	cancel, done := q.cancel, q.done
	q.mu.Unlock()

	defer close(q.stopped)

	q.stats.cancelled.Add(uint64(dropped))
	if cancel != nil {
		cancel()
		<-done
	}

	err := q.out.release(ran)
	s := q.stats.snapshot()
	log.Printf("Voice engine stopped (submitted: %d, completed: %d, cancelled: %d)", s.Submitted, s.Completed, s.Cancelled)
	return err
}

// Stats returns note counters.
func (q *Queue) Stats() Stats {
	return q.stats.snapshot()
}
