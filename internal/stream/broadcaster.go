package stream

import (
	"context"
	"sync"
	"sync/atomic"
)

// Listener kinds.
const (
	KindHTTP   = "http"
	KindWebRTC = "webrtc"
)

// listenerBuffer is about 3 seconds of 20ms frames.
const listenerBuffer = 150

// Broadcaster fans out rendered PCM frames to N listeners.
type Broadcaster struct {
	mu        sync.RWMutex
	listeners map[*Listener]struct{}
	closed    chan struct{}

	frames  atomic.Uint64
	dropped atomic.Uint64
}

// Listener receives PCM frames from the broadcaster.
type Listener struct {
	C    chan []int16 // buffered channel of 20ms PCM frames
	Kind string
	done chan struct{}
	once sync.Once
}

// Done is closed when the listener is unsubscribed or the broadcast ends.
func (l *Listener) Done() <-chan struct{} {
	return l.done
}

func (l *Listener) stop() {
	l.once.Do(func() { close(l.done) })
}

// Stats counts broadcast activity.
type Stats struct {
	Frames    uint64         `json:"frames"`
	Dropped   uint64         `json:"dropped"`
	Listeners map[string]int `json:"listeners"`
}

// NewBroadcaster creates a new broadcaster.
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{
		listeners: make(map[*Listener]struct{}),
		closed:    make(chan struct{}),
	}
}

// Subscribe registers a new listener of the given kind.
func (b *Broadcaster) Subscribe(kind string) *Listener {
	l := &Listener{
		C:    make(chan []int16, listenerBuffer),
		Kind: kind,
		done: make(chan struct{}),
	}
	b.mu.Lock()
	b.listeners[l] = struct{}{}
	b.mu.Unlock()

	select {
	case <-b.closed:
		l.stop()
	default:
	}
	return l
}

// Unsubscribe removes a listener and signals it to stop.
func (b *Broadcaster) Unsubscribe(l *Listener) {
	b.mu.Lock()
	delete(b.listeners, l)
	b.mu.Unlock()
	l.stop()
}

// ListenerCount returns the number of active listeners.
func (b *Broadcaster) ListenerCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.listeners)
}

// Stats returns frame counters and listeners per kind.
func (b *Broadcaster) Stats() Stats {
	st := Stats{
		Frames:    b.frames.Load(),
		Dropped:   b.dropped.Load(),
		Listeners: make(map[string]int),
	}
	b.mu.RLock()
	for l := range b.listeners {
		st.Listeners[l.Kind]++
	}
	b.mu.RUnlock()
	return st
}

// Run reads frames from source and fans out to all listeners.
// Slow listeners get frames dropped rather than blocking the broadcast.
// When Run returns every listener's Done channel is closed.
func (b *Broadcaster) Run(ctx context.Context, source <-chan []int16) {
	defer b.close()
	for {
		select {
		case <-ctx.Done():
			return
		case frame, ok := <-source:
			if !ok {
				return
			}
			b.frames.Add(1)
			b.mu.RLock()
			for l := range b.listeners {
				select {
				case l.C <- frame:
				default:
					// listener too slow, drop frame to keep broadcast moving
					b.dropped.Add(1)
				}
			}
			b.mu.RUnlock()
		}
	}
}

func (b *Broadcaster) close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	close(b.closed)
	for l := range b.listeners {
		l.stop()
	}
}
