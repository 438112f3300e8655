package audio

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/gopxl/beep"
)

// Status is a point-in-time view of the pipeline.
type Status struct {
	Frames  uint64        `json:"frames"`
	Peak    float64       `json:"peak"` // last frame, 0..1
	Elapsed time.Duration `json:"elapsed"`
	Dropped uint64        `json:"dropped"`
}

// Pipeline renders a streamer into PCM frames at real-time rate.
type Pipeline struct {
	src     beep.Streamer
	frameCh chan []int16
	fadeIn  int // frames

	mu     sync.RWMutex
	status Status
}

// NewPipeline creates a pipeline rendering src. The first fadeIn of output
// is faded in from silence.
func NewPipeline(src beep.Streamer, fadeIn time.Duration) *Pipeline {
	return &Pipeline{
		src:     src,
		frameCh: make(chan []int16, 100),
		fadeIn:  int(fadeIn / FrameDuration),
	}
}

// Frames returns the channel of outgoing PCM frames (20ms each). It is
// closed when Run returns.
func (p *Pipeline) Frames() <-chan []int16 {
	return p.frameCh
}

// Status returns current render info.
func (p *Pipeline) Status() Status {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.status
}

// Run renders one frame per tick. Blocks until ctx is cancelled or the
// source is drained.
func (p *Pipeline) Run(ctx context.Context) {
	defer close(p.frameCh)

	ticker := time.NewTicker(FrameDuration)
	defer ticker.Stop()

	buf := make([][2]float64, FrameSize)
	log.Printf("Audio pipeline running (%d Hz, %v frames)", SampleRate, FrameDuration)

	for i := 0; ; i++ {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		n, ok := p.src.Stream(buf)
		for j := n; j < len(buf); j++ {
			buf[j] = [2]float64{}
		}
		if i < p.fadeIn {
			gain := Smoothstep(float64(i) / float64(p.fadeIn))
			for j := range buf {
				buf[j][0] *= gain
				buf[j][1] *= gain
			}
		}

		frame := make([]int16, FrameSamples)
		peak := Interleave(frame, buf)
		p.record(peak)

		select {
		case p.frameCh <- frame:
		case <-ctx.Done():
			return
		default:
			p.mu.Lock()
			p.status.Dropped++
			p.mu.Unlock()
		}

		if !ok {
			if err := p.src.Err(); err != nil {
				log.Printf("Audio source failed: %v", err)
			}
			log.Println("Audio source drained")
			return
		}
	}
}

func (p *Pipeline) record(peak float64) {
	p.mu.Lock()
	p.status.Frames++
	p.status.Peak = peak
	p.status.Elapsed = time.Duration(p.status.Frames) * FrameDuration
	p.mu.Unlock()
}

// Drain discards frames until the pipeline closes them. It stands in for a
// listener when output is headless.
func Drain(frames <-chan []int16) {
	for range frames {
	}
}
