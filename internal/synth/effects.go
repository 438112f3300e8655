package synth

import (
	"math"
	"time"

	"github.com/gopxl/beep"
	"github.com/gopxl/beep/effects"
)

// newVolume wraps s in a linear gain. math.Log2(0) is -Inf, so zero
// volume is made silent instead.
func newVolume(s beep.Streamer, vol float64) *effects.Volume {
	if vol <= 0 {
		return &effects.Volume{Streamer: s, Base: 2, Volume: 0, Silent: true}
	}
	return &effects.Volume{Streamer: s, Base: 2, Volume: math.Log2(vol), Silent: false}
}

// chorus mixes in a copy of the signal through a slowly swept delay. The
// two channels sweep a quarter cycle apart.
type chorus struct {
	streamer beep.Streamer
	mix      float64
	buf      [][2]float64
	pos      int
	phase    float64
	step     float64 // LFO cycles per sample
	base     float64 // centre delay in samples
	sweep    float64 // delay swing in samples
}

func newChorus(s beep.Streamer, depth float64, rate beep.SampleRate) *chorus {
	depth = math.Min(1, depth)
	return &chorus{
		streamer: s,
		mix:      0.5 * depth,
		buf:      make([][2]float64, rate.N(40*time.Millisecond)),
		step:     0.8 / float64(rate),
		base:     float64(rate.N(15 * time.Millisecond)),
		sweep:    depth * float64(rate.N(5*time.Millisecond)),
	}
}

func (c *chorus) Stream(samples [][2]float64) (n int, ok bool) {
	n, ok = c.streamer.Stream(samples)
	size := len(c.buf)

	for i := 0; i < n; i++ {
		c.buf[c.pos] = samples[i]
		for ch := 0; ch < 2; ch++ {
			lfo := math.Sin(2 * math.Pi * (c.phase + 0.25*float64(ch)))
			d := c.base + c.sweep*lfo

			// Linear interpolation between the two taps around d.
			back := int(d)
			frac := d - float64(back)
			a := c.buf[(c.pos-back+size)%size][ch]
			b := c.buf[(c.pos-back-1+size)%size][ch]
			wet := a + (b-a)*frac

			samples[i][ch] = samples[i][ch]*(1-c.mix) + wet*c.mix
		}
		c.pos = (c.pos + 1) % size
		c.phase += c.step
		c.phase -= math.Floor(c.phase)
	}
	return n, ok
}

func (c *chorus) Err() error { return c.streamer.Err() }

// Reverb tuning in samples at 44.1 kHz, scaled to the output rate.
var (
	combTuning    = []int{1116, 1188, 1277, 1356}
	allpassTuning = []int{556, 441}
)

const (
	stereoSpread = 23
	reverbInput  = 0.015
	reverbDamp   = 0.2
)

type comb struct {
	buf      []float64
	pos      int
	feedback float64
	store    float64
}

func (c *comb) process(x float64) float64 {
	out := c.buf[c.pos]
	c.store = out*(1-reverbDamp) + c.store*reverbDamp
	c.buf[c.pos] = x + c.store*c.feedback
	c.pos = (c.pos + 1) % len(c.buf)
	return out
}

type allpass struct {
	buf []float64
	pos int
}

func (a *allpass) process(x float64) float64 {
	b := a.buf[a.pos]
	a.buf[a.pos] = x + b*0.5
	a.pos = (a.pos + 1) % len(a.buf)
	return b - x
}

// reverb is a small Schroeder network: parallel damped combs into series
// allpasses, one network per channel.
type reverb struct {
	streamer beep.Streamer
	dry, wet float64
	combs    [2][]*comb
	passes   [2][]*allpass
}

func newReverb(s beep.Streamer, level, room float64, rate beep.SampleRate) *reverb {
	level = math.Min(1, level)
	scale := float64(rate) / 44100
	feedback := 0.7 + 0.28*math.Min(1, math.Max(0, room))

	r := &reverb{
		streamer: s,
		dry:      1 - 0.5*level,
		wet:      1.5 * level,
	}
	for ch := 0; ch < 2; ch++ {
		spread := ch * stereoSpread
		for _, n := range combTuning {
			size := int(float64(n+spread) * scale)
			r.combs[ch] = append(r.combs[ch], &comb{buf: make([]float64, size), feedback: feedback})
		}
		for _, n := range allpassTuning {
			size := int(float64(n+spread) * scale)
			r.passes[ch] = append(r.passes[ch], &allpass{buf: make([]float64, size)})
		}
	}
	return r
}

func (r *reverb) Stream(samples [][2]float64) (n int, ok bool) {
	n, ok = r.streamer.Stream(samples)
	for i := 0; i < n; i++ {
		in := (samples[i][0] + samples[i][1]) * reverbInput
		for ch := 0; ch < 2; ch++ {
			acc := 0.0
			for _, c := range r.combs[ch] {
				acc += c.process(in)
			}
			for _, a := range r.passes[ch] {
				acc = a.process(acc)
			}
			samples[i][ch] = samples[i][ch]*r.dry + acc*r.wet
		}
	}
	return n, ok
}

func (r *reverb) Err() error { return r.streamer.Err() }
