package synth

import (
	"fmt"
	"log"
	"math"
	"sync"

	"github.com/gopxl/beep"
	"github.com/satindergrewal/handpan/internal/audio"
)

// Config configures the built-in tone synth.
type Config struct {
	MaxVoices    int
	MasterVolume float64 // linear gain, 0 mutes
	ReverbLevel  float64 // wet mix 0..1, 0 disables
	ReverbRoom   float64 // room size 0..1
	ChorusDepth  float64 // 0..1, 0 disables
}

// DefaultConfig returns the settings used when none are given.
func DefaultConfig() Config {
	return Config{
		MaxVoices:    64,
		MasterVolume: 0.3,
		ReverbLevel:  0.7,
		ReverbRoom:   0.8,
	}
}

const voiceGain = 0.25 // per-voice headroom at full velocity

// Tone is a polyphonic synth. It implements the voice engine backend and
// beep.Streamer; whatever plays the stream hears the notes.
type Tone struct {
	cfg  Config
	rate beep.SampleRate

	mu       sync.Mutex
	voices   []toneVoice
	programs map[int]int // channel -> program
	clock    uint64
	loaded   int
	closed   bool
	out      beep.Streamer
	closer   func() error
}

// NewTone creates a synth rendering at audio.Rate.
func NewTone(cfg Config) *Tone {
	if cfg.MaxVoices <= 0 {
		cfg.MaxVoices = DefaultConfig().MaxVoices
	}
	t := &Tone{
		cfg:      cfg,
		rate:     audio.Rate,
		voices:   make([]toneVoice, cfg.MaxVoices),
		programs: make(map[int]int),
	}

	var s beep.Streamer = beep.StreamerFunc(t.render)
	if cfg.ChorusDepth > 0 {
		s = newChorus(s, cfg.ChorusDepth, t.rate)
	}
	if cfg.ReverbLevel > 0 {
		s = newReverb(s, cfg.ReverbLevel, cfg.ReverbRoom, t.rate)
	}
	t.out = newVolume(s, cfg.MasterVolume)
	return t
}

// LoadInstrument selects the patch for a channel by General MIDI program.
// The bank is accepted for compatibility and does not change the patch.
func (t *Tone) LoadInstrument(channel, bank, program int) (int, error) {
	if channel < 0 || channel > 15 {
		return 0, fmt.Errorf("channel %d out of range 0-15", channel)
	}
	if program < 0 || program > 127 {
		return 0, fmt.Errorf("program %d out of range 0-127", program)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return 0, ErrClosed
	}
	t.programs[channel] = program
	t.loaded++
	log.Printf("Tone synth: channel %d -> %s (bank %d, program %d, %d voices)",
		channel, timbreFor(program).name, bank, program, len(t.voices))
	return t.loaded, nil
}

// NoteOn starts a voice, stealing the oldest one when all are busy.
// Velocity 0 releases the pitch.
func (t *Tone) NoteOn(channel, pitch, velocity int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return
	}
	if velocity <= 0 {
		t.release(channel, pitch)
		return
	}

	tb := sine
	if program, ok := t.programs[channel]; ok {
		tb = timbreFor(program)
	}
	t.clock++
	v := t.allocate()
	*v = newToneVoice(channel, pitch, velocity, tb, t.rate, t.clock)
}

// NoteOff releases every held voice playing pitch on channel.
func (t *Tone) NoteOff(channel, pitch int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.release(channel, pitch)
}

// Close silences all voices and releases the output, if any.
func (t *Tone) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	for i := range t.voices {
		t.voices[i].active = false
	}
	closer := t.closer
	t.mu.Unlock()

	if closer != nil {
		return closer()
	}
	return nil
}

// ActiveVoices returns the number of sounding voices.
func (t *Tone) ActiveVoices() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := 0
	for i := range t.voices {
		if t.voices[i].active {
			n++
		}
	}
	return n
}

// Stream renders the synth through its effect chain.
func (t *Tone) Stream(samples [][2]float64) (int, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.out.Stream(samples)
}

func (t *Tone) Err() error { return nil }

// render mixes the voices. Called with mu held.
func (t *Tone) render(samples [][2]float64) (int, bool) {
	for i := range samples {
		samples[i] = [2]float64{}
	}
	rate := float64(t.rate)
	for vi := range t.voices {
		v := &t.voices[vi]
		for i := range samples {
			if !v.active {
				break
			}
			s := v.next(rate)
			samples[i][0] += s
			samples[i][1] += s
		}
	}
	return len(samples), true
}

func (t *Tone) allocate() *toneVoice {
	oldest := 0
	for i := range t.voices {
		if !t.voices[i].active {
			return &t.voices[i]
		}
		if t.voices[i].started < t.voices[oldest].started {
			oldest = i
		}
	}
	return &t.voices[oldest]
}

func (t *Tone) release(channel, pitch int) {
	for i := range t.voices {
		v := &t.voices[i]
		if v.active && !v.released && v.channel == channel && v.pitch == pitch {
			v.release()
		}
	}
}

// toneVoice is one sounding note. Envelope lengths are in samples.
type toneVoice struct {
	active   bool
	released bool
	started  uint64

	channel, pitch int
	freq, amp      float64
	modRatio       float64
	modIndex       float64
	phase, mphase  float64

	pos                       int
	attackN, decayN, releaseN int
	ring                      float64
	sustain                   float64

	level    float64
	relLevel float64
	relPos   int
}

func newToneVoice(channel, pitch, velocity int, tb timbre, rate beep.SampleRate, clock uint64) toneVoice {
	return toneVoice{
		active:   true,
		started:  clock,
		channel:  channel,
		pitch:    pitch,
		freq:     pitchToFreq(pitch),
		amp:      voiceGain * tb.gain * float64(velocity) / 127,
		modRatio: tb.modRatio,
		modIndex: tb.modIndex,
		attackN:  max(1, rate.N(tb.attack)),
		decayN:   max(1, rate.N(tb.decay)),
		releaseN: max(1, rate.N(tb.release)),
		ring:     float64(rate.N(tb.ring)),
		sustain:  tb.sustain,
	}
}

func (v *toneVoice) release() {
	v.released = true
	v.relLevel = v.level
	v.relPos = 0
}

// next returns the next sample and advances the voice.
func (v *toneVoice) next(rate float64) float64 {
	env := v.envelope()
	v.level = env

	mod := v.modIndex * env * math.Sin(2*math.Pi*v.mphase)
	s := math.Sin(2*math.Pi*v.phase+mod) * v.amp * env

	v.phase += v.freq / rate
	v.phase -= math.Floor(v.phase)
	v.mphase += v.freq * v.modRatio / rate
	v.mphase -= math.Floor(v.mphase)
	v.pos++

	if v.released {
		v.relPos++
		if v.relPos >= v.releaseN {
			v.active = false
		}
	} else if v.ring > 0 && v.pos > v.attackN && env < 1e-4 {
		v.active = false // rung out while held
	}
	return s
}

func (v *toneVoice) envelope() float64 {
	if v.released {
		return v.relLevel * (1 - float64(v.relPos)/float64(v.releaseN))
	}

	var lvl float64
	switch {
	case v.pos < v.attackN:
		lvl = audio.Smoothstep(float64(v.pos) / float64(v.attackN))
	case v.pos < v.attackN+v.decayN:
		t := float64(v.pos-v.attackN) / float64(v.decayN)
		lvl = 1 - (1-v.sustain)*t
	default:
		lvl = v.sustain
	}
	if v.ring > 0 {
		lvl *= math.Exp(-float64(v.pos) / v.ring)
	}
	return lvl
}

// pitchToFreq converts a MIDI pitch to Hz (A4 = 69 = 440 Hz).
func pitchToFreq(pitch int) float64 {
	return 440 * math.Pow(2, float64(pitch-69)/12)
}
