package synth

import "time"

// timbre is a two-operator FM patch with an ADSR envelope.
type timbre struct {
	name     string
	modRatio float64 // modulator frequency relative to the carrier
	modIndex float64 // modulation depth in radians
	attack   time.Duration
	decay    time.Duration
	sustain  float64
	release  time.Duration
	ring     time.Duration // exponential decay time constant, 0 holds
	gain     float64
}

var (
	steelDrum = timbre{
		name: "steel drum", modRatio: 2, modIndex: 1.6,
		attack: 4 * time.Millisecond, decay: 300 * time.Millisecond, sustain: 0.35,
		release: 350 * time.Millisecond, ring: 1200 * time.Millisecond, gain: 0.9,
	}
	piano = timbre{
		name: "piano", modRatio: 1, modIndex: 0.8,
		attack: 3 * time.Millisecond, decay: 600 * time.Millisecond, sustain: 0.25,
		release: 250 * time.Millisecond, ring: 2500 * time.Millisecond, gain: 0.8,
	}
	bass = timbre{
		name: "bass", modRatio: 1, modIndex: 0.5,
		attack: 8 * time.Millisecond, decay: 200 * time.Millisecond, sustain: 0.7,
		release: 120 * time.Millisecond, gain: 1,
	}
	pad = timbre{
		name: "pad", modRatio: 1.003, modIndex: 0.3,
		attack: 400 * time.Millisecond, decay: 500 * time.Millisecond, sustain: 0.8,
		release: 900 * time.Millisecond, gain: 0.6,
	}
	sine = timbre{
		name: "sine",
		attack: 10 * time.Millisecond, decay: 100 * time.Millisecond, sustain: 0.9,
		release: 150 * time.Millisecond, gain: 0.8,
	}
)

// timbreFor maps a General MIDI program number (0-based) to a patch.
func timbreFor(program int) timbre {
	switch {
	case program >= 8 && program <= 15, program >= 112 && program <= 119:
		return steelDrum // chromatic and pitched percussion
	case program <= 7:
		return piano
	case program >= 32 && program <= 39:
		return bass
	case program >= 48 && program <= 55, program >= 88 && program <= 95:
		return pad // ensembles and synth pads
	default:
		return sine
	}
}
