package voice

import "time"

const (
	MinPitch    = 0
	MaxPitch    = 127
	MinVelocity = 0
	MaxVelocity = 127

	// MinDuration is the shortest note the engine will render.
	MinDuration = 10 * time.Millisecond
)

// Note is a single sound request. Values are normalized by NewNote and
// never change afterwards.
type Note struct {
	Pitch    int
	Velocity int
	Duration time.Duration
}

// NewNote builds a Note with pitch and velocity clamped to the MIDI range
// and the duration floored at MinDuration.
func NewNote(pitch, velocity int, d time.Duration) Note {
	if d < MinDuration {
		d = MinDuration
	}
	return Note{
		Pitch:    Clamp(pitch, MinPitch, MaxPitch),
		Velocity: Clamp(velocity, MinVelocity, MaxVelocity),
		Duration: d,
	}
}

// Clamp limits v to [lo, hi].
func Clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
