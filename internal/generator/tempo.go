package generator

import "time"

// Tempo is a speed in beats per minute. It must be positive.
type Tempo float64

// BeatsToSeconds converts a beat count to seconds.
func (t Tempo) BeatsToSeconds(beats float64) float64 {
	return (60.0 / float64(t)) * beats
}

// Beats converts a beat count to a duration.
func (t Tempo) Beats(beats float64) time.Duration {
	return time.Duration(t.BeatsToSeconds(beats) * float64(time.Second))
}
