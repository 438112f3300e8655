package generator

import (
	"cmp"
	"context"
	"log"
	"math/rand/v2"
)

// Random plays one uniformly drawn note per beat.
type Random struct {
	player Player
	tempo  Tempo
	rng    *rand.Rand

	// Pitch and velocity bands, note length in beats.
	Low, High        int
	MinVel, MaxVel   int
	MinBeat, MaxBeat float64
}

// NewRandom creates a random generator. A non-positive tempo falls back to
// DefaultTempo.
func NewRandom(p Player, tempo Tempo, seed uint64) *Random {
	if tempo <= 0 {
		tempo = DefaultTempo
	}
	return &Random{
		player:  p,
		tempo:   tempo,
		rng:     NewRand(seed),
		Low:     48,
		High:    72,
		MinVel:  70,
		MaxVel:  120,
		MinBeat: 0.3,
		MaxBeat: 0.8,
	}
}

// Run plays until ctx is cancelled or the player fails. Bands given in
// reverse order are swapped.
func (r *Random) Run(ctx context.Context) error {
	low, high := ordered(r.Low, r.High)
	minVel, maxVel := ordered(r.MinVel, r.MaxVel)
	minBeat, maxBeat := ordered(r.MinBeat, r.MaxBeat)
	log.Printf("Random generator @ %.1f BPM | pitch band [%d-%d]", float64(r.tempo), low, high)

	for ctx.Err() == nil {
		pitch := low + r.rng.IntN(high-low+1)
		vel := minVel + r.rng.IntN(maxVel-minVel+1)
		dur := r.tempo.Beats(uniform(r.rng, minBeat, maxBeat))

		if err := r.player.Play(pitch, vel, dur); err != nil {
			return err
		}
		if !sleep(ctx, r.tempo.Beats(1)) {
			break
		}
	}
	return nil
}

func ordered[T cmp.Ordered](a, b T) (T, T) {
	if b < a {
		return b, a
	}
	return a, b
}
