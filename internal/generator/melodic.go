package generator

import (
	"context"
	"errors"
	"log"
	"math"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"time"

	"github.com/satindergrewal/handpan/internal/voice"
)

// Playable band of the melodic instrument.
const (
	LowLimit  = 20 // G#0
	HighLimit = 71 // B4
)

const (
	DefaultTempo = 84.0
	TempoMin     = 68.0
	TempoMax     = 115.0
	DefaultRoot  = 60

	historySize = 8

	chordChance  = 0.9
	accentChance = 0.25
	liftChance   = 0.2
	colorChance  = 0.25
	fifthChance  = 0.5

	chordStagger = 50 * time.Millisecond
)

// band is an inclusive integer range.
type band struct{ lo, hi int }

func (b band) clamp(v int) int { return voice.Clamp(v, b.lo, b.hi) }

var (
	pitchBand  = band{LowLimit, HighLimit}
	phraseVel  = band{60, 115}
	chordVel   = band{65, 90}
	droneVel   = band{55, 76}
	accentVel  = band{92, 115}
	octaves    = []int{-24, -12, 0}
	durPool    = []float64{0.25, 0.5, 0.75, 1.0}
	chordBeats = []float64{4, 6, 8}
	droneBeats = []float64{8, 12, 16}
	colorSteps = []int{7, 5, 9} // fifth, fourth, sixth

	chordPalette = [][]int{
		{0, 3},    // minor third
		{0, 5},    // fourth
		{0, 7},    // open fifth
		{0, 3, 7}, // minor triad
		{0, 5, 9}, // sixth colour
	}
)

// MelodicConfig configures a Melodic generator.
type MelodicConfig struct {
	Tempo    float64 // 0 picks a tempo in [TempoMin, TempoMax]
	RootNote int     // 0-127; out of range picks DefaultRoot
	Mode     string
	Seed     uint64
}

// State is a point-in-time view of a melodic performance.
type State struct {
	Tempo   float64 `json:"tempo"`
	Root    int     `json:"root"`
	Mode    string  `json:"mode"`
	Scale   []int   `json:"scale"`
	Section Section `json:"section"`
	Bar     int     `json:"bar"`
	Recent  []int   `json:"recent"`
}

// Melodic layers a bar loop, a chord pad and a background drone around a
// shared tonal centre. The bar loop owns all musical state; the drone and
// chord layers only read the tonic.
type Melodic struct {
	player Player
	cfg    MelodicConfig
	tempo  Tempo
	seed   uint64
	rng    *rand.Rand

	mu    sync.RWMutex
	state State

	tonic       atomic.Int32
	modeLeft    int
	sectionLeft int
	chord       *layer
}

// NewMelodic creates a melodic generator playing into p.
func NewMelodic(p Player, cfg MelodicConfig) *Melodic {
	seed := cfg.Seed
	if seed == 0 {
		seed = rand.Uint64()
	}
	rng := NewRand(seed)

	if !IsValidMode(cfg.Mode) {
		if cfg.Mode != "" {
			log.Printf("Unknown mode %q, using %s", cfg.Mode, DefaultMode)
		}
		cfg.Mode = DefaultMode
	}
	if cfg.RootNote < voice.MinPitch || cfg.RootNote > voice.MaxPitch {
		cfg.RootNote = DefaultRoot
	}
	tempo := cfg.Tempo
	if tempo <= 0 {
		tempo = uniform(rng, TempoMin, TempoMax)
	}

	return &Melodic{
		player: p,
		cfg:    cfg,
		tempo:  Tempo(tempo),
		seed:   seed,
		rng:    rng,
	}
}

// Tempo returns the generator tempo.
func (m *Melodic) Tempo() Tempo {
	return m.tempo
}

// Snapshot returns a copy of the current state.
func (m *Melodic) Snapshot() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s := m.state
	s.Scale = append([]int(nil), m.state.Scale...)
	s.Recent = append([]int(nil), m.state.Recent...)
	return s
}

// Run plays bars until ctx is cancelled or a layer fails. The drone and
// any chord layer are cancelled and awaited before Run returns.
func (m *Melodic) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	m.reset()
	log.Printf("Melodic generator @ %.1f BPM | mode %s | pitch band [%d-%d]",
		float64(m.tempo), m.cfg.Mode, LowLimit, HighLimit)

	droneRng := rand.New(rand.NewPCG(m.seed, m.seed^0xd1b54a32d192ed03))
	drone := spawn(ctx, func(ctx context.Context) {
		if err := m.drone(ctx, droneRng); err != nil {
			cancel(err)
		}
	})
	defer func() {
		drone.stop()
		m.chord.stop()
		m.chord = nil
		log.Println("Melodic generator layers stopped")
	}()

	for ctx.Err() == nil {
		if err := m.bar(ctx, cancel); err != nil {
			return err
		}
	}

	if cause := context.Cause(ctx); cause != nil &&
		!errors.Is(cause, context.Canceled) && !errors.Is(cause, context.DeadlineExceeded) {
		return cause
	}
	return nil
}

func (m *Melodic) reset() {
	mode := ModeGraph[m.cfg.Mode]
	root := m.cfg.RootNote + mode.Offset

	m.mu.Lock()
	m.state = State{
		Tempo:   float64(m.tempo),
		Root:    root,
		Mode:    mode.Name,
		Scale:   append([]int(nil), mode.Steps...),
		Section: SectionIntro,
	}
	m.mu.Unlock()

	m.tonic.Store(int32(root))
	m.modeLeft = m.dwell()
	m.sectionLeft = 4 + m.rng.IntN(5)
}

// dwell returns how many bars to stay in a mode.
func (m *Melodic) dwell() int {
	return 8 + m.rng.IntN(9)
}

// advance moves to the next bar, switching section or mode when their
// dwell runs out.
func (m *Melodic) advance() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.state.Bar++

	m.sectionLeft--
	if m.sectionLeft <= 0 {
		m.state.Section = m.state.Section.next()
		m.sectionLeft = 4 + m.rng.IntN(5)
	}

	m.modeLeft--
	if m.modeLeft > 0 {
		return
	}
	m.modeLeft = m.dwell()

	g, ok := ModeGraph[m.state.Mode]
	if !ok || len(g.Adjacent) == 0 {
		return
	}
	next := ModeGraph[pick(m.rng, g.Adjacent)]
	log.Printf("Mode transition: %s -> %s (bar %d)", m.state.Mode, next.Name, m.state.Bar)

	m.state.Mode = next.Name
	m.state.Scale = append(m.state.Scale[:0], next.Steps...)
	m.state.Root = m.cfg.RootNote + next.Offset
	m.tonic.Store(int32(m.state.Root))
}

// bar plays one bar: an optional chord launch, one or two phrases, an
// optional accent and a rest.
func (m *Melodic) bar(ctx context.Context, fail context.CancelCauseFunc) error {
	m.advance()

	beat := m.tempo.Beats(1)
	base := pitchBand.clamp(m.state.Root + pick(m.rng, octaves))

	if m.chord == nil || m.chord.finished() {
		if m.rng.Float64() < chordChance {
			m.launchChord(ctx, base, fail)
		}
	}

	phrases := 1 + m.rng.IntN(2)
	if m.state.Section.quiet() {
		phrases = 1
	}
	for i := 0; i < phrases && ctx.Err() == nil; i++ {
		if err := m.phrase(ctx, base); err != nil {
			return err
		}
	}

	if ctx.Err() == nil && m.rng.Float64() < accentChance {
		if err := m.accent(ctx, base-12, scale(beat, 2.5)); err != nil {
			return err
		}
	}

	sleep(ctx, scale(beat, uniform(m.rng, 0.5, 1.2)))
	return nil
}

// launchChord starts a sustained chord in the background. The bar loop
// does not wait for it.
func (m *Melodic) launchChord(ctx context.Context, base int, fail context.CancelCauseFunc) {
	pattern := pick(m.rng, chordPalette)
	dur := m.tempo.Beats(pick(m.rng, chordBeats))
	vel := chordVel.lo + m.rng.IntN(chordVel.hi-chordVel.lo+1)

	notes := make([]int, len(pattern))
	for i, step := range pattern {
		notes[i] = pitchBand.clamp(base + step)
	}

	m.chord = spawn(ctx, func(ctx context.Context) {
		for i, n := range notes {
			if i > 0 && !sleep(ctx, chordStagger) {
				return
			}
			if err := m.player.Play(n, vel, dur); err != nil {
				fail(err)
				return
			}
		}
		sleep(ctx, dur)
	})
}

// phrase plays a motif of 4-8 notes over base. Submissions do not block,
// and the wait between notes is shorter than the notes themselves so
// consecutive notes overlap.
func (m *Melodic) phrase(ctx context.Context, base int) error {
	length := 4 + m.rng.IntN(5)
	energy := m.rng.Float64()
	if m.state.Section == SectionPeak {
		energy = math.Min(1, energy+0.2)
	}
	center := lerp(80, 104, energy)

	for i := 0; i < length; i++ {
		if ctx.Err() != nil {
			return nil
		}

		note := m.pickNote(base)
		vel := phraseVel.clamp(int(center + 18*math.Sin(float64(i)/2.0)))
		dur := m.tempo.Beats(pick(m.rng, durPool))

		if m.rng.Float64() < colorChance {
			color := pitchBand.clamp(note + pick(m.rng, colorSteps))
			if err := m.player.Play(color, max(phraseVel.lo, vel-15), scale(dur, 1.2)); err != nil {
				return err
			}
		}
		if err := m.player.Play(note, vel, dur); err != nil {
			return err
		}
		m.remember(note)

		if !sleep(ctx, scale(dur, uniform(m.rng, 0.6, 1.0))) {
			return nil
		}
	}

	sleep(ctx, m.tempo.Beats(uniform(m.rng, 0.3, 0.8)))
	return nil
}

// pickNote draws a scale degree over base, with an occasional octave
// lift. A repeat of the previous note is re-drawn once.
func (m *Melodic) pickNote(base int) int {
	draw := func() int {
		n := base + pick(m.rng, m.state.Scale)
		if m.rng.Float64() < liftChance {
			n += 12
		}
		return pitchBand.clamp(n)
	}

	n := draw()
	if r := m.state.Recent; len(r) > 0 && r[len(r)-1] == n {
		n = draw()
	}
	return n
}

func (m *Melodic) remember(note int) {
	m.mu.Lock()
	m.state.Recent = append(m.state.Recent, note)
	if len(m.state.Recent) > historySize {
		m.state.Recent = m.state.Recent[len(m.state.Recent)-historySize:]
	}
	m.mu.Unlock()
}

// accent plays a single loud low note followed by a short pause.
func (m *Melodic) accent(ctx context.Context, note int, dur time.Duration) error {
	vel := accentVel.lo + m.rng.IntN(accentVel.hi-accentVel.lo+1)
	if err := m.player.Play(pitchBand.clamp(note), vel, dur); err != nil {
		return err
	}
	sleep(ctx, scale(dur, 0.25))
	return nil
}

// drone holds low pedal tones two octaves under the tonic for the whole
// performance.
func (m *Melodic) drone(ctx context.Context, rng *rand.Rand) error {
	for ctx.Err() == nil {
		root := pitchBand.clamp(int(m.tonic.Load()) - 24)
		fifth := pitchBand.clamp(root + 7)
		dur := m.tempo.Beats(pick(rng, droneBeats))
		vel := 60 + rng.IntN(17)

		if err := m.player.Play(root, droneVel.clamp(vel), dur); err != nil {
			return err
		}
		if rng.Float64() < fifthChance {
			if err := m.player.Play(fifth, droneVel.clamp(max(55, vel-10)), scale(dur, 0.9)); err != nil {
				return err
			}
		}
		if !sleep(ctx, scale(dur, uniform(rng, 0.8, 1.2))) {
			break
		}
	}
	return nil
}

func lerp(a, b, t float64) float64 {
	return a + (b-a)*t
}

// layer is a cancellable background activity owned by the bar loop.
type layer struct {
	cancel context.CancelFunc
	done   chan struct{}
}

func spawn(ctx context.Context, fn func(ctx context.Context)) *layer {
	ctx, cancel := context.WithCancel(ctx)
	l := &layer{cancel: cancel, done: make(chan struct{})}
	go func() {
		defer close(l.done)
		defer cancel()
		fn(ctx)
	}()
	return l
}

func (l *layer) finished() bool {
	select {
	case <-l.done:
		return true
	default:
		return false
	}
}

// stop cancels the layer and waits for it to exit.
func (l *layer) stop() {
	if l == nil {
		return
	}
	l.cancel()
	<-l.done
}
