package generator

import (
	"context"
	"errors"
	"slices"
	"sync"
	"testing"
	"time"
)

func TestNewMelodicDefaults(t *testing.T) {
	tests := []struct {
		name     string
		cfg      MelodicConfig
		wantMode string
		wantRoot int
	}{
		{"empty", MelodicConfig{Seed: 1}, DefaultMode, 0},
		{"unknown mode", MelodicConfig{Mode: "lydian", RootNote: 60, Seed: 1}, DefaultMode, 60},
		{"explicit", MelodicConfig{Mode: "dorian", RootNote: 57, Tempo: 90, Seed: 1}, "dorian", 57},
		{"negative root", MelodicConfig{RootNote: -1, Seed: 1}, DefaultMode, DefaultRoot},
		{"root above range", MelodicConfig{RootNote: 128, Seed: 1}, DefaultMode, DefaultRoot},
		{"lowest root", MelodicConfig{RootNote: 0, Mode: "phrygian", Seed: 1}, "phrygian", 0},
		{"highest root", MelodicConfig{RootNote: 127, Seed: 1}, DefaultMode, 127},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewMelodic(&recordingPlayer{}, tt.cfg)
			if m.cfg.Mode != tt.wantMode {
				t.Errorf("Mode = %q, want %q", m.cfg.Mode, tt.wantMode)
			}
			if m.cfg.RootNote != tt.wantRoot {
				t.Errorf("RootNote = %d, want %d", m.cfg.RootNote, tt.wantRoot)
			}
		})
	}
}

func TestMelodicTempoRange(t *testing.T) {
	for seed := uint64(1); seed <= 50; seed++ {
		m := NewMelodic(&recordingPlayer{}, MelodicConfig{Seed: seed})
		if tempo := float64(m.Tempo()); tempo < TempoMin || tempo > TempoMax {
			t.Errorf("Seed %d: tempo %.2f outside [%v, %v]", seed, tempo, TempoMin, TempoMax)
		}
	}
	m := NewMelodic(&recordingPlayer{}, MelodicConfig{Tempo: 100, Seed: 1})
	if m.Tempo() != 100 {
		t.Errorf("Explicit tempo = %v, want 100", m.Tempo())
	}
}

func TestMelodicAdvance(t *testing.T) {
	m := NewMelodic(&recordingPlayer{}, MelodicConfig{Tempo: 90, RootNote: DefaultRoot, Seed: 42})
	m.reset()

	if s := m.Snapshot(); s.Section != SectionIntro || s.Bar != 0 || s.Mode != DefaultMode {
		t.Fatalf("Initial state = %+v", s)
	}

	prev := m.Snapshot()
	modes := map[string]bool{prev.Mode: true}
	sections := map[Section]bool{prev.Section: true}

	for i := 1; i <= 400; i++ {
		m.advance()
		s := m.Snapshot()

		if s.Bar != i {
			t.Fatalf("Bar = %d, want %d", s.Bar, i)
		}
		node, ok := ModeGraph[s.Mode]
		if !ok {
			t.Fatalf("Bar %d: unknown mode %q", i, s.Mode)
		}
		if s.Mode != prev.Mode {
			adjacent := false
			for _, a := range ModeGraph[prev.Mode].Adjacent {
				if a == s.Mode {
					adjacent = true
				}
			}
			if !adjacent {
				t.Errorf("Bar %d: transition %s -> %s is not an edge", i, prev.Mode, s.Mode)
			}
		}
		if s.Root != m.cfg.RootNote+node.Offset {
			t.Errorf("Bar %d: root %d, want %d", i, s.Root, m.cfg.RootNote+node.Offset)
		}
		if int(m.tonic.Load()) != s.Root {
			t.Errorf("Bar %d: tonic %d out of sync with root %d", i, m.tonic.Load(), s.Root)
		}
		if len(s.Scale) != len(node.Steps) {
			t.Errorf("Bar %d: scale %v does not match mode %s", i, s.Scale, s.Mode)
		}
		if s.Section != prev.Section && s.Section != prev.Section.next() {
			t.Errorf("Bar %d: section %s -> %s skips a step", i, prev.Section, s.Section)
		}
		if i > 20 && s.Section == SectionIntro {
			t.Errorf("Bar %d: intro revisited", i)
		}

		modes[s.Mode] = true
		sections[s.Section] = true
		prev = s
	}

	if len(modes) < 2 {
		t.Errorf("Only visited modes %v in 400 bars", modes)
	}
	for _, sec := range []Section{SectionRise, SectionPeak, SectionFall} {
		if !sections[sec] {
			t.Errorf("Section %s never reached", sec)
		}
	}
}

func TestSectionCycle(t *testing.T) {
	tests := []struct {
		from, want Section
	}{
		{SectionIntro, SectionRise},
		{SectionRise, SectionPeak},
		{SectionPeak, SectionFall},
		{SectionFall, SectionRise},
	}
	for _, tt := range tests {
		if got := tt.from.next(); got != tt.want {
			t.Errorf("%s.next() = %s, want %s", tt.from, got, tt.want)
		}
	}
	if !SectionIntro.quiet() || !SectionFall.quiet() || SectionPeak.quiet() || SectionRise.quiet() {
		t.Error("Only intro and fall should be quiet")
	}
}

func TestPickNoteInScale(t *testing.T) {
	m := NewMelodic(&recordingPlayer{}, MelodicConfig{Tempo: 90, RootNote: DefaultRoot, Seed: 9})
	m.reset()
	base := m.state.Root

	inScale := map[int]bool{}
	for _, step := range m.state.Scale {
		inScale[pitchBand.clamp(base+step)] = true
		inScale[pitchBand.clamp(base+step+12)] = true
	}
	for i := 0; i < 500; i++ {
		n := m.pickNote(base)
		if !inScale[n] {
			t.Fatalf("pickNote(%d) = %d, not a scale degree", base, n)
		}
	}
}

func TestRememberCapsHistory(t *testing.T) {
	m := NewMelodic(&recordingPlayer{}, MelodicConfig{Tempo: 90, Seed: 1})
	for i := 0; i < 20; i++ {
		m.remember(40 + i)
	}
	r := m.Snapshot().Recent
	if len(r) != historySize {
		t.Fatalf("History length %d, want %d", len(r), historySize)
	}
	if r[len(r)-1] != 59 {
		t.Errorf("Latest note = %d, want 59", r[len(r)-1])
	}
}

func TestMelodicBandsAndStop(t *testing.T) {
	p := &recordingPlayer{}
	m := NewMelodic(p, MelodicConfig{Tempo: fastTempo, RootNote: DefaultRoot, Seed: 11})
	g := New("melodic", m)
	g.Start(context.Background())

	time.Sleep(300 * time.Millisecond)
	if err := g.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	notes := p.all()
	if len(notes) < 10 {
		t.Fatalf("Melodic generator played only %d notes", len(notes))
	}
	for _, n := range notes {
		if n.pitch < LowLimit || n.pitch > HighLimit {
			t.Errorf("Pitch %d outside [%d, %d]", n.pitch, LowLimit, HighLimit)
		}
		if n.velocity < 55 || n.velocity > 115 {
			t.Errorf("Velocity %d outside [55, 115]", n.velocity)
		}
		if n.dur <= 0 {
			t.Errorf("Non-positive duration %v", n.dur)
		}
	}

	s := m.Snapshot()
	if s.Bar == 0 {
		t.Error("No bars advanced")
	}
	if !IsValidMode(s.Mode) {
		t.Errorf("Final mode %q not in graph", s.Mode)
	}

	after := p.count()
	time.Sleep(100 * time.Millisecond)
	if p.count() != after {
		t.Error("Drone or chord layer played after Stop returned")
	}
}

func TestMelodicPlayerErrorEndsRun(t *testing.T) {
	p := &recordingPlayer{}
	m := NewMelodic(p, MelodicConfig{Tempo: fastTempo, RootNote: DefaultRoot, Seed: 5})
	g := New("melodic", m)
	g.Start(context.Background())

	time.Sleep(30 * time.Millisecond)
	boom := errors.New("engine gone")
	p.fail(boom)

	waitDone(t, g.Done())
	if err := g.Stop(); !errors.Is(err, boom) {
		t.Errorf("Stop = %v, want %v", err, boom)
	}
}

// msTempo gives 1ms beats for tests that drive a single layer directly.
const msTempo = 60000.0

// timedPlayer records when each note was submitted.
type timedPlayer struct {
	recordingPlayer
	mu    sync.Mutex
	times []time.Time
}

func (p *timedPlayer) Play(pitch, velocity int, d time.Duration) error {
	p.mu.Lock()
	p.times = append(p.times, time.Now())
	p.mu.Unlock()
	return p.recordingPlayer.Play(pitch, velocity, d)
}

func (p *timedPlayer) stamps() []time.Time {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]time.Time(nil), p.times...)
}

func TestChordLayer(t *testing.T) {
	const base = 60
	for seed := uint64(1); seed <= 6; seed++ {
		p := &timedPlayer{}
		m := NewMelodic(p, MelodicConfig{Tempo: fastTempo, RootNote: DefaultRoot, Seed: seed})
		ctx, fail := context.WithCancelCause(context.Background())

		m.launchChord(ctx, base, fail)
		select {
		case <-m.chord.done:
		case <-time.After(2 * time.Second):
			t.Fatalf("Seed %d: chord layer never finished", seed)
		}
		fail(nil)

		notes, stamps := p.all(), p.stamps()
		if len(notes) < 2 || len(notes) > 3 {
			t.Fatalf("Seed %d: chord has %d notes, want 2 or 3", seed, len(notes))
		}

		intervals := make([]int, len(notes))
		for i, n := range notes {
			intervals[i] = n.pitch - base
			if n.velocity != notes[0].velocity || n.dur != notes[0].dur {
				t.Errorf("Seed %d: chord tones differ: %+v", seed, notes)
			}
			if i > 0 {
				if gap := stamps[i].Sub(stamps[i-1]); gap < chordStagger {
					t.Errorf("Seed %d: tone %d followed after %v, want >= %v", seed, i, gap, chordStagger)
				}
			}
		}
		if !slices.ContainsFunc(chordPalette, func(c []int) bool { return slices.Equal(c, intervals) }) {
			t.Errorf("Seed %d: intervals %v not in the chord palette", seed, intervals)
		}
		if v := notes[0].velocity; v < chordVel.lo || v > chordVel.hi {
			t.Errorf("Seed %d: chord velocity %d outside [%d, %d]", seed, v, chordVel.lo, chordVel.hi)
		}
		validDur := false
		for _, b := range chordBeats {
			if notes[0].dur == m.tempo.Beats(b) {
				validDur = true
			}
		}
		if !validDur {
			t.Errorf("Seed %d: chord sustain %v is not 4, 6 or 8 beats", seed, notes[0].dur)
		}
	}
}

func TestBarKeepsUnfinishedChord(t *testing.T) {
	m := NewMelodic(&recordingPlayer{}, MelodicConfig{Tempo: msTempo, RootNote: DefaultRoot, Seed: 8})
	m.reset()
	ctx, fail := context.WithCancelCause(context.Background())
	defer fail(nil)

	held := spawn(ctx, func(ctx context.Context) { <-ctx.Done() })
	m.chord = held
	for i := 0; i < 5; i++ {
		if err := m.bar(ctx, fail); err != nil {
			t.Fatalf("bar: %v", err)
		}
		if m.chord != held {
			t.Fatalf("Bar %d replaced a chord that was still sounding", i+1)
		}
	}
	held.stop()

	// Once the chord has finished a new one may start.
	for i := 0; i < 20 && m.chord == held; i++ {
		if err := m.bar(ctx, fail); err != nil {
			t.Fatalf("bar: %v", err)
		}
	}
	if m.chord == held {
		t.Error("No chord launched after the previous one finished")
	}
	m.chord.stop()
}

func TestDroneLayer(t *testing.T) {
	p := &recordingPlayer{}
	m := NewMelodic(p, MelodicConfig{Tempo: msTempo, RootNote: DefaultRoot, Seed: 3})
	m.reset()

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()
	if err := m.drone(ctx, NewRand(3)); err != nil {
		t.Fatalf("drone: %v", err)
	}

	root := DefaultRoot - 24
	notes := p.all()
	fifths := 0
	for i, n := range notes {
		if n.velocity < droneVel.lo || n.velocity > droneVel.hi {
			t.Errorf("Drone velocity %d outside [%d, %d]", n.velocity, droneVel.lo, droneVel.hi)
		}
		switch n.pitch {
		case root:
		case root + 7:
			fifths++
			if i == 0 || notes[i-1].pitch != root {
				t.Fatalf("Fifth at %d does not follow a root", i)
			}
			prev := notes[i-1]
			if n.dur != scale(prev.dur, 0.9) {
				t.Errorf("Fifth duration %v, want 0.9 x %v", n.dur, prev.dur)
			}
			if n.velocity != max(55, prev.velocity-10) {
				t.Errorf("Fifth velocity %d, want max(55, %d-10)", n.velocity, prev.velocity)
			}
		default:
			t.Errorf("Drone pitch %d, want %d or %d", n.pitch, root, root+7)
		}
	}
	if len(notes)-fifths < 5 {
		t.Fatalf("Drone played only %d root notes", len(notes)-fifths)
	}
	if fifths == 0 {
		t.Error("Drone never added a fifth")
	}
}

func TestAccentLayer(t *testing.T) {
	p := &recordingPlayer{}
	m := NewMelodic(p, MelodicConfig{Tempo: msTempo, RootNote: DefaultRoot, Seed: 2})
	ctx := context.Background()

	for i := 0; i < 50; i++ {
		if err := m.accent(ctx, 48, time.Millisecond); err != nil {
			t.Fatalf("accent: %v", err)
		}
	}
	if err := m.accent(ctx, 5, time.Millisecond); err != nil {
		t.Fatalf("accent: %v", err)
	}

	notes := p.all()
	for i, n := range notes {
		if n.velocity < accentVel.lo || n.velocity > accentVel.hi {
			t.Errorf("Accent velocity %d outside [%d, %d]", n.velocity, accentVel.lo, accentVel.hi)
		}
		want := 48
		if i == len(notes)-1 {
			want = LowLimit
		}
		if n.pitch != want {
			t.Errorf("Accent %d pitch %d, want %d", i, n.pitch, want)
		}
		if n.dur != time.Millisecond {
			t.Errorf("Accent duration %v, want 1ms", n.dur)
		}
	}
}

func TestPhraseColourTones(t *testing.T) {
	p := &recordingPlayer{}
	m := NewMelodic(p, MelodicConfig{Tempo: msTempo, RootNote: DefaultRoot, Seed: 21})
	m.reset()
	base := m.state.Root - 12

	for i := 0; i < 30; i++ {
		if err := m.phrase(context.Background(), base); err != nil {
			t.Fatalf("phrase: %v", err)
		}
	}

	pool := map[time.Duration]bool{}
	for _, b := range durPool {
		pool[m.tempo.Beats(b)] = true
	}

	notes := p.all()
	colours := 0
	for i := 0; i < len(notes); i++ {
		n := notes[i]
		if pool[n.dur] {
			if n.velocity < phraseVel.lo || n.velocity > phraseVel.hi {
				t.Errorf("Phrase velocity %d outside [%d, %d]", n.velocity, phraseVel.lo, phraseVel.hi)
			}
			continue
		}

		// A colour tone is submitted just before its phrase note.
		colours++
		if i+1 >= len(notes) || !pool[notes[i+1].dur] {
			t.Fatalf("Colour tone at %d is not followed by a phrase note", i)
		}
		main := notes[i+1]
		if n.dur != scale(main.dur, 1.2) {
			t.Errorf("Colour duration %v, want 1.2 x %v", n.dur, main.dur)
		}
		if n.velocity != max(phraseVel.lo, main.velocity-15) {
			t.Errorf("Colour velocity %d, want max(60, %d-15)", n.velocity, main.velocity)
		}
		if !slices.ContainsFunc(colorSteps, func(step int) bool {
			return n.pitch == pitchBand.clamp(main.pitch+step)
		}) {
			t.Errorf("Colour pitch %d is not +5, +7 or +9 over %d", n.pitch, main.pitch)
		}
	}
	if colours == 0 {
		t.Error("No colour tones in 30 phrases")
	}
}
