package generator

// Mode is a node in the mode graph: a scale rooted at an offset from the
// generator's root note.
type Mode struct {
	Name     string
	Offset   int   // semitones above the generator root
	Steps    []int // scale degrees in semitones
	Adjacent []string
}

// ModeGraph maps mode names to their nodes. Transitions only follow edges.
var ModeGraph = map[string]*Mode{
	"aeolian": {
		Name:     "aeolian",
		Offset:   0,
		Steps:    []int{0, 3, 5, 7, 10}, // minor pentatonic
		Adjacent: []string{"dorian", "phrygian"},
	},
	"dorian": {
		Name:     "dorian",
		Offset:   2,
		Steps:    []int{0, 2, 5, 7, 9},
		Adjacent: []string{"aeolian", "phrygian"},
	},
	"phrygian": {
		Name:     "phrygian",
		Offset:   5,
		Steps:    []int{0, 3, 5, 8, 10},
		Adjacent: []string{"aeolian", "dorian"},
	},
}

// DefaultMode is the mode a melodic generator starts in.
const DefaultMode = "aeolian"

// ModeNames returns all mode names in the graph.
func ModeNames() []string {
	names := make([]string, 0, len(ModeGraph))
	for name := range ModeGraph {
		names = append(names, name)
	}
	return names
}

// IsValidMode checks if a mode exists in the graph.
func IsValidMode(name string) bool {
	_, ok := ModeGraph[name]
	return ok
}

// Section marks the phase of a melodic performance.
type Section int

const (
	SectionIntro Section = iota
	SectionRise
	SectionPeak
	SectionFall
)

func (s Section) String() string {
	switch s {
	case SectionIntro:
		return "intro"
	case SectionRise:
		return "rise"
	case SectionPeak:
		return "peak"
	case SectionFall:
		return "fall"
	default:
		return "unknown"
	}
}

func (s Section) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// next returns the following section. The intro is never revisited.
func (s Section) next() Section {
	switch s {
	case SectionIntro, SectionFall:
		return SectionRise
	case SectionRise:
		return SectionPeak
	default:
		return SectionFall
	}
}

// quiet sections play a single phrase per bar.
func (s Section) quiet() bool {
	return s == SectionIntro || s == SectionFall
}
