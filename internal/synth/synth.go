package synth

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors
var (
	ErrUnknownDriver = errors.New("unknown output driver")
	ErrClosed        = errors.New("synth closed")
)

// Driver names an output for synthesized notes.
type Driver string

const (
	DriverSpeaker Driver = "speaker" // built-in synth to the local sound card
	DriverStream  Driver = "stream"  // built-in synth to HTTP/WebRTC listeners
	DriverNull    Driver = "null"    // built-in synth rendered and discarded
	DriverMIDI    Driver = "midi"    // note messages to a MIDI output port
)

// Drivers lists the recognised drivers.
var Drivers = []Driver{DriverSpeaker, DriverStream, DriverNull, DriverMIDI}

// ParseDriver converts a driver name.
func ParseDriver(s string) (Driver, error) {
	d := Driver(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Drivers {
		if d == known {
			return d, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownDriver, s)
}

// Tone reports whether the driver renders through the built-in synth.
func (d Driver) Tone() bool {
	return d == DriverSpeaker || d == DriverStream || d == DriverNull
}
