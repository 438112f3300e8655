package synth

import (
	"fmt"
	"log"
	"sort"
	"sync"

	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/drivers"
	_ "gitlab.com/gomidi/midi/v2/drivers/rtmididrv"
)

const bankSelectMSB = 0

// MIDIOut sends notes to a MIDI output port.
type MIDIOut struct {
	mu       sync.Mutex
	port     drivers.Out
	send     func(msg midi.Message) error
	channels map[int]bool
	closed   bool
}

// OpenMIDI opens the output port with the given index.
func OpenMIDI(port int) (*MIDIOut, error) {
	out, err := midi.OutPort(port)
	if err != nil {
		return nil, fmt.Errorf("open MIDI port %d: %w", port, err)
	}
	send, err := midi.SendTo(out)
	if err != nil {
		out.Close()
		return nil, fmt.Errorf("send to MIDI port %d: %w", port, err)
	}
	log.Printf("MIDI output: %s", out.String())
	return newMIDIOut(out, send), nil
}

func newMIDIOut(port drivers.Out, send func(midi.Message) error) *MIDIOut {
	return &MIDIOut{
		port:     port,
		send:     send,
		channels: make(map[int]bool),
	}
}

// LoadInstrument selects bank and program on the channel. The returned id
// is the program number.
func (m *MIDIOut) LoadInstrument(channel, bank, program int) (int, error) {
	if channel < 0 || channel > 15 {
		return 0, fmt.Errorf("channel %d out of range 0-15", channel)
	}
	if bank < 0 || bank > 127 || program < 0 || program > 127 {
		return 0, fmt.Errorf("bank %d / program %d out of range 0-127", bank, program)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return 0, ErrClosed
	}
	ch := uint8(channel)
	if err := m.send(midi.ControlChange(ch, bankSelectMSB, uint8(bank))); err != nil {
		return 0, fmt.Errorf("bank select: %w", err)
	}
	if err := m.send(midi.ProgramChange(ch, uint8(program))); err != nil {
		return 0, fmt.Errorf("program change: %w", err)
	}
	m.channels[channel] = true
	return program, nil
}

// NoteOn sends a note-on message. Send failures are logged.
func (m *MIDIOut) NoteOn(channel, pitch, velocity int) {
	m.write(midi.NoteOn(uint8(channel), uint8(pitch), uint8(velocity)))
}

// NoteOff sends a note-off message. Send failures are logged.
func (m *MIDIOut) NoteOff(channel, pitch int) {
	m.write(midi.NoteOff(uint8(channel), uint8(pitch)))
}

func (m *MIDIOut) write(msg midi.Message) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	if err := m.send(msg); err != nil {
		log.Printf("MIDI send failed (%s): %v", msg, err)
	}
}

// Close sends All Notes Off on every used channel and closes the port and
// the driver.
func (m *MIDIOut) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true

	channels := make([]int, 0, len(m.channels))
	for ch := range m.channels {
		channels = append(channels, ch)
	}
	sort.Ints(channels)
	for _, ch := range channels {
		if err := m.send(midi.ControlChange(uint8(ch), midi.AllNotesOff, midi.Off)); err != nil {
			log.Printf("MIDI all notes off on channel %d: %v", ch, err)
		}
	}

	var err error
	if m.port != nil {
		err = m.port.Close()
		midi.CloseDriver()
	}
	return err
}
