package synth

import (
	"fmt"
	"log"
	"time"

	"github.com/gopxl/beep/speaker"
	"github.com/satindergrewal/handpan/internal/audio"
)

// speakerBuffer trades latency for glitch-free playback.
const speakerBuffer = 100 * time.Millisecond

// NewSpeaker creates a tone synth playing on the default sound card.
// Closing the synth closes the speaker.
func NewSpeaker(cfg Config) (*Tone, error) {
	t := NewTone(cfg)

	if err := speaker.Init(audio.Rate, audio.Rate.N(speakerBuffer)); err != nil {
		return nil, fmt.Errorf("init speaker: %w", err)
	}
	speaker.Play(t)
	log.Printf("Speaker output at %d Hz (buffer %v)", audio.SampleRate, speakerBuffer)

	t.closer = func() error {
		speaker.Clear()
		speaker.Close()
		log.Println("Speaker closed")
		return nil
	}
	return t, nil
}
