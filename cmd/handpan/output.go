package main

import (
	"context"
	"fmt"
	"time"

	"github.com/satindergrewal/handpan/internal/audio"
	"github.com/satindergrewal/handpan/internal/config"
	"github.com/satindergrewal/handpan/internal/controller"
	"github.com/satindergrewal/handpan/internal/generator"
	"github.com/satindergrewal/handpan/internal/stream"
	"github.com/satindergrewal/handpan/internal/synth"
	"github.com/satindergrewal/handpan/internal/voice"
)

// fadeIn softens the first frames a listener hears.
const fadeIn = 500 * time.Millisecond

// output is the note sink selected by the driver, plus the stream plumbing
// when the driver renders audio for listeners.
type output struct {
	backend voice.Backend

	tone        *synth.Tone
	pipeline    *audio.Pipeline
	broadcaster *stream.Broadcaster
	webrtc      *stream.WebRTCHandler
}

func synthConfig(cfg config.Config) synth.Config {
	return synth.Config{
		MaxVoices:    cfg.MaxVoices,
		MasterVolume: cfg.MasterVolume,
		ReverbLevel:  cfg.ReverbLevel,
		ReverbRoom:   cfg.ReverbRoom,
		ChorusDepth:  cfg.ChorusDepth,
	}
}

// openOutput builds the backend for d. Background work started here stops
// when ctx is cancelled.
func openOutput(ctx context.Context, d synth.Driver, cfg config.Config) (*output, error) {
	switch d {
	case synth.DriverSpeaker:
		tone, err := synth.NewSpeaker(synthConfig(cfg))
		if err != nil {
			return nil, err
		}
		return &output{backend: tone, tone: tone}, nil

	case synth.DriverStream:
		tone := synth.NewTone(synthConfig(cfg))
		pipeline := audio.NewPipeline(tone, fadeIn)
		go pipeline.Run(ctx)

		broadcaster := stream.NewBroadcaster()
		go broadcaster.Run(ctx, pipeline.Frames())

		return &output{
			backend:     tone,
			tone:        tone,
			pipeline:    pipeline,
			broadcaster: broadcaster,
		}, nil

	case synth.DriverNull:
		tone := synth.NewTone(synthConfig(cfg))
		pipeline := audio.NewPipeline(tone, 0)
		go pipeline.Run(ctx)
		go audio.Drain(pipeline.Frames())
		return &output{backend: tone, tone: tone, pipeline: pipeline}, nil

	case synth.DriverMIDI:
		m, err := synth.OpenMIDI(cfg.MIDIPort)
		if err != nil {
			return nil, err
		}
		return &output{backend: m}, nil

	default:
		return nil, fmt.Errorf("%w: %q", synth.ErrUnknownDriver, d)
	}
}

// generatorFactory returns the AI-mode generator named by cfg.Generator.
func generatorFactory(cfg config.Config) (controller.Factory, error) {
	switch cfg.Generator {
	case "melodic", "":
		return func(p generator.Player) generator.Runner {
			return generator.NewMelodic(p, generator.MelodicConfig{
				Tempo:    cfg.Tempo,
				RootNote: cfg.RootNote,
				Mode:     cfg.Scale,
				Seed:     cfg.Seed,
			})
		}, nil
	case "random":
		return func(p generator.Player) generator.Runner {
			return generator.NewRandom(p, generator.Tempo(cfg.Tempo), cfg.Seed)
		}, nil
	default:
		return nil, fmt.Errorf("unknown generator %q", cfg.Generator)
	}
}
