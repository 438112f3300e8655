package config

import (
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

// Config holds all runtime configuration, loaded from environment variables.
type Config struct {
	// Performance
	Mode          string // manual or ai
	Generator     string // melodic or random
	VoiceStrategy string // poly or queue
	Tempo         float64
	RootNote      int
	Seed          uint64
	Scale         string // starting mode of the melodic generator

	// Instrument
	Driver  string // speaker, stream, null or midi
	Channel int
	Bank    int
	Program int

	// Built-in synth
	MaxVoices    int
	MasterVolume float64
	ReverbLevel  float64
	ReverbRoom   float64
	ChorusDepth  float64

	// Outputs
	Port     int // stream driver listen port
	MIDIPort int

	// Error reporting
	SentryDSN   string
	Environment string
}

// LoadDotEnv loads variables from a .env file if one exists. Variables
// already set in the environment win.
func LoadDotEnv(paths ...string) {
	if err := godotenv.Load(paths...); err != nil {
		log.Println("No .env file found, using environment variables")
	}
}

// Load reads configuration from environment variables with sane defaults.
func Load() Config {
	return Config{
		Mode:          strings.ToLower(envStr("HANDPAN_MODE", "ai")),
		Generator:     strings.ToLower(envStr("HANDPAN_GENERATOR", "melodic")),
		VoiceStrategy: strings.ToLower(envStr("HANDPAN_VOICE_STRATEGY", "poly")),
		Tempo:         envFloat("HANDPAN_TEMPO", 84),
		RootNote:      envInt("HANDPAN_ROOT_NOTE", 60),
		Seed:          envUint("HANDPAN_SEED", 0),
		Scale:         strings.ToLower(envStr("HANDPAN_SCALE", "aeolian")),

		Driver:  strings.ToLower(envStr("HANDPAN_DRIVER", "speaker")),
		Channel: envInt("HANDPAN_CHANNEL", 0),
		Bank:    envInt("HANDPAN_BANK", 0),
		Program: envInt("HANDPAN_PROGRAM", 114),

		MaxVoices:    envInt("HANDPAN_MAX_VOICES", 64),
		MasterVolume: envFloat("HANDPAN_MASTER_VOLUME", 0.3),
		ReverbLevel:  envFloat("HANDPAN_REVERB_LEVEL", 0.7),
		ReverbRoom:   envFloat("HANDPAN_REVERB_ROOM", 0.8),
		ChorusDepth:  envFloat("HANDPAN_CHORUS_DEPTH", 0),

		Port:     envInt("HANDPAN_PORT", 8080),
		MIDIPort: envInt("HANDPAN_MIDI_PORT", 0),

		SentryDSN:   envStr("SENTRY_DSN", ""),
		Environment: envStr("HANDPAN_ENV", "development"),
	}
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envUint(key string, fallback uint64) uint64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			return n
		}
	}
	return fallback
}
