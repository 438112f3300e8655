package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/satindergrewal/handpan/internal/config"
	"github.com/satindergrewal/handpan/internal/controller"
	"github.com/satindergrewal/handpan/internal/generator"
	"github.com/satindergrewal/handpan/internal/synth"
	"github.com/satindergrewal/handpan/internal/voice"
)

type nopPlayer struct{}

func (nopPlayer) Play(pitch, velocity int, d time.Duration) error { return nil }

func testConfig() config.Config {
	return config.Config{
		Mode:          "ai",
		Generator:     "melodic",
		VoiceStrategy: "poly",
		Tempo:         90,
		RootNote:      57,
		Seed:          7,
		Scale:         "dorian",
		Driver:        "null",
		Program:       114,
		MaxVoices:     8,
		MasterVolume:  0.3,
		Port:          0,
	}
}

func TestGeneratorFactory(t *testing.T) {
	cfg := testConfig()

	f, err := generatorFactory(cfg)
	if err != nil {
		t.Fatal(err)
	}
	m, ok := f(nopPlayer{}).(*generator.Melodic)
	if !ok {
		t.Fatalf("melodic factory built %T", f(nopPlayer{}))
	}
	if m.Tempo() != 90 {
		t.Errorf("Melodic tempo = %v, want 90", m.Tempo())
	}

	cfg.Generator = "random"
	f, err = generatorFactory(cfg)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := f(nopPlayer{}).(*generator.Random); !ok {
		t.Errorf("random factory built %T", f(nopPlayer{}))
	}

	cfg.Generator = "markov"
	if _, err := generatorFactory(cfg); err == nil {
		t.Error("Unknown generator should be rejected")
	}
}

func TestOpenOutputNull(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	out, err := openOutput(ctx, synth.DriverNull, testConfig())
	if err != nil {
		t.Fatal(err)
	}
	if out.tone == nil || out.pipeline == nil {
		t.Fatal("null driver should render through the tone synth")
	}
	if out.broadcaster != nil {
		t.Error("null driver should not broadcast")
	}
	if out.backend.(*synth.Tone) != out.tone {
		t.Error("backend should be the tone synth")
	}
}

func TestOpenOutputUnknownDriver(t *testing.T) {
	_, err := openOutput(context.Background(), synth.Driver("jack"), testConfig())
	if !errors.Is(err, synth.ErrUnknownDriver) {
		t.Errorf("err = %v, want ErrUnknownDriver", err)
	}
}

func newTestServer(t *testing.T) (*http.Server, *output) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	out, err := openOutput(ctx, synth.DriverStream, testConfig())
	if err != nil {
		t.Fatal(err)
	}
	engine, err := voice.New(voice.StrategyPoly, out.backend, voice.Config{Program: 114})
	if err != nil {
		t.Fatal(err)
	}
	ctrl := controller.New(controller.ModeAI, engine)
	srv := newServer(0, ctrl, out)
	t.Cleanup(out.webrtc.Close)
	return srv, out
}

func TestServerIndex(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("GET / = %d", rec.Code)
	}
	if !strings.Contains(rec.Header().Get("Content-Type"), "text/html") {
		t.Errorf("Content-Type = %q", rec.Header().Get("Content-Type"))
	}
	if !strings.Contains(rec.Body.String(), "/offer") {
		t.Error("Index page should negotiate WebRTC via /offer")
	}

	rec = httptest.NewRecorder()
	srv.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/missing", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("GET /missing = %d, want 404", rec.Code)
	}
}

func TestServerStatus(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/status", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("GET /api/status = %d", rec.Code)
	}

	var body struct {
		Controller struct {
			Mode  string `json:"mode"`
			State string `json:"state"`
		} `json:"controller"`
		Voices      int `json:"voices"`
		WebRTCPeers int `json:"webrtc_peers"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if body.Controller.Mode != "ai" {
		t.Errorf("mode = %q, want ai", body.Controller.Mode)
	}
	if body.Controller.State != controller.StateIdle.String() {
		t.Errorf("state = %q, want %s", body.Controller.State, controller.StateIdle)
	}
	if body.Voices != 0 || body.WebRTCPeers != 0 {
		t.Errorf("voices/peers = %d/%d, want 0/0", body.Voices, body.WebRTCPeers)
	}
}
