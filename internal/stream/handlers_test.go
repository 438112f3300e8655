package stream

import (
	"net/http"
	"net/http/httptest"
	"slices"
	"strings"
	"testing"
)

func TestEncoderArgs(t *testing.T) {
	h := NewHTTPHandler(NewBroadcaster(), "handpan")
	args := h.encoderArgs()

	for _, want := range [][2]string{
		{"-ar", "48000"},
		{"-ac", "2"},
		{"-f", "s16le"},
		{"-b:a", DefaultBitrate},
		{"-codec:a", "libmp3lame"},
	} {
		i := slices.Index(args, want[0])
		if i < 0 || i+1 >= len(args) || args[i+1] != want[1] {
			t.Errorf("Encoder args missing %s %s: %v", want[0], want[1], args)
		}
	}
	if args[len(args)-1] != "pipe:1" {
		t.Errorf("Encoder should write to stdout, args end with %q", args[len(args)-1])
	}
}

func TestWebRTCMethodNotAllowed(t *testing.T) {
	h := NewWebRTCHandler(NewBroadcaster(), "handpan-test")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/offer", nil))

	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("GET /offer = %d, want %d", rec.Code, http.StatusMethodNotAllowed)
	}
}

func TestWebRTCPreflight(t *testing.T) {
	h := NewWebRTCHandler(NewBroadcaster(), "handpan-test")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodOptions, "/offer", nil))

	if rec.Code != http.StatusOK {
		t.Errorf("OPTIONS /offer = %d, want 200", rec.Code)
	}
	if got := rec.Header().Get("Access-Control-Allow-Methods"); got != "POST" {
		t.Errorf("Allow-Methods = %q, want POST", got)
	}
}

func TestWebRTCInvalidOffer(t *testing.T) {
	h := NewWebRTCHandler(NewBroadcaster(), "handpan-test")
	for _, body := range []string{"not json", "{}"} {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/offer", strings.NewReader(body)))
		if rec.Code != http.StatusBadRequest {
			t.Errorf("POST %q = %d, want 400", body, rec.Code)
		}
	}
	if h.PeerCount() != 0 {
		t.Errorf("PeerCount = %d after rejected offers, want 0", h.PeerCount())
	}
}

func TestWebRTCCloseWithoutPeers(t *testing.T) {
	h := NewWebRTCHandler(NewBroadcaster(), "handpan-test")
	h.Close()
	if h.PeerCount() != 0 {
		t.Errorf("PeerCount = %d, want 0", h.PeerCount())
	}
}
