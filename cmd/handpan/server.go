package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/satindergrewal/handpan/internal/controller"
	"github.com/satindergrewal/handpan/internal/stream"
	"github.com/satindergrewal/handpan/internal/web"
)

// newServer serves the listener page, both audio streams and the status API.
// It sets out.webrtc.
func newServer(port int, ctrl *controller.Controller, out *output) *http.Server {
	out.webrtc = stream.NewWebRTCHandler(out.broadcaster, "handpan-"+ctrl.Session())

	mux := http.NewServeMux()

	// Web UI
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write(web.IndexHTML)
	})

	// Audio streams
	mux.Handle("/stream", stream.NewHTTPHandler(out.broadcaster, "handpan"))
	mux.Handle("/offer", out.webrtc)

	mux.HandleFunc("/api/status", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Access-Control-Allow-Origin", "*")
		json.NewEncoder(w).Encode(map[string]any{
			"controller":   ctrl.Status(),
			"audio":        out.pipeline.Status(),
			"stream":       out.broadcaster.Stats(),
			"voices":       out.tone.ActiveVoices(),
			"webrtc_peers": out.webrtc.PeerCount(),
		})
	})

	return &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux}
}

func isServerClosed(err error) bool {
	return errors.Is(err, http.ErrServerClosed)
}
