package main

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/starfederation/datastar-go/datastar"

	"radiology-worklist/internal/blob"
	"radiology-worklist/internal/bridge"
	"radiology-worklist/internal/ingest"
)

const (
	maxBridgePayload = 1 << 30
	presignExpiry    = 15 * time.Minute
)

// handleBridgeEvents streams what the viewer announces to its hosting
// window.
func (s *Server) handleBridgeEvents(w http.ResponseWriter, r *http.Request) {
	channel := s.hub.Channel(r.PathValue("channel"))
	messages, cancel := channel.SubscribeTop()
	defer cancel()

	sse := datastar.NewSSE(w, r)
	for {
		select {
		case <-r.Context().Done():
			return
		case m, ok := <-messages:
			if !ok {
				return
			}
			if err := sse.MarshalAndPatchSignals(map[string]any{"bridge": m}); err != nil {
				return
			}
		}
	}
}

// handleBridgeMessage posts a hosting window's message to the viewer.
func (s *Server) handleBridgeMessage(w http.ResponseWriter, r *http.Request) {
	channel, ok := s.hub.Lookup(r.PathValue("channel"))
	if !ok {
		http.Error(w, "Unknown channel", http.StatusNotFound)
		return
	}
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBridgePayload))
	if err != nil {
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}
	if n := channel.Post(bridge.Envelope{Origin: r.Header.Get("Origin"), Data: data}); n == 0 {
		http.Error(w, "No viewer is listening", http.StatusConflict)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

// handleBlob resolves an object URL.
func (s *Server) handleBlob(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")
	if _, err := s.blobs.Head(r.Context(), key); err != nil {
		if errors.Is(err, blob.ErrNotFound) {
			http.NotFound(w, r)
			return
		}
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}
	if u, err := s.blobs.PresignURL(r.Context(), key, presignExpiry); err == nil {
		http.Redirect(w, r, u, http.StatusTemporaryRedirect)
		return
	}

	info, rc, err := s.blobs.Get(r.Context(), key)
	if errors.Is(err, blob.ErrNotFound) {
		http.NotFound(w, r)
		return
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}
	defer rc.Close()
	contentType := info.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Length", strconv.FormatInt(info.Size, 10))
	w.Header().Set("Cache-Control", "no-store")
	_, _ = io.Copy(w, rc)
}

type viewerPage struct {
	Mode       string
	DataSource string
	Studies    []string
}

// handleViewer stands in for the image viewer routes.
func (s *Server) handleViewer(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	mode := r.URL.Path[1:]
	if mode == ingest.MicroscopyMode {
		mode = "Slide Microscopy"
	}
	s.render.render(w, r, "viewer", viewerPage{
		Mode:       mode,
		DataSource: q.Get("datasources"),
		Studies:    q["StudyInstanceUIDs"],
	})
}
