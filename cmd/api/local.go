package main

import (
	"context"
	"errors"
	"io"
	"net/http"
	"sync"

	"github.com/google/uuid"
	"github.com/starfederation/datastar-go/datastar"

	"radiology-worklist/internal/bridge"
	"radiology-worklist/internal/ingest"
	"radiology-worklist/internal/logging"
	"radiology-worklist/internal/models"
	"radiology-worklist/internal/store"
)

const maxUploadMemory = 64 << 20

// localScreen is one mounted local ingestion screen.
type localScreen struct {
	id       string
	channel  string
	out      *outbox
	idle     lingerTimer
	bridge   *bridge.Bridge
	pipeline *ingest.Pipeline

	mu     sync.Mutex
	status *ingest.Result
}

// Navigate opens the ingested studies: the first target replaces this
// page, any others open in new tabs.
func (sc *localScreen) Navigate(_ context.Context, targets []string) {
	if len(targets) == 0 {
		return
	}
	for _, t := range targets[1:] {
		sc.out.script("window.open(" + jsString(t) + ", '_blank')")
	}
	sc.out.script("window.location.assign(" + jsString(targets[0]) + ")")
}

// Open starts a new browsing context for a rehydrating viewer.
func (sc *localScreen) Open(u string) {
	sc.out.script("window.open(" + jsString(u) + ", '_blank')")
}

func (sc *localScreen) ingest(ctx context.Context, files []models.LocalFile) error {
	res, err := sc.pipeline.Ingest(ctx, files)
	sc.mu.Lock()
	sc.status = &res
	sc.mu.Unlock()
	sc.out.poke()
	return err
}

func (sc *localScreen) takeStatus() *ingest.Result {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	st := sc.status
	sc.status = nil
	return st
}

type localPage struct {
	Screen      string
	Channel     string
	Rehydrating bool
}

func (s *Server) handleLocal(w http.ResponseWriter, r *http.Request) {
	client := s.clientID(w, r)
	channel := s.hub.Channel(r.URL.Query().Get("channel"))
	sc := &localScreen{
		id:      uuid.NewString(),
		channel: channel.ID,
		out:     newOutbox(),
	}
	log := logging.Component(s.log, "local")
	sc.pipeline = ingest.New(s.loader, s.meta, s.extensions, s.cfg.Local.ModePath,
		ingest.WithLogger(log),
		ingest.WithMetrics(s.metrics),
		ingest.WithNavigator(sc),
	)
	sc.bridge = bridge.New(channel, s.urls, store.Local(s.storage, client), bridge.IngestFunc(sc.ingest), sc, bridge.Options{
		OpenDelay:                s.cfg.Bridge.OpenDelay,
		AllowedOrigins:           s.cfg.Bridge.AllowedOrigins,
		AllowAnyOrigin:           s.cfg.Bridge.AllowAnyOrigin,
		RevokeAfterIngest:        s.cfg.Bridge.RevokeAfterIngest,
		ClearStorageAfterHandoff: s.cfg.Bridge.ClearStorageAfterHandoff,
		Log:                      logging.Component(s.log, "bridge"),
		Metrics:                  s.metrics,
	})
	s.locals.add(sc.id, sc)
	sc.idle.arm(s.linger, func() { s.unmountLocal(sc.id) })

	if err := sc.bridge.Mount(r.Context(), r.URL); err != nil {
		log.Warn().Err(err).Msg("mounting bridge")
	}
	s.render.render(w, r, "local", localPage{
		Screen:      sc.id,
		Channel:     sc.channel,
		Rehydrating: r.URL.Query().Get(bridge.NativeViewerParam) == "true",
	})
}

func (s *Server) localScreen(w http.ResponseWriter, r *http.Request) (*localScreen, bool) {
	sc, ok := s.locals.get(r.URL.Query().Get("screen"))
	if !ok {
		http.Error(w, "Unknown screen", http.StatusNotFound)
	}
	return sc, ok
}

func (s *Server) unmountLocal(id string) {
	sc, ok := s.locals.remove(id)
	if !ok {
		return
	}
	sc.idle.disarm()
	sc.bridge.Unmount()
}

func (s *Server) handleLocalStream(w http.ResponseWriter, r *http.Request) {
	sc, ok := s.localScreen(w, r)
	if !ok {
		return
	}
	sc.idle.disarm()
	defer sc.idle.arm(s.linger, func() { s.unmountLocal(sc.id) })

	sse := datastar.NewSSE(w, r)
	sc.out.poke()
	for {
		select {
		case <-r.Context().Done():
			return
		case <-sc.out.notify:
			if st := sc.takeStatus(); st != nil {
				html, err := s.render.fragment("local", "ingest-status", st)
				if err == nil {
					if err := sse.PatchElements(html); err != nil {
						return
					}
				}
			}
			for _, js := range sc.out.drain() {
				if err := sse.ExecuteScript(js); err != nil {
					return
				}
			}
		}
	}
}

func (s *Server) handleLocalUpload(w http.ResponseWriter, r *http.Request) {
	sc, ok := s.localScreen(w, r)
	if !ok {
		return
	}
	if err := r.ParseMultipartForm(maxUploadMemory); err != nil {
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}
	var files []models.LocalFile
	for _, fh := range r.MultipartForm.File["files"] {
		f, err := fh.Open()
		if err != nil {
			http.Error(w, "Bad Request", http.StatusBadRequest)
			return
		}
		data, err := io.ReadAll(f)
		f.Close()
		if err != nil {
			http.Error(w, "Bad Request", http.StatusBadRequest)
			return
		}
		files = append(files, models.LocalFile{Name: fh.Filename, Data: data})
	}
	if err := sc.ingest(r.Context(), files); err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleLocalUnmount(w http.ResponseWriter, r *http.Request) {
	s.unmountLocal(r.URL.Query().Get("screen"))
	w.WriteHeader(http.StatusNoContent)
}
