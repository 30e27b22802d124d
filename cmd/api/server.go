package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"radiology-worklist/internal/blob"
	"radiology-worklist/internal/bridge"
	"radiology-worklist/internal/config"
	"radiology-worklist/internal/dicomweb"
	"radiology-worklist/internal/extension"
	"radiology-worklist/internal/loader"
	"radiology-worklist/internal/logging"
	"radiology-worklist/internal/metrics"
	"radiology-worklist/internal/middleware"
	"radiology-worklist/internal/models"
	"radiology-worklist/internal/series"
	"radiology-worklist/internal/store"
	"radiology-worklist/internal/worklist"
)

// clientCookie identifies a browser; its session and local storage areas
// are keyed by it.
const clientCookie = "worklist_client"

// DataSource is the remote study archive.
type DataSource interface {
	worklist.StudySource
	series.DataSource
	Config() dicomweb.SourceConfig
}

type Deps struct {
	Config  *config.Config
	Log     zerolog.Logger
	Metrics *metrics.Metrics
	Source  DataSource
	Storage store.Store
	Blobs   blob.Store
}

type Server struct {
	cfg        *config.Config
	log        zerolog.Logger
	metrics    *metrics.Metrics
	source     DataSource
	storage    store.Store
	blobs      blob.Store
	urls       *bridge.ObjectURLs
	hub        *bridge.Hub
	loader     *loader.Loader
	meta       *loader.MetadataStore
	extensions *extension.Registry
	reference  *models.ReferenceData
	render     *renderer
	worklists  *screens[*worklistScreen]
	locals     *screens[*localScreen]
	linger     time.Duration

	ctx    context.Context
	cancel context.CancelFunc
}

func NewServer(d Deps) (*Server, error) {
	if d.Config == nil {
		d.Config = config.Default()
	}
	if d.Source == nil {
		return nil, errors.New("data source required")
	}
	if d.Storage == nil {
		d.Storage = store.NewMemoryStore()
	}
	if d.Blobs == nil {
		d.Blobs = blob.NewMemoryStore()
	}
	rd, err := newRenderer("worklist", "local", "viewer")
	if err != nil {
		return nil, err
	}
	meta := loader.NewMetadataStore()
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		cfg:        d.Config,
		log:        d.Log,
		metrics:    d.Metrics,
		source:     d.Source,
		storage:    d.Storage,
		blobs:      d.Blobs,
		urls:       bridge.NewObjectURLs(d.Blobs),
		hub:        bridge.NewHub(),
		loader:     loader.New(meta),
		meta:       meta,
		extensions: extension.NewRegistry(d.Config.Local.Extensions...),
		reference:  models.DefaultReferenceData(),
		render:     rd,
		worklists:  newScreens[*worklistScreen](),
		locals:     newScreens[*localScreen](),
		linger:     screenLinger,
		ctx:        ctx,
		cancel:     cancel,
	}, nil
}

func (s *Server) Handler() http.Handler {
	app := http.NewServeMux()
	app.HandleFunc("GET /{$}", s.handleWorklist)
	app.HandleFunc("GET /worklist/stream", s.handleWorklistStream)
	app.HandleFunc("GET /worklist/modalities", s.handleModalitySearch)
	app.HandleFunc("POST /worklist/filter", s.handleWorklistFilter)
	app.HandleFunc("POST /worklist/sort", s.handleWorklistSort)
	app.HandleFunc("POST /worklist/page", s.handleWorklistPage)
	app.HandleFunc("POST /worklist/per-page", s.handleWorklistPerPage)
	app.HandleFunc("POST /worklist/expand", s.handleWorklistExpand)
	app.HandleFunc("POST /worklist/clear", s.handleWorklistClear)
	app.HandleFunc("POST /worklist/unmount", s.handleWorklistUnmount)

	app.HandleFunc("GET /local", s.handleLocal)
	app.HandleFunc("GET /local/stream", s.handleLocalStream)
	app.HandleFunc("POST /local/upload", s.handleLocalUpload)
	app.HandleFunc("POST /local/unmount", s.handleLocalUnmount)

	app.HandleFunc("GET /"+s.cfg.Local.ModePath, s.handleViewer)
	if s.cfg.Local.ModePath != "microscopy" {
		app.HandleFunc("GET /microscopy", s.handleViewer)
	}

	mux := http.NewServeMux()
	mux.Handle("/", middleware.CSRF(app))
	// The hosting window is another origin and cannot hold our CSRF token.
	mux.HandleFunc("GET /bridge/host/{channel}/events", s.handleBridgeEvents)
	mux.HandleFunc("POST /bridge/host/{channel}/messages", s.handleBridgeMessage)
	mux.HandleFunc("GET /blob/{key}", s.handleBlob)
	mux.Handle("GET /metrics", s.metrics.Handler())
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	return accessLog(logging.Component(s.log, "http"), mux)
}

// Close unmounts every open screen.
func (s *Server) Close() {
	for _, id := range s.worklists.ids() {
		s.unmountWorklist(id)
	}
	for _, id := range s.locals.ids() {
		s.unmountLocal(id)
	}
	s.cancel()
}

func (s *Server) clientID(w http.ResponseWriter, r *http.Request) string {
	if c, err := r.Cookie(clientCookie); err == nil && c.Value != "" {
		return c.Value
	}
	id := uuid.NewString()
	http.SetCookie(w, &http.Cookie{
		Name:     clientCookie,
		Value:    id,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	return id
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Flush keeps SSE streams working through the recorder.
func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (r *statusRecorder) Unwrap() http.ResponseWriter { return r.ResponseWriter }

func accessLog(log zerolog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", rec.status).
			Dur("elapsed", time.Since(start)).
			Msg("request")
	})
}
