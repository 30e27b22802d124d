// Package bridge implements the hand-off between a hosting window and the
// local viewer screen: a readiness announcement, a delivery of DICOM blobs,
// and the rehydration of those blobs in a freshly opened viewer.
package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"slices"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"radiology-worklist/internal/metrics"
	"radiology-worklist/internal/models"
	"radiology-worklist/internal/store"
)

// StorageKey is the local storage key holding the delivered object URLs.
const StorageKey = "ohif.dicomBlobURLs"

// NativeViewerParam marks a viewer opened to rehydrate a delivery.
const NativeViewerParam = "nativeViewer"

// RehydratePath is where a delivery is reopened.
const RehydratePath = "/local?" + NativeViewerParam + "=true"

var ErrOriginRejected = errors.New("bridge: origin not allowed")

type State int

const (
	AwaitingHandshake State = iota
	Active
	Delivering
	Idle
)

func (s State) String() string {
	switch s {
	case AwaitingHandshake:
		return "awaiting-handshake"
	case Active:
		return "active"
	case Delivering:
		return "delivering"
	case Idle:
		return "idle"
	}
	return "state(" + strconv.Itoa(int(s)) + ")"
}

// Ingester consumes rehydrated files.
type Ingester interface {
	Ingest(ctx context.Context, files []models.LocalFile) error
}

// IngestFunc adapts a function to Ingester.
type IngestFunc func(ctx context.Context, files []models.LocalFile) error

func (f IngestFunc) Ingest(ctx context.Context, files []models.LocalFile) error { return f(ctx, files) }

// Window opens a new browsing context.
type Window interface {
	Open(url string)
}

type Options struct {
	OpenDelay      time.Duration
	AllowedOrigins []string
	AllowAnyOrigin bool
	// RevokeAfterIngest releases each object URL once its files were
	// ingested.
	RevokeAfterIngest bool
	// ClearStorageAfterHandoff removes StorageKey after rehydration.
	ClearStorageAfterHandoff bool
	Log                      zerolog.Logger
	Metrics                  *metrics.Metrics
}

// Bridge is the viewer-side end of a Channel for one mounted screen.
type Bridge struct {
	channel  *Channel
	urls     *ObjectURLs
	local    *store.Area
	ingester Ingester
	window   Window
	opts     Options
	log      zerolog.Logger

	mu     sync.Mutex
	state  State
	remove func()
	ctx    context.Context
}

func New(channel *Channel, urls *ObjectURLs, local *store.Area, ingester Ingester, window Window, opts Options) *Bridge {
	return &Bridge{
		channel:  channel,
		urls:     urls,
		local:    local,
		ingester: ingester,
		window:   window,
		opts:     opts,
		log:      opts.Log,
		state:    AwaitingHandshake,
		ctx:      context.Background(),
	}
}

func (b *Bridge) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

func (b *Bridge) setState(s State) {
	b.mu.Lock()
	b.state = s
	b.mu.Unlock()
}

// Mount starts the bridge for a screen at location. A location carrying
// nativeViewer=true skips the handshake and rehydrates the stored delivery;
// otherwise the bridge announces readiness to the hosting window and
// listens for a delivery.
func (b *Bridge) Mount(ctx context.Context, location *url.URL) error {
	b.mu.Lock()
	b.ctx = context.WithoutCancel(ctx)
	b.mu.Unlock()

	if location != nil && location.Query().Get(NativeViewerParam) == "true" {
		b.setState(Idle)
		return b.Rehydrate(ctx)
	}

	remove := b.channel.Listen(b.receive)
	b.mu.Lock()
	b.remove = remove
	b.state = Active
	b.mu.Unlock()
	b.channel.PostToTop(Ready())
	return nil
}

// Unmount removes the message listener. Stored URLs are left in place for
// a rehydrating viewer.
func (b *Bridge) Unmount() {
	b.mu.Lock()
	remove := b.remove
	b.remove = nil
	b.mu.Unlock()
	if remove != nil {
		remove()
	}
}

func (b *Bridge) originAllowed(origin string) bool {
	if len(b.opts.AllowedOrigins) == 0 {
		return b.opts.AllowAnyOrigin
	}
	return slices.Contains(b.opts.AllowedOrigins, origin)
}

func (b *Bridge) receive(env Envelope) {
	if !b.originAllowed(env.Origin) {
		b.opts.Metrics.BridgeMessage("unknown", "rejected")
		b.log.Warn().Err(ErrOriginRejected).Str("origin", env.Origin).Msg("dropping cross-window message")
		return
	}
	msg, err := Decode(env.Data)
	if err != nil {
		b.opts.Metrics.BridgeMessage("unknown", "ignored")
		b.log.Warn().Err(err).Str("origin", env.Origin).Msg("ignoring cross-window message")
		return
	}
	if msg.Kind == KindReady {
		b.opts.Metrics.BridgeMessage(msg.Kind.String(), "ignored")
		return
	}
	b.opts.Metrics.BridgeMessage(msg.Kind.String(), "accepted")

	b.mu.Lock()
	ctx := b.ctx
	b.mu.Unlock()
	if err := b.Deliver(ctx, msg.Blobs); err != nil {
		b.log.Warn().Err(err).Msg("delivery failed")
	}
}

// Deliver turns blobs into object URLs, stores the list under StorageKey
// and, after the open delay, opens a viewer that rehydrates them.
func (b *Bridge) Deliver(ctx context.Context, blobs [][]byte) error {
	b.setState(Delivering)
	defer b.setState(Idle)

	urls := make([]string, 0, len(blobs))
	for i, data := range blobs {
		u, err := b.urls.Create(ctx, data)
		if err != nil {
			return fmt.Errorf("blob %d: %w", i, err)
		}
		urls = append(urls, u)
	}
	raw, err := json.Marshal(urls)
	if err != nil {
		return err
	}
	if err := b.local.Set(ctx, StorageKey, raw); err != nil {
		return fmt.Errorf("store object urls: %w", err)
	}
	b.log.Info().Int("blobs", len(urls)).Msg("stored delivery for rehydration")

	if b.window != nil {
		time.AfterFunc(b.opts.OpenDelay, func() { b.window.Open(RehydratePath) })
	}
	return nil
}

// Rehydrate fetches the stored delivery back and ingests it in its
// original order. A missing or malformed list means there is nothing to
// ingest.
func (b *Bridge) Rehydrate(ctx context.Context) error {
	urls, ok := b.storedURLs(ctx)
	if !ok || len(urls) == 0 {
		b.log.Info().Msg("no delivery to rehydrate")
		return nil
	}

	files := make([]models.LocalFile, len(urls))
	g, gctx := errgroup.WithContext(ctx)
	for i, u := range urls {
		g.Go(func() error {
			data, err := b.urls.Fetch(gctx, u)
			if err != nil {
				return err
			}
			files[i] = models.LocalFile{Name: "blob-" + strconv.Itoa(i+1), Data: data}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		b.log.Warn().Err(err).Msg("rehydrating delivery")
		return fmt.Errorf("rehydrate: %w", err)
	}

	if err := b.ingester.Ingest(ctx, files); err != nil {
		return fmt.Errorf("ingest delivery: %w", err)
	}

	if b.opts.RevokeAfterIngest {
		for _, u := range urls {
			if err := b.urls.Revoke(ctx, u); err != nil {
				b.log.Warn().Err(err).Str("url", u).Msg("revoking object url")
			}
		}
	}
	if b.opts.ClearStorageAfterHandoff {
		if err := b.local.Delete(ctx, StorageKey); err != nil {
			b.log.Warn().Err(err).Msg("clearing delivery storage")
		}
	}
	return nil
}

func (b *Bridge) storedURLs(ctx context.Context) ([]string, bool) {
	raw, err := b.local.Get(ctx, StorageKey)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			b.log.Warn().Err(err).Msg("reading stored object urls")
		}
		return nil, false
	}
	var urls []string
	if err := json.Unmarshal(raw, &urls); err != nil {
		b.log.Warn().Err(err).Msg("stored object url list is malformed")
		return nil, false
	}
	return urls, true
}
