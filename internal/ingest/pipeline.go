// Package ingest turns a batch of local files into viewer navigation:
// load every file, collect the distinct studies, route slide microscopy
// studies to their own viewer and hand the rest to the default mode.
package ingest

import (
	"context"
	"net/url"
	"slices"
	"strings"

	"github.com/rs/zerolog"

	"radiology-worklist/internal/extension"
	"radiology-worklist/internal/metrics"
	"radiology-worklist/internal/models"
)

const (
	// DataSource is the data source name the viewer uses for local files.
	DataSource = "dicomlocal"
	// MicroscopyMode is the route of the slide microscopy viewer.
	MicroscopyMode = "microscopy"
	modalitySM     = "SM"
)

type FileError struct {
	Name string
	Err  error
}

type Result struct {
	// Studies are the distinct study UIDs in the order they were first seen.
	Studies    []string
	Microscopy []string
	Failed     []FileError
	// Targets are the viewer URLs navigated to, default mode first.
	Targets []string
}

type Pipeline struct {
	loader     Loader
	store      MetadataStore
	extensions ExtensionRegistry
	navigator  Navigator
	modePath   string
	log        zerolog.Logger
	metrics    *metrics.Metrics
}

type Option func(*Pipeline)

func WithLogger(l zerolog.Logger) Option    { return func(p *Pipeline) { p.log = l } }
func WithMetrics(m *metrics.Metrics) Option { return func(p *Pipeline) { p.metrics = m } }
func WithNavigator(n Navigator) Option      { return func(p *Pipeline) { p.navigator = n } }

func New(loader Loader, store MetadataStore, extensions ExtensionRegistry, modePath string, opts ...Option) *Pipeline {
	p := &Pipeline{
		loader:     loader,
		store:      store,
		extensions: extensions,
		modePath:   strings.Trim(modePath, "/"),
		log:        zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Ingest loads files in order. Files that fail to load are logged and
// skipped; the remaining studies still open. With no studies at all there
// is no navigation.
func (p *Pipeline) Ingest(ctx context.Context, files []models.LocalFile) (Result, error) {
	var res Result
	seen := make(map[string]struct{})
	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		uids, err := p.loader.Load(ctx, f)
		p.metrics.IngestedFile(err)
		if err != nil {
			p.log.Warn().Err(err).Str("file", f.Name).Msg("skipping file that failed to load")
			res.Failed = append(res.Failed, FileError{Name: f.Name, Err: err})
			continue
		}
		for _, uid := range uids {
			if _, ok := seen[uid]; ok || uid == "" {
				continue
			}
			seen[uid] = struct{}{}
			res.Studies = append(res.Studies, uid)
		}
	}
	p.metrics.IngestedStudies(len(res.Studies))
	if len(res.Studies) == 0 {
		p.log.Info().Int("files", len(files)).Msg("no studies found in dropped files")
		return res, nil
	}

	regular := res.Studies
	if p.extensions != nil && p.extensions.IsRegistered(extension.Microscopy) {
		regular = nil
		for _, uid := range res.Studies {
			if p.isMicroscopy(uid) {
				res.Microscopy = append(res.Microscopy, uid)
			} else {
				regular = append(regular, uid)
			}
		}
	}
	if len(regular) > 0 {
		res.Targets = append(res.Targets, ViewerURL(p.modePath, regular))
	}
	if len(res.Microscopy) > 0 {
		res.Targets = append(res.Targets, ViewerURL(MicroscopyMode, res.Microscopy))
	}
	p.log.Info().
		Int("files", len(files)).
		Int("failed", len(res.Failed)).
		Strs("studies", res.Studies).
		Msg("ingested local files")

	if p.navigator != nil {
		p.navigator.Navigate(ctx, slices.Clone(res.Targets))
	}
	return res, nil
}

// isMicroscopy checks each series' modality and, failing that, the
// modality of its first instance.
func (p *Pipeline) isMicroscopy(uid string) bool {
	meta, ok := p.store.GetStudy(uid)
	if !ok {
		return false
	}
	for _, s := range meta.Series {
		if s.Modality == modalitySM {
			return true
		}
		if len(s.Instances) > 0 && s.Instances[0].Modality == modalitySM {
			return true
		}
	}
	return false
}

// LaunchURL builds the link that opens one study from the worklist in mode.
// The worklist's own query and fragment are carried over; configURL, when
// set, replaces any configUrl already there.
func LaunchURL(mode string, current *url.URL, studyInstanceUID, configURL string) string {
	q := url.Values{}
	fragment := ""
	if current != nil {
		q = current.Query()
		fragment = current.Fragment
	}
	if configURL != "" {
		q.Set("configUrl", configURL)
	}
	q.Set("StudyInstanceUIDs", studyInstanceUID)
	u := url.URL{Path: "/" + strings.Trim(mode, "/"), RawQuery: q.Encode(), Fragment: fragment}
	return u.String()
}

// ViewerURL builds the route that opens studies from the local data source.
func ViewerURL(mode string, studies []string) string {
	q := url.Values{}
	for _, uid := range studies {
		q.Add("StudyInstanceUIDs", uid)
	}
	q.Set("datasources", DataSource)
	return "/" + strings.Trim(mode, "/") + "?" + q.Encode()
}
