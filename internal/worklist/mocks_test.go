package worklist

import (
	"context"
	"net/url"
	"sync"

	"radiology-worklist/internal/models"
)

type MockStudySource struct {
	SearchStudiesFunc func(ctx context.Context, q models.StudyQuery) ([]*models.Study, error)
}

func (m *MockStudySource) SearchStudies(ctx context.Context, q models.StudyQuery) ([]*models.Study, error) {
	return m.SearchStudiesFunc(ctx, q)
}

type MockSeriesSource struct {
	SearchSeriesFunc func(ctx context.Context, studyInstanceUID string) ([]*models.Series, error)
}

func (m *MockSeriesSource) SearchSeries(ctx context.Context, studyInstanceUID string) ([]*models.Series, error) {
	return m.SearchSeriesFunc(ctx, studyInstanceUID)
}

type recordingSink struct {
	mu        sync.Mutex
	views     []View
	locations []*url.URL
}

func (s *recordingSink) Render(v View) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.views = append(s.views, v)
}

func (s *recordingSink) Navigate(u *url.URL) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.locations = append(s.locations, u)
}

func (s *recordingSink) navigations() []*url.URL {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*url.URL(nil), s.locations...)
}

func (s *recordingSink) last() View {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.views) == 0 {
		return View{}
	}
	return s.views[len(s.views)-1]
}
