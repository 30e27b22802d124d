package main

import (
	"context"
	"sync"

	"radiology-worklist/internal/dicomweb"
	"radiology-worklist/internal/models"
)

type MockDataSource struct {
	SearchStudiesFunc func(ctx context.Context, q models.StudyQuery) ([]*models.Study, error)
	SearchSeriesFunc  func(ctx context.Context, studyInstanceUID string) ([]*models.Series, error)
	UploadEnabled     bool

	mu      sync.Mutex
	queries []models.StudyQuery
}

func (m *MockDataSource) SearchStudies(ctx context.Context, q models.StudyQuery) ([]*models.Study, error) {
	m.mu.Lock()
	m.queries = append(m.queries, q)
	m.mu.Unlock()
	if m.SearchStudiesFunc != nil {
		return m.SearchStudiesFunc(ctx, q)
	}
	return nil, nil
}

func (m *MockDataSource) SearchSeries(ctx context.Context, studyInstanceUID string) ([]*models.Series, error) {
	if m.SearchSeriesFunc != nil {
		return m.SearchSeriesFunc(ctx, studyInstanceUID)
	}
	return nil, nil
}

func (m *MockDataSource) Config() dicomweb.SourceConfig {
	return dicomweb.SourceConfig{DicomUploadEnabled: m.UploadEnabled}
}

func (m *MockDataSource) Queries() []models.StudyQuery {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.StudyQuery(nil), m.queries...)
}
