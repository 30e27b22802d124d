package ingest

import (
	"context"

	"radiology-worklist/internal/models"
)

type MockLoader struct {
	LoadFunc func(ctx context.Context, f models.LocalFile) ([]string, error)
}

func (m *MockLoader) Load(ctx context.Context, f models.LocalFile) ([]string, error) {
	return m.LoadFunc(ctx, f)
}

type MockMetadataStore struct {
	GetStudyFunc func(uid string) (*models.StudyMetadata, bool)
}

func (m *MockMetadataStore) GetStudy(uid string) (*models.StudyMetadata, bool) {
	if m.GetStudyFunc == nil {
		return nil, false
	}
	return m.GetStudyFunc(uid)
}

type MockNavigator struct {
	Calls [][]string
}

func (m *MockNavigator) Navigate(ctx context.Context, targets []string) {
	m.Calls = append(m.Calls, targets)
}
