package bridge

import (
	"context"
	"sync"

	"radiology-worklist/internal/models"
)

type MockIngester struct {
	IngestFunc func(ctx context.Context, files []models.LocalFile) error

	mu    sync.Mutex
	calls [][]models.LocalFile
}

func (m *MockIngester) Ingest(ctx context.Context, files []models.LocalFile) error {
	m.mu.Lock()
	m.calls = append(m.calls, files)
	m.mu.Unlock()
	if m.IngestFunc != nil {
		return m.IngestFunc(ctx, files)
	}
	return nil
}

func (m *MockIngester) Calls() [][]models.LocalFile {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

type MockWindow struct {
	opened chan string
}

func newMockWindow() *MockWindow {
	return &MockWindow{opened: make(chan string, 4)}
}

func (m *MockWindow) Open(url string) { m.opened <- url }
