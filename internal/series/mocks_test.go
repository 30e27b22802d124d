package series

import (
	"context"

	"radiology-worklist/internal/models"
)

type MockDataSource struct {
	SearchSeriesFunc func(ctx context.Context, studyInstanceUID string) ([]*models.Series, error)
}

func (m *MockDataSource) SearchSeries(ctx context.Context, studyInstanceUID string) ([]*models.Series, error) {
	return m.SearchSeriesFunc(ctx, studyInstanceUID)
}
