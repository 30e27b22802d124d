package ingest

import (
	"context"

	"radiology-worklist/internal/models"
)

// Loader parses one file and registers its metadata. It returns the study
// instance UIDs the file belongs to.
type Loader interface {
	Load(ctx context.Context, f models.LocalFile) ([]string, error)
}

type MetadataStore interface {
	GetStudy(uid string) (*models.StudyMetadata, bool)
}

type ExtensionRegistry interface {
	IsRegistered(id string) bool
}

// Navigator moves the browsing context to the viewer. The first target
// replaces the current page; any further target opens alongside it.
type Navigator interface {
	Navigate(ctx context.Context, targets []string)
}
