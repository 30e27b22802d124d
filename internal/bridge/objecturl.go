package bridge

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/google/uuid"

	"radiology-worklist/internal/blob"
)

// ErrRevoked is returned when an object URL no longer resolves.
var ErrRevoked = errors.New("bridge: object url revoked")

// BlobPath is the route object URLs are served under.
const BlobPath = "/blob/"

// ObjectURLs mints transient URLs for in-memory payloads.
type ObjectURLs struct {
	store blob.Store
}

func NewObjectURLs(store blob.Store) *ObjectURLs {
	return &ObjectURLs{store: store}
}

// Create stores data and returns the URL that resolves to it.
func (o *ObjectURLs) Create(ctx context.Context, data []byte) (string, error) {
	key := uuid.NewString()
	if _, err := o.store.Put(ctx, key, bytes.NewReader(data), blob.PutOptions{ContentType: "application/octet-stream"}); err != nil {
		return "", fmt.Errorf("create object url: %w", err)
	}
	return BlobPath + key, nil
}

// KeyOf extracts the blob key from an object URL, absolute or relative.
func KeyOf(raw string) (string, bool) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", false
	}
	key, ok := strings.CutPrefix(u.Path, BlobPath)
	if !ok || key == "" || strings.Contains(key, "/") {
		return "", false
	}
	return key, true
}

// Fetch reads the payload behind an object URL.
func (o *ObjectURLs) Fetch(ctx context.Context, raw string) ([]byte, error) {
	key, ok := KeyOf(raw)
	if !ok {
		return nil, fmt.Errorf("%q: not an object url", raw)
	}
	_, rc, err := o.store.Get(ctx, key)
	if errors.Is(err, blob.ErrNotFound) {
		return nil, fmt.Errorf("%s: %w", raw, ErrRevoked)
	}
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

// Revoke releases an object URL. Revoking twice is not an error.
func (o *ObjectURLs) Revoke(ctx context.Context, raw string) error {
	key, ok := KeyOf(raw)
	if !ok {
		return fmt.Errorf("%q: not an object url", raw)
	}
	_, err := o.store.Delete(ctx, key)
	return err
}
