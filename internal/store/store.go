// Package store persists the small per-client key/value state of the
// screens: the session copy of worklist filters and the local-storage list
// of object URLs handed across windows.
package store

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Get for an absent key.
var ErrNotFound = errors.New("store: key not found")

// Store is a namespaced key/value store. A namespace is one client's
// storage area; keys are the storage keys used by the screens.
type Store interface {
	Get(ctx context.Context, namespace, key string) ([]byte, error)
	Set(ctx context.Context, namespace, key string, value []byte) error
	Delete(ctx context.Context, namespace, key string) error
	// Clear removes every key of namespace.
	Clear(ctx context.Context, namespace string) error
	Close() error
}

// Area binds a Store to one namespace, the way a page sees its own
// sessionStorage or localStorage.
type Area struct {
	store     Store
	namespace string
}

func NewArea(s Store, namespace string) *Area {
	return &Area{store: s, namespace: namespace}
}

func (a *Area) Get(ctx context.Context, key string) ([]byte, error) {
	return a.store.Get(ctx, a.namespace, key)
}

func (a *Area) Set(ctx context.Context, key string, value []byte) error {
	return a.store.Set(ctx, a.namespace, key, value)
}

func (a *Area) Delete(ctx context.Context, key string) error {
	return a.store.Delete(ctx, a.namespace, key)
}

func (a *Area) Clear(ctx context.Context) error {
	return a.store.Clear(ctx, a.namespace)
}

// Session and Local name the two storage areas of a client.
func Session(s Store, clientID string) *Area { return NewArea(s, "session:"+clientID) }
func Local(s Store, clientID string) *Area   { return NewArea(s, "local:"+clientID) }
