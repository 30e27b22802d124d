package main

import (
	"sync"
	"time"
)

// screenLinger is how long a screen survives without a connected stream
// before it is torn down.
const screenLinger = 30 * time.Second

// outbox buffers scripts for a screen until its stream picks them up.
type outbox struct {
	mu      sync.Mutex
	scripts []string
	notify  chan struct{}
}

func newOutbox() *outbox {
	return &outbox{notify: make(chan struct{}, 1)}
}

func (o *outbox) script(js string) {
	o.mu.Lock()
	o.scripts = append(o.scripts, js)
	o.mu.Unlock()
	o.poke()
}

func (o *outbox) poke() {
	select {
	case o.notify <- struct{}{}:
	default:
	}
}

func (o *outbox) drain() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := o.scripts
	o.scripts = nil
	return out
}

// lingerTimer tears a screen down once its stream has been gone too long.
type lingerTimer struct {
	mu    sync.Mutex
	timer *time.Timer
}

func (l *lingerTimer) arm(d time.Duration, fn func()) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.timer != nil {
		l.timer.Stop()
	}
	l.timer = time.AfterFunc(d, fn)
}

func (l *lingerTimer) disarm() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.timer != nil {
		l.timer.Stop()
		l.timer = nil
	}
}

type screens[T any] struct {
	mu    sync.Mutex
	items map[string]T
}

func newScreens[T any]() *screens[T] {
	return &screens[T]{items: make(map[string]T)}
}

func (s *screens[T]) add(id string, v T) {
	s.mu.Lock()
	s.items[id] = v
	s.mu.Unlock()
}

func (s *screens[T]) get(id string) (T, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.items[id]
	return v, ok
}

func (s *screens[T]) remove(id string) (T, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.items[id]
	delete(s.items, id)
	return v, ok
}

func (s *screens[T]) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}

func (s *screens[T]) ids() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.items))
	for id := range s.items {
		out = append(out, id)
	}
	return out
}
