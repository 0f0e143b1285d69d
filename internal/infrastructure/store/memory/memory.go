// Package memory provides an in-process durable store. A Hub plays the role
// of one origin; every handle opened on it is a separate execution context.
package memory

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"

	"github.com/marketplace/storefront/internal/core/ports"
	"github.com/marketplace/storefront/internal/infrastructure/queue"
)

var ErrClosed = errors.New("memory store: handle closed")

// Hub is the shared key-value map behind all handles.
type Hub struct {
	dispatcher *queue.Dispatcher

	mu      sync.RWMutex
	data    map[string]string
	handles map[string]*Store
}

// NewHub returns an empty hub that delivers notifications through d.
// The dispatcher must be started by the caller.
func NewHub(d *queue.Dispatcher) *Hub {
	return &Hub{
		dispatcher: d,
		data:       make(map[string]string),
		handles:    make(map[string]*Store),
	}
}

// Open returns a new execution context handle.
func (h *Hub) Open() *Store {
	s := &Store{
		hub:  h,
		id:   uuid.NewString(),
		subs: make(map[int]func(ports.ChangeEvent)),
	}
	h.mu.Lock()
	h.handles[s.id] = s
	h.mu.Unlock()
	return s
}

// Store is one context's handle on a Hub. It implements ports.DurableStore.
type Store struct {
	hub *Hub
	id  string

	mu     sync.Mutex
	subs   map[int]func(ports.ChangeEvent)
	nextID int
	closed bool
}

var _ ports.DurableStore = (*Store)(nil)

// ContextID identifies this handle.
func (s *Store) ContextID() string { return s.id }

func (s *Store) Get(_ context.Context, key string) (string, bool, error) {
	if s.isClosed() {
		return "", false, ErrClosed
	}
	s.hub.mu.RLock()
	defer s.hub.mu.RUnlock()
	v, ok := s.hub.data[key]
	return v, ok, nil
}

func (s *Store) Set(_ context.Context, entries map[string]string) error {
	if s.isClosed() {
		return ErrClosed
	}
	h := s.hub
	h.mu.Lock()
	changed := make([]string, 0, len(entries))
	for k, v := range entries {
		if old, ok := h.data[k]; ok && old == v {
			continue
		}
		h.data[k] = v
		changed = append(changed, k)
	}
	others := h.othersLocked(s.id)
	h.mu.Unlock()

	h.broadcast(others, changed)
	return nil
}

func (s *Store) Delete(_ context.Context, keys ...string) error {
	if s.isClosed() {
		return ErrClosed
	}
	h := s.hub
	h.mu.Lock()
	changed := make([]string, 0, len(keys))
	for _, k := range keys {
		if _, ok := h.data[k]; !ok {
			continue
		}
		delete(h.data, k)
		changed = append(changed, k)
	}
	others := h.othersLocked(s.id)
	h.mu.Unlock()

	h.broadcast(others, changed)
	return nil
}

func (s *Store) Subscribe(fn func(ports.ChangeEvent)) func() {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.subs[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.subs, id)
		s.mu.Unlock()
	}
}

func (s *Store) Ping(context.Context) error {
	if s.isClosed() {
		return ErrClosed
	}
	return nil
}

// Close detaches the handle from the hub. Data written through it stays.
func (s *Store) Close() error {
	s.mu.Lock()
	s.closed = true
	s.subs = make(map[int]func(ports.ChangeEvent))
	s.mu.Unlock()

	s.hub.mu.Lock()
	delete(s.hub.handles, s.id)
	s.hub.mu.Unlock()
	return nil
}

func (s *Store) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *Store) handlers() []func(ports.ChangeEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fns := make([]func(ports.ChangeEvent), 0, len(s.subs))
	for _, fn := range s.subs {
		fns = append(fns, fn)
	}
	return fns
}

// othersLocked lists every handle except the writer. Callers hold h.mu.
func (h *Hub) othersLocked(writer string) []*Store {
	others := make([]*Store, 0, len(h.handles))
	for id, st := range h.handles {
		if id != writer {
			others = append(others, st)
		}
	}
	return others
}

func (h *Hub) broadcast(targets []*Store, keys []string) {
	if len(keys) == 0 {
		return
	}
	for _, st := range targets {
		for _, fn := range st.handlers() {
			for _, k := range keys {
				h.dispatcher.Enqueue(queue.Delivery{
					ContextID: st.id,
					Event:     ports.ChangeEvent{Key: k},
					Handler:   fn,
				})
			}
		}
	}
}
