// Package file provides a durable store kept in a single JSON document on
// disk. Processes sharing the document are separate execution contexts;
// changes made by one are observed by the others through fsnotify.
package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/marketplace/storefront/internal/core/ports"
)

// document is the on-disk layout. Writer is the context that produced it.
type document struct {
	Writer  string            `json:"writer"`
	Entries map[string]string `json:"entries"`
}

// Store implements ports.DurableStore on top of a JSON file.
type Store struct {
	path    string
	id      string
	watcher *fsnotify.Watcher
	log     zerolog.Logger

	// mu serialises writes from this process and guards last.
	mu   sync.Mutex
	last map[string]string

	subMu  sync.Mutex
	subs   map[int]func(ports.ChangeEvent)
	nextID int

	cancel context.CancelFunc
	done   chan struct{}
}

var _ ports.DurableStore = (*Store)(nil)

// Open prepares the document directory, takes an initial snapshot and starts
// watching for writes made by other contexts.
func Open(ctx context.Context, path string, log zerolog.Logger) (*Store, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("file store: resolve path: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return nil, fmt.Errorf("file store: create dir: %w", err)
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("file store: watcher: %w", err)
	}
	// Watch the directory: writes land via rename, which replaces the inode.
	if err := fsw.Add(filepath.Dir(abs)); err != nil {
		_ = fsw.Close()
		return nil, fmt.Errorf("file store: watch dir: %w", err)
	}

	s := &Store{
		path:    abs,
		id:      uuid.NewString(),
		watcher: fsw,
		subs:    make(map[int]func(ports.ChangeEvent)),
		done:    make(chan struct{}),
	}
	s.log = log.With().Str("component", "file_store").Str("context_id", s.id).Logger()
	if s.unreadable() {
		// Replace the bytes with an empty record so every context starts clean.
		if err := s.update(func(map[string]string) {}); err != nil {
			_ = fsw.Close()
			return nil, err
		}
		s.log.Warn().Str("path", abs).Msg("unreadable document replaced with an empty one")
	}
	s.last = s.readDocument().Entries

	watchCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	go s.processEvents(watchCtx)

	s.log.Debug().Str("path", abs).Msg("file store opened")
	return s, nil
}

// ContextID identifies this handle.
func (s *Store) ContextID() string { return s.id }

func (s *Store) Get(_ context.Context, key string) (string, bool, error) {
	doc := s.readDocument()
	v, ok := doc.Entries[key]
	return v, ok, nil
}

func (s *Store) Set(_ context.Context, entries map[string]string) error {
	return s.update(func(m map[string]string) {
		for k, v := range entries {
			m[k] = v
		}
	})
}

func (s *Store) Delete(_ context.Context, keys ...string) error {
	return s.update(func(m map[string]string) {
		for _, k := range keys {
			delete(m, k)
		}
	})
}

func (s *Store) Subscribe(fn func(ports.ChangeEvent)) func() {
	s.subMu.Lock()
	id := s.nextID
	s.nextID++
	s.subs[id] = fn
	s.subMu.Unlock()

	return func() {
		s.subMu.Lock()
		delete(s.subs, id)
		s.subMu.Unlock()
	}
}

// Ping checks that the document directory is still reachable.
func (s *Store) Ping(context.Context) error {
	if _, err := os.Stat(filepath.Dir(s.path)); err != nil {
		return fmt.Errorf("file store: %w", err)
	}
	return nil
}

func (s *Store) Close() error {
	s.cancel()
	err := s.watcher.Close()
	<-s.done
	return err
}

// update rewrites the whole document atomically (temp file + rename).
func (s *Store) update(mutate func(map[string]string)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc := s.readDocument()
	mutate(doc.Entries)
	doc.Writer = s.id

	b, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("file store: encode: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".store-*.tmp")
	if err != nil {
		return fmt.Errorf("file store: temp file: %w", err)
	}
	if _, err := tmp.Write(b); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("file store: write: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("file store: close: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("file store: rename: %w", err)
	}

	s.last = doc.Entries
	return nil
}

// readDocument loads the document. A missing or unreadable document reads
// as empty; the next write replaces it.
func (s *Store) readDocument() document {
	doc := document{Entries: make(map[string]string)}
	b, err := os.ReadFile(s.path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			s.log.Warn().Err(err).Msg("read document failed")
		}
		return doc
	}
	if err := json.Unmarshal(b, &doc); err != nil {
		s.log.Warn().Err(err).Msg("unreadable document treated as empty")
		return document{Entries: make(map[string]string)}
	}
	if doc.Entries == nil {
		doc.Entries = make(map[string]string)
	}
	return doc
}

// unreadable reports whether a document exists but does not decode.
func (s *Store) unreadable() bool {
	b, err := os.ReadFile(s.path)
	if err != nil {
		return false
	}
	var doc document
	return json.Unmarshal(b, &doc) != nil
}

func (s *Store) processEvents(ctx context.Context) {
	defer close(s.done)
	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-s.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != s.path {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename) {
				s.handleDocumentChange()
			}

		case err, ok := <-s.watcher.Errors:
			if !ok {
				return
			}
			s.log.Error().Err(err).Msg("watcher error")
		}
	}
}

// handleDocumentChange diffs the document against the last snapshot and
// notifies the changed keys, unless this context wrote it.
func (s *Store) handleDocumentChange() {
	s.mu.Lock()
	doc := s.readDocument()
	if doc.Writer == s.id {
		s.last = doc.Entries
		s.mu.Unlock()
		return
	}
	changed := diffKeys(s.last, doc.Entries)
	s.last = doc.Entries
	s.mu.Unlock()

	if len(changed) == 0 {
		return
	}

	s.subMu.Lock()
	fns := make([]func(ports.ChangeEvent), 0, len(s.subs))
	for _, fn := range s.subs {
		fns = append(fns, fn)
	}
	s.subMu.Unlock()

	for _, k := range changed {
		s.log.Debug().Str("key", k).Msg("external change detected")
		for _, fn := range fns {
			fn(ports.ChangeEvent{Key: k})
		}
	}
}

// diffKeys returns keys added, removed or modified between two snapshots.
func diffKeys(prev, next map[string]string) []string {
	var changed []string
	for k, v := range next {
		if old, ok := prev[k]; !ok || old != v {
			changed = append(changed, k)
		}
	}
	for k := range prev {
		if _, ok := next[k]; !ok {
			changed = append(changed, k)
		}
	}
	return changed
}
