package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/marketplace/storefront/internal/core/ports"
)

// changeMessage is published on the namespace channel after every write.
type changeMessage struct {
	Origin string   `json:"origin"`
	Keys   []string `json:"keys"`
}

// DurableStore implements ports.DurableStore on Redis.
// Key format: <namespace>:<key>. Change notifications travel over the
// <namespace>:changes pub/sub channel and are dropped by the handle that
// published them.
type DurableStore struct {
	client    *redis.Client
	namespace string
	id        string
	pubsub    *redis.PubSub
	log       zerolog.Logger

	subMu  sync.Mutex
	subs   map[int]func(ports.ChangeEvent)
	nextID int

	cancel context.CancelFunc
	done   chan struct{}
}

var _ ports.DurableStore = (*DurableStore)(nil)

// NewDurableStore opens a new execution context on the given namespace and
// starts listening for changes published by other contexts.
func NewDurableStore(ctx context.Context, client *redis.Client, namespace string, log zerolog.Logger) (*DurableStore, error) {
	s := &DurableStore{
		client:    client,
		namespace: namespace,
		id:        uuid.NewString(),
		subs:      make(map[int]func(ports.ChangeEvent)),
		done:      make(chan struct{}),
	}
	s.log = log.With().Str("component", "redis_store").Str("context_id", s.id).Logger()

	s.pubsub = client.Subscribe(ctx, s.channel())
	if _, err := s.pubsub.Receive(ctx); err != nil {
		_ = s.pubsub.Close()
		return nil, fmt.Errorf("redis subscribe: %w", err)
	}

	listenCtx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	go s.listen(listenCtx)

	return s, nil
}

// ContextID identifies this handle.
func (s *DurableStore) ContextID() string { return s.id }

func (s *DurableStore) Get(ctx context.Context, key string) (string, bool, error) {
	v, err := s.client.Get(ctx, s.key(key)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("redis get %s: %w", key, err)
	}
	return v, true, nil
}

// Set writes every entry and announces the change in one MULTI/EXEC block.
func (s *DurableStore) Set(ctx context.Context, entries map[string]string) error {
	if len(entries) == 0 {
		return nil
	}
	keys := make([]string, 0, len(entries))
	for k := range entries {
		keys = append(keys, k)
	}
	payload, err := s.message(keys)
	if err != nil {
		return err
	}

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for k, v := range entries {
			pipe.Set(ctx, s.key(k), v, 0)
		}
		pipe.Publish(ctx, s.channel(), payload)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

func (s *DurableStore) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	payload, err := s.message(keys)
	if err != nil {
		return err
	}

	full := make([]string, len(keys))
	for i, k := range keys {
		full[i] = s.key(k)
	}
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, full...)
		pipe.Publish(ctx, s.channel(), payload)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis delete: %w", err)
	}
	return nil
}

func (s *DurableStore) Subscribe(fn func(ports.ChangeEvent)) func() {
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

func (s *DurableStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close stops listening. The underlying client is owned by the caller.
func (s *DurableStore) Close() error {
	s.cancel()
	err := s.pubsub.Close()
	<-s.done
	return err
}

func (s *DurableStore) listen(ctx context.Context) {
	defer close(s.done)
	ch := s.pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			s.dispatch(msg.Payload)
		}
	}
}

func (s *DurableStore) dispatch(payload string) {
	var m changeMessage
	if err := json.Unmarshal([]byte(payload), &m); err != nil {
		s.log.Warn().Err(err).Msg("malformed change message")
		return
	}
	if m.Origin == s.id {
		return
	}

	s.subMu.Lock()
	fns := make([]func(ports.ChangeEvent), 0, len(s.subs))
	for _, fn := range s.subs {
		fns = append(fns, fn)
	}
	s.subMu.Unlock()

	for _, k := range m.Keys {
		for _, fn := range fns {
			fn(ports.ChangeEvent{Key: k})
		}
	}
}

func (s *DurableStore) message(keys []string) (string, error) {
	b, err := json.Marshal(changeMessage{Origin: s.id, Keys: keys})
	if err != nil {
		return "", fmt.Errorf("encode change message: %w", err)
	}
	return string(b), nil
}

func (s *DurableStore) key(k string) string {
	return fmt.Sprintf("%s:%s", s.namespace, k)
}

func (s *DurableStore) channel() string {
	return s.namespace + ":changes"
}
