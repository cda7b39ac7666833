// Package idempotency deduplicates callback deliveries. Notification
// backends deliver at least once; a delivery key marked inside its TTL
// window is dropped before it reaches the engine. Keys are marked only
// after a delivery was fully processed, so a transient failure leaves the
// redelivery eligible.
package idempotency

import (
	"bytes"
	"encoding/json"
	"os"
	"sync"
	"time"

	"github.com/natefinch/atomic"
)

type ProcessedDeliveries struct {
	Keys map[string]int64 `json:"keys"` // Delivery key -> Expiry (Unix Timestamp)
}

type Store struct {
	path  string
	state ProcessedDeliveries
	mu    sync.RWMutex
}

func NewStore(path string) (*Store, error) {
	s := &Store{
		path: path,
		state: ProcessedDeliveries{
			Keys: make(map[string]int64),
		},
	}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return s.save()
	}

	if err != nil {
		return err
	}

	if len(data) == 0 {
		return nil
	}

	return json.Unmarshal(data, &s.state)
}

func (s *Store) save() error {
	data, err := json.MarshalIndent(s.state, "", "  ")
	if err != nil {
		return err
	}

	return atomic.WriteFile(s.path, bytes.NewReader(data))
}

func (s *Store) Save() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.save()
}

// Seen reports whether the delivery key is inside its TTL window. It does
// not mark the key.
func (s *Store) Seen(key string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	expiry, exists := s.state.Keys[key]
	return exists && expiry > time.Now().Unix()
}

// Mark records the delivery key as processed for the TTL window.
func (s *Store) Mark(key string, ttl time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.state.Keys[key] = time.Now().Unix() + int64(ttl.Seconds())
}

func (s *Store) Prune() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().Unix()
	count := 0
	for k, expiry := range s.state.Keys {
		if expiry < now {
			delete(s.state.Keys, k)
			count++
		}
	}
	return count
}
