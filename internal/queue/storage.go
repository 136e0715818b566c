// Package queue provides durable, ordered, idempotent delivery of decided
// attendance actions to the ledger across connectivity loss.
package queue

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/kozaktomas/attendance-kiosk/internal/ledger"
)

// Item is one pending delivery. The idempotency key is generated once at
// decision time and reused on every retry, so at-least-once delivery plus
// ledger-side deduplication yields effectively-once application.
type Item struct {
	Seq            uint64 // enqueue order, strictly increasing
	IdempotencyKey string
	DecisionID     string // groups linked events (transfer out+in)
	EmployeeID     string
	Request        ledger.ProcessRequest
	EnqueuedAt     time.Time
	AttemptCount   int
	NextRetryAt    time.Time
	Failed         bool   // exceeded max attempts, needs operator attention
	LastError      string // last delivery error, for the status API
}

// Storage persists pending items across restarts.
type Storage interface {
	Load() ([]Item, error)
	Save(items []Item) error
}

// FileStorage keeps the queue in a gob file in the kiosk state directory,
// written to a temp file and renamed into place.
type FileStorage struct {
	path string
	mu   sync.Mutex
}

// NewFileStorage creates a file-backed queue store.
func NewFileStorage(path string) *FileStorage {
	return &FileStorage{path: path}
}

// Load reads all persisted items. A missing file is an empty queue.
func (s *FileStorage) Load() ([]Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read queue file: %w", err)
	}

	var items []Item
	dec := gob.NewDecoder(bytes.NewReader(data))
	if err := dec.Decode(&items); err != nil {
		return nil, fmt.Errorf("failed to decode queue file: %w", err)
	}
	return items, nil
}

// Save writes the full item set atomically.
func (s *FileStorage) Save(items []Item) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var buf bytes.Buffer
	enc := gob.NewEncoder(&buf)
	if err := enc.Encode(items); err != nil {
		return fmt.Errorf("failed to encode queue: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0700); err != nil {
		return fmt.Errorf("failed to create queue directory: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, buf.Bytes(), 0600); err != nil {
		return fmt.Errorf("failed to write queue file: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("failed to replace queue file: %w", err)
	}
	return nil
}

// MemoryStorage is an in-memory Storage for tests.
type MemoryStorage struct {
	items []Item
	mu    sync.Mutex
}

// NewMemoryStorage creates an empty in-memory store.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{}
}

// Load returns a copy of the stored items.
func (s *MemoryStorage) Load() ([]Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Item, len(s.items))
	copy(out, s.items)
	return out, nil
}

// Save replaces the stored items.
func (s *MemoryStorage) Save(items []Item) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = make([]Item, len(items))
	copy(s.items, items)
	return nil
}
