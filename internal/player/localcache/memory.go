// Package localcache provides the instant-resume progress cache. It plays
// the role browser storage plays for a web player: synchronous, survives a
// reload of the player, not shared across devices.
package localcache

import (
	"context"
	"strconv"
	"strings"
	"sync"

	"github.com/example/studyhub/internal/player/progress"
)

// Key identifies one cached module record.
type Key struct {
	UserID      string
	CourseID    string
	ModuleIndex int
}

func (k Key) String() string {
	return strings.Join([]string{k.UserID, k.CourseID, strconv.Itoa(k.ModuleIndex)}, "|")
}

// MemoryStore is an in-process progress.LocalStore. Safe for concurrent use.
type MemoryStore struct {
	mu       sync.RWMutex
	items    map[string]progress.CachedRecord
	onChange []func(Key)
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{items: make(map[string]progress.CachedRecord)}
}

// OnChange registers a callback invoked after every Put. This is the explicit
// replacement for "storage changed elsewhere" listeners: the reconciler may
// subscribe instead of watching ambient events. Must be called before the
// store is shared between goroutines.
func (s *MemoryStore) OnChange(fn func(Key)) {
	s.onChange = append(s.onChange, fn)
}

func (s *MemoryStore) Get(_ context.Context, userID, courseID string, moduleIndex int) (progress.CachedRecord, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.items[Key{userID, courseID, moduleIndex}.String()]
	return rec, ok, nil
}

func (s *MemoryStore) Put(_ context.Context, userID, courseID string, moduleIndex int, rec progress.CachedRecord) error {
	k := Key{userID, courseID, moduleIndex}
	s.mu.Lock()
	s.items[k.String()] = rec
	s.mu.Unlock()
	for _, fn := range s.onChange {
		fn(k)
	}
	return nil
}
