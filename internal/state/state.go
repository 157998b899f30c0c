package state

import (
	"maps"
	"sync"
	"time"

	"github.com/qw-energy/victron-poller/internal/poller"
)

// SnapshotStore remembers the last published snapshot so the publisher can
// skip republishing unchanged data between heartbeats.
type SnapshotStore interface {
	GetLast() (poller.Snapshot, string, time.Time, bool)
	Update(snap poller.Snapshot, status string)
	HasChanged(snap poller.Snapshot, status string) bool
	Clear()
}

type snapshotStore struct {
	mu      sync.RWMutex
	last    poller.Snapshot
	status  string
	sentAt  time.Time
	hasPrev bool
}

func NewSnapshotStore() SnapshotStore {
	return &snapshotStore{}
}

func (s *snapshotStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.last = nil
	s.status = ""
	s.hasPrev = false
}

func (s *snapshotStore) GetLast() (poller.Snapshot, string, time.Time, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.last, s.status, s.sentAt, s.hasPrev
}

func (s *snapshotStore) Update(snap poller.Snapshot, status string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.last = maps.Clone(snap)
	s.status = status
	s.sentAt = time.Now()
	s.hasPrev = true
}

func (s *snapshotStore) HasChanged(snap poller.Snapshot, status string) bool {
	last, lastStatus, _, ok := s.GetLast()
	if !ok {
		return true
	}
	return lastStatus != status || !maps.Equal(last, snap)
}
