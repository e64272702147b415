package snapshot

import (
	"context"
	"sync"
)

// MemoryStore keeps snapshots in process memory. Order of creation is
// retained so the capacity bound can evict oldest-first.
type MemoryStore struct {
	mu       sync.Mutex
	maxCount int
	byID     map[string]Snapshot
	order    []string
}

// NewMemoryStore returns an empty store. maxCount bounds the number of
// retained snapshots; zero means unbounded.
func NewMemoryStore(maxCount int) *MemoryStore {
	return &MemoryStore{maxCount: maxCount, byID: make(map[string]Snapshot)}
}

func (s *MemoryStore) Create(ctx context.Context, code, name, creator string) (Snapshot, error) {
	id, err := newID()
	if err != nil {
		return Snapshot{}, err
	}
	if name == "" {
		name = defaultName(id)
	}
	sn := Snapshot{ID: id, Name: name, Creator: creator, Code: code, CreatedAt: now()}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.maxCount > 0 && len(s.order) >= s.maxCount {
		oldest := s.order[0]
		s.order = s.order[1:]
		delete(s.byID, oldest)
	}
	s.byID[sn.ID] = sn
	s.order = append(s.order, sn.ID)
	return sn, nil
}

func (s *MemoryStore) Get(ctx context.Context, id string) (Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sn, ok := s.byID[id]
	if !ok {
		return Snapshot{}, ErrNotFound
	}
	return sn, nil
}

func (s *MemoryStore) List(ctx context.Context) ([]Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Snapshot, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.byID[id])
	}
	return out, nil
}

func (s *MemoryStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byID[id]; !ok {
		return ErrNotFound
	}
	delete(s.byID, id)
	for i, oid := range s.order {
		if oid == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return nil
}

func (s *MemoryStore) Close() error { return nil }
