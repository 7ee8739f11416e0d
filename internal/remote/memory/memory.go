// Package memory is an in-process remote backend used in tests and for
// disconnected development. It honors the same contract as the real
// backends, including per-item batch results and idempotent delete, and
// supports failure injection.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"spend/internal/core"
	"spend/internal/remote"
)

type Store struct {
	mu      sync.Mutex
	records map[string]core.Record

	pushErr   error
	pullErr   error
	deleteErr error
}

func New() *Store {
	return &Store{records: make(map[string]core.Record)}
}

// FailPushWith makes subsequent pushes fail with err; nil restores normal
// operation. Same for FailPullWith and FailDeleteWith.
func (s *Store) FailPushWith(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pushErr = err
}

func (s *Store) FailPullWith(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pullErr = err
}

func (s *Store) FailDeleteWith(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deleteErr = err
}

func (s *Store) Push(_ context.Context, r core.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pushErr != nil {
		return s.pushErr
	}
	if err := r.Validate(); err != nil {
		return fmt.Errorf("%w: %v", core.ErrRemoteRejected, err)
	}
	s.records[r.ID] = stored(r)
	return nil
}

func (s *Store) PushBatch(_ context.Context, records []core.Record) ([]remote.PushResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pushErr != nil {
		return nil, s.pushErr
	}

	results := make([]remote.PushResult, 0, len(records))
	for _, r := range records {
		if err := r.Validate(); err != nil {
			results = append(results, remote.PushResult{
				ID:  r.ID,
				Err: fmt.Errorf("%w: %v", core.ErrRemoteRejected, err),
			})
			continue
		}
		s.records[r.ID] = stored(r)
		results = append(results, remote.PushResult{ID: r.ID})
	}
	return results, nil
}

func (s *Store) Pull(_ context.Context, ownerID string) ([]core.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pullErr != nil {
		return nil, s.pullErr
	}

	var result []core.Record
	for _, r := range s.records {
		if r.OwnerID == ownerID {
			result = append(result, r)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].OccurredAt.After(result[j].OccurredAt)
	})
	return result, nil
}

func (s *Store) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.deleteErr != nil {
		return s.deleteErr
	}
	delete(s.records, id)
	return nil
}

// Get exposes the raw remote copy for test assertions.
func (s *Store) Get(id string) (core.Record, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.records[id]
	return r, ok
}

// Seed places a record on the remote side directly, as if another device
// had pushed it.
func (s *Store) Seed(r core.Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[r.ID] = stored(r)
}

// Len returns the number of remote records across all owners.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

func stored(r core.Record) core.Record {
	r.SyncState = core.Synced
	r.LastSyncError = ""
	return r
}
