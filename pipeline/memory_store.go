package pipeline

import (
	"context"
	"sync"
	"time"

	"medreport/db"
)

// MemoryStore keeps summaries in memory. The CLI uses it to run the pipeline
// without a database.
type MemoryStore struct {
	mu        sync.Mutex
	nextID    int64
	summaries []db.Summary
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// CreateSummary implements Store.
func (s *MemoryStore) CreateSummary(_ context.Context, summary db.Summary) (db.Summary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	summary.ID = s.nextID
	summary.CreatedAt = time.Now().UTC()
	s.summaries = append(s.summaries, summary)
	return summary, nil
}

// Summaries returns a copy of everything stored.
func (s *MemoryStore) Summaries() []db.Summary {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]db.Summary(nil), s.summaries...)
}
