package metrics

import (
	"sync"
	"time"
)

// Store is the in-memory Collector behind GET /api/metrics.
//
// Usage:
//
//	store := NewStore(DefaultStoreConfig(), time.Now())
//	store.RecordTierAttempt("hosted", AttemptFailed, 2*time.Second)
//	snap := store.Snapshot(20)
type Store struct {
	mu sync.RWMutex

	// Ring of recent tasks
	taskHistory []TaskRecord
	taskCap     int
	taskHead    int
	taskSize    int

	totalTasks   int64
	totalSuccess int64
	totalErrors  int64

	summariesByTier  map[string]int64
	tierAttempts     map[string]*tierStats
	analyzerOutcomes map[string]int64
	classifierRuns   int64
	classifierHits   map[string]int64

	startTime time.Time
	version   string
}

type tierStats struct {
	succeeded     int64
	failed        int64
	unavailable   int64
	timed         int64
	totalDuration time.Duration
}

// StoreConfig configures a Store.
type StoreConfig struct {
	// TaskHistoryCapacity is how many recent tasks are retained.
	TaskHistoryCapacity int
	Version             string
}

// DefaultStoreConfig returns a 100-task history.
func DefaultStoreConfig() StoreConfig {
	return StoreConfig{
		TaskHistoryCapacity: 100,
		Version:             "dev",
	}
}

// NewStore creates a Store; startTime anchors the reported uptime.
func NewStore(config StoreConfig, startTime time.Time) *Store {
	capacity := config.TaskHistoryCapacity
	if capacity < 1 {
		capacity = 100
	}

	return &Store{
		taskHistory:      make([]TaskRecord, capacity),
		taskCap:          capacity,
		summariesByTier:  make(map[string]int64),
		tierAttempts:     make(map[string]*tierStats),
		analyzerOutcomes: make(map[string]int64),
		classifierHits:   make(map[string]int64),
		startTime:        startTime,
		version:          config.Version,
	}
}

// RecordTask implements Collector.
func (s *Store) RecordTask(task TaskRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.taskHistory[s.taskHead] = task
	s.taskHead = (s.taskHead + 1) % s.taskCap
	if s.taskSize < s.taskCap {
		s.taskSize++
	}

	s.totalTasks++
	switch task.Status {
	case TaskStatusSuccess:
		s.totalSuccess++
		if task.SummaryTier != "" {
			s.summariesByTier[task.SummaryTier]++
		}
	case TaskStatusError:
		s.totalErrors++
	}
}

// RecordTierAttempt implements Collector. Unavailable tiers are not timed.
func (s *Store) RecordTierAttempt(tier, outcome string, elapsed time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stats, ok := s.tierAttempts[tier]
	if !ok {
		stats = &tierStats{}
		s.tierAttempts[tier] = stats
	}

	switch outcome {
	case AttemptSucceeded:
		stats.succeeded++
	case AttemptFailed:
		stats.failed++
	default:
		stats.unavailable++
		return
	}
	stats.timed++
	stats.totalDuration += elapsed
}

// RecordAnalysis implements Collector.
func (s *Store) RecordAnalysis(outcome string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.analyzerOutcomes[outcome]++
}

// RecordPredictions implements Collector.
func (s *Store) RecordPredictions(diseases []string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.classifierRuns++
	for _, d := range diseases {
		s.classifierHits[d]++
	}
}

// RecentTasks returns up to limit tasks, newest first.
func (s *Store) RecentTasks(limit int) []TaskRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.recentLocked(limit)
}

func (s *Store) recentLocked(limit int) []TaskRecord {
	if limit <= 0 || s.taskSize == 0 {
		return []TaskRecord{}
	}
	if limit > s.taskSize {
		limit = s.taskSize
	}

	result := make([]TaskRecord, limit)
	for i := 0; i < limit; i++ {
		idx := (s.taskHead - 1 - i + s.taskCap) % s.taskCap
		result[i] = s.taskHistory[idx]
	}
	return result
}

// Snapshot copies every counter plus up to recent tasks.
func (s *Store) Snapshot(recent int) Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := Snapshot{
		TotalRuns:        s.totalTasks,
		TotalSuccess:     s.totalSuccess,
		TotalErrors:      s.totalErrors,
		SummariesByTier:  copyCounts(s.summariesByTier),
		TierAttempts:     make(map[string]TierStats, len(s.tierAttempts)),
		AnalyzerOutcomes: copyCounts(s.analyzerOutcomes),
		ClassifierRuns:   s.classifierRuns,
		ClassifierHits:   copyCounts(s.classifierHits),
		RecentTasks:      s.recentLocked(recent),
		System: SystemStatus{
			Version:   s.version,
			Uptime:    time.Since(s.startTime),
			LastCheck: time.Now(),
		},
	}

	for tier, stats := range s.tierAttempts {
		var avg time.Duration
		if stats.timed > 0 {
			avg = stats.totalDuration / time.Duration(stats.timed)
		}
		snap.TierAttempts[tier] = TierStats{
			Succeeded:   stats.succeeded,
			Failed:      stats.failed,
			Unavailable: stats.unavailable,
			AvgDuration: avg,
		}
	}
	return snap
}

func copyCounts(m map[string]int64) map[string]int64 {
	out := make(map[string]int64, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

var _ Collector = (*Store)(nil)
