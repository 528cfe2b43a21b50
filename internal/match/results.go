package match

import (
	"context"
	"sync"

	"github.com/quizbattle/server/internal/battle"
)

// Recorder keeps the most recent results in memory. It serves as the result
// store when no database is configured.
type Recorder struct {
	mu      sync.RWMutex
	results []battle.Result // oldest first
	limit   int
}

func NewRecorder(limit int) *Recorder {
	if limit <= 0 {
		limit = 100
	}
	return &Recorder{limit: limit}
}

func (r *Recorder) Record(_ context.Context, res battle.Result) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.results = append(r.results, res)
	if over := len(r.results) - r.limit; over > 0 {
		r.results = append(r.results[:0], r.results[over:]...)
	}
	return nil
}

// Recent returns up to limit results, newest first.
func (r *Recorder) Recent(_ context.Context, limit int) ([]battle.Result, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if limit <= 0 || limit > len(r.results) {
		limit = len(r.results)
	}
	out := make([]battle.Result, 0, limit)
	for i := len(r.results) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, r.results[i])
	}
	return out, nil
}

// Get returns the result of matchID, or nil if it is not kept.
func (r *Recorder) Get(_ context.Context, matchID string) (*battle.Result, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for i := len(r.results) - 1; i >= 0; i-- {
		if r.results[i].MatchID == matchID {
			res := r.results[i]
			return &res, nil
		}
	}
	return nil, nil
}
