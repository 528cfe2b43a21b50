package match

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/quizbattle/server/internal/battle"
	"github.com/quizbattle/server/internal/config"
	"github.com/quizbattle/server/internal/data"
	"go.uber.org/zap"
)

// Info is returned by the API for the match list.
type Info struct {
	ID      string            `json:"id"`
	Started time.Time         `json:"started"`
	State   battle.MatchState `json:"state"`
}

// ManagerOptions configures a Manager. Every match it creates shares them.
type ManagerOptions struct {
	Match  config.MatchConfig
	Lane   config.LaneConfig
	Units  *data.UnitTable
	Damage battle.DamageFunc
	Sink   ResultSink
	Logger *zap.Logger
	Clock  func() time.Time
}

// Manager holds the running matches by id. Finished matches stay queryable
// for match.finished_retention before Sweep removes them.
type Manager struct {
	mu      sync.RWMutex
	matches map[string]*Loop
	opts    ManagerOptions
	log     *zap.Logger

	hookMu   sync.Mutex
	onRemove []func(id string)
}

func NewManager(opts ManagerOptions) *Manager {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	return &Manager{
		matches: make(map[string]*Loop),
		opts:    opts,
		log:     opts.Logger,
	}
}

// OnRemove registers fn to be called with the id of every match that Stop,
// Sweep or StopAll removes.
func (m *Manager) OnRemove(fn func(id string)) {
	m.hookMu.Lock()
	m.onRemove = append(m.onRemove, fn)
	m.hookMu.Unlock()
}

func (m *Manager) removed(ids ...string) {
	m.hookMu.Lock()
	hooks := append(([]func(string))(nil), m.onRemove...)
	m.hookMu.Unlock()
	for _, id := range ids {
		for _, fn := range hooks {
			fn(id)
		}
	}
}

// Create starts a new match and returns its loop.
func (m *Manager) Create() (*Loop, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if limit := m.opts.Match.MaxMatches; limit > 0 && m.running() >= limit {
		return nil, ErrMatchLimit
	}
	id := uuid.NewString()
	l := NewLoop(Options{
		ID:     id,
		Match:  m.opts.Match,
		Lane:   m.opts.Lane,
		Units:  m.opts.Units,
		Damage: m.opts.Damage,
		Sink:   m.opts.Sink,
		Logger: m.log,
		Clock:  m.opts.Clock,
	})
	m.matches[id] = l
	go l.Run()
	return l, nil
}

// running counts matches that have not finished. Caller holds mu.
func (m *Manager) running() int {
	n := 0
	for _, l := range m.matches {
		if _, over := l.Result(); !over {
			n++
		}
	}
	return n
}

// Get returns the match with id.
func (m *Manager) Get(id string) (*Loop, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	l, ok := m.matches[id]
	if !ok {
		return nil, ErrMatchNotFound
	}
	return l, nil
}

// List returns every known match, oldest first.
func (m *Manager) List() []Info {
	m.mu.RLock()
	out := make([]Info, 0, len(m.matches))
	for id, l := range m.matches {
		out = append(out, Info{ID: id, Started: l.Started(), State: l.Snapshot().State})
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Started.Equal(out[j].Started) {
			return out[i].ID < out[j].ID
		}
		return out[i].Started.Before(out[j].Started)
	})
	return out
}

// Len returns the number of known matches.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.matches)
}

// Stop stops a match and forgets it.
func (m *Manager) Stop(id string) error {
	m.mu.Lock()
	l, ok := m.matches[id]
	delete(m.matches, id)
	m.mu.Unlock()
	if !ok {
		return ErrMatchNotFound
	}
	l.Stop()
	m.removed(id)
	m.log.Info("match stopped", zap.String("match", id))
	return nil
}

// Sweep stops and removes matches that finished more than the retention
// period ago. It returns how many it removed.
func (m *Manager) Sweep() int {
	now := m.opts.Clock()
	retain := m.opts.Match.FinishedRetention

	m.mu.Lock()
	var stale []*Loop
	var ids []string
	for id, l := range m.matches {
		res, ok := l.Result()
		if !ok || now.Sub(res.EndedAt) < retain {
			continue
		}
		stale = append(stale, l)
		ids = append(ids, id)
		delete(m.matches, id)
	}
	m.mu.Unlock()

	for _, l := range stale {
		l.Stop()
	}
	m.removed(ids...)
	if len(stale) > 0 {
		m.log.Debug("swept finished matches", zap.Int("count", len(stale)))
	}
	return len(stale)
}

// Run sweeps finished matches every interval until ctx is done, then stops
// every remaining match.
func (m *Manager) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			m.StopAll()
			return
		case <-ticker.C:
			m.Sweep()
		}
	}
}

// StopAll stops every match and waits for their loops to exit.
func (m *Manager) StopAll() {
	m.mu.Lock()
	loops := make([]*Loop, 0, len(m.matches))
	ids := make([]string, 0, len(m.matches))
	for id, l := range m.matches {
		loops = append(loops, l)
		ids = append(ids, id)
		delete(m.matches, id)
	}
	m.mu.Unlock()

	for _, l := range loops {
		l.Stop()
	}
	m.removed(ids...)
	for _, l := range loops {
		<-l.Done()
	}
}
