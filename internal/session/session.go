// Package session holds the per-user selection state of the explorer.
// The record table is shared; every session owns its own held selections.
package session

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"

	"github.com/esvd-explorer/server/internal/filter"
)

// ErrNotFound is returned for unknown or expired session ids.
var ErrNotFound = errors.New("session not found")

// Session is the held selection state of one user.
type Session struct {
	ID      string
	Dataset string
	Created time.Time

	mu      sync.Mutex
	chain   filter.Chain
	service filter.Selection
	touched time.Time
}

// State is a consistent copy of a session's held selections.
type State struct {
	Chain   filter.Chain     `json:"chain"`
	Service filter.Selection `json:"service"`
}

// Snapshot returns the held selections.
func (s *Session) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touched = time.Now()
	return State{Chain: s.chain, Service: s.service}
}

// Set changes the held selection of one level. Downstream levels keep their
// values; they are repaired on the next resolution.
func (st *State) Set(level filter.Level, sel filter.Selection) error {
	switch level {
	case filter.LevelBiome:
		st.Chain.Biome = sel
	case filter.LevelEcozone:
		st.Chain.Ecozone = sel
	case filter.LevelEcosystem:
		st.Chain.Ecosystem = sel
	case filter.LevelService:
		st.Service = sel
	default:
		return fmt.Errorf("unknown filter level %q", level)
	}
	return nil
}

// Set changes the held selection of one level.
func (s *Session) Set(level filter.Level, sel filter.Selection) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := State{Chain: s.chain, Service: s.service}
	if err := st.Set(level, sel); err != nil {
		return err
	}
	s.chain, s.service = st.Chain, st.Service
	s.touched = time.Now()
	return nil
}

// Commit stores the repaired selections produced by a resolution so the next
// cycle starts from them.
func (s *Session) Commit(st State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.chain = st.Chain
	s.service = st.Service
	s.touched = time.Now()
}

// Update runs one selection cycle with the session locked: fn receives the
// held selections and returns the ones to store. Cycles on the same session
// run one at a time, so a change made by one is seen by the next.
func (s *Session) Update(fn func(held State) State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	next := fn(State{Chain: s.chain, Service: s.service})
	s.chain = next.Chain
	s.service = next.Service
	s.touched = time.Now()
}

func (s *Session) idleSince() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.touched
}

// Config contains configuration for the store.
type Config struct {
	MaxSessions   int           // LRU bound (default 10000)
	IdleTTL       time.Duration // sessions idle longer are dropped (default 1h)
	CleanupPeriod time.Duration // sweep interval (default 5m)
}

// Store is a bounded, thread-safe index of sessions.
type Store struct {
	cfg      Config
	sessions *lru.Cache[string, *Session]
	logger   *zap.Logger

	stopOnce sync.Once
	stopCh   chan struct{}
	wg       sync.WaitGroup

	// OnChange is called with the session count after every mutation.
	OnChange func(n int)
}

// NewStore creates a session store.
func NewStore(cfg Config, logger *zap.Logger) (*Store, error) {
	if cfg.MaxSessions <= 0 {
		cfg.MaxSessions = 10000
	}
	if cfg.IdleTTL <= 0 {
		cfg.IdleTTL = time.Hour
	}
	if cfg.CleanupPeriod <= 0 {
		cfg.CleanupPeriod = 5 * time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	st := &Store{cfg: cfg, logger: logger, stopCh: make(chan struct{})}
	sessions, err := lru.NewWithEvict[string, *Session](cfg.MaxSessions, func(id string, _ *Session) {
		st.logger.Debug("session evicted", zap.String("session", id))
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create session index: %w", err)
	}
	st.sessions = sessions
	return st, nil
}

func (st *Store) changed() {
	if st.OnChange != nil {
		st.OnChange(st.sessions.Len())
	}
}

// Create starts a session on dataset with nothing held, so the first
// resolution picks the defaults.
func (st *Store) Create(dataset string) *Session {
	now := time.Now()
	s := &Session{
		ID:      uuid.NewString(),
		Dataset: dataset,
		Created: now,
		touched: now,
	}
	st.sessions.Add(s.ID, s)
	st.changed()
	st.logger.Debug("session created", zap.String("session", s.ID), zap.String("dataset", dataset))
	return s
}

// Get returns the session with id.
func (st *Store) Get(id string) (*Session, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrNotFound
	}
	s, ok := st.sessions.Get(id)
	if !ok {
		return nil, ErrNotFound
	}
	return s, nil
}

// Delete removes a session and reports whether it existed.
func (st *Store) Delete(id string) bool {
	ok := st.sessions.Remove(id)
	if ok {
		st.changed()
	}
	return ok
}

// Len returns the number of live sessions.
func (st *Store) Len() int { return st.sessions.Len() }

// Sweep drops sessions idle since before cutoff and returns how many.
func (st *Store) Sweep(cutoff time.Time) int {
	removed := 0
	for _, id := range st.sessions.Keys() {
		s, ok := st.sessions.Peek(id)
		if !ok {
			continue
		}
		if s.idleSince().Before(cutoff) && st.sessions.Remove(id) {
			removed++
		}
	}
	if removed > 0 {
		st.changed()
		st.logger.Info("expired idle sessions", zap.Int("removed", removed), zap.Int("remaining", st.sessions.Len()))
	}
	return removed
}

// Start runs the idle sweeper until Stop.
func (st *Store) Start() {
	st.wg.Add(1)
	go func() {
		defer st.wg.Done()
		ticker := time.NewTicker(st.cfg.CleanupPeriod)
		defer ticker.Stop()
		for {
			select {
			case <-st.stopCh:
				return
			case <-ticker.C:
				st.Sweep(time.Now().Add(-st.cfg.IdleTTL))
			}
		}
	}()
}

// Stop stops the sweeper.
func (st *Store) Stop() {
	st.stopOnce.Do(func() {
		close(st.stopCh)
		st.wg.Wait()
	})
}
