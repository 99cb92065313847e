// Package manager owns the process-wide tree and mode-config registries:
// lazy per-session creation, the session critical section, LRU/TTL
// eviction, and the cleanup timer. It is the only component that touches
// both the stateless MCTS/mode engines and the per-session tree state.
package manager

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/rand/thinkingserver/internal/thinking/config"
	"github.com/rand/thinkingserver/internal/thinking/mcts"
	"github.com/rand/thinkingserver/internal/thinking/metacog"
	"github.com/rand/thinkingserver/internal/thinking/modes"
	"github.com/rand/thinkingserver/internal/thinking/thinkerr"
	"github.com/rand/thinkingserver/internal/thinking/tree"
)

// session is one session's full state: its tree, its optional mode
// preset, and the recent-thought history metacog needs. mu is the session
// critical section — held from the start of a mutating operation through
// the point its state write completes.
type session struct {
	mu      sync.Mutex
	tree    *tree.Tree
	mode    *modes.Preset
	history []metacog.HistoryItem
}

// Manager owns every live session's tree and mode config.
type Manager struct {
	cfg    *config.Config
	logger *slog.Logger

	regMu sync.Mutex // guards get-or-create against the LRU cache
	cache *lru.Cache[string, *session]

	destroyed atomic.Bool
	stopCh    chan struct{}
	wg        sync.WaitGroup
}

// New builds a Manager and starts its cleanup timer.
func New(cfg *config.Config, logger *slog.Logger) (*Manager, error) {
	if logger == nil {
		logger = slog.Default()
	}
	capacity := cfg.MaxConcurrentTrees
	if capacity <= 0 {
		capacity = 100
	}

	m := &Manager{
		cfg:    cfg,
		logger: logger,
		stopCh: make(chan struct{}),
	}

	c, err := lru.NewWithEvict[string, *session](capacity, func(sessionID string, _ *session) {
		m.logger.Debug("tree evicted by capacity", "sessionId", sessionID)
	})
	if err != nil {
		return nil, err
	}
	m.cache = c

	m.wg.Add(1)
	go m.cleanupLoop()

	return m, nil
}

func (m *Manager) cleanupLoop() {
	defer m.wg.Done()
	interval := m.cfg.CleanupInterval
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			m.Cleanup()
		case <-m.stopCh:
			return
		}
	}
}

// getOrCreate returns the session's entry, creating an empty tree if this
// is the first operation for that session id.
func (m *Manager) getOrCreate(sessionID string) *session {
	m.regMu.Lock()
	defer m.regMu.Unlock()

	if s, ok := m.cache.Get(sessionID); ok {
		return s
	}
	s := &session{tree: tree.New(sessionID, m.cfg.MaxNodesPerTree)}
	m.cache.Add(sessionID, s)
	return s
}

func (m *Manager) get(sessionID string) (*session, bool) {
	m.regMu.Lock()
	defer m.regMu.Unlock()
	return m.cache.Get(sessionID)
}

// RecordResult is returned by RecordThought.
type RecordResult struct {
	Node      *tree.Node
	Stats     mcts.Stats
	Guidance  *modes.Guidance
}

// RecordThought adds a thought to the session's tree under the session
// critical section, auto-evaluating and computing mode guidance if a
// preset is active.
func (m *Manager) RecordThought(sessionID string, in tree.AddInput) (*RecordResult, error) {
	if m.destroyed.Load() {
		return nil, thinkerr.New(thinkerr.Internal, "manager destroyed")
	}
	if m.cfg.DisableAutoTree {
		return nil, thinkerr.New(thinkerr.BusinessLogic, "tree recording disabled")
	}
	if sessionID == "" {
		return nil, thinkerr.New(thinkerr.Validation, "sessionId is required")
	}

	s := m.getOrCreate(sessionID)
	s.mu.Lock()
	defer s.mu.Unlock()

	node, err := s.tree.AddThought(in)
	if err != nil {
		return nil, err
	}

	s.history = append(s.history, metacog.HistoryItem{Thought: node.Thought, ThoughtNumber: node.ThoughtNumber})

	if s.mode != nil && s.mode.AutoEvaluate {
		if _, err := mcts.Backpropagate(s.tree, node.ID, s.mode.AutoEvalValue); err != nil {
			m.logger.Warn("auto-evaluate backpropagation failed", "sessionId", sessionID, "error", err)
		}
	}

	result := &RecordResult{Node: node, Stats: mcts.GetTreeStats(s.tree)}

	if s.mode != nil {
		guidance, err := modes.GenerateGuidance(*s.mode, s.tree, s.history)
		if err != nil {
			m.logger.Warn("guidance generation failed", "sessionId", sessionID, "error", err)
		} else {
			result.Guidance = guidance
		}
	}

	return result, nil
}

// Backtrack moves the session's cursor to an existing node.
func (m *Manager) Backtrack(sessionID, nodeID string) (*tree.Node, error) {
	s, ok := m.get(sessionID)
	if !ok {
		return nil, thinkerr.Newf(thinkerr.Tree, "no tree for session %q", sessionID)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tree.SetCursor(nodeID)
}

// Evaluate backpropagates a value from nodeID, returning the number of
// ancestors updated.
func (m *Manager) Evaluate(sessionID, nodeID string, value float64) (int, error) {
	s, ok := m.get(sessionID)
	if !ok {
		return 0, thinkerr.Newf(thinkerr.Tree, "no tree for session %q", sessionID)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tree.LastAccessedAt = time.Now()
	return mcts.Backpropagate(s.tree, nodeID, value)
}

// Suggest returns the MCTS suggestion for the session's current tree.
func (m *Manager) Suggest(sessionID string, strategy mcts.Strategy) (*mcts.Suggestion, error) {
	s, ok := m.get(sessionID)
	if !ok {
		return nil, thinkerr.Newf(thinkerr.Tree, "no tree for session %q", sessionID)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tree.LastAccessedAt = time.Now()
	return mcts.SuggestNext(s.tree, strategy)
}

// Summary is the response payload for getThinkingSummary.
type Summary struct {
	View  *tree.View
	Stats mcts.Stats
}

// GetSummary returns a compact tree view and stats for a session.
func (m *Manager) GetSummary(sessionID string, maxDepth *int) (*Summary, error) {
	s, ok := m.get(sessionID)
	if !ok {
		return nil, thinkerr.Newf(thinkerr.Tree, "no tree for session %q", sessionID)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tree.LastAccessedAt = time.Now()
	return &Summary{View: s.tree.ToJSON(maxDepth), Stats: mcts.GetTreeStats(s.tree)}, nil
}

// SetMode stores the named preset for a session, creating the session's
// tree if it doesn't exist yet.
func (m *Manager) SetMode(sessionID string, mode modes.Mode) error {
	if m.destroyed.Load() {
		return thinkerr.New(thinkerr.Internal, "manager destroyed")
	}
	preset, ok := modes.Presets[mode]
	if !ok {
		return thinkerr.Newf(thinkerr.Validation, "unknown thinking mode %q", mode)
	}
	s := m.getOrCreate(sessionID)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mode = &preset
	s.tree.LastAccessedAt = time.Now()
	return nil
}

// Cleanup removes idle trees past maxTreeAge. Capacity-based eviction is
// handled automatically by the LRU cache as sessions are added; this pass
// only needs to catch sessions that have simply gone quiet.
func (m *Manager) Cleanup() {
	m.regMu.Lock()
	defer m.regMu.Unlock()

	maxAge := m.cfg.MaxTreeAge
	if maxAge <= 0 {
		return
	}
	now := time.Now()
	for _, sessionID := range m.cache.Keys() {
		s, ok := m.cache.Peek(sessionID)
		if !ok {
			continue
		}
		// Peek doesn't touch recency, but we still need the session's own
		// lock to read LastAccessedAt safely against a concurrent critical
		// section for that same id.
		s.mu.Lock()
		idle := now.Sub(s.tree.LastAccessedAt)
		s.mu.Unlock()
		if idle > maxAge {
			m.cache.Remove(sessionID)
			m.logger.Debug("tree evicted by idle ttl", "sessionId", sessionID, "idle", idle)
		}
	}
}

// Destroy stops the cleanup timer and drops all session state. After
// Destroy, RecordThought and SetMode return an INTERNAL_ERROR and the
// session lookups (Backtrack, Evaluate, Suggest, GetSummary) return a
// TREE_ERROR, rather than panicking or blocking.
func (m *Manager) Destroy() {
	if !m.destroyed.CompareAndSwap(false, true) {
		return
	}
	close(m.stopCh)
	m.wg.Wait()

	m.regMu.Lock()
	defer m.regMu.Unlock()
	m.cache.Purge()
}

// SessionCount reports how many trees are currently live, for diagnostics.
func (m *Manager) SessionCount() int {
	m.regMu.Lock()
	defer m.regMu.Unlock()
	return m.cache.Len()
}
