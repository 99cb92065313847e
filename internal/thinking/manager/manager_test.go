package manager

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rand/thinkingserver/internal/thinking/config"
	"github.com/rand/thinkingserver/internal/thinking/modes"
	"github.com/rand/thinkingserver/internal/thinking/tree"
)

func testConfig() *config.Config {
	return &config.Config{
		MaxNodesPerTree:     500,
		MaxTreeAge:          time.Hour,
		CleanupInterval:     time.Hour,
		MaxConcurrentTrees:  10,
		MaxThoughtsPerMin:   60,
		ExplorationConstant: 1.4142135623730951,
	}
}

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	m, err := New(testConfig(), nil)
	require.NoError(t, err)
	t.Cleanup(m.Destroy)
	return m
}

func TestRecordThought_CreatesTreeLazily(t *testing.T) {
	m := newTestManager(t)

	result, err := m.RecordThought("s1", tree.AddInput{
		Thought: "first", ThoughtNumber: 1, NextThoughtNeeded: true,
	})
	require.NoError(t, err)
	assert.Equal(t, "first", result.Node.Thought)
	assert.Equal(t, 1, m.SessionCount())
}

func TestRecordThought_AutoEvaluatesUnderFastPreset(t *testing.T) {
	m := newTestManager(t)
	require.NoError(t, m.SetMode("s1", modes.Fast))

	result, err := m.RecordThought("s1", tree.AddInput{
		Thought: "first", ThoughtNumber: 1, NextThoughtNeeded: true,
	})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Node.VisitCount, "fast preset auto-evaluates every recorded thought")
	require.NotNil(t, result.Guidance)
}

func TestBacktrack_MovesCursor(t *testing.T) {
	m := newTestManager(t)
	first, err := m.RecordThought("s1", tree.AddInput{Thought: "a", ThoughtNumber: 1, NextThoughtNeeded: true})
	require.NoError(t, err)
	_, err = m.RecordThought("s1", tree.AddInput{Thought: "b", ThoughtNumber: 2, NextThoughtNeeded: true})
	require.NoError(t, err)

	node, err := m.Backtrack("s1", first.Node.ID)
	require.NoError(t, err)
	assert.Equal(t, first.Node.ID, node.ID)
}

func TestBacktrack_UnknownSessionErrors(t *testing.T) {
	m := newTestManager(t)
	_, err := m.Backtrack("missing", "whatever")
	assert.Error(t, err)
}

func TestEvaluate_Backpropagates(t *testing.T) {
	m := newTestManager(t)
	result, err := m.RecordThought("s1", tree.AddInput{Thought: "a", ThoughtNumber: 1, NextThoughtNeeded: false})
	require.NoError(t, err)

	n, err := m.Evaluate("s1", result.Node.ID, 0.9)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestSetMode_AppliesToFutureGuidance(t *testing.T) {
	m := newTestManager(t)
	require.NoError(t, m.SetMode("s1", modes.Deep))

	result, err := m.RecordThought("s1", tree.AddInput{Thought: "a", ThoughtNumber: 1, NextThoughtNeeded: true})
	require.NoError(t, err)
	require.NotNil(t, result.Guidance)
	assert.Equal(t, modes.Deep, result.Guidance.Mode)
}

func TestDestroy_SubsequentOperationsError(t *testing.T) {
	m, err := New(testConfig(), nil)
	require.NoError(t, err)
	m.Destroy()

	_, err = m.RecordThought("s1", tree.AddInput{Thought: "a", ThoughtNumber: 1, NextThoughtNeeded: true})
	assert.Error(t, err)

	// Destroy is idempotent.
	m.Destroy()
}

func TestCleanup_EvictsIdleSessions(t *testing.T) {
	cfg := testConfig()
	cfg.MaxTreeAge = time.Millisecond
	m, err := New(cfg, nil)
	require.NoError(t, err)
	t.Cleanup(m.Destroy)

	_, err = m.RecordThought("s1", tree.AddInput{Thought: "a", ThoughtNumber: 1, NextThoughtNeeded: true})
	require.NoError(t, err)

	time.Sleep(5 * time.Millisecond)
	m.Cleanup()
	assert.Equal(t, 0, m.SessionCount())
}
