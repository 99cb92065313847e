package pipeline

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rand/thinkingserver/internal/thinking/config"
	"github.com/rand/thinkingserver/internal/thinking/mcts"
	"github.com/rand/thinkingserver/internal/thinking/thinkerr"
)

func testConfig() *config.Config {
	return &config.Config{
		MaxThoughtLength:    5000,
		MaxThoughtsPerMin:   60,
		MaxNodesPerTree:     500,
		MaxTreeAge:          time.Hour,
		CleanupInterval:     time.Hour,
		MaxConcurrentTrees:  100,
		ExplorationConstant: 1.4142135623730951,
	}
}

func newTestPipeline(t *testing.T) *Pipeline {
	t.Helper()
	p, err := New(testConfig(), nil)
	require.NoError(t, err)
	t.Cleanup(p.Destroy)
	return p
}

// Scenario 1: three sequential thoughts produce a straight path.
func TestProcessThought_SequentialChain(t *testing.T) {
	p := newTestPipeline(t)

	var sessionID string
	var last *ThoughtResponse
	for i := 1; i <= 3; i++ {
		resp, err := p.ProcessThought(SequentialThinkingInput{
			Thought:           "step",
			ThoughtNumber:     i,
			TotalThoughts:     3,
			NextThoughtNeeded: i < 3,
			SessionID:         sessionID,
		})
		require.NoError(t, err)
		sessionID = resp.SessionID
		last = resp
	}

	assert.Equal(t, 3, last.ThoughtHistoryLength)
	assert.Empty(t, last.Branches)
	assert.False(t, last.NextThoughtNeeded)
}

// Scenario 2: fast mode auto-concludes, never leaving anything unexplored.
func TestProcessThought_FastModeAutoConcludes(t *testing.T) {
	p := newTestPipeline(t)

	var sessionID string
	var last *ThoughtResponse
	for i := 1; i <= 6; i++ {
		resp, err := p.ProcessThought(SequentialThinkingInput{
			Thought:           "step",
			ThoughtNumber:     i,
			TotalThoughts:     6,
			NextThoughtNeeded: i < 6,
			SessionID:         sessionID,
			ThinkingMode:      "fast",
		})
		require.NoError(t, err)
		sessionID = resp.SessionID
		last = resp
		assert.Equal(t, 0, resp.TreeStats.UnexploredCount)
	}

	require.NotNil(t, last.ModeGuidance)
	assert.EqualValues(t, "fast", last.ModeGuidance.Mode)
	assert.Equal(t, "concluded", last.ModeGuidance.CurrentPhase)
	assert.Equal(t, "conclude", last.ModeGuidance.RecommendedAction)
}

// Scenario 3: expert-mode branching from thought 1 (the root).
func TestProcessThought_ExpertModeBranchFromRoot(t *testing.T) {
	p := newTestPipeline(t)

	first, err := p.ProcessThought(SequentialThinkingInput{
		Thought: "root", ThoughtNumber: 1, TotalThoughts: 3, NextThoughtNeeded: true, ThinkingMode: "expert",
	})
	require.NoError(t, err)

	branch, err := p.ProcessThought(SequentialThinkingInput{
		Thought: "alt", ThoughtNumber: 2, TotalThoughts: 3, NextThoughtNeeded: true,
		SessionID: first.SessionID, BranchFromThought: 1, BranchID: "b1",
	})
	require.NoError(t, err)
	assert.Equal(t, first.NodeID, branch.ParentNodeID)
	assert.Contains(t, branch.Branches, "b1")
}

// Scenario 4: evaluate then backtrack then suggest.
func TestEvaluateBacktrackSuggest(t *testing.T) {
	p := newTestPipeline(t)

	first, err := p.ProcessThought(SequentialThinkingInput{
		Thought: "root", ThoughtNumber: 1, TotalThoughts: 2, NextThoughtNeeded: true,
	})
	require.NoError(t, err)
	second, err := p.ProcessThought(SequentialThinkingInput{
		Thought: "next", ThoughtNumber: 2, TotalThoughts: 2, NextThoughtNeeded: false,
		SessionID: first.SessionID,
	})
	require.NoError(t, err)

	n, err := p.EvaluateThought(first.SessionID, second.NodeID, 0.95)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	node, err := p.Backtrack(first.SessionID, first.NodeID)
	require.NoError(t, err)
	assert.Equal(t, first.NodeID, node.ID)

	suggestion, err := p.SuggestNextThought(first.SessionID, mcts.StrategyBalanced)
	require.NoError(t, err)
	assert.NotNil(t, suggestion)
}

// Scenario 5: deep mode converges once the deepest node's average value
// crosses the preset's threshold with enough evaluations.
func TestDeepMode_ConvergesAfterRepeatedHighEvaluation(t *testing.T) {
	p := newTestPipeline(t)

	var sessionID string
	var nodeID string
	for i := 1; i <= 5; i++ {
		resp, err := p.ProcessThought(SequentialThinkingInput{
			Thought: "step", ThoughtNumber: i, TotalThoughts: 5, NextThoughtNeeded: i < 5,
			SessionID: sessionID, ThinkingMode: "deep",
		})
		require.NoError(t, err)
		sessionID = resp.SessionID
		nodeID = resp.NodeID
	}

	for i := 0; i < 8; i++ {
		_, err := p.EvaluateThought(sessionID, nodeID, 0.9)
		require.NoError(t, err)
	}

	// Branch off an ancestor (thought 4) rather than the evaluated leaf
	// itself, so the best path still ends at the fully-evaluated node and
	// this fresh, unvisited sibling doesn't dilute its convergence score.
	resp, err := p.ProcessThought(SequentialThinkingInput{
		Thought: "check convergence", ThoughtNumber: 6, TotalThoughts: 6, NextThoughtNeeded: false,
		SessionID: sessionID, BranchFromThought: 4, BranchID: "check",
	})
	require.NoError(t, err)
	require.NotNil(t, resp.ModeGuidance)
	require.NotNil(t, resp.ModeGuidance.ConvergenceStatus)
	assert.True(t, resp.ModeGuidance.ConvergenceStatus.IsConverged)
}

// Scenario 6: the rate limiter cuts off the third submission within a
// two-per-minute cap.
func TestProcessThought_RateLimitCutoff(t *testing.T) {
	cfg := testConfig()
	cfg.MaxThoughtsPerMin = 2
	p, err := New(cfg, nil)
	require.NoError(t, err)
	t.Cleanup(p.Destroy)

	var sessionID string
	for i := 1; i <= 2; i++ {
		resp, err := p.ProcessThought(SequentialThinkingInput{
			Thought: "step", ThoughtNumber: i, TotalThoughts: 3, NextThoughtNeeded: true, SessionID: sessionID,
		})
		require.NoError(t, err)
		sessionID = resp.SessionID
	}

	_, err = p.ProcessThought(SequentialThinkingInput{
		Thought: "step", ThoughtNumber: 3, TotalThoughts: 3, NextThoughtNeeded: false, SessionID: sessionID,
	})
	require.Error(t, err)
	assert.Equal(t, thinkerr.Security, thinkerr.CodeOf(err))

	snap := p.Metrics()
	assert.Equal(t, int64(2), snap.SuccessfulRequests)
	assert.Equal(t, int64(1), snap.FailedRequests)
}

func TestProcessThought_MaxThoughtLengthCountsRunesNotBytes(t *testing.T) {
	cfg := testConfig()
	cfg.MaxThoughtLength = 3
	p, err := New(cfg, nil)
	require.NoError(t, err)
	t.Cleanup(p.Destroy)

	// Three multibyte runes: at the limit, so this must be accepted even
	// though it takes more than three bytes.
	_, err = p.ProcessThought(SequentialThinkingInput{
		Thought: "日本語", ThoughtNumber: 1, TotalThoughts: 1, NextThoughtNeeded: false,
	})
	require.NoError(t, err)

	// One rune over the limit must be rejected.
	_, err = p.ProcessThought(SequentialThinkingInput{
		Thought: "日本語!", ThoughtNumber: 1, TotalThoughts: 1, NextThoughtNeeded: false,
	})
	require.Error(t, err)
	assert.Equal(t, thinkerr.Validation, thinkerr.CodeOf(err))
}

func TestProcessThought_RejectsBlankThought(t *testing.T) {
	p := newTestPipeline(t)
	_, err := p.ProcessThought(SequentialThinkingInput{
		Thought: "   ", ThoughtNumber: 1, TotalThoughts: 1, NextThoughtNeeded: false,
	})
	require.Error(t, err)
	assert.Equal(t, thinkerr.Validation, thinkerr.CodeOf(err))
}

func TestProcessThought_RevisionWithoutRevisesThoughtIsBusinessLogicError(t *testing.T) {
	p := newTestPipeline(t)
	_, err := p.ProcessThought(SequentialThinkingInput{
		Thought: "x", ThoughtNumber: 1, TotalThoughts: 1, NextThoughtNeeded: false, IsRevision: true,
	})
	require.Error(t, err)
	assert.Equal(t, thinkerr.BusinessLogic, thinkerr.CodeOf(err))
}

func TestDestroy_LegacyOperationsReturnEmptyNotError(t *testing.T) {
	p, err := New(testConfig(), nil)
	require.NoError(t, err)
	p.Destroy()

	history, err := p.GetThoughtHistory("anything")
	require.NoError(t, err)
	assert.Empty(t, history)
	assert.Empty(t, p.GetBranches())
}
