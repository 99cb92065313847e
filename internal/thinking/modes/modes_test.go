package modes

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rand/thinkingserver/internal/thinking/mcts"
	"github.com/rand/thinkingserver/internal/thinking/metacog"
	"github.com/rand/thinkingserver/internal/thinking/tree"
)

func TestParseMode(t *testing.T) {
	mode, ok := ParseMode("expert")
	assert.True(t, ok)
	assert.Equal(t, Expert, mode)

	_, ok = ParseMode("nonexistent")
	assert.False(t, ok)
}

func TestPresets_FastAutoEvaluates(t *testing.T) {
	preset := Presets[Fast]
	assert.True(t, preset.AutoEvaluate)
	assert.Equal(t, 0.7, preset.AutoEvalValue)
	assert.False(t, preset.EnableBacktracking)
}

func TestPresets_DeepUsesMCTSForBranching(t *testing.T) {
	preset := Presets[Deep]
	assert.True(t, preset.UseMCTSForBranching)
	assert.Equal(t, 5, preset.MinEvaluationsBeforeConverge)
	assert.Equal(t, 0.85, preset.ConvergenceThreshold)
}

func buildFastTree(t *testing.T, depth int) *tree.Tree {
	t.Helper()
	tr := tree.New("s1", 0)
	for i := 1; i <= depth; i++ {
		_, err := tr.AddThought(tree.AddInput{
			Thought:           "t",
			ThoughtNumber:     i,
			NextThoughtNeeded: i < depth,
		})
		require.NoError(t, err)
	}
	return tr
}

func TestGenerateGuidance_FastModeConcludesAtTargetDepth(t *testing.T) {
	tr := buildFastTree(t, 6) // depth reaches 5 (0-indexed), >= TargetDepthMax
	guidance, err := GenerateGuidance(Presets[Fast], tr, nil)
	require.NoError(t, err)
	assert.Equal(t, "concluded", guidance.CurrentPhase)
	assert.Equal(t, "conclude", guidance.RecommendedAction)
}

func TestGenerateGuidance_ExpertModeExploringEarly(t *testing.T) {
	tr := buildFastTree(t, 2)
	guidance, err := GenerateGuidance(Presets[Expert], tr, nil)
	require.NoError(t, err)
	assert.Equal(t, "exploring", guidance.CurrentPhase)
}

func TestGenerateGuidance_CircularityAndDomainFromHistory(t *testing.T) {
	tr := buildFastTree(t, 2)
	history := []metacog.HistoryItem{
		{Thought: "Refactor the function to fix the bug", ThoughtNumber: 1},
		{Thought: "Refactor the function to fix the bug again", ThoughtNumber: 2},
	}
	guidance, err := GenerateGuidance(Presets[Expert], tr, history)
	require.NoError(t, err)
	assert.Equal(t, "code", guidance.Domain)
	require.NotNil(t, guidance.CircularityWarning)
}

func TestGenerateGuidance_SurfacesComplexityAndPerspectiveSuggestions(t *testing.T) {
	tr := buildFastTree(t, 2)
	history := []metacog.HistoryItem{
		{Thought: "Refactor the function to fix the bug", ThoughtNumber: 1},
		{Thought: "Check the compile step for the variable", ThoughtNumber: 2},
	}
	guidance, err := GenerateGuidance(Presets[Expert], tr, history)
	require.NoError(t, err)

	require.NotNil(t, guidance.Complexity)
	assert.Equal(t, "simple", guidance.Complexity.Bucket)
	assert.NotEmpty(t, guidance.PerspectiveSuggestions)
	assert.Equal(t, "code", guidance.Domain)
}

func TestGenerateGuidance_SurfacesReasoningGaps(t *testing.T) {
	tr := buildFastTree(t, 2)
	history := []metacog.HistoryItem{
		{Thought: "Therefore the bug is fixed", ThoughtNumber: 1},
	}
	guidance, err := GenerateGuidance(Presets[Expert], tr, history)
	require.NoError(t, err)
	require.Len(t, guidance.ReasoningGaps, 1)
	assert.Equal(t, 1, guidance.ReasoningGaps[0].ThoughtNumber)
}

func TestCompressThought_KeepsFirstAndLastSentence(t *testing.T) {
	text := "First sentence here. Middle filler that goes on and on. Last sentence concludes it."
	compressed := CompressThought(text, 60)
	assert.LessOrEqual(t, len(compressed), 60)
	assert.Contains(t, compressed, "First sentence")
}

func TestCompressThought_NoopWhenShortEnough(t *testing.T) {
	text := "short"
	assert.Equal(t, text, CompressThought(text, 100))
}

func TestRenderPrompt_FallsBackToGenericTemplate(t *testing.T) {
	tr := buildFastTree(t, 1)
	stats := mcts.GetTreeStats(tr)
	path, err := mcts.ExtractBestPath(tr)
	require.NoError(t, err)
	prompt := renderPrompt(Presets[Expert], tr, stats, path, nil, "unknown-action")
	assert.Contains(t, prompt, "unknown-action")
}
