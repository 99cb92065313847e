// Package modes implements the Thinking-Mode Engine: three fixed presets
// (fast, expert, deep) and generateGuidance, the stateless function that
// turns a tree's current state into advisory ModeGuidance for the client —
// phase, recommended action, rendered prompt, progress overview, critique,
// and metacognitive overlays.
package modes

import (
	"fmt"
	"math"
	"strings"

	"github.com/rand/thinkingserver/internal/thinking/mcts"
	"github.com/rand/thinkingserver/internal/thinking/metacog"
	"github.com/rand/thinkingserver/internal/thinking/tree"
)

// Mode names the three fixed presets.
type Mode string

const (
	Fast   Mode = "fast"
	Expert Mode = "expert"
	Deep   Mode = "deep"
)

// Preset holds every constant that drives guidance generation for one
// thinking mode. All fields are fixed per mode; nothing here is tuned per
// session beyond picking which preset applies.
type Preset struct {
	Mode                          Mode
	ExplorationConstant           float64
	SuggestStrategy               mcts.Strategy
	MaxBranchingFactor            int
	TargetDepthMin                int
	TargetDepthMax                int
	AutoEvaluate                  bool
	AutoEvalValue                 float64
	EnableBacktracking            bool
	MinEvaluationsBeforeConverge  int
	ConvergenceThreshold          float64
	ProgressOverviewInterval      int
	EnableCritique                bool
	BacktrackThreshold            float64
	BranchMinDepth                int
	UseMCTSForBranching           bool
	MaxThoughtDisplayLength       int
}

// Presets is the fixed table from the thinking-mode design: every field is
// a constant per mode, sourced directly from the spec's preset table.
var Presets = map[Mode]Preset{
	Fast: {
		Mode: Fast, ExplorationConstant: 0.5, SuggestStrategy: mcts.StrategyExploit,
		MaxBranchingFactor: 1, TargetDepthMin: 3, TargetDepthMax: 5,
		AutoEvaluate: true, AutoEvalValue: 0.7, EnableBacktracking: false,
		MinEvaluationsBeforeConverge: 0, ConvergenceThreshold: 0,
		ProgressOverviewInterval: 3, EnableCritique: false, BacktrackThreshold: 0,
		BranchMinDepth: math.MaxInt32, UseMCTSForBranching: false, MaxThoughtDisplayLength: 150,
	},
	Expert: {
		Mode: Expert, ExplorationConstant: math.Sqrt2, SuggestStrategy: mcts.StrategyBalanced,
		MaxBranchingFactor: 3, TargetDepthMin: 5, TargetDepthMax: 10,
		AutoEvaluate: false, EnableBacktracking: true,
		MinEvaluationsBeforeConverge: 3, ConvergenceThreshold: 0.7,
		ProgressOverviewInterval: 4, EnableCritique: true, BacktrackThreshold: 0.4,
		BranchMinDepth: 2, UseMCTSForBranching: false, MaxThoughtDisplayLength: 250,
	},
	Deep: {
		Mode: Deep, ExplorationConstant: 2.0, SuggestStrategy: mcts.StrategyExplore,
		MaxBranchingFactor: 5, TargetDepthMin: 10, TargetDepthMax: 20,
		AutoEvaluate: false, EnableBacktracking: true,
		MinEvaluationsBeforeConverge: 5, ConvergenceThreshold: 0.85,
		ProgressOverviewInterval: 5, EnableCritique: true, BacktrackThreshold: 0.5,
		BranchMinDepth: 0, UseMCTSForBranching: true, MaxThoughtDisplayLength: 300,
	},
}

// ParseMode validates a client-supplied mode name.
func ParseMode(s string) (Mode, bool) {
	switch Mode(s) {
	case Fast, Expert, Deep:
		return Mode(s), true
	default:
		return "", false
	}
}

// Convergence reports how close the tree's best path is to the preset's
// convergence threshold.
type Convergence struct {
	Score       float64 `json:"score"`
	IsConverged bool    `json:"isConverged"`
}

// Critique is the mode engine's path-quality self-check, emitted only when
// the preset enables it and the best path has at least two nodes.
type Critique struct {
	WeakestNode           *tree.Info `json:"weakestNode,omitempty"`
	UnchallengedStepRatio float64    `json:"unchallengedStepRatio"`
	BranchCoverage        float64    `json:"branchCoverage"`
	Balance               string     `json:"balance"`
}

// Guidance is the advisory payload returned to the client alongside each
// recorded thought.
type Guidance struct {
	Mode                   Mode                `json:"mode"`
	CurrentPhase           string              `json:"currentPhase"`
	RecommendedAction      string              `json:"recommendedAction"`
	ThoughtPrompt          string              `json:"thoughtPrompt"`
	ProgressOverview       *string             `json:"progressOverview,omitempty"`
	Critique               *Critique           `json:"critique,omitempty"`
	ConvergenceStatus      *Convergence        `json:"convergenceStatus,omitempty"`
	CircularityWarning     *string             `json:"circularityWarning,omitempty"`
	Confidence             float64             `json:"confidence"`
	Domain                 string              `json:"domain"`
	CognitiveProcess       string              `json:"cognitiveProcess"`
	MetaState              string              `json:"metaState"`
	ReasoningGaps          []metacog.Gap       `json:"reasoningGaps,omitempty"`
	Complexity             *metacog.Complexity `json:"complexity,omitempty"`
	PerspectiveSuggestions []string            `json:"perspectiveSuggestions,omitempty"`
	BranchFromNodeID       string              `json:"branchFromNodeId,omitempty"`
	BacktrackToNodeID      string              `json:"backtrackToNodeId,omitempty"`
}

// GenerateGuidance computes ModeGuidance for the tree's current state under
// the given preset, using history for the metacognitive overlays.
func GenerateGuidance(preset Preset, t *tree.Tree, history []metacog.HistoryItem) (*Guidance, error) {
	stats := mcts.GetTreeStats(t)
	bestPath, err := mcts.ExtractBestPath(t)
	if err != nil {
		return nil, err
	}
	currentDepth := stats.MaxDepth
	totalEvaluated := stats.TotalNodes - stats.UnexploredCount

	convergence := computeConvergence(preset, bestPath, totalEvaluated)
	phase := computePhase(preset, convergence, currentDepth, totalEvaluated)
	action, branchFrom, backtrackTo := recommendAction(preset, t, phase, currentDepth)

	g := &Guidance{
		Mode:              preset.Mode,
		CurrentPhase:      phase,
		RecommendedAction: action,
		ConvergenceStatus: convergence,
		BranchFromNodeID:  branchFrom,
		BacktrackToNodeID: backtrackTo,
	}

	g.ThoughtPrompt = renderPrompt(preset, t, stats, bestPath, convergence, action)

	if preset.ProgressOverviewInterval > 0 && stats.TotalNodes%preset.ProgressOverviewInterval == 0 {
		overview := renderProgressOverview(t, stats, bestPath)
		g.ProgressOverview = &overview
	}

	if preset.EnableCritique && len(bestPath) >= 2 {
		g.Critique = computeCritique(preset, t, bestPath)
	}

	if len(history) > 0 {
		latest := history[len(history)-1].Thought
		g.CircularityWarning = metacog.DetectCircularity(history)
		g.Confidence = confidenceScore(latest)
		g.Domain = metacog.DetectDomain(latest)
		g.CognitiveProcess = metacog.DetectCognitiveProcess(latest)
		g.MetaState = metacog.DetectMetaState(latest)

		if gaps := metacog.AnalyzeReasoningGaps(history); len(gaps) > 0 {
			g.ReasoningGaps = gaps
		}
		complexity := metacog.AnalyzeComplexity(history)
		g.Complexity = &complexity
		g.PerspectiveSuggestions = perspectiveSuggestions(g.Domain)
	}

	return g, nil
}

// perspectiveSuggestions offers a small set of alternate angles to consider,
// keyed by the detected domain. Purely advisory, like the rest of the
// metacognitive overlays — never gates the recommended action.
var perspectiveSuggestionsByDomain = map[string][]string{
	"math":       {"check a boundary or degenerate case", "try a smaller or simpler instance first"},
	"code":       {"consider the failure modes, not just the happy path", "look for an existing pattern in the codebase before inventing one"},
	"science":    {"look for a disconfirming observation", "consider an alternative hypothesis that fits the same evidence"},
	"business":   {"consider the second-order effect on customers or competitors", "check whether the assumption still holds at a different scale"},
	"writing":    {"read it from the audience's point of view", "try cutting the weakest sentence entirely"},
	"philosophy": {"steelman the opposing position", "check whether the premise, not just the conclusion, is in question"},
	"general":    {"consider the opposite conclusion and see what would have to be true", "ask what evidence would change this answer"},
}

func perspectiveSuggestions(domain string) []string {
	if suggestions, ok := perspectiveSuggestionsByDomain[domain]; ok {
		return suggestions
	}
	return perspectiveSuggestionsByDomain["general"]
}

func computeConvergence(preset Preset, bestPath []tree.Info, totalEvaluated int) *Convergence {
	if preset.ConvergenceThreshold == 0 {
		return nil
	}
	var visited []tree.Info
	for _, n := range bestPath {
		if n.VisitCount > 0 {
			visited = append(visited, n)
		}
	}
	var score float64
	if len(visited) > 0 && len(bestPath) > 0 {
		sum := 0.0
		for _, n := range visited {
			sum += n.AverageValue
		}
		avg := sum / float64(len(visited))
		score = avg * (float64(len(visited)) / float64(len(bestPath)))
	}
	isConverged := totalEvaluated >= preset.MinEvaluationsBeforeConverge && score >= preset.ConvergenceThreshold
	return &Convergence{Score: score, IsConverged: isConverged}
}

func computePhase(preset Preset, convergence *Convergence, currentDepth, totalEvaluated int) string {
	switch {
	case convergence != nil && convergence.IsConverged:
		return "concluded"
	case preset.Mode == Fast && currentDepth >= preset.TargetDepthMax:
		return "concluded"
	case preset.ConvergenceThreshold > 0 && totalEvaluated >= preset.MinEvaluationsBeforeConverge:
		return "converging"
	case totalEvaluated > 0 && currentDepth >= preset.TargetDepthMin:
		return "evaluating"
	default:
		return "exploring"
	}
}

func recommendAction(preset Preset, t *tree.Tree, phase string, currentDepth int) (action, branchFrom, backtrackTo string) {
	if phase == "concluded" {
		return "conclude", "", ""
	}
	if t.CursorID == "" {
		return "continue", "", ""
	}

	cursor, err := t.Node(t.CursorID)
	if err != nil {
		return "continue", "", ""
	}

	if preset.EnableBacktracking && cursor.VisitCount > 0 && preset.BacktrackThreshold > 0 &&
		cursor.AverageValue() < preset.BacktrackThreshold {
		if target := betterAncestor(t, preset, cursor); target != "" {
			return "backtrack", "", target
		}
	}

	if len(cursor.Children) < preset.MaxBranchingFactor && !cursor.IsTerminal && currentDepth >= preset.BranchMinDepth {
		from := cursor.ID
		if preset.Mode == Deep && preset.UseMCTSForBranching {
			if sugg, err := mcts.SuggestNext(t, preset.SuggestStrategy); err == nil && sugg.Suggestion != nil {
				from = sugg.Suggestion.NodeID
			}
		}
		return "branch", from, ""
	}

	if !preset.AutoEvaluate {
		for _, leaf := range t.LeafNodes() {
			if leaf.VisitCount == 0 {
				return "evaluate", "", ""
			}
		}
	}

	return "continue", "", ""
}

// betterAncestor walks up from the cursor looking for the nearest ancestor
// with spare branching capacity, or that is non-terminal.
func betterAncestor(t *tree.Tree, preset Preset, cursor *tree.Node) string {
	path, err := t.AncestorPath(cursor.ID)
	if err != nil || len(path) < 2 {
		return ""
	}
	for i := len(path) - 2; i >= 0; i-- {
		a := path[i]
		if len(a.Children) < preset.MaxBranchingFactor || !a.IsTerminal {
			return a.ID
		}
	}
	return ""
}

func renderProgressOverview(t *tree.Tree, stats mcts.Stats, bestPath []tree.Info) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Progress: %d nodes, max depth %d, %d terminal, %d unexplored, %d leaves.\n",
		stats.TotalNodes, stats.MaxDepth, stats.TerminalCount, stats.UnexploredCount, stats.LeafCount)
	fmt.Fprintf(&b, "Best path: %s\n", pathSummary(bestPath))

	singleChildBranches := 0
	for _, n := range bestPath {
		if full, err := t.Node(n.NodeID); err == nil && len(full.Children) == 1 {
			singleChildBranches++
		}
	}
	fmt.Fprintf(&b, "Gaps: %d unscored nodes, %d single-child branch points.", stats.UnexploredCount, singleChildBranches)
	return b.String()
}

func pathSummary(path []tree.Info) string {
	parts := make([]string, len(path))
	for i, n := range path {
		parts[i] = fmt.Sprintf("%d", n.ThoughtNumber)
	}
	return strings.Join(parts, " -> ")
}

func computeCritique(preset Preset, t *tree.Tree, bestPath []tree.Info) *Critique {
	var weakest *tree.Info
	for i := range bestPath {
		n := bestPath[i]
		if n.VisitCount == 0 {
			continue
		}
		if weakest == nil || n.AverageValue < weakest.AverageValue {
			weakest = &bestPath[i]
		}
	}

	singleChildParents := 0
	nonLeafParents := 0
	totalChildren := 0
	for _, n := range bestPath {
		full, err := t.Node(n.NodeID)
		if err != nil {
			continue
		}
		if len(full.Children) == 0 {
			continue
		}
		nonLeafParents++
		totalChildren += len(full.Children)
		if len(full.Children) == 1 {
			singleChildParents++
		}
	}

	var unchallengedRatio float64
	if nonLeafParents > 0 {
		unchallengedRatio = float64(singleChildParents) / float64(nonLeafParents)
	}

	denominator := len(bestPath) * preset.MaxBranchingFactor
	var branchCoverage float64
	if denominator > 0 {
		branchCoverage = float64(totalChildren) / float64(denominator)
	}

	balance := "well-balanced"
	if unchallengedRatio > 0.8 {
		balance = "one-sided"
	} else if unchallengedRatio > 0.5 {
		balance = "moderate"
	}

	return &Critique{
		WeakestNode:           weakest,
		UnchallengedStepRatio: unchallengedRatio,
		BranchCoverage:        branchCoverage,
		Balance:               balance,
	}
}

var hedgeWords = []string{"maybe", "perhaps", "might", "possibly", "i think", "not sure", "probably"}

// confidenceScore is a crude lexical-hedge count: more hedges, lower score.
func confidenceScore(text string) float64 {
	lower := strings.ToLower(text)
	hedges := 0
	for _, h := range hedgeWords {
		if strings.Contains(lower, h) {
			hedges++
		}
	}
	score := 1.0 - float64(hedges)*0.15
	if score < 0.1 {
		score = 0.1
	}
	return score
}

// CompressThought shortens text to fit maxLen, preferring to keep the first
// and last sentence over an arbitrary word-boundary cut.
func CompressThought(text string, maxLen int) string {
	if len(text) <= maxLen {
		return text
	}
	sentences := splitSentences(text)
	if len(sentences) > 1 {
		first, last := sentences[0], sentences[len(sentences)-1]
		withBoth := first + " [...] " + last
		if len(withBoth) <= maxLen {
			return withBoth
		}
		withFirst := first + " [...]"
		if len(withFirst) <= maxLen {
			return withFirst
		}
	}
	return wordBoundaryTruncate(text, maxLen)
}

func splitSentences(text string) []string {
	var sentences []string
	start := 0
	for i, r := range text {
		if r == '.' || r == '!' || r == '?' {
			s := strings.TrimSpace(text[start : i+1])
			if s != "" {
				sentences = append(sentences, s)
			}
			start = i + 1
		}
	}
	if start < len(text) {
		if s := strings.TrimSpace(text[start:]); s != "" {
			sentences = append(sentences, s)
		}
	}
	return sentences
}

func wordBoundaryTruncate(text string, maxLen int) string {
	if maxLen <= 3 {
		return text[:maxLen]
	}
	cut := maxLen - 3
	if cut > len(text) {
		cut = len(text)
	}
	truncated := text[:cut]
	if idx := strings.LastIndexByte(truncated, ' '); idx > 0 {
		truncated = truncated[:idx]
	}
	return truncated + "..."
}

// promptTemplates maps (mode, action) pairs to a named-substitution
// template; templates not present fall back to genericTemplate.
var promptTemplates = map[string]string{
	"fast:continue":    "Thought %{thoughtNumber}: continue toward a quick answer (depth %{depth}/%{targetMax}).",
	"fast:conclude":    "Wrap up: state the final answer now (depth %{depth} reached target %{targetMax}).",
	"expert:branch":    "Consider an alternative to thought %{parentThought}: branch from here (best path so far: %{bestPath}).",
	"expert:evaluate":  "Evaluate the unexplored leaf before continuing (unexplored=%{unexplored}, convergence=%{convergence}).",
	"expert:backtrack": "Backtrack: the current path (avg=%{cursorAverage}) is underperforming; return to a stronger ancestor.",
	"deep:branch":      "Deep exploration: branch from thought %{parentThought} (branches so far: %{branchCount}, best path: %{bestPath}).",
	"deep:evaluate":    "Score the unevaluated leaf to keep MCTS statistics accurate (total nodes=%{totalNodes}).",
}

const genericTemplate = "Thought %{thoughtNumber} (depth %{depth}, target %{targetMin}-%{targetMax}): %{action}. Current: %{currentThought}"

func renderPrompt(preset Preset, t *tree.Tree, stats mcts.Stats, bestPath []tree.Info, convergence *Convergence, action string) string {
	key := fmt.Sprintf("%s:%s", preset.Mode, action)
	tmpl, ok := promptTemplates[key]
	if !ok {
		tmpl = genericTemplate
	}

	var parentThought, currentThought string
	var thoughtNumber int
	if cursor, err := t.Node(t.CursorID); err == nil {
		currentThought = CompressThought(cursor.Thought, preset.MaxThoughtDisplayLength)
		thoughtNumber = cursor.ThoughtNumber
		if cursor.ParentID != "" {
			if parent, err := t.Node(cursor.ParentID); err == nil {
				parentThought = CompressThought(parent.Thought, preset.MaxThoughtDisplayLength)
			}
		}
	}

	var cursorAvg float64
	var branchCount int
	if cursor, err := t.Node(t.CursorID); err == nil {
		cursorAvg = cursor.AverageValue()
		branchCount = len(cursor.Children)
	}

	convergenceScore := 0.0
	if convergence != nil {
		convergenceScore = convergence.Score
	}

	replacer := strings.NewReplacer(
		"%{thoughtNumber}", fmt.Sprintf("%d", thoughtNumber),
		"%{depth}", fmt.Sprintf("%d", stats.MaxDepth),
		"%{targetMin}", fmt.Sprintf("%d", preset.TargetDepthMin),
		"%{targetMax}", fmt.Sprintf("%d", preset.TargetDepthMax),
		"%{totalNodes}", fmt.Sprintf("%d", stats.TotalNodes),
		"%{unexplored}", fmt.Sprintf("%d", stats.UnexploredCount),
		"%{parentThought}", parentThought,
		"%{currentThought}", currentThought,
		"%{bestPath}", pathSummary(bestPath),
		"%{cursorAverage}", fmt.Sprintf("%.2f", cursorAvg),
		"%{branchCount}", fmt.Sprintf("%d", branchCount),
		"%{convergence}", fmt.Sprintf("%.2f", convergenceScore),
		"%{action}", action,
	)
	return replacer.Replace(tmpl)
}
