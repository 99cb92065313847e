// Package mcts holds the stateless Monte Carlo Tree Search policy that
// operates over a *tree.Tree: UCB1 node selection, value backpropagation,
// best-path extraction, and aggregate tree statistics.
package mcts

import (
	"math"
	"sort"

	"github.com/rand/thinkingserver/internal/thinking/thinkerr"
	"github.com/rand/thinkingserver/internal/thinking/tree"
)

// Strategy selects the exploration constant used by SuggestNext.
type Strategy string

const (
	StrategyExploit  Strategy = "exploit"
	StrategyBalanced Strategy = "balanced"
	StrategyExplore  Strategy = "explore"
)

// ExplorationConstant returns the UCB1 constant c for a named strategy,
// defaulting to the balanced constant for anything unrecognized.
func ExplorationConstant(s Strategy) float64 {
	switch s {
	case StrategyExploit:
		return 0.5
	case StrategyExplore:
		return 2.0
	case StrategyBalanced:
		return math.Sqrt2
	default:
		return math.Sqrt2
	}
}

// Backpropagate adds value to nodeId and every ancestor inclusive,
// incrementing each one's visitCount by one. Returns the number of nodes
// updated (the ancestor path length). value must be in [0, 1].
func Backpropagate(t *tree.Tree, nodeID string, value float64) (int, error) {
	if value < 0 || value > 1 {
		return 0, thinkerr.Newf(thinkerr.Validation, "value %v out of range [0,1]", value)
	}
	path, err := t.AncestorPath(nodeID)
	if err != nil {
		return 0, err
	}
	for _, n := range path {
		n.VisitCount++
		n.TotalValue += value
		if n.Status == tree.StatusPending || n.Status == tree.StatusExpanded {
			n.Status = tree.StatusEvaluated
		}
	}
	return len(path), nil
}

// ExtractBestPath walks from root, at each step taking the child with the
// highest average value (ties: higher visitCount, then earlier insertion),
// stopping at a leaf.
func ExtractBestPath(t *tree.Tree) ([]tree.Info, error) {
	root, err := rootOf(t)
	if err != nil {
		return nil, err
	}
	var path []tree.Info
	current := root
	for {
		path = append(path, toInfo(current))
		children, err := t.Children(current.ID)
		if err != nil || len(children) == 0 {
			break
		}
		best := bestChild(children)
		current = best
	}
	return path, nil
}

func bestChild(children []*tree.Node) *tree.Node {
	sort.SliceStable(children, func(i, j int) bool {
		a, b := children[i], children[j]
		if a.AverageValue() != b.AverageValue() {
			return a.AverageValue() > b.AverageValue()
		}
		if a.VisitCount != b.VisitCount {
			return a.VisitCount > b.VisitCount
		}
		return a.Seq() < b.Seq()
	})
	return children[0]
}

// Suggestion is the result of SuggestNext.
type Suggestion struct {
	Suggestion   *tree.Info `json:"suggestion"`
	Alternatives []tree.Info `json:"alternatives"`
}

// SuggestNext scores every non-terminal, non-root node with a living
// parent by UCB1 and returns the top-scoring node plus up to two
// alternatives.
func SuggestNext(t *tree.Tree, strategy Strategy) (*Suggestion, error) {
	c := ExplorationConstant(strategy)

	type scored struct {
		node  *tree.Node
		score float64
	}

	var candidates []scored
	for _, n := range t.AllNodes() {
		if n.IsTerminal || n.ParentID == "" {
			continue
		}
		parent, err := t.Node(n.ParentID)
		if err != nil {
			continue
		}
		candidates = append(candidates, scored{node: n, score: ucb1(n, parent, c)})
	}

	if len(candidates) == 0 {
		return &Suggestion{}, nil
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.score != b.score {
			return a.score > b.score
		}
		// Ties (all-unvisited nodes score +Inf alike) break by insertion
		// order so suggestions are stable across calls.
		return a.node.Seq() < b.node.Seq()
	})

	top := toInfo(candidates[0].node)
	var alts []tree.Info
	for i := 1; i < len(candidates) && i <= 2; i++ {
		alts = append(alts, toInfo(candidates[i].node))
	}

	return &Suggestion{Suggestion: &top, Alternatives: alts}, nil
}

func ucb1(n, parent *tree.Node, c float64) float64 {
	if n.VisitCount == 0 {
		return math.Inf(1)
	}
	exploit := n.TotalValue / float64(n.VisitCount)
	explore := c * math.Sqrt(math.Log(float64(parent.VisitCount+1))/float64(n.VisitCount))
	return exploit + explore
}

// Stats is the aggregate tree-statistics summary.
type Stats struct {
	TotalNodes      int     `json:"totalNodes"`
	MaxDepth        int     `json:"maxDepth"`
	TerminalCount   int     `json:"terminalCount"`
	UnexploredCount int     `json:"unexploredCount"`
	LeafCount       int     `json:"leafCount"`
	AvgBranching    float64 `json:"avgBranching"`
}

// GetTreeStats computes totals, max depth, terminal/unexplored/leaf counts,
// and average branching factor across non-leaf nodes.
func GetTreeStats(t *tree.Tree) Stats {
	nodes := t.AllNodes()
	var s Stats
	s.TotalNodes = len(nodes)

	var branchingSum, branchingNodes int
	for _, n := range nodes {
		if n.Depth > s.MaxDepth {
			s.MaxDepth = n.Depth
		}
		if n.IsTerminal {
			s.TerminalCount++
		}
		if n.VisitCount == 0 {
			s.UnexploredCount++
		}
		if len(n.Children) == 0 {
			s.LeafCount++
		} else {
			branchingSum += len(n.Children)
			branchingNodes++
		}
	}
	if branchingNodes > 0 {
		s.AvgBranching = float64(branchingSum) / float64(branchingNodes)
	}
	return s
}

func rootOf(t *tree.Tree) (*tree.Node, error) {
	if t.RootID == "" {
		return nil, thinkerr.New(thinkerr.Tree, "tree has no root")
	}
	return t.Node(t.RootID)
}

func toInfo(n *tree.Node) tree.Info {
	return tree.Info{
		NodeID:        n.ID,
		ThoughtNumber: n.ThoughtNumber,
		Depth:         n.Depth,
		VisitCount:    n.VisitCount,
		AverageValue:  n.AverageValue(),
		IsTerminal:    n.IsTerminal,
	}
}
