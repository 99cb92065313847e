// Package tree implements the per-session thought tree: a node store with a
// moving cursor, revision/branch parent-selection rules, a thoughtNumber
// index, and worst-leaf-first pruning when the tree grows past its node cap.
package tree

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rand/thinkingserver/internal/thinking/thinkerr"
)

// Status tags a node's place in the evaluation lifecycle. It is internal
// bookkeeping only: pruning and ExpandableNodes do not read it, and
// StatusPruned is never assigned. It does not change any of the
// externally visible fields in Info.
type Status string

const (
	StatusPending   Status = "pending"
	StatusExpanded  Status = "expanded"
	StatusEvaluated Status = "evaluated"
	StatusTerminal  Status = "terminal"
	StatusPruned    Status = "pruned"
)

// maxThoughtDisplay is the fixed truncation length used by toJSON's compact
// view, independent of any thinking-mode display-length preset.
const maxThoughtDisplay = 100

// Node is one thought in a tree.
type Node struct {
	ID                string
	ParentID          string // "" only for the root
	Children          []string
	Depth             int
	ThoughtNumber     int
	Thought           string
	IsTerminal        bool
	VisitCount        int
	TotalValue        float64
	BranchID          string
	IsRevision        bool
	RevisesThought    int
	BranchFromThought int
	Status            Status
	CreatedAt         time.Time

	seq int // insertion sequence, used only for pruning and MCTS tie-breaks
}

// AverageValue returns totalValue/visitCount, or 0 if never visited.
func (n *Node) AverageValue() float64 {
	if n.VisitCount == 0 {
		return 0
	}
	return n.TotalValue / float64(n.VisitCount)
}

// Seq returns the node's insertion sequence number, monotonically
// increasing across a tree's lifetime. Callers outside this package use it
// only to break ties deterministically (e.g. among several unvisited
// nodes); it carries no other meaning.
func (n *Node) Seq() int {
	return n.seq
}

// Info is the compact, backpropagation/best-path-friendly summary of a node.
type Info struct {
	NodeID        string  `json:"nodeId"`
	ThoughtNumber int     `json:"thoughtNumber"`
	Depth         int     `json:"depth"`
	VisitCount    int     `json:"visitCount"`
	AverageValue  float64 `json:"averageValue"`
	IsTerminal    bool    `json:"isTerminal"`
}

func (n *Node) info() Info {
	return Info{
		NodeID:        n.ID,
		ThoughtNumber: n.ThoughtNumber,
		Depth:         n.Depth,
		VisitCount:    n.VisitCount,
		AverageValue:  n.AverageValue(),
		IsTerminal:    n.IsTerminal,
	}
}

// AddInput is the data needed to add one thought to a tree.
type AddInput struct {
	Thought           string
	ThoughtNumber     int
	NextThoughtNeeded bool
	IsRevision        bool
	RevisesThought    int
	BranchFromThought int
	BranchID          string
}

// Tree is a single session's thought tree.
type Tree struct {
	mu sync.RWMutex

	SessionID      string
	nodes          map[string]*Node
	byThoughtNum   map[int][]string
	RootID         string
	CursorID       string
	LastAccessedAt time.Time

	maxNodes int
	nextSeq  int
}

// New creates an empty tree for a session, capped at maxNodes.
func New(sessionID string, maxNodes int) *Tree {
	if maxNodes <= 0 {
		maxNodes = 500
	}
	return &Tree{
		SessionID:      sessionID,
		nodes:          make(map[string]*Node),
		byThoughtNum:   make(map[int][]string),
		LastAccessedAt: time.Now(),
		maxNodes:       maxNodes,
	}
}

// Size returns the live node count.
func (t *Tree) Size() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.nodes)
}

func (t *Tree) touch() { t.LastAccessedAt = time.Now() }

// nodeLocked looks up a node; caller must hold t.mu.
func (t *Tree) nodeLocked(id string) (*Node, bool) {
	n, ok := t.nodes[id]
	return n, ok
}

// Node returns a copy-free pointer to the node, or a TREE_ERROR if absent.
func (t *Tree) Node(id string) (*Node, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	n, ok := t.nodes[id]
	if !ok {
		return nil, thinkerr.Newf(thinkerr.Tree, "node %q not found", id)
	}
	return n, nil
}

// AddThought inserts a new node choosing its parent per the branch/
// revision/sequential rules, moves the cursor to it, and prunes if the
// insertion pushed the tree past its cap.
func (t *Tree) AddThought(in AddInput) (*Node, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	var parent *Node
	var depth int

	switch {
	case len(t.nodes) == 0:
		// first node becomes root
		parent = nil
		depth = 0

	case in.BranchFromThought != 0:
		if target, ok := t.findByThoughtNumberLocked(in.BranchFromThought); ok {
			parent = target
		} else {
			parent = t.nodes[t.CursorID]
		}

	case in.IsRevision && in.RevisesThought != 0:
		if target, ok := t.findByThoughtNumberLocked(in.RevisesThought); ok {
			if target.ID == t.RootID {
				parent = target // revising the root: child of root, not a sibling
			} else if p, ok := t.nodes[target.ParentID]; ok {
				parent = p
			} else {
				parent = t.nodes[t.CursorID]
			}
		} else {
			parent = t.nodes[t.CursorID]
		}

	default:
		parent = t.nodes[t.CursorID]
	}

	if parent != nil {
		depth = parent.Depth + 1
	}

	node := &Node{
		ID:                uuid.NewString(),
		Thought:           in.Thought,
		Depth:             depth,
		ThoughtNumber:     in.ThoughtNumber,
		IsTerminal:        !in.NextThoughtNeeded,
		BranchID:          in.BranchID,
		IsRevision:        in.IsRevision,
		RevisesThought:    in.RevisesThought,
		BranchFromThought: in.BranchFromThought,
		Status:            StatusPending,
		CreatedAt:         time.Now(),
		seq:               t.nextSeq,
	}
	t.nextSeq++
	if node.IsTerminal {
		node.Status = StatusTerminal
	}

	if parent != nil {
		node.ParentID = parent.ID
		parent.Children = append(parent.Children, node.ID)
		if parent.Status == StatusPending {
			parent.Status = StatusExpanded
		}
	} else {
		t.RootID = node.ID
	}

	t.nodes[node.ID] = node
	t.byThoughtNum[node.ThoughtNumber] = append(t.byThoughtNum[node.ThoughtNumber], node.ID)
	t.CursorID = node.ID
	t.touch()

	if len(t.nodes) > t.maxNodes {
		t.pruneLocked()
	}

	return node, nil
}

// SetCursor moves the cursor to an existing node.
func (t *Tree) SetCursor(nodeID string) (*Node, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	n, ok := t.nodes[nodeID]
	if !ok {
		return nil, thinkerr.Newf(thinkerr.Tree, "cannot set cursor: node %q not found", nodeID)
	}
	t.CursorID = nodeID
	t.touch()
	return n, nil
}

// FindByThoughtNumber resolves thoughtNumber collisions by preferring the
// node on the cursor's ancestor path, falling back to the first inserted.
func (t *Tree) FindByThoughtNumber(n int) (*Node, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.findByThoughtNumberLocked(n)
}

func (t *Tree) findByThoughtNumberLocked(n int) (*Node, bool) {
	ids, ok := t.byThoughtNum[n]
	if !ok || len(ids) == 0 {
		return nil, false
	}
	if len(ids) == 1 {
		return t.nodes[ids[0]], true
	}

	ancestorIDs := map[string]bool{}
	if t.CursorID != "" {
		for _, a := range t.ancestorPathLocked(t.CursorID) {
			ancestorIDs[a.ID] = true
		}
	}
	for _, id := range ids {
		if ancestorIDs[id] {
			return t.nodes[id], true
		}
	}
	return t.nodes[ids[0]], true
}

// AncestorPath returns root...node inclusive.
func (t *Tree) AncestorPath(nodeID string) ([]*Node, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if _, ok := t.nodes[nodeID]; !ok {
		return nil, thinkerr.Newf(thinkerr.Tree, "node %q not found", nodeID)
	}
	return t.ancestorPathLocked(nodeID), nil
}

func (t *Tree) ancestorPathLocked(nodeID string) []*Node {
	var path []*Node
	cur, ok := t.nodes[nodeID]
	for ok {
		path = append([]*Node{cur}, path...)
		if cur.ParentID == "" {
			break
		}
		cur, ok = t.nodes[cur.ParentID]
	}
	return path
}

// Children returns the direct children of a node in insertion order.
func (t *Tree) Children(nodeID string) ([]*Node, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	n, ok := t.nodes[nodeID]
	if !ok {
		return nil, thinkerr.Newf(thinkerr.Tree, "node %q not found", nodeID)
	}
	out := make([]*Node, 0, len(n.Children))
	for _, id := range n.Children {
		if c, ok := t.nodes[id]; ok {
			out = append(out, c)
		}
	}
	return out, nil
}

// LeafNodes returns every node with no children.
func (t *Tree) LeafNodes() []*Node {
	t.mu.RLock()
	defer t.mu.RUnlock()
	var out []*Node
	for _, n := range t.nodes {
		if len(n.Children) == 0 {
			out = append(out, n)
		}
	}
	return out
}

// ExpandableNodes returns every non-terminal node.
func (t *Tree) ExpandableNodes() []*Node {
	t.mu.RLock()
	defer t.mu.RUnlock()
	var out []*Node
	for _, n := range t.nodes {
		if !n.IsTerminal {
			out = append(out, n)
		}
	}
	return out
}

// AllNodes returns every live node, order unspecified.
func (t *Tree) AllNodes() []*Node {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]*Node, 0, len(t.nodes))
	for _, n := range t.nodes {
		out = append(out, n)
	}
	return out
}

// View is the compact serialization toJSON produces.
type View struct {
	NodeID        string  `json:"nodeId"`
	Thought       string  `json:"thought"`
	Depth         int     `json:"depth"`
	VisitCount    int     `json:"visitCount"`
	AverageValue  float64 `json:"averageValue"`
	IsTerminal    bool    `json:"isTerminal"`
	IsCursor      bool    `json:"isCursor"`
	ChildCount    int     `json:"childCount"`
	Children      []*View `json:"children,omitempty"`
	ThoughtNumber int     `json:"thoughtNumber"`
}

// ToJSON renders the tree from the root down, recursing into children only
// while depth < maxDepth (nil maxDepth means unlimited).
func (t *Tree) ToJSON(maxDepth *int) *View {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.RootID == "" {
		return nil
	}
	return t.viewLocked(t.RootID, maxDepth)
}

func (t *Tree) viewLocked(nodeID string, maxDepth *int) *View {
	n, ok := t.nodes[nodeID]
	if !ok {
		return nil
	}
	v := &View{
		NodeID:        n.ID,
		Thought:       truncate(n.Thought, maxThoughtDisplay),
		Depth:         n.Depth,
		VisitCount:    n.VisitCount,
		AverageValue:  n.AverageValue(),
		IsTerminal:    n.IsTerminal,
		IsCursor:      n.ID == t.CursorID,
		ChildCount:    len(n.Children),
		ThoughtNumber: n.ThoughtNumber,
	}
	if maxDepth != nil && n.Depth >= *maxDepth {
		return v
	}
	for _, cid := range n.Children {
		if cv := t.viewLocked(cid, maxDepth); cv != nil {
			v.Children = append(v.Children, cv)
		}
	}
	return v
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return strings.TrimSpace(string(r[:n])) + "..."
}

// Prune removes worst-scoring leaves (never root or cursor) until the tree
// is back at or under its cap, or no safe leaf remains.
func (t *Tree) Prune() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.pruneLocked()
}

func (t *Tree) pruneLocked() {
	for len(t.nodes) > t.maxNodes {
		candidates := t.safeLeavesLocked()
		if len(candidates) == 0 {
			return
		}
		sort.Slice(candidates, func(i, j int) bool {
			a, b := candidates[i], candidates[j]
			if a.AverageValue() != b.AverageValue() {
				return a.AverageValue() < b.AverageValue()
			}
			if a.VisitCount != b.VisitCount {
				return a.VisitCount < b.VisitCount
			}
			return a.seq < b.seq
		})
		for _, victim := range candidates {
			if len(t.nodes) <= t.maxNodes {
				break
			}
			t.removeNodeLocked(victim.ID)
		}
	}
}

func (t *Tree) safeLeavesLocked() []*Node {
	var out []*Node
	for _, n := range t.nodes {
		if len(n.Children) == 0 && n.ID != t.RootID && n.ID != t.CursorID {
			out = append(out, n)
		}
	}
	return out
}

// removeNodeLocked unlinks a node from its parent's children and the
// thoughtNumber index. Caller must hold t.mu and must not remove root or
// cursor.
func (t *Tree) removeNodeLocked(id string) {
	n, ok := t.nodes[id]
	if !ok {
		return
	}
	if n.ParentID != "" {
		if parent, ok := t.nodes[n.ParentID]; ok {
			for i, c := range parent.Children {
				if c == id {
					parent.Children = append(parent.Children[:i], parent.Children[i+1:]...)
					break
				}
			}
		}
	}
	ids := t.byThoughtNum[n.ThoughtNumber]
	for i, c := range ids {
		if c == id {
			t.byThoughtNum[n.ThoughtNumber] = append(ids[:i], ids[i+1:]...)
			break
		}
	}
	if len(t.byThoughtNum[n.ThoughtNumber]) == 0 {
		delete(t.byThoughtNum, n.ThoughtNumber)
	}
	delete(t.nodes, id)
}

// String is used only in error messages and debug logging.
func (n *Node) String() string {
	return fmt.Sprintf("Node{id=%s, num=%d, depth=%d}", n.ID, n.ThoughtNumber, n.Depth)
}
