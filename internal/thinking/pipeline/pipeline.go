// Package pipeline implements the request pipeline for every operation the
// engine exposes: shape validation, business-logic validation, session id
// handling, the security gate, the tree update, and response assembly,
// plus the auxiliary operations (backtrack, evaluate, suggest, summary,
// set-mode) and the legacy history/branch operations.
package pipeline

import (
	"encoding/json"
	"log/slog"
	"strings"
	"sync"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/rand/thinkingserver/internal/thinking/config"
	"github.com/rand/thinkingserver/internal/thinking/manager"
	"github.com/rand/thinkingserver/internal/thinking/mcts"
	"github.com/rand/thinkingserver/internal/thinking/metrics"
	"github.com/rand/thinkingserver/internal/thinking/modes"
	"github.com/rand/thinkingserver/internal/thinking/security"
	"github.com/rand/thinkingserver/internal/thinking/thinkerr"
	"github.com/rand/thinkingserver/internal/thinking/tree"
)

// SequentialThinkingInput is the sequentialthinking operation's input
// contract.
type SequentialThinkingInput struct {
	Thought            string `json:"thought"`
	ThoughtNumber      int    `json:"thoughtNumber"`
	TotalThoughts      int    `json:"totalThoughts"`
	NextThoughtNeeded  bool   `json:"nextThoughtNeeded"`
	IsRevision         bool   `json:"isRevision,omitempty"`
	RevisesThought     int    `json:"revisesThought,omitempty"`
	BranchFromThought  int    `json:"branchFromThought,omitempty"`
	BranchID           string `json:"branchId,omitempty"`
	NeedsMoreThoughts  bool   `json:"needsMoreThoughts,omitempty"`
	SessionID          string `json:"sessionId,omitempty"`
	ThinkingMode       string `json:"thinkingMode,omitempty"`
}

// ThoughtResponse is the success payload for sequentialthinking.
type ThoughtResponse struct {
	ThoughtNumber        int             `json:"thoughtNumber"`
	TotalThoughts        int             `json:"totalThoughts"`
	NextThoughtNeeded    bool            `json:"nextThoughtNeeded"`
	SessionID            string          `json:"sessionId"`
	ThoughtHistoryLength int             `json:"thoughtHistoryLength"`
	Branches             []string        `json:"branches"`
	Timestamp            string          `json:"timestamp"`
	NodeID               string          `json:"nodeId"`
	ParentNodeID         string          `json:"parentNodeId,omitempty"`
	TreeStats            mcts.Stats      `json:"treeStats"`
	ModeGuidance         *modes.Guidance `json:"modeGuidance,omitempty"`
}

// ErrorPayload is the failure payload shape for every operation.
type ErrorPayload struct {
	Error     thinkerr.Code `json:"error"`
	Message   string        `json:"message"`
	Timestamp string        `json:"timestamp"`
}

const maxSessionIDLen = 100

// Pipeline wires the security gate, the tree/mode manager, and the process
// counters together behind the operation contracts in the external
// interface.
type Pipeline struct {
	cfg     *config.Config
	mgr     *manager.Manager
	gate    *security.Gate
	counters *metrics.Counters
	logger  *slog.Logger

	mu            sync.Mutex
	historyLength int
	branchOrder   []string
	branchSet     map[string]bool
	destroyed     bool
}

// New wires a Pipeline from a loaded Config.
func New(cfg *config.Config, logger *slog.Logger) (*Pipeline, error) {
	if logger == nil {
		logger = slog.Default()
	}
	mgr, err := manager.New(cfg, logger)
	if err != nil {
		return nil, err
	}
	return &Pipeline{
		cfg:      cfg,
		mgr:      mgr,
		gate:     security.NewGate(cfg.MaxThoughtsPerMin),
		counters: metrics.New(),
		logger:   logger,
		branchSet: make(map[string]bool),
	}, nil
}

// Destroy tears down the manager and marks the pipeline unhealthy. After
// Destroy every operation returns a well-formed error or empty response —
// it never panics.
func (p *Pipeline) Destroy() {
	p.mu.Lock()
	p.destroyed = true
	p.mu.Unlock()
	p.mgr.Destroy()
}

// Metrics exposes a snapshot of the process counters, e.g. for a debug
// subcommand.
func (p *Pipeline) Metrics() metrics.Snapshot {
	return p.counters.Snapshot()
}

func isBlank(s string) bool {
	for _, r := range s {
		if !unicode.IsSpace(r) {
			return false
		}
	}
	return true
}

// ProcessThought runs the full pipeline for the sequentialthinking
// operation.
func (p *Pipeline) ProcessThought(in SequentialThinkingInput) (*ThoughtResponse, error) {
	start := time.Now()

	p.mu.Lock()
	destroyed := p.destroyed
	p.mu.Unlock()
	if destroyed {
		return nil, thinkerr.New(thinkerr.Internal, "engine destroyed")
	}

	// --- Step 1: shape validation (failures are never metered) ---
	if isBlank(in.Thought) {
		return nil, thinkerr.New(thinkerr.Validation, "thought must not be empty or whitespace")
	}
	if utf8.RuneCountInString(in.Thought) > p.cfg.MaxThoughtLength {
		return nil, thinkerr.Newf(thinkerr.Validation, "thought exceeds max length %d", p.cfg.MaxThoughtLength)
	}
	if in.ThoughtNumber < 1 {
		return nil, thinkerr.New(thinkerr.Validation, "thoughtNumber must be a positive integer")
	}
	if in.TotalThoughts < 1 {
		return nil, thinkerr.New(thinkerr.Validation, "totalThoughts must be a positive integer")
	}
	if in.ThoughtNumber > in.TotalThoughts {
		in.TotalThoughts = in.ThoughtNumber // silently widen
	}

	// --- Step 2: business-logic validation (not metered) ---
	if in.IsRevision && in.RevisesThought < 1 {
		return nil, thinkerr.New(thinkerr.BusinessLogic, "isRevision requires revisesThought")
	}
	if in.BranchFromThought != 0 && in.BranchID == "" {
		return nil, thinkerr.New(thinkerr.BusinessLogic, "branchFromThought requires branchId")
	}

	// --- Step 3: session id resolution (not metered) ---
	sessionID := in.SessionID
	if sessionID == "" {
		sessionID = uuid.NewString()
	} else if len(sessionID) > maxSessionIDLen {
		return nil, thinkerr.Newf(thinkerr.Validation, "sessionId exceeds %d characters", maxSessionIDLen)
	}

	var preset *modes.Mode
	if in.ThinkingMode != "" {
		mode, ok := modes.ParseMode(in.ThinkingMode)
		if !ok {
			return nil, thinkerr.Newf(thinkerr.Validation, "unknown thinkingMode %q", in.ThinkingMode)
		}
		preset = &mode
	}

	// --- Step 4: security check + record-atomically (metered from here on) ---
	sanitized, err := security.Check(sessionID, in.Thought, p.cfg.CompiledBlockPatterns, p.gate)
	if err != nil {
		p.counters.RecordFailure()
		return nil, err
	}

	if preset != nil {
		if err := p.mgr.SetMode(sessionID, *preset); err != nil {
			p.counters.RecordFailure()
			return nil, err
		}
	}

	// --- Step 5: tree update ---
	addInput := tree.AddInput{
		Thought:           sanitized,
		ThoughtNumber:     in.ThoughtNumber,
		NextThoughtNeeded:  in.NextThoughtNeeded,
		IsRevision:        in.IsRevision,
		RevisesThought:    in.RevisesThought,
		BranchFromThought: in.BranchFromThought,
		BranchID:          in.BranchID,
	}
	result, err := p.mgr.RecordThought(sessionID, addInput)
	if err != nil {
		p.counters.RecordFailure()
		return nil, err
	}

	// --- Step 6: response assembly ---
	p.mu.Lock()
	p.historyLength++
	historyLength := p.historyLength
	if in.BranchID != "" {
		p.recordBranchLocked(in.BranchID)
	}
	branches := append([]string(nil), p.branchOrder...)
	p.mu.Unlock()

	var parentID string
	if result.Node.ParentID != "" {
		parentID = result.Node.ParentID
	}

	resp := &ThoughtResponse{
		ThoughtNumber:        in.ThoughtNumber,
		TotalThoughts:        in.TotalThoughts,
		NextThoughtNeeded:    in.NextThoughtNeeded,
		SessionID:            sessionID,
		ThoughtHistoryLength: historyLength,
		Branches:             branches,
		Timestamp:            time.Now().UTC().Format(time.RFC3339),
		NodeID:               result.Node.ID,
		ParentNodeID:         parentID,
		TreeStats:            result.Stats,
		ModeGuidance:         result.Guidance,
	}

	// --- Step 7: metrics ---
	p.counters.RecordSuccess(time.Since(start))

	return resp, nil
}

// recordBranchLocked inserts a branch id into the legacy known-branches
// set, evicting the oldest entry once the cap is reached. Caller holds p.mu.
func (p *Pipeline) recordBranchLocked(branchID string) {
	if p.branchSet[branchID] {
		return
	}
	const maxBranches = 100
	p.branchSet[branchID] = true
	p.branchOrder = append(p.branchOrder, branchID)
	if len(p.branchOrder) > maxBranches {
		oldest := p.branchOrder[0]
		p.branchOrder = p.branchOrder[1:]
		delete(p.branchSet, oldest)
	}
}

func (p *Pipeline) checkSessionID(sessionID string) error {
	if sessionID == "" || len(sessionID) > maxSessionIDLen {
		return thinkerr.New(thinkerr.Validation, "sessionId must be 1-100 characters")
	}
	return nil
}

// Backtrack moves a session's cursor to nodeID.
func (p *Pipeline) Backtrack(sessionID, nodeID string) (*tree.Node, error) {
	if err := p.checkSessionID(sessionID); err != nil {
		return nil, err
	}
	node, err := p.mgr.Backtrack(sessionID, nodeID)
	if err != nil {
		p.counters.RecordFailure()
	}
	return node, err
}

// EvaluateThought backpropagates an externally supplied score.
func (p *Pipeline) EvaluateThought(sessionID, nodeID string, value float64) (int, error) {
	if err := p.checkSessionID(sessionID); err != nil {
		return 0, err
	}
	if value < 0 || value > 1 {
		return 0, thinkerr.Newf(thinkerr.Validation, "value %v out of range [0,1]", value)
	}
	n, err := p.mgr.Evaluate(sessionID, nodeID, value)
	if err != nil {
		p.counters.RecordFailure()
	}
	return n, err
}

// SuggestNextThought returns the MCTS suggestion for a session.
func (p *Pipeline) SuggestNextThought(sessionID string, strategy mcts.Strategy) (*mcts.Suggestion, error) {
	if err := p.checkSessionID(sessionID); err != nil {
		return nil, err
	}
	if strategy == "" {
		strategy = mcts.StrategyBalanced
	}
	s, err := p.mgr.Suggest(sessionID, strategy)
	if err != nil {
		p.counters.RecordFailure()
	}
	return s, err
}

// GetThinkingSummary returns the session's tree view and stats.
func (p *Pipeline) GetThinkingSummary(sessionID string, maxDepth *int) (*manager.Summary, error) {
	if err := p.checkSessionID(sessionID); err != nil {
		return nil, err
	}
	s, err := p.mgr.GetSummary(sessionID, maxDepth)
	if err != nil {
		p.counters.RecordFailure()
	}
	return s, err
}

// SetThinkingMode applies a preset to a session, creating its tree if
// needed.
func (p *Pipeline) SetThinkingMode(sessionID, modeName string) error {
	if err := p.checkSessionID(sessionID); err != nil {
		return err
	}
	mode, ok := modes.ParseMode(modeName)
	if !ok {
		return thinkerr.Newf(thinkerr.Validation, "unknown thinking mode %q", modeName)
	}
	if err := p.mgr.SetMode(sessionID, mode); err != nil {
		p.counters.RecordFailure()
		return err
	}
	return nil
}

// LegacyThought is one entry in the legacy process-wide thought history.
type LegacyThought struct {
	SessionID     string `json:"sessionId"`
	ThoughtNumber int    `json:"thoughtNumber"`
	Thought       string `json:"thought"`
}

// GetThoughtHistory is the legacy compatibility operation. After Destroy
// it returns an empty slice and logs a warning rather than erroring.
func (p *Pipeline) GetThoughtHistory(sessionID string) ([]LegacyThought, error) {
	p.mu.Lock()
	destroyed := p.destroyed
	p.mu.Unlock()
	if destroyed {
		p.logger.Warn("getThoughtHistory called after destroy", "sessionId", sessionID)
		return []LegacyThought{}, nil
	}
	summary, err := p.GetThinkingSummary(sessionID, nil)
	if err != nil {
		return nil, err
	}
	return flattenHistory(summary.View), nil
}

func flattenHistory(v *tree.View) []LegacyThought {
	if v == nil {
		return []LegacyThought{}
	}
	out := []LegacyThought{{ThoughtNumber: v.ThoughtNumber, Thought: v.Thought}}
	for _, c := range v.Children {
		out = append(out, flattenHistory(c)...)
	}
	return out
}

// GetBranches is the legacy compatibility operation for known branch ids.
func (p *Pipeline) GetBranches() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.destroyed {
		p.logger.Warn("getBranches called after destroy")
		return []string{}
	}
	return append([]string(nil), p.branchOrder...)
}

// ToContentJSON marshals any success payload into the single-text-block
// content shape every operation's response uses.
func ToContentJSON(payload any) (string, error) {
	b, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// ErrorJSON marshals a taxonomy-tagged error into the {error,message,
// timestamp} payload shape.
func ErrorJSON(err error) string {
	code := thinkerr.CodeOf(err)
	payload := ErrorPayload{
		Error:     code,
		Message:   messageOf(err),
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
	b, marshalErr := json.Marshal(payload)
	if marshalErr != nil {
		return `{"error":"INTERNAL_ERROR","message":"failed to marshal error payload"}`
	}
	return string(b)
}

func messageOf(err error) string {
	msg := err.Error()
	// Strip the leading "CODE: " tag thinkerr.Error.Error() adds, the
	// payload already carries the code in its own field.
	if idx := strings.Index(msg, ": "); idx != -1 {
		return msg[idx+2:]
	}
	return msg
}
