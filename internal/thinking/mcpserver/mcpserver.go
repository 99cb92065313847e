// Package mcpserver is the thin adapter wiring the request pipeline's six
// operations to the Model Context Protocol Go SDK as stdio tools. It holds
// no engine state of its own — every call is forwarded straight to a
// *pipeline.Pipeline and the result is marshaled into the content-block
// response shape the spec's external interface defines.
package mcpserver

import (
	"context"

	"github.com/modelcontextprotocol/go-sdk/jsonschema"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/rand/thinkingserver/internal/thinking/mcts"
	"github.com/rand/thinkingserver/internal/thinking/pipeline"
)

// SequentialThinkingArgs mirrors the sequentialthinking operation's input
// contract.
type SequentialThinkingArgs struct {
	Thought           string `json:"thought" jsonschema:"description=The current thinking step"`
	ThoughtNumber     int    `json:"thoughtNumber" jsonschema:"description=Current thought number,minimum=1"`
	TotalThoughts     int    `json:"totalThoughts" jsonschema:"description=Estimated total thoughts needed,minimum=1"`
	NextThoughtNeeded bool   `json:"nextThoughtNeeded" jsonschema:"description=Whether another thought step is needed"`
	IsRevision        bool   `json:"isRevision,omitempty" jsonschema:"description=Whether this revises a previous thought"`
	RevisesThought    int    `json:"revisesThought,omitempty" jsonschema:"description=The thought number being revised,minimum=1"`
	BranchFromThought int    `json:"branchFromThought,omitempty" jsonschema:"description=The thought number to branch from,minimum=1"`
	BranchID          string `json:"branchId,omitempty" jsonschema:"description=Branch identifier"`
	NeedsMoreThoughts bool   `json:"needsMoreThoughts,omitempty" jsonschema:"description=Whether more thoughts are needed than estimated"`
	SessionID         string `json:"sessionId,omitempty" jsonschema:"description=Session identifier,maxLength=100"`
	ThinkingMode      string `json:"thinkingMode,omitempty" jsonschema:"description=Thinking mode preset,enum=fast,enum=expert,enum=deep"`
}

// BacktrackArgs mirrors the backtrack operation's input contract.
type BacktrackArgs struct {
	SessionID string `json:"sessionId" jsonschema:"description=Session identifier"`
	NodeID    string `json:"nodeId" jsonschema:"description=Node to move the cursor to"`
}

// EvaluateThoughtArgs mirrors the evaluate_thought operation's input contract.
type EvaluateThoughtArgs struct {
	SessionID string  `json:"sessionId" jsonschema:"description=Session identifier"`
	NodeID    string  `json:"nodeId" jsonschema:"description=Node being scored"`
	Value     float64 `json:"value" jsonschema:"description=Score in [0,1],minimum=0,maximum=1"`
}

// SuggestNextThoughtArgs mirrors the suggest_next_thought operation's input contract.
type SuggestNextThoughtArgs struct {
	SessionID string `json:"sessionId" jsonschema:"description=Session identifier"`
	Strategy  string `json:"strategy,omitempty" jsonschema:"description=UCB1 strategy,enum=explore,enum=exploit,enum=balanced"`
}

// GetThinkingSummaryArgs mirrors the get_thinking_summary operation's input contract.
type GetThinkingSummaryArgs struct {
	SessionID string `json:"sessionId" jsonschema:"description=Session identifier"`
	MaxDepth  int    `json:"maxDepth,omitempty" jsonschema:"description=Maximum depth to serialize,minimum=0"`
}

// SetThinkingModeArgs mirrors the set_thinking_mode operation's input contract.
type SetThinkingModeArgs struct {
	SessionID string `json:"sessionId" jsonschema:"description=Session identifier"`
	Mode      string `json:"mode" jsonschema:"description=Thinking mode preset,enum=fast,enum=expert,enum=deep"`
}

func getString(args map[string]any, key string) string {
	if v, ok := args[key].(string); ok {
		return v
	}
	return ""
}

func getBool(args map[string]any, key string) bool {
	if v, ok := args[key].(bool); ok {
		return v
	}
	return false
}

func getInt(args map[string]any, key string) int {
	if v, ok := args[key].(float64); ok {
		return int(v)
	}
	return 0
}

func getFloat(args map[string]any, key string) float64 {
	if v, ok := args[key].(float64); ok {
		return v
	}
	return 0
}

func success(payload any) (*mcp.CallToolResult, error) {
	text, err := pipeline.ToContentJSON(payload)
	if err != nil {
		return nil, err
	}
	return &mcp.CallToolResult{Content: []mcp.Content{&mcp.TextContent{Text: text}}}, nil
}

func failure(err error) (*mcp.CallToolResult, error) {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: pipeline.ErrorJSON(err)}},
		IsError: true,
	}, nil
}

// Register builds every mcp.ServerTool for the engine's six operations and
// adds them to server.
func Register(server *mcp.Server, p *pipeline.Pipeline) error {
	thinkingSchema, err := jsonschema.For[SequentialThinkingArgs]()
	if err != nil {
		return err
	}
	backtrackSchema, err := jsonschema.For[BacktrackArgs]()
	if err != nil {
		return err
	}
	evaluateSchema, err := jsonschema.For[EvaluateThoughtArgs]()
	if err != nil {
		return err
	}
	suggestSchema, err := jsonschema.For[SuggestNextThoughtArgs]()
	if err != nil {
		return err
	}
	summarySchema, err := jsonschema.For[GetThinkingSummaryArgs]()
	if err != nil {
		return err
	}
	setModeSchema, err := jsonschema.For[SetThinkingModeArgs]()
	if err != nil {
		return err
	}

	server.AddTools(
		&mcp.ServerTool{
			Tool: &mcp.Tool{
				Name:        "sequentialthinking",
				Description: "Record one step of sequential reasoning and receive guidance on what to do next",
				InputSchema: thinkingSchema,
			},
			Handler: func(_ context.Context, _ *mcp.ServerSession, params *mcp.CallToolParamsFor[map[string]any]) (*mcp.CallToolResult, error) {
				a := params.Arguments
				in := pipeline.SequentialThinkingInput{
					Thought:           getString(a, "thought"),
					ThoughtNumber:     getInt(a, "thoughtNumber"),
					TotalThoughts:     getInt(a, "totalThoughts"),
					NextThoughtNeeded: getBool(a, "nextThoughtNeeded"),
					IsRevision:        getBool(a, "isRevision"),
					RevisesThought:    getInt(a, "revisesThought"),
					BranchFromThought: getInt(a, "branchFromThought"),
					BranchID:          getString(a, "branchId"),
					NeedsMoreThoughts: getBool(a, "needsMoreThoughts"),
					SessionID:         getString(a, "sessionId"),
					ThinkingMode:      getString(a, "thinkingMode"),
				}
				resp, err := p.ProcessThought(in)
				if err != nil {
					return failure(err)
				}
				return success(resp)
			},
		},
		&mcp.ServerTool{
			Tool: &mcp.Tool{
				Name:        "backtrack",
				Description: "Move a session's cursor back to an earlier node",
				InputSchema: backtrackSchema,
			},
			Handler: func(_ context.Context, _ *mcp.ServerSession, params *mcp.CallToolParamsFor[map[string]any]) (*mcp.CallToolResult, error) {
				a := params.Arguments
				node, err := p.Backtrack(getString(a, "sessionId"), getString(a, "nodeId"))
				if err != nil {
					return failure(err)
				}
				return success(node)
			},
		},
		&mcp.ServerTool{
			Tool: &mcp.Tool{
				Name:        "evaluate_thought",
				Description: "Record an externally supplied score for a node and backpropagate it",
				InputSchema: evaluateSchema,
			},
			Handler: func(_ context.Context, _ *mcp.ServerSession, params *mcp.CallToolParamsFor[map[string]any]) (*mcp.CallToolResult, error) {
				a := params.Arguments
				n, err := p.EvaluateThought(getString(a, "sessionId"), getString(a, "nodeId"), getFloat(a, "value"))
				if err != nil {
					return failure(err)
				}
				return success(map[string]any{"nodesUpdated": n})
			},
		},
		&mcp.ServerTool{
			Tool: &mcp.Tool{
				Name:        "suggest_next_thought",
				Description: "Get the UCB1-ranked suggestion for which node to expand next",
				InputSchema: suggestSchema,
			},
			Handler: func(_ context.Context, _ *mcp.ServerSession, params *mcp.CallToolParamsFor[map[string]any]) (*mcp.CallToolResult, error) {
				a := params.Arguments
				suggestion, err := p.SuggestNextThought(getString(a, "sessionId"), mcts.Strategy(getString(a, "strategy")))
				if err != nil {
					return failure(err)
				}
				return success(suggestion)
			},
		},
		&mcp.ServerTool{
			Tool: &mcp.Tool{
				Name:        "get_thinking_summary",
				Description: "Get a compact view of a session's tree and its current statistics",
				InputSchema: summarySchema,
			},
			Handler: func(_ context.Context, _ *mcp.ServerSession, params *mcp.CallToolParamsFor[map[string]any]) (*mcp.CallToolResult, error) {
				a := params.Arguments
				var maxDepth *int
				if _, ok := a["maxDepth"]; ok {
					d := getInt(a, "maxDepth")
					maxDepth = &d
				}
				summary, err := p.GetThinkingSummary(getString(a, "sessionId"), maxDepth)
				if err != nil {
					return failure(err)
				}
				return success(summary)
			},
		},
		&mcp.ServerTool{
			Tool: &mcp.Tool{
				Name:        "set_thinking_mode",
				Description: "Switch a session to one of the fast, expert, or deep thinking-mode presets",
				InputSchema: setModeSchema,
			},
			Handler: func(_ context.Context, _ *mcp.ServerSession, params *mcp.CallToolParamsFor[map[string]any]) (*mcp.CallToolResult, error) {
				a := params.Arguments
				if err := p.SetThinkingMode(getString(a, "sessionId"), getString(a, "mode")); err != nil {
					return failure(err)
				}
				return success(map[string]any{"sessionId": getString(a, "sessionId"), "mode": getString(a, "mode")})
			},
		},
	)

	return nil
}
