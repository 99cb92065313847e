// Package config loads the runtime limits for the thinking engine from the
// environment: thought length, tree size and age, rate limits, the default
// exploration constant, and the block-list.
package config

import (
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Config holds every runtime-tunable limit recognized by the engine. All
// fields are loaded from environment variables at startup; nothing here is
// reloaded at runtime.
type Config struct {
	// DisableThoughtLogging suppresses the decorative per-thought console
	// log emitted by the host process.
	DisableThoughtLogging bool `json:"disableThoughtLogging" jsonschema:"description=Suppress decorative per-thought log,default=false"`

	// MaxThoughtLength is the maximum character length of a single thought.
	MaxThoughtLength int `json:"maxThoughtLength" jsonschema:"description=Max characters per thought,default=5000,minimum=1"`

	// MaxHistorySize is the legacy process-wide thought history cap.
	MaxHistorySize int `json:"maxHistorySize" jsonschema:"description=Legacy history cap,default=1000,minimum=1"`

	// MaxThoughtsPerMin is the per-session rolling rate limit.
	MaxThoughtsPerMin int `json:"maxThoughtsPerMin" jsonschema:"description=Per-session rate limit per rolling minute,default=60,minimum=1"`

	// MaxThoughtsPerBranch is the legacy per-branch cap.
	MaxThoughtsPerBranch int `json:"maxThoughtsPerBranch" jsonschema:"description=Per-branch cap,default=100,minimum=1"`

	// CleanupInterval is the cleanup timer period.
	CleanupInterval time.Duration `json:"cleanupIntervalMs" jsonschema:"description=Cleanup timer period,default=300000"`

	// MaxNodesPerTree is the per-tree node cap (MCTS_MAX_NODES).
	MaxNodesPerTree int `json:"maxNodesPerTree" jsonschema:"description=Per-tree node cap,default=500,minimum=1"`

	// MaxTreeAge is the idle tree TTL (MCTS_MAX_TREE_AGE).
	MaxTreeAge time.Duration `json:"maxTreeAgeMs" jsonschema:"description=Idle tree TTL,default=3600000"`

	// ExplorationConstant is the default MCTS exploration constant, used
	// when a session has no thinking-mode preset.
	ExplorationConstant float64 `json:"explorationConstant" jsonschema:"description=Default exploration constant,default=1.4142135623730951"`

	// DisableAutoTree turns off tree recording entirely (MCTS_DISABLE_AUTO_TREE).
	DisableAutoTree bool `json:"disableAutoTree" jsonschema:"description=Disable tree recording,default=false"`

	// BlockedPatterns is the compiled block-list applied to sanitized
	// thought text. Source strings are kept for the config-dump subcommand.
	BlockedPatterns       []string         `json:"blockedPatterns" jsonschema:"description=Comma-separated regex block-list"`
	CompiledBlockPatterns []*regexp.Regexp `json:"-"`

	// MaxConcurrentTrees bounds the number of live trees process-wide
	// (capacity policy in the resource model; not independently
	// environment-tunable today, kept as a field for forward use).
	MaxConcurrentTrees int `json:"maxConcurrentTrees" jsonschema:"description=Tree count cap,default=100,minimum=1"`
}

// defaultBlockedPatterns mirrors common prompt-injection / script-injection
// markers. Callers may override entirely via BLOCKED_PATTERNS.
var defaultBlockedPatterns = []string{
	`(?i)ignore\s+(all\s+)?previous\s+instructions`,
	`(?i)disregard\s+(all\s+)?prior\s+instructions`,
	`(?i)<iframe[^>]*>`,
	`(?i)data:text/html`,
}

// Load reads the environment and returns a Config. Unset or unparsable
// variables fall back to the documented defaults; parsed values are not
// range-checked, and block-list patterns that fail to compile are skipped.
func Load() (*Config, error) {
	cfg := &Config{
		DisableThoughtLogging: getBool("DISABLE_THOUGHT_LOGGING", false),
		MaxThoughtLength:      getInt("MAX_THOUGHT_LENGTH", 5000),
		MaxHistorySize:        getInt("MAX_HISTORY_SIZE", 1000),
		MaxThoughtsPerMin:     getInt("MAX_THOUGHTS_PER_MIN", 60),
		MaxThoughtsPerBranch:  getInt("MAX_THOUGHTS_PER_BRANCH", 100),
		CleanupInterval:       getMillis("CLEANUP_INTERVAL", 300000),
		MaxNodesPerTree:       getInt("MCTS_MAX_NODES", 500),
		MaxTreeAge:            getMillis("MCTS_MAX_TREE_AGE", 3600000),
		ExplorationConstant:   getFloat("MCTS_EXPLORATION_CONSTANT", 1.4142135623730951),
		DisableAutoTree:       getBool("MCTS_DISABLE_AUTO_TREE", false),
		MaxConcurrentTrees:    100,
	}

	patterns := defaultBlockedPatterns
	if raw := os.Getenv("BLOCKED_PATTERNS"); raw != "" {
		patterns = splitAndTrim(raw)
	}
	cfg.BlockedPatterns = patterns

	compiled := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			continue // malformed pattern from env, skip rather than fail startup
		}
		compiled = append(compiled, re)
	}
	cfg.CompiledBlockPatterns = compiled

	return cfg, nil
}

func splitAndTrim(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func getBool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func getInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func getFloat(key string, def float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def
	}
	return f
}

func getMillis(key string, defMs int) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return time.Duration(defMs) * time.Millisecond
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return time.Duration(defMs) * time.Millisecond
	}
	return time.Duration(n) * time.Millisecond
}
