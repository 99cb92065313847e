// Package security implements the per-request security gate: thought
// sanitization, the compiled block-list check, and per-session rate
// limiting with atomic check-then-record semantics.
package security

import (
	"regexp"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/rand/thinkingserver/internal/thinking/thinkerr"
)

var (
	scriptBlockPattern = regexp.MustCompile(`(?is)<script[^>]*>.*?</script>`)
	jsProtocolPattern  = regexp.MustCompile(`(?i)javascript:`)
	evalCallPattern    = regexp.MustCompile(`(?i)eval\(`)
	functionCallPattern = regexp.MustCompile(`(?i)Function\(`)
	onAttrPattern      = regexp.MustCompile(`(?i)\bon\w+\s*=`)
)

// Sanitize strips script blocks, javascript: URIs, eval(/Function( calls,
// and on<word>= attribute markers from thought text before it is stored or
// matched against the block-list.
func Sanitize(text string) string {
	text = scriptBlockPattern.ReplaceAllString(text, "")
	text = jsProtocolPattern.ReplaceAllString(text, "")
	text = evalCallPattern.ReplaceAllString(text, "")
	text = functionCallPattern.ReplaceAllString(text, "")
	text = onAttrPattern.ReplaceAllString(text, "")
	return text
}

// MatchesBlockList reports whether sanitized text matches any compiled
// block-list pattern.
func MatchesBlockList(sanitized string, patterns []*regexp.Regexp) (matched bool, pattern string) {
	for _, re := range patterns {
		if re.MatchString(sanitized) {
			return true, re.String()
		}
	}
	return false, ""
}

// Gate owns the per-session rate limiters. A rolling "N per minute" cap is
// expressed as a token bucket with that capacity as both the refill rate
// and the burst size, so the first N requests in an empty window succeed
// immediately and the bucket refills continuously rather than stepping at
// a minute boundary — the steady-state behavior is equivalent to the
// spec's rolling window, and this is the idiomatic way to express a
// per-minute cap with x/time/rate.
type Gate struct {
	mu          sync.RWMutex
	limiters    map[string]*rate.Limiter
	perMinute   int
}

// NewGate creates a rate-limit gate allowing perMinute thoughts per session
// per rolling minute.
func NewGate(perMinute int) *Gate {
	if perMinute <= 0 {
		perMinute = 60
	}
	return &Gate{
		limiters:  make(map[string]*rate.Limiter),
		perMinute: perMinute,
	}
}

// Allow checks the session's limiter and, if under the cap, immediately
// records one thought used in the current window — a single call, so
// there is no check-vs-record race between concurrent submissions for the
// same session id.
func (g *Gate) Allow(sessionID string) bool {
	return g.limiterFor(sessionID).Allow()
}

func (g *Gate) limiterFor(sessionID string) *rate.Limiter {
	g.mu.RLock()
	if l, ok := g.limiters[sessionID]; ok {
		g.mu.RUnlock()
		return l
	}
	g.mu.RUnlock()

	g.mu.Lock()
	defer g.mu.Unlock()
	if l, ok := g.limiters[sessionID]; ok {
		return l
	}
	l := rate.NewLimiter(rate.Every(time.Minute/time.Duration(g.perMinute)), g.perMinute)
	g.limiters[sessionID] = l
	return l
}

// Forget drops a session's limiter, so the next Allow for that id starts
// with a fresh limiter. Tree eviction in the manager does not call it.
func (g *Gate) Forget(sessionID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.limiters, sessionID)
}

// Check runs sanitization, the block-list, and the rate limiter in order,
// returning the sanitized text on success or a SECURITY_ERROR otherwise.
func Check(sessionID, raw string, blockList []*regexp.Regexp, gate *Gate) (string, error) {
	sanitized := Sanitize(raw)

	if matched, pattern := MatchesBlockList(sanitized, blockList); matched {
		return "", thinkerr.Newf(thinkerr.Security, "blocked pattern matched: %s", pattern)
	}

	if !gate.Allow(sessionID) {
		return "", thinkerr.New(thinkerr.Security, "rate limit exceeded")
	}

	return sanitized, nil
}
