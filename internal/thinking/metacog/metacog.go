// Package metacog provides the stateless lexical-heuristic helpers used by
// the thinking-mode engine: tokenization, Jaccard similarity, circularity
// detection, reasoning-gap analysis, and keyword-weighted classifiers for
// complexity, domain, cognitive process, and meta-state. None of these
// reason about thought content beyond shallow keyword matching.
package metacog

import (
	"regexp"
	"strconv"
	"strings"
)

var stopWords = map[string]bool{
	"the": true, "and": true, "for": true, "that": true, "this": true,
	"with": true, "from": true, "have": true, "will": true, "your": true,
	"which": true, "about": true, "there": true, "their": true, "would": true,
	"could": true, "should": true, "been": true, "were": true, "they": true,
}

var wordPattern = regexp.MustCompile(`[a-z0-9]+`)

// Tokenize lowercases, strips punctuation, and drops short/stop words.
func Tokenize(text string) []string {
	lower := strings.ToLower(text)
	words := wordPattern.FindAllString(lower, -1)
	out := make([]string, 0, len(words))
	for _, w := range words {
		if len(w) <= 3 || stopWords[w] {
			continue
		}
		out = append(out, w)
	}
	return out
}

func toSet(tokens []string) map[string]bool {
	s := make(map[string]bool, len(tokens))
	for _, t := range tokens {
		s[t] = true
	}
	return s
}

// JaccardSimilarity computes |A∩B| / |A∪B| over token sets.
func JaccardSimilarity(a, b []string) float64 {
	setA, setB := toSet(a), toSet(b)
	if len(setA) == 0 && len(setB) == 0 {
		return 0
	}
	intersection := 0
	union := make(map[string]bool, len(setA)+len(setB))
	for t := range setA {
		union[t] = true
		if setB[t] {
			intersection++
		}
	}
	for t := range setB {
		union[t] = true
	}
	if len(union) == 0 {
		return 0
	}
	return float64(intersection) / float64(len(union))
}

// HistoryItem is the minimal view over a recorded thought that the
// metacognition helpers need.
type HistoryItem struct {
	Thought       string
	ThoughtNumber int
}

const circularityWindow = 4
const circularityThreshold = 0.6

// DetectCircularity compares the token set of the most recent thought
// against each of the preceding thoughts in a trailing window, returning a
// warning when similarity crosses the threshold.
func DetectCircularity(history []HistoryItem) *string {
	if len(history) < 2 {
		return nil
	}
	recent := history[len(history)-1]
	recentTokens := Tokenize(recent.Thought)

	start := len(history) - 1 - circularityWindow
	if start < 0 {
		start = 0
	}
	for i := start; i < len(history)-1; i++ {
		sim := JaccardSimilarity(recentTokens, Tokenize(history[i].Thought))
		if sim >= circularityThreshold {
			warning := "thought appears to repeat earlier reasoning (similarity " +
				strconv.FormatFloat(sim, 'f', 2, 64) + " with thought " + strconv.Itoa(history[i].ThoughtNumber) + ")"
			return &warning
		}
	}
	return nil
}

// Gap is one detected reasoning gap.
type Gap struct {
	Issue         string `json:"issue"`
	ThoughtNumber int    `json:"thoughtNumber"`
}

var conclusionKeywords = []string{"therefore", "thus", "conclude", "so,", "hence", "in conclusion"}
var evidenceMarkers = []string{"because", "since", "given that", "as shown", "due to", "based on"}

// AnalyzeReasoningGaps flags conclusions that arrive too early, or that use
// conclusion language without any evidence marker in the same thought or
// in either of the two thoughts before it.
func AnalyzeReasoningGaps(history []HistoryItem) []Gap {
	var gaps []Gap
	for i, item := range history {
		lower := strings.ToLower(item.Thought)
		isConclusion := containsAny(lower, conclusionKeywords)
		if !isConclusion {
			continue
		}
		if i < 2 {
			gaps = append(gaps, Gap{Issue: "conclusion follows fewer than two prior thoughts", ThoughtNumber: item.ThoughtNumber})
			continue
		}
		hasEvidence := containsAny(lower, evidenceMarkers)
		if !hasEvidence {
			for j := i - 1; j >= 0 && j >= i-2; j-- {
				if containsAny(strings.ToLower(history[j].Thought), evidenceMarkers) {
					hasEvidence = true
					break
				}
			}
		}
		if !hasEvidence {
			gaps = append(gaps, Gap{Issue: "conclusion lacks evidence markers in antecedent", ThoughtNumber: item.ThoughtNumber})
		}
	}
	return gaps
}

func containsAny(s string, patterns []string) bool {
	for _, p := range patterns {
		if strings.Contains(s, p) {
			return true
		}
	}
	return false
}

// Complexity is the bucket AnalyzeComplexity returns.
type Complexity struct {
	Bucket          string `json:"bucket"` // simple | moderate | complex
	RecommendedMode string `json:"recommendedMode"`
}

// AnalyzeComplexity buckets a history by length and recommends a starting
// thinking mode. Informational only.
func AnalyzeComplexity(history []HistoryItem) Complexity {
	n := len(history)
	totalTokens := 0
	for _, h := range history {
		totalTokens += len(Tokenize(h.Thought))
	}
	switch {
	case n <= 3 && totalTokens < 60:
		return Complexity{Bucket: "simple", RecommendedMode: "fast"}
	case n <= 8 && totalTokens < 200:
		return Complexity{Bucket: "moderate", RecommendedMode: "expert"}
	default:
		return Complexity{Bucket: "complex", RecommendedMode: "deep"}
	}
}

var domainKeywords = map[string][]string{
	"math":        {"equation", "theorem", "calculate", "proof", "algebra", "integral"},
	"code":        {"function", "bug", "compile", "variable", "algorithm", "refactor"},
	"science":     {"hypothesis", "experiment", "observation", "theory", "molecule"},
	"business":    {"revenue", "market", "customer", "strategy", "budget"},
	"writing":     {"narrative", "paragraph", "draft", "story", "essay"},
	"philosophy":  {"ethics", "argument", "premise", "fallacy", "epistemic"},
}

// DetectDomain scores keyword overlap against a fixed set of domains,
// returning the best match or "general" if nothing scores.
func DetectDomain(text string) string {
	lower := strings.ToLower(text)
	best, bestScore := "general", 0
	for domain, words := range domainKeywords {
		score := 0
		for _, w := range words {
			if strings.Contains(lower, w) {
				score++
			}
		}
		if score > bestScore {
			best, bestScore = domain, score
		}
	}
	return best
}

var cognitiveProcessKeywords = map[string][]string{
	"deductive":  {"therefore", "follows that", "must be", "necessarily"},
	"inductive":  {"pattern", "generally", "tends to", "usually"},
	"abductive":  {"best explanation", "most likely", "probably because"},
	"analogical": {"similar to", "like a", "analogous", "compare to"},
}

// DetectCognitiveProcess tags the reasoning style of a single thought.
func DetectCognitiveProcess(text string) string {
	lower := strings.ToLower(text)
	for process, words := range cognitiveProcessKeywords {
		for _, w := range words {
			if strings.Contains(lower, w) {
				return process
			}
		}
	}
	return "descriptive"
}

var metaStateKeywords = map[string][]string{
	"confused":  {"not sure", "unclear", "confusing", "don't understand"},
	"confident": {"clearly", "certainly", "definitely", "obviously"},
	"revising":  {"actually", "wait", "on second thought", "correction"},
	"exploring": {"what if", "perhaps", "maybe", "could also"},
}

// DetectMetaState tags the thinker's apparent meta-cognitive stance.
func DetectMetaState(text string) string {
	lower := strings.ToLower(text)
	for state, words := range metaStateKeywords {
		for _, w := range words {
			if strings.Contains(lower, w) {
				return state
			}
		}
	}
	return "neutral"
}
