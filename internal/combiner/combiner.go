package combiner

import (
	"strings"
	"sync"

	"github.com/mfratelli/dualgate/internal/channel"
	"github.com/mfratelli/dualgate/internal/config"
)

// Combination methods.
const (
	MethodConcatenate    = "concatenate"
	MethodPreferSurface  = "prefer-surface"
	MethodPreferDeep     = "prefer-deep"
	MethodAugmentSurface = "augment-surface"
	MethodAugmentDeep    = "augment-deep"
	MethodSurfaceOnly    = "surface-only"
	MethodDeepOnly       = "deep-only"
	MethodNone           = "none"
)

// leadLimit caps the surface lead section of an augment-surface merge.
const leadLimit = 500

const apologyPayload = "Sorry, both processing channels failed to produce a response. Please try again."

// PerChannel carries the normalized outcome of each channel in the
// combined response.
type PerChannel struct {
	Surface channel.Result `json:"surface"`
	Deep    channel.Result `json:"deep"`
}

// CombinedResult is the single merged response for one request.
// Created exactly once per admitted request and not persisted.
type CombinedResult struct {
	Success           bool       `json:"success"`
	CombinationMethod string     `json:"combinationMethod"`
	MergedPayload     string     `json:"mergedPayload"`
	PerChannel        PerChannel `json:"perChannel"`
	TotalLatencyMs    int64      `json:"totalLatencyMs"`
}

// Combiner merges two channel results according to the configured
// strategy. Safe for concurrent use; config may be hot-reloaded.
type Combiner struct {
	mu     sync.RWMutex
	cfg    config.ResponseConfig
	scorer LineScorer
}

func New(cfg config.ResponseConfig, scorer LineScorer) *Combiner {
	if scorer == nil {
		scorer = NewKeywordScorer()
	}
	return &Combiner{cfg: cfg, scorer: scorer}
}

// UpdateConfig applies a reloaded response configuration.
func (c *Combiner) UpdateConfig(cfg config.ResponseConfig) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cfg = cfg
}

// Combine produces the one CombinedResult for a request. input is the
// original request text, used for the domain override.
func (c *Combiner) Combine(input string, surface, deep channel.Result, totalLatencyMs int64) CombinedResult {
	c.mu.RLock()
	cfg := c.cfg
	c.mu.RUnlock()

	out := CombinedResult{
		PerChannel:     PerChannel{Surface: surface, Deep: deep},
		TotalLatencyMs: totalLatencyMs,
	}

	switch {
	case !surface.Success && !deep.Success:
		// Single terminal failure state: both errors carried, plus a
		// user-facing apology.
		out.CombinationMethod = MethodNone
		out.MergedPayload = apologyPayload
		return out
	case !surface.Success:
		out.Success = true
		out.CombinationMethod = MethodDeepOnly
		out.MergedPayload = deep.Payload
		return out
	case !deep.Success:
		out.Success = true
		out.CombinationMethod = MethodSurfaceOnly
		out.MergedPayload = surface.Payload
		return out
	}

	method := cfg.CombinationMethod
	if method == "" {
		method = MethodConcatenate
	}
	// Domains that benefit from exploratory reasoning override the
	// configured default.
	if matchesDomain(input, cfg.PreferDeepDomains) {
		method = MethodPreferDeep
	}

	out.Success = true
	out.CombinationMethod = method
	switch method {
	case MethodPreferSurface:
		out.MergedPayload = surface.Payload
	case MethodPreferDeep:
		out.MergedPayload = deep.Payload
	case MethodAugmentSurface:
		out.MergedPayload = c.augmentSurface(surface.Payload, deep.Payload)
	case MethodAugmentDeep:
		out.MergedPayload = c.augmentDeep(surface.Payload, deep.Payload)
	default:
		out.CombinationMethod = MethodConcatenate
		out.MergedPayload = surface.Payload + "\n\n---\n\n" + deep.Payload
	}
	return out
}

func matchesDomain(input string, domains []string) bool {
	lower := strings.ToLower(input)
	for _, d := range domains {
		if d != "" && strings.Contains(lower, strings.ToLower(d)) {
			return true
		}
	}
	return false
}

// augmentSurface leads with the surface answer and appends the deep
// channel's insight lines with their context. The two channels have
// asymmetric roles: naive concatenation would bury the structured
// answer under the reasoning.
func (c *Combiner) augmentSurface(surface, deep string) string {
	lead := leadSection(surface, leadLimit)

	var insights []string
	scored := ScoreLines(c.scorer, deep)
	consumed := make(map[int]bool)
	for i, sl := range scored {
		if sl.Score <= 0 || consumed[i] {
			continue
		}
		insights = append(insights, sl.Text)
		consumed[i] = true
		// Up to 3 following lines of context, stopping at a blank.
		for j := i + 1; j <= i+3 && j < len(scored); j++ {
			if strings.TrimSpace(scored[j].Text) == "" {
				break
			}
			insights = append(insights, scored[j].Text)
			consumed[j] = true
		}
	}

	if len(insights) == 0 {
		// No insight lines found: fall back to the deep payload's
		// opening lines.
		deepLines := strings.Split(deep, "\n")
		if len(deepLines) > 5 {
			deepLines = deepLines[:5]
		}
		insights = deepLines
	}

	return lead + "\n\n" + strings.Join(insights, "\n")
}

// augmentDeep is the symmetric inverse: lead with the reasoning, then
// append the surface payload's structured lines.
func (c *Combiner) augmentDeep(surface, deep string) string {
	var structured []string
	for _, line := range strings.Split(surface, "\n") {
		if isStructuredLine(line) {
			structured = append(structured, line)
		}
	}
	if len(structured) == 0 {
		return deep
	}
	return deep + "\n\nAdditional Information:\n" + strings.Join(structured, "\n")
}

// leadSection returns the first run of non-empty lines, capped at
// limit characters.
func leadSection(text string, limit int) string {
	var lead []string
	size := 0
	started := false
	for _, line := range strings.Split(text, "\n") {
		if strings.TrimSpace(line) == "" {
			if started {
				break
			}
			continue
		}
		if size+len(line) > limit {
			break
		}
		lead = append(lead, line)
		size += len(line)
		started = true
	}
	return strings.Join(lead, "\n")
}

func isStructuredLine(line string) bool {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" {
		return false
	}
	switch trimmed[0] {
	case '-', '*':
		return true
	}
	if trimmed[0] >= '0' && trimmed[0] <= '9' {
		if i := strings.IndexAny(trimmed, ".)"); i > 0 && i <= 3 {
			return true
		}
	}
	return strings.ContainsAny(trimmed, ":=")
}
