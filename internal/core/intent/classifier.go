// Package intent decides whether a chat turn needs fresh retrieval, can
// reuse prior retrieval, or needs none at all.
//
// Classification is two-stage: a cheap rule pass first, and an LLM fallback
// only when the rules are inconclusive. The classifier never returns an
// error; every internal failure resolves to the safe default SEARCH, because
// under-triggering retrieval is worse than over-triggering it.
package intent

import (
	"context"
	"fmt"
	"strings"

	"github.com/markdave123-py/Studya/internal/core"
	"github.com/markdave123-py/Studya/internal/platform/logger"
)

// Mode is the classification result.
type Mode string

const (
	ModeNoSearch Mode = "no_search"
	ModeReuse    Mode = "reuse"
	ModeSearch   Mode = "search"

	// modeUnknown is internal: the rule stage could not decide.
	modeUnknown Mode = "unknown"
)

type Classifier struct {
	weights Weights
	llm     core.LLMProvider
	log     *logger.Logger
}

func NewClassifier(weights Weights, llm core.LLMProvider, log *logger.Logger) *Classifier {
	return &Classifier{weights: weights, llm: llm, log: log.With("component", "IntentClassifier")}
}

// Classify resolves the retrieval mode for one user message.
// recentHistory holds prior turns, most recent last; only the final two are
// shown to the fallback model.
func (c *Classifier) Classify(ctx context.Context, message string, hasPriorContext bool, recentHistory []string) Mode {
	if mode := c.classifyRules(message, hasPriorContext); mode != modeUnknown {
		return mode
	}
	return c.classifyLLM(ctx, message, hasPriorContext, recentHistory)
}

// classifyRules is the pure stage-one pass.
func (c *Classifier) classifyRules(message string, hasPriorContext bool) Mode {
	normalized := normalizeText(message)
	if normalized == "" {
		// Nothing to retrieve for.
		return ModeNoSearch
	}

	s := c.weights.scoreMessage(normalized, hasPriorContext)

	// Decision order matters: reuse wins only with prior context and only
	// when it beats the search signal.
	switch {
	case hasPriorContext && s.reuse >= c.weights.ReuseThreshold && s.reuse > s.search:
		return ModeReuse
	case s.noSearch >= c.weights.NoSearchThreshold && s.noSearch > s.search:
		return ModeNoSearch
	case s.search >= c.weights.SearchThreshold:
		return ModeSearch
	default:
		return modeUnknown
	}
}

const classifyPrompt = `You classify a user's chat message for a study assistant.
Answer with exactly one label:
NO_SEARCH - greeting or small talk, no document lookup needed
REUSE - follow-up that can be answered from the previously retrieved context
SEARCH - needs a fresh search over the user's documents

Reply with the label only.`

// classifyLLM is the stage-two fallback. Any failure defaults to SEARCH.
func (c *Classifier) classifyLLM(ctx context.Context, message string, hasPriorContext bool, recentHistory []string) Mode {
	if c.llm == nil {
		return ModeSearch
	}

	var b strings.Builder
	if n := len(recentHistory); n > 0 {
		start := n - 2
		if start < 0 {
			start = 0
		}
		b.WriteString("Recent conversation:\n")
		for _, h := range recentHistory[start:] {
			fmt.Fprintf(&b, "- %s\n", h)
		}
		b.WriteString("\n")
	}
	fmt.Fprintf(&b, "Message: %s", message)

	resp, err := c.llm.Generate(ctx, classifyPrompt, b.String())
	if err != nil {
		c.log.Warn("fallback classification failed, defaulting to search", "error", err)
		return ModeSearch
	}
	mode := parseLabel(resp)
	if mode == ModeReuse && !hasPriorContext {
		// With nothing retrieved before there is nothing to reuse; the same
		// gate the rule stage applies holds for the model's answer.
		return ModeSearch
	}
	return mode
}

// parseLabel picks the first label token occurring in the model response;
// no match defaults to SEARCH.
func parseLabel(resp string) Mode {
	upper := strings.ToUpper(resp)

	type cand struct {
		idx  int
		mode Mode
	}
	var best *cand
	for label, mode := range map[string]Mode{
		"NO_SEARCH": ModeNoSearch,
		"REUSE":     ModeReuse,
		"SEARCH":    ModeSearch,
	} {
		idx := strings.Index(upper, label)
		if idx < 0 {
			continue
		}
		// "SEARCH" also matches inside "NO_SEARCH"; prefer the longer label
		// at the same position.
		if mode == ModeSearch && strings.Index(upper, "NO_SEARCH") >= 0 && strings.Index(upper, "NO_SEARCH")+3 == idx {
			continue
		}
		if best == nil || idx < best.idx {
			best = &cand{idx: idx, mode: mode}
		}
	}
	if best == nil {
		return ModeSearch
	}
	return best.mode
}
