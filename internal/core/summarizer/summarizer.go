// Package summarizer reduces long multi-file material into a bounded-size
// text the generation prompts can afford to carry.
package summarizer

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/time/rate"

	"github.com/markdave123-py/Studya/internal/core"
	"github.com/markdave123-py/Studya/internal/platform/logger"
)

// Config tunes the summarizer. Zero values fall back to the defaults below.
type Config struct {
	MaxFiles        int           // files considered per summary
	CharBudget      int           // global output budget across files
	PerFileCap      int           // chars of raw chunk text pulled per file
	DirectLimit     int           // under this, a file's text passes through unsummarized
	CoarseChunkSize int           // re-chunk size for the recursive pass
	FallbackSlice   int           // raw chars kept when one piece fails to summarize
	LLMDelay        time.Duration // pause between successive model calls
}

func (c Config) withDefaults() Config {
	if c.MaxFiles <= 0 {
		c.MaxFiles = 5
	}
	if c.CharBudget <= 0 {
		c.CharBudget = 60000
	}
	if c.PerFileCap <= 0 {
		c.PerFileCap = 120000
	}
	if c.DirectLimit <= 0 {
		c.DirectLimit = 12000
	}
	if c.CoarseChunkSize <= 0 {
		c.CoarseChunkSize = 10000
	}
	if c.FallbackSlice <= 0 {
		c.FallbackSlice = 2000
	}
	if c.LLMDelay <= 0 {
		c.LLMDelay = 1500 * time.Millisecond
	}
	return c
}

// File is one document's contribution: its display name and chunk texts in
// index order (the caller pulls a bounded number from storage).
type File struct {
	Name   string
	Chunks []string
}

type Summarizer struct {
	llm     core.LLMProvider
	cfg     Config
	limiter *rate.Limiter
	log     *logger.Logger
}

// NewSummarizer builds a summarizer whose model calls are paced at one per
// cfg.LLMDelay. The pacing is deliberate backpressure against provider rate
// limits, not an incidental sleep.
func NewSummarizer(llm core.LLMProvider, cfg Config, log *logger.Logger) *Summarizer {
	cfg = cfg.withDefaults()
	return &Summarizer{
		llm:     llm,
		cfg:     cfg,
		limiter: rate.NewLimiter(rate.Every(cfg.LLMDelay), 1),
		log:     log.With("component", "Summarizer"),
	}
}

const summarizePrompt = "You compress study material. Summarize the given text faithfully and densely. Keep definitions, formulas and key facts. Output plain text only."

// Summarize reduces the files into one bounded text, inserting a
// "--- FILE: <name> ---" separator before each file's contribution and
// truncating the last contribution to fit the global budget.
func (s *Summarizer) Summarize(ctx context.Context, files []File) (string, error) {
	var b strings.Builder
	remaining := s.cfg.CharBudget

	for i, f := range files {
		if i >= s.cfg.MaxFiles || remaining <= 0 {
			break
		}

		text, err := s.summarizeFile(ctx, f)
		if err != nil {
			return "", err
		}
		if text == "" {
			continue
		}

		sep := fmt.Sprintf("--- FILE: %s ---\n", f.Name)
		if len(sep) >= remaining {
			break
		}
		b.WriteString(sep)
		remaining -= len(sep)

		text = cutBytes(text, remaining)
		b.WriteString(text)
		b.WriteString("\n")
		remaining -= len(text) + 1
	}
	return b.String(), nil
}

// summarizeFile concatenates the file's chunks up to the per-file cap and
// either passes the text through (short files) or recursively summarizes
// coarse slices of it.
func (s *Summarizer) summarizeFile(ctx context.Context, f File) (string, error) {
	var b strings.Builder
	for _, c := range f.Chunks {
		if b.Len() >= s.cfg.PerFileCap {
			break
		}
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		b.WriteString(cutBytes(c, s.cfg.PerFileCap-b.Len()))
	}
	text := strings.TrimSpace(b.String())
	if text == "" {
		return "", nil
	}
	if len(text) <= s.cfg.DirectLimit {
		return text, nil
	}

	pieces := coarseChunks(text, s.cfg.CoarseChunkSize)
	parts := make([]string, 0, len(pieces))
	for _, piece := range pieces {
		if err := s.limiter.Wait(ctx); err != nil {
			return "", err
		}
		summary, err := s.llm.Generate(ctx, summarizePrompt, piece)
		if err != nil || strings.TrimSpace(summary) == "" {
			// One bad piece must not sink the whole summary; degrade to a
			// slice of the raw text.
			s.log.Warn("piece summarization failed, falling back to raw slice",
				"file", f.Name, "error", err)
			parts = append(parts, cutBytes(piece, s.cfg.FallbackSlice))
			continue
		}
		parts = append(parts, strings.TrimSpace(summary))
	}
	return strings.Join(parts, "\n"), nil
}

// coarseChunks slices text into CoarseChunkSize windows with no overlap.
// The summarizer re-chunks at a coarser grain than ingestion did.
func coarseChunks(text string, size int) []string {
	var out []string
	for len(text) > 0 {
		piece := cutBytes(text, size)
		if piece == "" {
			// A single rune wider than the window; keep it whole.
			_, n := utf8.DecodeRuneInString(text)
			piece = text[:n]
		}
		out = append(out, piece)
		text = text[len(piece):]
	}
	return out
}

// cutBytes truncates s to at most max bytes without splitting a rune.
// Budgets here are byte counts, so the cut backs off to the nearest rune
// boundary rather than switching to rune counting.
func cutBytes(s string, max int) string {
	if max <= 0 {
		return ""
	}
	if len(s) <= max {
		return s
	}
	for max > 0 && !utf8.RuneStart(s[max]) {
		max--
	}
	return s[:max]
}
