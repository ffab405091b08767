// Package embedding post-processes provider vectors into the canonical
// fixed-dimension, unit-norm representation stored in pgvector.
//
// The target dimension is a system-wide constant chosen independently of the
// provider's native width, so a provider change never forces a column
// migration.
package embedding

import (
	"context"
	"math"
	"strings"

	"github.com/markdave123-py/Studya/internal/core"
	"github.com/markdave123-py/Studya/internal/core/aierr"
)

// DefaultTargetDim is the storage/index width for all embeddings.
const DefaultTargetDim = 1536

type Normalizer struct {
	provider  core.EmbeddingProvider
	targetDim int
}

func NewNormalizer(provider core.EmbeddingProvider, targetDim int) *Normalizer {
	if targetDim <= 0 {
		targetDim = DefaultTargetDim
	}
	return &Normalizer{provider: provider, targetDim: targetDim}
}

func (n *Normalizer) TargetDim() int { return n.targetDim }

// Embed returns the unit-norm vector of exactly targetDim components for one
// text. Blank input short-circuits to the zero vector without a provider call.
func (n *Normalizer) Embed(ctx context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return make([]float32, n.targetDim), nil
	}
	vecs, err := n.provider.EmbedTexts(ctx, []string{text})
	if err != nil {
		return nil, aierr.Embedding(err)
	}
	if len(vecs) != 1 {
		return nil, aierr.Validation("embedding provider returned %d vectors for 1 text", len(vecs))
	}
	return n.normalize(vecs[0]), nil
}

// EmbedBatch embeds many texts in one provider call. Blank entries map to
// zero vectors; the provider only sees the non-blank ones.
func (n *Normalizer) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))

	var live []string
	var liveIdx []int
	for i, t := range texts {
		if strings.TrimSpace(t) == "" {
			out[i] = make([]float32, n.targetDim)
			continue
		}
		live = append(live, t)
		liveIdx = append(liveIdx, i)
	}
	if len(live) == 0 {
		return out, nil
	}

	vecs, err := n.provider.EmbedTexts(ctx, live)
	if err != nil {
		return nil, aierr.Embedding(err)
	}
	if len(vecs) != len(live) {
		return nil, aierr.Validation("embedding provider returned %d vectors for %d texts", len(vecs), len(live))
	}
	for k, v := range vecs {
		out[liveIdx[k]] = n.normalize(v)
	}
	return out, nil
}

// normalize divides the first min(rawDim, targetDim) components by the L2
// norm of the full raw vector, then pads or truncates to targetDim. A
// zero-norm raw vector maps to the zero vector.
func (n *Normalizer) normalize(raw []float32) []float32 {
	out := make([]float32, n.targetDim)

	var sum float64
	for _, v := range raw {
		sum += float64(v) * float64(v)
	}
	norm := math.Sqrt(sum)
	if norm == 0 {
		return out
	}

	keep := len(raw)
	if keep > n.targetDim {
		keep = n.targetDim
	}
	for i := 0; i < keep; i++ {
		out[i] = float32(float64(raw[i]) / norm)
	}
	return out
}
