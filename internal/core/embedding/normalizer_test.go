package embedding

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/markdave123-py/Studya/internal/core/aierr"
)

type fakeProvider struct {
	vecs [][]float32
	err  error
	got  []string
}

func (f *fakeProvider) EmbedTexts(_ context.Context, texts []string) ([][]float32, error) {
	f.got = append(f.got, texts...)
	if f.err != nil {
		return nil, f.err
	}
	return f.vecs[:len(texts)], nil
}

func l2(v []float32) float64 {
	var s float64
	for _, x := range v {
		s += float64(x) * float64(x)
	}
	return math.Sqrt(s)
}

func TestEmbedBlankShortCircuits(t *testing.T) {
	p := &fakeProvider{}
	n := NewNormalizer(p, 1536)

	vec, err := n.Embed(context.Background(), "   \n\t ")
	require.NoError(t, err)
	assert.Len(t, vec, 1536)
	assert.Zero(t, l2(vec))
	assert.Empty(t, p.got, "provider must not be called for blank text")
}

func TestEmbedUnitNorm(t *testing.T) {
	raw := make([]float32, 1536)
	for i := range raw {
		raw[i] = float32(i%7) - 3
	}
	p := &fakeProvider{vecs: [][]float32{raw}}
	n := NewNormalizer(p, 1536)

	vec, err := n.Embed(context.Background(), "some text")
	require.NoError(t, err)
	require.Len(t, vec, 1536)
	assert.InDelta(t, 1.0, l2(vec), 1e-9)
}

func TestEmbedPadsNarrowProvider(t *testing.T) {
	p := &fakeProvider{vecs: [][]float32{{3, 4}}}
	n := NewNormalizer(p, 8)

	vec, err := n.Embed(context.Background(), "hi")
	require.NoError(t, err)
	require.Len(t, vec, 8)
	assert.InDelta(t, 0.6, float64(vec[0]), 1e-6)
	assert.InDelta(t, 0.8, float64(vec[1]), 1e-6)
	for _, x := range vec[2:] {
		assert.Zero(t, x)
	}
	assert.InDelta(t, 1.0, l2(vec), 1e-9)
}

func TestEmbedTruncatesWideProvider(t *testing.T) {
	raw := make([]float32, 3072)
	for i := range raw {
		raw[i] = 1
	}
	p := &fakeProvider{vecs: [][]float32{raw}}
	n := NewNormalizer(p, 1536)

	vec, err := n.Embed(context.Background(), "wide")
	require.NoError(t, err)
	require.Len(t, vec, 1536)
	// Norm is computed over the full raw vector before truncation.
	assert.InDelta(t, 1/math.Sqrt(3072), float64(vec[0]), 1e-9)
}

func TestEmbedZeroNormVector(t *testing.T) {
	p := &fakeProvider{vecs: [][]float32{make([]float32, 1536)}}
	n := NewNormalizer(p, 1536)

	vec, err := n.Embed(context.Background(), "text")
	require.NoError(t, err)
	assert.Zero(t, l2(vec))
}

func TestEmbedProviderError(t *testing.T) {
	p := &fakeProvider{err: errors.New("quota exceeded")}
	n := NewNormalizer(p, 1536)

	_, err := n.Embed(context.Background(), "text")
	require.Error(t, err)
	assert.True(t, errors.Is(err, aierr.ErrEmbedding))
}

func TestEmbedBatchSkipsBlanks(t *testing.T) {
	p := &fakeProvider{vecs: [][]float32{{1, 0}, {0, 2}}}
	n := NewNormalizer(p, 4)

	out, err := n.EmbedBatch(context.Background(), []string{"a", "", "b"})
	require.NoError(t, err)
	require.Len(t, out, 3)
	assert.InDelta(t, 1.0, l2(out[0]), 1e-9)
	assert.Zero(t, l2(out[1]))
	assert.InDelta(t, 1.0, l2(out[2]), 1e-9)
	assert.Len(t, p.got, 2)
}
