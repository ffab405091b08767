package assembler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/markdave123-py/Studya/internal/core"
	"github.com/markdave123-py/Studya/internal/models"
)

func fptr(f float64) *float64 { return &f }
func iptr(i int) *int         { return &i }
func sptr(s string) *string   { return &s }

func ragSource(docID string, idx int, score *float64) models.RetrievalSource {
	return models.RetrievalSource{
		Kind:       models.SourceKindRAG,
		Score:      score,
		DocumentID: sptr(docID),
		ChunkIndex: iptr(idx),
	}
}

func webSource(webIdx int, score *float64) models.RetrievalSource {
	return models.RetrievalSource{
		Kind:     models.SourceKindWeb,
		Score:    score,
		WebIndex: iptr(webIdx),
		Title:    sptr("result"),
		URL:      sptr("https://example.com"),
	}
}

func TestAssembleAttachesChunkPayload(t *testing.T) {
	sources := []models.RetrievalSource{ragSource("doc-1", 2, fptr(0.9))}
	chunks := []ChunkPayload{{DocumentID: "doc-1", ChunkIndex: 2, Content: "chunk text", Similarity: 0.9, Distance: 0.1}}

	out := Assemble(sources, chunks, nil)
	require.Len(t, out, 1)
	require.NotNil(t, out[0].Content)
	assert.Equal(t, "chunk text", *out[0].Content)
	assert.Equal(t, 0.9, *out[0].Similarity)
}

func TestAssembleRendersWithoutPayload(t *testing.T) {
	sources := []models.RetrievalSource{ragSource("doc-1", 5, fptr(0.4))}

	out := Assemble(sources, nil, nil)
	require.Len(t, out, 1)
	assert.Nil(t, out[0].Content)
	assert.Nil(t, out[0].Similarity)
	assert.Equal(t, "doc-1", *out[0].DocumentID)
}

func TestAssembleWebImageLookup(t *testing.T) {
	sources := []models.RetrievalSource{webSource(1, fptr(0.5))}
	web := []core.WebResult{
		{Title: "a", URL: "https://a"},
		{Title: "b", URL: "https://b", ImageURL: "https://b/img.png"},
	}

	out := Assemble(sources, nil, web)
	require.Len(t, out, 1)
	require.NotNil(t, out[0].ImageURL)
	assert.Equal(t, "https://b/img.png", *out[0].ImageURL)
}

func TestAssembleWebIndexOutOfRange(t *testing.T) {
	sources := []models.RetrievalSource{webSource(7, fptr(0.5))}
	out := Assemble(sources, nil, []core.WebResult{{Title: "a"}})
	require.Len(t, out, 1)
	assert.Nil(t, out[0].ImageURL)
}

func TestAssembleOrdering(t *testing.T) {
	sources := []models.RetrievalSource{
		ragSource("d", 0, nil),
		webSource(0, fptr(0.3)),
		ragSource("d", 1, fptr(0.8)),
		ragSource("d", 2, fptr(0.3)),
		webSource(1, nil),
	}

	out := Assemble(sources, nil, nil)
	require.Len(t, out, 5)

	assert.Equal(t, 0.8, *out[0].Score)
	// Tie at 0.3 keeps encounter order: the web source came first.
	assert.Equal(t, models.SourceKindWeb, out[1].Kind)
	assert.Equal(t, models.SourceKindRAG, out[2].Kind)
	// Nil scores are always last, also in encounter order.
	assert.Nil(t, out[3].Score)
	assert.Equal(t, models.SourceKindRAG, out[3].Kind)
	assert.Nil(t, out[4].Score)
	assert.Equal(t, models.SourceKindWeb, out[4].Kind)
}

func TestAssembleFieldExclusivity(t *testing.T) {
	sources := []models.RetrievalSource{
		ragSource("d", 0, fptr(1)),
		webSource(0, fptr(0.5)),
	}
	chunks := []ChunkPayload{{DocumentID: "d", ChunkIndex: 0, Content: "x"}}
	web := []core.WebResult{{Title: "t", URL: "https://t", ImageURL: "https://t/i.png"}}

	out := Assemble(sources, chunks, web)
	require.Len(t, out, 2)

	rag := out[0]
	assert.Nil(t, rag.WebIndex)
	assert.Nil(t, rag.URL)
	assert.Nil(t, rag.ImageURL)

	webC := out[1]
	assert.Nil(t, webC.DocumentID)
	assert.Nil(t, webC.ChunkIndex)
	assert.Nil(t, webC.Content)
}
