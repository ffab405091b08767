// Package assembler merges persisted citations with the raw retrieval
// payloads used to answer a turn, producing the ordered source list a client
// renders under a generated answer.
package assembler

import (
	"sort"

	"github.com/markdave123-py/Studya/internal/core"
	"github.com/markdave123-py/Studya/internal/models"
)

// ChunkPayload is the raw semantic-search hit for a (document, chunk-index)
// pair, as returned by the vector search at answer time.
type ChunkPayload struct {
	DocumentID string
	ChunkIndex int
	Content    string
	Similarity float64
	Distance   float64
}

// Citation is one display-ready source. RAG fields and web fields are
// mutually exclusive; a citation still renders when its raw payload is gone
// (Content/Similarity/Distance or ImageURL stay nil).
type Citation struct {
	Kind  string   `json:"kind"`
	Score *float64 `json:"score,omitempty"`

	DocumentID *string  `json:"document_id,omitempty"`
	ChunkIndex *int     `json:"chunk_index,omitempty"`
	Content    *string  `json:"content,omitempty"`
	Similarity *float64 `json:"similarity,omitempty"`
	Distance   *float64 `json:"distance,omitempty"`

	WebIndex *int    `json:"web_index,omitempty"`
	Title    *string `json:"title,omitempty"`
	URL      *string `json:"url,omitempty"`
	ImageURL *string `json:"image_url,omitempty"`
}

// Assemble joins persisted sources against the raw retrieval payloads and
// orders them by descending score; nil scores sort last, ties keep their
// encounter order.
func Assemble(sources []models.RetrievalSource, chunks []ChunkPayload, webResults []core.WebResult) []Citation {
	byKey := make(map[chunkKey]*ChunkPayload, len(chunks))
	for i := range chunks {
		byKey[chunkKey{chunks[i].DocumentID, chunks[i].ChunkIndex}] = &chunks[i]
	}

	out := make([]Citation, 0, len(sources))
	for _, src := range sources {
		switch src.Kind {
		case models.SourceKindRAG:
			out = append(out, ragCitation(src, byKey))
		case models.SourceKindWeb:
			out = append(out, webCitation(src, webResults))
		}
	}

	// SliceStable keeps encounter order for equal scores.
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i].Score, out[j].Score
		switch {
		case a == nil:
			return false
		case b == nil:
			return true
		default:
			return *a > *b
		}
	})
	return out
}

type chunkKey struct {
	docID string
	index int
}

func ragCitation(src models.RetrievalSource, byKey map[chunkKey]*ChunkPayload) Citation {
	c := Citation{
		Kind:       models.SourceKindRAG,
		Score:      src.Score,
		DocumentID: src.DocumentID,
		ChunkIndex: src.ChunkIndex,
	}
	if src.DocumentID == nil || src.ChunkIndex == nil {
		return c
	}
	if raw, ok := byKey[chunkKey{*src.DocumentID, *src.ChunkIndex}]; ok {
		content := raw.Content
		sim := raw.Similarity
		dist := raw.Distance
		c.Content = &content
		c.Similarity = &sim
		c.Distance = &dist
	}
	return c
}

func webCitation(src models.RetrievalSource, webResults []core.WebResult) Citation {
	c := Citation{
		Kind:     models.SourceKindWeb,
		Score:    src.Score,
		WebIndex: src.WebIndex,
		Title:    src.Title,
		URL:      src.URL,
	}
	if src.WebIndex == nil {
		return c
	}
	if i := *src.WebIndex; i >= 0 && i < len(webResults) {
		if img := webResults[i].ImageURL; img != "" {
			c.ImageURL = &img
		}
	}
	return c
}
