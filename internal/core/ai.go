package core

import "context"

// EmbeddingProvider returns raw vectors of the provider's native width.
// Post-processing to the fixed storage dimension happens in
// internal/core/embedding, not here.
type EmbeddingProvider interface {
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)
}

type LLMProvider interface {
	Generate(ctx context.Context, systemPrompt string, userPrompt string) (string, error)
}

// OCRProvider extracts text from image bytes (scanned pages, photos).
type OCRProvider interface {
	ExtractImageText(ctx context.Context, data []byte, mimeType string) (string, error)
}

// CaptionSegment is one subtitle line with its start offset in seconds.
type CaptionSegment struct {
	StartSec float64
	Text     string
}

// TranscriptProvider pulls the caption track for a video URL. Segments come
// back in timestamp order and may still contain rolling duplicates; the
// extraction layer merges those before joining into plain text.
type TranscriptProvider interface {
	ExtractCaptions(ctx context.Context, videoURL string) ([]CaptionSegment, error)
}

// WebResult is one hit from the web search provider.
type WebResult struct {
	Title    string `json:"title"`
	URL      string `json:"url"`
	Snippet  string `json:"snippet"`
	ImageURL string `json:"image_url,omitempty"`
}

type WebSearchProvider interface {
	Search(ctx context.Context, query string, limit int) ([]WebResult, error)
}
