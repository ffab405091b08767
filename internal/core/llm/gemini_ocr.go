package llm

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"github.com/markdave123-py/Studya/internal/core"
)

const ocrPrompt = "Extract all readable text from this image. " +
	"Return the text only, preserving line breaks. If the image contains no text, return nothing."

// GeminiOCR reads text out of images (scanned pages, photos of notes) with a
// multimodal model.
type GeminiOCR struct {
	client    *genai.Client
	modelName string
}

func NewGeminiOCR(ctx context.Context, apiKey, modelName string) (*GeminiOCR, error) {
	if apiKey == "" {
		apiKey = os.Getenv("GEMINI_API_KEY")
	}
	cl, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, err
	}
	if modelName == "" {
		modelName = "gemini-1.5-flash"
	}
	return &GeminiOCR{client: cl, modelName: modelName}, nil
}

func (g *GeminiOCR) Close() error {
	if g.client != nil {
		return g.client.Close()
	}
	return nil
}

func (g *GeminiOCR) ExtractImageText(ctx context.Context, data []byte, mimeType string) (string, error) {
	format := strings.TrimPrefix(mimeType, "image/")
	if i := strings.Index(format, ";"); i >= 0 {
		format = format[:i]
	}

	m := g.client.GenerativeModel(g.modelName)
	resp, err := m.GenerateContent(ctx,
		genai.ImageData(format, data),
		genai.Text(ocrPrompt),
	)
	if err != nil {
		return "", fmt.Errorf("gemini ocr: %w", err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", nil
	}

	var b strings.Builder
	for _, p := range resp.Candidates[0].Content.Parts {
		if t, ok := p.(genai.Text); ok {
			b.WriteString(string(t))
		}
	}
	return b.String(), nil
}

var _ core.OCRProvider = (*GeminiOCR)(nil)
