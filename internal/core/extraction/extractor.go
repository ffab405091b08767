// Package extraction converts stored documents and video references into
// plain UTF-8 text. Office formats and text PDFs go through docconv; images
// and scanned pages go through the OCR provider; videos go through the
// transcript provider with rolling-caption merging.
package extraction

import (
	"bytes"
	"context"
	"strings"

	"code.sajari.com/docconv"

	"github.com/markdave123-py/Studya/internal/core"
	"github.com/markdave123-py/Studya/internal/core/aierr"
	"github.com/markdave123-py/Studya/internal/platform/logger"
)

type Extractor struct {
	ocr            core.OCRProvider
	transcripts    core.TranscriptProvider
	useReadability bool
	log            *logger.Logger
}

func NewExtractor(ocr core.OCRProvider, transcripts core.TranscriptProvider, useReadability bool, log *logger.Logger) *Extractor {
	return &Extractor{
		ocr:            ocr,
		transcripts:    transcripts,
		useReadability: useReadability,
		log:            log.With("component", "Extractor"),
	}
}

// Extract returns the text content of one stored file. A whitespace-only
// result is a failure, never a success: downstream stages must not run on
// empty text.
func (e *Extractor) Extract(ctx context.Context, data []byte, contentType string) (string, error) {
	var (
		text string
		err  error
	)
	if isImageType(contentType) {
		text, err = e.extractImage(ctx, data, contentType)
	} else {
		text, err = e.extractDocument(ctx, data, contentType)
	}
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(text) == "" {
		return "", aierr.ErrEmptyExtraction
	}
	return text, nil
}

// ExtractVideo pulls the caption track for a video URL and joins it into
// plain text after merging rolling segments.
func (e *Extractor) ExtractVideo(ctx context.Context, videoURL string) (string, error) {
	if e.transcripts == nil {
		return "", aierr.Extraction("no transcript provider configured")
	}
	segments, err := e.transcripts.ExtractCaptions(ctx, videoURL)
	if err != nil {
		return "", aierr.Extraction("captions for %s: %v", videoURL, err)
	}
	text := JoinCaptions(MergeCaptions(segments))
	if strings.TrimSpace(text) == "" {
		return "", aierr.ErrEmptyExtraction
	}
	return text, nil
}

func (e *Extractor) extractDocument(ctx context.Context, data []byte, contentType string) (string, error) {
	res, err := docconv.Convert(bytes.NewReader(data), contentType, e.useReadability)
	if err != nil {
		return "", aierr.Extraction("docconv %s: %v", contentType, err)
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	// A text-bearing PDF converts fine; a scanned one comes back blank.
	// Fall through to OCR in that case instead of failing outright.
	if strings.TrimSpace(res.Body) == "" && e.ocr != nil && contentType == "application/pdf" {
		e.log.Debug("docconv returned empty body, retrying with OCR", "content_type", contentType)
		return e.extractImage(ctx, data, contentType)
	}
	return res.Body, nil
}

func (e *Extractor) extractImage(ctx context.Context, data []byte, contentType string) (string, error) {
	if e.ocr == nil {
		return "", aierr.Extraction("no OCR provider for %s", contentType)
	}
	text, err := e.ocr.ExtractImageText(ctx, data, contentType)
	if err != nil {
		return "", aierr.Extraction("ocr %s: %v", contentType, err)
	}
	return text, nil
}

func isImageType(contentType string) bool {
	return strings.HasPrefix(contentType, "image/")
}
