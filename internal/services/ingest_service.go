package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/markdave123-py/Studya/internal/core"
	"github.com/markdave123-py/Studya/internal/core/aierr"
	"github.com/markdave123-py/Studya/internal/core/chunker"
	"github.com/markdave123-py/Studya/internal/core/embedding"
	"github.com/markdave123-py/Studya/internal/core/extraction"
	"github.com/markdave123-py/Studya/internal/jobs"
	"github.com/markdave123-py/Studya/internal/models"
	"github.com/markdave123-py/Studya/internal/platform/logger"
)

// embedBatchSize bounds how many chunk texts go to the provider per call.
const embedBatchSize = 16

// IngestInput is the job input for an ingestion run.
type IngestInput struct {
	DocumentID string `json:"document_id"`
}

// IngestService turns an approved document into searchable chunks:
// fetch -> extract -> chunk -> embed -> persist, all or nothing.
type IngestService struct {
	db        core.DbClient
	obj       core.ObjectClient
	extractor *extraction.Extractor
	embedder  *embedding.Normalizer
	log       *logger.Logger
}

func NewIngestService(db core.DbClient, obj core.ObjectClient, extractor *extraction.Extractor, embedder *embedding.Normalizer, log *logger.Logger) *IngestService {
	return &IngestService{
		db:        db,
		obj:       obj,
		extractor: extractor,
		embedder:  embedder,
		log:       log.With("component", "IngestService"),
	}
}

// Handle executes one ingestion job. Registered with the dispatcher under
// the ingest and video job kinds.
func (s *IngestService) Handle(ctx context.Context, run *jobs.Run) (any, error) {
	// Extraction and embedding can outlive a short request context.
	proctx, cancel := context.WithTimeout(ctx, 10*time.Minute)
	defer cancel()

	var in IngestInput
	if err := run.Input(&in); err != nil {
		return nil, aierr.Validation("bad ingest input: %v", err)
	}
	if in.DocumentID == "" {
		return nil, aierr.Validation("ingest input missing document_id")
	}

	doc, err := s.db.GetDocumentByID(proctx, in.DocumentID)
	if err != nil {
		return nil, fmt.Errorf("load document: %w", err)
	}
	if doc == nil {
		return nil, fmt.Errorf("%w: document %s", aierr.ErrNotFound, in.DocumentID)
	}

	// The status flip is the advisory lock: only one worker wins the claim,
	// and only an approved document may start.
	claimed, err := s.db.ClaimDocument(proctx, doc.ID, models.DocStatusApproved)
	if err != nil {
		return nil, fmt.Errorf("claim document: %w", err)
	}
	if !claimed {
		return nil, fmt.Errorf("document %s not in approved state", doc.ID)
	}

	stats, err := s.process(proctx, run, doc)
	if err != nil {
		if uerr := s.db.UpdateDocumentStatus(proctx, doc.ID, models.DocStatusFailed); uerr != nil {
			s.log.Error("failed status not persisted", "document_id", doc.ID, "error", uerr)
		}
		return nil, err
	}
	return stats, nil
}

func (s *IngestService) process(ctx context.Context, run *jobs.Run, doc *models.Document) (*jobs.IngestStats, error) {
	// A re-ingested document must never serve stale chunks mid-run, and a
	// failed run must leave zero chunks behind. Clear everything up front and
	// persist only on full success.
	if err := s.db.SetDocumentFlags(ctx, doc.ID, false, false); err != nil {
		return nil, fmt.Errorf("reset flags: %w", err)
	}
	if err := s.db.DeleteDocumentChunks(ctx, doc.ID); err != nil {
		return nil, fmt.Errorf("clear chunks: %w", err)
	}

	run.Progress(ctx, "extracting", 5, "extracting text")
	text, err := s.extractText(ctx, doc)
	if err != nil {
		return nil, err
	}
	if err := s.db.SetDocumentFlags(ctx, doc.ID, true, false); err != nil {
		return nil, fmt.Errorf("set extracted flag: %w", err)
	}

	if err := chunker.Validate(doc.ChunkSize, doc.ChunkOverlap); err != nil {
		return nil, err
	}
	pieces := chunker.Chunk(text, doc.ChunkSize, doc.ChunkOverlap)
	run.Progress(ctx, "chunking", 25, fmt.Sprintf("%d chunks", len(pieces)))

	vectors, err := s.embedAll(ctx, run, pieces)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	rows := make([]models.DocumentChunk, len(pieces))
	for i := range pieces {
		rows[i] = models.DocumentChunk{
			ID:         uuid.NewString(),
			DocumentID: doc.ID,
			ChunkIndex: i,
			Text:       pieces[i],
			Embedding:  vectors[i],
			CreatedAt:  now,
		}
	}

	run.Progress(ctx, "persisting", 90, "writing chunks")
	if err := s.db.ReplaceDocumentChunks(ctx, doc.ID, rows); err != nil {
		return nil, fmt.Errorf("persist chunks: %w", err)
	}
	if err := s.db.SetDocumentFlags(ctx, doc.ID, true, true); err != nil {
		return nil, fmt.Errorf("set built flag: %w", err)
	}
	if err := s.db.UpdateDocumentStatus(ctx, doc.ID, models.DocStatusDone); err != nil {
		return nil, fmt.Errorf("finish document: %w", err)
	}

	s.log.Info("document ingested", "document_id", doc.ID, "chunks", len(rows), "chars", len(text))
	return &jobs.IngestStats{
		Kind:       models.JobKindIngest,
		ChunkCount: len(rows),
		TextChars:  len(text),
	}, nil
}

func (s *IngestService) extractText(ctx context.Context, doc *models.Document) (string, error) {
	if doc.SourceType == "video" {
		return s.extractor.ExtractVideo(ctx, doc.StorageURL)
	}

	bucket, key := parseS3URL(doc.StorageURL)
	data, err := s.obj.GetFile(ctx, bucket, key)
	if err != nil {
		return "", fmt.Errorf("fetch object: %w", err)
	}
	return s.extractor.Extract(ctx, data, doc.ContentType)
}

// embedAll embeds every chunk before anything is written. A provider failure
// on any batch aborts the whole run with nothing persisted.
func (s *IngestService) embedAll(ctx context.Context, run *jobs.Run, pieces []string) ([][]float32, error) {
	vectors := make([][]float32, 0, len(pieces))
	rep := run.Reporter("embedding", 30)

	for start := 0; start < len(pieces); start += embedBatchSize {
		end := start + embedBatchSize
		if end > len(pieces) {
			end = len(pieces)
		}
		batch, err := s.embedder.EmbedBatch(ctx, pieces[start:end])
		if err != nil {
			return nil, err
		}
		vectors = append(vectors, batch...)
		rep.UpdateRange(ctx, end, len(pieces), 30, 85, fmt.Sprintf("embedded %d/%d", end, len(pieces)))
	}
	return vectors, nil
}

// parseS3URL extracts the bucket and key from a virtual-hosted style S3 URL.
// Example: https://my-bucket.s3.us-east-2.amazonaws.com/path/to/file.pdf
func parseS3URL(u string) (bucket, key string) {
	hostPath := strings.SplitN(strings.TrimPrefix(u, "https://"), "/", 2)
	host := hostPath[0]
	if len(hostPath) == 2 {
		key = hostPath[1]
	}
	parts := strings.Split(host, ".")
	if len(parts) > 0 {
		bucket = parts[0]
	}
	return bucket, key
}
