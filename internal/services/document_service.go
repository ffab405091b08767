package services

import (
	"context"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/markdave123-py/Studya/internal/core"
	"github.com/markdave123-py/Studya/internal/core/aierr"
	"github.com/markdave123-py/Studya/internal/core/chunker"
	"github.com/markdave123-py/Studya/internal/jobs"
	"github.com/markdave123-py/Studya/internal/models"
	"github.com/markdave123-py/Studya/internal/platform/logger"
	"github.com/markdave123-py/Studya/internal/progress"
)

// DocumentService owns the document lifecycle up to the point where a job
// takes over: upload, approval, retry, deletion.
type DocumentService struct {
	db         core.DbClient
	storage    core.ObjectClient
	dispatcher *jobs.Dispatcher
	bus        progress.Bus
	bucket     string

	defaultChunkSize    int
	defaultChunkOverlap int

	log *logger.Logger
}

func NewDocumentService(db core.DbClient, storage core.ObjectClient, dispatcher *jobs.Dispatcher, bus progress.Bus, bucket string, defaultChunkSize, defaultChunkOverlap int, log *logger.Logger) *DocumentService {
	return &DocumentService{
		db:                  db,
		storage:             storage,
		dispatcher:          dispatcher,
		bus:                 bus,
		bucket:              bucket,
		defaultChunkSize:    defaultChunkSize,
		defaultChunkOverlap: defaultChunkOverlap,
		log:                 log.With("component", "DocumentService"),
	}
}

// Upload stores the file and creates the document in pending state. Chunking
// configuration is validated here, before any job exists; zero values take
// the configured defaults.
func (s *DocumentService) Upload(ctx context.Context, userID, notebookID, filename, contentType string, data []byte, chunkSize, chunkOverlap int) (*models.Document, error) {
	if err := s.checkNotebook(ctx, userID, notebookID); err != nil {
		return nil, err
	}

	if chunkSize == 0 {
		chunkSize = s.defaultChunkSize
	}
	if chunkOverlap == 0 {
		chunkOverlap = s.defaultChunkOverlap
	}
	if err := chunker.Validate(chunkSize, chunkOverlap); err != nil {
		return nil, err
	}

	docID := uuid.NewString()
	key := s.objectKey(userID, docID, filename)

	url, err := s.storage.UploadFile(ctx, s.bucket, key, data, contentType)
	if err != nil {
		return nil, fmt.Errorf("upload: %w", err)
	}

	now := time.Now()
	doc := &models.Document{
		ID:           docID,
		NotebookID:   notebookID,
		UserID:       userID,
		FileName:     filename,
		StorageURL:   url,
		SourceType:   "upload",
		ContentType:  contentType,
		ChunkSize:    chunkSize,
		ChunkOverlap: chunkOverlap,
		Status:       models.DocStatusPending,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.db.CreateDocument(ctx, doc); err != nil {
		return nil, fmt.Errorf("create document: %w", err)
	}
	return doc, nil
}

// AddVideo registers a video reference; no bytes are stored, the transcript
// is fetched at ingestion time.
func (s *DocumentService) AddVideo(ctx context.Context, userID, notebookID, videoURL, title string, chunkSize, chunkOverlap int) (*models.Document, error) {
	if err := s.checkNotebook(ctx, userID, notebookID); err != nil {
		return nil, err
	}
	if strings.TrimSpace(videoURL) == "" {
		return nil, aierr.Validation("empty video url")
	}

	if chunkSize == 0 {
		chunkSize = s.defaultChunkSize
	}
	if chunkOverlap == 0 {
		chunkOverlap = s.defaultChunkOverlap
	}
	if err := chunker.Validate(chunkSize, chunkOverlap); err != nil {
		return nil, err
	}
	if title == "" {
		title = videoURL
	}

	now := time.Now()
	doc := &models.Document{
		ID:           uuid.NewString(),
		NotebookID:   notebookID,
		UserID:       userID,
		FileName:     title,
		StorageURL:   videoURL,
		SourceType:   "video",
		ChunkSize:    chunkSize,
		ChunkOverlap: chunkOverlap,
		Status:       models.DocStatusPending,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.db.CreateDocument(ctx, doc); err != nil {
		return nil, fmt.Errorf("create document: %w", err)
	}
	return doc, nil
}

// Approve moves a pending document to approved and queues its ingestion job.
func (s *DocumentService) Approve(ctx context.Context, userID, docID string) (*models.AiSet, error) {
	doc, err := s.ownedDocument(ctx, userID, docID)
	if err != nil {
		return nil, err
	}
	if doc.Status != models.DocStatusPending {
		return nil, aierr.Validation("document %s is %s, only pending documents can be approved", docID, doc.Status)
	}
	if err := s.db.UpdateDocumentStatus(ctx, docID, models.DocStatusApproved); err != nil {
		return nil, err
	}
	return s.submitIngest(ctx, doc)
}

// Reject marks a pending document as rejected; it never gets ingested.
func (s *DocumentService) Reject(ctx context.Context, userID, docID string) error {
	doc, err := s.ownedDocument(ctx, userID, docID)
	if err != nil {
		return err
	}
	if doc.Status != models.DocStatusPending {
		return aierr.Validation("document %s is %s, only pending documents can be rejected", docID, doc.Status)
	}
	return s.db.UpdateDocumentStatus(ctx, docID, models.DocStatusRejected)
}

// Retry re-runs ingestion for a failed document. The job deletes any partial
// state and redoes the whole pipeline.
func (s *DocumentService) Retry(ctx context.Context, userID, docID string) (*models.AiSet, error) {
	doc, err := s.ownedDocument(ctx, userID, docID)
	if err != nil {
		return nil, err
	}
	if doc.Status != models.DocStatusFailed {
		return nil, aierr.Validation("document %s is %s, only failed documents can be retried", docID, doc.Status)
	}
	if err := s.db.UpdateDocumentStatus(ctx, docID, models.DocStatusApproved); err != nil {
		return nil, err
	}
	return s.submitIngest(ctx, doc)
}

func (s *DocumentService) Get(ctx context.Context, userID, docID string) (*models.Document, error) {
	return s.ownedDocument(ctx, userID, docID)
}

func (s *DocumentService) ListByNotebook(ctx context.Context, userID, notebookID string) ([]models.Document, error) {
	if err := s.checkNotebook(ctx, userID, notebookID); err != nil {
		return nil, err
	}
	return s.db.ListDocumentsByNotebook(ctx, notebookID)
}

// Delete removes the document, its chunks (cascade) and the stored object,
// then announces the deletion on the notebook topic.
func (s *DocumentService) Delete(ctx context.Context, userID, docID string) error {
	doc, err := s.ownedDocument(ctx, userID, docID)
	if err != nil {
		return err
	}

	if doc.SourceType == "upload" {
		bucket, key := parseS3URL(doc.StorageURL)
		if err := s.storage.DeleteFile(ctx, bucket, key); err != nil {
			// The row still goes; a dangling object is recoverable, a
			// dangling row is user-visible.
			s.log.Warn("stored object not deleted", "document_id", docID, "error", err)
		}
	}
	if err := s.db.DeleteDocument(ctx, docID); err != nil {
		return err
	}

	if s.bus != nil {
		_ = s.bus.PublishLifecycle(ctx, progress.LifecycleEvent{
			NotebookID: doc.NotebookID,
			JobID:      docID,
			Kind:       progress.LifecycleDeleted,
			At:         time.Now(),
		})
	}
	return nil
}

func (s *DocumentService) submitIngest(ctx context.Context, doc *models.Document) (*models.AiSet, error) {
	kind := models.JobKindIngest
	if doc.SourceType == "video" {
		kind = models.JobKindVideo
	}
	set, err := s.dispatcher.Submit(ctx, doc.NotebookID, doc.UserID, kind, IngestInput{DocumentID: doc.ID})
	if err != nil {
		return nil, fmt.Errorf("queue ingestion: %w", err)
	}
	return set, nil
}

func (s *DocumentService) ownedDocument(ctx context.Context, userID, docID string) (*models.Document, error) {
	doc, err := s.db.GetDocumentByID(ctx, docID)
	if err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, fmt.Errorf("%w: document %s", aierr.ErrNotFound, docID)
	}
	if doc.UserID != userID {
		return nil, fmt.Errorf("%w: document %s", aierr.ErrPermission, docID)
	}
	return doc, nil
}

func (s *DocumentService) checkNotebook(ctx context.Context, userID, notebookID string) error {
	nb, err := s.db.GetNotebookByID(ctx, notebookID)
	if err != nil {
		return err
	}
	if nb == nil {
		return fmt.Errorf("%w: notebook %s", aierr.ErrNotFound, notebookID)
	}
	if nb.UserID != userID {
		return fmt.Errorf("%w: notebook %s", aierr.ErrPermission, notebookID)
	}
	return nil
}

// objectKey creates a consistent S3 key layout.
func (s *DocumentService) objectKey(userID, docID, filename string) string {
	filename = strings.TrimSpace(filename)
	filename = strings.ReplaceAll(filename, " ", "_")
	return path.Join("users", userID, "documents", docID, filename)
}
