package core

import (
	"context"
	"io"
	"time"

	"github.com/markdave123-py/Studya/internal/models"
)

// DbClient defines all persistence operations the services need.
// It abstracts Postgres/pgvector so higher layers never depend on a specific DB.
type DbClient interface {
	CreateUser(ctx context.Context, user *models.User) error
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)

	CreateNotebook(ctx context.Context, nb *models.Notebook) error
	GetNotebookByID(ctx context.Context, id string) (*models.Notebook, error)

	CreateDocument(ctx context.Context, doc *models.Document) error
	GetDocumentByID(ctx context.Context, id string) (*models.Document, error)
	ListDocumentsByNotebook(ctx context.Context, notebookID string) ([]models.Document, error)
	UpdateDocumentStatus(ctx context.Context, id string, status string) error
	// ClaimDocument flips status from one value to "processing" atomically.
	// Returns false when the document was not in the expected status, so two
	// workers never claim the same row.
	ClaimDocument(ctx context.Context, id string, fromStatus string) (bool, error)
	SetDocumentFlags(ctx context.Context, id string, textExtracted, embeddingsBuilt bool) error
	DeleteDocument(ctx context.Context, id string) error

	// ReplaceDocumentChunks deletes all existing chunks for the document and
	// inserts the new set in one transaction. Ingestion is all-or-nothing.
	ReplaceDocumentChunks(ctx context.Context, documentID string, chunks []models.DocumentChunk) error
	DeleteDocumentChunks(ctx context.Context, documentID string) error
	GetChunksByDocument(ctx context.Context, documentID string, limit int) ([]models.DocumentChunk, error)
	SearchChunks(ctx context.Context, notebookID string, queryVec []float32, limit int) ([]models.ScoredChunk, error)

	CreateAiSet(ctx context.Context, set *models.AiSet) error
	GetAiSetByID(ctx context.Context, id string) (*models.AiSet, error)
	// MarkAiSetProcessing flips queued -> processing and stamps started_at,
	// atomically. Returns false when the set was not queued.
	MarkAiSetProcessing(ctx context.Context, id string, startedAt time.Time) (bool, error)
	// MarkAiSetDone flips processing -> done with finished_at and output stats.
	MarkAiSetDone(ctx context.Context, id string, finishedAt time.Time, outputStats []byte) (bool, error)
	// MarkAiSetFailed flips processing -> failed with finished_at and a message.
	MarkAiSetFailed(ctx context.Context, id string, finishedAt time.Time, errMsg string) (bool, error)
	ListRecentAiSets(ctx context.Context, userID, notebookID, kind string, limit int) ([]models.AiSet, error)

	CreateConversationTurn(ctx context.Context, turn *models.ConversationTurn) error
	ListRecentTurns(ctx context.Context, notebookID string, limit int) ([]models.ConversationTurn, error)
	InsertRetrievalSources(ctx context.Context, sources []models.RetrievalSource) error
	GetSourcesByTurn(ctx context.Context, turnID string) ([]models.RetrievalSource, error)

	Close() error
}

// ObjectClient defines interactions with S3 or any object storage.
// It's abstract so AWS can be replaced with MinIO, GCP, etc. easily.
type ObjectClient interface {
	UploadFile(ctx context.Context, bucket, key string, data []byte, contentType string) (url string, err error)
	DeleteFile(ctx context.Context, bucket, key string) error
	GetFile(ctx context.Context, bucket, key string) ([]byte, error)

	GetObjectReader(ctx context.Context, bucket, key string) (io.ReadCloser, error)
}
