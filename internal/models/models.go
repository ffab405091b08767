package models

import (
	"encoding/json"
	"time"
)

// Document lifecycle statuses. Ingestion may only start from an approved
// document; "processing" acts as an advisory lock against a second worker.
const (
	DocStatusPending    = "pending"
	DocStatusApproved   = "approved"
	DocStatusRejected   = "rejected"
	DocStatusProcessing = "processing"
	DocStatusDone       = "done"
	DocStatusFailed     = "failed"
)

// AiSet statuses. Transitions are forward-only:
// queued -> processing -> done|failed.
const (
	JobStatusQueued     = "queued"
	JobStatusProcessing = "processing"
	JobStatusDone       = "done"
	JobStatusFailed     = "failed"
)

// AiSet task kinds.
const (
	JobKindIngest    = "ingest"
	JobKindSummary   = "summary"
	JobKindQuiz      = "quiz"
	JobKindFlashcard = "flashcard"
	JobKindVideo     = "video"
	JobKindAudio     = "audio"
)

// Retrieval source tags.
const (
	SourceKindRAG = "rag"
	SourceKindWeb = "web"
)

// User represents an authenticated user of the system.
type User struct {
	ID           string    `db:"id" json:"id"`
	FirstName    string    `db:"first_name" json:"first_name"`
	Email        string    `db:"email" json:"email"`
	PasswordHash string    `db:"password" json:"-"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}

// Notebook groups documents, jobs and conversations for one study topic.
// Coarse lifecycle events are published on a per-notebook topic.
type Notebook struct {
	ID        string    `db:"id" json:"id"`
	UserID    string    `db:"user_id" json:"user_id"`
	Title     string    `db:"title" json:"title"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// Document represents an uploaded file or a video reference.
//
// TextExtracted and EmbeddingsBuilt are independent completion flags;
// EmbeddingsBuilt implies TextExtracted (the ingestion pipeline only sets
// the second after the first).
type Document struct {
	ID              string    `db:"id" json:"id"`
	NotebookID      string    `db:"notebook_id" json:"notebook_id"`
	UserID          string    `db:"user_id" json:"user_id"`
	FileName        string    `db:"file_name" json:"file_name"`
	StorageURL      string    `db:"storage_url" json:"storage_url"` // S3 URL or original video link
	SourceType      string    `db:"source_type" json:"source_type"` // "upload" or "video"
	ContentType     string    `db:"content_type" json:"content_type"`
	ChunkSize       int       `db:"chunk_size" json:"chunk_size"`
	ChunkOverlap    int       `db:"chunk_overlap" json:"chunk_overlap"`
	Status          string    `db:"status" json:"status"`
	TextExtracted   bool      `db:"text_extracted" json:"text_extracted"`
	EmbeddingsBuilt bool      `db:"embeddings_built" json:"embeddings_built"`
	CreatedAt       time.Time `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time `db:"updated_at" json:"updated_at"`
}

// DocumentChunk is one embedding unit. Indices per document are 0..N-1 with
// no gaps; chunks are fully replaced on every (re-)ingestion.
type DocumentChunk struct {
	ID         string    `db:"id" json:"id"`
	DocumentID string    `db:"document_id" json:"document_id"`
	ChunkIndex int       `db:"chunk_index" json:"chunk_index"`
	Text       string    `db:"text" json:"text"`
	Embedding  []float32 `db:"embedding" json:"embedding"` // pgvector column, unit norm
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}

// ScoredChunk pairs a chunk with its distance to the query vector. With
// unit-norm embeddings, L2 distance and cosine distance rank identically.
type ScoredChunk struct {
	DocumentChunk
	Distance float64 `db:"distance" json:"distance"`
}

// AiSet is one long-running AI task (ingestion or generation).
//
// StartedAt is set exactly once on the transition into processing;
// FinishedAt exactly once on the transition into done or failed.
type AiSet struct {
	ID           string          `db:"id" json:"id"`
	NotebookID   string          `db:"notebook_id" json:"notebook_id"`
	UserID       string          `db:"user_id" json:"user_id"`
	Kind         string          `db:"kind" json:"kind"`
	Status       string          `db:"status" json:"status"`
	StartedAt    *time.Time      `db:"started_at" json:"started_at,omitempty"`
	FinishedAt   *time.Time      `db:"finished_at" json:"finished_at,omitempty"`
	InputConfig  json.RawMessage `db:"input_config" json:"input_config,omitempty"`
	OutputStats  json.RawMessage `db:"output_stats" json:"output_stats,omitempty"`
	ErrorMessage string          `db:"error_message" json:"error_message,omitempty"`
	CreatedAt    time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time       `db:"updated_at" json:"updated_at"`
}

// RetrievalSource is a citation attached to a generated answer. RAG-tagged
// sources carry (DocumentID, ChunkIndex); web-tagged sources carry WebIndex
// plus the web fields. The two groups are mutually exclusive.
type RetrievalSource struct {
	ID         string    `db:"id" json:"id"`
	TurnID     string    `db:"turn_id" json:"turn_id"`
	Kind       string    `db:"kind" json:"kind"` // "rag" or "web"
	Score      *float64  `db:"score" json:"score,omitempty"`
	DocumentID *string   `db:"document_id" json:"document_id,omitempty"`
	ChunkIndex *int      `db:"chunk_index" json:"chunk_index,omitempty"`
	WebIndex   *int      `db:"web_index" json:"web_index,omitempty"`
	Title      *string   `db:"title" json:"title,omitempty"`
	URL        *string   `db:"url" json:"url,omitempty"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}

// ConversationTurn is one chat message (user or assistant). Mode records the
// classification decision used to answer a user turn. Sources are attached
// once, after the answer completes; the turn is never otherwise mutated.
type ConversationTurn struct {
	ID         string    `db:"id" json:"id"`
	NotebookID string    `db:"notebook_id" json:"notebook_id"`
	UserID     string    `db:"user_id" json:"user_id"`
	Role       string    `db:"role" json:"role"` // "user" or "assistant"
	Content    string    `db:"content" json:"content"`
	Mode       *string   `db:"mode" json:"mode,omitempty"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}
