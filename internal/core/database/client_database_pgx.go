package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/pgvector/pgvector-go"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/markdave123-py/Studya/internal/config"
	"github.com/markdave123-py/Studya/internal/core"
	"github.com/markdave123-py/Studya/internal/models"
)

type DatabaseClient struct {
	db *sql.DB
}

var _ core.DbClient = (*DatabaseClient)(nil)

func NewDatabaseClient(ctx context.Context, cfg *config.Config) (core.DbClient, error) {
	if cfg == nil {
		return nil, fmt.Errorf("database client configuration is nil")
	}
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is empty")
	}

	db, err := sql.Open("pgx", cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)
	db.SetConnMaxIdleTime(10 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}

	if err := EnsureBootstrapped(ctx, db, cfg.EmbedDim); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("bootstrap: %w", err)
	}

	return &DatabaseClient{db: db}, nil
}

func (c *DatabaseClient) Close() error {
	if c.db != nil {
		return c.db.Close()
	}
	return nil
}

// Users

func (c *DatabaseClient) CreateUser(ctx context.Context, user *models.User) error {
	if user == nil {
		return errors.New("nil user")
	}
	const q = `
		INSERT INTO users (id, first_name, email, password_hash, created_at, updated_at)
		VALUES ($1, $2, $3, $4, COALESCE($5, now()), COALESCE($6, now()))
	`
	_, err := c.db.ExecContext(ctx, q,
		user.ID, user.FirstName, user.Email, user.PasswordHash, user.CreatedAt, user.UpdatedAt)
	return err
}

func (c *DatabaseClient) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	const q = `
		SELECT id, first_name, email, password_hash, created_at, updated_at
		FROM users WHERE email = $1
	`
	var u models.User
	err := c.db.QueryRowContext(ctx, q, email).Scan(
		&u.ID, &u.FirstName, &u.Email, &u.PasswordHash, &u.CreatedAt, &u.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// Notebooks

func (c *DatabaseClient) CreateNotebook(ctx context.Context, nb *models.Notebook) error {
	if nb == nil {
		return errors.New("nil notebook")
	}
	const q = `
		INSERT INTO notebooks (id, user_id, title, created_at, updated_at)
		VALUES ($1, $2, $3, COALESCE($4, now()), COALESCE($5, now()))
	`
	_, err := c.db.ExecContext(ctx, q, nb.ID, nb.UserID, nb.Title, nb.CreatedAt, nb.UpdatedAt)
	return err
}

func (c *DatabaseClient) GetNotebookByID(ctx context.Context, id string) (*models.Notebook, error) {
	const q = `
		SELECT id, user_id, title, created_at, updated_at
		FROM notebooks WHERE id = $1
	`
	var nb models.Notebook
	err := c.db.QueryRowContext(ctx, q, id).Scan(&nb.ID, &nb.UserID, &nb.Title, &nb.CreatedAt, &nb.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &nb, nil
}

// Documents

func (c *DatabaseClient) CreateDocument(ctx context.Context, doc *models.Document) error {
	if doc == nil {
		return errors.New("nil document")
	}
	const q = `
		INSERT INTO documents
			(id, notebook_id, user_id, file_name, storage_url, source_type, content_type,
			 chunk_size, chunk_overlap, status, text_extracted, embeddings_built, created_at, updated_at)
		VALUES
			($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, COALESCE($13, now()), COALESCE($14, now()))
	`
	_, err := c.db.ExecContext(ctx, q,
		doc.ID, doc.NotebookID, doc.UserID, doc.FileName, doc.StorageURL, doc.SourceType, doc.ContentType,
		doc.ChunkSize, doc.ChunkOverlap, doc.Status, doc.TextExtracted, doc.EmbeddingsBuilt, doc.CreatedAt, doc.UpdatedAt)
	return err
}

const documentColumns = `
	id, notebook_id, user_id, file_name, storage_url, source_type, content_type,
	chunk_size, chunk_overlap, status, text_extracted, embeddings_built, created_at, updated_at
`

func scanDocument(row interface{ Scan(...any) error }) (*models.Document, error) {
	var d models.Document
	err := row.Scan(
		&d.ID, &d.NotebookID, &d.UserID, &d.FileName, &d.StorageURL, &d.SourceType, &d.ContentType,
		&d.ChunkSize, &d.ChunkOverlap, &d.Status, &d.TextExtracted, &d.EmbeddingsBuilt, &d.CreatedAt, &d.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func (c *DatabaseClient) GetDocumentByID(ctx context.Context, id string) (*models.Document, error) {
	q := `SELECT ` + documentColumns + ` FROM documents WHERE id = $1`
	doc, err := scanDocument(c.db.QueryRowContext(ctx, q, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return doc, err
}

func (c *DatabaseClient) ListDocumentsByNotebook(ctx context.Context, notebookID string) ([]models.Document, error) {
	q := `SELECT ` + documentColumns + ` FROM documents WHERE notebook_id = $1 ORDER BY created_at DESC`
	rows, err := c.db.QueryContext(ctx, q, notebookID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *doc)
	}
	return out, rows.Err()
}

func (c *DatabaseClient) UpdateDocumentStatus(ctx context.Context, id string, status string) error {
	const q = `
		UPDATE documents
		SET status = $2, updated_at = now()
		WHERE id = $1
	`
	res, err := c.db.ExecContext(ctx, q, id, status)
	if err != nil {
		return err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("document not found: %s", id)
	}
	return nil
}

// ClaimDocument takes the advisory lock on a document by flipping its status
// to "processing" only when the row still carries fromStatus. The WHERE clause
// makes the claim a single atomic compare-and-swap.
func (c *DatabaseClient) ClaimDocument(ctx context.Context, id string, fromStatus string) (bool, error) {
	const q = `
		UPDATE documents
		SET status = $3, updated_at = now()
		WHERE id = $1 AND status = $2
	`
	res, err := c.db.ExecContext(ctx, q, id, fromStatus, models.DocStatusProcessing)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (c *DatabaseClient) SetDocumentFlags(ctx context.Context, id string, textExtracted, embeddingsBuilt bool) error {
	const q = `
		UPDATE documents
		SET text_extracted = $2, embeddings_built = $3, updated_at = now()
		WHERE id = $1
	`
	res, err := c.db.ExecContext(ctx, q, id, textExtracted, embeddingsBuilt)
	if err != nil {
		return err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("document not found: %s", id)
	}
	return nil
}

// DeleteDocument removes the row; chunks go with it via ON DELETE CASCADE.
func (c *DatabaseClient) DeleteDocument(ctx context.Context, id string) error {
	res, err := c.db.ExecContext(ctx, `DELETE FROM documents WHERE id = $1`, id)
	if err != nil {
		return err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("document not found: %s", id)
	}
	return nil
}

// Document chunks

// ReplaceDocumentChunks swaps the full chunk set for a document inside one
// transaction. A reader never observes a partial mix of old and new chunks.
func (c *DatabaseClient) ReplaceDocumentChunks(ctx context.Context, documentID string, chunks []models.DocumentChunk) error {
	tx, err := c.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM document_chunks WHERE document_id = $1`, documentID); err != nil {
		_ = tx.Rollback()
		return err
	}

	const q = `
		INSERT INTO document_chunks
			(id, document_id, chunk_index, text, embedding, created_at)
		VALUES ($1, $2, $3, $4, $5, COALESCE($6, now()))
	`
	stmt, err := tx.PrepareContext(ctx, q)
	if err != nil {
		_ = tx.Rollback()
		return err
	}
	defer stmt.Close()

	for i := range chunks {
		ch := &chunks[i]
		vec := pgvector.NewVector(ch.Embedding)
		if _, err := stmt.ExecContext(ctx,
			ch.ID, ch.DocumentID, ch.ChunkIndex, ch.Text, vec, ch.CreatedAt,
		); err != nil {
			_ = tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

func (c *DatabaseClient) DeleteDocumentChunks(ctx context.Context, documentID string) error {
	_, err := c.db.ExecContext(ctx, `DELETE FROM document_chunks WHERE document_id = $1`, documentID)
	return err
}

func (c *DatabaseClient) GetChunksByDocument(ctx context.Context, documentID string, limit int) ([]models.DocumentChunk, error) {
	const q = `
		SELECT id, document_id, chunk_index, text, embedding, created_at
		FROM document_chunks
		WHERE document_id = $1
		ORDER BY chunk_index ASC
		LIMIT $2
	`
	if limit <= 0 {
		limit = 1000
	}
	rows, err := c.db.QueryContext(ctx, q, documentID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.DocumentChunk
	for rows.Next() {
		var (
			ch  models.DocumentChunk
			emb pgvector.Vector
		)
		if err := rows.Scan(&ch.ID, &ch.DocumentID, &ch.ChunkIndex, &ch.Text, &emb, &ch.CreatedAt); err != nil {
			return nil, err
		}
		ch.Embedding = emb.Slice()
		out = append(out, ch)
	}
	return out, rows.Err()
}

// SearchChunks finds the top-k similar chunks across every document in the
// notebook. Documents still mid-ingestion contribute nothing because their
// chunks were deleted up front.
func (c *DatabaseClient) SearchChunks(ctx context.Context, notebookID string, queryVec []float32, limit int) ([]models.ScoredChunk, error) {
	const q = `
		SELECT ch.id, ch.document_id, ch.chunk_index, ch.text, ch.embedding,
		       ch.embedding <-> $2 AS distance, ch.created_at
		FROM document_chunks ch
		JOIN documents d ON d.id = ch.document_id
		WHERE d.notebook_id = $1
		ORDER BY ch.embedding <-> $2
		LIMIT $3
	`
	if limit <= 0 {
		limit = 10
	}
	vec := pgvector.NewVector(queryVec)
	rows, err := c.db.QueryContext(ctx, q, notebookID, vec, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.ScoredChunk
	for rows.Next() {
		var (
			sc  models.ScoredChunk
			emb pgvector.Vector
		)
		if err := rows.Scan(&sc.ID, &sc.DocumentID, &sc.ChunkIndex, &sc.Text, &emb, &sc.Distance, &sc.CreatedAt); err != nil {
			return nil, err
		}
		sc.Embedding = emb.Slice()
		out = append(out, sc)
	}
	return out, rows.Err()
}

// AiSets

func (c *DatabaseClient) CreateAiSet(ctx context.Context, set *models.AiSet) error {
	if set == nil {
		return errors.New("nil ai set")
	}
	const q = `
		INSERT INTO ai_sets
			(id, notebook_id, user_id, kind, status, input_config, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, COALESCE($7, now()), COALESCE($8, now()))
	`
	_, err := c.db.ExecContext(ctx, q,
		set.ID, set.NotebookID, set.UserID, set.Kind, set.Status, []byte(set.InputConfig), set.CreatedAt, set.UpdatedAt)
	return err
}

const aiSetColumns = `
	id, notebook_id, user_id, kind, status, started_at, finished_at,
	input_config, output_stats, error_message, created_at, updated_at
`

func scanAiSet(row interface{ Scan(...any) error }) (*models.AiSet, error) {
	var (
		s         models.AiSet
		input     []byte
		output    []byte
		errMsg    sql.NullString
		startedAt sql.NullTime
		finished  sql.NullTime
	)
	err := row.Scan(
		&s.ID, &s.NotebookID, &s.UserID, &s.Kind, &s.Status, &startedAt, &finished,
		&input, &output, &errMsg, &s.CreatedAt, &s.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if startedAt.Valid {
		t := startedAt.Time
		s.StartedAt = &t
	}
	if finished.Valid {
		t := finished.Time
		s.FinishedAt = &t
	}
	s.InputConfig = input
	s.OutputStats = output
	s.ErrorMessage = errMsg.String
	return &s, nil
}

func (c *DatabaseClient) GetAiSetByID(ctx context.Context, id string) (*models.AiSet, error) {
	q := `SELECT ` + aiSetColumns + ` FROM ai_sets WHERE id = $1`
	set, err := scanAiSet(c.db.QueryRowContext(ctx, q, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return set, err
}

// MarkAiSetProcessing claims a queued job. The status guard in the WHERE
// clause keeps transitions forward-only and started_at write-once.
func (c *DatabaseClient) MarkAiSetProcessing(ctx context.Context, id string, startedAt time.Time) (bool, error) {
	const q = `
		UPDATE ai_sets
		SET status = $3, started_at = $2, updated_at = now()
		WHERE id = $1 AND status = $4
	`
	res, err := c.db.ExecContext(ctx, q, id, startedAt, models.JobStatusProcessing, models.JobStatusQueued)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (c *DatabaseClient) MarkAiSetDone(ctx context.Context, id string, finishedAt time.Time, outputStats []byte) (bool, error) {
	const q = `
		UPDATE ai_sets
		SET status = $3, finished_at = $2, output_stats = $4, updated_at = now()
		WHERE id = $1 AND status = $5
	`
	res, err := c.db.ExecContext(ctx, q, id, finishedAt, models.JobStatusDone, outputStats, models.JobStatusProcessing)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (c *DatabaseClient) MarkAiSetFailed(ctx context.Context, id string, finishedAt time.Time, errMsg string) (bool, error) {
	const q = `
		UPDATE ai_sets
		SET status = $3, finished_at = $2, error_message = $4, updated_at = now()
		WHERE id = $1 AND status = $5
	`
	res, err := c.db.ExecContext(ctx, q, id, finishedAt, models.JobStatusFailed, errMsg, models.JobStatusProcessing)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (c *DatabaseClient) ListRecentAiSets(ctx context.Context, userID, notebookID, kind string, limit int) ([]models.AiSet, error) {
	q := `SELECT ` + aiSetColumns + `
		FROM ai_sets
		WHERE user_id = $1 AND notebook_id = $2 AND ($3 = '' OR kind = $3)
		ORDER BY created_at DESC
		LIMIT $4
	`
	if limit <= 0 {
		limit = 20
	}
	rows, err := c.db.QueryContext(ctx, q, userID, notebookID, kind, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.AiSet
	for rows.Next() {
		set, err := scanAiSet(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *set)
	}
	return out, rows.Err()
}

// Conversation turns and retrieval sources

func (c *DatabaseClient) CreateConversationTurn(ctx context.Context, turn *models.ConversationTurn) error {
	if turn == nil {
		return errors.New("nil turn")
	}
	const q = `
		INSERT INTO conversation_turns (id, notebook_id, user_id, role, content, mode, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, COALESCE($7, now()))
	`
	_, err := c.db.ExecContext(ctx, q,
		turn.ID, turn.NotebookID, turn.UserID, turn.Role, turn.Content, turn.Mode, turn.CreatedAt)
	return err
}

// ListRecentTurns returns the newest turns first.
func (c *DatabaseClient) ListRecentTurns(ctx context.Context, notebookID string, limit int) ([]models.ConversationTurn, error) {
	const q = `
		SELECT id, notebook_id, user_id, role, content, mode, created_at
		FROM conversation_turns
		WHERE notebook_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`
	if limit <= 0 {
		limit = 10
	}
	rows, err := c.db.QueryContext(ctx, q, notebookID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.ConversationTurn
	for rows.Next() {
		var t models.ConversationTurn
		if err := rows.Scan(&t.ID, &t.NotebookID, &t.UserID, &t.Role, &t.Content, &t.Mode, &t.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (c *DatabaseClient) InsertRetrievalSources(ctx context.Context, sources []models.RetrievalSource) error {
	if len(sources) == 0 {
		return nil
	}
	tx, err := c.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return err
	}

	const q = `
		INSERT INTO retrieval_sources
			(id, turn_id, kind, score, document_id, chunk_index, web_index, title, url, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, COALESCE($10, now()))
	`
	stmt, err := tx.PrepareContext(ctx, q)
	if err != nil {
		_ = tx.Rollback()
		return err
	}
	defer stmt.Close()

	for i := range sources {
		s := &sources[i]
		if _, err := stmt.ExecContext(ctx,
			s.ID, s.TurnID, s.Kind, s.Score, s.DocumentID, s.ChunkIndex, s.WebIndex, s.Title, s.URL, s.CreatedAt,
		); err != nil {
			_ = tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

func (c *DatabaseClient) GetSourcesByTurn(ctx context.Context, turnID string) ([]models.RetrievalSource, error) {
	const q = `
		SELECT id, turn_id, kind, score, document_id, chunk_index, web_index, title, url, created_at
		FROM retrieval_sources
		WHERE turn_id = $1
		ORDER BY score DESC NULLS LAST, created_at ASC
	`
	rows, err := c.db.QueryContext(ctx, q, turnID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.RetrievalSource
	for rows.Next() {
		var s models.RetrievalSource
		if err := rows.Scan(&s.ID, &s.TurnID, &s.Kind, &s.Score, &s.DocumentID, &s.ChunkIndex, &s.WebIndex, &s.Title, &s.URL, &s.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
