package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/markdave123-py/Studya/internal/core"
	"github.com/markdave123-py/Studya/internal/core/aierr"
	"github.com/markdave123-py/Studya/internal/core/embedding"
	"github.com/markdave123-py/Studya/internal/core/intent"
	"github.com/markdave123-py/Studya/internal/models"
	"github.com/markdave123-py/Studya/internal/platform/logger"
)

type fakeWeb struct {
	mu      sync.Mutex
	results []core.WebResult
	queries []string
}

func (w *fakeWeb) Search(_ context.Context, query string, _ int) ([]core.WebResult, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.queries = append(w.queries, query)
	return w.results, nil
}

func (w *fakeWeb) queryCount() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.queries)
}

type chatFixture struct {
	db  *fakeDB
	llm *fakeLLM
	web *fakeWeb
	svc *ChatService
}

func newChatFixture(t *testing.T) *chatFixture {
	t.Helper()
	db := newFakeDB()
	llm := &fakeLLM{fallback: "the answer"}
	web := &fakeWeb{results: []core.WebResult{
		{Title: "Trees explained", URL: "https://example.com/trees", Snippet: "about trees"},
	}}
	log := logger.NewNop()

	require.NoError(t, db.CreateNotebook(context.Background(), &models.Notebook{
		ID: "nb1", UserID: "u1", Title: "Data Structures", CreatedAt: time.Now(),
	}))

	svc := NewChatService(
		db,
		embedding.NewNormalizer(&fakeEmbedProvider{dim: 8}, 1536),
		llm,
		intent.NewClassifier(intent.DefaultWeights(), llm, log),
		web,
		log,
	)
	return &chatFixture{db: db, llm: llm, web: web, svc: svc}
}

func (fx *chatFixture) seedChunkedDocument(t *testing.T, docID string, texts ...string) {
	t.Helper()
	require.NoError(t, fx.db.CreateDocument(context.Background(), &models.Document{
		ID:              docID,
		NotebookID:      "nb1",
		UserID:          "u1",
		FileName:        docID + ".txt",
		Status:          models.DocStatusDone,
		EmbeddingsBuilt: true,
		CreatedAt:       time.Now(),
	}))
	chunks := make([]models.DocumentChunk, len(texts))
	for i, text := range texts {
		chunks[i] = models.DocumentChunk{
			ID: docID + "-c", DocumentID: docID, ChunkIndex: i, Text: text,
		}
	}
	require.NoError(t, fx.db.ReplaceDocumentChunks(context.Background(), docID, chunks))
}

func TestGreetingSkipsRetrieval(t *testing.T) {
	fx := newChatFixture(t)
	fx.seedChunkedDocument(t, "d1", "binary trees")

	resp, err := fx.svc.Ask(context.Background(), "u1", "nb1", "hello")
	require.NoError(t, err)

	assert.Equal(t, string(intent.ModeNoSearch), resp.Mode)
	assert.Equal(t, "the answer", resp.Answer)
	assert.Empty(t, resp.Citations)
	assert.Equal(t, 0, fx.web.queryCount())

	sources, err := fx.db.GetSourcesByTurn(context.Background(), resp.TurnID)
	require.NoError(t, err)
	assert.Empty(t, sources)
}

func TestSearchModePersistsRagAndWebSources(t *testing.T) {
	fx := newChatFixture(t)
	fx.seedChunkedDocument(t, "d1", "a binary tree has two children per node", "a heap is a complete tree")

	resp, err := fx.svc.Ask(context.Background(), "u1", "nb1", "what is a binary tree")
	require.NoError(t, err)

	assert.Equal(t, string(intent.ModeSearch), resp.Mode)
	assert.Equal(t, 1, fx.web.queryCount())
	require.Len(t, resp.Citations, 3)

	// Scored rag citations first; the unscored web citation sorts last.
	for _, c := range resp.Citations[:2] {
		assert.Equal(t, models.SourceKindRAG, c.Kind)
		require.NotNil(t, c.Score)
		assert.InDelta(t, 0.875, *c.Score, 1e-9) // 1 - 0.5^2/2
		require.NotNil(t, c.Content)
	}
	web := resp.Citations[2]
	assert.Equal(t, models.SourceKindWeb, web.Kind)
	assert.Nil(t, web.Score)
	require.NotNil(t, web.URL)
	assert.Equal(t, "https://example.com/trees", *web.URL)

	persisted, err := fx.db.GetSourcesByTurn(context.Background(), resp.TurnID)
	require.NoError(t, err)
	assert.Len(t, persisted, 3)
}

func TestFollowUpReusesPreviousSources(t *testing.T) {
	fx := newChatFixture(t)
	fx.seedChunkedDocument(t, "d1", "a binary tree has two children per node")

	first, err := fx.svc.Ask(context.Background(), "u1", "nb1", "what is a binary tree")
	require.NoError(t, err)
	require.Equal(t, string(intent.ModeSearch), first.Mode)

	resp, err := fx.svc.Ask(context.Background(), "u1", "nb1", "tell me more about that")
	require.NoError(t, err)

	assert.Equal(t, string(intent.ModeReuse), resp.Mode)
	// No second retrieval round trip.
	assert.Equal(t, 1, fx.web.queryCount())

	// Only the rag sources carry over; web results are not recycled.
	require.Len(t, resp.Citations, 1)
	c := resp.Citations[0]
	assert.Equal(t, models.SourceKindRAG, c.Kind)
	require.NotNil(t, c.Content)
	assert.Equal(t, "a binary tree has two children per node", *c.Content)
	require.NotNil(t, c.Score)
	assert.InDelta(t, 0.875, *c.Score, 1e-9)
}

func TestReuseWithNothingToRecycleFallsBack(t *testing.T) {
	fx := newChatFixture(t)
	fx.seedChunkedDocument(t, "d1", "a binary tree has two children per node")

	// A prior retrieval-bearing answer whose sources are gone.
	mode := string(intent.ModeSearch)
	require.NoError(t, fx.db.CreateConversationTurn(context.Background(), &models.ConversationTurn{
		ID: "old", NotebookID: "nb1", UserID: "u1",
		Role: "assistant", Content: "earlier answer", Mode: &mode, CreatedAt: time.Now(),
	}))

	resp, err := fx.svc.Ask(context.Background(), "u1", "nb1", "tell me more about that")
	require.NoError(t, err)

	assert.Equal(t, string(intent.ModeReuse), resp.Mode)
	assert.Equal(t, 1, fx.web.queryCount())
	assert.NotEmpty(t, resp.Citations)
}

func TestAskRejectsForeignNotebook(t *testing.T) {
	fx := newChatFixture(t)

	_, err := fx.svc.Ask(context.Background(), "u2", "nb1", "what is a binary tree")
	assert.True(t, errors.Is(err, aierr.ErrPermission))

	_, err = fx.svc.Ask(context.Background(), "u1", "missing", "what is a binary tree")
	assert.True(t, errors.Is(err, aierr.ErrNotFound))
}

func TestHistoryIsChronological(t *testing.T) {
	fx := newChatFixture(t)

	_, err := fx.svc.Ask(context.Background(), "u1", "nb1", "hello")
	require.NoError(t, err)
	_, err = fx.svc.Ask(context.Background(), "u1", "nb1", "thanks")
	require.NoError(t, err)

	turns, err := fx.svc.History(context.Background(), "u1", "nb1", 10)
	require.NoError(t, err)
	require.Len(t, turns, 4)
	assert.Equal(t, "user", turns[0].Role)
	assert.Equal(t, "hello", turns[0].Content)
	assert.Equal(t, "assistant", turns[1].Role)
	assert.Equal(t, "user", turns[2].Role)
	assert.Equal(t, "thanks", turns[2].Content)
}

func TestSourcesRenderWithoutRawPayloads(t *testing.T) {
	fx := newChatFixture(t)
	fx.seedChunkedDocument(t, "d1", "a binary tree has two children per node")

	resp, err := fx.svc.Ask(context.Background(), "u1", "nb1", "what is a binary tree")
	require.NoError(t, err)

	citations, err := fx.svc.Sources(context.Background(), resp.TurnID)
	require.NoError(t, err)
	require.Len(t, citations, 2)

	rag := citations[0]
	assert.Equal(t, models.SourceKindRAG, rag.Kind)
	require.NotNil(t, rag.Score)
	// Raw payloads are gone for a past turn; only persisted fields remain.
	assert.Nil(t, rag.Content)
	require.NotNil(t, rag.DocumentID)
	assert.Equal(t, "d1", *rag.DocumentID)
}
