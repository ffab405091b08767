package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/markdave123-py/Studya/internal/core"
	"github.com/markdave123-py/Studya/internal/core/aierr"
	"github.com/markdave123-py/Studya/internal/core/assembler"
	"github.com/markdave123-py/Studya/internal/core/embedding"
	"github.com/markdave123-py/Studya/internal/core/intent"
	"github.com/markdave123-py/Studya/internal/models"
	"github.com/markdave123-py/Studya/internal/platform/logger"
)

const (
	chatHistoryDepth = 10
	ragTopK          = 6
	webTopK          = 4
)

// ChatResponse is the answer to one user message plus its ordered citations.
type ChatResponse struct {
	TurnID    string               `json:"turn_id"`
	Answer    string               `json:"answer"`
	Mode      string               `json:"mode"`
	Citations []assembler.Citation `json:"citations"`
}

// ChatService answers user messages over a notebook. Each message is
// classified first; only SEARCH turns pay for fresh retrieval, REUSE turns
// recycle the previous answer's sources, NO_SEARCH turns go straight to the
// model.
type ChatService struct {
	db         core.DbClient
	embedder   *embedding.Normalizer
	llm        core.LLMProvider
	classifier *intent.Classifier
	web        core.WebSearchProvider
	log        *logger.Logger
}

func NewChatService(db core.DbClient, embedder *embedding.Normalizer, llm core.LLMProvider, classifier *intent.Classifier, web core.WebSearchProvider, log *logger.Logger) *ChatService {
	return &ChatService{
		db:         db,
		embedder:   embedder,
		llm:        llm,
		classifier: classifier,
		web:        web,
		log:        log.With("component", "ChatService"),
	}
}

// Ask answers one user message in a notebook conversation.
func (s *ChatService) Ask(ctx context.Context, userID, notebookID, message string) (*ChatResponse, error) {
	if strings.TrimSpace(message) == "" {
		return nil, aierr.Validation("empty message")
	}

	nb, err := s.db.GetNotebookByID(ctx, notebookID)
	if err != nil {
		return nil, fmt.Errorf("load notebook: %w", err)
	}
	if nb == nil {
		return nil, fmt.Errorf("%w: notebook %s", aierr.ErrNotFound, notebookID)
	}
	if nb.UserID != userID {
		return nil, fmt.Errorf("%w: notebook %s", aierr.ErrPermission, notebookID)
	}

	history, lastAnswered, err := s.loadHistory(ctx, notebookID)
	if err != nil {
		return nil, err
	}

	mode := s.classifier.Classify(ctx, message, lastAnswered != nil, history)

	userTurn := &models.ConversationTurn{
		ID:         uuid.NewString(),
		NotebookID: notebookID,
		UserID:     userID,
		Role:       "user",
		Content:    message,
		Mode:       strPtr(string(mode)),
		CreatedAt:  time.Now(),
	}
	if err := s.db.CreateConversationTurn(ctx, userTurn); err != nil {
		return nil, fmt.Errorf("persist user turn: %w", err)
	}

	var (
		chunks     []assembler.ChunkPayload
		webResults []core.WebResult
	)
	switch mode {
	case intent.ModeSearch:
		chunks, webResults = s.retrieve(ctx, notebookID, message)
	case intent.ModeReuse:
		chunks = s.reuseSources(ctx, lastAnswered)
		if len(chunks) == 0 {
			// Nothing left to reuse; fall back to fresh retrieval.
			chunks, webResults = s.retrieve(ctx, notebookID, message)
		}
	case intent.ModeNoSearch:
		// Straight to the model.
	}

	answer, err := s.generateAnswer(ctx, message, history, chunks, webResults)
	if err != nil {
		return nil, err
	}

	turn := &models.ConversationTurn{
		ID:         uuid.NewString(),
		NotebookID: notebookID,
		UserID:     userID,
		Role:       "assistant",
		Content:    answer,
		Mode:       strPtr(string(mode)),
		CreatedAt:  time.Now(),
	}
	if err := s.db.CreateConversationTurn(ctx, turn); err != nil {
		return nil, fmt.Errorf("persist assistant turn: %w", err)
	}

	sources := buildSources(turn.ID, chunks, webResults)
	if err := s.db.InsertRetrievalSources(ctx, sources); err != nil {
		return nil, fmt.Errorf("persist sources: %w", err)
	}

	return &ChatResponse{
		TurnID:    turn.ID,
		Answer:    answer,
		Mode:      string(mode),
		Citations: assembler.Assemble(sources, chunks, webResults),
	}, nil
}

// Sources rebuilds the citation list for a past assistant turn. Raw payload
// fields are gone by then; citations render from the persisted rows alone.
func (s *ChatService) Sources(ctx context.Context, turnID string) ([]assembler.Citation, error) {
	sources, err := s.db.GetSourcesByTurn(ctx, turnID)
	if err != nil {
		return nil, err
	}
	return assembler.Assemble(sources, nil, nil), nil
}

// History returns the notebook's recent turns in chronological order.
func (s *ChatService) History(ctx context.Context, userID, notebookID string, limit int) ([]models.ConversationTurn, error) {
	nb, err := s.db.GetNotebookByID(ctx, notebookID)
	if err != nil {
		return nil, err
	}
	if nb == nil {
		return nil, fmt.Errorf("%w: notebook %s", aierr.ErrNotFound, notebookID)
	}
	if nb.UserID != userID {
		return nil, fmt.Errorf("%w: notebook %s", aierr.ErrPermission, notebookID)
	}
	turns, err := s.db.ListRecentTurns(ctx, notebookID, limit)
	if err != nil {
		return nil, err
	}
	reverse(turns)
	return turns, nil
}

// loadHistory returns recent turn texts oldest-first plus the most recent
// assistant turn that carried retrieval, if any.
func (s *ChatService) loadHistory(ctx context.Context, notebookID string) ([]string, *models.ConversationTurn, error) {
	turns, err := s.db.ListRecentTurns(ctx, notebookID, chatHistoryDepth)
	if err != nil {
		return nil, nil, fmt.Errorf("load history: %w", err)
	}

	// Newest first from the store; find the last retrieval-bearing answer.
	// Copied out, not aliased: the reverse below rearranges the slice.
	var lastAnswered *models.ConversationTurn
	for _, t := range turns {
		if t.Role == "assistant" && t.Mode != nil &&
			(*t.Mode == string(intent.ModeSearch) || *t.Mode == string(intent.ModeReuse)) {
			cp := t
			lastAnswered = &cp
			break
		}
	}

	reverse(turns)
	history := make([]string, 0, len(turns))
	for _, t := range turns {
		history = append(history, fmt.Sprintf("%s: %s", t.Role, t.Content))
	}
	return history, lastAnswered, nil
}

// retrieve embeds the query and gathers notebook chunks plus web results.
// Web search failure degrades to RAG-only; RAG failure degrades to nothing.
func (s *ChatService) retrieve(ctx context.Context, notebookID, message string) ([]assembler.ChunkPayload, []core.WebResult) {
	var chunks []assembler.ChunkPayload

	vec, err := s.embedder.Embed(ctx, message)
	if err != nil {
		s.log.Warn("query embedding failed", "error", err)
	} else {
		hits, err := s.db.SearchChunks(ctx, notebookID, vec, ragTopK)
		if err != nil {
			s.log.Warn("chunk search failed", "error", err)
		}
		for _, h := range hits {
			chunks = append(chunks, assembler.ChunkPayload{
				DocumentID: h.DocumentID,
				ChunkIndex: h.ChunkIndex,
				Content:    h.Text,
				Similarity: similarityFromDistance(h.Distance),
				Distance:   h.Distance,
			})
		}
	}

	var webResults []core.WebResult
	if s.web != nil {
		webResults, err = s.web.Search(ctx, message, webTopK)
		if err != nil {
			s.log.Warn("web search failed", "error", err)
			webResults = nil
		}
	}
	return chunks, webResults
}

// reuseSources reloads the chunk payloads cited by a previous answer.
func (s *ChatService) reuseSources(ctx context.Context, turn *models.ConversationTurn) []assembler.ChunkPayload {
	if turn == nil {
		return nil
	}
	sources, err := s.db.GetSourcesByTurn(ctx, turn.ID)
	if err != nil {
		s.log.Warn("loading previous sources failed", "turn_id", turn.ID, "error", err)
		return nil
	}

	byDoc := make(map[string][]models.DocumentChunk)
	var out []assembler.ChunkPayload
	for _, src := range sources {
		if src.Kind != models.SourceKindRAG || src.DocumentID == nil || src.ChunkIndex == nil {
			continue
		}
		chunks, ok := byDoc[*src.DocumentID]
		if !ok {
			chunks, err = s.db.GetChunksByDocument(ctx, *src.DocumentID, 0)
			if err != nil {
				s.log.Warn("loading chunks for reuse failed", "document_id", *src.DocumentID, "error", err)
				continue
			}
			byDoc[*src.DocumentID] = chunks
		}
		for _, ch := range chunks {
			if ch.ChunkIndex != *src.ChunkIndex {
				continue
			}
			p := assembler.ChunkPayload{
				DocumentID: ch.DocumentID,
				ChunkIndex: ch.ChunkIndex,
				Content:    ch.Text,
			}
			if src.Score != nil {
				p.Similarity = *src.Score
			}
			out = append(out, p)
			break
		}
	}
	return out
}

const answerSystemPrompt = "You are a study assistant. Answer using the provided context when it is given; " +
	"cite facts from it rather than inventing. When no context is given, answer briefly from general knowledge."

func (s *ChatService) generateAnswer(ctx context.Context, message string, history []string, chunks []assembler.ChunkPayload, webResults []core.WebResult) (string, error) {
	var b strings.Builder
	if len(history) > 0 {
		b.WriteString("Conversation so far:\n")
		for _, h := range history {
			b.WriteString(h)
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}
	if len(chunks) > 0 {
		b.WriteString("Document context:\n")
		for _, ch := range chunks {
			b.WriteString(ch.Content)
			b.WriteString("\n---\n")
		}
		b.WriteString("\n")
	}
	if len(webResults) > 0 {
		b.WriteString("Web results:\n")
		for i, r := range webResults {
			fmt.Fprintf(&b, "[%d] %s (%s): %s\n", i+1, r.Title, r.URL, r.Snippet)
		}
		b.WriteString("\n")
	}
	fmt.Fprintf(&b, "Question: %s", message)

	answer, err := s.llm.Generate(ctx, answerSystemPrompt, b.String())
	if err != nil {
		return "", aierr.Generation("answer: %v", err)
	}
	return strings.TrimSpace(answer), nil
}

// buildSources converts retrieval payloads into persistable citation rows.
func buildSources(turnID string, chunks []assembler.ChunkPayload, webResults []core.WebResult) []models.RetrievalSource {
	now := time.Now()
	out := make([]models.RetrievalSource, 0, len(chunks)+len(webResults))

	for i := range chunks {
		ch := chunks[i]
		docID := ch.DocumentID
		idx := ch.ChunkIndex
		score := ch.Similarity
		out = append(out, models.RetrievalSource{
			ID:         uuid.NewString(),
			TurnID:     turnID,
			Kind:       models.SourceKindRAG,
			Score:      &score,
			DocumentID: &docID,
			ChunkIndex: &idx,
			CreatedAt:  now,
		})
	}
	for i := range webResults {
		r := webResults[i]
		webIdx := i
		title := r.Title
		url := r.URL
		out = append(out, models.RetrievalSource{
			ID:        uuid.NewString(),
			TurnID:    turnID,
			Kind:      models.SourceKindWeb,
			WebIndex:  &webIdx,
			Title:     &title,
			URL:       &url,
			CreatedAt: now,
		})
	}
	return out
}

// similarityFromDistance maps L2 distance between unit vectors onto cosine
// similarity: cos = 1 - d^2/2.
func similarityFromDistance(d float64) float64 {
	return 1 - (d*d)/2
}

func strPtr(s string) *string { return &s }

func reverse(turns []models.ConversationTurn) {
	for i, j := 0, len(turns)-1; i < j; i, j = i+1, j-1 {
		turns[i], turns[j] = turns[j], turns[i]
	}
}
