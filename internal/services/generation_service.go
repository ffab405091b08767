package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/markdave123-py/Studya/internal/core"
	"github.com/markdave123-py/Studya/internal/core/aierr"
	"github.com/markdave123-py/Studya/internal/core/summarizer"
	"github.com/markdave123-py/Studya/internal/jobs"
	"github.com/markdave123-py/Studya/internal/models"
	"github.com/markdave123-py/Studya/internal/platform/logger"
)

// GenerationInput is the shared job input for summary, quiz and flashcard
// jobs. DocumentIDs narrows the material; empty means every ready document
// in the notebook. Count applies to quizzes and flashcard decks.
type GenerationInput struct {
	DocumentIDs []string `json:"document_ids,omitempty"`
	Count       int      `json:"count,omitempty"`
}

// QuizQuestion is one generated multiple-choice question.
type QuizQuestion struct {
	Question    string   `json:"question"`
	Options     []string `json:"options"`
	AnswerIndex int      `json:"answer_index"`
	Explanation string   `json:"explanation,omitempty"`
}

// Flashcard is one generated front/back card.
type Flashcard struct {
	Front string `json:"front"`
	Back  string `json:"back"`
}

// GenerationService runs the summary, quiz and flashcard pipelines. Each
// pipeline condenses the notebook's material first, prompts the model for a
// strict output shape, and stores the artifact in object storage; the job row
// keeps counts plus the artifact URL.
type GenerationService struct {
	db         core.DbClient
	obj        core.ObjectClient
	summarizer *summarizer.Summarizer
	llm        core.LLMProvider
	bucket     string
	maxFiles   int
	chunksPer  int
	log        *logger.Logger
}

func NewGenerationService(db core.DbClient, obj core.ObjectClient, sum *summarizer.Summarizer, llm core.LLMProvider, bucket string, maxFiles, chunksPerFile int, log *logger.Logger) *GenerationService {
	if maxFiles <= 0 {
		maxFiles = 5
	}
	if chunksPerFile <= 0 {
		chunksPerFile = 40
	}
	return &GenerationService{
		db:         db,
		obj:        obj,
		summarizer: sum,
		llm:        llm,
		bucket:     bucket,
		maxFiles:   maxFiles,
		chunksPer:  chunksPerFile,
		log:        log.With("component", "GenerationService"),
	}
}

const summarySystemPrompt = "You are a study assistant. Write a clear, well-structured summary of the material. " +
	"Use headings and short paragraphs. Cover every file's key points. Output plain text."

// HandleSummary produces a prose summary of the notebook's material.
func (s *GenerationService) HandleSummary(ctx context.Context, run *jobs.Run) (any, error) {
	material, fileCount, err := s.gatherMaterial(ctx, run)
	if err != nil {
		return nil, err
	}

	run.Progress(ctx, "generating", 60, "writing summary")
	text, err := s.llm.Generate(ctx, summarySystemPrompt, material)
	if err != nil {
		return nil, aierr.Generation("summary: %v", err)
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, aierr.Generation("summary came back empty")
	}

	url, err := s.storeArtifact(ctx, run.Set, "summary.txt", []byte(text), "text/plain; charset=utf-8")
	if err != nil {
		return nil, err
	}
	return &jobs.SummaryStats{
		Kind:         models.JobKindSummary,
		SummaryChars: len(text),
		FileCount:    fileCount,
		StorageURL:   url,
	}, nil
}

const quizSystemPrompt = `You create multiple-choice quizzes from study material.
Output a JSON array only, no prose, no code fences. Each element:
{"question": string, "options": [4 strings], "answer_index": 0-3, "explanation": string}`

// HandleQuiz produces a multiple-choice quiz as a strict JSON artifact.
func (s *GenerationService) HandleQuiz(ctx context.Context, run *jobs.Run) (any, error) {
	var in GenerationInput
	_ = run.Input(&in)
	count := in.Count
	if count <= 0 {
		count = 10
	}

	material, _, err := s.gatherMaterial(ctx, run)
	if err != nil {
		return nil, err
	}

	run.Progress(ctx, "generating", 60, "writing questions")
	prompt := fmt.Sprintf("Create exactly %d questions from this material:\n\n%s", count, material)
	raw, err := s.llm.Generate(ctx, quizSystemPrompt, prompt)
	if err != nil {
		return nil, aierr.Generation("quiz: %v", err)
	}

	var questions []QuizQuestion
	if err := parseStrictJSON(raw, &questions); err != nil {
		return nil, err
	}
	if len(questions) == 0 {
		return nil, aierr.Validation("quiz output has no questions")
	}
	for i, q := range questions {
		if strings.TrimSpace(q.Question) == "" {
			return nil, aierr.Validation("question %d is blank", i)
		}
		if len(q.Options) != 4 {
			return nil, aierr.Validation("question %d has %d options, want 4", i, len(q.Options))
		}
		if q.AnswerIndex < 0 || q.AnswerIndex > 3 {
			return nil, aierr.Validation("question %d answer index %d out of range", i, q.AnswerIndex)
		}
	}

	payload, err := json.Marshal(questions)
	if err != nil {
		return nil, err
	}
	url, err := s.storeArtifact(ctx, run.Set, "quiz.json", payload, "application/json")
	if err != nil {
		return nil, err
	}
	return &jobs.QuizStats{
		Kind:          models.JobKindQuiz,
		QuestionCount: len(questions),
		StorageURL:    url,
	}, nil
}

const flashcardSystemPrompt = `You create flashcards from study material.
Output a JSON array only, no prose, no code fences. Each element:
{"front": string, "back": string}`

// HandleFlashcards produces a flashcard deck as a strict JSON artifact.
func (s *GenerationService) HandleFlashcards(ctx context.Context, run *jobs.Run) (any, error) {
	var in GenerationInput
	_ = run.Input(&in)
	count := in.Count
	if count <= 0 {
		count = 20
	}

	material, _, err := s.gatherMaterial(ctx, run)
	if err != nil {
		return nil, err
	}

	run.Progress(ctx, "generating", 60, "writing cards")
	prompt := fmt.Sprintf("Create exactly %d flashcards from this material:\n\n%s", count, material)
	raw, err := s.llm.Generate(ctx, flashcardSystemPrompt, prompt)
	if err != nil {
		return nil, aierr.Generation("flashcards: %v", err)
	}

	var cards []Flashcard
	if err := parseStrictJSON(raw, &cards); err != nil {
		return nil, err
	}
	if len(cards) == 0 {
		return nil, aierr.Validation("flashcard output has no cards")
	}
	for i, c := range cards {
		if strings.TrimSpace(c.Front) == "" || strings.TrimSpace(c.Back) == "" {
			return nil, aierr.Validation("card %d has a blank side", i)
		}
	}

	payload, err := json.Marshal(cards)
	if err != nil {
		return nil, err
	}
	url, err := s.storeArtifact(ctx, run.Set, "flashcards.json", payload, "application/json")
	if err != nil {
		return nil, err
	}
	return &jobs.FlashcardStats{
		Kind:       models.JobKindFlashcard,
		CardCount:  len(cards),
		StorageURL: url,
	}, nil
}

// History lists recent finished and running jobs of one kind for a notebook.
func (s *GenerationService) History(ctx context.Context, userID, notebookID, kind string, limit int) ([]models.AiSet, error) {
	return s.db.ListRecentAiSets(ctx, userID, notebookID, kind, limit)
}

// gatherMaterial loads chunk text for the selected documents and condenses it
// through the summarizer into a prompt-sized block.
func (s *GenerationService) gatherMaterial(ctx context.Context, run *jobs.Run) (string, int, error) {
	var in GenerationInput
	_ = run.Input(&in)

	run.Progress(ctx, "collecting", 10, "loading documents")
	docs, err := s.selectDocuments(ctx, run.Set.NotebookID, in.DocumentIDs)
	if err != nil {
		return "", 0, err
	}
	if len(docs) == 0 {
		return "", 0, aierr.Validation("no ready documents in notebook")
	}
	if len(docs) > s.maxFiles {
		docs = docs[:s.maxFiles]
	}

	// Chunk loads are independent per document; fetch them concurrently.
	files := make([]summarizer.File, len(docs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for i, d := range docs {
		g.Go(func() error {
			chunks, err := s.db.GetChunksByDocument(gctx, d.ID, s.chunksPer)
			if err != nil {
				return fmt.Errorf("load chunks for %s: %w", d.ID, err)
			}
			texts := make([]string, 0, len(chunks))
			for _, ch := range chunks {
				texts = append(texts, ch.Text)
			}
			files[i] = summarizer.File{Name: d.FileName, Chunks: texts}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return "", 0, err
	}

	run.Progress(ctx, "condensing", 25, "condensing material")
	material, err := s.summarizer.Summarize(ctx, files)
	if err != nil {
		return "", 0, fmt.Errorf("condense material: %w", err)
	}
	if strings.TrimSpace(material) == "" {
		return "", 0, aierr.Validation("selected documents have no text")
	}
	return material, len(files), nil
}

// selectDocuments returns ready documents, filtered to ids when given.
func (s *GenerationService) selectDocuments(ctx context.Context, notebookID string, ids []string) ([]models.Document, error) {
	docs, err := s.db.ListDocumentsByNotebook(ctx, notebookID)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}

	wanted := make(map[string]bool, len(ids))
	for _, id := range ids {
		wanted[id] = true
	}

	var out []models.Document
	for _, d := range docs {
		if d.Status != models.DocStatusDone || !d.EmbeddingsBuilt {
			continue
		}
		if len(wanted) > 0 && !wanted[d.ID] {
			continue
		}
		out = append(out, d)
	}
	return out, nil
}

func (s *GenerationService) storeArtifact(ctx context.Context, set *models.AiSet, name string, data []byte, contentType string) (string, error) {
	key := fmt.Sprintf("notebooks/%s/aisets/%s/%s", set.NotebookID, set.ID, name)
	url, err := s.obj.UploadFile(ctx, s.bucket, key, data, contentType)
	if err != nil {
		return "", fmt.Errorf("store artifact: %w", err)
	}
	return url, nil
}

// parseStrictJSON tolerates a fenced code block around the payload but
// nothing else; malformed output fails the job.
func parseStrictJSON(raw string, dst any) error {
	text := strings.TrimSpace(raw)
	if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```json")
		text = strings.TrimPrefix(text, "```")
		if i := strings.LastIndex(text, "```"); i >= 0 {
			text = text[:i]
		}
		text = strings.TrimSpace(text)
	}
	if err := json.Unmarshal([]byte(text), dst); err != nil {
		return aierr.Validation("model output is not valid JSON: %v", err)
	}
	return nil
}
