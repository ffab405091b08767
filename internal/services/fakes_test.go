package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/markdave123-py/Studya/internal/core"
	"github.com/markdave123-py/Studya/internal/models"
)

// fakeDB is an in-memory core.DbClient with the same CAS semantics as the
// SQL client.
type fakeDB struct {
	mu        sync.Mutex
	users     map[string]*models.User
	notebooks map[string]*models.Notebook
	documents map[string]*models.Document
	chunks    map[string][]models.DocumentChunk
	sets      map[string]*models.AiSet
	turns     []models.ConversationTurn
	sources   map[string][]models.RetrievalSource

	replaceCalls int
}

func newFakeDB() *fakeDB {
	return &fakeDB{
		users:     make(map[string]*models.User),
		notebooks: make(map[string]*models.Notebook),
		documents: make(map[string]*models.Document),
		chunks:    make(map[string][]models.DocumentChunk),
		sets:      make(map[string]*models.AiSet),
		sources:   make(map[string][]models.RetrievalSource),
	}
}

var _ core.DbClient = (*fakeDB)(nil)

func (f *fakeDB) CreateUser(_ context.Context, u *models.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.users {
		if existing.Email == u.Email {
			return errors.New("duplicate email")
		}
	}
	cp := *u
	f.users[u.ID] = &cp
	return nil
}

func (f *fakeDB) GetUserByEmail(_ context.Context, email string) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, nil
}

func (f *fakeDB) CreateNotebook(_ context.Context, nb *models.Notebook) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *nb
	f.notebooks[nb.ID] = &cp
	return nil
}

func (f *fakeDB) GetNotebookByID(_ context.Context, id string) (*models.Notebook, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	nb, ok := f.notebooks[id]
	if !ok {
		return nil, nil
	}
	cp := *nb
	return &cp, nil
}

func (f *fakeDB) CreateDocument(_ context.Context, doc *models.Document) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *doc
	f.documents[doc.ID] = &cp
	return nil
}

func (f *fakeDB) GetDocumentByID(_ context.Context, id string) (*models.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	doc, ok := f.documents[id]
	if !ok {
		return nil, nil
	}
	cp := *doc
	return &cp, nil
}

func (f *fakeDB) ListDocumentsByNotebook(_ context.Context, notebookID string) ([]models.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Document
	for _, d := range f.documents {
		if d.NotebookID == notebookID {
			out = append(out, *d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (f *fakeDB) UpdateDocumentStatus(_ context.Context, id, status string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	doc, ok := f.documents[id]
	if !ok {
		return fmt.Errorf("document not found: %s", id)
	}
	doc.Status = status
	return nil
}

func (f *fakeDB) ClaimDocument(_ context.Context, id, fromStatus string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	doc, ok := f.documents[id]
	if !ok || doc.Status != fromStatus {
		return false, nil
	}
	doc.Status = models.DocStatusProcessing
	return true, nil
}

func (f *fakeDB) SetDocumentFlags(_ context.Context, id string, textExtracted, embeddingsBuilt bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	doc, ok := f.documents[id]
	if !ok {
		return fmt.Errorf("document not found: %s", id)
	}
	doc.TextExtracted = textExtracted
	doc.EmbeddingsBuilt = embeddingsBuilt
	return nil
}

func (f *fakeDB) DeleteDocument(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.documents[id]; !ok {
		return fmt.Errorf("document not found: %s", id)
	}
	delete(f.documents, id)
	delete(f.chunks, id)
	return nil
}

func (f *fakeDB) ReplaceDocumentChunks(_ context.Context, documentID string, chunks []models.DocumentChunk) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.replaceCalls++
	f.chunks[documentID] = append([]models.DocumentChunk(nil), chunks...)
	return nil
}

func (f *fakeDB) DeleteDocumentChunks(_ context.Context, documentID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.chunks, documentID)
	return nil
}

func (f *fakeDB) GetChunksByDocument(_ context.Context, documentID string, limit int) ([]models.DocumentChunk, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := append([]models.DocumentChunk(nil), f.chunks[documentID]...)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeDB) SearchChunks(_ context.Context, notebookID string, _ []float32, limit int) ([]models.ScoredChunk, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.ScoredChunk
	for docID, chunks := range f.chunks {
		doc := f.documents[docID]
		if doc == nil || doc.NotebookID != notebookID {
			continue
		}
		for _, ch := range chunks {
			out = append(out, models.ScoredChunk{DocumentChunk: ch, Distance: 0.5})
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeDB) CreateAiSet(_ context.Context, set *models.AiSet) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *set
	f.sets[set.ID] = &cp
	return nil
}

func (f *fakeDB) GetAiSetByID(_ context.Context, id string) (*models.AiSet, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	set, ok := f.sets[id]
	if !ok {
		return nil, nil
	}
	cp := *set
	return &cp, nil
}

func (f *fakeDB) MarkAiSetProcessing(_ context.Context, id string, startedAt time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	set, ok := f.sets[id]
	if !ok || set.Status != models.JobStatusQueued {
		return false, nil
	}
	set.Status = models.JobStatusProcessing
	set.StartedAt = &startedAt
	return true, nil
}

func (f *fakeDB) MarkAiSetDone(_ context.Context, id string, finishedAt time.Time, outputStats []byte) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	set, ok := f.sets[id]
	if !ok || set.Status != models.JobStatusProcessing {
		return false, nil
	}
	set.Status = models.JobStatusDone
	set.FinishedAt = &finishedAt
	set.OutputStats = outputStats
	return true, nil
}

func (f *fakeDB) MarkAiSetFailed(_ context.Context, id string, finishedAt time.Time, errMsg string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	set, ok := f.sets[id]
	if !ok || set.Status != models.JobStatusProcessing {
		return false, nil
	}
	set.Status = models.JobStatusFailed
	set.FinishedAt = &finishedAt
	set.ErrorMessage = errMsg
	return true, nil
}

func (f *fakeDB) ListRecentAiSets(_ context.Context, userID, notebookID, kind string, limit int) ([]models.AiSet, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.AiSet
	for _, s := range f.sets {
		if s.UserID != userID || s.NotebookID != notebookID {
			continue
		}
		if kind != "" && s.Kind != kind {
			continue
		}
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeDB) CreateConversationTurn(_ context.Context, turn *models.ConversationTurn) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.turns = append(f.turns, *turn)
	return nil
}

func (f *fakeDB) ListRecentTurns(_ context.Context, notebookID string, limit int) ([]models.ConversationTurn, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.ConversationTurn
	for i := len(f.turns) - 1; i >= 0; i-- {
		if f.turns[i].NotebookID != notebookID {
			continue
		}
		out = append(out, f.turns[i])
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (f *fakeDB) InsertRetrievalSources(_ context.Context, sources []models.RetrievalSource) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, s := range sources {
		f.sources[s.TurnID] = append(f.sources[s.TurnID], s)
	}
	return nil
}

func (f *fakeDB) GetSourcesByTurn(_ context.Context, turnID string) ([]models.RetrievalSource, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.RetrievalSource(nil), f.sources[turnID]...), nil
}

func (f *fakeDB) Close() error { return nil }

func (f *fakeDB) chunkCount(docID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.chunks[docID])
}

func (f *fakeDB) document(id string) models.Document {
	f.mu.Lock()
	defer f.mu.Unlock()
	return *f.documents[id]
}

func (f *fakeDB) set(id string) models.AiSet {
	f.mu.Lock()
	defer f.mu.Unlock()
	return *f.sets[id]
}

// fakeStorage is an in-memory core.ObjectClient.
type fakeStorage struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func newFakeStorage() *fakeStorage {
	return &fakeStorage{objects: make(map[string][]byte)}
}

var _ core.ObjectClient = (*fakeStorage)(nil)

func (s *fakeStorage) UploadFile(_ context.Context, bucket, key string, data []byte, _ string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[bucket+"/"+key] = append([]byte(nil), data...)
	return fmt.Sprintf("https://%s.s3.us-east-2.amazonaws.com/%s", bucket, key), nil
}

func (s *fakeStorage) DeleteFile(_ context.Context, bucket, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.objects, bucket+"/"+key)
	return nil
}

func (s *fakeStorage) GetFile(_ context.Context, bucket, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.objects[bucket+"/"+key]
	if !ok {
		return nil, fmt.Errorf("object not found: %s/%s", bucket, key)
	}
	return append([]byte(nil), data...), nil
}

func (s *fakeStorage) GetObjectReader(ctx context.Context, bucket, key string) (io.ReadCloser, error) {
	data, err := s.GetFile(ctx, bucket, key)
	if err != nil {
		return nil, err
	}
	return io.NopCloser(strings.NewReader(string(data))), nil
}

// fakeEmbedProvider returns deterministic raw vectors; failAfter > 0 makes
// the call fail once that many texts have been embedded in total.
type fakeEmbedProvider struct {
	mu        sync.Mutex
	dim       int
	embedded  int
	failAfter int
}

var _ core.EmbeddingProvider = (*fakeEmbedProvider)(nil)

func (p *fakeEmbedProvider) EmbedTexts(_ context.Context, texts []string) ([][]float32, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([][]float32, len(texts))
	for i := range texts {
		if p.failAfter > 0 && p.embedded >= p.failAfter {
			return nil, errors.New("embedding provider unavailable")
		}
		p.embedded++
		vec := make([]float32, p.dim)
		for j := range vec {
			vec[j] = float32(j%7) + 1
		}
		out[i] = vec
	}
	return out, nil
}

// fakeLLM returns canned responses keyed by a substring of the system prompt,
// falling back to a default.
type fakeLLM struct {
	mu        sync.Mutex
	responses map[string]string
	fallback  string
	err       error
	calls     []string
}

var _ core.LLMProvider = (*fakeLLM)(nil)

func (l *fakeLLM) Generate(_ context.Context, systemPrompt, userPrompt string) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls = append(l.calls, userPrompt)
	if l.err != nil {
		return "", l.err
	}
	for key, resp := range l.responses {
		if strings.Contains(systemPrompt, key) {
			return resp, nil
		}
	}
	return l.fallback, nil
}
