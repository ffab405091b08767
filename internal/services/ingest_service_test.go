package services

import (
	"context"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/markdave123-py/Studya/internal/core"
	"github.com/markdave123-py/Studya/internal/core/embedding"
	"github.com/markdave123-py/Studya/internal/core/extraction"
	"github.com/markdave123-py/Studya/internal/jobs"
	"github.com/markdave123-py/Studya/internal/models"
	"github.com/markdave123-py/Studya/internal/platform/logger"
	"github.com/markdave123-py/Studya/internal/progress"
)

const testBucket = "test-bucket"

type fakeTranscripts struct {
	segments []core.CaptionSegment
}

func (f *fakeTranscripts) ExtractCaptions(_ context.Context, _ string) ([]core.CaptionSegment, error) {
	return f.segments, nil
}

type ingestFixture struct {
	db      *fakeDB
	storage *fakeStorage
	embed   *fakeEmbedProvider
	d       *jobs.Dispatcher
}

func newIngestFixture(t *testing.T, transcripts core.TranscriptProvider, failAfter int) *ingestFixture {
	t.Helper()
	db := newFakeDB()
	storage := newFakeStorage()
	embed := &fakeEmbedProvider{dim: 768, failAfter: failAfter}

	log := logger.NewNop()
	extractor := extraction.NewExtractor(nil, transcripts, false, log)
	normalizer := embedding.NewNormalizer(embed, 1536)
	svc := NewIngestService(db, storage, extractor, normalizer, log)

	d := jobs.NewDispatcher(db, progress.NewMemoryBus(), log)
	d.Register(models.JobKindIngest, svc.Handle)
	d.Register(models.JobKindVideo, svc.Handle)
	return &ingestFixture{db: db, storage: storage, embed: embed, d: d}
}

func (fx *ingestFixture) seedDocument(t *testing.T, text string, status string) *models.Document {
	t.Helper()
	_, err := fx.storage.UploadFile(context.Background(), testBucket, "users/u1/documents/d1/notes.txt", []byte(text), "text/plain")
	require.NoError(t, err)

	doc := &models.Document{
		ID:           "d1",
		NotebookID:   "nb1",
		UserID:       "u1",
		FileName:     "notes.txt",
		StorageURL:   "https://" + testBucket + ".s3.us-east-2.amazonaws.com/users/u1/documents/d1/notes.txt",
		SourceType:   "upload",
		ContentType:  "text/plain",
		ChunkSize:    3000,
		ChunkOverlap: 200,
		Status:       status,
		CreatedAt:    time.Now(),
		UpdatedAt:    time.Now(),
	}
	require.NoError(t, fx.db.CreateDocument(context.Background(), doc))
	return doc
}

func waitForSet(t *testing.T, db *fakeDB, id string, statuses ...string) models.AiSet {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		set := db.set(id)
		for _, want := range statuses {
			if set.Status == want {
				return set
			}
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("job %s never reached %v (now %s)", id, statuses, db.set(id).Status)
	return models.AiSet{}
}

func TestIngestProducesUnitNormChunks(t *testing.T) {
	fx := newIngestFixture(t, nil, 0)
	text := strings.Repeat("a", 9000)
	fx.seedDocument(t, text, models.DocStatusApproved)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	fx.d.Start(ctx, 1)

	set, err := fx.d.Submit(ctx, "nb1", "u1", models.JobKindIngest, IngestInput{DocumentID: "d1"})
	require.NoError(t, err)

	final := waitForSet(t, fx.db, set.ID, models.JobStatusDone)
	assert.Contains(t, string(final.OutputStats), `"chunk_count":4`)

	doc := fx.db.document("d1")
	assert.Equal(t, models.DocStatusDone, doc.Status)
	assert.True(t, doc.TextExtracted)
	assert.True(t, doc.EmbeddingsBuilt)

	chunks, err := fx.db.GetChunksByDocument(ctx, "d1", 0)
	require.NoError(t, err)
	require.Len(t, chunks, 4)
	for i, ch := range chunks {
		assert.Equal(t, i, ch.ChunkIndex)
		require.Len(t, ch.Embedding, 1536)

		var sum float64
		for _, v := range ch.Embedding {
			sum += float64(v) * float64(v)
		}
		assert.InDelta(t, 1.0, math.Sqrt(sum), 1e-5)
	}

	// Overlap: each chunk after the first repeats the previous 200 chars.
	assert.Len(t, chunks[0].Text, 3000)
	assert.Equal(t, chunks[0].Text[2800:], chunks[1].Text[:200])
}

func TestIngestEmbeddingFailureLeavesNoChunks(t *testing.T) {
	fx := newIngestFixture(t, nil, 2) // fail on the third chunk
	fx.seedDocument(t, strings.Repeat("b", 13000), models.DocStatusApproved)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	fx.d.Start(ctx, 1)

	set, err := fx.d.Submit(ctx, "nb1", "u1", models.JobKindIngest, IngestInput{DocumentID: "d1"})
	require.NoError(t, err)

	final := waitForSet(t, fx.db, set.ID, models.JobStatusFailed)
	assert.Contains(t, final.ErrorMessage, "embedding")

	// All or nothing: a mid-batch failure must not leave partial chunks.
	assert.Equal(t, 0, fx.db.chunkCount("d1"))
	assert.Equal(t, 0, fx.db.replaceCalls)

	doc := fx.db.document("d1")
	assert.Equal(t, models.DocStatusFailed, doc.Status)
	assert.True(t, doc.TextExtracted)
	assert.False(t, doc.EmbeddingsBuilt)
}

func TestIngestRequiresApprovedStatus(t *testing.T) {
	fx := newIngestFixture(t, nil, 0)
	fx.seedDocument(t, "short text", models.DocStatusPending)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	fx.d.Start(ctx, 1)

	set, err := fx.d.Submit(ctx, "nb1", "u1", models.JobKindIngest, IngestInput{DocumentID: "d1"})
	require.NoError(t, err)

	final := waitForSet(t, fx.db, set.ID, models.JobStatusFailed)
	assert.Contains(t, final.ErrorMessage, "not in approved state")
	assert.Equal(t, models.DocStatusPending, fx.db.document("d1").Status)
}

func TestIngestReplacesChunksOnReingestion(t *testing.T) {
	fx := newIngestFixture(t, nil, 0)
	fx.seedDocument(t, strings.Repeat("c", 6000), models.DocStatusApproved)

	// Stale chunks from a previous run must be gone afterwards.
	require.NoError(t, fx.db.ReplaceDocumentChunks(context.Background(), "d1", []models.DocumentChunk{
		{ID: "old", DocumentID: "d1", ChunkIndex: 99, Text: "stale"},
	}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	fx.d.Start(ctx, 1)

	set, err := fx.d.Submit(ctx, "nb1", "u1", models.JobKindIngest, IngestInput{DocumentID: "d1"})
	require.NoError(t, err)
	waitForSet(t, fx.db, set.ID, models.JobStatusDone)

	chunks, err := fx.db.GetChunksByDocument(ctx, "d1", 0)
	require.NoError(t, err)
	require.Len(t, chunks, 3)
	for _, ch := range chunks {
		assert.NotEqual(t, "stale", ch.Text)
	}
}

func TestVideoIngestMergesRollingCaptions(t *testing.T) {
	tp := &fakeTranscripts{segments: []core.CaptionSegment{
		{StartSec: 0, Text: "welcome to"},
		{StartSec: 1, Text: "welcome to the course"},
		{StartSec: 4, Text: "today we cover trees"},
	}}
	fx := newIngestFixture(t, tp, 0)

	doc := &models.Document{
		ID:           "v1",
		NotebookID:   "nb1",
		UserID:       "u1",
		FileName:     "lecture",
		StorageURL:   "https://youtu.be/abc123",
		SourceType:   "video",
		ChunkSize:    3000,
		ChunkOverlap: 200,
		Status:       models.DocStatusApproved,
		CreatedAt:    time.Now(),
	}
	require.NoError(t, fx.db.CreateDocument(context.Background(), doc))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	fx.d.Start(ctx, 1)

	set, err := fx.d.Submit(ctx, "nb1", "u1", models.JobKindVideo, IngestInput{DocumentID: "v1"})
	require.NoError(t, err)
	waitForSet(t, fx.db, set.ID, models.JobStatusDone)

	chunks, err := fx.db.GetChunksByDocument(ctx, "v1", 0)
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	// The rolling prefix "welcome to" is folded into its grown successor.
	assert.Equal(t, "welcome to the course\ntoday we cover trees", chunks[0].Text)
}
