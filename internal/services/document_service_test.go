package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/markdave123-py/Studya/internal/core/aierr"
	"github.com/markdave123-py/Studya/internal/jobs"
	"github.com/markdave123-py/Studya/internal/models"
	"github.com/markdave123-py/Studya/internal/platform/logger"
	"github.com/markdave123-py/Studya/internal/progress"
)

type docFixture struct {
	db      *fakeDB
	storage *fakeStorage
	bus     progress.Bus
	svc     *DocumentService
}

func newDocFixture(t *testing.T) *docFixture {
	t.Helper()
	db := newFakeDB()
	storage := newFakeStorage()
	bus := progress.NewMemoryBus()
	log := logger.NewNop()

	d := jobs.NewDispatcher(db, bus, log)
	noop := func(_ context.Context, _ *jobs.Run) (any, error) { return nil, nil }
	d.Register(models.JobKindIngest, noop)
	d.Register(models.JobKindVideo, noop)

	require.NoError(t, db.CreateNotebook(context.Background(), &models.Notebook{
		ID: "nb1", UserID: "u1", Title: "Algorithms", CreatedAt: time.Now(),
	}))

	svc := NewDocumentService(db, storage, d, bus, testBucket, 3000, 200, log)
	return &docFixture{db: db, storage: storage, bus: bus, svc: svc}
}

func TestUploadAppliesDefaultsAndStoresObject(t *testing.T) {
	fx := newDocFixture(t)

	doc, err := fx.svc.Upload(context.Background(), "u1", "nb1", "my notes.txt", "text/plain", []byte("content"), 0, 0)
	require.NoError(t, err)

	assert.Equal(t, models.DocStatusPending, doc.Status)
	assert.Equal(t, 3000, doc.ChunkSize)
	assert.Equal(t, 200, doc.ChunkOverlap)
	assert.Equal(t, "upload", doc.SourceType)

	bucket, key := parseS3URL(doc.StorageURL)
	assert.Equal(t, testBucket, bucket)
	data, err := fx.storage.GetFile(context.Background(), bucket, key)
	require.NoError(t, err)
	assert.Equal(t, "content", string(data))
}

func TestUploadRejectsBadChunkConfig(t *testing.T) {
	fx := newDocFixture(t)

	_, err := fx.svc.Upload(context.Background(), "u1", "nb1", "notes.txt", "text/plain", []byte("x"), 100, 50)
	assert.True(t, errors.Is(err, aierr.ErrValidation))
}

func TestApproveQueuesIngestion(t *testing.T) {
	fx := newDocFixture(t)
	doc, err := fx.svc.Upload(context.Background(), "u1", "nb1", "notes.txt", "text/plain", []byte("x"), 0, 0)
	require.NoError(t, err)

	set, err := fx.svc.Approve(context.Background(), "u1", doc.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobKindIngest, set.Kind)
	assert.Equal(t, models.JobStatusQueued, set.Status)
	assert.Equal(t, models.DocStatusApproved, fx.db.document(doc.ID).Status)

	// Only pending documents can be approved.
	_, err = fx.svc.Approve(context.Background(), "u1", doc.ID)
	assert.True(t, errors.Is(err, aierr.ErrValidation))
}

func TestRejectOnlyFromPending(t *testing.T) {
	fx := newDocFixture(t)
	doc, err := fx.svc.Upload(context.Background(), "u1", "nb1", "notes.txt", "text/plain", []byte("x"), 0, 0)
	require.NoError(t, err)

	require.NoError(t, fx.svc.Reject(context.Background(), "u1", doc.ID))
	assert.Equal(t, models.DocStatusRejected, fx.db.document(doc.ID).Status)

	err = fx.svc.Reject(context.Background(), "u1", doc.ID)
	assert.True(t, errors.Is(err, aierr.ErrValidation))
}

func TestRetryOnlyFromFailed(t *testing.T) {
	fx := newDocFixture(t)
	doc, err := fx.svc.Upload(context.Background(), "u1", "nb1", "notes.txt", "text/plain", []byte("x"), 0, 0)
	require.NoError(t, err)

	_, err = fx.svc.Retry(context.Background(), "u1", doc.ID)
	assert.True(t, errors.Is(err, aierr.ErrValidation))

	require.NoError(t, fx.db.UpdateDocumentStatus(context.Background(), doc.ID, models.DocStatusFailed))
	set, err := fx.svc.Retry(context.Background(), "u1", doc.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobKindIngest, set.Kind)
	assert.Equal(t, models.DocStatusApproved, fx.db.document(doc.ID).Status)
}

func TestVideoApprovalUsesVideoJobKind(t *testing.T) {
	fx := newDocFixture(t)
	doc, err := fx.svc.AddVideo(context.Background(), "u1", "nb1", "https://youtu.be/abc123", "lecture", 0, 0)
	require.NoError(t, err)
	assert.Equal(t, "video", doc.SourceType)

	set, err := fx.svc.Approve(context.Background(), "u1", doc.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobKindVideo, set.Kind)
}

func TestDeleteRemovesObjectAndAnnounces(t *testing.T) {
	fx := newDocFixture(t)
	doc, err := fx.svc.Upload(context.Background(), "u1", "nb1", "notes.txt", "text/plain", []byte("x"), 0, 0)
	require.NoError(t, err)
	bucket, key := parseS3URL(doc.StorageURL)

	events, cancel, err := fx.bus.SubscribeNotebook(context.Background(), "nb1")
	require.NoError(t, err)
	defer cancel()

	require.NoError(t, fx.svc.Delete(context.Background(), "u1", doc.ID))

	got, err := fx.db.GetDocumentByID(context.Background(), doc.ID)
	require.NoError(t, err)
	assert.Nil(t, got)

	_, err = fx.storage.GetFile(context.Background(), bucket, key)
	assert.Error(t, err)

	select {
	case ev := <-events:
		assert.Equal(t, progress.LifecycleDeleted, ev.Kind)
	case <-time.After(time.Second):
		t.Fatal("no lifecycle event for deletion")
	}
}

func TestDocumentAccessIsOwnerOnly(t *testing.T) {
	fx := newDocFixture(t)
	doc, err := fx.svc.Upload(context.Background(), "u1", "nb1", "notes.txt", "text/plain", []byte("x"), 0, 0)
	require.NoError(t, err)

	_, err = fx.svc.Get(context.Background(), "u2", doc.ID)
	assert.True(t, errors.Is(err, aierr.ErrPermission))

	_, err = fx.svc.Upload(context.Background(), "u2", "nb1", "other.txt", "text/plain", []byte("x"), 0, 0)
	assert.True(t, errors.Is(err, aierr.ErrPermission))
}
