package media

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"photovault/internal/storage"
)

func (e *testEnv) age(t *testing.T, ns storage.Namespace, a storage.Artifact, userID, objectID string, d time.Duration) {
	t.Helper()
	old := e.clock.Now().Add(-d)
	require.NoError(t, os.Chtimes(e.path(ns, a, userID, objectID), old, old))
}

func TestReconcile_AdoptsOldOrphans(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	data := jpegBytes(t, 50, 50)

	require.NoError(t, env.store.Put(ctx, "u1", "orphan.jpg", data))
	env.age(t, storage.NamespaceActive, storage.ArtifactOriginal, "u1", "orphan.jpg", 2*time.Hour)

	require.NoError(t, env.store.Put(ctx, "u1", "binned.mp4", []byte("mp4")))
	require.NoError(t, env.store.MoveToBin(ctx, "u1", "binned.mp4"))
	env.age(t, storage.NamespaceBin, storage.ArtifactOriginal, "u1", "binned.mp4", 2*time.Hour)

	stats, err := env.svc.Reconcile(ctx, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Adopted)

	rec, err := env.repo.Get(ctx, "u1", "orphan.jpg")
	require.NoError(t, err)
	assert.Equal(t, StateActive, rec.State)
	assert.Equal(t, KindImage, rec.Kind)
	assert.True(t, rec.HasThumbnail)
	assertFile(t, env.path(storage.NamespaceActive, storage.ArtifactThumbnail, "u1", "orphan.jpg"), true)

	rec, err = env.repo.Get(ctx, "u1", "binned.mp4")
	require.NoError(t, err)
	assert.Equal(t, StateBinned, rec.State)
	require.NotNil(t, rec.DeletedAt)
	assert.Equal(t, env.clock.Now().UnixMilli(), *rec.DeletedAt)
}

func TestReconcile_LeavesYoungOrphans(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	require.NoError(t, env.store.Put(ctx, "u1", "fresh.jpg", []byte("x")))

	stats, err := env.svc.Reconcile(ctx, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 0, stats.Adopted)
	assert.Equal(t, 0, stats.DeletedBytes)

	_, err = env.repo.Get(ctx, "u1", "fresh.jpg")
	assert.ErrorIs(t, err, ErrNotFound)
	assertFile(t, env.path(storage.NamespaceActive, storage.ArtifactOriginal, "u1", "fresh.jpg"), true)
}

func TestReconcile_DeletesUnsupportedAndTombstonedBytes(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	require.NoError(t, env.store.Put(ctx, "u1", "notes.txt", []byte("hello")))
	env.age(t, storage.NamespaceActive, storage.ArtifactOriginal, "u1", "notes.txt", 2*time.Hour)

	data := jpegBytes(t, 20, 20)
	rec := env.ingest(t, "u1", "a.jpg", data)
	require.NoError(t, env.svc.SoftDelete(ctx, "u1", rec.ObjectID))
	require.NoError(t, env.svc.Purge(ctx, "u1", rec.ObjectID))
	// half-finished purge: bytes came back after the tombstone was written
	require.NoError(t, env.store.Put(ctx, "u1", rec.ObjectID, data))
	require.NoError(t, env.store.MoveToBin(ctx, "u1", rec.ObjectID))

	stats, err := env.svc.Reconcile(ctx, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.DeletedBytes)
	assert.Equal(t, 0, stats.Adopted)

	assertFile(t, env.path(storage.NamespaceActive, storage.ArtifactOriginal, "u1", "notes.txt"), false)
	assertFile(t, env.path(storage.NamespaceBin, storage.ArtifactOriginal, "u1", rec.ObjectID), false)
	_, err = env.repo.Get(ctx, "u1", rec.ObjectID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestReconcile_FixesStateFromFilesystem(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	moved := env.ingest(t, "u1", "a.jpg", jpegBytes(t, 20, 20))
	// SoftDelete crashed after the move but before the index write.
	require.NoError(t, env.store.MoveToBin(ctx, "u1", moved.ObjectID))

	back := env.ingest(t, "u1", "b.mp4", []byte("mp4"))
	require.NoError(t, env.svc.SoftDelete(ctx, "u1", back.ObjectID))
	// Restore crashed after the move.
	require.NoError(t, env.store.MoveToActive(ctx, "u1", back.ObjectID))

	stats, err := env.svc.Reconcile(ctx, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.FixedState)

	got, err := env.repo.Get(ctx, "u1", moved.ObjectID)
	require.NoError(t, err)
	assert.Equal(t, StateBinned, got.State)
	assert.NotNil(t, got.DeletedAt)
	assert.True(t, got.HasThumbnail)
	assertFile(t, env.path(storage.NamespaceBin, storage.ArtifactThumbnail, "u1", moved.ObjectID), true)

	got, err = env.repo.Get(ctx, "u1", back.ObjectID)
	require.NoError(t, err)
	assert.Equal(t, StateActive, got.State)
	assert.Nil(t, got.DeletedAt)
}

func TestReconcile_RemovesRecordsWithoutBytes(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	rec := env.ingest(t, "u1", "a.jpg", jpegBytes(t, 20, 20))
	require.NoError(t, os.Remove(env.path(storage.NamespaceActive, storage.ArtifactOriginal, "u1", rec.ObjectID)))

	stats, err := env.svc.Reconcile(ctx, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.RemovedRecords)

	_, err = env.repo.Get(ctx, "u1", rec.ObjectID)
	assert.ErrorIs(t, err, ErrNotFound)
	taken, err := env.repo.IsTaken(ctx, "u1", rec.ObjectID)
	require.NoError(t, err)
	assert.True(t, taken)
	assertFile(t, env.path(storage.NamespaceActive, storage.ArtifactThumbnail, "u1", rec.ObjectID), false)
}

func TestReconcile_DeletesOrphanThumbnails(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	kept := env.ingest(t, "u1", "a.jpg", jpegBytes(t, 20, 20))
	require.NoError(t, env.store.PutThumbnail(ctx, storage.NamespaceActive, "u1", "ghost.jpg", []byte("thumb")))
	require.NoError(t, env.store.PutThumbnail(ctx, storage.NamespaceBin, "u1", kept.ObjectID, []byte("stale")))

	stats, err := env.svc.Reconcile(ctx, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.OrphanThumbnails)

	assertFile(t, env.path(storage.NamespaceActive, storage.ArtifactThumbnail, "u1", "ghost.jpg"), false)
	assertFile(t, env.path(storage.NamespaceBin, storage.ArtifactThumbnail, "u1", kept.ObjectID), false)
	assertFile(t, env.path(storage.NamespaceActive, storage.ArtifactThumbnail, "u1", kept.ObjectID), true)
}

func TestReconcile_ConsistentStoreIsUntouched(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	a := env.ingest(t, "u1", "a.jpg", jpegBytes(t, 20, 20))
	b := env.ingest(t, "u1", "b.jpg", jpegBytes(t, 20, 20))
	require.NoError(t, env.svc.SoftDelete(ctx, "u1", b.ObjectID))

	stats, err := env.svc.Reconcile(ctx, 0)
	require.NoError(t, err)
	assert.Zero(t, stats.Adopted+stats.DeletedBytes+stats.FixedState+stats.RemovedRecords+stats.OrphanThumbnails+stats.Failed)

	for _, id := range []string{a.ObjectID, b.ObjectID} {
		_, err := env.repo.Get(ctx, "u1", id)
		assert.NoError(t, err)
	}
}

func TestReconcile_AdoptsOrphanLeftByFailedIngest(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.svc.repo = &failingRepo{Repository: env.repo, upsertErr: assert.AnError}
	_, err := env.svc.Ingest(ctx, IngestCommand{UserID: "u1", Filename: "lost.png", Data: jpegBytes(t, 20, 20)})
	require.ErrorIs(t, err, ErrStoreFailure)
	env.svc.repo = env.repo

	entries, err := env.store.List(ctx, storage.NamespaceActive, storage.ArtifactOriginal)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	id := entries[0].ObjectID
	env.age(t, storage.NamespaceActive, storage.ArtifactOriginal, "u1", id, 2*time.Hour)

	stats, err := env.svc.Reconcile(ctx, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Adopted)

	recs, err := env.svc.ListActive(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, id, recs[0].ObjectID)
}
