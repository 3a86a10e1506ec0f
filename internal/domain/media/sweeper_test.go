package media

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"photovault/internal/storage"
)

func newTestSweeper(env *testEnv) *Sweeper {
	return NewSweeper(env.svc, SweeperConfig{
		Retention: DefaultRetention,
		Interval:  time.Hour,
		Now:       env.clock.Now,
	}, zerolog.Nop())
}

func TestSweeper_PurgesOnlyExpired(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	old := env.ingest(t, "u1", "a.jpg", jpegBytes(t, 20, 20))
	require.NoError(t, env.svc.SoftDelete(ctx, "u1", old.ObjectID))

	env.clock.Advance(24 * time.Hour)
	recent := env.ingest(t, "u1", "b.jpg", jpegBytes(t, 20, 20))
	require.NoError(t, env.svc.SoftDelete(ctx, "u1", recent.ObjectID))

	active := env.ingest(t, "u1", "c.jpg", jpegBytes(t, 20, 20))

	// old is 7d+1ms in the bin, recent only 6d.
	env.clock.Advance(6*24*time.Hour + time.Millisecond)

	stats := newTestSweeper(env).RunOnce(ctx)
	assert.NotEmpty(t, stats.RunID)
	assert.Equal(t, 2, stats.Scanned)
	assert.Equal(t, 1, stats.Expired)
	assert.Equal(t, 1, stats.Purged)
	assert.Equal(t, 0, stats.Failed)

	_, err := env.repo.Get(ctx, "u1", old.ObjectID)
	assert.ErrorIs(t, err, ErrNotFound)
	assertFile(t, env.path(storage.NamespaceBin, storage.ArtifactOriginal, "u1", old.ObjectID), false)

	got, err := env.repo.Get(ctx, "u1", recent.ObjectID)
	require.NoError(t, err)
	assert.Equal(t, StateBinned, got.State)

	got, err = env.repo.Get(ctx, "u1", active.ObjectID)
	require.NoError(t, err)
	assert.Equal(t, StateActive, got.State)
}

func TestSweeper_ExactlyAtRetentionIsPurged(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	rec := env.ingest(t, "u1", "a.mov", []byte("mov"))
	require.NoError(t, env.svc.SoftDelete(ctx, "u1", rec.ObjectID))

	env.clock.Advance(DefaultRetention)
	stats := newTestSweeper(env).RunOnce(ctx)
	assert.Equal(t, 1, stats.Purged)
}

func TestSweeper_CancelledContextPurgesNothing(t *testing.T) {
	env := newTestEnv(t)
	rec := env.ingest(t, "u1", "a.mov", []byte("mov"))
	require.NoError(t, env.svc.SoftDelete(context.Background(), "u1", rec.ObjectID))
	env.clock.Advance(DefaultRetention * 2)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	stats := newTestSweeper(env).RunOnce(ctx)
	assert.Equal(t, 0, stats.Purged)

	_, err := env.repo.Get(context.Background(), "u1", rec.ObjectID)
	assert.NoError(t, err)
}

func TestSweeper_StartRunsImmediatelyAndStops(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	rec := env.ingest(t, "u1", "a.avi", []byte("avi"))
	require.NoError(t, env.svc.SoftDelete(ctx, "u1", rec.ObjectID))
	env.clock.Advance(DefaultRetention + time.Millisecond)

	stop := newTestSweeper(env).Start(ctx)
	require.Eventually(t, func() bool {
		_, err := env.repo.Get(ctx, "u1", rec.ObjectID)
		return errors.Is(err, ErrNotFound)
	}, 5*time.Second, 10*time.Millisecond)

	stop()
	stop()
}

type mockPurger struct {
	mock.Mock
}

func (m *mockPurger) BinnedRecords(ctx context.Context) ([]*Record, error) {
	args := m.Called(ctx)
	recs, _ := args.Get(0).([]*Record)
	return recs, args.Error(1)
}

func (m *mockPurger) PurgeIfExpired(ctx context.Context, userID, objectID string, observed int64, cutoff time.Time) error {
	return m.Called(ctx, userID, objectID, observed, cutoff).Error(0)
}

func TestSweeper_CountsOutcomes(t *testing.T) {
	now := time.UnixMilli(10 * DefaultRetention.Milliseconds())
	expired := now.Add(-DefaultRetention - time.Hour).UnixMilli()
	fresh := now.Add(-time.Hour).UnixMilli()

	p := &mockPurger{}
	p.On("BinnedRecords", mock.Anything).Return([]*Record{
		{UserID: "u1", ObjectID: "ok.jpg", State: StateBinned, DeletedAt: &expired},
		{UserID: "u1", ObjectID: "restored.jpg", State: StateBinned, DeletedAt: &expired},
		{UserID: "u1", ObjectID: "gone.jpg", State: StateBinned, DeletedAt: &expired},
		{UserID: "u1", ObjectID: "broken.jpg", State: StateBinned, DeletedAt: &expired},
		{UserID: "u1", ObjectID: "fresh.jpg", State: StateBinned, DeletedAt: &fresh},
	}, nil)
	p.On("PurgeIfExpired", mock.Anything, "u1", "ok.jpg", expired, mock.Anything).Return(nil)
	p.On("PurgeIfExpired", mock.Anything, "u1", "restored.jpg", expired, mock.Anything).Return(ErrConflict)
	p.On("PurgeIfExpired", mock.Anything, "u1", "gone.jpg", expired, mock.Anything).Return(ErrNotFound)
	p.On("PurgeIfExpired", mock.Anything, "u1", "broken.jpg", expired, mock.Anything).Return(ErrStoreFailure)

	s := NewSweeper(p, SweeperConfig{Now: func() time.Time { return now }}, zerolog.Nop())
	stats := s.RunOnce(context.Background())

	assert.Equal(t, 5, stats.Scanned)
	assert.Equal(t, 4, stats.Expired)
	assert.Equal(t, 1, stats.Purged)
	assert.Equal(t, 2, stats.Skipped)
	assert.Equal(t, 1, stats.Failed)
	p.AssertNotCalled(t, "PurgeIfExpired", mock.Anything, "u1", "fresh.jpg", mock.Anything, mock.Anything)
	p.AssertExpectations(t)
}

func TestSweeper_EnumerationFailureIsCounted(t *testing.T) {
	p := &mockPurger{}
	p.On("BinnedRecords", mock.Anything).Return(nil, errors.New("db down"))

	stats := NewSweeper(p, SweeperConfig{}, zerolog.Nop()).RunOnce(context.Background())
	assert.Equal(t, 1, stats.Failed)
	assert.Equal(t, 0, stats.Purged)
}
