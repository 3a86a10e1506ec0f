package media

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"photovault/internal/metrics"
	"photovault/internal/pkg/keylock"
	"photovault/internal/pkg/validator"
	"photovault/internal/storage"
	"photovault/internal/thumbnail"
)

const maxIDAttempts = 5

// ObjectStore is the byte storage used by Service.
type ObjectStore interface {
	Put(ctx context.Context, userID, objectID string, data []byte) error
	PutThumbnail(ctx context.Context, ns storage.Namespace, userID, objectID string, data []byte) error
	MoveToBin(ctx context.Context, userID, objectID string) error
	MoveToActive(ctx context.Context, userID, objectID string) error
	MoveThumbnail(ctx context.Context, from, to storage.Namespace, userID, objectID string) error
	Purge(ctx context.Context, userID, objectID string) error
	Read(ctx context.Context, ns storage.Namespace, userID, objectID string) ([]byte, error)
	ReadThumbnail(ctx context.Context, ns storage.Namespace, userID, objectID string) ([]byte, error)
	Delete(ctx context.Context, ns storage.Namespace, a storage.Artifact, userID, objectID string) error
	Exists(ctx context.Context, ns storage.Namespace, a storage.Artifact, userID, objectID string) (bool, error)
	List(ctx context.Context, ns storage.Namespace, a storage.Artifact) ([]storage.Entry, error)
}

// ThumbnailGenerator renders previews for image originals.
type ThumbnailGenerator interface {
	Generate(ctx context.Context, data []byte, kind thumbnail.Kind) ([]byte, error)
}

// RetryPolicy bounds how often a missing thumbnail is re-read.
type RetryPolicy struct {
	Attempts int
	Delay    time.Duration
}

type Options struct {
	MaxUploadBytes   int64
	ThumbnailTimeout time.Duration
	ThumbnailRetry   RetryPolicy
	// Now defaults to time.Now.
	Now func() time.Time
}

// Service is the lifecycle manager. It is the only writer of the metadata
// index and the only caller that moves or deletes stored bytes.
type Service struct {
	repo   Repository
	store  ObjectStore
	thumbs ThumbnailGenerator
	opts   Options
	log    zerolog.Logger

	locks   keylock.Map
	indexMu sync.Mutex
}

func NewService(repo Repository, store ObjectStore, thumbs ThumbnailGenerator, opts Options, log zerolog.Logger) *Service {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.ThumbnailRetry.Attempts < 0 {
		opts.ThumbnailRetry.Attempts = 0
	}
	return &Service{
		repo:   repo,
		store:  store,
		thumbs: thumbs,
		opts:   opts,
		log:    log.With().Str("component", "lifecycle").Logger(),
	}
}

func (s *Service) now() time.Time { return s.opts.Now() }

func (s *Service) lock(userID, objectID string) func() {
	return s.locks.Lock(userID + "/" + objectID)
}

// Ingest stores a new original, renders its thumbnail and records it as active.
func (s *Service) Ingest(ctx context.Context, cmd IngestCommand) (*Record, error) {
	if errs := validator.Validate(cmd); errs != nil {
		if _, bad := errs["UserID"]; bad {
			return nil, ErrInvalidUserID
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidName, errs)
	}
	if !storage.ValidSegment(cmd.UserID) {
		return nil, ErrInvalidUserID
	}
	kind, ext, ok := KindFromFilename(cmd.Filename)
	if !ok {
		metrics.RecordTransition("ingest", "unsupported")
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedType, ext)
	}
	if len(cmd.Data) == 0 {
		return nil, ErrEmptyFile
	}
	if s.opts.MaxUploadBytes > 0 && int64(len(cmd.Data)) > s.opts.MaxUploadBytes {
		return nil, ErrFileTooLarge
	}

	objectID, err := s.newObjectID(ctx, cmd.UserID, ext)
	if err != nil {
		return nil, err
	}

	unlock := s.lock(cmd.UserID, objectID)
	defer unlock()

	log := s.log.With().Str("user_id", cmd.UserID).Str("object_id", objectID).Logger()

	if err := s.store.Put(ctx, cmd.UserID, objectID, cmd.Data); err != nil {
		metrics.RecordTransition("ingest", "store_failure")
		return nil, fmt.Errorf("%w: store original: %w", ErrStoreFailure, err)
	}

	rec := &Record{
		UserID:       cmd.UserID,
		ObjectID:     objectID,
		Kind:         kind,
		State:        StateActive,
		OriginalName: cmd.Filename,
		MimeType:     mimetype.Detect(cmd.Data).String(),
		Size:         int64(len(cmd.Data)),
	}
	if kind == KindImage {
		rec.HasThumbnail = s.renderThumbnail(ctx, log, "ingest", storage.NamespaceActive, rec, cmd.Data)
	}
	rec.CreatedAt = s.now().UnixMilli()

	if err := s.upsert(ctx, rec); err != nil {
		log.Error().Err(err).Msg("index write failed after original was stored; left for reconciliation")
		metrics.RecordTransition("ingest", "index_failure")
		return nil, fmt.Errorf("%w: record media: %w", ErrStoreFailure, err)
	}

	metrics.RecordTransition("ingest", "ok")
	metrics.RecordIngest(string(kind), len(cmd.Data))
	log.Info().Str("kind", string(kind)).Int64("bytes", rec.Size).Bool("thumbnail", rec.HasThumbnail).Msg("media ingested")
	return rec.clone(), nil
}

// SoftDelete moves an active object into the bin.
func (s *Service) SoftDelete(ctx context.Context, userID, objectID string) error {
	unlock := s.lock(userID, objectID)
	defer unlock()

	rec, err := s.repo.Get(ctx, userID, objectID)
	if err != nil {
		return s.lookupErr("soft_delete", err)
	}
	if rec.State != StateActive {
		metrics.RecordTransition("soft_delete", "invalid_state")
		return ErrInvalidState
	}

	log := s.log.With().Str("user_id", userID).Str("object_id", objectID).Logger()
	if err := s.moveOriginal(ctx, rec, storage.NamespaceActive, storage.NamespaceBin); err != nil {
		metrics.RecordTransition("soft_delete", "store_failure")
		return s.missedMove(ctx, rec, err)
	}
	if rec.Kind == KindImage {
		if err := s.store.MoveThumbnail(ctx, storage.NamespaceActive, storage.NamespaceBin, userID, objectID); err != nil &&
			!errors.Is(err, storage.ErrNotFound) {
			log.Warn().Err(err).Msg("thumbnail not moved to bin")
		}
	}

	deletedAt := s.now().UnixMilli()
	rec.State = StateBinned
	rec.DeletedAt = &deletedAt
	if err := s.transition(ctx, rec, StateActive, nil); err != nil {
		return s.lostTransition(ctx, log, "soft_delete", rec, err)
	}

	metrics.RecordTransition("soft_delete", "ok")
	log.Info().Msg("media moved to bin")
	return nil
}

// Restore moves a binned object back to the active namespace. CreatedAt is kept.
func (s *Service) Restore(ctx context.Context, userID, objectID string) error {
	unlock := s.lock(userID, objectID)
	defer unlock()

	rec, err := s.repo.Get(ctx, userID, objectID)
	if err != nil {
		return s.lookupErr("restore", err)
	}
	if rec.State != StateBinned {
		metrics.RecordTransition("restore", "invalid_state")
		return ErrInvalidState
	}
	observedDeletedAt := rec.DeletedAt

	if err := s.moveOriginal(ctx, rec, storage.NamespaceBin, storage.NamespaceActive); err != nil {
		metrics.RecordTransition("restore", "store_failure")
		return s.missedMove(ctx, rec, err)
	}

	log := s.log.With().Str("user_id", userID).Str("object_id", objectID).Logger()
	rec.HasThumbnail = false
	if rec.Kind == KindImage {
		s.deleteArtifact(ctx, log, storage.NamespaceBin, storage.ArtifactThumbnail, userID, objectID)
		data, err := s.store.Read(ctx, storage.NamespaceActive, userID, objectID)
		if err != nil {
			log.Warn().Err(err).Msg("restored original unreadable; thumbnail not regenerated")
		} else {
			rec.HasThumbnail = s.renderThumbnail(ctx, log, "restore", storage.NamespaceActive, rec, data)
		}
	}

	rec.State = StateActive
	rec.DeletedAt = nil
	if err := s.transition(ctx, rec, StateBinned, observedDeletedAt); err != nil {
		return s.lostTransition(ctx, log, "restore", rec, err)
	}

	metrics.RecordTransition("restore", "ok")
	log.Info().Msg("media restored")
	return nil
}

// Purge irreversibly removes a binned object.
func (s *Service) Purge(ctx context.Context, userID, objectID string) error {
	unlock := s.lock(userID, objectID)
	defer unlock()

	rec, err := s.repo.Get(ctx, userID, objectID)
	if err != nil {
		return s.lookupErr("purge", err)
	}
	if rec.State != StateBinned {
		metrics.RecordTransition("purge", "invalid_state")
		return ErrInvalidState
	}
	return s.purgeLocked(ctx, rec)
}

// PurgeIfExpired purges an object the sweeper observed as binned at
// observedDeletedAt, provided it is still in that exact state and its
// DeletedAt is not after cutoff. Anything else is ErrConflict.
func (s *Service) PurgeIfExpired(ctx context.Context, userID, objectID string, observedDeletedAt int64, cutoff time.Time) error {
	unlock := s.lock(userID, objectID)
	defer unlock()

	rec, err := s.repo.Get(ctx, userID, objectID)
	if err != nil {
		return s.lookupErr("purge", err)
	}
	if rec.State != StateBinned || rec.DeletedAt == nil || *rec.DeletedAt != observedDeletedAt {
		metrics.RecordTransition("purge", "conflict")
		return ErrConflict
	}
	if *rec.DeletedAt > cutoff.UnixMilli() {
		metrics.RecordTransition("purge", "conflict")
		return ErrConflict
	}
	return s.purgeLocked(ctx, rec)
}

// purgeLocked claims the record first: the index row is removed and
// tombstoned only if it still matches rec, and bytes are deleted afterwards.
// Bytes left behind by a crash in between carry a tombstone and are removed
// by Reconcile.
func (s *Service) purgeLocked(ctx context.Context, rec *Record) error {
	log := s.log.With().Str("user_id", rec.UserID).Str("object_id", rec.ObjectID).Logger()

	s.indexMu.Lock()
	err := s.repo.Purge(ctx, rec, s.now().UnixMilli())
	s.indexMu.Unlock()
	switch {
	case errors.Is(err, ErrNotFound):
		metrics.RecordTransition("purge", "not_found")
		return ErrNotFound
	case errors.Is(err, ErrConflict):
		metrics.RecordTransition("purge", "conflict")
		log.Warn().Msg("record changed before purge; left untouched")
		return ErrConflict
	case err != nil:
		metrics.RecordTransition("purge", "index_failure")
		return fmt.Errorf("%w: remove record: %w", ErrStoreFailure, err)
	}

	if err := s.store.Purge(ctx, rec.UserID, rec.ObjectID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			log.Warn().Msg("binned original already gone")
		} else {
			log.Error().Err(err).Msg("failed to delete binned original")
		}
	}
	s.deleteArtifact(ctx, log, storage.NamespaceBin, storage.ArtifactThumbnail, rec.UserID, rec.ObjectID)
	s.deleteArtifact(ctx, log, storage.NamespaceActive, storage.ArtifactThumbnail, rec.UserID, rec.ObjectID)

	metrics.RecordTransition("purge", "ok")
	log.Info().Msg("media purged")
	return nil
}

// ListActive returns the user's active objects, newest first.
func (s *Service) ListActive(ctx context.Context, userID string) ([]*Record, error) {
	recs, err := s.repo.ListByUser(ctx, userID, StateActive)
	if err != nil {
		return nil, fmt.Errorf("%w: list media: %w", ErrStoreFailure, err)
	}
	sort.Slice(recs, func(i, j int) bool { return recs[i].CreatedAt > recs[j].CreatedAt })
	return recs, nil
}

// ListBinned returns the user's binned objects, most recently deleted first.
func (s *Service) ListBinned(ctx context.Context, userID string) ([]*Record, error) {
	recs, err := s.repo.ListByUser(ctx, userID, StateBinned)
	if err != nil {
		return nil, fmt.Errorf("%w: list bin: %w", ErrStoreFailure, err)
	}
	sort.Slice(recs, func(i, j int) bool { return deletedAt(recs[i]) > deletedAt(recs[j]) })
	return recs, nil
}

// GetOriginal reads the original from the namespace its state points at.
func (s *Service) GetOriginal(ctx context.Context, userID, objectID string) (*Record, *Content, error) {
	unlock := s.lock(userID, objectID)
	defer unlock()

	rec, err := s.repo.Get(ctx, userID, objectID)
	if err != nil {
		return nil, nil, s.lookupErr("", err)
	}
	data, err := s.store.Read(ctx, rec.Namespace(), userID, objectID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			s.log.Error().Str("user_id", userID).Str("object_id", objectID).
				Str("state", string(rec.State)).Msg("indexed original missing from its namespace")
			return nil, nil, ErrNotFound
		}
		return nil, nil, fmt.Errorf("%w: read original: %w", ErrStoreFailure, err)
	}
	return rec, &Content{Data: data, MimeType: rec.MimeType, Name: rec.OriginalName}, nil
}

var errThumbnailMissing = errors.New("thumbnail missing")

// GetThumbnail returns the thumbnail of an image. Videos yield
// ErrThumbnailSkipped and images recorded without a thumbnail yield
// ErrThumbnailUnavailable at once. A thumbnail that is recorded but not yet
// readable is re-read according to the retry policy.
func (s *Service) GetThumbnail(ctx context.Context, userID, objectID string) (*Content, error) {
	for attempt := 0; ; attempt++ {
		c, err := s.readThumbnail(ctx, userID, objectID)
		if err == nil {
			return c, nil
		}
		if !errors.Is(err, errThumbnailMissing) {
			return nil, err
		}
		if attempt >= s.opts.ThumbnailRetry.Attempts {
			return nil, ErrThumbnailUnavailable
		}

		t := time.NewTimer(s.opts.ThumbnailRetry.Delay)
		select {
		case <-ctx.Done():
			t.Stop()
			return nil, ctx.Err()
		case <-t.C:
		}
	}
}

func (s *Service) readThumbnail(ctx context.Context, userID, objectID string) (*Content, error) {
	unlock := s.lock(userID, objectID)
	defer unlock()

	rec, err := s.repo.Get(ctx, userID, objectID)
	if err != nil {
		return nil, s.lookupErr("", err)
	}
	if rec.Kind != KindImage {
		return nil, ErrThumbnailSkipped
	}
	if !rec.HasThumbnail {
		return nil, ErrThumbnailUnavailable
	}
	data, err := s.store.ReadThumbnail(ctx, rec.Namespace(), userID, objectID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, errThumbnailMissing
		}
		return nil, fmt.Errorf("%w: read thumbnail: %w", ErrStoreFailure, err)
	}
	return &Content{Data: data, MimeType: thumbnail.MimeType, Name: rec.OriginalName}, nil
}

// BinnedRecords lists binned objects of every user.
func (s *Service) BinnedRecords(ctx context.Context) ([]*Record, error) {
	return s.repo.ListByState(ctx, StateBinned)
}

// renderThumbnail generates and stores a thumbnail, reporting whether one now
// exists. Every failure degrades to "no thumbnail".
func (s *Service) renderThumbnail(ctx context.Context, log zerolog.Logger, trigger string, ns storage.Namespace, rec *Record, data []byte) bool {
	tctx := ctx
	if s.opts.ThumbnailTimeout > 0 {
		var cancel context.CancelFunc
		tctx, cancel = context.WithTimeout(ctx, s.opts.ThumbnailTimeout)
		defer cancel()
	}

	start := time.Now()
	thumb, err := s.thumbs.Generate(tctx, data, thumbnail.Kind(rec.Kind))
	elapsed := time.Since(start).Seconds()
	if err != nil {
		if errors.Is(err, thumbnail.ErrSkip) {
			return false
		}
		metrics.RecordThumbnail(trigger, "failed", elapsed)
		log.Warn().Err(err).Msg("thumbnail generation failed; continuing without thumbnail")
		return false
	}
	if err := s.store.PutThumbnail(ctx, ns, rec.UserID, rec.ObjectID, thumb); err != nil {
		metrics.RecordThumbnail(trigger, "store_failed", elapsed)
		log.Warn().Err(err).Msg("thumbnail not stored; continuing without thumbnail")
		return false
	}
	metrics.RecordThumbnail(trigger, "ok", elapsed)
	return true
}

// moveOriginal moves the record's bytes. When the source is missing but the
// bytes already sit in the destination (a move that completed before a crash),
// the move counts as done.
func (s *Service) moveOriginal(ctx context.Context, rec *Record, from, to storage.Namespace) error {
	var err error
	if to == storage.NamespaceBin {
		err = s.store.MoveToBin(ctx, rec.UserID, rec.ObjectID)
	} else {
		err = s.store.MoveToActive(ctx, rec.UserID, rec.ObjectID)
	}
	if err == nil {
		return nil
	}
	if errors.Is(err, storage.ErrNotFound) {
		if ok, xerr := s.store.Exists(ctx, to, storage.ArtifactOriginal, rec.UserID, rec.ObjectID); xerr == nil && ok {
			s.log.Warn().Str("user_id", rec.UserID).Str("object_id", rec.ObjectID).
				Str("namespace", string(to)).Msg("original already in destination; completing transition")
			return nil
		}
		return fmt.Errorf("%w: original missing from %s", ErrStoreFailure, from)
	}
	return fmt.Errorf("%w: move original: %w", ErrStoreFailure, err)
}

func (s *Service) deleteArtifact(ctx context.Context, log zerolog.Logger, ns storage.Namespace, a storage.Artifact, userID, objectID string) {
	if err := s.store.Delete(ctx, ns, a, userID, objectID); err != nil && !errors.Is(err, storage.ErrNotFound) {
		log.Warn().Err(err).Str("namespace", string(ns)).Str("artifact", string(a)).Msg("failed to delete artifact")
	}
}

func (s *Service) upsert(ctx context.Context, rec *Record) error {
	s.indexMu.Lock()
	defer s.indexMu.Unlock()
	return s.repo.Upsert(ctx, rec)
}

func (s *Service) transition(ctx context.Context, rec *Record, from State, fromDeletedAt *int64) error {
	s.indexMu.Lock()
	defer s.indexMu.Unlock()
	return s.repo.Transition(ctx, rec, from, fromDeletedAt)
}

// lostTransition handles an index write that found the record changed by
// another process after this one had moved its bytes. If the object was
// purged meanwhile, the moved bytes are dropped.
func (s *Service) lostTransition(ctx context.Context, log zerolog.Logger, op string, rec *Record, err error) error {
	if !errors.Is(err, ErrConflict) && !errors.Is(err, ErrNotFound) {
		metrics.RecordTransition(op, "index_failure")
		return fmt.Errorf("%w: record %s: %w", ErrStoreFailure, op, err)
	}
	metrics.RecordTransition(op, "conflict")

	tombstoned, terr := s.repo.IsTombstoned(ctx, rec.UserID, rec.ObjectID)
	if terr == nil && tombstoned {
		ns := rec.Namespace()
		s.deleteArtifact(ctx, log, ns, storage.ArtifactOriginal, rec.UserID, rec.ObjectID)
		s.deleteArtifact(ctx, log, ns, storage.ArtifactThumbnail, rec.UserID, rec.ObjectID)
		log.Warn().Str("op", op).Msg("object purged concurrently; moved bytes dropped")
		return ErrNotFound
	}
	log.Warn().Str("op", op).Msg("object changed concurrently")
	if errors.Is(err, ErrNotFound) {
		return ErrNotFound
	}
	return ErrConflict
}

// missedMove maps a failed move onto NotFound when the object was purged
// while the move was attempted.
func (s *Service) missedMove(ctx context.Context, rec *Record, err error) error {
	if tombstoned, terr := s.repo.IsTombstoned(ctx, rec.UserID, rec.ObjectID); terr == nil && tombstoned {
		return ErrNotFound
	}
	return err
}

func (s *Service) newObjectID(ctx context.Context, userID, ext string) (string, error) {
	for i := 0; i < maxIDAttempts; i++ {
		id := uuid.NewString() + ext
		taken, err := s.repo.IsTaken(ctx, userID, id)
		if err != nil {
			return "", fmt.Errorf("%w: check object id: %w", ErrStoreFailure, err)
		}
		if !taken {
			return id, nil
		}
		s.log.Warn().Str("user_id", userID).Str("object_id", id).Msg("generated object id already used; drawing again")
	}
	return "", fmt.Errorf("%w: no free object id after %d attempts", ErrStoreFailure, maxIDAttempts)
}

func (s *Service) lookupErr(op string, err error) error {
	if errors.Is(err, ErrNotFound) {
		if op != "" {
			metrics.RecordTransition(op, "not_found")
		}
		return ErrNotFound
	}
	return fmt.Errorf("%w: lookup: %w", ErrStoreFailure, err)
}

func deletedAt(r *Record) int64 {
	if r.DeletedAt == nil {
		return 0
	}
	return *r.DeletedAt
}
