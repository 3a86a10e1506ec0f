package media

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"

	"photovault/internal/metrics"
	"photovault/internal/storage"
)

// ReconcileStats counts the repairs applied by one reconciliation run.
type ReconcileStats struct {
	RunID            string
	Adopted          int
	DeletedBytes     int
	FixedState       int
	RemovedRecords   int
	OrphanThumbnails int
	Failed           int
}

// Reconcile brings the index and the object store back into agreement after
// a crash. Stored bytes younger than grace are left alone since an ingest may
// still be in flight for them.
//
// Bytes without a record are adopted when their extension is supported and
// deleted otherwise. Bytes of a tombstoned id are deleted. A record whose
// bytes sit in the other namespace takes that namespace's state; a record
// with no bytes at all is purged. Thumbnails without a matching original in
// the same namespace are deleted.
func (s *Service) Reconcile(ctx context.Context, grace time.Duration) (ReconcileStats, error) {
	if grace < 0 {
		grace = 0
	}
	stats := ReconcileStats{RunID: ulid.Make().String()}
	log := s.log.With().Str("run_id", stats.RunID).Logger()
	start := time.Now()
	cutoff := s.now().Add(-grace)

	for _, ns := range []storage.Namespace{storage.NamespaceActive, storage.NamespaceBin} {
		entries, err := s.store.List(ctx, ns, storage.ArtifactOriginal)
		if err != nil {
			return stats, fmt.Errorf("%w: list %s originals: %w", ErrStoreFailure, ns, err)
		}
		for _, e := range entries {
			if err := ctx.Err(); err != nil {
				return stats, err
			}
			s.reconcileBytes(ctx, log, &stats, ns, e, cutoff)
		}
	}

	for _, state := range []State{StateActive, StateBinned} {
		recs, err := s.repo.ListByState(ctx, state)
		if err != nil {
			return stats, fmt.Errorf("%w: list %s records: %w", ErrStoreFailure, state, err)
		}
		for _, rec := range recs {
			if err := ctx.Err(); err != nil {
				return stats, err
			}
			s.reconcileRecord(ctx, log, &stats, rec.UserID, rec.ObjectID)
		}
	}

	for _, ns := range []storage.Namespace{storage.NamespaceActive, storage.NamespaceBin} {
		thumbs, err := s.store.List(ctx, ns, storage.ArtifactThumbnail)
		if err != nil {
			return stats, fmt.Errorf("%w: list %s thumbnails: %w", ErrStoreFailure, ns, err)
		}
		for _, e := range thumbs {
			if err := ctx.Err(); err != nil {
				return stats, err
			}
			s.reconcileThumbnail(ctx, log, &stats, ns, e)
		}
	}

	log.Info().
		Int("adopted", stats.Adopted).
		Int("deleted_bytes", stats.DeletedBytes).
		Int("fixed_state", stats.FixedState).
		Int("removed_records", stats.RemovedRecords).
		Int("orphan_thumbnails", stats.OrphanThumbnails).
		Int("failed", stats.Failed).
		Dur("duration", time.Since(start)).
		Msg("reconciliation completed")
	return stats, nil
}

func (s *Service) reconcileBytes(ctx context.Context, log zerolog.Logger, stats *ReconcileStats, ns storage.Namespace, e storage.Entry, cutoff time.Time) {
	unlock := s.lock(e.UserID, e.ObjectID)
	defer unlock()

	log = log.With().Str("user_id", e.UserID).Str("object_id", e.ObjectID).Str("namespace", string(ns)).Logger()

	_, err := s.repo.Get(ctx, e.UserID, e.ObjectID)
	if err == nil {
		return
	}
	if !errors.Is(err, ErrNotFound) {
		stats.Failed++
		log.Error().Err(err).Msg("index lookup failed")
		return
	}

	tombstoned, err := s.repo.IsTombstoned(ctx, e.UserID, e.ObjectID)
	if err != nil {
		stats.Failed++
		log.Error().Err(err).Msg("tombstone lookup failed")
		return
	}
	if tombstoned {
		s.dropBytes(ctx, log, stats, ns, e, "tombstoned")
		return
	}
	if e.ModTime.After(cutoff) {
		return
	}

	kind, _, ok := KindFromFilename(e.ObjectID)
	if !ok {
		s.dropBytes(ctx, log, stats, ns, e, "unsupported")
		return
	}

	data, err := s.store.Read(ctx, ns, e.UserID, e.ObjectID)
	if err != nil {
		stats.Failed++
		log.Error().Err(err).Msg("orphan unreadable")
		return
	}

	rec := &Record{
		UserID:       e.UserID,
		ObjectID:     e.ObjectID,
		Kind:         kind,
		State:        StateActive,
		OriginalName: e.ObjectID,
		MimeType:     mimetype.Detect(data).String(),
		Size:         int64(len(data)),
		CreatedAt:    e.ModTime.UnixMilli(),
	}
	if ns == storage.NamespaceBin {
		deletedAt := s.now().UnixMilli()
		rec.State = StateBinned
		rec.DeletedAt = &deletedAt
	}
	if kind == KindImage {
		exists, err := s.store.Exists(ctx, ns, storage.ArtifactThumbnail, e.UserID, e.ObjectID)
		if err == nil && exists {
			rec.HasThumbnail = true
		} else {
			rec.HasThumbnail = s.renderThumbnail(ctx, log, "reconcile", ns, rec, data)
		}
	}

	if err := s.upsert(ctx, rec); err != nil {
		stats.Failed++
		log.Error().Err(err).Msg("failed to adopt orphan")
		return
	}
	stats.Adopted++
	metrics.RecordReconcile("adopt")
	log.Warn().Str("state", string(rec.State)).Msg("orphan adopted into index")
}

func (s *Service) dropBytes(ctx context.Context, log zerolog.Logger, stats *ReconcileStats, ns storage.Namespace, e storage.Entry, reason string) {
	if err := s.store.Delete(ctx, ns, storage.ArtifactOriginal, e.UserID, e.ObjectID); err != nil &&
		!errors.Is(err, storage.ErrNotFound) {
		stats.Failed++
		log.Error().Err(err).Msg("failed to delete unindexed bytes")
		return
	}
	s.deleteArtifact(ctx, log, ns, storage.ArtifactThumbnail, e.UserID, e.ObjectID)
	stats.DeletedBytes++
	metrics.RecordReconcile("delete_" + reason)
	log.Warn().Str("reason", reason).Msg("unindexed bytes deleted")
}

func (s *Service) reconcileRecord(ctx context.Context, log zerolog.Logger, stats *ReconcileStats, userID, objectID string) {
	unlock := s.lock(userID, objectID)
	defer unlock()

	log = log.With().Str("user_id", userID).Str("object_id", objectID).Logger()

	// Re-read under the lock; the listing may be stale.
	rec, err := s.repo.Get(ctx, userID, objectID)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			stats.Failed++
			log.Error().Err(err).Msg("index lookup failed")
		}
		return
	}

	here := rec.Namespace()
	there := storage.NamespaceBin
	if here == storage.NamespaceBin {
		there = storage.NamespaceActive
	}

	inHere, err := s.store.Exists(ctx, here, storage.ArtifactOriginal, userID, objectID)
	if err != nil {
		stats.Failed++
		log.Error().Err(err).Msg("stat failed")
		return
	}
	if inHere {
		return
	}
	inThere, err := s.store.Exists(ctx, there, storage.ArtifactOriginal, userID, objectID)
	if err != nil {
		stats.Failed++
		log.Error().Err(err).Msg("stat failed")
		return
	}

	if !inThere {
		s.indexMu.Lock()
		err := s.repo.Purge(ctx, rec, s.now().UnixMilli())
		s.indexMu.Unlock()
		if errors.Is(err, ErrNotFound) || errors.Is(err, ErrConflict) {
			log.Info().Err(err).Msg("record changed during reconciliation; skipped")
			return
		}
		if err != nil {
			stats.Failed++
			log.Error().Err(err).Msg("failed to remove record without bytes")
			return
		}
		s.deleteArtifact(ctx, log, storage.NamespaceActive, storage.ArtifactThumbnail, userID, objectID)
		s.deleteArtifact(ctx, log, storage.NamespaceBin, storage.ArtifactThumbnail, userID, objectID)
		stats.RemovedRecords++
		metrics.RecordReconcile("remove_record")
		log.Warn().Str("state", string(rec.State)).Msg("record without bytes removed")
		return
	}

	prev, prevDeletedAt := rec.State, rec.DeletedAt
	if there == storage.NamespaceBin {
		deletedAt := s.now().UnixMilli()
		rec.State = StateBinned
		rec.DeletedAt = &deletedAt
	} else {
		rec.State = StateActive
		rec.DeletedAt = nil
	}
	if rec.Kind == KindImage {
		err := s.store.MoveThumbnail(ctx, here, there, userID, objectID)
		if err != nil && !errors.Is(err, storage.ErrNotFound) {
			log.Warn().Err(err).Msg("thumbnail not moved with original")
		}
		rec.HasThumbnail, _ = s.store.Exists(ctx, there, storage.ArtifactThumbnail, userID, objectID)
	}

	if err := s.transition(ctx, rec, prev, prevDeletedAt); err != nil {
		if errors.Is(err, ErrNotFound) || errors.Is(err, ErrConflict) {
			log.Info().Err(err).Msg("record changed during reconciliation; skipped")
			return
		}
		stats.Failed++
		log.Error().Err(err).Msg("failed to fix record state")
		return
	}
	stats.FixedState++
	metrics.RecordReconcile("fix_state")
	log.Warn().Str("from", string(prev)).Str("to", string(rec.State)).Msg("record state fixed to match stored bytes")
}

func (s *Service) reconcileThumbnail(ctx context.Context, log zerolog.Logger, stats *ReconcileStats, ns storage.Namespace, e storage.Entry) {
	unlock := s.lock(e.UserID, e.ObjectID)
	defer unlock()

	ok, err := s.store.Exists(ctx, ns, storage.ArtifactOriginal, e.UserID, e.ObjectID)
	if err != nil || ok {
		return
	}
	if err := s.store.Delete(ctx, ns, storage.ArtifactThumbnail, e.UserID, e.ObjectID); err != nil &&
		!errors.Is(err, storage.ErrNotFound) {
		stats.Failed++
		log.Error().Err(err).Str("user_id", e.UserID).Str("object_id", e.ObjectID).Msg("failed to delete orphan thumbnail")
		return
	}
	stats.OrphanThumbnails++
	metrics.RecordReconcile("orphan_thumbnail")
	log.Warn().Str("user_id", e.UserID).Str("object_id", e.ObjectID).Str("namespace", string(ns)).Msg("orphan thumbnail deleted")
}
