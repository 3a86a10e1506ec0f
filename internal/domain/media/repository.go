package media

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"photovault/internal/database"
)

// Repository is the metadata index. Service serializes the writes of one
// process; Transition and Purge only apply when the stored record still
// matches what the caller read, so writers in other processes sharing the
// database cannot overwrite each other.
type Repository interface {
	Upsert(ctx context.Context, r *Record) error
	Get(ctx context.Context, userID, objectID string) (*Record, error)
	ListByUser(ctx context.Context, userID string, state State) ([]*Record, error)
	ListByState(ctx context.Context, state State) ([]*Record, error)
	Transition(ctx context.Context, r *Record, from State, fromDeletedAt *int64) error
	Purge(ctx context.Context, observed *Record, purgedAt int64) error
	IsTaken(ctx context.Context, userID, objectID string) (bool, error)
	IsTombstoned(ctx context.Context, userID, objectID string) (bool, error)
}

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

// AutoMigrate creates the index tables.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(&Record{}, &Tombstone{})
}

func (r *repository) Upsert(ctx context.Context, rec *Record) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(rec).Error
}

func (r *repository) Get(ctx context.Context, userID, objectID string) (*Record, error) {
	var rec Record
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND object_id = ?", userID, objectID).
		First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (r *repository) ListByUser(ctx context.Context, userID string, state State) ([]*Record, error) {
	var recs []*Record
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND state = ?", userID, state).
		Find(&recs).Error
	return recs, err
}

func (r *repository) ListByState(ctx context.Context, state State) ([]*Record, error) {
	var recs []*Record
	err := r.db.WithContext(ctx).Where("state = ?", state).Find(&recs).Error
	return recs, err
}

// Transition writes the lifecycle columns of rec if the stored record is still
// in state from with DeletedAt equal to fromDeletedAt. It returns ErrNotFound
// when the record is gone and ErrConflict when it has moved on.
func (r *repository) Transition(ctx context.Context, rec *Record, from State, fromDeletedAt *int64) error {
	db := r.db.WithContext(ctx)
	res := matchObserved(db.Model(&Record{}), rec.UserID, rec.ObjectID, from, fromDeletedAt).
		Updates(map[string]any{
			"state":         rec.State,
			"deleted_at":    rec.DeletedAt,
			"has_thumbnail": rec.HasThumbnail,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return missingOrConflict(db, rec.UserID, rec.ObjectID)
	}
	return nil
}

// Purge removes the record and writes its tombstone in one transaction,
// provided the record still has the state and DeletedAt of observed.
func (r *repository) Purge(ctx context.Context, observed *Record, purgedAt int64) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := matchObserved(tx, observed.UserID, observed.ObjectID, observed.State, observed.DeletedAt).
			Delete(&Record{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return missingOrConflict(tx, observed.UserID, observed.ObjectID)
		}
		err := tx.Create(&Tombstone{UserID: observed.UserID, ObjectID: observed.ObjectID, PurgedAt: purgedAt}).Error
		if err != nil && !database.IsUniqueViolation(err) {
			return err
		}
		return nil
	})
}

func matchObserved(db *gorm.DB, userID, objectID string, state State, deletedAt *int64) *gorm.DB {
	db = db.Where("user_id = ? AND object_id = ? AND state = ?", userID, objectID, state)
	if deletedAt == nil {
		return db.Where("deleted_at IS NULL")
	}
	return db.Where("deleted_at = ?", *deletedAt)
}

func missingOrConflict(db *gorm.DB, userID, objectID string) error {
	var n int64
	if err := db.Model(&Record{}).
		Where("user_id = ? AND object_id = ?", userID, objectID).
		Count(&n).Error; err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return ErrConflict
}

func (r *repository) IsTaken(ctx context.Context, userID, objectID string) (bool, error) {
	var n int64
	if err := r.db.WithContext(ctx).Model(&Record{}).
		Where("user_id = ? AND object_id = ?", userID, objectID).
		Count(&n).Error; err != nil {
		return false, err
	}
	if n > 0 {
		return true, nil
	}
	return r.IsTombstoned(ctx, userID, objectID)
}

func (r *repository) IsTombstoned(ctx context.Context, userID, objectID string) (bool, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&Tombstone{}).
		Where("user_id = ? AND object_id = ?", userID, objectID).
		Count(&n).Error
	return n > 0, err
}
