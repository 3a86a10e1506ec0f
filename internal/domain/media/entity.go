package media

import (
	"path/filepath"
	"strings"

	"photovault/internal/storage"
)

type Kind string

const (
	KindImage Kind = "image"
	KindVideo Kind = "video"
)

type State string

const (
	StateActive State = "active"
	StateBinned State = "binned"
)

var imageExtensions = map[string]bool{
	".jpg": true, ".jpeg": true, ".png": true, ".gif": true,
	".webp": true, ".bmp": true, ".tif": true, ".tiff": true,
}

var videoExtensions = map[string]bool{
	".mp4": true, ".mov": true, ".webm": true,
	".mkv": true, ".avi": true, ".m4v": true,
}

// KindFromFilename derives the media kind from the extension of name.
func KindFromFilename(name string) (Kind, string, bool) {
	ext := strings.ToLower(filepath.Ext(name))
	switch {
	case imageExtensions[ext]:
		return KindImage, ext, true
	case videoExtensions[ext]:
		return KindVideo, ext, true
	}
	return "", ext, false
}

// Record is the lifecycle entry of one stored object. Timestamps are epoch
// milliseconds. A purged object has no record.
type Record struct {
	UserID       string `gorm:"column:user_id;primaryKey;size:128" json:"-"`
	ObjectID     string `gorm:"column:object_id;primaryKey;size:128" json:"id"`
	Kind         Kind   `gorm:"column:kind;size:16;not null" json:"kind"`
	State        State  `gorm:"column:state;size:16;not null;index" json:"state"`
	OriginalName string `gorm:"column:original_name" json:"name"`
	MimeType     string `gorm:"column:mime_type" json:"mime_type"`
	Size         int64  `gorm:"column:size" json:"size"`
	HasThumbnail bool   `gorm:"column:has_thumbnail" json:"has_thumbnail"`
	CreatedAt    int64  `gorm:"column:created_at;autoCreateTime:false;not null" json:"created_at"`
	DeletedAt    *int64 `gorm:"column:deleted_at;index" json:"deleted_at,omitempty"`
}

func (Record) TableName() string { return "media_records" }

// Namespace is where the record's bytes live for its current state.
func (r *Record) Namespace() storage.Namespace {
	if r.State == StateBinned {
		return storage.NamespaceBin
	}
	return storage.NamespaceActive
}

func (r *Record) clone() *Record {
	c := *r
	if r.DeletedAt != nil {
		d := *r.DeletedAt
		c.DeletedAt = &d
	}
	return &c
}

// Tombstone marks an ObjectID that was purged and must never be handed out again.
type Tombstone struct {
	UserID   string `gorm:"column:user_id;primaryKey;size:128"`
	ObjectID string `gorm:"column:object_id;primaryKey;size:128"`
	PurgedAt int64  `gorm:"column:purged_at;not null"`
}

func (Tombstone) TableName() string { return "media_tombstones" }

// Content is a blob served back to the caller.
type Content struct {
	Data     []byte
	MimeType string
	Name     string
}

// IngestCommand carries one upload into the lifecycle manager.
type IngestCommand struct {
	UserID   string `validate:"required,max=128"`
	Filename string `validate:"required,max=255"`
	Data     []byte
}
