package media

import (
	"errors"
	"fmt"

	"photovault/internal/thumbnail"
)

var (
	ErrUnsupportedType = errors.New("file type is not supported")
	ErrNotFound        = errors.New("media not found")
	ErrInvalidState    = errors.New("operation not allowed in current state")
	ErrConflict        = errors.New("media changed by a concurrent operation")
	ErrStoreFailure    = errors.New("storage failure")
	ErrEmptyFile       = errors.New("file is empty")
	ErrFileTooLarge    = errors.New("file exceeds maximum allowed size")
	ErrInvalidUserID   = errors.New("invalid user id")
	ErrInvalidName     = errors.New("invalid file name")

	// ErrThumbnailSkipped is returned for kinds that have no server-side thumbnail.
	ErrThumbnailSkipped = thumbnail.ErrSkip
	// ErrThumbnailUnavailable matches ErrNotFound.
	ErrThumbnailUnavailable = fmt.Errorf("%w: thumbnail unavailable", ErrNotFound)
)
