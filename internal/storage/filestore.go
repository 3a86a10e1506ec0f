// Package storage keeps media bytes on the local filesystem.
//
// Layout: <root>/<namespace>/<artifact>/<userID>/<objectID>, where namespace is
// uploads or bin and artifact is originals or thumbs. The store holds bytes
// only; which namespace an object belongs in is decided by the caller.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

type Namespace string

const (
	NamespaceActive Namespace = "uploads"
	NamespaceBin    Namespace = "bin"
)

type Artifact string

const (
	ArtifactOriginal  Artifact = "originals"
	ArtifactThumbnail Artifact = "thumbs"
)

const tempPrefix = ".tmp-"

// Entry is one stored file found by List.
type Entry struct {
	UserID   string
	ObjectID string
	Size     int64
	ModTime  time.Time
}

// FileStore is a filesystem-backed object store. All namespaces must live on
// the same volume so moves between them are plain renames.
type FileStore struct {
	root      string
	opTimeout time.Duration
	log       zerolog.Logger
}

// NewFileStore creates the namespace roots under root.
func NewFileStore(root string, opTimeout time.Duration, log zerolog.Logger) (*FileStore, error) {
	root = strings.TrimSpace(root)
	if root == "" {
		return nil, errors.New("storage root is empty")
	}
	logger := log.With().Str("component", "file-store").Logger()

	for _, ns := range []Namespace{NamespaceActive, NamespaceBin} {
		for _, a := range []Artifact{ArtifactOriginal, ArtifactThumbnail} {
			if err := os.MkdirAll(filepath.Join(root, string(ns), string(a)), 0o755); err != nil {
				return nil, fmt.Errorf("failed to create storage directory: %w", err)
			}
		}
	}

	logger.Info().Str("path", root).Msg("file store initialized")
	return &FileStore{root: root, opTimeout: opTimeout, log: logger}, nil
}

// Root returns the base directory of the store.
func (s *FileStore) Root() string { return s.root }

// Put stores an original in the uploads namespace. The bytes are written to a
// temp file next to the destination, fsynced, then renamed into place.
func (s *FileStore) Put(ctx context.Context, userID, objectID string, data []byte) error {
	return s.write(ctx, NamespaceActive, ArtifactOriginal, userID, objectID, data)
}

// PutThumbnail stores a thumbnail in the given namespace.
func (s *FileStore) PutThumbnail(ctx context.Context, ns Namespace, userID, objectID string, data []byte) error {
	return s.write(ctx, ns, ArtifactThumbnail, userID, objectID, data)
}

// MoveToBin moves an original from uploads to bin.
func (s *FileStore) MoveToBin(ctx context.Context, userID, objectID string) error {
	return s.move(ctx, ArtifactOriginal, NamespaceActive, NamespaceBin, userID, objectID)
}

// MoveToActive moves an original from bin back to uploads.
func (s *FileStore) MoveToActive(ctx context.Context, userID, objectID string) error {
	return s.move(ctx, ArtifactOriginal, NamespaceBin, NamespaceActive, userID, objectID)
}

// MoveThumbnail moves a thumbnail between namespaces.
func (s *FileStore) MoveThumbnail(ctx context.Context, from, to Namespace, userID, objectID string) error {
	return s.move(ctx, ArtifactThumbnail, from, to, userID, objectID)
}

// Purge removes an original from the bin namespace.
func (s *FileStore) Purge(ctx context.Context, userID, objectID string) error {
	return s.Delete(ctx, NamespaceBin, ArtifactOriginal, userID, objectID)
}

// Read returns the original stored in ns.
func (s *FileStore) Read(ctx context.Context, ns Namespace, userID, objectID string) ([]byte, error) {
	return s.read(ctx, ns, ArtifactOriginal, userID, objectID)
}

// ReadThumbnail returns the thumbnail stored in ns.
func (s *FileStore) ReadThumbnail(ctx context.Context, ns Namespace, userID, objectID string) ([]byte, error) {
	return s.read(ctx, ns, ArtifactThumbnail, userID, objectID)
}

// Delete removes a single artifact. A missing file yields ErrNotFound.
func (s *FileStore) Delete(ctx context.Context, ns Namespace, a Artifact, userID, objectID string) error {
	p, err := s.path(ns, a, userID, objectID)
	if err != nil {
		return err
	}
	ctx, cancel := s.bound(ctx)
	defer cancel()
	if err := ctx.Err(); err != nil {
		return err
	}

	if err := os.Remove(p); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return ErrNotFound
		}
		return fmt.Errorf("failed to remove file: %w", err)
	}
	s.log.Debug().Str("namespace", string(ns)).Str("artifact", string(a)).
		Str("user_id", userID).Str("object_id", objectID).Msg("file removed")
	return nil
}

// Exists reports whether an artifact is present.
func (s *FileStore) Exists(ctx context.Context, ns Namespace, a Artifact, userID, objectID string) (bool, error) {
	p, err := s.path(ns, a, userID, objectID)
	if err != nil {
		return false, err
	}
	if err := ctx.Err(); err != nil {
		return false, err
	}
	info, err := os.Stat(p)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("failed to stat file: %w", err)
	}
	return info.Mode().IsRegular(), nil
}

// List walks every user directory of one namespace/artifact pair.
func (s *FileStore) List(ctx context.Context, ns Namespace, a Artifact) ([]Entry, error) {
	base := filepath.Join(s.root, string(ns), string(a))
	users, err := os.ReadDir(base)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to list %s/%s: %w", ns, a, err)
	}

	var out []Entry
	for _, u := range users {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if !u.IsDir() || validSegment(u.Name()) != nil {
			continue
		}
		files, err := os.ReadDir(filepath.Join(base, u.Name()))
		if err != nil {
			return nil, fmt.Errorf("failed to list user directory: %w", err)
		}
		for _, f := range files {
			if !f.Type().IsRegular() || strings.HasPrefix(f.Name(), tempPrefix) {
				continue
			}
			info, err := f.Info()
			if err != nil {
				continue
			}
			out = append(out, Entry{
				UserID:   u.Name(),
				ObjectID: f.Name(),
				Size:     info.Size(),
				ModTime:  info.ModTime(),
			})
		}
	}
	return out, nil
}

// Health checks that the store root is writable.
func (s *FileStore) Health(ctx context.Context) error {
	testFile := filepath.Join(s.root, ".health_check")
	if err := os.WriteFile(testFile, []byte("ok"), 0o644); err != nil {
		return fmt.Errorf("storage directory not writable: %w", err)
	}
	_ = os.Remove(testFile)
	return nil
}

func (s *FileStore) write(ctx context.Context, ns Namespace, a Artifact, userID, objectID string, data []byte) error {
	dst, err := s.path(ns, a, userID, objectID)
	if err != nil {
		return err
	}
	ctx, cancel := s.bound(ctx)
	defer cancel()

	dir := filepath.Dir(dst)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, tempPrefix+"*")
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("failed to write file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("failed to sync file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("failed to close file: %w", err)
	}
	if err := ctx.Err(); err != nil {
		cleanup()
		return err
	}
	if err := os.Rename(tmpName, dst); err != nil {
		cleanup()
		return fmt.Errorf("failed to commit file: %w", err)
	}

	s.log.Debug().Str("namespace", string(ns)).Str("artifact", string(a)).
		Str("user_id", userID).Str("object_id", objectID).Int("bytes", len(data)).Msg("file stored")
	return nil
}

// move renames src to dst. The source stays in place on every failure path.
func (s *FileStore) move(ctx context.Context, a Artifact, from, to Namespace, userID, objectID string) error {
	src, err := s.path(from, a, userID, objectID)
	if err != nil {
		return err
	}
	dst, err := s.path(to, a, userID, objectID)
	if err != nil {
		return err
	}
	ctx, cancel := s.bound(ctx)
	defer cancel()

	if _, err := os.Stat(src); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return ErrNotFound
		}
		return fmt.Errorf("failed to stat source: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.Rename(src, dst); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return ErrNotFound
		}
		return fmt.Errorf("failed to move file: %w", err)
	}

	s.log.Debug().Str("artifact", string(a)).Str("from", string(from)).Str("to", string(to)).
		Str("user_id", userID).Str("object_id", objectID).Msg("file moved")
	return nil
}

func (s *FileStore) read(ctx context.Context, ns Namespace, a Artifact, userID, objectID string) ([]byte, error) {
	p, err := s.path(ns, a, userID, objectID)
	if err != nil {
		return nil, err
	}
	ctx, cancel := s.bound(ctx)
	defer cancel()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	type result struct {
		data []byte
		err  error
	}
	ch := make(chan result, 1)
	go func() {
		data, err := os.ReadFile(p)
		ch <- result{data, err}
	}()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case r := <-ch:
		if r.err != nil {
			if errors.Is(r.err, fs.ErrNotExist) {
				return nil, ErrNotFound
			}
			return nil, fmt.Errorf("failed to read file: %w", r.err)
		}
		return r.data, nil
	}
}

func (s *FileStore) bound(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.opTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.opTimeout)
}

func (s *FileStore) path(ns Namespace, a Artifact, userID, objectID string) (string, error) {
	if ns != NamespaceActive && ns != NamespaceBin {
		return "", fmt.Errorf("%w: namespace %q", ErrInvalidKey, ns)
	}
	if a != ArtifactOriginal && a != ArtifactThumbnail {
		return "", fmt.Errorf("%w: artifact %q", ErrInvalidKey, a)
	}
	if err := validSegment(userID); err != nil {
		return "", err
	}
	if err := validSegment(objectID); err != nil {
		return "", err
	}
	return filepath.Join(s.root, string(ns), string(a), userID, objectID), nil
}

// ValidSegment reports whether v can be used as a single path component.
func ValidSegment(v string) bool { return validSegment(v) == nil }

func validSegment(v string) error {
	switch {
	case v == "", v == ".", v == "..":
		return ErrInvalidKey
	case strings.HasPrefix(v, "."):
		return ErrInvalidKey
	case strings.ContainsAny(v, "/\\\x00"):
		return ErrInvalidKey
	case len(v) > 255:
		return ErrInvalidKey
	}
	return nil
}
