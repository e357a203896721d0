package media

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"line2discord/internal/domain"
)

const BackendLocal = "local"

// LocalConfig configures a LocalStore.
type LocalConfig struct {
	Dir      string // served at /images and /files
	MaxBytes int64  // 0 disables the cap
	Index    *Index // optional
	Logger   *slog.Logger
	Now      func() time.Time
}

// LocalStore writes media below a directory served by the relay itself.
type LocalStore struct {
	dir      string
	maxBytes int64
	index    *Index
	logger   *slog.Logger
	now      func() time.Time
}

func NewLocalStore(cfg LocalConfig) (*LocalStore, error) {
	if cfg.Dir == "" {
		return nil, fmt.Errorf("media dir is required")
	}
	for _, sub := range []string{ImagesDir, FilesDir} {
		if err := os.MkdirAll(filepath.Join(cfg.Dir, sub), 0o755); err != nil {
			return nil, fmt.Errorf("create media directory: %w", err)
		}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &LocalStore{
		dir:      cfg.Dir,
		maxBytes: cfg.MaxBytes,
		index:    cfg.Index,
		logger:   cfg.Logger,
		now:      cfg.Now,
	}, nil
}

// Dir is the root directory; the HTTP server serves its images/ and files/.
func (s *LocalStore) Dir() string { return s.dir }

func (s *LocalStore) PublicBase() string { return "" }

func (s *LocalStore) Save(ctx context.Context, kind domain.MessageKind, originalName, contentType string, data []byte) (*domain.StoredMedia, error) {
	if s.maxBytes > 0 && int64(len(data)) > s.maxBytes {
		return nil, fmt.Errorf("%w: file too large: %d bytes (max: %d)", domain.ErrStorage, len(data), s.maxBytes)
	}

	now := s.now()
	name := NewName(kind, originalName, now)
	dir := filepath.Join(s.dir, SubDir(kind))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("%w: create directory: %v", domain.ErrStorage, err)
	}

	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		os.Remove(path)
		return nil, fmt.Errorf("%w: write file: %v", domain.ErrStorage, err)
	}

	// The file must exist and be non-empty before a link is handed out.
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("%w: stat %s: %v", domain.ErrStorage, name, err)
	}
	if info.Size() == 0 {
		os.Remove(path)
		return nil, fmt.Errorf("%w: %s is empty", domain.ErrStorage, name)
	}

	m := &domain.StoredMedia{
		ID:           uuid.NewString(),
		Name:         name,
		Kind:         kind,
		Size:         info.Size(),
		ContentType:  contentType,
		RelativePath: RelativePath(kind, name),
		Backend:      BackendLocal,
		CreatedAt:    now,
	}

	if s.index != nil {
		if err := s.index.Record(ctx, *m); err != nil {
			s.logger.Warn("failed to record media in index", "name", name, "err", err)
		}
	}

	s.logger.Info("media stored", "name", name, "kind", kind, "size", m.Size)
	return m, nil
}

// Delete removes the file behind m. A file that is already gone is not an error.
func (s *LocalStore) Delete(ctx context.Context, m domain.StoredMedia) error {
	path := filepath.Join(s.dir, SubDir(m.Kind), filepath.Base(m.Name))
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%w: remove %s: %v", domain.ErrStorage, m.Name, err)
	}
	return nil
}

// CheckWritable writes and removes a probe file in every media directory.
func (s *LocalStore) CheckWritable(ctx context.Context) error {
	for _, sub := range []string{ImagesDir, FilesDir} {
		probe := filepath.Join(s.dir, sub, ".write-test-"+uuid.NewString())
		if err := os.WriteFile(probe, []byte("ok"), 0o644); err != nil {
			return fmt.Errorf("%w: %s is not writable: %v", domain.ErrStorage, filepath.Join(s.dir, sub), err)
		}
		if err := os.Remove(probe); err != nil {
			return fmt.Errorf("%w: cleanup probe: %v", domain.ErrStorage, err)
		}
	}
	return nil
}
