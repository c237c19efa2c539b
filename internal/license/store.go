package license

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	apperrors "nodelock/internal/errors"
	"nodelock/internal/security"
)

// Blob is the single opaque resource holding the sealed record. Read must
// return an error matching fs.ErrNotExist when nothing has been written.
type Blob interface {
	Read() ([]byte, error)
	Write(data []byte) error
	Remove() error
	Location() string
}

// FileBlob stores the blob in one file, replaced atomically on write
type FileBlob struct {
	path string
}

// NewFileBlob returns a blob backed by path
func NewFileBlob(path string) *FileBlob {
	return &FileBlob{path: path}
}

func (b *FileBlob) Read() ([]byte, error) {
	return os.ReadFile(b.path)
}

// Write replaces the file through a synced temp file and a rename, so a
// crash leaves either the old or the new content.
func (b *FileBlob) Write(data []byte) error {
	dir := filepath.Dir(b.path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(b.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file in %s: %w", dir, err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // no-op after a successful rename

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Chmod(tmpName, 0600); err != nil {
		return fmt.Errorf("failed to set permissions: %w", err)
	}
	if err := os.Rename(tmpName, b.path); err != nil {
		return fmt.Errorf("failed to replace %s: %w", b.path, err)
	}
	return nil
}

func (b *FileBlob) Remove() error {
	if err := os.Remove(b.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

func (b *FileBlob) Location() string {
	return b.path
}

// StoreOptions configures sealing of the record
type StoreOptions struct {
	// KeyMaterial is shipped with every build, so the sealed record is
	// obfuscated rather than confidential.
	KeyMaterial []byte
	Cipher      security.CipherConfig
	Logger      *slog.Logger
}

// Store persists at most one LicenseRecord
type Store struct {
	blob   Blob
	key    []byte
	cipher security.CipherConfig
	logger *slog.Logger
}

// NewStore creates a store over blob. Zero cipher parameters select the
// production defaults.
func NewStore(blob Blob, opts StoreOptions) *Store {
	if opts.Cipher == (security.CipherConfig{}) {
		opts.Cipher = security.DefaultCipherConfig()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Store{
		blob:   blob,
		key:    opts.KeyMaterial,
		cipher: opts.Cipher,
		logger: opts.Logger.With("component", "license_store"),
	}
}

// Location identifies the underlying blob for diagnostics
func (s *Store) Location() string {
	return s.blob.Location()
}

// Save seals r and replaces the stored blob
func (s *Store) Save(ctx context.Context, r LicenseRecord) error {
	data, err := encodeRecord(r)
	if err != nil {
		return apperrors.NewStorageError("failed to encode license record", err)
	}

	sealed, err := security.Seal(data, s.key, s.cipher)
	if err != nil {
		return apperrors.NewStorageError("failed to seal license record", err)
	}

	if err := s.blob.Write(sealed); err != nil {
		s.logger.ErrorContext(ctx, "license record write failed",
			slog.String("action", "store_save"),
			slog.String("location", s.blob.Location()),
			slog.String("error", err.Error()))
		return apperrors.NewStorageError("failed to write license record", err).
			With("location", s.blob.Location())
	}

	s.logger.DebugContext(ctx, "license record saved",
		slog.String("action", "store_save"),
		slog.String("location", s.blob.Location()),
		slog.Int("size_bytes", len(sealed)))
	return nil
}

// Load returns the stored record, or nil with no error when none exists.
// A blob that cannot be opened or parsed yields ErrRecordCorrupted.
func (s *Store) Load(ctx context.Context) (*LicenseRecord, error) {
	sealed, err := s.blob.Read()
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, apperrors.NewStorageError("failed to read license record", err).
			With("location", s.blob.Location())
	}

	data, err := security.Open(sealed, s.key, s.cipher)
	if err != nil {
		if errors.Is(err, security.ErrEnvelopeInvalid) {
			return nil, s.corrupted(ctx, "license record failed authentication", err)
		}
		return nil, apperrors.NewStorageError("failed to open license record", err)
	}

	record, err := decodeRecord(data)
	if err != nil {
		return nil, s.corrupted(ctx, "license record could not be decoded", err)
	}
	return record, nil
}

// Clear removes the stored blob. Clearing an absent blob is not an error.
func (s *Store) Clear(ctx context.Context) error {
	if err := s.blob.Remove(); err != nil {
		return apperrors.NewStorageError("failed to remove license record", err).
			With("location", s.blob.Location())
	}
	s.logger.InfoContext(ctx, "license record cleared",
		slog.String("action", "store_clear"),
		slog.String("location", s.blob.Location()))
	return nil
}

func (s *Store) corrupted(ctx context.Context, msg string, cause error) error {
	s.logger.WarnContext(ctx, msg,
		slog.String("action", "store_load"),
		slog.String("location", s.blob.Location()),
		slog.String("error", cause.Error()))
	return apperrors.NewCorruptedError(msg, cause).With("location", s.blob.Location())
}
