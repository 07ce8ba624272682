// Package keystore manages the AES-256 file-encryption key: a single
// base64-encoded key file kept under the application directory with
// owner-only permissions.
//
// A key that fails to load is never regenerated behind the user's back;
// regeneration is an explicit, destructive operation, since existing
// containers become undecryptable.
package keystore

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/dmitrijs2005/securedrive/internal/common"
	"github.com/dmitrijs2005/securedrive/internal/cryptox"
	"github.com/dmitrijs2005/securedrive/internal/filex"
	"github.com/dmitrijs2005/securedrive/internal/logging"
)

const (
	// KeySize is the AES-256 key length in bytes.
	KeySize = 32

	// KeyFileName is the key file name inside the application directory.
	KeyFileName = "encryption.key"
)

// Store owns the key file and the in-memory copy of the key material.
// All methods are safe for concurrent use.
type Store struct {
	dir  string
	path string
	log  logging.Logger

	mu      sync.Mutex
	current []byte
}

// Info describes the on-disk state of the key file.
type Info struct {
	Path      string
	Exists    bool
	Mode      os.FileMode
	Valid     bool
	CreatedAt time.Time
}

// New returns a Store rooted at dir. The directory is created lazily on the
// first persist.
func New(dir string, log logging.Logger) *Store {
	return &Store{
		dir:  dir,
		path: filepath.Join(dir, KeyFileName),
		log:  log,
	}
}

// Path returns the key file location.
func (s *Store) Path() string {
	return s.path
}

// Load reads and decodes the key file.
//
// A missing file yields common.ErrKeyNotFound. A file readable by group or
// others yields common.ErrInsecureStorage and the key is not loaded. Content
// that does not decode to exactly KeySize bytes yields common.ErrCorruptKey.
// The file is never modified by Load.
func (s *Store) Load(ctx context.Context) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadLocked(ctx)
}

func (s *Store) loadLocked(ctx context.Context) ([]byte, error) {
	fi, err := os.Stat(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w at %s", common.ErrKeyNotFound, s.path)
		}
		return nil, fmt.Errorf("stat key file: %w", err)
	}

	// POSIX-only check; file ACLs are not inspected on windows.
	if runtime.GOOS != "windows" && fi.Mode().Perm()&0o077 != 0 {
		s.log.Error(ctx, "key file is accessible to other users, refusing to use it",
			"path", s.path, "mode", fi.Mode().Perm().String())
		return nil, fmt.Errorf("%w: %s has mode %s", common.ErrInsecureStorage, s.path, fi.Mode().Perm())
	}

	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("read key file: %w", err)
	}

	key, err := decodeKey(data)
	if err != nil {
		return nil, err
	}

	s.setCurrentLocked(key)
	s.log.Debug(ctx, "encryption key loaded", "path", s.path)
	return key, nil
}

func decodeKey(data []byte) ([]byte, error) {
	raw := strings.TrimSpace(string(data))
	key, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: not valid base64", common.ErrCorruptKey)
	}
	if len(key) != KeySize {
		return nil, fmt.Errorf("%w: decoded to %d bytes, want %d", common.ErrCorruptKey, len(key), KeySize)
	}
	return key, nil
}

// Generate creates a fresh random key, persists it and returns it.
func (s *Store) Generate(ctx context.Context) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.generateLocked(ctx)
}

func (s *Store) generateLocked(ctx context.Context) ([]byte, error) {
	key, err := common.GenerateRandByteArray(KeySize)
	if err != nil {
		return nil, fmt.Errorf("generate key: %w", err)
	}
	if err := s.persistLocked(ctx, key); err != nil {
		return nil, err
	}
	s.setCurrentLocked(key)
	s.log.Info(ctx, "generated new encryption key", "path", s.path)
	return key, nil
}

// GetOrCreate loads the existing key, generating one only when no key file
// exists yet. Corrupt or insecurely stored keys are reported as errors and
// never silently replaced.
func (s *Store) GetOrCreate(ctx context.Context) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current != nil {
		return s.current, nil
	}

	key, err := s.loadLocked(ctx)
	if err == nil {
		return key, nil
	}
	if !errors.Is(err, common.ErrKeyNotFound) {
		return nil, err
	}
	return s.generateLocked(ctx)
}

// Regenerate discards the current key and persists a fresh one. All
// previously produced containers become undecryptable.
func (s *Store) Regenerate(ctx context.Context) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.log.Warn(ctx, "regenerating encryption key; previously encrypted files cannot be decrypted with the new key")
	return s.generateLocked(ctx)
}

// Persist writes the key file atomically and tightens it to read-only.
// A failed chmod is reported as a warning, not a hard failure, since some
// filesystems do not support it.
func (s *Store) Persist(ctx context.Context, key []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.persistLocked(ctx, key); err != nil {
		return err
	}
	s.setCurrentLocked(key)
	return nil
}

func (s *Store) persistLocked(ctx context.Context, key []byte) error {
	if len(key) != KeySize {
		return fmt.Errorf("%w: %d bytes, want %d", common.ErrCorruptKey, len(key), KeySize)
	}

	if _, err := filex.EnsureDir(s.dir, 0o700); err != nil {
		return err
	}

	encoded := base64.StdEncoding.EncodeToString(key)
	if err := filex.WriteFileAtomic(s.path, []byte(encoded), 0o600); err != nil {
		return fmt.Errorf("persist key: %w", err)
	}

	if err := os.Chmod(s.path, 0o400); err != nil {
		s.log.Warn(ctx, "could not make key file read-only", "path", s.path, "error", err)
	}
	return nil
}

// Export seals the current key under a passphrase and writes the resulting
// envelope to path. It requires an existing key.
func (s *Store) Export(ctx context.Context, path string, passphrase []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := s.current
	if key == nil {
		loaded, err := s.loadLocked(ctx)
		if err != nil {
			return err
		}
		key = loaded
	}

	sealed, err := cryptox.SealKey(key, passphrase)
	if err != nil {
		return fmt.Errorf("seal key: %w", err)
	}
	data, err := json.MarshalIndent(sealed, "", "  ")
	if err != nil {
		return fmt.Errorf("encode envelope: %w", err)
	}
	if err := filex.WriteFileAtomic(path, data, 0o600); err != nil {
		return fmt.Errorf("write envelope: %w", err)
	}

	s.log.Info(ctx, "exported encryption key", "path", path)
	return nil
}

// Import opens a key envelope with the passphrase and persists the contained
// key as the active one, replacing any existing key file.
func (s *Store) Import(ctx context.Context, path string, passphrase []byte) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read envelope: %w", err)
	}

	var sealed cryptox.SealedKey
	if err := json.Unmarshal(data, &sealed); err != nil {
		return nil, fmt.Errorf("decode envelope: %w", err)
	}

	key, err := cryptox.OpenKey(&sealed, passphrase)
	if err != nil {
		return nil, err
	}
	if len(key) != KeySize {
		return nil, fmt.Errorf("%w: envelope holds %d bytes, want %d", common.ErrCorruptKey, len(key), KeySize)
	}

	if err := s.persistLocked(ctx, key); err != nil {
		return nil, err
	}
	s.setCurrentLocked(key)

	s.log.Info(ctx, "imported encryption key", "path", path)
	return key, nil
}

// Info reports the on-disk state of the key file without loading the key.
// CreatedAt is the file's modification time, which moves forward when the
// key is regenerated or imported.
func (s *Store) Info() Info {
	info := Info{Path: s.path}

	fi, err := os.Stat(s.path)
	if err != nil {
		return info
	}
	info.Exists = true
	info.Mode = fi.Mode().Perm()
	info.CreatedAt = fi.ModTime()

	data, err := os.ReadFile(s.path)
	if err != nil {
		return info
	}
	if _, err := decodeKey(data); err == nil {
		info.Valid = true
	}
	return info
}

// Close wipes the in-memory key material. The key file is untouched.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.setCurrentLocked(nil)
	return nil
}

func (s *Store) setCurrentLocked(key []byte) {
	common.WipeByteArray(s.current)
	s.current = key
}
