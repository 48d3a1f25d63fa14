package authclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	dto "github.com/dropDatabas3/ciciauth/internal/http/dto/auth"
	"github.com/dropDatabas3/ciciauth/internal/security/secretbox"
)

// ErrNoBundle: no hay sesión persistida.
var ErrNoBundle = errors.New("authclient: no session bundle")

// Bundle es el estado de sesión persistido en el dispositivo.
type Bundle struct {
	AccessToken  string    `json:"accessToken"`
	RefreshToken string    `json:"refreshToken"`
	DeviceID     string    `json:"deviceId"`
	User         dto.User  `json:"user"`
	LoginAt      time.Time `json:"loginAt"`
	// RememberUntil es el marcador "remember me": se extiende en cada Touch
	// y es independiente del exp de los tokens.
	RememberUntil time.Time `json:"rememberUntil"`
}

// BundleStore persiste un único bundle.
type BundleStore interface {
	Load(ctx context.Context) (*Bundle, error) // ErrNoBundle si no existe
	Save(ctx context.Context, b *Bundle) error
	Clear(ctx context.Context) error
}

// ─── File ───

// FileStore guarda el bundle como JSON (0600) con escritura atómica.
// Con Box != nil el contenido va cifrado con AES-GCM.
type FileStore struct {
	Path string
	Box  *secretbox.Box
}

func NewFileStore(path string) *FileStore { return &FileStore{Path: path} }

// NewEncryptedFileStore cifra el bundle con box.
func NewEncryptedFileStore(path string, box *secretbox.Box) *FileStore {
	return &FileStore{Path: path, Box: box}
}

func (s *FileStore) Load(ctx context.Context) (*Bundle, error) {
	b, err := os.ReadFile(s.Path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNoBundle
	}
	if err != nil {
		return nil, fmt.Errorf("authclient: read bundle: %w", err)
	}
	if s.Box != nil {
		if b, err = s.Box.Open(string(b)); err != nil {
			_ = os.Remove(s.Path)
			return nil, ErrNoBundle
		}
	}
	var out Bundle
	if err := json.Unmarshal(b, &out); err != nil {
		// Bundle corrupto: se descarta.
		_ = os.Remove(s.Path)
		return nil, ErrNoBundle
	}
	return &out, nil
}

func (s *FileStore) Save(ctx context.Context, b *Bundle) error {
	data, err := json.Marshal(b)
	if err != nil {
		return err
	}
	if s.Box != nil {
		sealed, err := s.Box.Seal(data)
		if err != nil {
			return err
		}
		data = []byte(sealed)
	}
	return writeFileAtomic(s.Path, data, 0o600)
}

func (s *FileStore) Clear(ctx context.Context) error {
	if err := os.Remove(s.Path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("authclient: remove bundle: %w", err)
	}
	return nil
}

// writeFileAtomic: tmp en el mismo dir → fsync → chmod → rename.
// Si rename falla (Windows con destino bloqueado) reintenta tras borrar el destino.
func writeFileAtomic(path string, data []byte, perm fs.FileMode) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("mkdir %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, ".bundle-*")
	if err != nil {
		return fmt.Errorf("create temp: %w", err)
	}
	tmpPath := tmp.Name()
	defer func() {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
	}()

	if _, err := tmp.Write(data); err != nil {
		return fmt.Errorf("write temp: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("fsync temp: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp: %w", err)
	}
	_ = os.Chmod(tmpPath, perm)

	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(path)
		if err2 := os.Rename(tmpPath, path); err2 != nil {
			return fmt.Errorf("rename: %v (after remove: %v)", err, err2)
		}
	}
	return nil
}

// ─── Memory ───

// MemoryStore mantiene el bundle en memoria (tests, procesos efímeros).
type MemoryStore struct {
	mu sync.Mutex
	b  *Bundle
}

func NewMemoryStore() *MemoryStore { return &MemoryStore{} }

func (s *MemoryStore) Load(ctx context.Context) (*Bundle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.b == nil {
		return nil, ErrNoBundle
	}
	cp := *s.b
	return &cp, nil
}

func (s *MemoryStore) Save(ctx context.Context, b *Bundle) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *b
	s.b = &cp
	return nil
}

func (s *MemoryStore) Clear(ctx context.Context) error {
	s.mu.Lock()
	s.b = nil
	s.mu.Unlock()
	return nil
}
