package inapp

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

const (
	sessionFile   = "session.json"
	encryptedFile = "session.enc"
	guestFile     = "guest_id"
)

// Session is the persisted result of a successful login.
type Session struct {
	AuthToken    string    `json:"auth_token"`
	Address      string    `json:"address"`
	AuthProvider string    `json:"auth_provider"`
	Email        string    `json:"email,omitempty"`
	Phone        string    `json:"phone,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// sessionStore keeps one Session in a directory. When a legacy encryption
// key is configured the file is sealed with ChaCha20-Poly1305 under a key
// derived from it.
type sessionStore struct {
	dir string
	key []byte
}

func newSessionStore(dir, legacyKey string) (*sessionStore, error) {
	s := &sessionStore{dir: dir}
	if legacyKey == "" {
		return s, nil
	}
	s.key = make([]byte, chacha20poly1305.KeySize)
	r := hkdf.New(sha256.New, []byte(legacyKey), nil, []byte("w3link inapp session"))
	if _, err := io.ReadFull(r, s.key); err != nil {
		return nil, fmt.Errorf("deriving session key: %w", err)
	}
	return s, nil
}

func (s *sessionStore) path() string {
	if s.key != nil {
		return filepath.Join(s.dir, encryptedFile)
	}
	return filepath.Join(s.dir, sessionFile)
}

// Load returns the stored session, or nil when there is none.
func (s *sessionStore) Load() (*Session, error) {
	data, err := os.ReadFile(s.path())
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if s.key != nil {
		if data, err = s.open(data); err != nil {
			return nil, err
		}
	}
	var sess Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return nil, fmt.Errorf("decoding session: %w", err)
	}
	if sess.AuthToken == "" {
		return nil, nil
	}
	return &sess, nil
}

// Save writes sess with owner-only permissions.
func (s *sessionStore) Save(sess *Session) error {
	data, err := json.Marshal(sess)
	if err != nil {
		return err
	}
	if s.key != nil {
		if data, err = s.seal(data); err != nil {
			return err
		}
	}
	return writePrivate(s.path(), data)
}

// Clear removes the stored session. A missing file is not an error.
func (s *sessionStore) Clear() error {
	err := os.Remove(s.path())
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

// GuestID returns the persisted guest session id, creating one on first use.
func (s *sessionStore) GuestID(newID func() string) (string, error) {
	path := filepath.Join(s.dir, guestFile)
	if data, err := os.ReadFile(path); err == nil {
		if id := strings.TrimSpace(string(data)); id != "" {
			return id, nil
		}
	}
	id := newID()
	if err := writePrivate(path, []byte(id)); err != nil {
		return "", err
	}
	return id, nil
}

func (s *sessionStore) seal(plain []byte) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(s.key)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, aead.NonceSize(), aead.NonceSize()+len(plain)+aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return nil, err
	}
	return aead.Seal(nonce, nonce, plain, nil), nil
}

func (s *sessionStore) open(sealed []byte) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(s.key)
	if err != nil {
		return nil, err
	}
	if len(sealed) < aead.NonceSize() {
		return nil, errors.New("session file is truncated")
	}
	nonce, ct := sealed[:aead.NonceSize()], sealed[aead.NonceSize():]
	plain, err := aead.Open(nil, nonce, ct, nil)
	if err != nil {
		return nil, fmt.Errorf("decrypting session: %w", err)
	}
	return plain, nil
}

func writePrivate(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return err
	}
	// WriteFile keeps the mode of an existing file.
	_ = os.Chmod(path, 0o600)
	return nil
}
