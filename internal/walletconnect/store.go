package walletconnect

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/99designs/keyring"

	"github.com/Mohsinsiddi/w3link/internal/config"
)

// SavedSession is everything needed to resume a bridge session without a
// new pairing.
type SavedSession struct {
	Key         string    `json:"key"` // hex 32-byte symmetric key
	ClientID    string    `json:"clientId"`
	ClientMeta  PeerMeta  `json:"clientMeta"`
	Topic       string    `json:"handshakeTopic"`
	PeerID      string    `json:"peerId"`
	PeerMeta    *PeerMeta `json:"peerMeta,omitempty"`
	BridgeURL   string    `json:"bridgeUrl"`
	Accounts    []string  `json:"accounts"`
	ChainID     int64     `json:"chainId"`
	HandshakeID int64     `json:"handshakeId"`
}

// SessionStore persists at most one saved session.
type SessionStore interface {
	// Load returns the saved session, or nil when there is none.
	Load() (*SavedSession, error)
	Save(s *SavedSession) error
	Clear() error
	Exists() bool
}

// FileStore keeps the session in a small key/value JSON file, under the
// fixed config.SessionStorageKey.
type FileStore struct {
	path string
	mu   sync.Mutex
}

// NewFileStore stores the session in dir/session.json.
func NewFileStore(dir string) *FileStore {
	return &FileStore{path: filepath.Join(dir, "session.json")}
}

// DefaultFileStore uses the per-user cache directory:
//
//	macOS:   ~/Library/Caches/w3link/walletconnect/session.json
//	Linux:   ~/.cache/w3link/walletconnect/session.json
//	Windows: %LocalAppData%\w3link\walletconnect\session.json
func DefaultFileStore() *FileStore {
	dir, err := os.UserCacheDir()
	if err != nil {
		dir = os.TempDir()
	}
	return NewFileStore(filepath.Join(dir, "w3link", "walletconnect"))
}

// Path returns the backing file.
func (f *FileStore) Path() string { return f.path }

func (f *FileStore) Load() (*SavedSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, err := f.read()
	if err != nil {
		return nil, err
	}
	raw, ok := m[config.SessionStorageKey]
	if !ok {
		return nil, nil
	}
	return decodeSaved([]byte(raw))
}

func (f *FileStore) Save(s *SavedSession) error {
	data, err := json.Marshal(s)
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	m, err := f.read()
	if err != nil {
		// An unreadable file is replaced.
		m = make(map[string]string)
	}
	m[config.SessionStorageKey] = string(data)
	return f.write(m)
}

func (f *FileStore) Clear() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, err := f.read()
	if err != nil {
		return os.Remove(f.path)
	}
	if _, ok := m[config.SessionStorageKey]; !ok {
		return nil
	}
	delete(m, config.SessionStorageKey)
	if len(m) == 0 {
		err := os.Remove(f.path)
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	return f.write(m)
}

func (f *FileStore) Exists() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, err := f.read()
	if err != nil {
		return false
	}
	_, ok := m[config.SessionStorageKey]
	return ok
}

func (f *FileStore) read() (map[string]string, error) {
	data, err := os.ReadFile(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return make(map[string]string), nil
	}
	if err != nil {
		return nil, err
	}
	var m map[string]string
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("decoding %s: %w", f.path, err)
	}
	if m == nil {
		m = make(map[string]string)
	}
	return m, nil
}

func (f *FileStore) write(m map[string]string) error {
	if err := os.MkdirAll(filepath.Dir(f.path), 0o700); err != nil {
		return err
	}
	data, err := json.Marshal(m)
	if err != nil {
		return err
	}
	if err := os.WriteFile(f.path, data, 0o600); err != nil {
		return err
	}
	_ = os.Chmod(f.path, 0o600)
	return nil
}

// KeyringStore keeps the session in the OS keychain.
type KeyringStore struct {
	ring keyring.Keyring
}

// NewKeyringStore wraps an opened keyring.
func NewKeyringStore(ring keyring.Keyring) *KeyringStore {
	return &KeyringStore{ring: ring}
}

func (k *KeyringStore) Load() (*SavedSession, error) {
	item, err := k.ring.Get(config.SessionStorageKey)
	if errors.Is(err, keyring.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading session from keychain: %w", err)
	}
	return decodeSaved(item.Data)
}

func (k *KeyringStore) Save(s *SavedSession) error {
	data, err := json.Marshal(s)
	if err != nil {
		return err
	}
	return k.ring.Set(keyring.Item{
		Key:         config.SessionStorageKey,
		Data:        data,
		Label:       "w3link wallet session",
		Description: "w3link bridge session",
	})
}

func (k *KeyringStore) Clear() error {
	err := k.ring.Remove(config.SessionStorageKey)
	if err == nil || errors.Is(err, keyring.ErrKeyNotFound) || errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

func (k *KeyringStore) Exists() bool {
	_, err := k.ring.Get(config.SessionStorageKey)
	return err == nil
}

// MemoryStore is a process-local store.
type MemoryStore struct {
	mu    sync.Mutex
	saved *SavedSession
}

func NewMemoryStore() *MemoryStore { return &MemoryStore{} }

func (m *MemoryStore) Load() (*SavedSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saved == nil {
		return nil, nil
	}
	cp := *m.saved
	return &cp, nil
}

func (m *MemoryStore) Save(s *SavedSession) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *s
	m.saved = &cp
	return nil
}

func (m *MemoryStore) Clear() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saved = nil
	return nil
}

func (m *MemoryStore) Exists() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saved != nil
}

func decodeSaved(data []byte) (*SavedSession, error) {
	var s SavedSession
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("decoding saved session: %w", err)
	}
	return &s, nil
}
