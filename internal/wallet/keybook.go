package wallet

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/crypto"

	"github.com/Mohsinsiddi/w3link/internal/config"
)

// KeyStore persists the named local-key index. Key material itself lives
// in a KeystoreBackend.
type KeyStore interface {
	Load() ([]config.LocalKey, error)
	Save([]config.LocalKey) error
}

// KeyBook manages named private keys: the index in a KeyStore, the key
// material in a KeystoreBackend.
type KeyBook struct {
	store KeyStore
	ks    KeystoreBackend

	mu     sync.Mutex
	keys   map[string]config.LocalKey
	loaded bool
}

// KeyBookOption configures a KeyBook.
type KeyBookOption func(*KeyBook)

// WithInMemoryStore keeps the index in memory (useful for tests).
func WithInMemoryStore() KeyBookOption {
	return func(b *KeyBook) { b.store = &memStore{} }
}

// WithStore sets a custom index store.
func WithStore(s KeyStore) KeyBookOption {
	return func(b *KeyBook) { b.store = s }
}

// NewKeyBook returns a key book backed by ks.
func NewKeyBook(ks KeystoreBackend, opts ...KeyBookOption) *KeyBook {
	b := &KeyBook{
		store: &memStore{},
		ks:    ks,
		keys:  make(map[string]config.LocalKey),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Generate creates and stores a new random key under name.
func (b *KeyBook) Generate(name string) (config.LocalKey, error) {
	key, err := crypto.GenerateKey()
	if err != nil {
		return config.LocalKey{}, fmt.Errorf("generating key: %w", err)
	}
	return b.Import(name, fmt.Sprintf("%x", crypto.FromECDSA(key)))
}

// Import stores hexKey under name.
func (b *KeyBook) Import(name, hexKey string) (config.LocalKey, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.load(); err != nil {
		return config.LocalKey{}, err
	}
	if _, exists := b.keys[name]; exists {
		return config.LocalKey{}, fmt.Errorf("%w: %s", ErrExists, name)
	}

	priv, err := crypto.HexToECDSA(normaliseHexKey(hexKey))
	if err != nil {
		return config.LocalKey{}, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	ref, err := b.ks.Store(name, normaliseHexKey(hexKey))
	if err != nil {
		return config.LocalKey{}, fmt.Errorf("storing key: %w", err)
	}

	entry := config.LocalKey{
		Name:      name,
		Address:   crypto.PubkeyToAddress(priv.PublicKey).Hex(),
		KeyRef:    ref,
		CreatedAt: time.Now().UTC().Format(time.RFC3339),
	}
	b.keys[name] = entry
	return entry, b.persist()
}

// Get returns the entry for name.
func (b *KeyBook) Get(name string) (config.LocalKey, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.load(); err != nil {
		return config.LocalKey{}, err
	}
	entry, ok := b.keys[name]
	if !ok {
		return config.LocalKey{}, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return entry, nil
}

// Remove deletes name from the index and its key from the keystore.
func (b *KeyBook) Remove(name string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.load(); err != nil {
		return err
	}
	entry, ok := b.keys[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	if err := b.ks.Delete(entry.KeyRef); err != nil {
		return err
	}
	delete(b.keys, name)
	return b.persist()
}

// List returns every entry sorted by name.
func (b *KeyBook) List() ([]config.LocalKey, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.load(); err != nil {
		return nil, err
	}
	out := make([]config.LocalKey, 0, len(b.keys))
	for _, k := range b.keys {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// Open loads name into a PrivateKeyWallet on chainID.
func (b *KeyBook) Open(name string, chainID int64, sessions ChainSessions) (*PrivateKeyWallet, error) {
	entry, err := b.Get(name)
	if err != nil {
		return nil, err
	}
	hexKey, err := b.ks.Retrieve(entry.KeyRef)
	if err != nil {
		return nil, fmt.Errorf("retrieving key: %w", err)
	}
	return NewPrivateKeyWallet(hexKey, chainID, sessions)
}

// --- internal ---

func (b *KeyBook) load() error {
	if b.loaded {
		return nil
	}
	keys, err := b.store.Load()
	if err != nil {
		return err
	}
	for _, k := range keys {
		b.keys[k.Name] = k
	}
	b.loaded = true
	return nil
}

func (b *KeyBook) persist() error {
	keys := make([]config.LocalKey, 0, len(b.keys))
	for _, k := range b.keys {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].Name < keys[j].Name })
	return b.store.Save(keys)
}

// --- in-memory store ---

type memStore struct {
	keys []config.LocalKey
}

func (s *memStore) Load() ([]config.LocalKey, error) { return s.keys, nil }

func (s *memStore) Save(keys []config.LocalKey) error {
	s.keys = keys
	return nil
}

// --- config-backed store ---

// ConfigStore keeps the index in the config dir's wallets.json.
type ConfigStore struct {
	cfg *config.Config
}

// NewConfigStore returns a store over cfg.
func NewConfigStore(cfg *config.Config) *ConfigStore {
	return &ConfigStore{cfg: cfg}
}

func (s *ConfigStore) Load() ([]config.LocalKey, error) {
	f, err := s.cfg.LoadLocalKeys()
	if err != nil {
		return nil, err
	}
	return f.Wallets, nil
}

func (s *ConfigStore) Save(keys []config.LocalKey) error {
	return s.cfg.SaveLocalKeys(&config.LocalKeysFile{Wallets: keys})
}
