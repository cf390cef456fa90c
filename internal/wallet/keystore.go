package wallet

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"

	"github.com/99designs/keyring"
)

const (
	keychainService = "w3link"
	// keyEnvVar, when set, overrides every keystore lookup. Meant for CI.
	keyEnvVar = "W3LINK_KEY"
)

// KeystoreBackend stores private keys by reference.
type KeystoreBackend interface {
	Store(name, hexKey string) (ref string, err error)
	Retrieve(ref string) (hexKey string, err error)
	Delete(ref string) error
}

// Keystore keeps private keys in the OS keychain.
type Keystore struct {
	ring keyring.Keyring
}

// DefaultKeystore returns a keystore backed by the OS keychain, falling
// back to an encrypted file under dir when no keychain is reachable.
func DefaultKeystore(dir string) *Keystore {
	cfg := keyring.Config{
		ServiceName:              keychainService,
		KeychainTrustApplication: true,
		FileDir:                  filepath.Join(dir, "keys"),
		FilePasswordFunc:         filePassword,
	}

	// Headless Linux rarely has a secret service running.
	if runtime.GOOS == "linux" {
		cfg.AllowedBackends = []keyring.BackendType{
			keyring.SecretServiceBackend,
			keyring.KWalletBackend,
			keyring.FileBackend,
		}
	}

	ring, err := keyring.Open(cfg)
	if err != nil {
		cfg.AllowedBackends = []keyring.BackendType{keyring.FileBackend}
		ring, _ = keyring.Open(cfg)
	}
	return &Keystore{ring: ring}
}

// NewKeystore wraps an already opened keyring.
func NewKeystore(ring keyring.Keyring) *Keystore {
	return &Keystore{ring: ring}
}

// Store saves hexKey under name and returns its reference.
func (k *Keystore) Store(name, hexKey string) (string, error) {
	if k.ring == nil {
		return "", fmt.Errorf("keystore not available")
	}
	ref := keyRef(name)
	if err := k.ring.Set(keyring.Item{Key: ref, Data: []byte(hexKey), Label: "w3link " + name}); err != nil {
		return "", fmt.Errorf("keychain store: %w", err)
	}
	return ref, nil
}

// Retrieve returns the key stored under ref, normalised to bare hex.
func (k *Keystore) Retrieve(ref string) (string, error) {
	if v := os.Getenv(keyEnvVar); v != "" {
		return normaliseHexKey(v), nil
	}
	if k.ring == nil {
		return "", fmt.Errorf("keystore not available")
	}
	item, err := k.ring.Get(ref)
	if err == keyring.ErrKeyNotFound {
		return "", fmt.Errorf("%w: key %s", ErrNotFound, ref)
	}
	if err != nil {
		return "", fmt.Errorf("keychain retrieve: %w", err)
	}
	return normaliseHexKey(string(item.Data)), nil
}

// Delete removes ref. Missing keys are not an error.
func (k *Keystore) Delete(ref string) error {
	if k.ring == nil {
		return nil
	}
	if err := k.ring.Remove(ref); err != nil && err != keyring.ErrKeyNotFound {
		return fmt.Errorf("keychain delete: %w", err)
	}
	return nil
}

// InMemoryKeystore keeps keys in memory (for tests).
type InMemoryKeystore struct {
	mu   sync.Mutex
	data map[string]string
}

// NewInMemoryKeystore creates an in-memory keystore.
func NewInMemoryKeystore() *InMemoryKeystore {
	return &InMemoryKeystore{data: make(map[string]string)}
}

func (k *InMemoryKeystore) Store(name, hexKey string) (string, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	ref := keyRef(name)
	k.data[ref] = hexKey
	return ref, nil
}

func (k *InMemoryKeystore) Retrieve(ref string) (string, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	v, ok := k.data[ref]
	if !ok {
		return "", fmt.Errorf("%w: key %s", ErrNotFound, ref)
	}
	return normaliseHexKey(v), nil
}

func (k *InMemoryKeystore) Delete(ref string) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	delete(k.data, ref)
	return nil
}

func keyRef(name string) string {
	return keychainService + "." + name
}

// normaliseHexKey trims whitespace and a 0x/0X prefix.
func normaliseHexKey(s string) string {
	s = strings.TrimSpace(s)
	if len(s) >= 2 && (s[:2] == "0x" || s[:2] == "0X") {
		return s[2:]
	}
	return s
}

// filePassword protects the file backend. W3LINK_KEYRING_PASSWORD wins,
// otherwise the file is keyed to the service name.
func filePassword(string) (string, error) {
	if p := os.Getenv("W3LINK_KEYRING_PASSWORD"); p != "" {
		return p, nil
	}
	return keychainService, nil
}
