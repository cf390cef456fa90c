package walletconnect

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"
)

// envelope is the encrypted payload published on the relay.
type envelope struct {
	Data  string `json:"data"`
	Nonce string `json:"nonce"`
}

func newKey() ([]byte, error) {
	key := make([]byte, chacha20poly1305.KeySize)
	if _, err := rand.Read(key); err != nil {
		return nil, err
	}
	return key, nil
}

// seal encrypts plain under key and returns the JSON envelope.
func seal(key, plain []byte) (string, error) {
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return "", err
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", err
	}
	out, err := json.Marshal(envelope{
		Data:  hex.EncodeToString(aead.Seal(nil, nonce, plain, nil)),
		Nonce: hex.EncodeToString(nonce),
	})
	if err != nil {
		return "", err
	}
	return string(out), nil
}

// open reverses seal. It fails when the payload was sealed under another key.
func open(key []byte, payload string) ([]byte, error) {
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, err
	}
	var env envelope
	if err := json.Unmarshal([]byte(payload), &env); err != nil {
		return nil, fmt.Errorf("decoding envelope: %w", err)
	}
	nonce, err := hex.DecodeString(env.Nonce)
	if err != nil || len(nonce) != aead.NonceSize() {
		return nil, errors.New("envelope has a bad nonce")
	}
	ct, err := hex.DecodeString(env.Data)
	if err != nil {
		return nil, fmt.Errorf("decoding envelope data: %w", err)
	}
	plain, err := aead.Open(nil, nonce, ct, nil)
	if err != nil {
		return nil, fmt.Errorf("decrypting envelope: %w", err)
	}
	return plain, nil
}
