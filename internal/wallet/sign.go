package wallet

import (
	"crypto/ecdsa"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
)

// HashPersonal returns the Keccak-256 hash of the EIP-191 prefixed message.
func HashPersonal(message []byte) []byte {
	prefix := fmt.Sprintf("\x19Ethereum Signed Message:\n%d", len(message))
	return crypto.Keccak256([]byte(prefix), message)
}

// SignPersonal signs message with EIP-191 (personal_sign) and returns a
// 65-byte R || S || V signature with V in {27, 28}.
func SignPersonal(key *ecdsa.PrivateKey, message []byte) ([]byte, error) {
	return signHash(key, HashPersonal(message))
}

// SignTypedData signs the EIP-712 hash of data.
func SignTypedData(key *ecdsa.PrivateKey, data apitypes.TypedData) ([]byte, error) {
	hash, _, err := apitypes.TypedDataAndHash(data)
	if err != nil {
		return nil, fmt.Errorf("hashing typed data: %w", err)
	}
	return signHash(key, hash)
}

// RecoverPersonalSign returns the address that produced sig over message.
// V may be 0/1 or 27/28.
func RecoverPersonalSign(message, sig []byte) (common.Address, error) {
	return recoverHash(HashPersonal(message), sig)
}

// RecoverTypedData returns the address that signed the EIP-712 hash of data.
func RecoverTypedData(data apitypes.TypedData, sig []byte) (common.Address, error) {
	hash, _, err := apitypes.TypedDataAndHash(data)
	if err != nil {
		return common.Address{}, fmt.Errorf("hashing typed data: %w", err)
	}
	return recoverHash(hash, sig)
}

func signHash(key *ecdsa.PrivateKey, hash []byte) ([]byte, error) {
	sig, err := crypto.Sign(hash, key)
	if err != nil {
		return nil, fmt.Errorf("signing: %w", err)
	}
	sig[64] += 27
	return sig, nil
}

func recoverHash(hash, sig []byte) (common.Address, error) {
	if len(sig) != crypto.SignatureLength {
		return common.Address{}, fmt.Errorf("invalid signature length: expected %d bytes, got %d", crypto.SignatureLength, len(sig))
	}
	rsv := make([]byte, len(sig))
	copy(rsv, sig)
	if rsv[64] >= 27 {
		rsv[64] -= 27
	}
	pub, err := crypto.SigToPub(hash, rsv)
	if err != nil {
		return common.Address{}, fmt.Errorf("recovering signer: %w", err)
	}
	return crypto.PubkeyToAddress(*pub), nil
}
