package swap

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// SecretSize is the fixed length of a swap secret in bytes.
const SecretSize = 32

// Secret is the 32-byte preimage gating fund release on both ledgers.
type Secret [SecretSize]byte

// HashLock is the keccak256 digest of a Secret. Both ledgers must compute the
// identical digest for the same secret, so keccak256 is the only hash used
// anywhere in the protocol.
type HashLock = common.Hash

// RandomSecret returns a new secret read from crypto/rand.
func RandomSecret() (Secret, error) {
	secret := Secret{}
	if _, err := rand.Read(secret[:]); err != nil {
		return Secret{}, err
	}
	return secret, nil
}

// Hash commits to the secret with keccak256.
func (s Secret) Hash() HashLock {
	return crypto.Keccak256Hash(s[:])
}

func (s Secret) Hex() string {
	return hex.EncodeToString(s[:])
}

// Verify recomputes the commitment and compares it against the given lock.
func Verify(secret Secret, lock HashLock) bool {
	return secret.Hash() == lock
}

// SecretFromHex parses a 64-character hex string, with or without the 0x
// prefix, into a Secret. Anything that is not exactly 32 bytes is rejected.
func SecretFromHex(str string) (Secret, error) {
	b, err := bytes32FromHex(str)
	if err != nil {
		return Secret{}, err
	}
	return Secret(b), nil
}

// HashLockFromHex parses a 64-character hex string into a HashLock with the
// same strictness as SecretFromHex.
func HashLockFromHex(str string) (HashLock, error) {
	b, err := bytes32FromHex(str)
	if err != nil {
		return HashLock{}, err
	}
	return common.BytesToHash(b[:]), nil
}

func bytes32FromHex(str string) ([32]byte, error) {
	cleaned := strings.TrimPrefix(str, "0x")
	if len(cleaned) != 2*SecretSize {
		return [32]byte{}, fmt.Errorf("expected %v hex characters, got %v", 2*SecretSize, len(cleaned))
	}
	decoded, err := hex.DecodeString(cleaned)
	if err != nil {
		return [32]byte{}, err
	}
	b := [32]byte{}
	copy(b[:], decoded)
	return b, nil
}
