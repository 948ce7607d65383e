package ledger

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"golang.org/x/crypto/sha3"
)

// Hash algorithm names.
const (
	AlgorithmSHA256  = "SHA-256"
	AlgorithmSHA3256 = "SHA3-256"
)

// SecureHash is a 32-byte digest tagged with its algorithm.
type SecureHash struct {
	Algorithm string
	Bytes     [32]byte
}

func SHA256(data []byte) SecureHash {
	return SecureHash{Algorithm: AlgorithmSHA256, Bytes: sha256.Sum256(data)}
}

func SHA3256(data []byte) SecureHash {
	return SecureHash{Algorithm: AlgorithmSHA3256, Bytes: sha3.Sum256(data)}
}

// ParseSecureHash accepts bare hex (SHA-256) or "ALGORITHM:HEX".
func ParseSecureHash(s string) (SecureHash, error) {
	algo, digest := AlgorithmSHA256, s
	if a, d, ok := strings.Cut(s, ":"); ok {
		algo, digest = strings.ToUpper(a), d
	}
	raw, err := hex.DecodeString(digest)
	if err != nil {
		return SecureHash{}, fmt.Errorf("parse secure hash: %w", err)
	}
	if len(raw) != 32 {
		return SecureHash{}, fmt.Errorf("parse secure hash: want 32 bytes, got %d", len(raw))
	}
	h := SecureHash{Algorithm: algo}
	copy(h.Bytes[:], raw)
	return h, nil
}

func (h SecureHash) String() string {
	digest := strings.ToUpper(hex.EncodeToString(h.Bytes[:]))
	if h.Algorithm == "" || h.Algorithm == AlgorithmSHA256 {
		return digest
	}
	return h.Algorithm + ":" + digest
}

func (h SecureHash) IsZero() bool { return h.Bytes == [32]byte{} }
