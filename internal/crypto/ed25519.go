package crypto

import (
	"crypto/ed25519"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

var ErrInvalidPublicKey = errors.New("invalid Ed25519 public key")

// NormalizePublicKey validates a hex-encoded Ed25519 public key and returns
// its canonical lowercase form. This is the form stored and used for the
// one-agent-per-key uniqueness check.
func NormalizePublicKey(pubkeyHex string) (string, error) {
	normalized := strings.ToLower(strings.TrimSpace(pubkeyHex))

	decoded, err := hex.DecodeString(normalized)
	if err != nil {
		return "", fmt.Errorf("%w: invalid hex encoding", ErrInvalidPublicKey)
	}
	if len(decoded) != ed25519.PublicKeySize {
		return "", fmt.Errorf("%w: must be %d bytes, got %d", ErrInvalidPublicKey, ed25519.PublicKeySize, len(decoded))
	}

	return normalized, nil
}

// Verify reports whether signatureHex is a valid Ed25519 signature over
// message by the key pubkeyHex. Malformed hex or wrong-length inputs are a
// verification failure, never a panic.
func Verify(message []byte, signatureHex, pubkeyHex string) bool {
	pubkey, err := hex.DecodeString(strings.ToLower(pubkeyHex))
	if err != nil || len(pubkey) != ed25519.PublicKeySize {
		return false
	}

	signature, err := hex.DecodeString(signatureHex)
	if err != nil || len(signature) != ed25519.SignatureSize {
		return false
	}

	return ed25519.Verify(ed25519.PublicKey(pubkey), message, signature)
}
