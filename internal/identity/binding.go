// Package identity verifies the linkage between a party's public key and
// its binding hash. A binding hash commits a credential to a public key
// and a declared role set; the engine checks the commitment using public
// inputs only and never sees a private credential.
package identity

import (
	"crypto/ed25519"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/zeebo/blake3"

	"github.com/humotica/intentgate/internal/model"
)

// bindingPrefix tags binding hashes with the digest algorithm.
const bindingPrefix = "b3:"

// Verifier validates (public key, binding hash, roles) triples.
// The default implementation recomputes the BLAKE3 commitment; deployments
// with an external identity provider supply their own.
type Verifier interface {
	// VerifyBinding returns nil when bindingHash is well-formed and
	// commits publicKey to the declared roles. Malformed inputs fail
	// with ErrInvalidBinding, a failed commitment with
	// ErrBindingMismatch.
	VerifyBinding(publicKey, bindingHash string, roles []string) error
}

// BindingVerifier is the built-in Verifier.
type BindingVerifier struct{}

// NewVerifier returns the built-in BLAKE3 binding verifier.
func NewVerifier() *BindingVerifier {
	return &BindingVerifier{}
}

// VerifyBinding implements Verifier.
func (v *BindingVerifier) VerifyBinding(publicKey, bindingHash string, roles []string) error {
	pub, err := decodePublicKey(publicKey)
	if err != nil {
		return err
	}
	if err := checkBindingFormat(bindingHash); err != nil {
		return err
	}
	if DeriveBinding(pub, roles) != bindingHash {
		return fmt.Errorf("%w: binding does not commit key to roles %v",
			model.ErrBindingMismatch, roles)
	}
	return nil
}

// DeriveBinding computes the binding hash committing a public key to a
// role set: BLAKE3 over the raw key bytes, a zero separator, and the
// comma-joined roles. Role order matters; callers sort before deriving if
// the set is unordered.
func DeriveBinding(publicKey ed25519.PublicKey, roles []string) string {
	h := blake3.New()
	h.Write(publicKey)
	h.Write([]byte{0})
	h.Write([]byte(strings.Join(roles, ",")))
	return bindingPrefix + hex.EncodeToString(h.Sum(nil))
}

func decodePublicKey(publicKey string) (ed25519.PublicKey, error) {
	raw, err := base64.StdEncoding.DecodeString(publicKey)
	if err != nil {
		return nil, fmt.Errorf("%w: public key is not base64: %v", model.ErrInvalidBinding, err)
	}
	if len(raw) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("%w: public key is %d bytes, want %d",
			model.ErrInvalidBinding, len(raw), ed25519.PublicKeySize)
	}
	return ed25519.PublicKey(raw), nil
}

func checkBindingFormat(bindingHash string) error {
	if !strings.HasPrefix(bindingHash, bindingPrefix) {
		return fmt.Errorf("%w: binding hash missing %q prefix", model.ErrInvalidBinding, bindingPrefix)
	}
	digest := strings.TrimPrefix(bindingHash, bindingPrefix)
	raw, err := hex.DecodeString(digest)
	if err != nil || len(raw) != 32 {
		return fmt.Errorf("%w: binding digest must be 32 hex-encoded bytes", model.ErrInvalidBinding)
	}
	return nil
}
