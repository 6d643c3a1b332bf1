package attest

import (
	"fmt"

	"github.com/cloudflare/circl/sign"
	"github.com/cloudflare/circl/sign/mldsa/mldsa65"
	"github.com/cloudflare/circl/sign/schemes"
)

// DefaultScheme is the signature scheme used when none is named.
const DefaultScheme = "ML-DSA-65"

// LookupScheme returns the circl signature scheme with the given name,
// case-insensitively. An empty name selects DefaultScheme.
func LookupScheme(name string) (sign.Scheme, error) {
	if name == "" {
		return mldsa65.Scheme(), nil
	}
	s := schemes.ByName(name)
	if s == nil {
		return nil, fmt.Errorf("attest: unsupported signature scheme %q", name)
	}
	return s, nil
}

// SchemeSigner signs with one private key of a circl scheme.
type SchemeSigner struct {
	scheme sign.Scheme
	sk     sign.PrivateKey
	pub    []byte
}

// GenerateSigner creates a signer with a fresh key pair.
func GenerateSigner(scheme sign.Scheme) (*SchemeSigner, error) {
	pk, sk, err := scheme.GenerateKey()
	if err != nil {
		return nil, fmt.Errorf("attest: generate %s key: %w", scheme.Name(), err)
	}
	return newSchemeSigner(scheme, pk, sk)
}

// DeriveSigner creates a signer whose key pair is derived from seed.
// The seed must be scheme.SeedSize() bytes.
func DeriveSigner(scheme sign.Scheme, seed []byte) (*SchemeSigner, error) {
	if len(seed) != scheme.SeedSize() {
		return nil, fmt.Errorf("attest: %s seed must be %d bytes, got %d", scheme.Name(), scheme.SeedSize(), len(seed))
	}
	pk, sk := scheme.DeriveKey(seed)
	return newSchemeSigner(scheme, pk, sk)
}

func newSchemeSigner(scheme sign.Scheme, pk sign.PublicKey, sk sign.PrivateKey) (*SchemeSigner, error) {
	pub, err := pk.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("attest: marshal public key: %w", err)
	}
	return &SchemeSigner{scheme: scheme, sk: sk, pub: pub}, nil
}

// Sign returns a signature over msg.
func (s *SchemeSigner) Sign(msg []byte) ([]byte, error) {
	return s.scheme.Sign(s.sk, msg, nil), nil
}

// PublicKey returns the encoded public key.
func (s *SchemeSigner) PublicKey() []byte {
	return append([]byte(nil), s.pub...)
}

// Scheme returns the name of the signer's scheme.
func (s *SchemeSigner) Scheme() string { return s.scheme.Name() }

// SchemeVerifier verifies signatures of one circl scheme.
type SchemeVerifier struct {
	scheme sign.Scheme
}

// NewVerifier creates a verifier for scheme.
func NewVerifier(scheme sign.Scheme) *SchemeVerifier {
	return &SchemeVerifier{scheme: scheme}
}

// Verify reports whether sig is valid over msg under pub. Malformed
// keys and signatures verify as false.
func (v *SchemeVerifier) Verify(msg, sig, pub []byte) (ok bool) {
	if len(sig) != v.scheme.SignatureSize() {
		return false
	}
	pk, err := v.scheme.UnmarshalBinaryPublicKey(pub)
	if err != nil {
		return false
	}
	defer func() {
		if recover() != nil {
			ok = false
		}
	}()
	return v.scheme.Verify(pk, msg, sig, nil)
}
