package jwt

import (
	"crypto"
	"crypto/ed25519"
	"errors"
	"fmt"

	gjwt "github.com/golang-jwt/jwt/v5"
)

type keyKind uint8

const (
	kindSecret keyKind = iota + 1
	kindPrivate
	kindPublic
)

// KeyMaterial is a validated key bound to one algorithm. Secrets and private
// keys can sign and verify; public keys only verify.
type KeyMaterial struct {
	alg    Algorithm
	kind   keyKind
	bits   int
	secret []byte
	signer crypto.Signer
	public crypto.PublicKey
}

// NewSecret validates a shared secret for an HMAC algorithm. The secret must
// carry at least the algorithm's minimum number of bits.
func NewSecret(alg Algorithm, secret []byte) (*KeyMaterial, error) {
	d, err := describeForKey(alg, Symmetric)
	if err != nil {
		return nil, err
	}
	bits := len(secret) * 8
	if bits < d.MinKeyBits {
		return nil, &ConfigError{
			Reason:    ConfigKeyTooSmall,
			Algorithm: alg,
			Detail:    fmt.Sprintf("got %d bits, need at least %d", bits, d.MinKeyBits),
		}
	}
	return &KeyMaterial{
		alg:    alg,
		kind:   kindSecret,
		bits:   bits,
		secret: append([]byte(nil), secret...),
	}, nil
}

// NewPrivateKey validates a PEM private key for an asymmetric algorithm. The
// matching public key is derived so the result can also verify. Ed25519 keys
// may also be given as the raw 64-byte form.
func NewPrivateKey(alg Algorithm, data []byte) (*KeyMaterial, error) {
	d, err := describeForKey(alg, Asymmetric)
	if err != nil {
		return nil, err
	}
	switch d.family {
	case familyRSA:
		key, err := gjwt.ParseRSAPrivateKeyFromPEM(data)
		if err != nil {
			return nil, classifyParseError(alg, err, gjwt.ErrNotRSAPrivateKey)
		}
		if err := checkBits(d, key.N.BitLen()); err != nil {
			return nil, err
		}
		return &KeyMaterial{alg: alg, kind: kindPrivate, bits: key.N.BitLen(), signer: key, public: &key.PublicKey}, nil
	case familyEd25519:
		key, err := parseEdPrivateKey(data)
		if err != nil {
			if _, rsaErr := gjwt.ParseRSAPrivateKeyFromPEM(data); rsaErr == nil {
				return nil, &ConfigError{Reason: ConfigKeyTypeMismatch, Algorithm: alg, Detail: "got an RSA key"}
			}
			return nil, classifyParseError(alg, err, gjwt.ErrNotEdPrivateKey)
		}
		return &KeyMaterial{alg: alg, kind: kindPrivate, bits: d.MinKeyBits, signer: key, public: key.Public()}, nil
	}
	return nil, &ConfigError{Reason: ConfigUnsupportedAlgorithm, Algorithm: alg}
}

// NewPublicKey validates a PEM public key (or, for RSA, a certificate) for an
// asymmetric algorithm. The result verifies but cannot sign.
func NewPublicKey(alg Algorithm, data []byte) (*KeyMaterial, error) {
	d, err := describeForKey(alg, Asymmetric)
	if err != nil {
		return nil, err
	}
	switch d.family {
	case familyRSA:
		key, err := gjwt.ParseRSAPublicKeyFromPEM(data)
		if err != nil {
			return nil, classifyParseError(alg, err, gjwt.ErrNotRSAPublicKey)
		}
		if err := checkBits(d, key.N.BitLen()); err != nil {
			return nil, err
		}
		return &KeyMaterial{alg: alg, kind: kindPublic, bits: key.N.BitLen(), public: key}, nil
	case familyEd25519:
		key, err := parseEdPublicKey(data)
		if err != nil {
			return nil, classifyParseError(alg, err, gjwt.ErrNotEdPublicKey)
		}
		return &KeyMaterial{alg: alg, kind: kindPublic, bits: d.MinKeyBits, public: key}, nil
	}
	return nil, &ConfigError{Reason: ConfigUnsupportedAlgorithm, Algorithm: alg}
}

// Algorithm returns the algorithm the key was validated for.
func (k *KeyMaterial) Algorithm() Algorithm { return k.alg }

// Bits returns the key size in bits.
func (k *KeyMaterial) Bits() int { return k.bits }

// CanSign reports whether k holds a secret or private key.
func (k *KeyMaterial) CanSign() bool {
	return k != nil && (k.kind == kindSecret || k.kind == kindPrivate)
}

// CanVerify reports whether k can check signatures.
func (k *KeyMaterial) CanVerify() bool {
	return k != nil && (k.kind == kindSecret || k.public != nil)
}

// Public returns a verify-only copy of k. Secrets are returned unchanged.
func (k *KeyMaterial) Public() *KeyMaterial {
	if k == nil || k.kind != kindPrivate {
		return k
	}
	return &KeyMaterial{alg: k.alg, kind: kindPublic, bits: k.bits, public: k.public}
}

// PublicKey returns the asymmetric public key, or nil for secrets.
func (k *KeyMaterial) PublicKey() crypto.PublicKey {
	if k == nil {
		return nil
	}
	return k.public
}

func (k *KeyMaterial) signKey() any {
	if k.kind == kindSecret {
		return k.secret
	}
	return k.signer
}

func (k *KeyMaterial) verifyKey() any {
	if k.kind == kindSecret {
		return k.secret
	}
	return k.public
}

func describeForKey(alg Algorithm, want KeyType) (Descriptor, error) {
	d, ok := Describe(alg)
	if !ok {
		return Descriptor{}, &ConfigError{Reason: ConfigUnsupportedAlgorithm, Algorithm: alg}
	}
	if d.KeyType != want {
		return Descriptor{}, &ConfigError{
			Reason:    ConfigKeyTypeMismatch,
			Algorithm: alg,
			Detail:    fmt.Sprintf("%s requires a %s key", alg, d.KeyType),
		}
	}
	return d, nil
}

func checkBits(d Descriptor, bits int) error {
	if bits < d.MinKeyBits {
		return &ConfigError{
			Reason:    ConfigKeyTooSmall,
			Algorithm: d.Algorithm,
			Detail:    fmt.Sprintf("got %d bits, need at least %d", bits, d.MinKeyBits),
		}
	}
	return nil
}

func classifyParseError(alg Algorithm, err, wrongType error) error {
	if errors.Is(err, wrongType) {
		return &ConfigError{Reason: ConfigKeyTypeMismatch, Algorithm: alg, Detail: err.Error()}
	}
	return &ConfigError{Reason: ConfigInvalidKey, Algorithm: alg, Detail: err.Error()}
}

func parseEdPrivateKey(key []byte) (ed25519.PrivateKey, error) {
	if len(key) == ed25519.PrivateKeySize {
		return ed25519.PrivateKey(append([]byte(nil), key...)), nil
	}
	parsed, err := gjwt.ParseEdPrivateKeyFromPEM(key)
	if err != nil {
		return nil, err
	}
	edKey, ok := parsed.(ed25519.PrivateKey)
	if !ok {
		return nil, gjwt.ErrNotEdPrivateKey
	}
	return edKey, nil
}

func parseEdPublicKey(key []byte) (ed25519.PublicKey, error) {
	if len(key) == ed25519.PublicKeySize {
		return ed25519.PublicKey(append([]byte(nil), key...)), nil
	}
	parsed, err := gjwt.ParseEdPublicKeyFromPEM(key)
	if err != nil {
		return nil, err
	}
	edKey, ok := parsed.(ed25519.PublicKey)
	if !ok {
		return nil, gjwt.ErrNotEdPublicKey
	}
	return edKey, nil
}
