package jwt

import (
	"strings"

	gjwt "github.com/golang-jwt/jwt/v5"
)

// Algorithm is a JWS "alg" identifier.
type Algorithm string

const (
	HS256 Algorithm = "HS256"
	HS384 Algorithm = "HS384"
	HS512 Algorithm = "HS512"
	RS256 Algorithm = "RS256"
	RS384 Algorithm = "RS384"
	RS512 Algorithm = "RS512"
	EdDSA Algorithm = "EdDSA"
)

// KeyType tells whether an algorithm signs with a shared secret or with a
// private/public key pair.
type KeyType uint8

const (
	Symmetric KeyType = iota + 1
	Asymmetric
)

func (k KeyType) String() string {
	switch k {
	case Symmetric:
		return "symmetric"
	case Asymmetric:
		return "asymmetric"
	default:
		return "unknown"
	}
}

type family uint8

const (
	familyHMAC family = iota + 1
	familyRSA
	familyEd25519
)

// Descriptor holds the static properties of a supported algorithm.
type Descriptor struct {
	Algorithm  Algorithm
	KeyType    KeyType
	MinKeyBits int

	family family
	method gjwt.SigningMethod
}

var descriptors = []Descriptor{
	{Algorithm: HS256, KeyType: Symmetric, MinKeyBits: 512, family: familyHMAC, method: gjwt.SigningMethodHS256},
	{Algorithm: HS384, KeyType: Symmetric, MinKeyBits: 1024, family: familyHMAC, method: gjwt.SigningMethodHS384},
	{Algorithm: HS512, KeyType: Symmetric, MinKeyBits: 1024, family: familyHMAC, method: gjwt.SigningMethodHS512},
	{Algorithm: RS256, KeyType: Asymmetric, MinKeyBits: 2048, family: familyRSA, method: gjwt.SigningMethodRS256},
	{Algorithm: RS384, KeyType: Asymmetric, MinKeyBits: 2048, family: familyRSA, method: gjwt.SigningMethodRS384},
	{Algorithm: RS512, KeyType: Asymmetric, MinKeyBits: 2048, family: familyRSA, method: gjwt.SigningMethodRS512},
	{Algorithm: EdDSA, KeyType: Asymmetric, MinKeyBits: 256, family: familyEd25519, method: gjwt.SigningMethodEdDSA},
}

// Describe returns the descriptor for alg. Unknown algorithms, including
// "none", report false.
func Describe(alg Algorithm) (Descriptor, bool) {
	for _, d := range descriptors {
		if d.Algorithm == alg {
			return d, true
		}
	}
	return Descriptor{}, false
}

// Algorithms lists every algorithm this package can sign and verify.
func Algorithms() []Algorithm {
	out := make([]Algorithm, len(descriptors))
	for i, d := range descriptors {
		out[i] = d.Algorithm
	}
	return out
}

// ParseAlgorithm resolves a configured algorithm name. Matching ignores case
// so "hs256" and "HS256" are the same.
func ParseAlgorithm(name string) (Algorithm, error) {
	name = strings.TrimSpace(name)
	for _, d := range descriptors {
		if strings.EqualFold(string(d.Algorithm), name) {
			return d.Algorithm, nil
		}
	}
	return "", &ConfigError{Reason: ConfigUnsupportedAlgorithm, Algorithm: Algorithm(name)}
}
