package jwt

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"fmt"
)

// GenerateSecret returns a random secret sized to the minimum for alg.
func GenerateSecret(alg Algorithm) ([]byte, error) {
	d, err := describeForKey(alg, Symmetric)
	if err != nil {
		return nil, err
	}
	buf := make([]byte, d.MinKeyBits/8)
	if _, err := rand.Read(buf); err != nil {
		return nil, fmt.Errorf("jwt: generate secret: %w", err)
	}
	return buf, nil
}

// GeneratePrivateKeyPEM creates a new private key for alg in PKCS#8 PEM form.
// RSA keys use the algorithm's minimum size.
func GeneratePrivateKeyPEM(alg Algorithm) ([]byte, error) {
	d, err := describeForKey(alg, Asymmetric)
	if err != nil {
		return nil, err
	}
	var key any
	switch d.family {
	case familyRSA:
		key, err = rsa.GenerateKey(rand.Reader, d.MinKeyBits)
	case familyEd25519:
		_, key, err = ed25519.GenerateKey(rand.Reader)
	}
	if err != nil {
		return nil, fmt.Errorf("jwt: generate %s key: %w", alg, err)
	}
	der, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		return nil, fmt.Errorf("jwt: marshal %s key: %w", alg, err)
	}
	return pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der}), nil
}

// PublicKeyPEM renders the public half of an asymmetric key as PKIX PEM.
func PublicKeyPEM(k *KeyMaterial) ([]byte, error) {
	if k == nil || k.public == nil {
		return nil, &ConfigError{Reason: ConfigKeyTypeMismatch, Detail: "no public key"}
	}
	der, err := x509.MarshalPKIXPublicKey(k.public)
	if err != nil {
		return nil, fmt.Errorf("jwt: marshal public key: %w", err)
	}
	return pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der}), nil
}
