package jwt

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/MrEthical07/jwtauth/claims"
	gjwt "github.com/golang-jwt/jwt/v5"
)

func secret(n int) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = byte(i + 1)
	}
	return b
}

func rsaPEM(t *testing.T, bits int) []byte {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, bits)
	if err != nil {
		t.Fatalf("generate rsa key: %v", err)
	}
	return pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)})
}

func edPEM(t *testing.T) []byte {
	t.Helper()
	out, err := GeneratePrivateKeyPEM(EdDSA)
	if err != nil {
		t.Fatalf("generate ed25519 key: %v", err)
	}
	return out
}

func samplePayload(exp time.Time) *claims.Payload {
	p := claims.New()
	p.Set(claims.P("drupal", "uid"), claims.Int(7))
	p.Set(claims.P("iat"), claims.Int(time.Now().Unix()))
	p.Set(claims.P("exp"), claims.Int(exp.Unix()))
	return p
}

func newTranscoder(t *testing.T) *Transcoder {
	t.Helper()
	tc, err := NewTranscoder(Config{})
	if err != nil {
		t.Fatalf("new transcoder: %v", err)
	}
	if err := tc.SetSecret(HS256, secret(64)); err != nil {
		t.Fatalf("set HS256: %v", err)
	}
	if err := tc.SetSecret(HS512, secret(128)); err != nil {
		t.Fatalf("set HS512: %v", err)
	}
	if err := tc.SetPrivateKey(RS256, rsaPEM(t, 2048)); err != nil {
		t.Fatalf("set RS256: %v", err)
	}
	if err := tc.SetPrivateKey(EdDSA, edPEM(t)); err != nil {
		t.Fatalf("set EdDSA: %v", err)
	}
	return tc
}

func tamper(t *testing.T, token string) string {
	t.Helper()
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		t.Fatalf("unexpected token shape %q", token)
	}
	sig, err := base64.RawURLEncoding.DecodeString(parts[2])
	if err != nil {
		t.Fatalf("decode signature: %v", err)
	}
	sig[len(sig)/2] ^= 0x01
	parts[2] = base64.RawURLEncoding.EncodeToString(sig)
	return strings.Join(parts, ".")
}

func TestRoundTripAllAlgorithms(t *testing.T) {
	tc := newTranscoder(t)
	for _, alg := range []Algorithm{HS256, HS512, RS256, EdDSA} {
		t.Run(string(alg), func(t *testing.T) {
			in := samplePayload(time.Now().Add(time.Hour))
			token, err := tc.EncodeWith(in, alg)
			if err != nil {
				t.Fatalf("encode: %v", err)
			}
			out, err := tc.Decode(token)
			if err != nil {
				t.Fatalf("decode: %v", err)
			}
			if !in.Equal(out) {
				t.Fatalf("payload mismatch: %v vs %v", in.Map(), out.Map())
			}
		})
	}
}

func TestTamperedSignatureIsSignatureInvalid(t *testing.T) {
	tc := newTranscoder(t)
	for _, alg := range []Algorithm{HS256, RS256, EdDSA} {
		token, err := tc.EncodeWith(samplePayload(time.Now().Add(time.Hour)), alg)
		if err != nil {
			t.Fatalf("%s encode: %v", alg, err)
		}
		_, err = tc.Decode(tamper(t, token))
		if !errors.Is(err, ErrSignatureInvalid) {
			t.Fatalf("%s: expected signature invalid, got %v", alg, err)
		}
	}
}

func TestTamperedExpiredTokenStillSignatureInvalid(t *testing.T) {
	tc := newTranscoder(t)
	token, err := tc.Encode(samplePayload(time.Now().Add(-time.Hour)))
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if _, err := tc.Decode(tamper(t, token)); !errors.Is(err, ErrSignatureInvalid) {
		t.Fatalf("expected signature invalid, got %v", err)
	}
}

func TestExpiredAndNotYetValid(t *testing.T) {
	tc := newTranscoder(t)

	expired, err := tc.Encode(samplePayload(time.Now().Add(-time.Minute)))
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if _, err := tc.Decode(expired); !errors.Is(err, ErrExpired) {
		t.Fatalf("expected expired, got %v", err)
	}

	early := samplePayload(time.Now().Add(time.Hour))
	early.Set(claims.P("nbf"), claims.Int(time.Now().Add(10*time.Minute).Unix()))
	token, err := tc.Encode(early)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if _, err := tc.Decode(token); !errors.Is(err, ErrNotYetValid) {
		t.Fatalf("expected not yet valid, got %v", err)
	}
}

func TestLeewayAcceptsRecentlyExpired(t *testing.T) {
	tc, err := NewTranscoder(Config{Algorithm: HS256, Leeway: time.Minute})
	if err != nil {
		t.Fatalf("new transcoder: %v", err)
	}
	if err := tc.SetSecret(HS256, secret(64)); err != nil {
		t.Fatalf("set secret: %v", err)
	}
	token, err := tc.Encode(samplePayload(time.Now().Add(-10 * time.Second)))
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if _, err := tc.Decode(token); err != nil {
		t.Fatalf("expected leeway to accept token: %v", err)
	}
}

func TestDecodeRejectsNoneAlgorithm(t *testing.T) {
	tc := newTranscoder(t)
	tok := gjwt.NewWithClaims(gjwt.SigningMethodNone, gjwt.MapClaims{"drupal": map[string]any{"uid": 7}})
	token, err := tok.SignedString(gjwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("sign none: %v", err)
	}
	if _, err := tc.Decode(token); !errors.Is(err, ErrUnsupportedAlgorithm) {
		t.Fatalf("expected unsupported algorithm, got %v", err)
	}
}

func TestDecodeRejectsAlgorithmOutsideSupportedSet(t *testing.T) {
	tc, err := NewTranscoder(Config{Supported: []Algorithm{RS256}})
	if err != nil {
		t.Fatalf("new transcoder: %v", err)
	}
	if err := tc.SetPrivateKey(RS256, rsaPEM(t, 2048)); err != nil {
		t.Fatalf("set key: %v", err)
	}

	hs, err := NewSecret(HS256, secret(64))
	if err != nil {
		t.Fatalf("secret: %v", err)
	}
	token, err := Encode(samplePayload(time.Now().Add(time.Hour)), HS256, hs)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if _, err := tc.Decode(token); !errors.Is(err, ErrUnsupportedAlgorithm) {
		t.Fatalf("expected unsupported algorithm, got %v", err)
	}
}

func TestDecodeRejectsUnknownHeaderAlgorithm(t *testing.T) {
	tc := newTranscoder(t)
	header := base64.RawURLEncoding.EncodeToString([]byte(`{"alg":"XX999","typ":"JWT"}`))
	body := base64.RawURLEncoding.EncodeToString([]byte(`{"drupal":{"uid":7}}`))
	if _, err := tc.Decode(header + "." + body + ".c2ln"); !errors.Is(err, ErrUnsupportedAlgorithm) {
		t.Fatalf("expected unsupported algorithm, got %v", err)
	}
}

func TestDecodeMalformed(t *testing.T) {
	tc := newTranscoder(t)
	for _, in := range []string{"", "not-a-token", "a.b", "@@@.@@@.@@@"} {
		_, err := tc.Decode(in)
		if !errors.Is(err, ErrMalformed) {
			t.Fatalf("%q: expected malformed, got %v", in, err)
		}
	}
}

func TestSecretTooSmall(t *testing.T) {
	cases := []struct {
		alg  Algorithm
		size int
	}{
		{HS256, 63},
		{HS384, 127},
		{HS512, 100},
	}
	for _, tc := range cases {
		_, err := NewSecret(tc.alg, secret(tc.size))
		if !errors.Is(err, &ConfigError{Reason: ConfigKeyTooSmall}) {
			t.Fatalf("%s with %d bytes: expected key too small, got %v", tc.alg, tc.size, err)
		}
	}
	if _, err := NewSecret(HS384, secret(128)); err != nil {
		t.Fatalf("expected 1024-bit HS384 secret to be accepted: %v", err)
	}
}

func TestRSAKeyTooSmall(t *testing.T) {
	_, err := NewPrivateKey(RS256, rsaPEM(t, 1024))
	if !errors.Is(err, &ConfigError{Reason: ConfigKeyTooSmall}) {
		t.Fatalf("expected key too small, got %v", err)
	}
}

func TestKeyTypeMismatch(t *testing.T) {
	if _, err := NewSecret(RS256, secret(256)); !errors.Is(err, &ConfigError{Reason: ConfigKeyTypeMismatch}) {
		t.Fatalf("secret for RS256: expected type mismatch, got %v", err)
	}
	if _, err := NewPrivateKey(HS256, rsaPEM(t, 2048)); !errors.Is(err, &ConfigError{Reason: ConfigKeyTypeMismatch}) {
		t.Fatalf("private key for HS256: expected type mismatch, got %v", err)
	}
	if _, err := NewPrivateKey(RS256, edPEM(t)); !errors.Is(err, &ConfigError{Reason: ConfigKeyTypeMismatch}) {
		t.Fatalf("ed25519 key for RS256: expected type mismatch, got %v", err)
	}
	if _, err := NewPrivateKey(EdDSA, rsaPEM(t, 2048)); !errors.Is(err, &ConfigError{Reason: ConfigKeyTypeMismatch}) {
		t.Fatalf("rsa key for EdDSA: expected type mismatch, got %v", err)
	}
	if _, err := NewPrivateKey(RS256, []byte("garbage")); !errors.Is(err, &ConfigError{Reason: ConfigInvalidKey}) {
		t.Fatalf("garbage: expected invalid key, got %v", err)
	}
}

func TestEncodeWithoutKey(t *testing.T) {
	tc, err := NewTranscoder(Config{Algorithm: RS256})
	if err != nil {
		t.Fatalf("new transcoder: %v", err)
	}
	_, err = tc.Encode(samplePayload(time.Now().Add(time.Hour)))
	if !errors.Is(err, ErrNoKeyConfigured) {
		t.Fatalf("expected no key configured, got %v", err)
	}
	var ee *EncodingError
	if !errors.As(err, &ee) || ee.Algorithm != RS256 {
		t.Fatalf("expected EncodingError for RS256, got %#v", err)
	}
}

func TestPublicKeyOnlyVerifies(t *testing.T) {
	privPEM := edPEM(t)
	signer, err := NewPrivateKey(EdDSA, privPEM)
	if err != nil {
		t.Fatalf("private key: %v", err)
	}
	pubPEM, err := PublicKeyPEM(signer)
	if err != nil {
		t.Fatalf("public pem: %v", err)
	}

	verifier, err := NewTranscoder(Config{Supported: []Algorithm{EdDSA}})
	if err != nil {
		t.Fatalf("new transcoder: %v", err)
	}
	if err := verifier.SetPublicKey(EdDSA, pubPEM); err != nil {
		t.Fatalf("set public key: %v", err)
	}

	token, err := Encode(samplePayload(time.Now().Add(time.Hour)), EdDSA, signer)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if _, err := verifier.Decode(token); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if _, err := verifier.Encode(claims.New()); !errors.Is(err, ErrNoKeyConfigured) {
		t.Fatalf("expected verify-only transcoder to refuse signing, got %v", err)
	}
}

func TestRawEd25519Key(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	k, err := NewPrivateKey(EdDSA, priv)
	if err != nil {
		t.Fatalf("raw private key: %v", err)
	}
	if _, err := NewPublicKey(EdDSA, pub); err != nil {
		t.Fatalf("raw public key: %v", err)
	}
	if !k.CanSign() || k.Public().CanSign() {
		t.Fatal("expected derived public key to be verify-only")
	}
}

func TestSetAlgorithmRestrictedToSigningSet(t *testing.T) {
	tc, err := NewTranscoder(Config{Supported: []Algorithm{HS256, RS256}, Signing: []Algorithm{HS256}})
	if err != nil {
		t.Fatalf("new transcoder: %v", err)
	}
	if err := tc.SetAlgorithm(RS256); err == nil {
		t.Fatal("expected RS256 to be refused as signing algorithm")
	}
	if _, err := NewTranscoder(Config{Supported: []Algorithm{"none"}}); err == nil {
		t.Fatal("expected none to be refused")
	}
	if _, err := NewTranscoder(Config{Supported: []Algorithm{HS256}, Signing: []Algorithm{RS256}}); err == nil {
		t.Fatal("expected signing outside supported set to be refused")
	}
}

func TestParseAlgorithm(t *testing.T) {
	alg, err := ParseAlgorithm("rs384")
	if err != nil || alg != RS384 {
		t.Fatalf("expected RS384, got %q %v", alg, err)
	}
	if _, err := ParseAlgorithm("none"); err == nil {
		t.Fatal("expected none to be rejected")
	}
}

func TestClearKeys(t *testing.T) {
	tc := newTranscoder(t)
	token, err := tc.Encode(samplePayload(time.Now().Add(time.Hour)))
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	tc.ClearKeys()
	if tc.HasSigningKey(HS256) {
		t.Fatal("expected keys cleared")
	}
	if _, err := tc.Decode(token); err == nil {
		t.Fatal("expected decode without keys to fail")
	}
}
