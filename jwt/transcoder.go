package jwt

import (
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/MrEthical07/jwtauth/claims"
	gjwt "github.com/golang-jwt/jwt/v5"
)

// DecodeOptions tunes registered-claim validation during Decode.
type DecodeOptions struct {
	// Leeway is the clock skew tolerated on exp and nbf.
	Leeway time.Duration
	// Now overrides the clock. Nil means time.Now.
	Now func() time.Time
}

// Encode signs p with key under alg. The payload is serialized as-is; no
// registered claims are added.
func Encode(p *claims.Payload, alg Algorithm, key *KeyMaterial) (string, error) {
	d, ok := Describe(alg)
	if !ok {
		return "", &ConfigError{Reason: ConfigUnsupportedAlgorithm, Algorithm: alg}
	}
	if !key.CanSign() {
		return "", &EncodingError{Algorithm: alg, Err: ErrNoKeyConfigured}
	}
	if key.alg != alg {
		return "", &ConfigError{
			Reason:    ConfigKeyTypeMismatch,
			Algorithm: alg,
			Detail:    fmt.Sprintf("key was loaded for %s", key.alg),
		}
	}

	token := gjwt.NewWithClaims(d.method, gjwt.MapClaims(p.Map()))
	signed, err := token.SignedString(key.signKey())
	if err != nil {
		return "", &EncodingError{Algorithm: alg, Err: err}
	}
	return signed, nil
}

// Decode verifies token and returns its payload. The header algorithm must
// be one of accepted and have a verification key in keys. exp and nbf are
// enforced when present.
func Decode(token string, accepted []Algorithm, keys map[Algorithm]*KeyMaterial, opts DecodeOptions) (*claims.Payload, error) {
	parserOpts := []gjwt.ParserOption{gjwt.WithJSONNumber()}
	if opts.Leeway > 0 {
		parserOpts = append(parserOpts, gjwt.WithLeeway(opts.Leeway))
	}
	if opts.Now != nil {
		parserOpts = append(parserOpts, gjwt.WithTimeFunc(opts.Now))
	}

	mc := gjwt.MapClaims{}
	_, err := gjwt.NewParser(parserOpts...).ParseWithClaims(token, mc, func(t *gjwt.Token) (any, error) {
		name, _ := t.Header["alg"].(string)
		alg := Algorithm(name)
		if !slices.Contains(accepted, alg) || t.Method.Alg() != name {
			return nil, errUnsupportedAlgorithm
		}
		key := keys[alg]
		if !key.CanVerify() {
			return nil, errNoVerifyKey
		}
		return key.verifyKey(), nil
	})
	if err != nil {
		return nil, classifyDecodeError(err)
	}

	p, err := claims.FromMap(mc)
	if err != nil {
		return nil, &DecodeError{Reason: ReasonMalformed, Err: err}
	}
	return p, nil
}

func classifyDecodeError(err error) error {
	reason := ReasonUnknown
	switch {
	case errors.Is(err, errUnsupportedAlgorithm):
		reason = ReasonUnsupportedAlgorithm
	case errors.Is(err, errNoVerifyKey):
		reason = ReasonUnknown
	case errors.Is(err, gjwt.ErrTokenMalformed):
		reason = ReasonMalformed
	case errors.Is(err, gjwt.ErrTokenSignatureInvalid):
		reason = ReasonSignatureInvalid
	case errors.Is(err, gjwt.ErrTokenExpired):
		reason = ReasonExpired
	case errors.Is(err, gjwt.ErrTokenNotValidYet):
		reason = ReasonNotYetValid
	case errors.Is(err, gjwt.ErrTokenUnverifiable):
		// the header names an algorithm the library does not know
		reason = ReasonUnsupportedAlgorithm
	case errors.Is(err, gjwt.ErrTokenInvalidClaims):
		reason = ReasonMalformed
	}
	return &DecodeError{Reason: reason, Err: err}
}

// Config configures a Transcoder.
type Config struct {
	// Algorithm is the active signing algorithm. Empty selects the first
	// entry of Signing.
	Algorithm Algorithm
	// Supported lists the algorithms accepted on decode. Empty means all.
	Supported []Algorithm
	// Signing lists the algorithms that may be selected for signing. It must
	// be a subset of Supported. Empty means Supported.
	Signing []Algorithm
	Leeway  time.Duration
	Now     func() time.Time
}

// Transcoder holds the active algorithm and per-algorithm keys, and converts
// between payloads and signed tokens.
//
// Transcoder is safe for concurrent use. Key setters may run while other
// goroutines encode and decode.
type Transcoder struct {
	mu        sync.RWMutex
	alg       Algorithm
	supported []Algorithm
	signing   []Algorithm
	signKeys  map[Algorithm]*KeyMaterial
	verify    map[Algorithm]*KeyMaterial
	opts      DecodeOptions
}

// NewTranscoder validates cfg and returns a transcoder with no keys loaded.
func NewTranscoder(cfg Config) (*Transcoder, error) {
	if cfg.Leeway < 0 || cfg.Leeway > 2*time.Minute {
		return nil, errors.New("jwt: invalid leeway configuration")
	}
	supported := cfg.Supported
	if len(supported) == 0 {
		supported = Algorithms()
	}
	for _, alg := range supported {
		if _, ok := Describe(alg); !ok {
			return nil, &ConfigError{Reason: ConfigUnsupportedAlgorithm, Algorithm: alg}
		}
	}
	signing := cfg.Signing
	if len(signing) == 0 {
		signing = supported
	}
	for _, alg := range signing {
		if !slices.Contains(supported, alg) {
			return nil, &ConfigError{Reason: ConfigUnsupportedAlgorithm, Algorithm: alg, Detail: "signing algorithm is not in the supported set"}
		}
	}
	alg := cfg.Algorithm
	if alg == "" {
		alg = signing[0]
	}
	if !slices.Contains(signing, alg) {
		return nil, &ConfigError{Reason: ConfigUnsupportedAlgorithm, Algorithm: alg, Detail: "not a signing algorithm"}
	}

	return &Transcoder{
		alg:       alg,
		supported: slices.Clone(supported),
		signing:   slices.Clone(signing),
		signKeys:  map[Algorithm]*KeyMaterial{},
		verify:    map[Algorithm]*KeyMaterial{},
		opts:      DecodeOptions{Leeway: cfg.Leeway, Now: cfg.Now},
	}, nil
}

// Algorithm returns the active signing algorithm.
func (t *Transcoder) Algorithm() Algorithm {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.alg
}

// SetAlgorithm switches the active signing algorithm.
func (t *Transcoder) SetAlgorithm(alg Algorithm) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !slices.Contains(t.signing, alg) {
		return &ConfigError{Reason: ConfigUnsupportedAlgorithm, Algorithm: alg}
	}
	t.alg = alg
	return nil
}

// SupportedAlgorithms returns the algorithms accepted on decode.
func (t *Transcoder) SupportedAlgorithms() []Algorithm {
	return slices.Clone(t.supported)
}

// SigningAlgorithms returns the algorithms that may be used for signing.
func (t *Transcoder) SigningAlgorithms() []Algorithm {
	return slices.Clone(t.signing)
}

// SetSecret loads a shared secret used to both sign and verify alg.
func (t *Transcoder) SetSecret(alg Algorithm, secret []byte) error {
	if err := t.checkSupported(alg); err != nil {
		return err
	}
	k, err := NewSecret(alg, secret)
	if err != nil {
		return err
	}
	t.put(alg, k, k)
	return nil
}

// SetPrivateKey loads a private key for alg. Its derived public key becomes
// the verification key until SetPublicKey replaces it.
func (t *Transcoder) SetPrivateKey(alg Algorithm, pem []byte) error {
	if err := t.checkSupported(alg); err != nil {
		return err
	}
	k, err := NewPrivateKey(alg, pem)
	if err != nil {
		return err
	}
	t.put(alg, k, k.Public())
	return nil
}

// SetPublicKey loads the verification key for alg.
func (t *Transcoder) SetPublicKey(alg Algorithm, pem []byte) error {
	if err := t.checkSupported(alg); err != nil {
		return err
	}
	k, err := NewPublicKey(alg, pem)
	if err != nil {
		return err
	}
	t.put(alg, nil, k)
	return nil
}

// ClearKeys drops every loaded key.
func (t *Transcoder) ClearKeys() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.signKeys = map[Algorithm]*KeyMaterial{}
	t.verify = map[Algorithm]*KeyMaterial{}
}

// HasSigningKey reports whether alg can currently sign.
func (t *Transcoder) HasSigningKey(alg Algorithm) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.signKeys[alg].CanSign()
}

// Encode signs p with the active algorithm.
func (t *Transcoder) Encode(p *claims.Payload) (string, error) {
	return t.EncodeWith(p, t.Algorithm())
}

// EncodeWith signs p with alg, which must be a signing algorithm.
//
// EncodeWith returns an *EncodingError wrapping ErrNoKeyConfigured when no
// signing key is loaded for alg.
func (t *Transcoder) EncodeWith(p *claims.Payload, alg Algorithm) (string, error) {
	t.mu.RLock()
	allowed := slices.Contains(t.signing, alg)
	key := t.signKeys[alg]
	t.mu.RUnlock()

	if !allowed {
		return "", &ConfigError{Reason: ConfigUnsupportedAlgorithm, Algorithm: alg}
	}
	if key == nil {
		return "", &EncodingError{Algorithm: alg, Err: ErrNoKeyConfigured}
	}
	return Encode(p, alg, key)
}

// Decode verifies token against every supported algorithm that has a key.
func (t *Transcoder) Decode(token string) (*claims.Payload, error) {
	t.mu.RLock()
	keys := make(map[Algorithm]*KeyMaterial, len(t.verify))
	for alg, k := range t.verify {
		keys[alg] = k
	}
	t.mu.RUnlock()
	return Decode(token, t.supported, keys, t.opts)
}

func (t *Transcoder) checkSupported(alg Algorithm) error {
	if !slices.Contains(t.supported, alg) {
		return &ConfigError{Reason: ConfigUnsupportedAlgorithm, Algorithm: alg}
	}
	return nil
}

func (t *Transcoder) put(alg Algorithm, sign, verify *KeyMaterial) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if sign != nil {
		t.signKeys[alg] = sign
	}
	t.verify[alg] = verify
}
