package refresh

import (
	"fmt"
	"strings"
)

// Policy selects how refresh tokens are handed out and looked up.
type Policy uint8

const (
	// PolicyJWT creates a record per issuance and hands out a signed JWT
	// carrying the record identifier as "jti" and its expiry as "exp".
	PolicyJWT Policy = iota
	// PolicySingleActive keeps at most one usable record per owner and hands
	// out the raw identifier.
	PolicySingleActive
)

func (p Policy) String() string {
	switch p {
	case PolicyJWT:
		return "jwt"
	case PolicySingleActive:
		return "single_active"
	default:
		return "unknown"
	}
}

// ParsePolicy resolves a configured policy name.
func ParsePolicy(s string) (Policy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "jwt":
		return PolicyJWT, nil
	case "single_active", "single-active", "single":
		return PolicySingleActive, nil
	}
	return 0, fmt.Errorf("refresh: unknown policy %q", s)
}

// MarshalText implements encoding.TextMarshaler.
func (p Policy) MarshalText() ([]byte, error) { return []byte(p.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (p *Policy) UnmarshalText(b []byte) error {
	v, err := ParsePolicy(string(b))
	if err != nil {
		return err
	}
	*p = v
	return nil
}
