package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MicahParks/keyfunc"
	"github.com/golang-jwt/jwt/v4"

	"prism-board/domain"
)

// Verification selects how much a Decoder trusts a token.
type Verification string

const (
	// VerifyNone decodes claims without checking the signature. A client that
	// only forwards the token to the issuing service holds no signing key.
	VerifyNone Verification = "none"
	// VerifyHS256 checks the signature against a shared secret.
	VerifyHS256 Verification = "hs256"
	// VerifyJWKS checks RS256 signatures against a remote key set.
	VerifyJWKS Verification = "jwks"
)

var (
	errMalformedToken = errors.New("malformed token")
	errMissingExpiry  = errors.New("missing exp")
	errMissingSubject = errors.New("missing sub")
)

// Credential is a decoded bearer token.
type Credential struct {
	Token     string
	Subject   string
	ExpiresAt time.Time
}

// ValidAt reports whether the credential's expiry is strictly after now.
func (c Credential) ValidAt(now time.Time) bool {
	return c.Token != "" && now.Before(c.ExpiresAt)
}

// DecoderOptions configures NewDecoder.
type DecoderOptions struct {
	Verification Verification
	Secret       []byte
	JWKS         *keyfunc.JWKS
	Audience     string
	Issuer       string
}

// Decoder turns raw tokens into Credentials. Decode never checks expiry;
// callers compare ExpiresAt against their own clock.
type Decoder struct {
	opts   DecoderOptions
	parser *jwt.Parser
}

// NewDecoder validates the options for the chosen verification mode.
func NewDecoder(opts DecoderOptions) (*Decoder, error) {
	if opts.Verification == "" {
		opts.Verification = VerifyNone
	}
	d := &Decoder{opts: opts}
	switch opts.Verification {
	case VerifyNone:
		d.parser = jwt.NewParser()
	case VerifyHS256:
		if len(opts.Secret) == 0 {
			return nil, errors.New("hs256 verification requires a secret")
		}
		d.parser = jwt.NewParser(jwt.WithValidMethods([]string{"HS256"}), jwt.WithoutClaimsValidation())
	case VerifyJWKS:
		if opts.JWKS == nil {
			return nil, errors.New("jwks verification requires a key set")
		}
		d.parser = jwt.NewParser(jwt.WithValidMethods([]string{"RS256"}), jwt.WithoutClaimsValidation())
	default:
		return nil, fmt.Errorf("unsupported token verification %q", opts.Verification)
	}
	return d, nil
}

// Decode parses token into a Credential. Failures are reported as
// *domain.AuthError with reason InvalidToken.
func (d *Decoder) Decode(token string) (Credential, error) {
	cred, err := d.decode(token)
	if err != nil {
		return Credential{}, &domain.AuthError{Reason: domain.InvalidToken, Err: err}
	}
	return cred, nil
}

func (d *Decoder) decode(token string) (Credential, error) {
	token = strings.TrimSpace(token)
	if token == "" || strings.Count(token, ".") != 2 {
		return Credential{}, errMalformedToken
	}

	claims := jwt.MapClaims{}
	switch d.opts.Verification {
	case VerifyNone:
		if _, _, err := d.parser.ParseUnverified(token, claims); err != nil {
			return Credential{}, err
		}
	case VerifyHS256:
		if _, err := d.parser.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, errors.New("invalid signing method")
			}
			return d.opts.Secret, nil
		}); err != nil {
			return Credential{}, err
		}
	case VerifyJWKS:
		if _, err := d.parser.ParseWithClaims(token, claims, d.opts.JWKS.Keyfunc); err != nil {
			return Credential{}, err
		}
	}

	if d.opts.Verification != VerifyNone {
		if d.opts.Audience != "" && !claims.VerifyAudience(d.opts.Audience, true) {
			return Credential{}, errors.New("invalid audience")
		}
		if d.opts.Issuer != "" && !claims.VerifyIssuer(d.opts.Issuer, true) {
			return Credential{}, errors.New("invalid issuer")
		}
	}

	exp, ok := unixClaim(claims["exp"])
	if !ok {
		return Credential{}, errMissingExpiry
	}
	sub := subjectClaim(claims)
	if sub == "" {
		return Credential{}, errMissingSubject
	}
	return Credential{Token: token, Subject: sub, ExpiresAt: time.Unix(exp, 0)}, nil
}

// subjectClaim prefers the registered sub claim and falls back to the id
// claims issued by the task service.
func subjectClaim(claims jwt.MapClaims) string {
	for _, key := range [...]string{"sub", "id", "_id", "userId"} {
		if v, ok := claims[key].(string); ok && v != "" {
			return v
		}
	}
	return ""
}

func unixClaim(v any) (int64, bool) {
	switch n := v.(type) {
	case float64:
		return int64(n), true
	case int64:
		return n, true
	case int:
		return int64(n), true
	case json.Number:
		i, err := n.Int64()
		if err != nil {
			f, ferr := n.Float64()
			if ferr != nil {
				return 0, false
			}
			return int64(f), true
		}
		return i, true
	}
	return 0, false
}
