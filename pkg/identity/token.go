package identity

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

const algorithm = "HS256"

type header struct {
	Type      string `json:"typ"`
	Algorithm string `json:"alg"`
}

// Claims are the registered claims the gateway reads. Subject holds the user ID.
type Claims struct {
	ID        string `json:"jti,omitempty"`
	Subject   string `json:"sub"`
	Issuer    string `json:"iss,omitempty"`
	ExpiresAt int64  `json:"exp,omitempty"`
	NotBefore int64  `json:"nbf,omitempty"`
	IssuedAt  int64  `json:"iat,omitempty"`
}

// Signer issues and verifies HS256 tokens whose subject is a user UUID.
type Signer struct {
	key    []byte
	issuer string
	leeway time.Duration
	now    func() time.Time
}

// SignerOption configures a Signer.
type SignerOption func(*Signer)

// WithIssuer stamps issued tokens with iss and requires it on verification.
func WithIssuer(iss string) SignerOption {
	return func(s *Signer) { s.issuer = iss }
}

// WithLeeway tolerates clock skew when checking exp and nbf.
func WithLeeway(d time.Duration) SignerOption {
	return func(s *Signer) {
		if d > 0 {
			s.leeway = d
		}
	}
}

// WithSignerClock overrides the time source.
func WithSignerClock(now func() time.Time) SignerOption {
	return func(s *Signer) { s.now = now }
}

// NewSigner creates a Signer for key.
func NewSigner(key string, opts ...SignerOption) (*Signer, error) {
	if key == "" {
		return nil, ErrMissingSigningKey
	}
	s := &Signer{key: []byte(key), now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Issue signs a token for userID valid for ttl. A zero ttl issues a token without exp.
func (s *Signer) Issue(userID uuid.UUID, ttl time.Duration) (string, error) {
	now := s.now()
	c := Claims{
		ID:       uuid.NewString(),
		Subject:  userID.String(),
		Issuer:   s.issuer,
		IssuedAt: now.Unix(),
	}
	if ttl > 0 {
		c.ExpiresAt = now.Add(ttl).Unix()
	}

	h, err := json.Marshal(header{Type: "JWT", Algorithm: algorithm})
	if err != nil {
		return "", fmt.Errorf("identity: marshal header: %w", err)
	}
	body, err := json.Marshal(c)
	if err != nil {
		return "", fmt.Errorf("identity: marshal claims: %w", err)
	}

	payload := encode(h) + "." + encode(body)
	return payload + "." + s.sign(payload), nil
}

// Verify checks the signature and temporal claims of token and returns its user.
func (s *Signer) Verify(token string) (uuid.UUID, error) {
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return uuid.Nil, ErrMalformedToken
	}

	payload := parts[0] + "." + parts[1]
	if subtle.ConstantTimeCompare([]byte(parts[2]), []byte(s.sign(payload))) != 1 {
		return uuid.Nil, ErrInvalidSignature
	}

	var h header
	if err := decodeJSON(parts[0], &h); err != nil {
		return uuid.Nil, err
	}
	if h.Algorithm != algorithm {
		return uuid.Nil, ErrUnsupportedAlg
	}

	var c Claims
	if err := decodeJSON(parts[1], &c); err != nil {
		return uuid.Nil, err
	}
	if err := s.validate(c); err != nil {
		return uuid.Nil, err
	}

	id, err := uuid.Parse(c.Subject)
	if err != nil || id == uuid.Nil {
		return uuid.Nil, ErrInvalidSubject
	}
	return id, nil
}

func (s *Signer) validate(c Claims) error {
	now := s.now()
	if c.ExpiresAt > 0 && now.Add(-s.leeway).Unix() >= c.ExpiresAt {
		return ErrExpiredToken
	}
	if c.NotBefore > 0 && now.Add(s.leeway).Unix() < c.NotBefore {
		return ErrTokenNotYetValid
	}
	if s.issuer != "" && c.Issuer != s.issuer {
		return ErrInvalidIssuer
	}
	return nil
}

func (s *Signer) sign(payload string) string {
	mac := hmac.New(sha256.New, s.key)
	mac.Write([]byte(payload))
	return encode(mac.Sum(nil))
}

func encode(b []byte) string {
	return base64.RawURLEncoding.EncodeToString(b)
}

func decodeJSON(segment string, v any) error {
	raw, err := base64.RawURLEncoding.DecodeString(segment)
	if err != nil {
		return errors.Join(ErrMalformedToken, err)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return errors.Join(ErrMalformedToken, err)
	}
	return nil
}
