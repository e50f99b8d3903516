// Package editorlink issues signed links to the external component editor.
// The router shows them when a component is still a draft or has no flows.
package editorlink

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// DefaultTTL is how long a link stays valid.
const DefaultTTL = 24 * time.Hour

const issuer = "interflow"

// ErrInvalidLink is returned by Verify for tokens that fail any check.
var ErrInvalidLink = errors.New("invalid editor link")

// Claims is the token payload. Subject is the component id.
type Claims struct {
	jwt.RegisteredClaims
	GuildID string `json:"guild_id,omitempty"`
}

// Signer builds and verifies editor links.
type Signer struct {
	origin string
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// Option configures a Signer.
type Option func(*Signer)

// WithTTL sets the link lifetime.
func WithTTL(d time.Duration) Option {
	return func(s *Signer) { s.ttl = d }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Signer) { s.now = now }
}

// NewSigner creates a Signer for links under origin.
func NewSigner(origin string, secret []byte, opts ...Option) (*Signer, error) {
	if _, err := url.Parse(origin); err != nil || origin == "" {
		return nil, fmt.Errorf("invalid editor origin %q", origin)
	}
	if len(secret) < 32 {
		return nil, errors.New("editor link secret must be at least 32 bytes")
	}
	s := &Signer{
		origin: strings.TrimSuffix(origin, "/"),
		secret: secret,
		ttl:    DefaultTTL,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Link returns <origin>/edit/component/<id>?token=<jwt>.
func (s *Signer) Link(componentID uint64, guildID string) (string, error) {
	id := strconv.FormatUint(componentID, 10)
	now := s.now().UTC()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   id,
			Issuer:    issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
		GuildID: guildID,
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign editor link: %w", err)
	}
	return s.origin + "/edit/component/" + id + "?token=" + url.QueryEscape(token), nil
}

// Verify checks a token issued by Link and returns its claims.
func (s *Signer) Verify(token string) (*Claims, error) {
	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(*jwt.Token) (any, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidLink, err)
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, ErrInvalidLink
	}
	return claims, nil
}
