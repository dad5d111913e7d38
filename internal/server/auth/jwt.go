// Package auth mints and validates the stateless bearer credential (an HS256
// JWT) and defines the authenticated Identity passed through the call chain.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/dascribs/authcore/internal/common"
	"github.com/dascribs/authcore/internal/timex"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const issuer = "authcore"

// Claims is the JWT payload: registered claims plus the subject's email,
// role and permissions at mint time.
type Claims struct {
	jwt.RegisteredClaims
	Email       string   `json:"email"`
	Role        string   `json:"role"`
	Permissions []string `json:"perms,omitempty"`
}

// BearerToken is a freshly minted credential.
type BearerToken struct {
	Token     string
	ExpiresAt time.Time
}

// Subject is what a bearer token asserts.
type Subject struct {
	PrincipalID string
	Email       string
	Role        string
	Permissions []string
	IssuedAt    time.Time
	ExpiresAt   time.Time
}

// Codec signs and verifies bearer tokens. The secret is fixed at construction
// and never mutated, so a Codec is safe for concurrent use.
type Codec struct {
	secret []byte
	ttl    time.Duration
	clock  timex.Clock
	parser *jwt.Parser
}

// NewCodec constructs a Codec that signs with secret and issues tokens valid for ttl.
func NewCodec(secret []byte, ttl time.Duration, clock timex.Clock) *Codec {
	return &Codec{
		secret: secret,
		ttl:    ttl,
		clock:  clock,
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
			jwt.WithStrictDecoding(),
			jwt.WithExpirationRequired(),
			jwt.WithIssuedAt(),
			jwt.WithIssuer(issuer),
			jwt.WithTimeFunc(clock.Now),
		),
	}
}

// Mint issues a token for the principal expiring ttl from now.
func (c *Codec) Mint(principalID, email, role string, permissions []string) (BearerToken, error) {
	now := c.clock.Now()
	exp := now.Add(c.ttl)

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   principalID,
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
		Email:       email,
		Role:        role,
		Permissions: permissions,
	})

	signed, err := token.SignedString(c.secret)
	if err != nil {
		return BearerToken{}, err
	}
	return BearerToken{Token: signed, ExpiresAt: exp.Truncate(time.Second)}, nil
}

// Validate checks signature, encoding and time claims. Every failure matches
// common.ErrInvalidToken plus one of ErrTokenExpired, ErrTokenSignature or
// ErrTokenMalformed when the cause is known.
func (c *Codec) Validate(tokenString string) (*Subject, error) {
	claims := &Claims{}
	token, err := c.parser.ParseWithClaims(tokenString, claims, func(*jwt.Token) (any, error) {
		return c.secret, nil
	})
	if err != nil {
		return nil, classify(err)
	}
	if !token.Valid || claims.Subject == "" {
		return nil, common.ErrInvalidToken
	}
	return subjectOf(claims), nil
}

// ExtractSubject decodes the claims without verifying signature or expiry.
// The result must not be trusted for authorization; it only lets callers
// short-circuit lookups before full validation.
func (c *Codec) ExtractSubject(tokenString string) (*Subject, error) {
	claims := &Claims{}
	if _, _, err := c.parser.ParseUnverified(tokenString, claims); err != nil {
		return nil, fmt.Errorf("%w: %w", common.ErrInvalidToken, common.ErrTokenMalformed)
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: %w", common.ErrInvalidToken, common.ErrTokenMalformed)
	}
	return subjectOf(claims), nil
}

func classify(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return fmt.Errorf("%w: %w", common.ErrInvalidToken, common.ErrTokenExpired)
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return fmt.Errorf("%w: %w", common.ErrInvalidToken, common.ErrTokenSignature)
	case errors.Is(err, jwt.ErrTokenMalformed):
		return fmt.Errorf("%w: %w", common.ErrInvalidToken, common.ErrTokenMalformed)
	}
	return common.ErrInvalidToken
}

func subjectOf(c *Claims) *Subject {
	s := &Subject{
		PrincipalID: c.Subject,
		Email:       c.Email,
		Role:        c.Role,
		Permissions: c.Permissions,
	}
	if c.IssuedAt != nil {
		s.IssuedAt = c.IssuedAt.Time
	}
	if c.ExpiresAt != nil {
		s.ExpiresAt = c.ExpiresAt.Time
	}
	return s
}
