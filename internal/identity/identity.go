// Package identity verifies login credentials from the identity provider.
//
// The login flow itself (consent screens, redirects) happens entirely on the
// provider side; this package only checks the credential the browser posts
// back and extracts the verified subject from it.
package identity

import (
	"context"
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// Sentinel errors for credential verification.
var (
	// ErrNoCredential indicates the login request carried no credential.
	ErrNoCredential = errors.New("no user credentials found")

	// ErrInvalidCredential indicates the credential failed verification.
	ErrInvalidCredential = errors.New("invalid credential")
)

// Token is a verified user identity.
type Token struct {
	Subject string // stable user identifier from the provider
	Email   string
	Name    string
	Raw     string // original credential, forwarded on authenticated downstream calls
}

// Verifier checks a raw credential and yields a verified Token.
// Implementations wrap a specific identity provider.
type Verifier interface {
	Verify(ctx context.Context, credential string) (*Token, error)
}

// claims is the JWT claim set we extract from provider credentials.
type claims struct {
	jwt.RegisteredClaims
	Email string `json:"email,omitempty"`
	Name  string `json:"name,omitempty"`
}

// JWTVerifier validates JWT credentials issued for a configured audience.
// The signing key is supplied by the deployment (shared secret with the
// provider gateway); signature scheme is HS256.
type JWTVerifier struct {
	audience string
	parser   *jwt.Parser
	keyfunc  jwt.Keyfunc
}

// NewJWTVerifier creates a verifier for credentials addressed to audience,
// signed with secret.
func NewJWTVerifier(audience string, secret []byte) *JWTVerifier {
	return &JWTVerifier{
		audience: audience,
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
			jwt.WithAudience(audience),
			jwt.WithExpirationRequired(),
		),
		keyfunc: func(*jwt.Token) (any, error) {
			return secret, nil
		},
	}
}

// Verify checks the credential signature, audience, and expiry.
func (v *JWTVerifier) Verify(_ context.Context, credential string) (*Token, error) {
	if credential == "" {
		return nil, ErrNoCredential
	}

	var c claims
	if _, err := v.parser.ParseWithClaims(credential, &c, v.keyfunc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCredential, err)
	}
	if c.Subject == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrInvalidCredential)
	}

	return &Token{
		Subject: c.Subject,
		Email:   c.Email,
		Name:    c.Name,
		Raw:     credential,
	}, nil
}
