package api

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Sentinel errors for session cookie handling.
var (
	// ErrNoSessionCookie is returned when the session cookie is absent.
	ErrNoSessionCookie = errors.New("session cookie not found")

	// ErrBadSessionCookie is returned when the cookie fails signature or
	// claim validation.
	ErrBadSessionCookie = errors.New("session cookie invalid")
)

const (
	sessionCookieName = "gatewise_session"
	sessionCookieTTL  = 30 * 24 * time.Hour
)

// cookieCodec signs and verifies the session cookie. The cookie value is an
// HS256 JWT whose subject is the session id, so a client cannot mint or
// alter session identifiers.
type cookieCodec struct {
	secret []byte
	parser *jwt.Parser
	isDev  bool // dev mode drops the Secure flag for plain-HTTP testing
}

func newCookieCodec(secret []byte, isDev bool) *cookieCodec {
	return &cookieCodec{
		secret: secret,
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
			jwt.WithExpirationRequired(),
		),
		isDev: isDev,
	}
}

// Issue sets a signed session cookie for id.
func (c *cookieCodec) Issue(w http.ResponseWriter, id uuid.UUID) error {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   id.String(),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(sessionCookieTTL)),
	})
	signed, err := token.SignedString(c.secret)
	if err != nil {
		return fmt.Errorf("signing session cookie: %w", err)
	}

	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    signed,
		Path:     "/",
		MaxAge:   int(sessionCookieTTL.Seconds()),
		HttpOnly: true,
		Secure:   !c.isDev,
		SameSite: http.SameSiteLaxMode,
	})
	return nil
}

// Read extracts and verifies the session id from the request cookie.
func (c *cookieCodec) Read(r *http.Request) (uuid.UUID, error) {
	cookie, err := r.Cookie(sessionCookieName)
	if err != nil {
		return uuid.Nil, ErrNoSessionCookie
	}

	var claims jwt.RegisteredClaims
	if _, err := c.parser.ParseWithClaims(cookie.Value, &claims, func(*jwt.Token) (any, error) {
		return c.secret, nil
	}); err != nil {
		return uuid.Nil, fmt.Errorf("%w: %v", ErrBadSessionCookie, err)
	}

	id, err := uuid.Parse(claims.Subject)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: subject is not a session id", ErrBadSessionCookie)
	}
	return id, nil
}

// Clear expires the session cookie.
func (c *cookieCodec) Clear(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   !c.isDev,
		SameSite: http.SameSiteLaxMode,
	})
}
