// Package authz is the bearer-credential capability the transports consume.
// The gateway only branches on the decision; how the credential is validated
// lives here.
package authz

import (
	"crypto/subtle"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Decision is the outcome of an authorization check.
type Decision int

const (
	// Allowed lets the request proceed.
	Allowed Decision = iota
	// MissingCredential means no Authorization header was presented; maps
	// to HTTP 401 with a Bearer challenge.
	MissingCredential
	// InvalidCredential means a credential was presented but rejected; maps
	// to HTTP 403.
	InvalidCredential
)

// Authorizer decides whether a request carries acceptable credentials.
// Implementations must be safe for concurrent use.
type Authorizer interface {
	Authorize(r *http.Request) Decision
}

// Disabled allows everything. Used when no secret is configured.
func Disabled() Authorizer {
	return allowAll{}
}

type allowAll struct{}

func (allowAll) Authorize(*http.Request) Decision { return Allowed }

// StaticToken validates a fixed bearer token with a constant-time compare.
func StaticToken(token string) Authorizer {
	return &staticToken{token: token}
}

type staticToken struct {
	token string
}

func (a *staticToken) Authorize(r *http.Request) Decision {
	tok, decision := bearerToken(r)
	if decision != Allowed {
		return decision
	}
	if subtle.ConstantTimeCompare([]byte(tok), []byte(a.token)) != 1 {
		return InvalidCredential
	}
	return Allowed
}

// HS256 validates bearer tokens as HS256-signed JWTs with a shared secret.
// Signature and standard time claims are checked with a small leeway; no
// issuer or audience is enforced.
func HS256(secret []byte) Authorizer {
	return &jwtAuthorizer{
		secret: secret,
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{"HS256"}),
			jwt.WithLeeway(60*time.Second),
		),
	}
}

type jwtAuthorizer struct {
	secret []byte
	parser *jwt.Parser
}

func (a *jwtAuthorizer) Authorize(r *http.Request) Decision {
	tok, decision := bearerToken(r)
	if decision != Allowed {
		return decision
	}
	if _, err := a.parser.Parse(tok, func(*jwt.Token) (any, error) {
		return a.secret, nil
	}); err != nil {
		return InvalidCredential
	}
	return Allowed
}

// bearerToken extracts the bearer token from the Authorization header. A
// header with the wrong scheme or an empty token counts as an invalid
// credential, not a missing one.
func bearerToken(r *http.Request) (string, Decision) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", MissingCredential
	}
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return "", InvalidCredential
	}
	tok := strings.TrimSpace(header[len(prefix):])
	if tok == "" {
		return "", InvalidCredential
	}
	return tok, Allowed
}
