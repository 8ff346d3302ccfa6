package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/jwtauth"
)

// Authenticator verifies HS256 bearer tokens. The caller identity is the
// token subject.
type Authenticator struct {
	ja *jwtauth.JWTAuth
}

// NewAuthenticator creates an authenticator for the shared secret.
func NewAuthenticator(secret []byte) (*Authenticator, error) {
	if len(secret) == 0 {
		return nil, errors.New("jwt secret is required")
	}
	return &Authenticator{ja: jwtauth.New("HS256", secret, nil)}, nil
}

// Verifier extracts and verifies a token from the Authorization header or the
// jwt cookie. Requests without a valid token continue anonymously.
func (a *Authenticator) Verifier() func(http.Handler) http.Handler {
	return jwtauth.Verifier(a.ja)
}

// Token issues a token for subject, valid for ttl.
func (a *Authenticator) Token(subject string, ttl time.Duration) (string, error) {
	claims := map[string]interface{}{"sub": subject}
	jwtauth.SetIssuedNow(claims)
	if ttl > 0 {
		jwtauth.SetExpiryIn(claims, ttl)
	}
	_, token, err := a.ja.Encode(claims)
	return token, err
}

// Caller returns the verified subject of the request, or "" when the request
// is anonymous or its token failed verification.
func Caller(ctx context.Context) string {
	token, claims, err := jwtauth.FromContext(ctx)
	if err != nil || token == nil {
		return ""
	}
	sub, _ := claims["sub"].(string)
	return sub
}
