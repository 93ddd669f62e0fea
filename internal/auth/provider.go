// Package auth supplies the engine's view of the session: a token and user
// ID obtained through a registration callback. The engine never fails on
// missing credentials; their absence simply means "cannot sync" and is
// treated the same as being offline.
package auth

import (
	"context"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Credentials is the pair the auth collaborator supplies for remote calls.
type Credentials struct {
	Token  string
	UserID string
}

// Provider yields the current session credentials. The second return value
// is false when no usable credentials exist, which callers must treat as
// offline rather than as an error.
type Provider interface {
	Credentials(ctx context.Context) (Credentials, bool)
}

// CredentialsFunc adapts a plain callback into a Provider, matching the
// registration-callback shape host applications supply.
type CredentialsFunc func(ctx context.Context) (Credentials, bool)

// Credentials implements Provider.
func (f CredentialsFunc) Credentials(ctx context.Context) (Credentials, bool) {
	return f(ctx)
}

// Static is a Provider with fixed credentials, mainly for tests and CLI
// embeddings. A zero token means no credentials.
type Static struct {
	Token  string
	UserID string
}

// Credentials implements Provider.
func (s Static) Credentials(context.Context) (Credentials, bool) {
	if s.Token == "" {
		return Credentials{}, false
	}
	return Credentials{Token: s.Token, UserID: s.UserID}, true
}

// JWTProvider wraps another Provider and withholds tokens that are visibly
// expired. The token is parsed without signature verification (the device
// holds no signing key) purely to read the expiry claim and avoid burning
// network attempts on a token the server will reject.
type JWTProvider struct {
	source    Provider
	timeFunc  func() time.Time // Injectable for testing
	clockSkew time.Duration
}

// NewJWTProvider wraps source with client-side expiry screening.
func NewJWTProvider(source Provider) *JWTProvider {
	return &JWTProvider{
		source:    source,
		timeFunc:  time.Now,
		clockSkew: 2 * time.Minute,
	}
}

// Credentials implements Provider. An unparseable token passes through
// untouched; only a token with a readable, already-elapsed expiry claim is
// withheld.
func (p *JWTProvider) Credentials(ctx context.Context) (Credentials, bool) {
	creds, ok := p.source.Credentials(ctx)
	if !ok {
		return Credentials{}, false
	}

	claims := jwt.RegisteredClaims{}
	parser := jwt.NewParser()
	if _, _, err := parser.ParseUnverified(creds.Token, &claims); err != nil {
		return creds, true
	}
	if claims.ExpiresAt != nil && claims.ExpiresAt.Time.Add(p.clockSkew).Before(p.timeFunc()) {
		return Credentials{}, false
	}
	return creds, true
}
