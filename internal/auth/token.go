package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalidToken covers every reason a bearer token is rejected.
var ErrInvalidToken = errors.New("invalid access token")

// claims is the access token payload issued to admins.
type claims struct {
	Role        Role         `json:"role"`
	Permissions []Permission `json:"permissions,omitempty"`
	Revoked     []Permission `json:"revoked,omitempty"`
	jwt.RegisteredClaims
}

// Authenticator verifies HS256 admin access tokens.
type Authenticator struct {
	secret []byte
	issuer string
	leeway time.Duration
	now    func() time.Time
}

// NewAuthenticator panics on an empty secret: running without one would accept nothing
// or, worse, anything.
func NewAuthenticator(secret, issuer string, leeway time.Duration) *Authenticator {
	if secret == "" {
		panic("auth: jwt secret cannot be empty")
	}
	return &Authenticator{
		secret: []byte(secret),
		issuer: issuer,
		leeway: leeway,
		now:    time.Now,
	}
}

// Parse validates token and returns the actor it identifies.
// Tokens must be HS256, unexpired, carry a subject and a known role, and match the
// configured issuer when one is set.
func (a *Authenticator) Parse(token string) (Actor, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(a.leeway),
		jwt.WithTimeFunc(a.now),
	}
	if a.issuer != "" {
		opts = append(opts, jwt.WithIssuer(a.issuer))
	}

	var c claims
	_, err := jwt.ParseWithClaims(token, &c, func(*jwt.Token) (any, error) {
		return a.secret, nil
	}, opts...)
	if err != nil {
		return Actor{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	if c.Subject == "" {
		return Actor{}, fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}
	if !c.Role.Valid() {
		return Actor{}, fmt.Errorf("%w: unknown role %q", ErrInvalidToken, c.Role)
	}

	return Actor{
		ID:      c.Subject,
		Role:    c.Role,
		Granted: c.Permissions,
		Revoked: c.Revoked,
	}, nil
}

// Issue signs a token for actor valid for ttl. The service itself never logs admins in;
// this exists for operators' tooling and tests.
func (a *Authenticator) Issue(actor Actor, ttl time.Duration) (string, error) {
	now := a.now()
	c := claims{
		Role:        actor.Role,
		Permissions: actor.Granted,
		Revoked:     actor.Revoked,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   actor.ID,
			Issuer:    a.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(a.secret)
}
