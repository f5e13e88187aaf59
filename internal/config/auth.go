package config

import (
	"fmt"
	"time"
)

// AuthConfig configures bearer token verification for the administration API.
type AuthConfig struct {
	// JWTSecret is the HS256 signing key shared with the identity provider.
	JWTSecret string `envconfig:"JWT_SECRET"`

	// Issuer, when set, must match the token's "iss" claim.
	Issuer string `envconfig:"ISSUER"`

	// Leeway tolerates clock skew when checking expiry.
	Leeway time.Duration `envconfig:"LEEWAY" default:"30s"`
}

// Validate requires a secret, and a strong one in production.
func (c *AuthConfig) Validate(environment string) error {
	if c.JWTSecret == "" {
		return fmt.Errorf("auth jwt secret is required")
	}
	return validateSecretLength(c.JWTSecret, "auth jwt secret", environment, 32)
}
