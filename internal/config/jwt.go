package config

import (
	"fmt"
	"os"
	"strconv"
)

// JWTConfig holds the bearer-token settings for the HTTP API.
type JWTConfig struct {
	Secret          string
	Issuer          string
	ExpirationHours int
}

// LoadJWTConfig reads JWT_SECRET, JWT_ISSUER and JWT_EXPIRATION_HOURS.
// It returns nil without error when JWT_SECRET is unset, which leaves the API open.
func LoadJWTConfig() (*JWTConfig, error) {
	secret := os.Getenv("JWT_SECRET")
	if secret == "" {
		return nil, nil
	}

	expirationHours := 24
	if raw := os.Getenv("JWT_EXPIRATION_HOURS"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid JWT_EXPIRATION_HOURS: %w", err)
		}
		expirationHours = v
	}

	cfg := &JWTConfig{
		Secret:          secret,
		Issuer:          getEnvString("JWT_ISSUER", "docmeta"),
		ExpirationHours: expirationHours,
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *JWTConfig) validate() error {
	if len(c.Secret) < 16 {
		return fmt.Errorf("JWT_SECRET must be at least 16 characters")
	}
	if c.ExpirationHours < 1 {
		return fmt.Errorf("JWT_EXPIRATION_HOURS must be at least 1 hour, got: %d", c.ExpirationHours)
	}
	return nil
}
