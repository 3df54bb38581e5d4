package app

import (
	"errors"
	"strings"
)

// minJWTSecretBytes matches the HS256 key size.
const minJWTSecretBytes = 32

// ValidateSecurityConfig enforces the startup security policy. It fails fast rather
// than running with a weak or missing token key.
func ValidateSecurityConfig(cfg Config) error {
	secret := strings.TrimSpace(cfg.JWTSecret)
	if secret == "" {
		return errors.New("security policy: HUDDLE_JWT_SECRET is missing")
	}
	// Bytes, not runes: the key is used as raw bytes.
	if len(secret) < minJWTSecretBytes {
		return errors.New("security policy: HUDDLE_JWT_SECRET is too short (min 32 bytes)")
	}
	for _, o := range cfg.CORSAllowedOrigins {
		if o == "*" && cfg.CORSAllowCredentials {
			return errors.New("security policy: wildcard CORS origin cannot allow credentials")
		}
	}
	return nil
}
