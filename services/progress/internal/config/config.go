package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds the progress service settings.
type Config struct {
	// DatabaseURL is the Postgres DSN. Required.
	DatabaseURL string
	// NATSURL is used for the sample consumer and analytics publishing.
	NATSURL string
	// JWTSecret verifies bearer tokens issued by the auth service. Required.
	JWTSecret string
	// ContentSigningSecret signs per-user content URLs in course responses.
	ContentSigningSecret string
	// ContentGatewayURL is the base URL signed content links point at.
	ContentGatewayURL string
	// SignedURLTTL bounds how long a signed content link stays valid.
	SignedURLTTL time.Duration
}

func Load() (Config, error) {
	cfg := Config{
		DatabaseURL:          strings.TrimSpace(os.Getenv("DATABASE_URL")),
		NATSURL:              strings.TrimSpace(os.Getenv("NATS_URL")),
		JWTSecret:            strings.TrimSpace(os.Getenv("JWT_SECRET")),
		ContentSigningSecret: strings.TrimSpace(os.Getenv("CONTENT_SIGNING_SECRET")),
		ContentGatewayURL:    strings.TrimSpace(os.Getenv("CONTENT_GATEWAY_URL")),
		SignedURLTTL:         6 * time.Hour,
	}
	if cfg.DatabaseURL == "" {
		return Config{}, fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.JWTSecret == "" {
		return Config{}, fmt.Errorf("JWT_SECRET is required")
	}
	if v := strings.TrimSpace(os.Getenv("SIGNED_URL_TTL_SECONDS")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return Config{}, fmt.Errorf("SIGNED_URL_TTL_SECONDS: invalid value %q", v)
		}
		cfg.SignedURLTTL = time.Duration(n) * time.Second
	}
	return cfg, nil
}
