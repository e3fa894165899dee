// Command token mints an operator access token for POST /outbound-call.
//
//	AUTH_JWT_SECRET=... go run ./cmd/token -operator crm-backend -ttl 24h
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"call-relay/internal/auth"
	"call-relay/internal/config"
)

func main() {
	operator := flag.String("operator", "", "operator name recorded in the token")
	ttl := flag.Duration("ttl", 0, "token lifetime (default JWT_ACCESS_TTL or 15m)")
	flag.Parse()

	if err := config.LoadDotEnv(); err != nil {
		slog.Error("dotenv load failed", "err", err)
		os.Exit(1)
	}

	cfg := config.AuthConfig{
		JWTSecret:   os.Getenv("AUTH_JWT_SECRET"),
		JWTIssuer:   os.Getenv("JWT_ISSUER"),
		JWTAudience: os.Getenv("JWT_AUDIENCE"),
	}
	if v := os.Getenv("JWT_ACCESS_TTL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			slog.Error("JWT_ACCESS_TTL must be a duration", "value", v)
			os.Exit(1)
		}
		cfg.AccessTokenTTL = d
	}

	m, err := auth.NewManager(cfg)
	if err != nil {
		slog.Error("auth init failed", "err", err)
		os.Exit(1)
	}
	tok, err := m.Issue(time.Now(), *operator, *ttl)
	if err != nil {
		slog.Error("token issue failed", "err", err)
		os.Exit(1)
	}
	fmt.Println(tok)
}
