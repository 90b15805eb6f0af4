// seed creates the development account used for local testing. Idempotent: an existing dev user is left as is.
package main

import (
	"context"
	"errors"
	"log"
	"time"

	"auth-session-service/internal/config"
	"auth-session-service/internal/db"
	identityrepo "auth-session-service/internal/identity/repository"
	identityservice "auth-session-service/internal/identity/service"
	"auth-session-service/internal/security"
)

const (
	devUserName  = "Dev User"
	devUserEmail = "dev@example.com"
	devPassword  = "password123"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if cfg.IsProduction() {
		log.Fatal("seed: refusing to run with APP_ENV=production")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := db.Open(ctx, cfg.DatabaseURL, cfg.DBMaxConns)
	if err != nil {
		log.Fatalf("seed: %v", err)
	}
	defer pool.Close()

	accounts := identityservice.NewAuthService(identityrepo.NewPostgresRepository(pool), security.NewHasher(cfg.BcryptCost))
	id, err := accounts.Register(ctx, devUserName, devUserEmail, devPassword)
	switch {
	case errors.Is(err, identityservice.ErrEmailAlreadyRegistered):
		log.Printf("seed: %s already exists, nothing to do", devUserEmail)
	case err != nil:
		log.Fatalf("seed: register %s: %v", devUserEmail, err)
	default:
		log.Printf("seed: created %s (id %s, password %q)", devUserEmail, id, devPassword)
	}
}
