// seed inserts a development user for local testing.
// Idempotent: skips the insert if dev@example.com already exists.
package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"storyhub/backend/internal/config"
	"storyhub/backend/internal/db"
	"storyhub/backend/internal/security"
	userdomain "storyhub/backend/internal/user/domain"
	userrepo "storyhub/backend/internal/user/repository"
)

const (
	devUserEmail = "dev@example.com"
	devPassword  = "Dev-passw0rd-local!"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	sqlDB, err := db.Open(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("database: %v", err)
	}
	defer sqlDB.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	users := userrepo.NewPostgresRepository(sqlDB)
	existing, err := users.GetByEmail(ctx, devUserEmail)
	if err != nil {
		log.Fatalf("seed: lookup: %v", err)
	}
	if existing != nil {
		fmt.Printf("seed: %s already exists, nothing to do\n", devUserEmail)
		return
	}

	hashed, err := security.NewHasher(cfg.BcryptCost).Hash([]byte(devPassword))
	if err != nil {
		log.Fatalf("seed: hash: %v", err)
	}
	now := time.Now().UTC()
	user := &userdomain.User{
		ID:           uuid.New().String(),
		Email:        devUserEmail,
		Name:         "Dev User",
		PasswordHash: hashed,
		Status:       userdomain.UserStatusActive,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := users.Create(ctx, user); err != nil {
		log.Fatalf("seed: create: %v", err)
	}
	fmt.Printf("seed: created %s (password %s)\n", devUserEmail, devPassword)
}
