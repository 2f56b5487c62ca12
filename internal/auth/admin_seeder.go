package auth

import (
	"context"
	"fmt"

	"golang.org/x/crypto/bcrypt"

	"investment-backoffice/internal/database"
	"investment-backoffice/internal/logging"
)

// SeedAdminUser ensures an admin account exists. It runs once at
// startup, after migrations, and is idempotent: a missing admin is
// created, an existing one gets its password and role reconciled.
func SeedAdminUser(ctx context.Context, repo *database.Repository, adminEmail, adminPassword string) error {
	log := logging.WithComponent("auth")

	if adminEmail == "" || adminPassword == "" {
		return fmt.Errorf("admin email and password must be configured")
	}

	user, err := repo.GetUserByEmail(ctx, adminEmail)
	if err != nil {
		return fmt.Errorf("failed to check for admin user: %w", err)
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(adminPassword), BcryptCost)
	if err != nil {
		return fmt.Errorf("failed to hash admin password: %w", err)
	}

	if user == nil {
		log.Info("admin user not found, creating", "email", adminEmail)

		adminUser := &database.User{
			Email:        adminEmail,
			PasswordHash: string(hashedPassword),
			Name:         "Administrator",
			Role:         database.RoleAdmin,
		}

		if err := repo.CreateUser(ctx, adminUser); err != nil {
			return fmt.Errorf("failed to create admin user: %w", err)
		}

		log.Info("admin user created", "user_id", adminUser.ID)
		return nil
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(adminPassword)); err != nil {
		log.Info("updating admin password", "email", adminEmail)

		if err := repo.UpdateUserPassword(ctx, user.ID, string(hashedPassword)); err != nil {
			return fmt.Errorf("failed to update admin password: %w", err)
		}
	}

	return nil
}
