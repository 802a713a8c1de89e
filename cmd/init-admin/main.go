package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"strings"
	"time"

	"meter_gateway/internal/config"
	"meter_gateway/internal/models"
	"meter_gateway/internal/storage"
	"meter_gateway/internal/utils"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

func main() {
	fmt.Println("Metering Gateway - Bootstrap Admin Initialization")

	// Load configuration (primarily for database connection)
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Get bootstrap credentials from environment
	email := os.Getenv("ADMIN_BOOTSTRAP_EMAIL")
	password := os.Getenv("ADMIN_BOOTSTRAP_PASSWORD")

	if email == "" || password == "" {
		fmt.Fprintf(os.Stderr, "ERROR: ADMIN_BOOTSTRAP_EMAIL and ADMIN_BOOTSTRAP_PASSWORD must be set\n")
		os.Exit(1)
	}

	if !isValidEmail(email) {
		fmt.Fprintf(os.Stderr, "ERROR: Invalid email format: %s\n", email)
		os.Exit(1)
	}

	if len(password) < 8 {
		fmt.Fprintf(os.Stderr, "ERROR: Password must be at least 8 characters long\n")
		os.Exit(1)
	}

	// Connect to database
	fmt.Println("Connecting to database...")
	db, err := storage.NewDB(storage.DBConfig{
		URL:               cfg.Database.URL,
		MaxOpenConns:      cfg.Database.MaxOpenConns,
		MaxIdleConns:      cfg.Database.MaxIdleConns,
		ConnMaxLifetime:   cfg.Database.ConnMaxLifetime,
		ConnMaxIdleTime:   cfg.Database.ConnMaxIdleTime,
		CallerCacheSize:   10, // Minimal caches for init tool
		CallerCacheTTL:    5 * time.Minute,
		EndpointCacheSize: 10,
		EndpointCacheTTL:  5 * time.Minute,
		TierCacheSize:     10,
		TierCacheTTL:      5 * time.Minute,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: Failed to connect to database: %v\n", err)
		os.Exit(1)
	}
	defer db.Close()

	fmt.Println("Database connection established")

	repo := db.NewAdminUserRepository()
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// Check if any admin users already exist
	fmt.Println("Checking for existing admin users...")
	existingUsers, err := repo.List(ctx, false) // All users, not just enabled
	if err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: Failed to check existing users: %v\n", err)
		os.Exit(1)
	}

	if len(existingUsers) > 0 {
		fmt.Printf("INFO: Found %d existing admin user(s). Bootstrap not needed.\n", len(existingUsers))
		for _, user := range existingUsers {
			status := "enabled"
			if !user.Enabled {
				status = "disabled"
			}
			fmt.Printf("  - %s (%s) - Roles: %v\n", user.Email, status, user.Roles)
		}
		fmt.Println("\nExiting successfully (no action taken)")
		os.Exit(0)
	}

	// Hash password using Argon2id
	fmt.Println("Hashing password...")
	passwordHash, err := utils.HashPasswordArgon2(password)
	if err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: Failed to hash password: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Creating bootstrap admin user: %s\n", email)
	adminUser := &models.AdminUser{
		ID:           uuid.New(),
		Email:        email,
		PasswordHash: passwordHash,
		Roles:        pq.StringArray{"admin"},
		Enabled:      true,
	}

	if err := repo.Create(ctx, adminUser); err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: Failed to create admin user: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("\nSUCCESS: Bootstrap admin user created")
	fmt.Printf("Email: %s\n", adminUser.Email)
	fmt.Printf("ID: %s\n", adminUser.ID)
	fmt.Printf("Roles: %v\n", adminUser.Roles)

	// Optionally seed a service token for automation clients
	if serviceName := os.Getenv("ADMIN_BOOTSTRAP_SERVICE_NAME"); serviceName != "" {
		if err := createServiceToken(ctx, db, serviceName); err != nil {
			fmt.Fprintf(os.Stderr, "ERROR: Failed to create service token: %v\n", err)
			os.Exit(1)
		}
	}

	fmt.Println("\nYou can now log in with these credentials.")
	fmt.Println("Remove ADMIN_BOOTSTRAP_EMAIL and ADMIN_BOOTSTRAP_PASSWORD from your environment.")
}

// createServiceToken seeds an admin service token with viewer role. The
// plaintext token is printed once; only its hash is stored.
func createServiceToken(ctx context.Context, db *storage.DB, serviceName string) error {
	tokenBytes := make([]byte, 32)
	if _, err := rand.Read(tokenBytes); err != nil {
		return err
	}
	plaintext := "svc-" + hex.EncodeToString(tokenBytes)

	roles := pq.StringArray{"viewer"}
	if strings.EqualFold(os.Getenv("ADMIN_BOOTSTRAP_SERVICE_ROLE"), "admin") {
		roles = pq.StringArray{"admin"}
	}

	token := &models.AdminToken{
		ID:          uuid.New(),
		ServiceName: serviceName,
		TokenHash:   utils.HashString(plaintext),
		Roles:       roles,
		Enabled:     true,
	}

	repo := db.NewAdminTokenRepository()
	if err := repo.Create(ctx, token); err != nil {
		return err
	}

	fmt.Printf("\nService token created for %s (roles: %v)\n", serviceName, roles)
	fmt.Printf("Token (shown once): %s\n", plaintext)
	return nil
}

// isValidEmail performs a basic email validation
func isValidEmail(email string) bool {
	if len(email) < 3 {
		return false
	}

	atIndex := strings.Index(email, "@")
	if atIndex <= 0 || atIndex != strings.LastIndex(email, "@") || atIndex == len(email)-1 {
		return false
	}

	return true
}
