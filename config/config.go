package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Config holds every runtime parameter of the application.
type Config struct {
	DatabaseURL  string
	JWTSecretKey string
	ServerPort   int

	R2AccountID       string
	R2AccessKeyID     string
	R2SecretAccessKey string
	R2BucketName      string
	R2PublicBaseURL   string

	// MaxCompletionSeconds is the default per-round time limit for new
	// tournaments; organizers can override it per tournament.
	MaxCompletionSeconds int

	// Organizer credentials seeded at startup. Registration only hands out
	// the player role, so without these no account could create tournaments.
	// All three must be set together or left empty.
	OrganizerNickname string
	OrganizerEmail    string
	OrganizerPassword string
}

const defaultMaxCompletionSeconds = 1800

// Load reads configuration from environment variables. A .env file is
// loaded first if present, for local development.
func Load() (*Config, error) {
	_ = godotenv.Load()

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		return nil, fmt.Errorf("DATABASE_URL environment variable is not set")
	}

	jwtKey := os.Getenv("JWT_SECRET_KEY")
	if jwtKey == "" {
		return nil, fmt.Errorf("JWT_SECRET_KEY environment variable is not set")
	}

	port, err := intEnv("SERVER_PORT", 8080)
	if err != nil {
		return nil, err
	}
	if port <= 0 || port > 65535 {
		return nil, fmt.Errorf("SERVER_PORT must be between 1 and 65535, got %d", port)
	}

	maxCompletion, err := intEnv("MAX_COMPLETION_SECONDS", defaultMaxCompletionSeconds)
	if err != nil {
		return nil, err
	}
	if maxCompletion <= 0 {
		return nil, fmt.Errorf("MAX_COMPLETION_SECONDS must be positive, got %d", maxCompletion)
	}

	cfg := &Config{
		DatabaseURL:  dbURL,
		JWTSecretKey: jwtKey,
		ServerPort:   port,

		R2AccountID:       os.Getenv("R2_ACCOUNT_ID"),
		R2AccessKeyID:     os.Getenv("R2_ACCESS_KEY_ID"),
		R2SecretAccessKey: os.Getenv("R2_SECRET_ACCESS_KEY"),
		R2BucketName:      os.Getenv("R2_BUCKET_NAME"),
		R2PublicBaseURL:   os.Getenv("R2_PUBLIC_BASE_URL"),

		MaxCompletionSeconds: maxCompletion,

		OrganizerNickname: os.Getenv("ORGANIZER_NICKNAME"),
		OrganizerEmail:    os.Getenv("ORGANIZER_EMAIL"),
		OrganizerPassword: os.Getenv("ORGANIZER_PASSWORD"),
	}

	organizerSet := 0
	for _, v := range []string{cfg.OrganizerNickname, cfg.OrganizerEmail, cfg.OrganizerPassword} {
		if v != "" {
			organizerSet++
		}
	}
	if organizerSet != 0 && organizerSet != 3 {
		return nil, fmt.Errorf("ORGANIZER_NICKNAME, ORGANIZER_EMAIL and ORGANIZER_PASSWORD must be set together")
	}

	return cfg, nil
}

// SeedOrganizer reports whether organizer bootstrap credentials were provided.
func (c *Config) SeedOrganizer() bool {
	return c.OrganizerEmail != ""
}

func intEnv(name string, fallback int) (int, error) {
	raw := os.Getenv(name)
	if raw == "" {
		return fallback, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s environment variable: %w", name, err)
	}
	return value, nil
}
