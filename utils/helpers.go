package utils

import (
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
)

// GetEnv returns the value of an environment variable or a fallback.
func GetEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		return value
	}
	return fallback
}

// CreateFolder creates a directory (and parents) if it does not exist.
func CreateFolder(path string) error {
	if err := os.MkdirAll(path, 0755); err != nil {
		return fmt.Errorf("failed to create folder %q: %w", path, err)
	}
	return nil
}

// GenerateUniqueID returns a random unique identifier.
func GenerateUniqueID() string {
	return uuid.NewString()
}

// GenerateVideoID returns a timestamped video/session identifier.
func GenerateVideoID() string {
	return fmt.Sprintf("video-%d", time.Now().UnixMilli())
}
