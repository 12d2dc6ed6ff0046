package db

import (
	"database/sql"
	"fmt"
	"path/filepath"
	"strings"

	"road-inspection/utils"

	_ "github.com/mattn/go-sqlite3" // SQLite driver registration
)

// SQLiteClient is the default local durability backend: a single
// key/value table holding serialized blobs.
type SQLiteClient struct {
	db *sql.DB
}

func NewSQLiteClient(dataSourceName string) (*SQLiteClient, error) {
	// Extract the file path before query parameters
	dbPath := dataSourceName
	if idx := strings.Index(dataSourceName, "?"); idx != -1 {
		dbPath = dataSourceName[:idx]
	}

	// Create the directory if it doesn't exist (cross-platform)
	dbDir := filepath.Dir(dbPath)
	if dbDir != "." && dbDir != "" {
		if err := utils.CreateFolder(dbDir); err != nil {
			return nil, fmt.Errorf("error creating database directory: %s", err)
		}
	}

	// Add busy timeout param to DSN (milliseconds)
	if !strings.Contains(dataSourceName, "_busy_timeout") {
		if strings.Contains(dataSourceName, "?") {
			dataSourceName += "&_busy_timeout=5000" // 5 seconds
		} else {
			dataSourceName += "?_busy_timeout=5000"
		}
	}

	db, err := sql.Open("sqlite3", dataSourceName)
	if err != nil {
		return nil, fmt.Errorf("error connecting to SQLite: %s", err)
	}

	if err := createTables(db); err != nil {
		return nil, fmt.Errorf("error creating tables: %s", err)
	}

	return &SQLiteClient{db: db}, nil
}

// createTables creates the required tables if they don't exist
func createTables(db *sql.DB) error {
	createBlobsTable := `
    CREATE TABLE IF NOT EXISTS blobs (
        key TEXT PRIMARY KEY,
        value TEXT NOT NULL
    );
    `

	_, err := db.Exec(createBlobsTable)
	if err != nil {
		return fmt.Errorf("error creating blobs table: %s", err)
	}

	return nil
}

// Get returns the blob stored under key; the second result reports
// whether the key exists.
func (c *SQLiteClient) Get(key string) ([]byte, bool, error) {
	var value string
	err := c.db.QueryRow("SELECT value FROM blobs WHERE key = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("error reading blob %q: %s", key, err)
	}
	return []byte(value), true, nil
}

// Put stores value under key, replacing any existing blob.
func (c *SQLiteClient) Put(key string, value []byte) error {
	_, err := c.db.Exec(
		"INSERT INTO blobs (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value",
		key, string(value),
	)
	if err != nil {
		return fmt.Errorf("error writing blob %q: %s", key, err)
	}
	return nil
}

// Delete removes the blob stored under key.
func (c *SQLiteClient) Delete(key string) error {
	_, err := c.db.Exec("DELETE FROM blobs WHERE key = ?", key)
	if err != nil {
		return fmt.Errorf("error deleting blob %q: %s", key, err)
	}
	return nil
}

func (c *SQLiteClient) Close() error {
	if c.db != nil {
		return c.db.Close()
	}
	return nil
}
