// Package db provides the local durability layer: string-keyed blob
// stores backed by SQLite (default) or MongoDB, selected with DB_TYPE.
package db

import (
	"fmt"
	"path/filepath"

	"road-inspection/utils"
)

// BlobStore is a string-keyed blob store.
type BlobStore interface {
	Get(key string) ([]byte, bool, error)
	Put(key string, value []byte) error
	Delete(key string) error
	Close() error
}

// NewBlobStore builds the configured backend:
//
//	DB_TYPE=sqlite (default)  SQLITE_DB_PATH  (default db/inspection.db)
//	DB_TYPE=mongo             MONGO_URI, MONGO_DB (default road_inspection)
func NewBlobStore() (BlobStore, error) {
	dbType := utils.GetEnv("DB_TYPE", "sqlite")
	switch dbType {
	case "sqlite":
		path := utils.GetEnv("SQLITE_DB_PATH", filepath.Join("db", "inspection.db"))
		return NewSQLiteClient(path)
	case "mongo":
		uri := utils.GetEnv("MONGO_URI", "mongodb://localhost:27017")
		database := utils.GetEnv("MONGO_DB", "road_inspection")
		return NewMongoClient(uri, database)
	default:
		return nil, fmt.Errorf("unsupported DB_TYPE %q (expected sqlite or mongo)", dbType)
	}
}
