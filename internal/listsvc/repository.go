// Package listsvc implements the Remote List Service: a small HTTP API that
// stores shared blacklists behind per-list write secrets.
package listsvc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when a list does not exist.
	ErrNotFound = errors.New("list not found")
	// ErrForbidden is returned when a write secret does not match.
	ErrForbidden = errors.New("write secret rejected")
	// ErrExists is returned when creating a list whose id is taken.
	ErrExists = errors.New("list already exists")
	// ErrInvalid is returned for malformed list payloads.
	ErrInvalid = errors.New("invalid list payload")
)

// Record is a stored list. Subjects and Items are kept as the raw JSON
// arrays the client sent, so legacy bare-string entries round-trip untouched.
type Record struct {
	ID          string
	Name        string
	Description string
	SecretHash  string
	Subjects    json.RawMessage
	Items       json.RawMessage
	UpdatedAt   int64
}

// Repository persists list records.
type Repository interface {
	Create(ctx context.Context, rec Record) error
	Get(ctx context.Context, id string) (Record, error)
	Update(ctx context.Context, rec Record) error
	Close() error
}

// Storage selects and configures a Repository backend.
type Storage struct {
	Backend string // sqlite, postgres or s3
	DSN     string // sqlite path or postgres connection string
	S3      S3Options
}

// OpenRepository opens the backend selected by s.
func OpenRepository(ctx context.Context, s Storage) (Repository, error) {
	switch s.Backend {
	case "", "sqlite":
		return OpenSQL(ctx, "sqlite", s.DSN)
	case "postgres":
		return OpenSQL(ctx, "pgx", s.DSN)
	case "s3":
		if s.S3.Bucket == "" {
			return nil, fmt.Errorf("s3 storage requires a bucket")
		}
		client, err := NewS3Client(ctx, s.S3)
		if err != nil {
			return nil, err
		}
		return NewS3Repository(client, s.S3.Bucket, s.S3.Prefix), nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", s.Backend)
	}
}
