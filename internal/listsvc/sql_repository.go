package listsvc

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/JohanCodinha/blsync/internal/listsvc/migrations"
	"github.com/JohanCodinha/blsync/internal/logger"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"
)

// SQLRepository stores lists in sqlite or postgres.
type SQLRepository struct {
	db     *sql.DB
	driver string
}

// OpenSQL opens a database with driver ("sqlite" or "pgx") and applies
// pending migrations.
func OpenSQL(ctx context.Context, driver, dsn string) (*SQLRepository, error) {
	var dialect string
	switch driver {
	case "sqlite":
		dialect = "sqlite3"
	case "pgx":
		dialect = "pgx"
	default:
		return nil, fmt.Errorf("unsupported sql driver %q", driver)
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if driver == "sqlite" {
		db.SetMaxOpenConns(1)
	}

	if err := migrate(ctx, db, dialect); err != nil {
		db.Close()
		return nil, err
	}

	return &SQLRepository{db: db, driver: driver}, nil
}

func migrate(ctx context.Context, db *sql.DB, dialect string) error {
	goose.SetBaseFS(migrations.Migrations)
	goose.SetLogger(gooseLogger{})
	if err := goose.SetDialect(dialect); err != nil {
		return fmt.Errorf("failed to set migration dialect: %w", err)
	}
	if err := goose.UpContext(ctx, db, "."); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

// gooseLogger routes migration output through our logger.
type gooseLogger struct{}

func (gooseLogger) Printf(format string, v ...interface{}) {
	logger.Info("listsvc: migrate: "+strings.TrimRight(format, "\n"), v...)
}

func (gooseLogger) Fatalf(format string, v ...interface{}) {
	logger.Error("listsvc: migrate: "+strings.TrimRight(format, "\n"), v...)
	os.Exit(1)
}

// Close closes the database.
func (r *SQLRepository) Close() error {
	return r.db.Close()
}

// Create inserts rec, failing with ErrExists if the id is taken.
func (r *SQLRepository) Create(ctx context.Context, rec Record) error {
	res, err := r.db.ExecContext(ctx, r.rebind(
		`INSERT INTO lists (id, name, description, secret_hash, subjects, items, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (id) DO NOTHING`),
		rec.ID, rec.Name, rec.Description, rec.SecretHash, string(rec.Subjects), string(rec.Items), rec.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert list %s: %w", rec.ID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to insert list %s: %w", rec.ID, err)
	}
	if n == 0 {
		return ErrExists
	}
	return nil
}

// Get returns the list with id.
func (r *SQLRepository) Get(ctx context.Context, id string) (Record, error) {
	var rec Record
	var subjects, items string
	err := r.db.QueryRowContext(ctx, r.rebind(
		`SELECT id, name, description, secret_hash, subjects, items, updated_at
		 FROM lists WHERE id = ?`), id).
		Scan(&rec.ID, &rec.Name, &rec.Description, &rec.SecretHash, &subjects, &items, &rec.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, ErrNotFound
	}
	if err != nil {
		return Record{}, fmt.Errorf("failed to get list %s: %w", id, err)
	}
	rec.Subjects = []byte(subjects)
	rec.Items = []byte(items)
	return rec, nil
}

// Update overwrites everything but the secret hash of an existing list.
func (r *SQLRepository) Update(ctx context.Context, rec Record) error {
	res, err := r.db.ExecContext(ctx, r.rebind(
		`UPDATE lists SET name = ?, description = ?, subjects = ?, items = ?, updated_at = ?
		 WHERE id = ?`),
		rec.Name, rec.Description, string(rec.Subjects), string(rec.Items), rec.UpdatedAt, rec.ID)
	if err != nil {
		return fmt.Errorf("failed to update list %s: %w", rec.ID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update list %s: %w", rec.ID, err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// rebind rewrites ? placeholders to $n for postgres.
func (r *SQLRepository) rebind(query string) string {
	if r.driver != "pgx" {
		return query
	}
	return rebindDollar(query)
}

func rebindDollar(query string) string {
	var b strings.Builder
	n := 0
	for _, c := range query {
		if c == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(c)
	}
	return b.String()
}
