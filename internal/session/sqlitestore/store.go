// Package sqlitestore keeps the signed-in user in a local SQLite database.
package sqlitestore

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/abgdnv/storefront/internal/identity"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/mattn/go-sqlite3"
)

//go:embed migrations/*.sql
var migrations embed.FS

var _ identity.Store = (*Store)(nil)

// Store holds at most one user: the one signed in on this machine.
type Store struct {
	db *sql.DB
}

// Open creates or opens the database at path and migrates it to the latest schema.
func Open(ctx context.Context, path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// one writer, see SQLITE_BUSY
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := migrateUp(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

func migrateUp(db *sql.DB) error {
	src, err := iofs.New(migrations, "migrations")
	if err != nil {
		return fmt.Errorf("failed to read migrations: %w", err)
	}
	driver, err := sqlite3.WithInstance(db, &sqlite3.Config{})
	if err != nil {
		return fmt.Errorf("failed to create migration driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite3", driver)
	if err != nil {
		return fmt.Errorf("failed to create migrator: %w", err)
	}
	// m.Close would close db as well
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}
	return nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Load returns the stored user, nil when nobody is signed in.
func (s *Store) Load(ctx context.Context) (*identity.User, error) {
	var u identity.User
	err := s.db.QueryRowContext(ctx, `SELECT user_id, user_name, email FROM identity WHERE slot = 1`).
		Scan(&u.ID, &u.Name, &u.Email)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load identity: %w", err)
	}
	return &u, nil
}

// Save replaces the stored user.
func (s *Store) Save(ctx context.Context, u identity.User) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO identity (slot, user_id, user_name, email, updated_at)
		VALUES (1, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT (slot) DO UPDATE SET
			user_id = excluded.user_id,
			user_name = excluded.user_name,
			email = excluded.email,
			updated_at = excluded.updated_at`,
		u.ID, u.Name, u.Email)
	if err != nil {
		return fmt.Errorf("failed to save identity: %w", err)
	}
	return nil
}

// Delete forgets the stored user. Deleting when nobody is stored is not an error.
func (s *Store) Delete(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM identity WHERE slot = 1`); err != nil {
		return fmt.Errorf("failed to delete identity: %w", err)
	}
	return nil
}
