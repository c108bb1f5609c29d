package postgres

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/Zhima-Mochi/foodcart/internal/infrastructure/cartstore"

	"github.com/golang-migrate/migrate/v4"
	migratepg "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/lib/pq"
)

//go:embed migrations/*.sql
var migrations embed.FS

const migrationsTable = "foodcart_schema_migrations"

// Open connects to dsn and verifies the connection.
func Open(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(5)
	return db, nil
}

// Migrate applies the embedded schema migrations.
func Migrate(db *sql.DB) error {
	driver, err := migratepg.WithInstance(db, &migratepg.Config{MigrationsTable: migrationsTable})
	if err != nil {
		return fmt.Errorf("could not create migration driver: %w", err)
	}
	src, err := iofs.New(migrations, "migrations")
	if err != nil {
		return fmt.Errorf("could not open migrations: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "postgres", driver)
	if err != nil {
		return fmt.Errorf("could not create migrate instance: %w", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("could not run migrations: %w", err)
	}
	return nil
}

// Blobs keeps snapshot blobs in the cart_snapshots table. Update locks the
// row with SELECT ... FOR UPDATE for the whole read-merge-write.
type Blobs struct {
	db *sql.DB
}

func New(db *sql.DB) *Blobs {
	return &Blobs{db: db}
}

func (b *Blobs) Get(ctx context.Context, key string) ([]byte, error) {
	var payload string
	err := b.db.QueryRowContext(ctx,
		`SELECT payload FROM cart_snapshots WHERE storage_key = $1`, key).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("select snapshot: %w", err)
	}
	return []byte(payload), nil
}

func (b *Blobs) Update(ctx context.Context, key string, fn func([]byte) ([]byte, error)) (err error) {
	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx,
		`INSERT INTO cart_snapshots (storage_key) VALUES ($1) ON CONFLICT (storage_key) DO NOTHING`, key); err != nil {
		return fmt.Errorf("ensure snapshot row: %w", err)
	}

	var payload string
	if err = tx.QueryRowContext(ctx,
		`SELECT payload FROM cart_snapshots WHERE storage_key = $1 FOR UPDATE`, key).Scan(&payload); err != nil {
		return fmt.Errorf("lock snapshot: %w", err)
	}

	var current []byte
	if payload != "" {
		current = []byte(payload)
	}
	next, err := fn(current)
	if errors.Is(err, cartstore.ErrSkipWrite) {
		err = nil
		return tx.Commit()
	}
	if err != nil {
		return err
	}

	if _, err = tx.ExecContext(ctx,
		`UPDATE cart_snapshots SET payload = $2, updated_at = now() WHERE storage_key = $1`, key, string(next)); err != nil {
		return fmt.Errorf("update snapshot: %w", err)
	}
	return tx.Commit()
}
