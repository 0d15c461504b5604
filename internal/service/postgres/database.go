package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"

	"github.com/golang-migrate/migrate/v4"
	migratepg "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5"
	_ "github.com/jackc/pgx/v5/stdlib" // database/sql driver used by migrations.

	"github.com/oshokin/pg-embed/internal/domain/pg"
	"github.com/oshokin/pg-embed/internal/logger"
)

// maintenanceDatabase is connected to for database management statements.
const maintenanceDatabase = "postgres"

// CreateDatabase creates database name.
func (s *Server) CreateDatabase(ctx context.Context, name string) error {
	return s.exec(ctx, "CREATE DATABASE "+pgx.Identifier{name}.Sanitize())
}

// DropDatabase drops database name if it exists.
func (s *Server) DropDatabase(ctx context.Context, name string) error {
	return s.exec(ctx, "DROP DATABASE IF EXISTS "+pgx.Identifier{name}.Sanitize())
}

// DatabaseExists reports whether database name exists.
func (s *Server) DatabaseExists(ctx context.Context, name string) (bool, error) {
	conn, err := s.connect(ctx)
	if err != nil {
		return false, err
	}

	defer func() {
		_ = conn.Close(ctx)
	}()

	var exists bool

	err = conn.QueryRow(ctx, "SELECT EXISTS(SELECT 1 FROM pg_database WHERE datname = $1)", name).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("%w: look up database %s: %w", pg.ErrSQLQuery, name, err)
	}

	return exists, nil
}

// Migrate applies the scripts of Settings.MigrationDir to database name.
// It does nothing when no migration directory is configured.
func (s *Server) Migrate(ctx context.Context, name string) error {
	if s.settings.MigrationDir == "" {
		return nil
	}

	if err := s.expect("migrate", pg.StatusStarted); err != nil {
		return err
	}

	ctx = logger.WithKV(ctx, "database", name, "migration_dir", s.settings.MigrationDir)

	db, err := sql.Open("pgx", s.DatabaseURI(name))
	if err != nil {
		return fmt.Errorf("%w: open %s: %w", pg.ErrSQLQuery, name, err)
	}

	defer func() {
		_ = db.Close()
	}()

	if err = db.PingContext(ctx); err != nil {
		return fmt.Errorf("%w: ping %s: %w", pg.ErrSQLQuery, name, err)
	}

	driver, err := migratepg.WithInstance(db, &migratepg.Config{DatabaseName: name})
	if err != nil {
		return fmt.Errorf("%w: create migration driver: %w", pg.ErrSQLQuery, err)
	}

	source, err := iofs.New(os.DirFS(s.settings.MigrationDir), ".")
	if err != nil {
		return fmt.Errorf("%w: read %s: %w", pg.ErrMigration, s.settings.MigrationDir, err)
	}

	m, err := migrate.NewWithInstance("iofs", source, "postgres", driver)
	if err != nil {
		return fmt.Errorf("%w: %w", pg.ErrMigration, err)
	}

	defer func() {
		_, _ = m.Close()
	}()

	err = m.Up()
	if errors.Is(err, migrate.ErrNoChange) {
		logger.InfoKV(ctx, "No migrations to apply")

		return nil
	}

	if err != nil {
		return fmt.Errorf("%w: %w", pg.ErrMigration, err)
	}

	logger.InfoKV(ctx, "Applied migrations")

	return nil
}

// InstallExtension copies the extension files in dir into the binary cache.
func (s *Server) InstallExtension(ctx context.Context, dir string) error {
	return s.paths.InstallExtension(ctx, dir)
}

func (s *Server) exec(ctx context.Context, statement string) error {
	conn, err := s.connect(ctx)
	if err != nil {
		return err
	}

	defer func() {
		_ = conn.Close(ctx)
	}()

	if _, err = conn.Exec(ctx, statement); err != nil {
		return fmt.Errorf("%w: %s: %w", pg.ErrSQLQuery, statement, err)
	}

	return nil
}

// connect opens a connection to the maintenance database of a started server.
func (s *Server) connect(ctx context.Context) (*pgx.Conn, error) {
	if err := s.expect("query", pg.StatusStarted); err != nil {
		return nil, err
	}

	conn, err := pgx.Connect(ctx, s.DatabaseURI(maintenanceDatabase))
	if err != nil {
		return nil, fmt.Errorf("%w: connect to port %d: %w", pg.ErrSQLQuery, s.settings.Port, err)
	}

	return conn, nil
}
