package repository

import (
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"strings"
	"time"

	"github.com/RealZimboGuy/chainflow/internal/config"
	"github.com/RealZimboGuy/chainflow/internal/migrations"

	_ "github.com/go-sql-driver/mysql"
	migrate "github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/mysql"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

// Open connects to the database selected by CFLOW_DATABASE_TYPE and applies the embedded migrations.
func Open() (*sql.DB, error) {
	switch config.GetSystemSettingString(config.DATABASE_TYPE) {
	case config.DATABASE_TYPE_POSTGRES:
		return openPostgres()
	case config.DATABASE_TYPE_MYSQL:
		return openMysql()
	case config.DATABASE_TYPE_SQLLITE:
		return openSqlLite()
	}
	return nil, fmt.Errorf("%s must be set to one of the following values: POSTGRES, MYSQL, SQLLITE", config.DATABASE_TYPE)
}

// Migrate applies the embedded migrations without keeping a connection open.
func Migrate() error {
	db, err := Open()
	if err != nil {
		return err
	}
	return db.Close()
}

func openPostgres() (*sql.DB, error) {
	dbURL := config.GetSystemSettingString(config.DATABASE_URL)
	if dbURL == "" {
		return nil, fmt.Errorf("%s must be set when using the POSTGRES database type", config.DATABASE_URL)
	}
	slog.Info("Running migrations", "database", "postgres")
	if err := runMigrationsFromEmbed("postgres", dbURL); err != nil {
		return nil, fmt.Errorf("db migration failed: %w", err)
	}
	db, err := sql.Open("postgres", dbURL)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)
	return db, db.Ping()
}

func openSqlLite() (*sql.DB, error) {
	fileName := config.GetSystemSettingString(config.DATABASE_SQLLITE_FILE_NAME)
	if fileName == "" {
		return nil, fmt.Errorf("%s must be set", config.DATABASE_SQLLITE_FILE_NAME)
	}
	slog.Info("Running migrations", "database", "sqlite", "file", fileName)
	if err := runMigrationsFromEmbed("sqllite3", "sqlite3://"+fileName); err != nil {
		return nil, fmt.Errorf("db migration failed: %w", err)
	}
	db, err := sql.Open("sqlite3", fileName+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, err
	}
	// everything inside a transaction must go through the tx, the pool has one connection
	db.SetMaxOpenConns(1)
	return db, db.Ping()
}

func openMysql() (*sql.DB, error) {
	dbURL := config.GetSystemSettingString(config.DATABASE_URL)
	if dbURL == "" {
		return nil, fmt.Errorf("%s must be set when using the MYSQL database type", config.DATABASE_URL)
	}
	if !strings.Contains(dbURL, "parseTime=true") {
		return nil, fmt.Errorf("%s must contain 'parseTime=true' for MySQL", config.DATABASE_URL)
	}
	if !strings.HasPrefix(dbURL, "mysql://") {
		return nil, fmt.Errorf("%s must start with 'mysql://' for MySQL", config.DATABASE_URL)
	}
	slog.Info("Running migrations", "database", "mysql")
	if err := runMigrationsFromEmbed("mysql", withMultiStatements(dbURL)); err != nil {
		return nil, fmt.Errorf("db migration failed: %w", err)
	}
	//remove mysql:// prefix from url
	db, err := sql.Open("mysql", strings.Replace(dbURL, "mysql://", "", 1))
	if err != nil {
		return nil, err
	}
	return db, db.Ping()
}

// withMultiStatements lets the migrate mysql driver run a file with several statements.
func withMultiStatements(dbURL string) string {
	if strings.Contains(dbURL, "multiStatements=") {
		return dbURL
	}
	sep := "?"
	if strings.Contains(dbURL, "?") {
		sep = "&"
	}
	return dbURL + sep + "multiStatements=true"
}

func runMigrationsFromEmbed(migrationsPath string, dbURL string) error {
	sub, err := fs.Sub(migrations.FS, migrationsPath)
	if err != nil {
		return err
	}
	source, err := iofs.New(sub, ".")
	if err != nil {
		return err
	}
	m, err := migrate.NewWithSourceInstance("iofs", source, dbURL)
	if err != nil {
		return err
	}
	defer m.Close()
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return err
	}
	return nil
}
