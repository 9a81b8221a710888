package database

import (
	"database/sql"
	"embed"
	"fmt"
	"net/url"
	"strings"

	"github.com/lib/pq"
	"github.com/pressly/goose/v3"
	"github.com/rs/zerolog/log"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

const migrationsDir = "migrations"

func ensureDatabase(databaseURL string) error {
	u, err := url.Parse(databaseURL)
	if err != nil {
		return fmt.Errorf("parse database url: %w", err)
	}
	dbName := strings.TrimPrefix(u.Path, "/")
	if dbName == "" {
		return fmt.Errorf("database name is empty in url")
	}
	u.Path = "/postgres"
	db, err := sql.Open("postgres", u.String())
	if err != nil {
		return fmt.Errorf("open admin connection: %w", err)
	}
	defer db.Close()
	if err := db.Ping(); err != nil {
		return fmt.Errorf("ping admin connection: %w", err)
	}
	var exists bool
	if err := db.QueryRow("SELECT true FROM pg_database WHERE datname = $1", dbName).Scan(&exists); err != nil && err != sql.ErrNoRows {
		return fmt.Errorf("check database existence: %w", err)
	}
	if exists {
		return nil
	}
	if _, err = db.Exec("CREATE DATABASE " + pq.QuoteIdentifier(dbName)); err != nil {
		return fmt.Errorf("create database %q: %w", dbName, err)
	}
	log.Info().Str("database", dbName).Msg("database: created")
	return nil
}

func openMigrator(databaseURL string) (*sql.DB, error) {
	goose.SetBaseFS(migrationsFS)
	if err := goose.SetDialect("postgres"); err != nil {
		return nil, fmt.Errorf("goose dialect: %w", err)
	}
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open: %w", err)
	}
	return db, nil
}

// MigrateUp creates the database if needed and applies all pending migrations.
func MigrateUp(databaseURL string) error {
	if err := ensureDatabase(databaseURL); err != nil {
		return fmt.Errorf("ensure database: %w", err)
	}
	db, err := openMigrator(databaseURL)
	if err != nil {
		return err
	}
	defer db.Close()
	before, _ := goose.GetDBVersion(db)
	if err := goose.Up(db, migrationsDir); err != nil {
		return err
	}
	after, _ := goose.GetDBVersion(db)
	if before == after {
		log.Info().Int64("version", after).Msg("migrate: no pending migrations")
	} else {
		log.Info().Int64("from", before).Int64("to", after).Msg("migrate: up ok")
	}
	return nil
}

// MigrateDown rolls back the most recent migration.
func MigrateDown(databaseURL string) error {
	db, err := openMigrator(databaseURL)
	if err != nil {
		return err
	}
	defer db.Close()
	return goose.Down(db, migrationsDir)
}

// MigrateStatus logs the applied state of every migration.
func MigrateStatus(databaseURL string) error {
	db, err := openMigrator(databaseURL)
	if err != nil {
		return err
	}
	defer db.Close()
	return goose.Status(db, migrationsDir)
}
