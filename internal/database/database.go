// Package database opens the run history database and applies migrations.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/tursodatabase/go-libsql"
	_ "modernc.org/sqlite"

	"github.com/jmylchreest/sitesift/internal/database/migrations"
)

// Options selects the database backend.
//
//   - Local file: URL "sitesift.db" or "file:sitesift.db" (pure-Go SQLite)
//   - Remote libsql server: URL "libsql://db.turso.io" or "http://127.0.0.1:8080"
//   - Embedded replica: a local file URL plus TursoURL and TursoAuthToken
type Options struct {
	URL            string
	TursoURL       string
	TursoAuthToken string
}

// Driver names the database/sql driver Open will use for opts.
func (o Options) Driver() string {
	if o.isRemote() || o.isReplica() {
		return "libsql"
	}
	return "sqlite"
}

func (o Options) isRemote() bool {
	for _, prefix := range []string{"libsql://", "http://", "https://", "wss://", "ws://"} {
		if strings.HasPrefix(o.URL, prefix) {
			return true
		}
	}
	return false
}

func (o Options) isReplica() bool {
	return !o.isRemote() && o.TursoURL != "" && o.TursoAuthToken != ""
}

// localPath strips the file: prefix and any query string.
func localPath(dsn string) string {
	p := strings.TrimPrefix(dsn, "file:")
	return strings.Split(p, "?")[0]
}

// Open connects to the database described by opts and runs migrations.
func Open(ctx context.Context, opts Options, logger *slog.Logger) (*sql.DB, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.URL == "" {
		return nil, fmt.Errorf("database url is required")
	}

	var db *sql.DB
	switch {
	case opts.isReplica():
		connector, err := libsql.NewEmbeddedReplicaConnector(localPath(opts.URL), opts.TursoURL,
			libsql.WithAuthToken(opts.TursoAuthToken),
			libsql.WithReadYourWrites(true),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to create Turso connector: %w", err)
		}
		db = sql.OpenDB(connector)
		logger.Info("opened embedded replica", "path", localPath(opts.URL), "primary", opts.TursoURL)

	case opts.isRemote():
		dsn := opts.URL
		if opts.TursoAuthToken != "" {
			sep := "?"
			if strings.Contains(dsn, "?") {
				sep = "&"
			}
			dsn += sep + "authToken=" + url.QueryEscape(opts.TursoAuthToken)
		}
		var err error
		db, err = sql.Open("libsql", dsn)
		if err != nil {
			return nil, fmt.Errorf("failed to open database: %w", err)
		}
		logger.Info("opened remote database", "url", opts.URL)

	default:
		var err error
		db, err = openSQLite(opts.URL)
		if err != nil {
			return nil, err
		}
		logger.Debug("opened sqlite database", "path", localPath(opts.URL))
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	if err := migrations.Run(ctx, db, logger); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// openSQLite opens a local database with the pure-Go driver. A single
// connection serializes writers and keeps ":memory:" databases coherent.
func openSQLite(dsn string) (*sql.DB, error) {
	path := localPath(dsn)
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	if path != ":memory:" {
		pragmas = append(pragmas, "PRAGMA journal_mode = WAL")
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", p, err)
		}
	}
	return db, nil
}
