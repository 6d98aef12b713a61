package store

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
)

type Dialect string

const (
	DialectPostgres Dialect = "postgres"
	DialectSQLite   Dialect = "sqlite"
)

const (
	driverPostgres = "pgx"
	driverSQLite   = "sqlite3"
)

// Open connects to Postgres for postgres:// URLs and to SQLite for
// sqlite:// or file: URLs.
func Open(ctx context.Context, databaseURL string) (*sqlx.DB, error) {
	driver, dsn, err := resolveDSN(databaseURL)
	if err != nil {
		return nil, err
	}
	db, err := sqlx.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	if driver == driverSQLite {
		// One writer at a time; BEGIN IMMEDIATE on the single connection
		// serializes aggregate writes.
		db.SetMaxOpenConns(1)
	} else {
		db.SetConnMaxIdleTime(5 * time.Minute)
		db.SetConnMaxLifetime(30 * time.Minute)
		db.SetMaxIdleConns(10)
		db.SetMaxOpenConns(20)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}
	return db, nil
}

func DialectOf(db *sqlx.DB) Dialect {
	if db.DriverName() == driverSQLite {
		return DialectSQLite
	}
	return DialectPostgres
}

func resolveDSN(databaseURL string) (driver, dsn string, err error) {
	databaseURL = strings.TrimSpace(databaseURL)
	switch {
	case strings.HasPrefix(databaseURL, "postgres://"), strings.HasPrefix(databaseURL, "postgresql://"):
		return driverPostgres, databaseURL, nil
	case strings.HasPrefix(databaseURL, "sqlite://"):
		return driverSQLite, sqliteDSN(strings.TrimPrefix(databaseURL, "sqlite://")), nil
	case strings.HasPrefix(databaseURL, "sqlite:"):
		return driverSQLite, sqliteDSN(strings.TrimPrefix(databaseURL, "sqlite:")), nil
	case strings.HasPrefix(databaseURL, "file:"):
		return driverSQLite, sqliteDSN(strings.TrimPrefix(databaseURL, "file:")), nil
	default:
		return "", "", fmt.Errorf("unsupported database url %q", databaseURL)
	}
}

func sqliteDSN(target string) string {
	path, rawQuery, _ := strings.Cut(target, "?")
	params, err := url.ParseQuery(rawQuery)
	if err != nil {
		params = url.Values{}
	}
	for key, value := range map[string]string{
		"_foreign_keys": "on",
		"_busy_timeout": "5000",
		"_txlock":       "immediate",
	} {
		if params.Get(key) == "" {
			params.Set(key, value)
		}
	}
	return "file:" + path + "?" + params.Encode()
}
