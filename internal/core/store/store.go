package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/tursodatabase/go-libsql"

	"github.com/tripfx/tripfx/internal/config"
)

const driverLibsql = "libsql"

// localBusyTimeout is how long a local writer waits on a locked database, in ms.
const localBusyTimeout = 5000

// Store wraps the libsql connection that backs the persistent cache tier
// and provider quota state.
type Store struct {
	DB    *sql.DB
	Clock func() time.Time

	driver string
}

type targetMode int

const (
	targetMemory targetMode = iota
	targetLocal
	targetRemote
)

// target is a resolved libsql DSN plus where it lives.
type target struct {
	dsn  string
	mode targetMode
}

// Open connects to the configured store. Local files are switched to WAL
// with a single writer connection.
func Open(ctx context.Context, cfg config.StoreConfig) (*Store, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	driver := strings.TrimSpace(cfg.Driver)
	if driver == "" {
		driver = driverLibsql
	}
	if driver != driverLibsql {
		return nil, fmt.Errorf("unsupported store driver: %s", driver)
	}

	tgt, err := resolveTarget(cfg)
	if err != nil {
		return nil, err
	}
	db, err := sql.Open(driverLibsql, tgt.dsn)
	if err != nil {
		return nil, fmt.Errorf("open libsql store: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping libsql store: %w", err)
	}

	switch tgt.mode {
	case targetMemory:
		// Each pooled connection would otherwise see its own empty database.
		db.SetMaxOpenConns(1)
	case targetLocal:
		if err := configureLocal(ctx, db); err != nil {
			_ = db.Close()
			return nil, err
		}
	}
	return &Store{DB: db, driver: driver}, nil
}

// Close releases database resources.
func (s *Store) Close() error {
	if s == nil || s.DB == nil {
		return nil
	}
	return s.DB.Close()
}

// Driver names the SQL driver in use.
func (s *Store) Driver() string {
	if s == nil {
		return ""
	}
	return s.driver
}

func (s *Store) now() time.Time {
	if s != nil && s.Clock != nil {
		return s.Clock().UTC()
	}
	return time.Now().UTC()
}

// configureLocal serializes writers on an embedded database file; fare
// fan-out writes through concurrently.
func configureLocal(ctx context.Context, db *sql.DB) error {
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		fmt.Sprintf("PRAGMA busy_timeout=%d", localBusyTimeout),
	}
	for _, pragma := range pragmas {
		// Both pragmas answer with a row.
		var ignored any
		if err := db.QueryRowContext(ctx, pragma).Scan(&ignored); err != nil {
			return fmt.Errorf("%s: %w", strings.ToLower(pragma), err)
		}
	}
	return nil
}

// resolveTarget turns the store config into a DSN. A URL wins over a path;
// plain paths become file: DSNs with their directory created.
func resolveTarget(cfg config.StoreConfig) (target, error) {
	if raw := strings.TrimSpace(cfg.URL); raw != "" {
		dsn, err := withAuthToken(raw, cfg.AuthToken)
		return target{dsn: dsn, mode: targetRemote}, err
	}

	path := strings.TrimSpace(cfg.Path)
	switch {
	case path == "":
		return target{}, errors.New("store path or url is required")
	case path == ":memory:":
		return target{dsn: path, mode: targetMemory}, nil
	case strings.HasPrefix(path, "libsql:"):
		return target{dsn: path, mode: targetRemote}, nil
	case strings.HasPrefix(path, "file:"):
		parsed, err := url.Parse(path)
		if err != nil {
			return target{}, fmt.Errorf("invalid store path: %w", err)
		}
		local := parsed.Path
		if local == "" {
			local = parsed.Opaque
		}
		if err := makeParentDir(strings.TrimPrefix(local, "//")); err != nil {
			return target{}, err
		}
		return target{dsn: path, mode: targetLocal}, nil
	default:
		if err := makeParentDir(path); err != nil {
			return target{}, err
		}
		return target{dsn: "file:" + filepath.Clean(path), mode: targetLocal}, nil
	}
}

// withAuthToken adds authToken to a remote DSN unless it already carries one.
func withAuthToken(dsn, token string) (string, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return dsn, nil
	}
	parsed, err := url.Parse(dsn)
	if err != nil {
		return "", fmt.Errorf("invalid store url: %w", err)
	}
	query := parsed.Query()
	if query.Get("authToken") != "" {
		return dsn, nil
	}
	query.Set("authToken", token)
	parsed.RawQuery = query.Encode()
	return parsed.String(), nil
}

func makeParentDir(path string) error {
	dir := filepath.Dir(filepath.Clean(path))
	if path == "" || dir == "." || dir == string(filepath.Separator) {
		return nil
	}
	// #nosec G301 -- shared data directory
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create store directory: %w", err)
	}
	return nil
}
