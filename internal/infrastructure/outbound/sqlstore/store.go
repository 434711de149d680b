// Package sqlstore persists platform overlay state in SQLite.
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	sq "github.com/Masterminds/squirrel"
	_ "modernc.org/sqlite"

	"github.com/sophialabs/plugmock/internal/domain/platform"
)

const table = "plugmock_state"

const (
	kindFlag             = "flag"
	kindStatus           = "status"
	kindActiveScenario   = "active_scenario"
	kindEndpointScenario = "endpoint_scenario"
)

// DefaultTimeout bounds each provider query.
const DefaultTimeout = 5 * time.Second

// Store is a SQLite database holding the state of any number of platforms,
// one namespace per platform name.
type Store struct {
	db      *sql.DB
	sb      sq.StatementBuilderType
	timeout time.Duration
}

// Open opens or creates the database at path and ensures the schema exists.
func Open(ctx context.Context, path string) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("sqlite path not configured")
	}

	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("ensure sqlite directory %q: %w", dir, err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// SQLite allows a single writer.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}

	s := &Store{
		db:      db,
		sb:      sq.StatementBuilder.PlaceholderFormat(sq.Question),
		timeout: DefaultTimeout,
	}
	if err := s.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) migrate(ctx context.Context) error {
	const ddl = `CREATE TABLE IF NOT EXISTS ` + table + ` (
	namespace TEXT NOT NULL,
	kind      TEXT NOT NULL,
	key       TEXT NOT NULL,
	value     TEXT NOT NULL,
	PRIMARY KEY (namespace, kind, key)
)`
	if _, err := s.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("creating state table: %w", err)
	}
	return nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping verifies that the database connection is alive. It backs the state
// health check.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Provider returns the platform provider for namespace.
func (s *Store) Provider(namespace string) (*Provider, error) {
	if namespace == "" {
		return nil, platform.ErrMissingName
	}
	return &Provider{store: s, namespace: namespace}, nil
}

// keys lists the keys stored under namespace for kind, sorted.
func (s *Store) keys(namespace, kind string) ([]string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	query, args, err := s.sb.
		Select("key").
		From(table).
		Where(sq.Eq{"namespace": namespace, "kind": kind}).
		OrderBy("key").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("building keys query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("executing keys query: %w", err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, fmt.Errorf("scanning row: %w", err)
		}
		keys = append(keys, key)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating rows: %w", err)
	}
	return keys, nil
}

// clearNamespace deletes every value stored under namespace.
func (s *Store) clearNamespace(namespace string) error {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	query, args, err := s.sb.
		Delete(table).
		Where(sq.Eq{"namespace": namespace}).
		ToSql()
	if err != nil {
		return fmt.Errorf("building delete query: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("executing delete query: %w", err)
	}
	return nil
}

func (s *Store) get(namespace, kind, key string) (string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	query, args, err := s.sb.
		Select("value").
		From(table).
		Where(sq.Eq{"namespace": namespace, "kind": kind, "key": key}).
		ToSql()
	if err != nil {
		return "", fmt.Errorf("building get query: %w", err)
	}

	var value string
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&value); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", platform.ErrNotFound
		}
		return "", fmt.Errorf("executing get query: %w", err)
	}
	return value, nil
}

func (s *Store) put(namespace, kind, key, value string) error {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	query, args, err := s.sb.
		Insert(table).
		Columns("namespace", "kind", "key", "value").
		Values(namespace, kind, key, value).
		Suffix("ON CONFLICT (namespace, kind, key) DO UPDATE SET value = excluded.value").
		ToSql()
	if err != nil {
		return fmt.Errorf("building upsert query: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("executing upsert query: %w", err)
	}
	return nil
}

var (
	_ platform.Provider   = (*Provider)(nil)
	_ platform.FlagLister = (*Provider)(nil)
	_ platform.Resetter   = (*Provider)(nil)
)

// Provider is the platform.Provider view of one namespace.
type Provider struct {
	store     *Store
	namespace string
}

// FlagNames returns the names of the stored flags, sorted.
func (p *Provider) FlagNames() ([]string, error) {
	return p.store.keys(p.namespace, kindFlag)
}

// Reset deletes everything stored for the namespace. Other namespaces in the
// same database are untouched.
func (p *Provider) Reset() error {
	return p.store.clearNamespace(p.namespace)
}

func (p *Provider) Flag(name string) (bool, error) {
	v, err := p.store.get(p.namespace, kindFlag, name)
	if err != nil {
		return false, err
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("decoding flag %q: %w", name, err)
	}
	return b, nil
}

func (p *Provider) SetFlag(name string, value bool) error {
	return p.store.put(p.namespace, kindFlag, name, strconv.FormatBool(value))
}

func (p *Provider) Status(endpointID string) (int, error) {
	v, err := p.store.get(p.namespace, kindStatus, endpointID)
	if err != nil {
		return 0, err
	}
	status, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("decoding status for %q: %w", endpointID, err)
	}
	return status, nil
}

func (p *Provider) SetStatus(endpointID string, status int) error {
	return p.store.put(p.namespace, kindStatus, endpointID, strconv.Itoa(status))
}

func (p *Provider) ActiveScenario() (string, error) {
	return p.store.get(p.namespace, kindActiveScenario, "")
}

func (p *Provider) SetActiveScenario(id string) error {
	return p.store.put(p.namespace, kindActiveScenario, "", id)
}

func (p *Provider) EndpointScenario(endpointID string) (string, error) {
	return p.store.get(p.namespace, kindEndpointScenario, endpointID)
}

func (p *Provider) SetEndpointScenario(endpointID, scenarioID string) error {
	return p.store.put(p.namespace, kindEndpointScenario, endpointID, scenarioID)
}
