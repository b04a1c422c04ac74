// Package backend is the call boundary to the pgstac catalog functions.
package backend

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver

	"github.com/mohammed-shakir/pgstac-api/internal/core/observability"
	"github.com/mohammed-shakir/pgstac-api/internal/stacerr"
)

type Mode int

const (
	Read Mode = iota
	Write
)

func (m Mode) String() string {
	if m == Write {
		return "w"
	}
	return "r"
}

type PoolConfig struct {
	ReadDSN  string
	WriteDSN string // empty disables writes
	MaxConns int
	MinConns int

	MaxLifetime time.Duration
	MaxIdleTime time.Duration
	PingTimeout time.Duration
}

// Pool owns the read and write connection pools for the process lifetime.
type Pool struct {
	read  *sql.DB
	write *sql.DB
}

func Open(ctx context.Context, cfg PoolConfig) (*Pool, error) {
	read, err := openDB(ctx, cfg.ReadDSN, cfg)
	if err != nil {
		return nil, fmt.Errorf("read pool: %w", err)
	}
	p := &Pool{read: read}

	if cfg.WriteDSN != "" {
		write, err := openDB(ctx, cfg.WriteDSN, cfg)
		if err != nil {
			_ = read.Close()
			return nil, fmt.Errorf("write pool: %w", err)
		}
		p.write = write
	}
	return p, nil
}

func openDB(ctx context.Context, dsn string, cfg PoolConfig) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxConns)
	db.SetMaxIdleConns(cfg.MinConns)
	db.SetConnMaxLifetime(cfg.MaxLifetime)
	db.SetConnMaxIdleTime(cfg.MaxIdleTime)

	timeout := cfg.PingTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	pctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := db.PingContext(pctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}
	return db, nil
}

// NewPool wraps already opened handles. write may be nil.
func NewPool(read, write *sql.DB) *Pool {
	return &Pool{read: read, write: write}
}

func (p *Pool) Close() error {
	var errs []error
	if p.write != nil {
		errs = append(errs, p.write.Close())
	}
	if p.read != nil {
		errs = append(errs, p.read.Close())
	}
	return errors.Join(errs...)
}

func (p *Pool) db(mode Mode) (*sql.DB, error) {
	if p == nil || p.read == nil {
		return nil, stacerr.New(stacerr.Unavailable, "connection pool not available")
	}
	if mode == Write {
		if p.write == nil {
			return nil, stacerr.New(stacerr.Configuration, "Could not find connection pool for write operations")
		}
		return p.write, nil
	}
	return p.read, nil
}

// Call runs `SELECT * FROM fn(args...)` on a scoped connection and returns the
// decoded JSON of the first column. String and nil args are bound as text,
// everything else is JSON encoded and bound as jsonb.
func (p *Pool) Call(ctx context.Context, mode Mode, fn string, args ...any) (any, error) {
	q, params, err := buildCall(fn, args)
	if err != nil {
		return nil, err
	}
	var out jsonValue
	if err := p.queryRow(ctx, mode, fn, q, params, &out); err != nil {
		return nil, err
	}
	return out.v, nil
}

// Version reports the installed pgstac version.
func (p *Pool) Version(ctx context.Context) (string, error) {
	var v sql.NullString
	if err := p.queryRow(ctx, Read, "get_version", "SELECT pgstac.get_version()", nil, &v); err != nil {
		return "", err
	}
	return v.String, nil
}

func (p *Pool) Ping(ctx context.Context) error {
	db, err := p.db(Read)
	if err != nil {
		return err
	}
	if err := db.PingContext(ctx); err != nil {
		return translate(err)
	}
	return nil
}

func (p *Pool) queryRow(ctx context.Context, mode Mode, fn, q string, params []any, dest any) (err error) {
	start := time.Now()
	defer func() {
		observability.ObserveBackendCall(fn, mode.String(), outcome(err), time.Since(start).Seconds())
	}()

	db, err := p.db(mode)
	if err != nil {
		return err
	}
	conn, err := db.Conn(ctx)
	if err != nil {
		return translate(err)
	}
	defer func() { _ = conn.Close() }()

	if err := conn.QueryRowContext(ctx, q, params...).Scan(dest); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		return translate(err)
	}
	return nil
}

func buildCall(fn string, args []any) (string, []any, error) {
	if !allowed[fn] {
		return "", nil, stacerr.New(stacerr.Internal, fmt.Sprintf("unknown catalog function %q", fn))
	}
	ph := make([]string, len(args))
	params := make([]any, len(args))
	for i, a := range args {
		switch v := a.(type) {
		case nil:
			ph[i] = fmt.Sprintf("$%d::text", i+1)
			params[i] = nil
		case string:
			ph[i] = fmt.Sprintf("$%d::text", i+1)
			params[i] = v
		default:
			ph[i] = fmt.Sprintf("$%d::text::jsonb", i+1)
			params[i] = jsonArg{v: v}
		}
	}
	return fmt.Sprintf("SELECT * FROM %s(%s)", fn, strings.Join(ph, ", ")), params, nil
}

var allowed = map[string]bool{
	"search":               true,
	"get_collection":       true,
	"all_collections":      true,
	"collection_search":    true,
	"collection_base_item": true,
	"get_item":             true,
	"create_item":          true,
	"create_items":         true,
	"update_item":          true,
	"upsert_item":          true,
	"upsert_items":         true,
	"delete_item":          true,
	"create_collection":    true,
	"update_collection":    true,
	"delete_collection":    true,
	"get_queryables":       true,
}
