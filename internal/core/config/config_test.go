package config

import (
	"net/url"
	"strings"
	"testing"
	"time"
)

func TestFromEnv_Defaults(t *testing.T) {
	cfg := FromEnv()
	if cfg.Addr != ":8080" {
		t.Fatalf("addr=%q", cfg.Addr)
	}
	if cfg.UseAPIHydrate {
		t.Fatalf("api hydration must default off")
	}
	if !cfg.ExcludeHydrateMarkers {
		t.Fatalf("marker exclusion must default on")
	}
	if cfg.InvalidIDChars != DefaultInvalidIDChars {
		t.Fatalf("id chars=%q", cfg.InvalidIDChars)
	}
	if cfg.Extensions != AllExtensions() {
		t.Fatalf("extensions=%+v", cfg.Extensions)
	}
	if cfg.Postgres.MaxIdleTime != 300*time.Second {
		t.Fatalf("idle=%v", cfg.Postgres.MaxIdleTime)
	}
}

func TestFromEnv_Overrides(t *testing.T) {
	t.Setenv("PGHOST", "reader.db")
	t.Setenv("PGHOST_WRITER", "writer.db")
	t.Setenv("PGPASSWORD", "p@ss/word")
	t.Setenv("USE_API_HYDRATE", "yes")
	t.Setenv("DB_MAX_INACTIVE_CONN_LIFETIME", "60")
	t.Setenv("ENABLED_EXTENSIONS", "query, sort,pagination")
	t.Setenv("ROOT_PATH", "/stac")

	cfg := FromEnv()
	if !cfg.UseAPIHydrate {
		t.Fatalf("USE_API_HYDRATE not honoured")
	}
	if cfg.Postgres.MaxIdleTime != time.Minute {
		t.Fatalf("bare seconds not parsed: %v", cfg.Postgres.MaxIdleTime)
	}
	if cfg.RootPath != "/stac" {
		t.Fatalf("root=%q", cfg.RootPath)
	}

	ext := cfg.Extensions
	if !ext.Query || !ext.Sort || ext.Filter || ext.Transactions || ext.Pagination != PaginationCursor {
		t.Fatalf("extensions=%+v", ext)
	}

	r, err := url.Parse(cfg.Postgres.ReaderDSN())
	if err != nil {
		t.Fatalf("reader dsn: %v", err)
	}
	if r.Host != "reader.db:5432" {
		t.Fatalf("reader host=%q", r.Host)
	}
	if pw, _ := r.User.Password(); pw != "p@ss/word" {
		t.Fatalf("password not escaped round trip: %q", pw)
	}
	if r.Query().Get("search_path") != "pgstac,public" {
		t.Fatalf("search_path=%q", r.Query().Get("search_path"))
	}
	if !strings.Contains(cfg.Postgres.WriterDSN(), "writer.db:5432") {
		t.Fatalf("writer dsn host missing")
	}
}

func TestExtensions_Names(t *testing.T) {
	got := strings.Join(ParseExtensions("filter,transaction").Names(), ",")
	if got != "filter,transaction" {
		t.Fatalf("names=%q", got)
	}
}

func TestFromEnv_TransactionsOverride(t *testing.T) {
	t.Setenv("ENABLED_EXTENSIONS", "query,transaction")
	t.Setenv("ENABLE_TRANSACTIONS_EXTENSIONS", "false")
	if cfg := FromEnv(); cfg.Extensions.Transactions || !cfg.Extensions.Query {
		t.Fatalf("override not applied: %+v", cfg.Extensions)
	}

	t.Setenv("ENABLED_EXTENSIONS", "query")
	t.Setenv("ENABLE_TRANSACTIONS_EXTENSIONS", "TRUE")
	if cfg := FromEnv(); !cfg.Extensions.Transactions || !cfg.Extensions.BulkTransactions {
		t.Fatalf("override should enable writes: %+v", cfg.Extensions)
	}
}

func TestPostgresCfg_IPv6Host(t *testing.T) {
	p := PostgresCfg{User: "u", Password: "p", HostReader: "::1", Port: 5433, DBName: "postgis"}
	r, err := url.Parse(p.ReaderDSN())
	if err != nil {
		t.Fatalf("reader dsn: %v", err)
	}
	if r.Host != "[::1]:5433" {
		t.Fatalf("host=%q", r.Host)
	}
	if r.Hostname() != "::1" || r.Port() != "5433" {
		t.Fatalf("hostname=%q port=%q", r.Hostname(), r.Port())
	}
}
