package config

import (
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// DefaultInvalidIDChars may not appear in item or collection ids.
const DefaultInvalidIDChars = ":/?#[]@!$&'()*+,;="

type PostgresCfg struct {
	User            string
	Password        string
	HostReader      string
	HostWriter      string
	Port            int
	DBName          string
	SSLMode         string
	SearchPath      string
	ApplicationName string
	MinConns        int
	MaxConns        int
	MaxIdleTime     time.Duration
	MaxLifetime     time.Duration
}

// ReaderDSN and WriterDSN never appear in logs.
func (p PostgresCfg) ReaderDSN() string { return p.dsn(p.HostReader) }

func (p PostgresCfg) WriterDSN() string {
	if p.HostWriter == "" {
		return ""
	}
	return p.dsn(p.HostWriter)
}

func (p PostgresCfg) dsn(host string) string {
	q := url.Values{}
	if p.SSLMode != "" {
		q.Set("sslmode", p.SSLMode)
	}
	if p.SearchPath != "" {
		q.Set("search_path", p.SearchPath)
	}
	if p.ApplicationName != "" {
		q.Set("application_name", p.ApplicationName)
	}
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(p.User, p.Password),
		Host:     net.JoinHostPort(host, strconv.Itoa(p.Port)),
		Path:     "/" + p.DBName,
		RawQuery: q.Encode(),
	}
	return u.String()
}

type CollectionCacheCfg struct {
	Enabled   bool
	RedisAddr string
	TTL       time.Duration
	OpTimeout time.Duration
}

type InvalidationCfg struct {
	Enabled bool
	Topic   string
	Brokers string
	GroupID string
	// Publish change events after successful transactions.
	Publish bool
}

type Config struct {
	Addr     string
	LogLevel string
	// LogConsole switches to human readable output.
	LogConsole bool
	LogSampleN int
	RootPath   string

	Title       string
	Description string
	CatalogID   string

	Postgres PostgresCfg

	UseAPIHydrate         bool
	ExcludeHydrateMarkers bool
	HydrateWorkers        int
	InvalidIDChars        string

	Extensions      Extensions
	CollectionCache CollectionCacheCfg
	Invalidation    InvalidationCfg
	Metrics         MetricsCfg
}

// MetricsCfg describes the optional dedicated metrics listener. When Addr is
// empty the endpoint is served on the API listener.
type MetricsCfg struct {
	Enabled bool
	Addr    string
	Path    string
}

func FromEnv() Config {
	host := getenv("PGHOST", "localhost")
	return Config{
		Addr:       getenv("ADDR", ":8080"),
		LogLevel:   getenv("LOG_LEVEL", "info"),
		LogConsole: getbool("LOG_CONSOLE", false),
		LogSampleN: getint("LOG_SAMPLE_N", 0),
		RootPath:   getenv("ROOT_PATH", ""),

		Title:       getenv("STAC_TITLE", "stac-fastapi"),
		Description: getenv("STAC_DESCRIPTION", "stac-fastapi"),
		CatalogID:   getenv("STAC_ID", "stac-fastapi"),

		Postgres: PostgresCfg{
			User:            getenv("PGUSER", "username"),
			Password:        getenv("PGPASSWORD", "password"),
			HostReader:      host,
			HostWriter:      getenv("PGHOST_WRITER", host),
			Port:            getint("PGPORT", 5432),
			DBName:          getenv("PGDATABASE", "postgis"),
			SSLMode:         getenv("PGSSLMODE", "disable"),
			SearchPath:      getenv("DB_SEARCH_PATH", "pgstac,public"),
			ApplicationName: getenv("DB_APPLICATION_NAME", "pgstac"),
			MinConns:        getint("DB_MIN_CONN_SIZE", 10),
			MaxConns:        getint("DB_MAX_CONN_SIZE", 10),
			MaxIdleTime:     getduration("DB_MAX_INACTIVE_CONN_LIFETIME", 300*time.Second),
			MaxLifetime:     getduration("DB_CONN_MAX_LIFETIME", time.Hour),
		},

		UseAPIHydrate:         getbool("USE_API_HYDRATE", false),
		ExcludeHydrateMarkers: getbool("EXCLUDE_HYDRATE_MARKERS", true),
		HydrateWorkers:        getint("HYDRATE_WORKERS", 4),
		InvalidIDChars:        getenv("INVALID_ID_CHARS", DefaultInvalidIDChars),

		Extensions: transactionsOverride(ParseExtensions(os.Getenv("ENABLED_EXTENSIONS"))),

		CollectionCache: CollectionCacheCfg{
			Enabled:   getbool("COLLECTION_CACHE_ENABLED", false),
			RedisAddr: getenv("REDIS_ADDR", "localhost:6379"),
			TTL:       getduration("COLLECTION_CACHE_TTL", 5*time.Minute),
			OpTimeout: getduration("CACHE_OP_TIMEOUT", 250*time.Millisecond),
		},
		Invalidation: InvalidationCfg{
			Enabled: getbool("INVALIDATION_ENABLED", false),
			Topic:   getenv("KAFKA_TOPIC", "stac-collection-changes"),
			Brokers: getenv("KAFKA_BROKERS", "localhost:9092"),
			GroupID: getenv("KAFKA_GROUP_ID", "stac-api"),
			Publish: getbool("CHANGE_EVENTS_ENABLED", false),
		},
		Metrics: MetricsCfg{
			Enabled: getbool("METRICS_ENABLED", true),
			Addr:    getenv("METRICS_ADDR", ""),
			Path:    getenv("METRICS_PATH", "/metrics"),
		},
	}
}

// ENABLE_TRANSACTIONS_EXTENSIONS, when set, switches both write
// capabilities regardless of ENABLED_EXTENSIONS.
func transactionsOverride(e Extensions) Extensions {
	if _, ok := os.LookupEnv("ENABLE_TRANSACTIONS_EXTENSIONS"); ok {
		on := getbool("ENABLE_TRANSACTIONS_EXTENSIONS", false)
		e.Transactions, e.BulkTransactions = on, on
	}
	return e
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func getint(k string, def int) int {
	if v := os.Getenv(k); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getbool(k string, def bool) bool {
	if v := os.Getenv(k); v != "" {
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "t", "true", "y", "yes":
			return true
		case "0", "f", "false", "n", "no":
			return false
		}
	}
	return def
}

func getduration(k string, def time.Duration) time.Duration {
	if v := os.Getenv(k); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
		// bare numbers are seconds
		if n, err := strconv.Atoi(v); err == nil {
			return time.Duration(n) * time.Second
		}
	}
	return def
}
