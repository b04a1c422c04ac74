package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/mohammed-shakir/pgstac-api/internal/backend"
	"github.com/mohammed-shakir/pgstac-api/internal/cache/collections"
	"github.com/mohammed-shakir/pgstac-api/internal/cache/keys"
	"github.com/mohammed-shakir/pgstac-api/internal/cache/redisstore"
	"github.com/mohammed-shakir/pgstac-api/internal/changefeed"
	"github.com/mohammed-shakir/pgstac-api/internal/core/config"
	"github.com/mohammed-shakir/pgstac-api/internal/core/handlers"
	"github.com/mohammed-shakir/pgstac-api/internal/core/router"
	"github.com/mohammed-shakir/pgstac-api/internal/core/server"
	"github.com/mohammed-shakir/pgstac-api/internal/cql2"
	"github.com/mohammed-shakir/pgstac-api/internal/invalidation/kafkaconsumer"
	"github.com/mohammed-shakir/pgstac-api/internal/logger"
	"github.com/mohammed-shakir/pgstac-api/internal/metrics"
	"github.com/mohammed-shakir/pgstac-api/internal/search"
	"github.com/mohammed-shakir/pgstac-api/internal/transactions"
)

var Version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	addrFlag := flag.String("addr", "", "listen address (overrides ADDR)")
	flag.Parse()

	cfg := config.FromEnv()
	if *addrFlag != "" {
		cfg.Addr = strings.TrimSpace(*addrFlag)
	}

	zl := logger.Build(logger.Config{
		Level:     cfg.LogLevel,
		Console:   cfg.LogConsole,
		SampleN:   cfg.LogSampleN,
		Service:   "stac-server",
		Component: "api",
	}, os.Stdout)
	appLog := logger.NewSlog(&zl)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var prov *metrics.Provider
	if cfg.Metrics.Enabled {
		prov = metrics.New(metrics.Config{
			Path: cfg.Metrics.Path,
			Build: metrics.BuildInfo{
				Version:   Version,
				Revision:  os.Getenv("BUILD_REVISION"),
				Branch:    os.Getenv("BUILD_BRANCH"),
				BuildDate: os.Getenv("BUILD_DATE"),
			},
		})
	}

	ext := cfg.Extensions
	writes := ext.Transactions || ext.BulkTransactions
	pcfg := backend.PoolConfig{
		ReadDSN:     cfg.Postgres.ReaderDSN(),
		MaxConns:    cfg.Postgres.MaxConns,
		MinConns:    cfg.Postgres.MinConns,
		MaxLifetime: cfg.Postgres.MaxLifetime,
		MaxIdleTime: cfg.Postgres.MaxIdleTime,
		PingTimeout: 5 * time.Second,
	}
	if writes {
		pcfg.WriteDSN = cfg.Postgres.WriterDSN()
	}

	pool, err := backend.Open(ctx, pcfg)
	if err != nil {
		appLog.Error("failed to open catalog pools", "err", err)
		return 1
	}
	defer func() { _ = pool.Close() }()

	client := backend.NewClient(pool)
	appLog.Info("starting stac server",
		"addr", cfg.Addr,
		"version", Version,
		"root_path", cfg.RootPath,
		"extensions", ext.Names(),
		"api_hydrate", cfg.UseAPIHydrate)

	var (
		source    handlers.CollectionSource = client
		colCache  *collections.Cache
		notifiers []transactions.Notifier
	)
	if cfg.CollectionCache.Enabled {
		rc, err := redisstore.New(ctx, cfg.CollectionCache.RedisAddr)
		if err != nil {
			appLog.Error("failed to connect collection cache", "addr", cfg.CollectionCache.RedisAddr, "err", err)
			return 1
		}
		defer func() { _ = rc.Close() }()

		colCache = collections.New(client, rc, collections.Options{
			Namespace: keys.DefaultNamespace,
			TTL:       cfg.CollectionCache.TTL,
			OpTimeout: cfg.CollectionCache.OpTimeout,
		}, appLog)
		source = colCache
		notifiers = append(notifiers, colCache)
	}

	if writes && cfg.Invalidation.Publish {
		host, _ := os.Hostname()
		pub, err := changefeed.NewPublisher(
			kafkaconsumer.SplitCSV(cfg.Invalidation.Brokers),
			cfg.Invalidation.Topic,
			host+"-"+logger.NewID(),
			1024,
			appLog,
		)
		if err != nil {
			appLog.Error("failed to start change publisher", "err", err)
			return 1
		}
		defer func() { _ = pub.Close() }()
		notifiers = append(notifiers, pub)
	}

	api := handlers.New(client, source,
		search.New(ext, cql2.NewTranslator(1024), cfg.UseAPIHydrate),
		handlers.Options{
			Extensions:   ext,
			APIHydrate:   cfg.UseAPIHydrate,
			StripMarkers: cfg.ExcludeHydrateMarkers,
			Workers:      cfg.HydrateWorkers,
			CatalogID:    cfg.CatalogID,
			Title:        cfg.Title,
			Description:  cfg.Description,
		}, appLog)

	var tx *transactions.Service
	if writes {
		tx = transactions.New(client, cfg.InvalidIDChars, appLog, notifiers...)
	}

	deps := router.Deps{
		API:      api,
		Tx:       tx,
		Ready:    pool,
		RootPath: cfg.RootPath,
		Logger:   appLog,
	}
	if prov != nil && cfg.Metrics.Addr == "" {
		deps.Metrics, deps.MetricsPath = prov.Handler(), prov.Path()
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return server.Run(gctx, cfg.Addr, router.New(deps), appLog, server.Options{})
	})

	if prov != nil && cfg.Metrics.Addr != "" {
		mlog := appLog.With(slog.String("listener", "metrics"))
		g.Go(func() error {
			return server.Run(gctx, cfg.Metrics.Addr, prov.Mux(), mlog, server.Options{WriteTimeout: 30 * time.Second})
		})
	}

	if cfg.Invalidation.Enabled {
		if colCache == nil {
			appLog.Warn("invalidation consumer needs the collection cache; not starting")
		} else {
			czl := zl.With().Str("component", "kafkaconsumer").Logger()
			cons := kafkaconsumer.New(kafkaconsumer.FromConfig(cfg.Invalidation), appLog, &czl, colCache)
			g.Go(func() error { return cons.Start(gctx) })
		}
	}

	if err := g.Wait(); err != nil {
		appLog.Error("server exited with error", "err", err)
		return 1
	}
	appLog.Info("server stopped")
	return 0
}
