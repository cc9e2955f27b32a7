// Command materialscat runs the materials catalog service: it wires the
// storage adapters, the enrichment pipeline, the hybrid search engine, and
// the HTTP surface together from environment configuration, then serves
// until interrupted.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"materialscat/internal/analytics"
	"materialscat/internal/cache"
	"materialscat/internal/combinedembed"
	"materialscat/internal/config"
	"materialscat/internal/embedding"
	"materialscat/internal/enrichment"
	"materialscat/internal/envelope"
	"materialscat/internal/httpapi"
	"materialscat/internal/ingestion"
	"materialscat/internal/normalize"
	"materialscat/internal/observability"
	"materialscat/internal/parser"
	"materialscat/internal/pool"
	"materialscat/internal/pricelist"
	"materialscat/internal/ratelimit"
	"materialscat/internal/refdata"
	"materialscat/internal/repository"
	"materialscat/internal/search"
	"materialscat/internal/service"
	"materialscat/internal/skusearch"
	"materialscat/internal/sqlstore"
	"materialscat/internal/telemetry"
	"materialscat/internal/tunnel"
	"materialscat/internal/vectorstore"
)

func main() {
	if err := run(); err != nil {
		log.Fatal().Err(err).Msg("startup failed")
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	observability.InitLogger(cfg.LogPath, cfg.LogLevel)
	logger := log.Logger

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTelemetry, err := telemetry.Setup(ctx, telemetry.Config{
		Enabled:     cfg.OTelEnabled,
		Endpoint:    cfg.OTelEndpoint,
		Insecure:    true,
		ServiceName: cfg.OTelServiceName,
	})
	if err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTelemetry(sctx)
	}()

	// SQL backend, optionally through the SSH tunnel. A dead tunnel or an
	// unreachable Postgres disables the SQL side entirely when fallback is
	// allowed; the process then runs vector-only and health reports
	// sql_available=false.
	sqlEnabled := cfg.SQL.Enabled
	var tunnelSup *tunnel.Supervisor
	if sqlEnabled && cfg.Tunnel.Enable {
		tunnelSup = tunnel.New(cfg.Tunnel, logger)
		if err := tunnelSup.Start(ctx); err != nil {
			if !cfg.EnableFallbackDatabases {
				return fmt.Errorf("tunnel: %w", err)
			}
			logger.Warn().Err(err).Msg("tunnel unavailable, continuing without SQL backend")
			sqlEnabled = false
		} else {
			defer tunnelSup.Stop()
		}
	}

	var pgPool *pgxpool.Pool
	var sqlStore sqlstore.Store
	if sqlEnabled {
		dsn := cfg.SQL.DSN
		if dsn == "" {
			dsn = fmt.Sprintf("postgres://postgres@127.0.0.1:%d/materials?sslmode=disable", cfg.Tunnel.LocalPort)
		}
		pgPool, err = sqlstore.OpenPool(ctx, dsn)
		if err != nil {
			if !cfg.EnableFallbackDatabases {
				return fmt.Errorf("postgres: %w", err)
			}
			logger.Warn().Err(err).Msg("postgres unavailable, continuing without SQL backend")
			sqlEnabled = false
		} else {
			defer pgPool.Close()
			sqlStore = sqlstore.NewPostgres(pgPool)
		}
	}

	// Vector store is authoritative; there is no fallback for it.
	vectorStore, err := vectorstore.NewQdrant(cfg.Vector.DSN, cfg.Vector.Collection, cfg.Embedding.Dimension, cfg.Vector.Metric)
	if err != nil {
		return fmt.Errorf("vector store: %w", err)
	}
	if closer, ok := vectorStore.(vectorstore.Closer); ok {
		defer closer.Close()
	}
	vectorBudget := pool.NewSemaphorePool("vector", cfg.VectorPool.Max)
	vectorStore = vectorstore.NewLimited(vectorStore, vectorBudget)

	var redisClient *redis.Client
	var cacheBackend cache.Cache
	if cfg.Cache.Enabled {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Cache.Addr,
			Password: cfg.Cache.Password,
			DB:       cfg.Cache.DB,
			PoolSize: int(cfg.CachePool.Max),
		})
		defer redisClient.Close()
		cacheBackend = cache.NewRedis(redisClient)
	} else {
		cacheBackend = cache.NewMemory()
	}
	aside := cache.NewAside(cacheBackend)

	embedClient := embedding.New(cfg.Embedding, logger)

	// Reference collections are seeded before the server accepts traffic;
	// entries without embeddings get them computed here.
	units := refdata.New("units", embedClient)
	colors := refdata.New("colors", embedClient)
	if err := units.Seed(ctx, refdata.DefaultUnits()); err != nil {
		return fmt.Errorf("seed units: %w", err)
	}
	if err := colors.Seed(ctx, refdata.DefaultColors()); err != nil {
		return fmt.Errorf("seed colors: %w", err)
	}

	skuStore, err := vectorstore.NewQdrant(cfg.Vector.DSN, "reference_materials", cfg.Embedding.Dimension, cfg.Vector.Metric)
	if err != nil {
		return fmt.Errorf("sku catalog store: %w", err)
	}
	catalog := skusearch.NewCatalog(skuStore, skusearch.Config{
		RecallK:   cfg.Thresholds.SKURecallK,
		MinCosine: cfg.Thresholds.SKUMinCosine,
	})

	combined := combinedembed.New(embedClient, aside, cfg.CacheTTL.Combined)
	aiParser := parser.New(cfg.Embedding, logger)
	pipeline := enrichment.New(aiParser, embedClient, units, colors, combined, catalog, enrichment.Config{
		UnitThresholds:  normalize.Thresholds{Vector: cfg.Thresholds.UnitVector, Fuzzy: cfg.Thresholds.UnitFuzzy},
		ColorThresholds: normalize.Thresholds{Vector: cfg.Thresholds.ColorVector, Fuzzy: cfg.Thresholds.ColorFuzzy},
	})

	repo := repository.New(vectorStore, sqlStore, aside, embedClient,
		repository.NewLogReconcileSink(logger), logger,
		repository.TTL{Material: cfg.CacheTTL.Material, Search: cfg.CacheTTL.Search})

	var recorder *analytics.Recorder
	var usageStore analytics.Store
	if redisClient != nil {
		usageStore = analytics.NewRedisStore(redisClient)
		recorder = analytics.New(usageStore, 10_000, logger)
		defer recorder.Close()
	}

	cursors, err := search.NewCursorCoder()
	if err != nil {
		return fmt.Errorf("cursor coder: %w", err)
	}
	searchOpts := []search.Option{search.WithLogger(logger), search.WithCacheTTL(cfg.CacheTTL.Search)}
	if recorder != nil {
		searchOpts = append(searchOpts, search.WithAnalytics(recorder))
	}
	searchSvc := search.New(sqlStore, vectorStore, embedClient, aside, cursors,
		cfg.Thresholds.VectorSimilarity, cfg.Thresholds.FuzzySimilarity, searchOpts...)

	suggester := search.NewSuggester(
		popularQueriesSource(usageStore),
		distinctMetadataSource(sqlStore, "name"),
		distinctMetadataSource(sqlStore, "use_category"),
		aside, cfg.CacheTTL.Suggest)

	var jobStore ingestion.Store
	if sqlEnabled && pgPool != nil {
		jobStore = ingestion.NewPostgresStore(pgPool)
	} else {
		jobStore = ingestion.NewCacheStore(cacheBackend)
	}
	ingestSvc := ingestion.New(jobStore, pipeline, repo, ingestion.Config{
		MaxItemsPerRequest: cfg.Batch.MaxItemsPerRequest,
		WorkerPool:         cfg.Batch.WorkerPool,
		ChunkSize:          cfg.Batch.ChunkSize,
		ItemTimeout:        cfg.Batch.ItemTimeout,
	}, logger)

	prices := pricelist.NewRegistry(func(ctx context.Context, supplierID string) (pricelist.VectorStore, error) {
		return vectorstore.NewQdrant(cfg.Vector.DSN, "supplier_"+supplierID+"_prices", cfg.Embedding.Dimension, cfg.Vector.Metric)
	}, embedClient)

	svc := service.New(repo, searchSvc,
		service.WithIngestion(ingestSvc),
		service.WithPriceLists(prices),
		service.WithSuggester(suggester),
		service.WithAnalyticsStore(usageStore))

	// Pool supervision: SQL through pgxpool stats, vector through the
	// request-budget semaphore wrapped around the store above.
	pools := pool.NewManager(logger)
	if pgPool != nil {
		pools.Register(pool.NewPgxPool(pgPool), poolConfig(cfg.SQLPool))
	}
	pools.Register(vectorBudget, poolConfig(cfg.VectorPool))
	pools.Start()
	defer pools.Close()

	health := httpapi.NewHealth(healthProbes(vectorStore, pgPool, redisClient, sqlEnabled)...)
	api := httpapi.NewServer(svc, health, logger)

	var limiter ratelimit.Limiter
	if redisClient != nil {
		limiter = ratelimit.New(redisClient, cfg.RateLimits)
	} else {
		limiter = ratelimit.NewMemory(cfg.RateLimits)
	}

	handler := envelope.Build(api, envelope.Options{
		Config:   cfg.Envelope,
		Limiter:  limiter,
		Classify: httpapi.EndpointClass,
		Logger:   logger,
		ExemptPaths: map[string]bool{
			"/health":           true,
			"/health/detailed":  true,
			"/health/databases": true,
		},
	})
	handler = envelope.WithTimeout(handler, cfg.Envelope.RequestTimeout)

	srv := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", srv.Addr).Bool("sql_available", sqlEnabled).Msg("listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info().Msg("shutting down")
	case err := <-errCh:
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func poolConfig(c config.PoolConfig) pool.Config {
	return pool.Config{
		Min:            c.Min,
		Max:            c.Max,
		HighWatermark:  c.TargetUtil,
		SampleInterval: c.ResizeEvery,
	}
}

// popularQueriesSource feeds the suggester from the last two days of
// recorded queries; with no analytics store the source is empty.
func popularQueriesSource(store analytics.Store) search.Source {
	if store == nil {
		return nil
	}
	return func(ctx context.Context) ([]string, error) {
		return analytics.PopularQueries(ctx, store, time.Now(), 2, 50)
	}
}

func distinctMetadataSource(store sqlstore.Store, key string) search.Source {
	lister, ok := store.(sqlstore.Lister)
	if !ok {
		return nil
	}
	return func(ctx context.Context) ([]string, error) {
		return lister.DistinctMetadata(ctx, key, 200)
	}
}

func healthProbes(vs vectorstore.Store, pg *pgxpool.Pool, rc *redis.Client, sqlEnabled bool) []httpapi.BackendProbe {
	probes := []httpapi.BackendProbe{
		{Name: "vector", Check: func(ctx context.Context) error {
			_, _, err := vs.Get(ctx, "00000000-0000-0000-0000-000000000000")
			return err
		}},
	}
	sqlProbe := httpapi.BackendProbe{Name: "sql"}
	if sqlEnabled && pg != nil {
		sqlProbe.Check = pg.Ping
	}
	probes = append(probes, sqlProbe)
	if rc != nil {
		probes = append(probes, httpapi.BackendProbe{Name: "cache", Check: func(ctx context.Context) error {
			return rc.Ping(ctx).Err()
		}})
	}
	return probes
}
