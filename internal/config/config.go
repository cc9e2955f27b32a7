// Package config loads runtime configuration for the materials catalog
// service from the process environment, with a .env overlay for local
// development. There is no YAML or CLI surface; Load is the only supported
// entry point.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// EmbeddingConfig configures the outbound call to the external
// text-embedding provider.
type EmbeddingConfig struct {
	Provider    string // "openai" or "compatible" (any OpenAI-compatible HTTP endpoint)
	APIKey      string
	BaseURL     string
	Model       string
	Dimension   int
	Timeout     time.Duration
	RPS         float64 // outbound rate limit, requests/sec
	Burst       int
	MaxRetries  int

	// ParserModel is the chat-completions model used by the AI parser
	//; separate from Model, which is the embeddings model.
	ParserModel string
}

// VectorStoreConfig configures the Qdrant adapter.
type VectorStoreConfig struct {
	DSN        string
	Collection string
	Metric     string
}

// SQLStoreConfig configures the optional Postgres adapter, reached either
// directly or through the tunnel supervisor's local forwarding endpoint.
type SQLStoreConfig struct {
	Enabled bool
	DSN     string
}

// CacheConfig configures the Redis adapter.
type CacheConfig struct {
	Enabled bool
	Addr    string
	Password string
	DB      int
}

// TunnelConfig configures the SSH tunnel supervisor. Enable is false
// by default: most deployments reach Postgres directly.
type TunnelConfig struct {
	Enable           bool
	Host             string
	User             string
	KeyPath          string
	RemoteHost       string
	RemotePort       int
	LocalPort        int
	HeartbeatInterval time.Duration
	AutoRestart      bool
}

// PoolConfig bounds one adapter's connection pool.
type PoolConfig struct {
	Min          int32
	Max          int32
	TargetUtil   float64
	ResizeEvery  time.Duration
}

// ThresholdsConfig holds the default similarity cutoffs used across the
// search and normalization subsystems.
type ThresholdsConfig struct {
	VectorSimilarity float64 // default similarity_threshold for mode=vector
	FuzzySimilarity  float64 // default similarity_threshold for mode=fuzzy
	UnitVector       float64 // normalize.unit.thresholds.vector
	UnitFuzzy        float64 // normalize.unit.thresholds.fuzzy
	ColorVector      float64 // normalize.color.thresholds.vector
	ColorFuzzy       float64 // normalize.color.thresholds.fuzzy
	SKURecallK       int     // sku_search.recall_k
	SKUMinCosine     float64 // sku_search.min_cosine
}

// HybridWeights are the fixed fusion weights for hybrid mode.
type HybridWeights struct {
	Vector float64
	SQL    float64
}

// CacheTTLConfig holds per-namespace TTLs.
type CacheTTLConfig struct {
	Material time.Duration
	Search   time.Duration
	Suggest  time.Duration
	Combined time.Duration
}

// RateLimitClass is one table-driven rate-limit bucket.
type RateLimitClass struct {
	Name  string
	RPM   int
	RPH   int
	Burst int
}

// BatchConfig configures the batch ingestion & job tracker.
type BatchConfig struct {
	MaxItemsPerRequest int
	WorkerPool         int
	ChunkSize          int
	ItemTimeout        time.Duration
}

// EnvelopeConfig configures the request envelope middleware chain.
type EnvelopeConfig struct {
	RequestTimeout   time.Duration
	MaxBodyBytes     int64
	Production       bool
	LogPayloads      bool
	MaxLoggedBytes   int
}

// Config is the fully-resolved runtime configuration for the service.
type Config struct {
	Host string
	Port int

	LogLevel string
	LogPath  string

	Embedding EmbeddingConfig
	Vector    VectorStoreConfig
	SQL       SQLStoreConfig
	Cache     CacheConfig
	Tunnel    TunnelConfig

	VectorPool PoolConfig
	SQLPool    PoolConfig
	CachePool  PoolConfig

	Thresholds    ThresholdsConfig
	HybridWeights HybridWeights
	CacheTTL      CacheTTLConfig
	RateLimits    []RateLimitClass
	Batch         BatchConfig
	Envelope      EnvelopeConfig

	// EnableFallbackDatabases allows the process to continue in
	// vector-only mode when the SQL backend (or its tunnel) cannot be
	// reached at startup.
	EnableFallbackDatabases bool

	OTelEndpoint    string
	OTelServiceName string
	OTelEnabled     bool
}

// Load reads configuration from the environment, overlaying a local .env
// file when present (Overload: local files win
// over an already-exported variable, which keeps repeated `go test`/`go run`
// invocations deterministic during development).
func Load() (Config, error) {
	_ = godotenv.Overload()

	cfg := Config{
		Host:     firstNonEmpty(os.Getenv("HOST"), "0.0.0.0"),
		Port:     intFromEnv("PORT", 8080),
		LogLevel: firstNonEmpty(os.Getenv("LOG_LEVEL"), "info"),
		LogPath:  os.Getenv("LOG_PATH"),

		Embedding: EmbeddingConfig{
			Provider:   firstNonEmpty(os.Getenv("EMBEDDING_PROVIDER"), "openai"),
			APIKey:     os.Getenv("EMBEDDING_API_KEY"),
			BaseURL:    os.Getenv("EMBEDDING_BASE_URL"),
			Model:      firstNonEmpty(os.Getenv("EMBEDDING_MODEL"), "text-embedding-3-small"),
			Dimension:  intFromEnv("EMBEDDING_DIMENSION", 1536),
			Timeout:    durFromEnvSeconds("EMBEDDING_TIMEOUT_SECONDS", 30),
			RPS:        floatFromEnv("EMBEDDING_RPS", 5),
			Burst:      intFromEnv("EMBEDDING_BURST", 5),
			MaxRetries: intFromEnv("EMBEDDING_MAX_RETRIES", 3),
			ParserModel: firstNonEmpty(os.Getenv("PARSER_MODEL"), "gpt-4o-mini"),
		},

		Vector: VectorStoreConfig{
			DSN:        firstNonEmpty(os.Getenv("QDRANT_DSN"), "http://localhost:6334"),
			Collection: firstNonEmpty(os.Getenv("QDRANT_COLLECTION"), "materials"),
			Metric:     firstNonEmpty(os.Getenv("QDRANT_METRIC"), "cosine"),
		},

		SQL: SQLStoreConfig{
			Enabled: boolFromEnv("SQL_ENABLED", false),
			DSN:     os.Getenv("POSTGRES_DSN"),
		},

		Cache: CacheConfig{
			Enabled:  boolFromEnv("CACHE_ENABLED", true),
			Addr:     firstNonEmpty(os.Getenv("REDIS_ADDR"), "localhost:6379"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       intFromEnv("REDIS_DB", 0),
		},

		Tunnel: TunnelConfig{
			Enable:            boolFromEnv("TUNNEL_ENABLE", false),
			Host:              os.Getenv("TUNNEL_HOST"),
			User:              os.Getenv("TUNNEL_USER"),
			KeyPath:           os.Getenv("TUNNEL_KEY_PATH"),
			RemoteHost:        firstNonEmpty(os.Getenv("TUNNEL_REMOTE_HOST"), "localhost"),
			RemotePort:        intFromEnv("TUNNEL_REMOTE_PORT", 5432),
			LocalPort:         intFromEnv("TUNNEL_LOCAL_PORT", 15432),
			HeartbeatInterval: durFromEnvSeconds("TUNNEL_HEARTBEAT_SECONDS", 60),
			AutoRestart:       boolFromEnv("TUNNEL_AUTO_RESTART", true),
		},

		VectorPool: poolFromEnv("VECTOR_POOL", 2, 32, 0.8, 30),
		SQLPool:    poolFromEnv("SQL_POOL", 2, 32, 0.8, 30),
		CachePool:  poolFromEnv("CACHE_POOL", 2, 32, 0.8, 30),

		Thresholds: ThresholdsConfig{
			VectorSimilarity: floatFromEnv("SIMILARITY_THRESHOLD_VECTOR", 0.0),
			FuzzySimilarity:  floatFromEnv("SIMILARITY_THRESHOLD_FUZZY", 0.6),
			UnitVector:       floatFromEnv("NORMALIZE_UNIT_VECTOR_THRESHOLD", 0.85),
			UnitFuzzy:        floatFromEnv("NORMALIZE_UNIT_FUZZY_THRESHOLD", 0.75),
			ColorVector:      floatFromEnv("NORMALIZE_COLOR_VECTOR_THRESHOLD", 0.82),
			ColorFuzzy:       floatFromEnv("NORMALIZE_COLOR_FUZZY_THRESHOLD", 0.75),
			SKURecallK:       intFromEnv("SKU_SEARCH_RECALL_K", 20),
			SKUMinCosine:     floatFromEnv("SKU_SEARCH_MIN_COSINE", 0.70),
		},

		HybridWeights: HybridWeights{
			Vector: floatFromEnv("HYBRID_WEIGHT_VECTOR", 0.6),
			SQL:    floatFromEnv("HYBRID_WEIGHT_SQL", 0.4),
		},

		CacheTTL: CacheTTLConfig{
			Material: durFromEnvSeconds("CACHE_TTL_MATERIAL_SECONDS", 3600),
			Search:   durFromEnvSeconds("CACHE_TTL_SEARCH_SECONDS", 300),
			Suggest:  durFromEnvSeconds("CACHE_TTL_SUGGEST_SECONDS", 3600),
			Combined: durFromEnvSeconds("CACHE_TTL_COMBINED_SECONDS", 86400),
		},

		RateLimits: []RateLimitClass{
			{Name: "search", RPM: intFromEnv("RATELIMIT_SEARCH_RPM", 60), RPH: intFromEnv("RATELIMIT_SEARCH_RPH", 2000), Burst: intFromEnv("RATELIMIT_SEARCH_BURST", 10)},
			{Name: "materials", RPM: intFromEnv("RATELIMIT_MATERIALS_RPM", 120), RPH: intFromEnv("RATELIMIT_MATERIALS_RPH", 4000), Burst: intFromEnv("RATELIMIT_MATERIALS_BURST", 20)},
			{Name: "ingestion", RPM: intFromEnv("RATELIMIT_INGESTION_RPM", 10), RPH: intFromEnv("RATELIMIT_INGESTION_RPH", 200), Burst: intFromEnv("RATELIMIT_INGESTION_BURST", 2)},
			{Name: "prices", RPM: intFromEnv("RATELIMIT_PRICES_RPM", 10), RPH: intFromEnv("RATELIMIT_PRICES_RPH", 200), Burst: intFromEnv("RATELIMIT_PRICES_BURST", 2)},
			{Name: "health", RPM: intFromEnv("RATELIMIT_HEALTH_RPM", 600), RPH: intFromEnv("RATELIMIT_HEALTH_RPH", 20000), Burst: intFromEnv("RATELIMIT_HEALTH_BURST", 60)},
		},

		Batch: BatchConfig{
			MaxItemsPerRequest: intFromEnv("BATCH_MAX_ITEMS_PER_REQUEST", 10000),
			WorkerPool:         intFromEnv("BATCH_WORKER_POOL", 5),
			ChunkSize:          intFromEnv("BATCH_CHUNK_SIZE", 50),
			ItemTimeout:        durFromEnvSeconds("BATCH_ITEM_TIMEOUT_SECONDS", 60),
		},

		Envelope: EnvelopeConfig{
			RequestTimeout: durFromEnvSeconds("REQUEST_TIMEOUT_SECONDS", 30),
			MaxBodyBytes:   int64(intFromEnv("MAX_BODY_BYTES", 50*1024*1024)),
			Production:     boolFromEnv("PRODUCTION", false),
			LogPayloads:    boolFromEnv("LOG_PAYLOADS", false),
			MaxLoggedBytes: intFromEnv("MAX_LOGGED_BYTES", 64*1024),
		},

		EnableFallbackDatabases: boolFromEnv("ENABLE_FALLBACK_DATABASES", true),

		OTelEndpoint:    os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		OTelServiceName: firstNonEmpty(os.Getenv("OTEL_SERVICE_NAME"), "materialscat"),
		OTelEnabled:     boolFromEnv("OTEL_ENABLED", false),
	}

	if cfg.Embedding.Dimension <= 0 {
		return Config{}, fmt.Errorf("config: embedding_dimension must be positive, got %d", cfg.Embedding.Dimension)
	}
	if cfg.SQL.Enabled && cfg.SQL.DSN == "" && !cfg.Tunnel.Enable {
		return Config{}, fmt.Errorf("config: SQL_ENABLED requires POSTGRES_DSN or TUNNEL_ENABLE")
	}
	return cfg, nil
}

func poolFromEnv(prefix string, defMin, defMax int32, defUtil float64, defResizeSeconds int) PoolConfig {
	return PoolConfig{
		Min:         int32(intFromEnv(prefix+"_MIN", int(defMin))),
		Max:         int32(intFromEnv(prefix+"_MAX", int(defMax))),
		TargetUtil:  floatFromEnv(prefix+"_TARGET_UTIL", defUtil),
		ResizeEvery: durFromEnvSeconds(prefix+"_RESIZE_SECONDS", defResizeSeconds),
	}
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func intFromEnv(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func floatFromEnv(key string, def float64) float64 {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def
	}
	return f
}

func boolFromEnv(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func durFromEnvSeconds(key string, defSeconds int) time.Duration {
	return time.Duration(intFromEnv(key, defSeconds)) * time.Second
}
