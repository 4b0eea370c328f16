package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Load reads the YAML file at path (if it exists) over Defaults(), then
// applies environment variable overrides on top. A missing path is not an
// error: the service runs on defaults + env.
func Load(path string) (Config, error) {
	_ = godotenv.Overload()

	cfg := Defaults()
	if path != "" {
		if b, err := os.ReadFile(path); err == nil {
			if err := yaml.Unmarshal(b, &cfg); err != nil {
				return Config{}, fmt.Errorf("parse config %s: %w", path, err)
			}
		} else if !os.IsNotExist(err) {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	}
	applyEnv(&cfg)
	return cfg, nil
}

func applyEnv(cfg *Config) {
	str(&cfg.HTTP.Addr, "HTTP_ADDR")
	str(&cfg.Metastore.Backend, "METASTORE_BACKEND")
	str(&cfg.Metastore.DSN, "METASTORE_DSN")
	str(&cfg.Vector.DSN, "QDRANT_DSN")
	str(&cfg.Vector.Collection, "QDRANT_COLLECTION")
	str(&cfg.Vector.Metric, "QDRANT_METRIC")

	str(&cfg.Embedding.ServiceURL, "EMBEDDING_SERVICE_URL")
	str(&cfg.Embedding.DefaultModel, "EMBEDDING_MODEL")
	intv(&cfg.Embedding.BatchSize, "EMBEDDING_BATCH_SIZE")
	intv(&cfg.Embedding.Concurrency, "EMBEDDING_MAX_CONCURRENCY")
	intv(&cfg.Embedding.Dimensions, "EMBEDDING_DIMENSIONS")

	intv(&cfg.Chunking.TextChunkTokens, "CHUNK_SIZE")
	intv(&cfg.Chunking.TextOverlapTokens, "CHUNK_OVERLAP")
	intv(&cfg.Chunking.HTMLChunkTokens, "HTML_CHUNK_SIZE")
	intv(&cfg.Chunking.HTMLOverlapTokens, "HTML_CHUNK_OVERLAP")

	str(&cfg.Rerank.ServiceURL, "RERANKER_SERVICE_URL")
	str(&cfg.Rerank.Model, "RERANKER_MODEL")
	intv(&cfg.Rerank.TopK, "RAG_RERANK_TOP_K")
	intv(&cfg.Rerank.MaxTokens, "RERANKER_MAX_TOKENS")
	intv(&cfg.Rerank.MaxConcurrency, "RERANK_CLIENT_MAX_CONCURRENCY")

	str(&cfg.Webhook.Prefix, "WEBHOOK_PREFIX")
	intv(&cfg.Webhook.TimeoutSec, "WEBHOOK_TIMEOUT")
	floatv(&cfg.Webhook.RatePerSec, "WEBHOOK_RATE_PER_SECOND")
	intv(&cfg.Webhook.Burst, "WEBHOOK_BURST")

	intv(&cfg.Recursion.DefaultDepth, "RECURSIVE_DEPTH_DEFAULT")

	intv(&cfg.Orchestrate.MaxQueries, "WEB_SEARCH_MAX_QUERIES")
	intv(&cfg.Orchestrate.MaxWordsPerQuery, "MAX_WORDS_PER_QUERY")
	intv(&cfg.Orchestrate.MaxKeywordsPerGap, "MAX_KEYWORDS_PER_GAP")
	intv(&cfg.Orchestrate.SimpleQueryMaxQueries, "SIMPLE_QUERY_MAX_QUERIES")
	intv(&cfg.Orchestrate.SimpleQueryMaxWordsPerQuery, "SIMPLE_QUERY_MAX_WORDS_PER_QUERY")
	intv(&cfg.Orchestrate.GapRecallTopK, "GAP_RECALL_TOP_K")

	str(&cfg.LLM.Provider, "LLM_PROVIDER")
	intv(&cfg.LLM.TimeoutSec, "LLM_DEFAULT_TIMEOUT")
	str(&cfg.LLM.OpenAI.Model, "LLM_MODEL")
	str(&cfg.LLM.OpenAI.APIKey, "LLM_API_KEY")
	str(&cfg.LLM.OpenAI.BaseURL, "LLM_BASE_URL")
	str(&cfg.LLM.Anthropic.Model, "ANTHROPIC_MODEL")
	str(&cfg.LLM.Anthropic.APIKey, "ANTHROPIC_API_KEY")
	str(&cfg.LLM.Google.Model, "GOOGLE_MODEL")
	str(&cfg.LLM.Google.APIKey, "GOOGLE_API_KEY")

	str(&cfg.Tools.DefaultMode, "TOOL_DEFAULT_MODE")
	intv(&cfg.Tools.MaxSteps, "TOOL_MAX_STEPS")
	str(&cfg.Tools.WebSearch.MCPEndpoint, "WEB_SEARCH_MCP_ENDPOINT")
	str(&cfg.Tools.WebSearch.HTTPURL, "WEB_SEARCH_HTTP_URL")

	intv(&cfg.WebCache.TTLSeconds, "WEB_CACHE_TTL")
	intv(&cfg.WebCache.MaxEntries, "WEB_CACHE_MAX_ENTRIES")
	intv(&cfg.WebCache.MaxContentSize, "WEB_CACHE_MAX_CONTENT_SIZE")

	boolv(&cfg.Redis.Enabled, "REDIS_ENABLED")
	str(&cfg.Redis.Addr, "REDIS_ADDR")
	str(&cfg.Redis.Password, "REDIS_PASSWORD")
	intv(&cfg.Redis.DB, "REDIS_DB")
	boolv(&cfg.Redis.TLSInsecureSkipVerify, "REDIS_TLS_INSECURE_SKIP_VERIFY")
	str(&cfg.Archive.S3Bucket, "ARCHIVE_S3_BUCKET")
	str(&cfg.Archive.S3Region, "ARCHIVE_S3_REGION")

	str(&cfg.Obs.ServiceName, "OTEL_SERVICE_NAME")
	str(&cfg.Obs.ServiceVersion, "SERVICE_VERSION")
	str(&cfg.Obs.Environment, "DEPLOY_ENVIRONMENT")
	str(&cfg.Obs.OTLPEndpoint, "OTEL_EXPORTER_OTLP_ENDPOINT")
}

func str(dst *string, env string) {
	if v := strings.TrimSpace(os.Getenv(env)); v != "" {
		*dst = v
	}
}

func intv(dst *int, env string) {
	if v := strings.TrimSpace(os.Getenv(env)); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func boolv(dst *bool, env string) {
	if v := strings.TrimSpace(os.Getenv(env)); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func floatv(dst *float64, env string) {
	if v := strings.TrimSpace(os.Getenv(env)); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

// Store holds the live configuration and supports reloading the
// hot-reloadable subset. Reload re-reads env vars and the YAML file
// and swaps in a fresh Config; it never changes fields outside the hot
// subset (HTTP.Addr, Metastore, Vector, LLM.Provider, Redis,
// Archive, Obs require a restart).
type Store struct {
	mu sync.RWMutex
	path string
	cur Config
}

// NewStore constructs a Store from an initial Config and the path it was
// loaded from (used by Reload).
func NewStore(path string, initial Config) *Store {
	return &Store{path: path, cur: initial}
}

// Get returns the current configuration snapshot.
func (s *Store) Get() Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cur
}

// Reload re-loads the config and applies only the hot-reloadable fields.
func (s *Store) Reload() error {
	next, err := Load(s.path)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	cur := s.cur
	cur.Embedding = next.Embedding
	cur.Chunking = next.Chunking
	cur.Rerank = next.Rerank
	cur.Webhook = next.Webhook
	cur.Recursion = next.Recursion
	cur.Tools = next.Tools
	cur.Orchestrate = next.Orchestrate
	cur.WebCache = next.WebCache
	cur.LLM.Temperature = next.LLM.Temperature
	s.cur = cur
	return nil
}
