// Package config owns the process-wide configuration for the ingestion,
// retrieval and orchestration pipeline: a YAML base layer, environment
// overrides, and a hot-reloadable subset for tunables that may change
// without a restart.
package config

import "time"

// Config is the root configuration tree. Fields tagged `hot:"true"` belong
// to the hot-reloadable subset managed by Store.Reload; everything else
// requires a process restart to change.
type Config struct {
	HTTP HTTPConfig `yaml:"http"`
	Metastore MetastoreConfig `yaml:"metastore"`
	Vector VectorConfig `yaml:"vector"`
	Embedding EmbeddingConfig `yaml:"embedding" hot:"true"`
	Chunking ChunkingConfig `yaml:"chunking" hot:"true"`
	Rerank RerankConfig `yaml:"rerank" hot:"true"`
	Webhook WebhookConfig `yaml:"webhook" hot:"true"`
	Recursion RecursionConfig `yaml:"recursion" hot:"true"`
	LLM LLMConfig `yaml:"llm"`
	Tools ToolsConfig `yaml:"tools" hot:"true"`
	Orchestrate OrchestrateConfig `yaml:"orchestrate" hot:"true"`
	WebCache WebCacheConfig `yaml:"web_cache" hot:"true"`
	Redis RedisConfig `yaml:"redis"`
	Archive ArchiveConfig `yaml:"archive"`
	Obs ObsConfig `yaml:"observability"`
}

type HTTPConfig struct {
	Addr string `yaml:"addr"`
}

type MetastoreConfig struct {
	// Backend is loaded (METASTORE_BACKEND) but metastore.Open does not read
	// it: the driver is chosen from the DSN scheme, postgres:// or
	// postgresql:// for pgx and anything else for a modernc.org/sqlite file
	// (WAL + busy-timeout are always enabled on that backend).
	Backend string `yaml:"backend"`
	DSN string `yaml:"dsn"`
}

type VectorConfig struct {
	// DSN is a Qdrant gRPC endpoint, e.g. "http://localhost:6334?api_key=...".
	DSN string `yaml:"dsn"`
	Collection string `yaml:"collection"`
	Metric string `yaml:"metric"`
}

type EmbeddingConfig struct {
	ServiceURL string `yaml:"service_url"`
	DefaultModel string `yaml:"default_model"`
	BatchSize int `yaml:"batch_size" hot:"true"`
	Concurrency int `yaml:"concurrency" hot:"true"`
	Dimensions int `yaml:"dimensions" hot:"true"`
}

type ChunkingConfig struct {
	TextChunkTokens int `yaml:"text_chunk_tokens" hot:"true"`
	TextOverlapTokens int `yaml:"text_overlap_tokens" hot:"true"`
	HTMLChunkTokens int `yaml:"html_chunk_tokens" hot:"true"`
	HTMLOverlapTokens int `yaml:"html_overlap_tokens" hot:"true"`
}

type RerankConfig struct {
	ServiceURL string `yaml:"service_url"`
	Model string `yaml:"model"`
	TopK int `yaml:"top_k" hot:"true"`
	MaxTokens int `yaml:"max_tokens" hot:"true"`
	MaxConcurrency int `yaml:"max_concurrency" hot:"true"`
}

type WebhookConfig struct {
	Prefix string `yaml:"prefix" hot:"true"`
	TimeoutSec int `yaml:"timeout_seconds" hot:"true"`
	RatePerSec float64 `yaml:"rate_per_second" hot:"true"`
	Burst int `yaml:"burst" hot:"true"`
}

func (w WebhookConfig) Timeout() time.Duration { return time.Duration(w.TimeoutSec) * time.Second }

type RecursionConfig struct {
	DefaultDepth int `yaml:"default_depth" hot:"true"`
}

// LLMConfig selects and configures the active LLM provider used for the
// retrieval pipeline's synthesis step (C9) and the orchestrator's
// decompose/think/synthesize steps (C11). Exactly one of OpenAI/Anthropic/
// Google is read, chosen by Provider.
type LLMConfig struct {
	Provider string `yaml:"provider"` // openai|anthropic|google
	Temperature float64 `yaml:"temperature" hot:"true"`
	TimeoutSec int `yaml:"timeout_seconds"`
	OpenAI OpenAIConfig `yaml:"openai"`
	Anthropic AnthropicConfig `yaml:"anthropic"`
	Google GoogleConfig `yaml:"google"`
}

type OpenAIConfig struct {
	APIKey string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"`
	Model string `yaml:"model"`
}

type AnthropicConfig struct {
	APIKey string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"`
	Model string `yaml:"model"`
}

type GoogleConfig struct {
	APIKey string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"`
	Model string `yaml:"model"`
	Timeout int `yaml:"timeout_seconds"`
}

type ToolsConfig struct {
	DefaultMode string `yaml:"default_mode" hot:"true"` // off|auto|json|react|harmony
	MaxSteps int `yaml:"max_steps" hot:"true"`
	WebSearch WebSearchToolConfig `yaml:"web_search"`
}

type WebSearchToolConfig struct {
	// MCPEndpoint, when set, routes the web_search tool through an MCP
	// server instead of the plain HTTP fallback.
	MCPEndpoint string `yaml:"mcp_endpoint"`
	HTTPURL string `yaml:"http_url"`
}

// OrchestrateConfig bounds the intelligent orchestrator's decomposition and
// search-planning steps.
type OrchestrateConfig struct {
	MaxQueries int `yaml:"max_queries" hot:"true"`
	MaxWordsPerQuery int `yaml:"max_words_per_query" hot:"true"`
	MaxKeywordsPerGap int `yaml:"max_keywords_per_gap" hot:"true"`
	SimpleQueryMaxQueries int `yaml:"simple_query_max_queries" hot:"true"`
	SimpleQueryMaxWordsPerQuery int `yaml:"simple_query_max_words_per_query" hot:"true"`
	GapRecallTopK int `yaml:"gap_recall_top_k" hot:"true"`
}

type WebCacheConfig struct {
	TTLSeconds int `yaml:"ttl_seconds" hot:"true"`
	MaxEntries int `yaml:"max_entries" hot:"true"`
	MaxContentSize int `yaml:"max_content_size" hot:"true"`
}

// RedisConfig configures the optional shared cache layer backing C1's
// fetch content cache and C10's tool-result cache. Enabled defaults to
// false: both caches run in-memory-only until Enabled is set (an Addr on
// its own does not turn Redis on), so a single-instance deployment needs
// no Redis at all.
type RedisConfig struct {
	Enabled               bool   `yaml:"enabled"`
	Addr                  string `yaml:"addr"`
	Password              string `yaml:"password"`
	DB                    int    `yaml:"db"`
	TLSInsecureSkipVerify bool   `yaml:"tls_insecure_skip_verify"`
}

type ArchiveConfig struct {
	S3Bucket string `yaml:"s3_bucket"`
	S3Region string `yaml:"s3_region"`
}

type ObsConfig struct {
	ServiceName string `yaml:"service_name"`
	ServiceVersion string `yaml:"service_version"`
	Environment string `yaml:"environment"`
	OTLPEndpoint string `yaml:"otlp_endpoint"`
}

// Defaults returns the default configuration values.
func Defaults() Config {
	return Config{
		HTTP: HTTPConfig{Addr: ":8088"},
		Metastore: MetastoreConfig{Backend: "sqlite", DSN: "file:agenttic.db"},
		Vector: VectorConfig{Collection: "agenttic_rag", Metric: "cosine"},
		Embedding: EmbeddingConfig{
			DefaultModel: "Qwen/Qwen3-Embedding-4B",
			BatchSize: 2,
			Concurrency: 4,
			Dimensions: 1024,
		},
		Chunking: ChunkingConfig{
			TextChunkTokens: 800,
			TextOverlapTokens: 80,
			HTMLChunkTokens: 4000,
			HTMLOverlapTokens: 200,
		},
		Rerank: RerankConfig{
			Model: "Qwen/Qwen3-Reranker-0.6B",
			TopK: 20,
			MaxTokens: 3072,
			MaxConcurrency: 4,
		},
		Webhook: WebhookConfig{
			TimeoutSec: 30,
			RatePerSec: 5,
			Burst: 10,
		},
		Recursion: RecursionConfig{DefaultDepth: 2},
		LLM: LLMConfig{Provider: "openai", TimeoutSec: 300},
		Tools: ToolsConfig{
			DefaultMode: "auto",
			MaxSteps: 6,
		},
		Orchestrate: OrchestrateConfig{
			MaxQueries: 5,
			MaxWordsPerQuery: 8,
			MaxKeywordsPerGap: 3,
			SimpleQueryMaxQueries: 2,
			SimpleQueryMaxWordsPerQuery: 6,
			GapRecallTopK: 5,
		},
		WebCache: WebCacheConfig{
			TTLSeconds: 3600,
			MaxEntries: 512,
			MaxContentSize: 5 * 1024 * 1024,
		},
	}
}
