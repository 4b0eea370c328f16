package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"agenttic-rag/internal/archive"
	"agenttic-rag/internal/chunk"
	"agenttic-rag/internal/config"
	"agenttic-rag/internal/discover"
	"agenttic-rag/internal/embedclient"
	"agenttic-rag/internal/fetch"
	"agenttic-rag/internal/httpserver"
	"agenttic-rag/internal/ingest"
	"agenttic-rag/internal/llmprovider"
	"agenttic-rag/internal/logging"
	"agenttic-rag/internal/mcptool"
	"agenttic-rag/internal/metastore"
	"agenttic-rag/internal/observability"
	"agenttic-rag/internal/orchestrate"
	"agenttic-rag/internal/rediscache"
	"agenttic-rag/internal/rerank"
	"agenttic-rag/internal/retrieve"
	"agenttic-rag/internal/tasktracker"
	"agenttic-rag/internal/toolregistry"
	"agenttic-rag/internal/vectorstore"
)

func main() {
	configPath := flag.String("config", os.Getenv("CONFIG_PATH"), "path to the YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logging.Log.WithError(err).Fatal("load config")
	}
	store := config.NewStore(*configPath, cfg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownOTel, err := observability.InitOTel(ctx, cfg.Obs)
	if err != nil {
		logging.Log.WithError(err).Warn("otel init failed, continuing without tracing")
		shutdownOTel = func(context.Context) error { return nil }
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownOTel(shutdownCtx)
	}()

	metaStore, err := metastore.Open(ctx, cfg.Metastore.DSN)
	if err != nil {
		logging.Log.WithError(err).Fatal("open metastore")
	}
	defer metaStore.Close()

	vectors, err := vectorstore.New(cfg.Vector.DSN, cfg.Vector.Collection, cfg.Embedding.Dimensions, cfg.Vector.Metric)
	if err != nil {
		logging.Log.WithError(err).Fatal("open vector store")
	}

	redisStore, err := rediscache.New(cfg.Redis, time.Duration(cfg.WebCache.TTLSeconds)*time.Second)
	if err != nil {
		logging.Log.WithError(err).Fatal("open redis cache")
	}
	if redisStore != nil {
		defer redisStore.Close()
	}

	archiver, err := archive.New(ctx, cfg.Archive)
	if err != nil {
		logging.Log.WithError(err).Warn("archive init failed, oversized fetch content will be dropped")
		archiver = nil
	}

	fetcher := fetch.New(
		fetch.EngineLightweight,
		20*time.Second,
		cfg.WebCache.MaxEntries,
		time.Duration(cfg.WebCache.TTLSeconds)*time.Second,
		int64(cfg.WebCache.MaxContentSize),
	).WithRedis(redisStore).WithArchiver(archiver)

	splitter, err := chunk.NewSplitter()
	if err != nil {
		logging.Log.WithError(err).Fatal("build chunk splitter")
	}

	embedder := embedclient.New(cfg.Embedding.ServiceURL, cfg.Embedding.Concurrency)
	reranker := rerank.New(cfg.Rerank.ServiceURL, cfg.Rerank.MaxConcurrency, cfg.Rerank.MaxTokens, splitter.CountTokens)

	llm, err := llmprovider.Build(cfg.LLM, http.DefaultClient)
	if err != nil {
		logging.Log.WithError(err).Fatal("build llm provider")
	}

	discoverer := discover.New(metaStore)
	tasks := tasktracker.New()
	sweeperStop := make(chan struct{})
	go tasks.RunSweeper(time.Minute, time.Hour, sweeperStop)
	defer close(sweeperStop)

	namer := ingest.NewLLMNamer(llm, cfg.LLM.Temperature)
	ingestPipeline := ingest.New(fetcher, splitter, metaStore, embedder, vectors, discoverer, tasks, namer, cfg)
	retrievePipeline := retrieve.New(embedder, vectors, reranker, llm, metaStore, cfg)

	registry := toolregistry.New(redisStore)
	registerTools(ctx, registry, ingestPipeline, cfg)

	strategy := buildStrategy(cfg, llm)
	orchestrator := orchestrate.New(llm, registry, strategy, retrievePipeline, cfg)

	srv := httpserver.New(ingestPipeline, retrievePipeline, orchestrator, discoverer, metaStore, vectors, tasks, cfg)

	reload := make(chan os.Signal, 1)
	signal.Notify(reload, syscall.SIGHUP)
	go func() {
		for range reload {
			if err := store.Reload(); err != nil {
				logging.Log.WithError(err).Warn("config reload failed")
			} else {
				logging.Log.Info("config reloaded")
			}
		}
	}()

	addr := cfg.HTTP.Addr
	if addr == "" {
		addr = ":8080"
	}
	go func() {
		logging.Log.WithField("addr", addr).Info("http server listening")
		if err := srv.Echo.Start(addr); err != nil && err != http.ErrServerClosed {
			logging.Log.WithError(err).Fatal("http server")
		}
	}()

	<-ctx.Done()
	logging.Log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Echo.Shutdown(shutdownCtx); err != nil {
		logging.Log.WithError(err).Warn("http server shutdown error")
	}
}

// registerTools wires every C10 tool the orchestrator may call: the
// web-search tool, routed through a remote MCP server when one is
// configured and through the plain SearXNG+fetch fallback otherwise.
func registerTools(ctx context.Context, registry *toolregistry.Registry, ingestPipeline *ingest.Pipeline, cfg config.Config) {
	opts := toolregistry.Options{CacheTTL: 10 * time.Minute}

	if cfg.Tools.WebSearch.MCPEndpoint != "" {
		adapter, err := mcptool.Connect(ctx, cfg.Tools.WebSearch.MCPEndpoint)
		if err != nil {
			logging.Log.WithError(err).Warn("mcp web search connect failed, falling back to local web_search tool")
		} else if names, err := adapter.RegisterTools(ctx, registry, opts); err != nil {
			logging.Log.WithError(err).Warn("mcp tool registration failed, falling back to local web_search tool")
		} else {
			logging.Log.WithField("tools", names).Info("registered remote MCP tools")
			return
		}
	}

	registry.Register(orchestrate.NewWebSearchTool(ingestPipeline, cfg.Tools.WebSearch), opts)
}

func buildStrategy(cfg config.Config, llm llmprovider.Provider) toolregistry.Strategy {
	switch cfg.Tools.DefaultMode {
	case "react":
		return toolregistry.NewReActStrategy(llm, cfg.LLM.Temperature)
	case "harmony":
		return toolregistry.NewHarmonyStrategy(llm, cfg.LLM.Temperature, cfg.LLM.OpenAI.Model)
	default:
		return toolregistry.NewJSONStrategy(cfg.LLM.OpenAI)
	}
}
