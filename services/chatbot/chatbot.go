// Copyright (C) 2025 PersonaCast Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package chatbot assembles the multi-personality video chatbot service.
//
// # Description
//
// The service answers questions in configurable personality styles, grounds
// answers in a vector store of video transcripts, and remembers each
// conversation in a bounded per-session memory. This file wires the
// components together: HTTP routing via Gin, the chat engine, the LLM
// clients, Weaviate, voice I/O, OpenTelemetry tracing, and Prometheus
// metrics.
//
// # Thread Safety
//
// Thread-safe after construction. All fields are read-only after New()
// returns.
package chatbot

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/personacast/personacast/services/chatbot/classifier"
	"github.com/personacast/personacast/services/chatbot/engine"
	"github.com/personacast/personacast/services/chatbot/generator"
	"github.com/personacast/personacast/services/chatbot/memory"
	"github.com/personacast/personacast/services/chatbot/observability"
	"github.com/personacast/personacast/services/chatbot/personality"
	"github.com/personacast/personacast/services/chatbot/retrieval"
	"github.com/personacast/personacast/services/chatbot/routes"
	"github.com/personacast/personacast/services/chatbot/ttl"
	"github.com/personacast/personacast/services/llm"
	"github.com/personacast/personacast/services/voice"
	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.17.0"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// =============================================================================
// Service Interface
// =============================================================================

// Service is the chatbot's public lifecycle.
type Service interface {
	// Run starts the HTTP server and blocks until shutdown or error.
	Run() error

	// Router returns the underlying Gin engine for testing.
	Router() *gin.Engine
}

// =============================================================================
// Configuration
// =============================================================================

// Config holds service configuration. Zero values use defaults.
type Config struct {
	// Port is the HTTP server port. Default: 12300
	Port int

	// LLMBackend specifies the model provider.
	// Valid values: "openai", "ollama". Default: "ollama"
	LLMBackend string

	// WeaviateURL is the vector database URL. If empty, retrieval degrades
	// to memory-only answers.
	// Example: "http://localhost:8080"
	WeaviateURL string

	// OTelEndpoint is the OpenTelemetry collector endpoint.
	// Default: "personacast-otel-collector:4317"
	OTelEndpoint string

	// EnableMetrics enables the Prometheus metrics endpoint.
	// Default: true
	EnableMetrics bool

	// GinMode sets the Gin framework mode ("debug", "release", "test").
	// Default: uses the GIN_MODE env var or "debug".
	GinMode string

	// PersonalityDir holds YAML personality overrides. If empty, only the
	// built-in personas are available.
	PersonalityDir string

	// MemoryPersistDir is the Badger directory for session transcripts.
	// If empty, memory is in-process only and lost on restart.
	MemoryPersistDir string

	// SessionTTL is the idle time after which a session expires.
	// Default: 1 hour (SESSION_TTL_SECONDS).
	SessionTTL time.Duration

	// SweepInterval is how often the session sweeper runs.
	// Default: 5 minutes (SESSION_SWEEP_SECONDS).
	SweepInterval time.Duration
}

// =============================================================================
// Implementation
// =============================================================================

type service struct {
	config         Config
	router         *gin.Engine
	llmClient      llm.LLMClient
	weaviateClient *weaviate.Client
	registry       *memory.Registry
	persister      *memory.PersistentStore
	personalities  *personality.Catalog
	engine         *engine.Engine
	embedder       retrieval.EmbeddingProvider
	transcriber    voice.Transcriber
	synthesizer    voice.Synthesizer
	metrics        *observability.ChatMetrics
	sweeper        *ttl.Sweeper
	tracerCleanup  func(context.Context)
	watcherDone    chan struct{}
}

// =============================================================================
// Constructor
// =============================================================================

// New creates a chatbot Service with the given configuration.
//
// # Description
//
// Initializes all components in dependency order:
//  1. Applies default configuration for missing values
//  2. Initializes OpenTelemetry tracing and Prometheus metrics
//  3. Opens session persistence and the session registry
//  4. Loads personality profiles (plus optional hot reload)
//  5. Creates the LLM client for the configured backend
//  6. Connects to Weaviate and ensures the transcript schema
//  7. Initializes voice transcription and synthesis
//  8. Assembles the chat engine and HTTP routes
//  9. Starts the session TTL sweeper
//
// # Inputs
//
//   - cfg: Service configuration. Zero values use defaults.
//
// # Outputs
//
//   - Service: Ready-to-run chatbot service.
//   - error: Non-nil if a required component failed to initialize.
//
// # Assumptions
//
//   - Environment variables are set for the chosen LLM provider.
//   - Weaviate and the OTel collector are reachable if configured.
func New(cfg Config) (Service, error) {
	s := &service{
		config:      applyConfigDefaults(cfg),
		watcherDone: make(chan struct{}),
	}

	cleanup, err := s.initTracer()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize tracer: %w", err)
	}
	s.tracerCleanup = cleanup

	if s.config.EnableMetrics {
		s.metrics = observability.InitMetrics()
		slog.Info("Initialized Prometheus metrics")
	}

	if err := s.initMemory(); err != nil {
		s.cleanup()
		return nil, fmt.Errorf("failed to initialize session memory: %w", err)
	}

	s.initPersonalities()

	if err := s.initLLMClient(); err != nil {
		s.cleanup()
		return nil, fmt.Errorf("failed to initialize LLM client: %w", err)
	}

	if err := s.initWeaviate(); err != nil {
		slog.Warn("Weaviate initialization failed, retrieval disabled", "error", err)
		// Not fatal. The engine degrades to memory-only answers.
	}

	s.initVoice()
	s.initEngine()
	s.initRouter()
	s.initSweeper()

	return s, nil
}

// =============================================================================
// Service Interface Methods
// =============================================================================

// Run starts the HTTP server and blocks until shutdown or error.
func (s *service) Run() error {
	defer s.cleanup()

	addr := fmt.Sprintf(":%d", s.config.Port)
	slog.Info("Starting chatbot server", "port", s.config.Port)

	return s.router.Run(addr)
}

// Router returns the underlying Gin engine for testing.
func (s *service) Router() *gin.Engine {
	return s.router
}

// =============================================================================
// Private Initialization Methods
// =============================================================================

func applyConfigDefaults(cfg Config) Config {
	if cfg.Port == 0 {
		cfg.Port = 12300
	}
	if cfg.LLMBackend == "" {
		cfg.LLMBackend = "ollama"
	}
	if cfg.OTelEndpoint == "" {
		cfg.OTelEndpoint = "personacast-otel-collector:4317"
	}
	cfg.EnableMetrics = true

	if cfg.SessionTTL == 0 || cfg.SweepInterval == 0 {
		sweepDefaults := ttl.DefaultSweeperConfig()
		if cfg.SessionTTL == 0 {
			cfg.SessionTTL = sweepDefaults.MaxIdle
		}
		if cfg.SweepInterval == 0 {
			cfg.SweepInterval = sweepDefaults.Interval
		}
	}
	return cfg
}

// initTracer initializes OpenTelemetry distributed tracing.
//
// Uses an insecure gRPC connection, appropriate for internal networks.
func (s *service) initTracer() (func(context.Context), error) {
	ctx := context.Background()

	conn, err := grpc.NewClient(s.config.OTelEndpoint,
		grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("failed to create gRPC connection: %w", err)
	}

	traceExporter, err := otlptracegrpc.New(ctx, otlptracegrpc.WithGRPCConn(conn))
	if err != nil {
		return nil, fmt.Errorf("failed to create trace exporter: %w", err)
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(semconv.ServiceNameKey.String("personacast-chatbot")))
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	bsp := sdktrace.NewBatchSpanProcessor(traceExporter)
	traceProvider := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
		sdktrace.WithResource(res),
		sdktrace.WithSpanProcessor(bsp))

	otel.SetTracerProvider(traceProvider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{}, propagation.Baggage{}))

	cleanup := func(ctx context.Context) {
		ctx, cancel := context.WithTimeout(ctx, time.Second*5)
		defer cancel()
		if err := traceExporter.Shutdown(ctx); err != nil {
			slog.Error("failed to shutdown OTLP exporter", "error", err)
		}
	}

	return cleanup, nil
}

// initMemory opens session persistence (optional) and the registry.
func (s *service) initMemory() error {
	memCfg := memory.DefaultConfig()

	if s.config.MemoryPersistDir != "" {
		persister, err := memory.OpenPersistentStore(s.config.MemoryPersistDir)
		if err != nil {
			return fmt.Errorf("failed to open session persistence: %w", err)
		}
		s.persister = persister
		slog.Info("Session persistence enabled", "dir", s.config.MemoryPersistDir)
	}

	s.registry = memory.NewRegistry(memCfg, s.persister)
	return nil
}

// initPersonalities loads the catalog and starts the hot-reload watcher
// when an override directory is configured.
func (s *service) initPersonalities() {
	s.personalities = personality.NewCatalog()

	dir := s.config.PersonalityDir
	if dir == "" {
		return
	}
	if err := s.personalities.LoadDir(dir); err != nil {
		slog.Warn("Failed to load personality overrides, using built-ins",
			"dir", dir, "error", err)
		return
	}
	go func() {
		if err := s.personalities.Watch(dir, s.watcherDone); err != nil {
			slog.Warn("Personality watcher exited", "error", err)
		}
	}()
}

// initLLMClient creates the model client for the configured backend.
func (s *service) initLLMClient() error {
	var err error

	switch s.config.LLMBackend {
	case "openai":
		s.llmClient, err = llm.NewOpenAIClient()
		slog.Info("Using OpenAI LLM backend")
	case "ollama":
		s.llmClient, err = llm.NewOllamaClient()
		slog.Info("Using Ollama LLM backend")
	default:
		slog.Warn("Unknown LLM backend, defaulting to ollama", "backend", s.config.LLMBackend)
		s.llmClient, err = llm.NewOllamaClient()
	}

	return err
}

// initWeaviate connects the vector store and the embedder. Both are
// optional; without them every answer is memory-only.
func (s *service) initWeaviate() error {
	weaviateURL := strings.Trim(s.config.WeaviateURL, "\"' ")

	if weaviateURL == "" || !strings.Contains(weaviateURL, "http") {
		slog.Info("Weaviate URL not configured, retrieval disabled")
		return nil
	}

	parsedURL, err := url.Parse(weaviateURL)
	if err != nil || parsedURL.Scheme == "" || parsedURL.Host == "" {
		return fmt.Errorf("invalid Weaviate URL: %s", weaviateURL)
	}

	s.weaviateClient, err = weaviate.NewClient(weaviate.Config{
		Host:   parsedURL.Host,
		Scheme: parsedURL.Scheme,
	})
	if err != nil {
		return fmt.Errorf("failed to create Weaviate client: %w", err)
	}

	s.embedder, err = retrieval.NewOpenAIEmbedder()
	if err != nil {
		return fmt.Errorf("failed to create embedder: %w", err)
	}

	retrieval.EnsureSchema(s.weaviateClient)
	slog.Info("Weaviate client initialized", "url", weaviateURL)
	return nil
}

// initVoice wires speech I/O from environment keys. Voice is optional;
// without keys the service is text-only.
func (s *service) initVoice() {
	elevenKey := os.Getenv("ELEVENLABS_API_KEY")
	openaiKey := os.Getenv("OPENAI_API_KEY")

	if elevenKey == "" && openaiKey == "" {
		slog.Info("No speech API keys configured, voice disabled")
		return
	}

	s.transcriber = voice.NewDualTranscriber(elevenKey, openaiKey)
	if elevenKey != "" {
		s.synthesizer = voice.NewElevenLabsSynthesizer(elevenKey)
	}
	slog.Info("Voice I/O initialized",
		"stt", s.transcriber != nil, "tts", s.synthesizer != nil)
}

// initEngine assembles the chat pipeline.
func (s *service) initEngine() {
	cls := classifier.NewLLMClassifier(s.llmClient)

	var ret retrieval.Retriever
	if s.weaviateClient != nil {
		ret = retrieval.NewWeaviateRetriever(s.weaviateClient, s.embedder)
	} else {
		ret = retrieval.Disabled{}
	}

	gen := generator.NewLLMGenerator(s.llmClient)
	s.engine = engine.New(cls, ret, gen, s.registry, s.personalities, s.metrics)
}

// initRouter sets up the Gin HTTP router with all routes.
func (s *service) initRouter() {
	if s.config.GinMode != "" {
		gin.SetMode(s.config.GinMode)
	}
	s.router = gin.Default()
	s.router.Use(otelgin.Middleware("personacast-chatbot"))

	routes.SetupRoutes(s.router, routes.Deps{
		Engine:        s.engine,
		Registry:      s.registry,
		Personalities: s.personalities,
		WeaviateClnt:  s.weaviateClient,
		Embedder:      s.embedder,
		Transcriber:   s.transcriber,
		Synthesizer:   s.synthesizer,
		Metrics:       s.metrics,
	})
}

// initSweeper starts the background session expiry loop.
func (s *service) initSweeper() {
	s.sweeper = ttl.NewSweeper(s.registry, ttl.SweeperConfig{
		Interval: s.config.SweepInterval,
		MaxIdle:  s.config.SessionTTL,
	})
	if err := s.sweeper.Start(context.Background()); err != nil {
		slog.Warn("Session sweeper failed to start", "error", err)
	}
}

// cleanup releases all resources held by the service.
func (s *service) cleanup() {
	if s.sweeper != nil {
		if err := s.sweeper.Stop(); err != nil {
			slog.Warn("Session sweeper stop error", "error", err)
		}
	}

	close(s.watcherDone)

	if s.persister != nil {
		if err := s.persister.Close(); err != nil {
			slog.Warn("Session persistence close error", "error", err)
		}
	}

	if s.tracerCleanup != nil {
		s.tracerCleanup(context.Background())
	}
}

// =============================================================================
// Compile-time Interface Compliance
// =============================================================================

var _ Service = (*service)(nil)
