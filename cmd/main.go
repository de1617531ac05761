package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/yungbote/pagenode-backend/internal/clients/gcs"
	"github.com/yungbote/pagenode-backend/internal/clients/neo4jdb"
	"github.com/yungbote/pagenode-backend/internal/clients/openai"
	"github.com/yungbote/pagenode-backend/internal/clients/qdrant"
	redisbus "github.com/yungbote/pagenode-backend/internal/clients/redis"
	"github.com/yungbote/pagenode-backend/internal/config"
	"github.com/yungbote/pagenode-backend/internal/db"
	"github.com/yungbote/pagenode-backend/internal/graph"
	"github.com/yungbote/pagenode-backend/internal/handlers"
	"github.com/yungbote/pagenode-backend/internal/ingestion/extractor"
	"github.com/yungbote/pagenode-backend/internal/ingestion/pipeline"
	"github.com/yungbote/pagenode-backend/internal/ingestion/registry"
	"github.com/yungbote/pagenode-backend/internal/logger"
	"github.com/yungbote/pagenode-backend/internal/observability"
	"github.com/yungbote/pagenode-backend/internal/repos"
	"github.com/yungbote/pagenode-backend/internal/server"
	"github.com/yungbote/pagenode-backend/internal/services"
	"github.com/yungbote/pagenode-backend/internal/storage"
	"github.com/yungbote/pagenode-backend/internal/types"
	"github.com/yungbote/pagenode-backend/internal/utils"
)

func main() {
	// Logger
	logMode := os.Getenv("LOG_MODE")
	if logMode == "" {
		logMode = "development"
	}
	log, err := logger.New(logMode)
	if err != nil {
		fmt.Printf("Failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	// Config
	cfg, err := config.Load(log)
	if err != nil {
		log.Error("Config load failed", "error", err)
		os.Exit(1)
	}

	// Tracing
	ctx := context.Background()
	otelShutdown := observability.InitOTel(ctx, log, observability.OtelConfig{
		ServiceName: "pagenode-backend",
		Environment: utils.GetEnv("APP_ENV", "development", log),
		Version:     utils.GetEnv("APP_VERSION", "", log),
	})
	if otelShutdown != nil {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := otelShutdown(shutdownCtx); err != nil {
				log.Warn("otel shutdown failed", "error", err)
			}
		}()
	}

	// Database
	dbService, err := db.New(log)
	if err != nil {
		log.Error("Database init failed", "error", err)
		os.Exit(1)
	}
	if err := dbService.AutoMigrateAll(); err != nil {
		log.Error("Auto migration failed", "error", err)
		os.Exit(1)
	}
	thePG := dbService.DB()

	// Repos
	log.Info("Setting up Repos from main...")
	documentRepo := repos.NewDocumentRepo(thePG, log)
	chunkRepo := repos.NewChunkRepo(thePG, log)
	tocEntryRepo := repos.NewTocEntryRepo(thePG, log)
	flashcardRepo := repos.NewFlashcardRepo(thePG, log)
	settingRepo := repos.NewSettingRepo(thePG, log)

	// Clients
	log.Info("Setting up clients from main...")
	llm, err := openai.NewFromEnv(log)
	if err != nil {
		log.Error("Could not init LLM client", "error", err)
		os.Exit(1)
	}
	if llm == nil {
		log.Warn("No LLM backend configured; concepts and flashcards disabled")
	} else {
		llm = resolveLLMModel(ctx, log, llm, settingRepo)
	}

	var vectorStore qdrant.VectorStore
	if qcfg, configured, cfgErr := qdrant.ResolveConfigFromEnv(); cfgErr != nil {
		log.Error("Invalid Qdrant config", "error", cfgErr)
		os.Exit(1)
	} else if configured {
		vectorStore, err = qdrant.NewVectorStore(log, qcfg)
		if err != nil {
			log.Error("Could not init Qdrant", "error", err)
			os.Exit(1)
		}
	} else {
		log.Warn("QDRANT_URL not set; documents will be ingested without embeddings")
	}

	neo4jClient, err := neo4jdb.NewFromEnv(log)
	if err != nil {
		log.Error("Could not init Neo4j", "error", err)
		os.Exit(1)
	}
	var graphService graph.Service
	if neo4jClient != nil {
		defer neo4jClient.Close(ctx)
		graphService = graph.NewService(neo4jClient, log)
	} else {
		log.Warn("NEO4J_URI not set; concept graph disabled")
	}

	statusBus, err := redisbus.NewStatusBusFromEnv(log)
	if err != nil {
		log.Error("Could not init Redis status bus", "error", err)
		os.Exit(1)
	}
	if statusBus != nil {
		defer statusBus.Close()
	}

	// File storage: GCS bucket when configured, local disk otherwise.
	fileStore, err := gcs.NewBucketStoreFromEnv(log)
	if err != nil {
		log.Error("Could not init GCS bucket store", "error", err)
		os.Exit(1)
	}
	staticFilesDir := ""
	if fileStore == nil {
		fileStore, err = storage.NewLocalStore(log, cfg.Uploads.Dir)
		if err != nil {
			log.Error("Could not init local file store", "error", err)
			os.Exit(1)
		}
		staticFilesDir = cfg.Uploads.Dir
	}

	// Extractor
	pdfExtractor := extractor.NewPoppler(log)
	if err := pdfExtractor.AssertReady(ctx); err != nil {
		log.Warn("poppler-utils not available; ingestion will fail until installed", "error", err)
	}

	// Services
	log.Info("Setting up Services from main...")
	coverService := services.NewCoverService(log)
	conceptService := services.NewConceptExtractionService(documentRepo, chunkRepo, llm, graphService, log)
	flashcardService := services.NewFlashcardGenerationService(chunkRepo, flashcardRepo, llm, log)

	taskRegistry := registry.New(log)
	ingestPipeline := pipeline.New(pipeline.Options{
		Docs:     documentRepo,
		Chunks:   chunkRepo,
		Tocs:     tocEntryRepo,
		Settings: settingRepo,
		Extract:  pdfExtractor,
		Fetch: func(fetchCtx context.Context, key string) (string, func(), error) {
			return storage.FetchToTemp(fetchCtx, fileStore, key)
		},
		Embedder: llm,
		Vectors:  vectorStore,
		LLM:      llm,
		Concepts: conceptService,
		Cards:    flashcardService,
		Bus:      statusBus,
		Registry: taskRegistry,

		ChunkTargetChars:  cfg.Chunker.TargetChars,
		ChunkOverlapChars: cfg.Chunker.OverlapChars,
	}, log)

	if err := ingestPipeline.RecoverOnStartup(ctx); err != nil {
		log.Warn("Startup recovery failed", "error", err)
	}

	documentService := services.NewDocumentService(
		documentRepo,
		chunkRepo,
		tocEntryRepo,
		fileStore,
		coverService,
		vectorStore,
		graphService,
		ingestPipeline,
		log,
	)
	reviewService := services.NewReviewService(flashcardRepo, graphService, log)

	// Handlers
	log.Info("Setting up handlers from main...")
	documentHandler := handlers.NewDocumentHandler(documentService)
	quizHandler := handlers.NewQuizHandler(reviewService)
	graphHandler := handlers.NewGraphHandler(graphService)
	settingsHandler := handlers.NewSettingsHandler(settingRepo)

	// Router
	log.Info("Setting up router from main...")
	router := server.NewRouter(server.RouterConfig{
		DocumentHandler: documentHandler,
		QuizHandler:     quizHandler,
		GraphHandler:    graphHandler,
		SettingsHandler: settingsHandler,
		CORSOrigins:     cfg.Server.CORSOrigins,
		StaticFilesDir:  staticFilesDir,
		TracingEnabled:  otelShutdown != nil,
	})

	srv := &http.Server{
		Addr:    ":" + cfg.Server.Port,
		Handler: router,
	}
	go func() {
		fmt.Printf("Server listening on :%s\n", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("Server failed", "error", err)
			os.Exit(1)
		}
	}()

	sigCtx, stopSignals := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stopSignals()
	<-sigCtx.Done()

	log.Info("Shutting down...")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn("Server shutdown failed", "error", err)
	}
}

// resolveLLMModel reconciles the llm_model setting with the environment. A
// stored setting wins; a blank one is seeded from OPENAI_MODEL so the UI
// shows which model ingestion will use.
func resolveLLMModel(ctx context.Context, log *logger.Logger, llm openai.Client, settingRepo repos.SettingRepo) openai.Client {
	stored, err := settingRepo.Get(ctx, nil, types.SettingLLMModel)
	if err != nil {
		log.Warn("Could not read llm_model setting", "error", err)
		return llm
	}
	stored = strings.TrimSpace(stored)
	if stored != "" {
		return openai.WithModel(llm, stored)
	}

	seed := strings.TrimSpace(os.Getenv("OPENAI_MODEL"))
	if seed == "" {
		seed = "gpt-4o-mini"
	}
	if err := settingRepo.Set(ctx, nil, types.SettingLLMModel, seed); err != nil {
		log.Warn("Could not seed llm_model setting", "error", err)
	}
	return llm
}
