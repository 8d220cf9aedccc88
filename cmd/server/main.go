package main

import (
	"context"
	"os"
	"time"

	"claimverifier-backend/config"
	"claimverifier-backend/handlers"
	"claimverifier-backend/llm"
	"claimverifier-backend/repository"
	"claimverifier-backend/service"
	"claimverifier-backend/storage"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
)

func main() {
	// Load .env from the working directory or the project root.
	if err := godotenv.Load(); err != nil {
		_ = godotenv.Load("../../.env")
	}

	logger := zerolog.New(os.Stderr).With().Timestamp().Logger()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load configuration")
	}

	db, err := initPostgres(cfg.DatabaseURL, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize Postgres")
	}
	defer db.Close()

	archive, err := storage.NewArchive(storage.Config{
		Type:      storage.ArchiveType(cfg.Storage.Type),
		LocalPath: cfg.Storage.LocalPath,
		S3Bucket:  cfg.Storage.S3Bucket,
		S3Region:  cfg.Storage.S3Region,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize document archive")
	}

	// Repositories
	claimRepo := repository.NewClaimRepository(db)
	chunkRepo := repository.NewFilingChunkRepository(db)
	factRepo := repository.NewFactRepository(db)
	verdictRepo := repository.NewVerdictRepository(db)
	jobRepo := repository.NewVerificationJobRepository(db)

	// Model clients
	provider, err := llm.NewProvider(llm.Config{
		Provider:      cfg.LLM.Provider,
		Model:         cfg.LLM.Model,
		APIKey:        cfg.LLM.APIKey,
		BaseURL:       cfg.LLM.BaseURL,
		Timeout:       time.Duration(cfg.LLM.TimeoutSeconds) * time.Second,
		MaxTokens:     cfg.LLM.MaxTokens,
		RatePerSecond: cfg.LLM.RatePerSecond,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize LLM provider")
	}
	logger.Info().Str("provider", provider.Name()).Msg("LLM provider initialized")

	embedder, err := llm.NewGeminiEmbedder(cfg.GeminiAPIKey,
		llm.WithEmbedderRateLimit(cfg.EmbedRatePerSecond),
		llm.WithEmbedderDimensions(cfg.EmbedDimensions),
	)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize embedder")
	}

	// Services
	extraction := service.NewExtractionService(provider, claimRepo,
		service.WithExtractionWorkers(cfg.Workers),
		service.WithMinConfidence(cfg.MinConfidence),
		service.WithExtractionLogger(logger),
	)

	indexing := service.NewIndexService(chunkRepo, factRepo, embedder,
		service.WithIndexWorkers(cfg.Workers),
		service.WithIndexChunker(service.NewChunker(cfg.MaxChunkChars)),
		service.WithIndexArchive(archive),
		service.WithIndexLogger(logger),
	)

	retrievalOpts := []service.RetrievalOption{
		service.WithTopK(cfg.TopK),
		service.WithSearchK(cfg.SearchK),
		service.WithRetrievalLogger(logger),
	}
	if cfg.RerankEnabled {
		retrievalOpts = append(retrievalOpts, service.WithReranker(service.NewReranker()))
	}
	retrieval := service.NewRetrievalService(chunkRepo, embedder, retrievalOpts...)

	comparator := service.NewComparator(factRepo, chunkRepo, cfg.Tolerances)

	verification := service.NewVerificationService(provider, comparator, retrieval, claimRepo, verdictRepo,
		service.WithVerificationWorkers(cfg.Workers),
		service.WithVerificationJobs(jobRepo),
		service.WithVerificationLogger(logger),
	)

	handler := handlers.NewVerificationHandler(extraction, indexing, retrieval, verification, claimRepo, verdictRepo, jobRepo)

	r := gin.Default()

	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"status": "ok",
		})
	})

	api := r.Group("/api")
	{
		// Ingestion endpoints
		api.POST("/transcripts/extract", handler.ExtractClaims)
		api.POST("/filings/index", handler.IndexFiling)

		// Claim endpoints
		api.GET("/claims", handler.ListClaims)
		api.GET("/claims/:id", handler.GetClaim)
		api.POST("/claims/:id/verify", handler.VerifyClaim)
		api.GET("/claims/:id/verdict", handler.GetVerdict)

		// Verdict endpoints
		api.GET("/verdicts", handler.ListVerdicts)
		api.POST("/verify/batch", handler.StartBatch)

		// Job endpoints
		api.GET("/jobs/:id", handler.GetJobStatus)

		// Evidence search
		api.POST("/search", handler.SearchEvidence)
	}

	logger.Info().Str("port", cfg.HTTPPort).Msg("server starting")
	if err := r.Run(":" + cfg.HTTPPort); err != nil {
		logger.Fatal().Err(err).Msg("server exited")
	}
}

func initPostgres(connString string, logger zerolog.Logger) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(context.Background(), connString)
	if err != nil {
		return nil, err
	}

	ctx := context.Background()
	if err := pool.Ping(ctx); err != nil {
		return nil, err
	}

	// Enable pgvector extension
	if _, err := pool.Exec(ctx, "CREATE EXTENSION IF NOT EXISTS vector"); err != nil {
		logger.Warn().Err(err).Msg("failed to create pgvector extension; it may already exist or require superuser privileges")
	} else {
		logger.Info().Msg("pgvector extension enabled")
	}

	logger.Info().Msg("Postgres connection established")
	return pool, nil
}
