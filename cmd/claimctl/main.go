package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"claimverifier-backend/config"
	"claimverifier-backend/llm"
	"claimverifier-backend/models"
	"claimverifier-backend/repository"
	"claimverifier-backend/service"
	"claimverifier-backend/storage"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

// app bundles the wired services for one CLI invocation.
type app struct {
	db           *pgxpool.Pool
	extraction   *service.ExtractionService
	indexing     *service.IndexService
	retrieval    *service.RetrievalService
	verification *service.VerificationService
	claims       *repository.ClaimRepository
	verdicts     *repository.VerdictRepository
}

func (a *app) close() {
	if a.db != nil {
		a.db.Close()
	}
}

func buildApp(ctx context.Context) (*app, error) {
	_ = godotenv.Load()

	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()

	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	db, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := db.Ping(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("database unreachable: %w", err)
	}

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
		db.Close()
		return nil, err
	}

	embedder, err := llm.NewGeminiEmbedder(cfg.GeminiAPIKey,
		llm.WithEmbedderRateLimit(cfg.EmbedRatePerSecond),
		llm.WithEmbedderDimensions(cfg.EmbedDimensions),
	)
	if err != nil {
		db.Close()
		return nil, err
	}

	archive, err := storage.NewArchive(storage.Config{
		Type:      storage.ArchiveType(cfg.Storage.Type),
		LocalPath: cfg.Storage.LocalPath,
		S3Bucket:  cfg.Storage.S3Bucket,
		S3Region:  cfg.Storage.S3Region,
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	claimRepo := repository.NewClaimRepository(db)
	chunkRepo := repository.NewFilingChunkRepository(db)
	factRepo := repository.NewFactRepository(db)
	verdictRepo := repository.NewVerdictRepository(db)
	jobRepo := repository.NewVerificationJobRepository(db)

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

	return &app{
		db: db,
		extraction: service.NewExtractionService(provider, claimRepo,
			service.WithExtractionWorkers(cfg.Workers),
			service.WithMinConfidence(cfg.MinConfidence),
			service.WithExtractionLogger(logger),
		),
		indexing: service.NewIndexService(chunkRepo, factRepo, embedder,
			service.WithIndexWorkers(cfg.Workers),
			service.WithIndexChunker(service.NewChunker(cfg.MaxChunkChars)),
			service.WithIndexArchive(archive),
			service.WithIndexLogger(logger),
		),
		retrieval: retrieval,
		verification: service.NewVerificationService(provider, comparator, retrieval, claimRepo, verdictRepo,
			service.WithVerificationWorkers(cfg.Workers),
			service.WithVerificationJobs(jobRepo),
			service.WithVerificationLogger(logger),
		),
		claims:   claimRepo,
		verdicts: verdictRepo,
	}, nil
}

func printJSON(v interface{}) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

func readJSONFile(path string, v interface{}) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return nil
}

func parseScopeArgs(args []string) (service.Scope, error) {
	year, err := strconv.Atoi(args[1])
	if err != nil {
		return service.Scope{}, fmt.Errorf("invalid year %q", args[1])
	}
	quarter, err := strconv.Atoi(args[2])
	if err != nil || quarter < 1 || quarter > 4 {
		return service.Scope{}, fmt.Errorf("invalid quarter %q", args[2])
	}
	return service.Scope{Ticker: args[0], Year: year, Quarter: quarter}, nil
}

func main() {
	root := &cobra.Command{
		Use:           "claimctl",
		Short:         "Verify earnings-call claims against official filings",
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	root.AddCommand(&cobra.Command{
		Use:   "extract <transcript.json>",
		Short: "Extract quantitative claims from an earnings-call transcript",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var transcript models.Transcript
			if err := readJSONFile(args[0], &transcript); err != nil {
				return err
			}

			a, err := buildApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.close()

			result, err := a.extraction.ExtractTranscript(cmd.Context(), &transcript)
			if err != nil {
				return err
			}
			return printJSON(result)
		},
	})

	root.AddCommand(&cobra.Command{
		Use:   "index <filing.json>",
		Short: "Index a filing document: facts, chunks, embeddings",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var doc models.FilingDocument
			if err := readJSONFile(args[0], &doc); err != nil {
				return err
			}

			a, err := buildApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.close()

			stats, err := a.indexing.IndexFiling(cmd.Context(), &doc)
			if err != nil {
				return err
			}
			return printJSON(stats)
		},
	})

	root.AddCommand(&cobra.Command{
		Use:   "ingest <dir> <ticker> <year> <quarter>",
		Short: "Index the filing and extract transcript claims for a scope from a document directory",
		Long: `Reads <dir>/<ticker>/<year>/Q<quarter>/filing.json and transcript.json.
A missing document is skipped; at least one must exist.`,
		Args: cobra.ExactArgs(4),
		RunE: func(cmd *cobra.Command, args []string) error {
			scope, err := parseScopeArgs(args[1:])
			if err != nil {
				return err
			}
			source := service.NewFileSource(args[0])

			a, err := buildApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.close()

			out := map[string]interface{}{}
			found := 0

			if doc, err := source.FetchFiling(cmd.Context(), scope.Ticker, scope.Year, scope.Quarter); err == nil {
				stats, err := a.indexing.IndexFiling(cmd.Context(), doc)
				if err != nil {
					return err
				}
				out["index"] = stats
				found++
			} else if !errors.Is(err, os.ErrNotExist) {
				return err
			}

			if transcript, err := source.FetchTranscript(cmd.Context(), scope.Ticker, scope.Year, scope.Quarter); err == nil {
				result, err := a.extraction.ExtractTranscript(cmd.Context(), transcript)
				if err != nil {
					return err
				}
				out["extract"] = result
				found++
			} else if !errors.Is(err, os.ErrNotExist) {
				return err
			}

			if found == 0 {
				return fmt.Errorf("no filing.json or transcript.json found for %s %d Q%d under %s",
					scope.Ticker, scope.Year, scope.Quarter, args[0])
			}
			return printJSON(out)
		},
	})

	root.AddCommand(&cobra.Command{
		Use:   "verify <claim-id>",
		Short: "Verify a single claim and print the verdict",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid claim ID %q", args[0])
			}

			a, err := buildApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.close()

			verdict, err := a.verification.VerifyClaim(cmd.Context(), id)
			if err != nil {
				return err
			}
			return printJSON(verdict)
		},
	})

	root.AddCommand(&cobra.Command{
		Use:   "batch <ticker> <year> <quarter>",
		Short: "Verify every claim for a company quarter",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			scope, err := parseScopeArgs(args)
			if err != nil {
				return err
			}

			a, err := buildApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.close()

			result, err := a.verification.ProcessBatch(cmd.Context(), scope)
			if err != nil {
				return err
			}
			return printJSON(result)
		},
	})

	root.AddCommand(&cobra.Command{
		Use:   "verdicts <ticker> <year> <quarter>",
		Short: "List stored verdicts for a company quarter",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			scope, err := parseScopeArgs(args)
			if err != nil {
				return err
			}

			a, err := buildApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.close()

			verdicts, err := a.verdicts.ListByScope(cmd.Context(), scope.Ticker, scope.Year, scope.Quarter)
			if err != nil {
				return err
			}
			return printJSON(verdicts)
		},
	})

	root.AddCommand(&cobra.Command{
		Use:   "search <ticker> <year> <quarter> <query>",
		Short: "Run a hybrid evidence search over indexed filing chunks",
		Args:  cobra.ExactArgs(4),
		RunE: func(cmd *cobra.Command, args []string) error {
			scope, err := parseScopeArgs(args[:3])
			if err != nil {
				return err
			}

			a, err := buildApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.close()

			candidates, err := a.retrieval.Search(cmd.Context(), scope, args[3])
			if err != nil {
				return err
			}
			return printJSON(candidates)
		},
	})

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}
