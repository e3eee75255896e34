// reindex runs one embedding maintenance pass against the database directly,
// without going through the API server. Run it for one-off rebuilds (e.g.
// after an embedding model change with -full) or from a scheduler to catch
// entities the re-embed queue missed.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	pgxvec "github.com/pgvector/pgvector-go/pgx"

	"github.com/testvault/portal/internal/config"
	"github.com/testvault/portal/internal/embeddings"
	"github.com/testvault/portal/internal/googleai"
	"github.com/testvault/portal/internal/indexer"
	"github.com/testvault/portal/internal/models"
	"github.com/testvault/portal/internal/observability"
	"github.com/testvault/portal/internal/repository"
	"github.com/testvault/portal/pkg/database"
)

const (
	exitSuccess = 0
	exitFailure = 1

	progressInterval = 5 * time.Second
)

// newEmbeddingClient selects the embedding provider from config.
func newEmbeddingClient(ctx context.Context, cfg *config.Config) (embeddings.Client, error) {
	switch cfg.EmbeddingProvider {
	case "openai":
		if cfg.OpenAIAPIKey == "" {
			return nil, fmt.Errorf("embedding provider %q requires OPENAI_API_KEY", cfg.EmbeddingProvider)
		}

		return embeddings.NewOpenAIClient(cfg.OpenAIAPIKey, cfg.EmbeddingModel, cfg.EmbeddingDimensions), nil
	case "google":
		if cfg.GoogleAIAPIKey == "" {
			return nil, fmt.Errorf("embedding provider %q requires GOOGLE_AI_API_KEY", cfg.EmbeddingProvider)
		}

		return googleai.NewClient(ctx, cfg.GoogleAIAPIKey, cfg.EmbeddingDimensions,
			googleai.WithModel(cfg.EmbeddingModel))
	default:
		return nil, fmt.Errorf("unknown embedding provider %q", cfg.EmbeddingProvider)
	}
}

func main() {
	os.Exit(run())
}

func run() int {
	full := flag.Bool("full", false, "regenerate every embedding, not just missing or stale ones")
	flag.Parse()

	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)

		return exitFailure
	}

	observability.SetupLogging(cfg.LogLevel)

	if cfg.EmbeddingProvider == "" {
		slog.Error("EMBEDDING_PROVIDER is required")

		return exitFailure
	}

	db, err := database.NewPostgresPool(ctx, cfg.DatabaseURL, database.WithAfterConnect(pgxvec.RegisterTypes))
	if err != nil {
		slog.Error("Failed to connect to database", "error", err)

		return exitFailure
	}
	defer db.Close()

	embeddingClient, err := newEmbeddingClient(ctx, cfg)
	if err != nil {
		slog.Error("Failed to create embedding client", "error", err)

		return exitFailure
	}

	ix := indexer.New(indexer.Params{
		Entities:     repository.NewEntitiesRepository(db),
		Embedder:     embeddingClient,
		PageSize:     cfg.IndexPageSize,
		SubBatchSize: cfg.IndexSubBatchSize,
	})

	outcome, total, err := ix.Trigger(ctx, *full)
	if err != nil {
		slog.Error("Failed to start indexing run", "error", err)

		return exitFailure
	}

	if outcome == indexer.TriggerNothingToDo {
		fmt.Println("Nothing to do: every embedding is current.")

		return exitSuccess
	}

	slog.Info("indexing run started", "total", total, "full", *full, "model", embeddingClient.Model())

	done := make(chan struct{})
	go func() {
		ix.Wait()
		close(done)
	}()

	ticker := time.NewTicker(progressInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			status := ix.Status()
			fmt.Printf("Processed %d/%d (%.0f%%), %d error(s)\n",
				status.Processed, status.Total, status.PercentComplete(), status.Errors)
		case <-done:
			status := ix.Status()

			if status.Status == models.IndexingFailed {
				slog.Error("indexing run failed", "message", status.Message)

				return exitFailure
			}

			fmt.Printf("Done: %d processed, %d error(s).\n", status.Processed, status.Errors)

			return exitSuccess
		}
	}
}
