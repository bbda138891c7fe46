package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/inptlabs/edurag/internal/config"
	"github.com/inptlabs/edurag/internal/core/ports"
	"github.com/inptlabs/edurag/internal/core/usecase"
	"github.com/inptlabs/edurag/internal/infrastructure/index/bm25"
	"github.com/inptlabs/edurag/internal/infrastructure/llm/ollama"
	"github.com/inptlabs/edurag/internal/infrastructure/queue/nats"
	"github.com/inptlabs/edurag/internal/infrastructure/repository/postgres"
	"github.com/inptlabs/edurag/internal/infrastructure/resilience"
	"github.com/inptlabs/edurag/internal/infrastructure/vector/chroma"
	"github.com/inptlabs/edurag/internal/observability/metrics"
)

type App struct {
	Config config.Config

	RespondUC     *usecase.RespondUseCase
	SearchUC      *usecase.HybridSearchUseCase
	ReindexUC     *usecase.ReindexUseCase
	Conversations ports.ConversationStore
	Queue         ports.MessageQueue
	Metrics       *metrics.HTTPServerMetrics

	// Probes feed the readiness endpoint, keyed by collaborator name.
	Probes map[string]func(context.Context) error

	Ollama *ollama.Client
	Chroma *chroma.Client

	logger  *slog.Logger
	closeFn func()
}

func New(ctx context.Context, cfg config.Config, logger *slog.Logger) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}

	tuning, err := config.LoadTuning(cfg.TuningPath)
	if err != nil {
		return nil, fmt.Errorf("load tuning: %w", err)
	}

	db, err := postgres.Open(ctx, cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	conversations := postgres.NewConversationRepository(db)
	chunkRepo := postgres.NewChunkRepository(db)

	executor := resilience.NewExecutor(resilience.DefaultPolicy())

	queue, err := nats.NewWithOptions(cfg.NATSURL, cfg.NATSSubject, nats.Options{
		ResilienceExecutor: executor,
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init message queue: %w", err)
	}

	ollamaClient := ollama.New(cfg.OllamaURL, cfg.OllamaModel, time.Duration(cfg.OllamaTimeoutSeconds)*time.Second)
	chromaClient := chroma.New(cfg.ChromaURL, cfg.ChromaCollection, executor)
	keywordIndex := bm25.New()

	searchUC, err := usecase.NewHybridSearchUseCase(chromaClient, keywordIndex, cfg.SemanticWeight, cfg.KeywordWeight)
	if err != nil {
		queue.Close()
		_ = db.Close()
		return nil, fmt.Errorf("init hybrid search: %w", err)
	}

	respondUC := usecase.NewRespondUseCase(
		searchUC,
		ollamaClient,
		conversations,
		respondConfig(cfg, tuning),
		logger,
	)
	reindexUC := usecase.NewReindexUseCase(chunkRepo, searchUC, queue, logger)

	return &App{
		Config:        cfg,
		RespondUC:     respondUC,
		SearchUC:      searchUC,
		ReindexUC:     reindexUC,
		Conversations: conversations,
		Queue:         queue,
		Metrics:       metrics.NewHTTPServerMetrics("edurag-api"),
		Probes: map[string]func(context.Context) error{
			"ollama": ollamaClient.Healthy,
			"chroma": chromaClient.Healthy,
			"postgres": func(ctx context.Context) error {
				return db.PingContext(ctx)
			},
		},
		Ollama: ollamaClient,
		Chroma: chromaClient,
		logger: logger,
		closeFn: func() {
			queue.Close()
			_ = db.Close()
		},
	}, nil
}

// WarmIndex builds the first keyword index snapshot from the persisted
// corpus. Failure is not fatal: the engine serves semantic-only results until
// a rebuild succeeds.
func (a *App) WarmIndex(ctx context.Context) {
	started := time.Now()
	count, err := a.ReindexUC.Rebuild(ctx)
	if err != nil {
		a.logger.Warn("initial_index_build_failed", "error", err)
		a.Metrics.RecordReindex("edurag-api", "startup", "error", 0, time.Since(started))
		return
	}
	a.Metrics.RecordReindex("edurag-api", "startup", "ok", count, time.Since(started))
}

// RunSubscriber blocks on the corpus-updated subscription until ctx is
// cancelled, rebuilding the local index on every event.
func (a *App) RunSubscriber(ctx context.Context) error {
	return a.Queue.SubscribeCorpusUpdated(ctx, func(ctx context.Context) error {
		started := time.Now()
		if err := a.ReindexUC.RebuildLocal(ctx); err != nil {
			a.Metrics.RecordReindex("edurag-api", "queue", "error", 0, time.Since(started))
			return err
		}
		a.Metrics.RecordReindex("edurag-api", "queue", "ok", 0, time.Since(started))
		return nil
	})
}

func (a *App) Close() {
	if a.closeFn != nil {
		a.closeFn()
	}
}

func respondConfig(cfg config.Config, tuning config.Tuning) usecase.RespondConfig {
	confidence := usecase.DefaultConfidenceTuning()
	if tuning.Confidence.RetrievalWeight != nil {
		confidence.RetrievalWeight = *tuning.Confidence.RetrievalWeight
	}
	if tuning.Confidence.LengthWeight != nil {
		confidence.LengthWeight = *tuning.Confidence.LengthWeight
	}
	if tuning.Confidence.CitationWeight != nil {
		confidence.CitationWeight = *tuning.Confidence.CitationWeight
	}
	if tuning.Confidence.HedgingPenalty != nil {
		confidence.HedgingPenalty = *tuning.Confidence.HedgingPenalty
	}
	if len(tuning.Confidence.HedgingPhrases) > 0 {
		confidence.HedgingPhrases = tuning.Confidence.HedgingPhrases
	}

	messages := usecase.DefaultTerminalMessages()
	if tuning.Messages.NoContext != "" {
		messages.NoContext = tuning.Messages.NoContext
	}
	if tuning.Messages.LowConfidence != "" {
		messages.LowConfidence = tuning.Messages.LowConfidence
	}
	if tuning.Messages.Error != "" {
		messages.Error = tuning.Messages.Error
	}

	return usecase.RespondConfig{
		MinConfidence:    cfg.MinConfidence,
		MaxSources:       cfg.MaxSources,
		TopKRetrieval:    cfg.TopKRetrieval,
		MaxContextLength: cfg.MaxContextLength,
		Temperature:      cfg.LLMTemperature,
		MaxTokens:        cfg.LLMMaxTokens,
		HistoryWindow:    cfg.ConversationHistoryWindow,
		Timeout:          time.Duration(cfg.OllamaTimeoutSeconds+10) * time.Second,
		Confidence:       confidence,
		Messages:         messages,
	}
}
