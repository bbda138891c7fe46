package usecase

import (
	"context"
	"log/slog"
	"time"

	"github.com/inptlabs/edurag/internal/core/domain"
	"github.com/inptlabs/edurag/internal/core/ports"
)

// ReindexUseCase rebuilds the in-process keyword index from the persisted
// chunk corpus and notifies the other replicas over the queue.
type ReindexUseCase struct {
	chunks  ports.ChunkSource
	indexer interface{ IndexDocuments([]domain.Chunk) }
	queue   ports.MessageQueue
	logger  *slog.Logger
}

func NewReindexUseCase(
	chunks ports.ChunkSource,
	indexer interface{ IndexDocuments([]domain.Chunk) },
	queue ports.MessageQueue,
	logger *slog.Logger,
) *ReindexUseCase {
	if logger == nil {
		logger = slog.Default()
	}
	return &ReindexUseCase{chunks: chunks, indexer: indexer, queue: queue, logger: logger}
}

// Rebuild loads the full corpus, rebuilds the keyword index atomically and
// publishes a corpus-updated event. Returns the number of chunks indexed.
func (uc *ReindexUseCase) Rebuild(ctx context.Context) (int, error) {
	started := time.Now()

	chunks, err := uc.chunks.ListChunks(ctx)
	if err != nil {
		return 0, domain.WrapError(domain.ErrRetrievalUnavailable, "reindex", err)
	}
	uc.indexer.IndexDocuments(chunks)

	if uc.queue != nil {
		if err := uc.queue.PublishCorpusUpdated(ctx); err != nil {
			// Local rebuild already succeeded; the event is best-effort.
			uc.logger.Warn("corpus_update_publish_failed", "error", err)
		}
	}

	uc.logger.Info("keyword_index_rebuilt",
		"chunks", len(chunks),
		"duration_ms", time.Since(started).Milliseconds(),
	)
	return len(chunks), nil
}

// RebuildLocal rebuilds the index without republishing; used by the queue
// subscriber so replicas do not amplify each other's events.
func (uc *ReindexUseCase) RebuildLocal(ctx context.Context) error {
	chunks, err := uc.chunks.ListChunks(ctx)
	if err != nil {
		return domain.WrapError(domain.ErrRetrievalUnavailable, "reindex", err)
	}
	uc.indexer.IndexDocuments(chunks)
	uc.logger.Info("keyword_index_rebuilt", "chunks", len(chunks), "trigger", "queue")
	return nil
}
