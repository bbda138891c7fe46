package ports

import (
	"context"

	"github.com/inptlabs/edurag/internal/core/domain"
)

// Searcher is the hybrid retrieval surface consumed by the orchestrator.
type Searcher interface {
	Search(ctx context.Context, query string, topK int, filter domain.SearchFilter) ([]domain.ScoredChunk, error)
}

// Responder turns one question into one response. It never returns an error:
// every failure mode is a terminal state inside the response.
type Responder interface {
	Respond(ctx context.Context, req domain.AskRequest) *domain.RAGResponse
}

// StreamResponder is the token-streaming variant of Responder. Tokens of the
// final answer are pushed through emit as they arrive; the returned response
// carries the full answer and the terminal state, exactly as Respond would.
type StreamResponder interface {
	RespondStream(ctx context.Context, req domain.AskRequest, emit func(token string) error) *domain.RAGResponse
}

// Reindexer rebuilds the keyword index from the persisted corpus.
type Reindexer interface {
	Rebuild(ctx context.Context) (int, error)
}
