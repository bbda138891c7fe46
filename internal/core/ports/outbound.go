package ports

import (
	"context"

	"github.com/inptlabs/edurag/internal/core/domain"
)

// SemanticIndex is the external vector similarity service. It owns its own
// persistence and embedding model; the core only consumes nearest-neighbor
// lookups.
type SemanticIndex interface {
	Search(ctx context.Context, query string, n int, filter domain.SearchFilter) ([]domain.SemanticHit, error)
}

// KeywordIndex is the in-process lexical ranking structure. Index replaces the
// whole corpus atomically; readers either see the old snapshot or the new one.
type KeywordIndex interface {
	Index(chunks []domain.Chunk)
	Search(query string, topK int) []domain.KeywordHit
	Size() int
}

// GenerateRequest carries one inference call to the LLM service.
type GenerateRequest struct {
	Prompt      string
	System      string
	Temperature float64
	MaxTokens   int
	Stop        []string
}

// AnswerGenerator is the LLM inference collaborator.
type AnswerGenerator interface {
	Generate(ctx context.Context, req GenerateRequest) (string, error)
	GenerateStream(ctx context.Context, req GenerateRequest, emit func(token string) error) error
	Healthy(ctx context.Context) error
}

// ConversationStore supplies bounded conversation history and records the
// turns produced by the orchestrator. Its persistence format is out of scope.
type ConversationStore interface {
	ContextWindow(ctx context.Context, conversationID string, window int) ([]domain.ConversationTurn, error)
	AppendTurn(ctx context.Context, conversationID string, turn domain.ConversationTurn) error
}

// ChunkSource reads the full chunk corpus written by the ingestion pipeline.
// Used only for bulk keyword-index rebuilds, never on the question path.
type ChunkSource interface {
	ListChunks(ctx context.Context) ([]domain.Chunk, error)
}

// MessageQueue broadcasts corpus-updated events so every replica rebuilds its
// in-process keyword index.
type MessageQueue interface {
	PublishCorpusUpdated(ctx context.Context) error
	SubscribeCorpusUpdated(ctx context.Context, handler func(context.Context) error) error
}
