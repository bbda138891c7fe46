package domain

import "time"

// Outcome is the terminal state the orchestrator reached for one question.
type Outcome string

const (
	OutcomeSuccess       Outcome = "success"
	OutcomeNoContext     Outcome = "no_context"
	OutcomeLowConfidence Outcome = "low_confidence"
	OutcomeError         Outcome = "error"
)

// ConversationTurn is one prior message, ordered oldest-to-newest by the
// conversation store.
type ConversationTurn struct {
	Role      string    `json:"role"` // user | assistant
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// SourceCitation summarizes which chunks of one source document backed the
// answer: distinct page numbers and the best fused score seen in that source.
type SourceCitation struct {
	Source string  `json:"source"`
	Pages  []int   `json:"pages,omitempty"`
	Score  float64 `json:"score"`
}

// RAGResponse is the orchestrator's output for one question. Every terminal
// state produces a well-formed response; Confidence is always in [0,1].
type RAGResponse struct {
	Answer     string           `json:"answer"`
	Sources    []SourceCitation `json:"sources"`
	Confidence float64          `json:"confidence"`
	Chunks     []ScoredChunk    `json:"chunks,omitempty"`
	Outcome    Outcome          `json:"outcome"`
	Metadata   map[string]any   `json:"metadata,omitempty"`
}

// AskRequest is one question plus its explicit conversation identifier; the
// orchestrator holds no ambient session state between questions.
type AskRequest struct {
	ConversationID string       `json:"conversation_id"`
	Question       string       `json:"question"`
	Filter         SearchFilter `json:"-"`
	Temperature    float64      `json:"temperature,omitempty"`
}
