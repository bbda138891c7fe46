package usecase

import (
	"context"
	"errors"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/inptlabs/edurag/internal/core/domain"
	"github.com/inptlabs/edurag/internal/core/ports"
)

type fakeSearcher struct {
	chunks []domain.ScoredChunk
	err    error
}

func (f *fakeSearcher) Search(context.Context, string, int, domain.SearchFilter) ([]domain.ScoredChunk, error) {
	return f.chunks, f.err
}

type fakeGenerator struct {
	answer string
	err    error
	calls  int
}

func (f *fakeGenerator) Generate(context.Context, ports.GenerateRequest) (string, error) {
	f.calls++
	return f.answer, f.err
}

func (f *fakeGenerator) GenerateStream(_ context.Context, _ ports.GenerateRequest, emit func(string) error) error {
	f.calls++
	if f.err != nil {
		return f.err
	}
	for _, token := range strings.SplitAfter(f.answer, " ") {
		if err := emit(token); err != nil {
			return err
		}
	}
	return nil
}

func (f *fakeGenerator) Healthy(context.Context) error { return nil }

type fakeHistoryStore struct {
	turns []domain.ConversationTurn
	err   error
}

func (f *fakeHistoryStore) ContextWindow(context.Context, string, int) ([]domain.ConversationTurn, error) {
	return f.turns, f.err
}

func (f *fakeHistoryStore) AppendTurn(context.Context, string, domain.ConversationTurn) error {
	return nil
}

func testRespondConfig() RespondConfig {
	return RespondConfig{
		MinConfidence:    0.4,
		MaxSources:       3,
		TopKRetrieval:    5,
		MaxContextLength: 2000,
		Temperature:      0.3,
		MaxTokens:        1000,
		HistoryWindow:    10,
		Timeout:          30 * time.Second,
		Confidence:       DefaultConfidenceTuning(),
		Messages:         DefaultTerminalMessages(),
	}
}

func goodChunks() []domain.ScoredChunk {
	return []domain.ScoredChunk{
		scoredChunk("a", "reseaux.pdf", "3", 0.9),
		scoredChunk("b", "iot.pdf", "1", 0.8),
	}
}

func longAnswer() string {
	return strings.Repeat("MQTT est un protocole de messagerie publish-subscribe. ", 5) +
		"[Source: reseaux.pdf]"
}

func TestRespondSuccess(t *testing.T) {
	gen := &fakeGenerator{answer: longAnswer()}
	uc := NewRespondUseCase(
		&fakeSearcher{chunks: goodChunks()},
		gen,
		&fakeHistoryStore{},
		testRespondConfig(),
		nil,
	)

	resp := uc.Respond(context.Background(), domain.AskRequest{
		ConversationID: "c1",
		Question:       "Qu'est-ce que MQTT ?",
	})

	if resp.Outcome != domain.OutcomeSuccess {
		t.Fatalf("expected success, got %s (answer: %s)", resp.Outcome, resp.Answer)
	}
	if resp.Confidence < 0.4 || resp.Confidence > 1.0 {
		t.Fatalf("confidence out of expected range: %f", resp.Confidence)
	}
	if len(resp.Sources) != 2 {
		t.Fatalf("expected 2 sources, got %d", len(resp.Sources))
	}
	if resp.Metadata["num_chunks_retrieved"] != 2 || resp.Metadata["num_chunks_used"] != 2 {
		t.Fatalf("chunk accounting wrong: %+v", resp.Metadata)
	}
	if resp.Metadata["has_conversation_history"] != false {
		t.Fatalf("expected no history flag, got %+v", resp.Metadata)
	}
	if gen.calls != 1 {
		t.Fatalf("generation must be single-attempt, got %d calls", gen.calls)
	}
}

func TestRespondNoContext(t *testing.T) {
	gen := &fakeGenerator{answer: "ne doit pas être appelé"}
	uc := NewRespondUseCase(&fakeSearcher{}, gen, &fakeHistoryStore{}, testRespondConfig(), nil)

	resp := uc.Respond(context.Background(), domain.AskRequest{Question: "Question hors corpus ?"})
	if resp.Outcome != domain.OutcomeNoContext {
		t.Fatalf("expected no_context, got %s", resp.Outcome)
	}
	if gen.calls != 0 {
		t.Fatalf("no-context terminal must not call the generator")
	}
	if resp.Confidence != 0.0 {
		t.Fatalf("expected confidence 0.0, got %f", resp.Confidence)
	}
	if resp.Answer == "" || len(resp.Sources) != 0 {
		t.Fatalf("malformed terminal response: %+v", resp)
	}
}

func TestRespondLowConfidenceWhenAllChunksFiltered(t *testing.T) {
	// Retrieval found something, but nothing cleared the score threshold:
	// that is the low-confidence terminal, not no-context.
	gen := &fakeGenerator{answer: "ne doit pas être appelé"}
	uc := NewRespondUseCase(
		&fakeSearcher{chunks: []domain.ScoredChunk{
			scoredChunk("a", "reseaux.pdf", "3", 0.2),
			scoredChunk("b", "iot.pdf", "1", 0.1),
		}},
		gen,
		&fakeHistoryStore{},
		testRespondConfig(),
		nil,
	)

	resp := uc.Respond(context.Background(), domain.AskRequest{Question: "Question marginale ?"})
	if resp.Outcome != domain.OutcomeLowConfidence {
		t.Fatalf("expected low_confidence, got %s", resp.Outcome)
	}
	if gen.calls != 0 {
		t.Fatalf("low-confidence terminal must not call the generator")
	}
	if resp.Confidence != lowConfidenceScore {
		t.Fatalf("low-confidence terminal reports the fixed score, got %f", resp.Confidence)
	}
	if len(resp.Sources) != 0 {
		t.Fatalf("low-confidence terminal must not cite sources: %+v", resp.Sources)
	}
	if resp.Metadata["num_chunks_retrieved"] != 2 || resp.Metadata["num_chunks_used"] != 0 {
		t.Fatalf("chunk accounting wrong: %+v", resp.Metadata)
	}
}

func TestRespondGenerationErrorTerminal(t *testing.T) {
	uc := NewRespondUseCase(
		&fakeSearcher{chunks: goodChunks()},
		&fakeGenerator{err: errors.New("ollama: connection refused")},
		&fakeHistoryStore{},
		testRespondConfig(),
		nil,
	)

	resp := uc.Respond(context.Background(), domain.AskRequest{Question: "Qu'est-ce que MQTT ?"})
	if resp.Outcome != domain.OutcomeError {
		t.Fatalf("expected error terminal, got %s", resp.Outcome)
	}
	if resp.Confidence != 0.0 {
		t.Fatalf("expected confidence 0.0, got %f", resp.Confidence)
	}
	if resp.Metadata["error"] != "ollama: connection refused" {
		t.Fatalf("error text missing from metadata: %+v", resp.Metadata)
	}
	if !strings.Contains(resp.Answer, "ollama: connection refused") {
		t.Fatalf("error text must be embedded in the answer: %s", resp.Answer)
	}
	if !strings.Contains(resp.Answer, "Une erreur s'est produite") {
		t.Fatalf("answer must keep the fixed message around the error: %s", resp.Answer)
	}
}

func TestRespondRetrievalErrorTerminal(t *testing.T) {
	uc := NewRespondUseCase(
		&fakeSearcher{err: errors.New("index corrompu")},
		&fakeGenerator{},
		&fakeHistoryStore{},
		testRespondConfig(),
		nil,
	)

	resp := uc.Respond(context.Background(), domain.AskRequest{Question: "Question ?"})
	if resp.Outcome != domain.OutcomeError {
		t.Fatalf("expected error terminal, got %s", resp.Outcome)
	}
}

func TestRespondSuccessKeepsLowComputedConfidence(t *testing.T) {
	// A completed generation is a success even when the computed confidence
	// lands under the retrieval threshold: the answer is delivered with its
	// honest score, never swapped for a canned message.
	uc := NewRespondUseCase(
		&fakeSearcher{chunks: []domain.ScoredChunk{scoredChunk("a", "reseaux.pdf", "3", 0.45)}},
		&fakeGenerator{answer: "Réponse."},
		&fakeHistoryStore{},
		testRespondConfig(),
		nil,
	)

	resp := uc.Respond(context.Background(), domain.AskRequest{Question: "Question difficile ?"})
	if resp.Outcome != domain.OutcomeSuccess {
		t.Fatalf("expected success, got %s", resp.Outcome)
	}
	if resp.Answer != "Réponse." {
		t.Fatalf("generated answer must be delivered, got %s", resp.Answer)
	}
	// 0.6*0.45 retrieval + 0.3*(8/200) length, no citation, no hedging.
	want := 0.282
	if math.Abs(resp.Confidence-want) > 1e-9 {
		t.Fatalf("expected confidence %f, got %f", want, resp.Confidence)
	}
}

func TestRespondConfidenceScoredOverAllRetrieved(t *testing.T) {
	// The weak chunk is filtered out of the prompt but still weighs on the
	// confidence: filtering selects context, not evidence.
	uc := NewRespondUseCase(
		&fakeSearcher{chunks: []domain.ScoredChunk{
			scoredChunk("a", "reseaux.pdf", "3", 0.9),
			scoredChunk("b", "iot.pdf", "1", 0.3),
		}},
		&fakeGenerator{answer: longAnswer()},
		&fakeHistoryStore{},
		testRespondConfig(),
		nil,
	)

	resp := uc.Respond(context.Background(), domain.AskRequest{Question: "Qu'est-ce que MQTT ?"})
	if resp.Outcome != domain.OutcomeSuccess {
		t.Fatalf("expected success, got %s", resp.Outcome)
	}
	if resp.Metadata["num_chunks_retrieved"] != 2 || resp.Metadata["num_chunks_used"] != 1 {
		t.Fatalf("chunk accounting wrong: %+v", resp.Metadata)
	}
	// 0.6*mean(0.9, 0.3) retrieval + 0.3 length + 0.1 citation.
	want := 0.76
	if math.Abs(resp.Confidence-want) > 1e-9 {
		t.Fatalf("expected confidence %f over all retrieved chunks, got %f", want, resp.Confidence)
	}
}

func TestRespondHistoryFailureDegrades(t *testing.T) {
	uc := NewRespondUseCase(
		&fakeSearcher{chunks: goodChunks()},
		&fakeGenerator{answer: longAnswer()},
		&fakeHistoryStore{err: errors.New("postgres indisponible")},
		testRespondConfig(),
		nil,
	)

	resp := uc.Respond(context.Background(), domain.AskRequest{
		ConversationID: "c1",
		Question:       "Qu'est-ce que MQTT ?",
	})
	if resp.Outcome != domain.OutcomeSuccess {
		t.Fatalf("history failure must not block the answer, got %s", resp.Outcome)
	}
	if resp.Metadata["has_conversation_history"] != false {
		t.Fatalf("unavailable history must read as absent: %+v", resp.Metadata)
	}
}

func TestRespondFollowUpUsesHistory(t *testing.T) {
	history := turns(
		"user", "Qu'est-ce que le protocole MQTT ?",
		"assistant", "Un protocole de messagerie léger.",
	)
	uc := NewRespondUseCase(
		&fakeSearcher{chunks: goodChunks()},
		&fakeGenerator{answer: longAnswer()},
		&fakeHistoryStore{turns: history},
		testRespondConfig(),
		nil,
	)

	resp := uc.Respond(context.Background(), domain.AskRequest{
		ConversationID: "c1",
		Question:       "Et pour les capteurs ?",
	})
	if resp.Outcome != domain.OutcomeSuccess {
		t.Fatalf("expected success, got %s", resp.Outcome)
	}
	if resp.Metadata["used_conversation_history"] != true {
		t.Fatalf("follow-up question should use history: %+v", resp.Metadata)
	}
}

func TestRespondStreamEmitsTokens(t *testing.T) {
	uc := NewRespondUseCase(
		&fakeSearcher{chunks: goodChunks()},
		&fakeGenerator{answer: longAnswer()},
		&fakeHistoryStore{},
		testRespondConfig(),
		nil,
	)

	var streamed strings.Builder
	resp := uc.RespondStream(context.Background(), domain.AskRequest{Question: "Qu'est-ce que MQTT ?"},
		func(token string) error {
			streamed.WriteString(token)
			return nil
		})

	if resp.Outcome != domain.OutcomeSuccess {
		t.Fatalf("expected success, got %s", resp.Outcome)
	}
	if postProcess(streamed.String()) != resp.Answer {
		t.Fatalf("streamed tokens do not reassemble into the final answer")
	}
}

func TestRespondStreamEmitsTerminalMessageOnce(t *testing.T) {
	uc := NewRespondUseCase(
		&fakeSearcher{},
		&fakeGenerator{},
		&fakeHistoryStore{},
		testRespondConfig(),
		nil,
	)

	var emits []string
	resp := uc.RespondStream(context.Background(), domain.AskRequest{Question: "Question hors corpus ?"},
		func(token string) error {
			emits = append(emits, token)
			return nil
		})

	if resp.Outcome != domain.OutcomeNoContext {
		t.Fatalf("expected no_context, got %s", resp.Outcome)
	}
	if len(emits) != 1 || emits[0] != DefaultTerminalMessages().NoContext {
		t.Fatalf("terminal message must be emitted whole, once: %v", emits)
	}
}
