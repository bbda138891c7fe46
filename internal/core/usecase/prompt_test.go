package usecase

import (
	"strings"
	"testing"

	"github.com/inptlabs/edurag/internal/core/domain"
)

func TestBuildPromptStandaloneQuestion(t *testing.T) {
	chunks := []domain.ScoredChunk{
		scoredChunk("a", "reseaux.pdf", "3", 0.9),
	}
	got := buildPrompt("Qu'est-ce que MQTT ?", chunks, nil, false, 2000)

	if !strings.Contains(got, "[Document 1: reseaux.pdf, page 3]") {
		t.Fatalf("context block missing document header:\n%s", got)
	}
	if !strings.Contains(got, "Question de l'étudiant : Qu'est-ce que MQTT ?") {
		t.Fatalf("question missing from prompt:\n%s", got)
	}
	if strings.Contains(got, "Historique") {
		t.Fatalf("standalone prompt must not embed history:\n%s", got)
	}
}

func TestBuildPromptFollowUpEmbedsHistory(t *testing.T) {
	chunks := []domain.ScoredChunk{scoredChunk("a", "iot.pdf", "1", 0.8)}
	history := turns(
		"user", "Qu'est-ce que MQTT ?",
		"assistant", "Un protocole de messagerie léger.",
	)
	got := buildPrompt("Et pour les capteurs ?", chunks, history, true, 2000)

	if !strings.Contains(got, "Historique de la conversation :") {
		t.Fatalf("follow-up prompt missing history block:\n%s", got)
	}
	if !strings.Contains(got, "Étudiant: Qu'est-ce que MQTT ?") {
		t.Fatalf("user turn missing or mislabeled:\n%s", got)
	}
	if !strings.Contains(got, "Assistant: Un protocole de messagerie léger.") {
		t.Fatalf("assistant turn missing or mislabeled:\n%s", got)
	}
	if !strings.Contains(got, "Question de suivi de l'étudiant : Et pour les capteurs ?") {
		t.Fatalf("follow-up question missing:\n%s", got)
	}
}

func TestBuildContextBlockRespectsBudget(t *testing.T) {
	big := domain.ScoredChunk{
		Chunk: domain.Chunk{
			ID:       "big",
			Text:     strings.Repeat("x", 300),
			Metadata: map[string]string{domain.MetaSource: "a.pdf"},
		},
	}
	small := domain.ScoredChunk{
		Chunk: domain.Chunk{
			ID:       "small",
			Text:     "court",
			Metadata: map[string]string{domain.MetaSource: "b.pdf"},
		},
	}

	got := buildContextBlock([]domain.ScoredChunk{big, small}, 330)
	if !strings.Contains(got, "a.pdf") {
		t.Fatalf("first chunk should fit the budget:\n%s", got)
	}
	// The second chunk overflows: it and everything after it are dropped,
	// preserving the best-first ordering.
	if strings.Contains(got, "b.pdf") {
		t.Fatalf("overflowing chunk must be dropped:\n%s", got)
	}
}

func TestBuildContextBlockNoPageMetadata(t *testing.T) {
	chunk := domain.ScoredChunk{
		Chunk: domain.Chunk{
			ID:       "a",
			Text:     "texte",
			Metadata: map[string]string{domain.MetaSource: "cours.pdf"},
		},
	}
	got := buildContextBlock([]domain.ScoredChunk{chunk}, 2000)
	if !strings.Contains(got, "[Document 1: cours.pdf]") {
		t.Fatalf("header without page metadata malformed:\n%s", got)
	}
}
