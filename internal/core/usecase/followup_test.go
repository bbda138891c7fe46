package usecase

import (
	"testing"

	"github.com/inptlabs/edurag/internal/core/domain"
)

func turns(pairs ...string) []domain.ConversationTurn {
	out := make([]domain.ConversationTurn, 0, len(pairs)/2)
	for i := 0; i+1 < len(pairs); i += 2 {
		out = append(out, domain.ConversationTurn{Role: pairs[i], Content: pairs[i+1]})
	}
	return out
}

func TestDetectFollowUp(t *testing.T) {
	baseHistory := turns(
		"user", "Qu'est-ce que le protocole MQTT ?",
		"assistant", "MQTT est un protocole de messagerie léger pour l'IoT.",
	)

	tests := []struct {
		name     string
		question string
		history  []domain.ConversationTurn
		want     bool
	}{
		{
			name:     "no history is always independent",
			question: "Et pour les capteurs ?",
			history:  nil,
			want:     false,
		},
		{
			name:     "single prior turn is independent",
			question: "Et pour les capteurs ?",
			history:  turns("user", "Qu'est-ce que MQTT ?"),
			want:     false,
		},
		{
			name:     "leading conjunction",
			question: "Et pour les capteurs ?",
			history:  baseHistory,
			want:     true,
		},
		{
			name:     "demonstrative pronoun",
			question: "Comment fonctionne ce mécanisme exactement dans un réseau ?",
			history:  baseHistory,
			want:     true,
		},
		{
			name:     "very short question",
			question: "Pourquoi ?",
			history:  baseHistory,
			want:     true,
		},
		{
			name:     "complete question overrides keyword overlap",
			question: "Qu'est-ce que la sécurité dans le protocole MQTT exactement ?",
			history:  baseHistory,
			want:     false,
		},
		{
			name:     "acronym overlap on short question",
			question: "Avantages MQTT versus CoAP",
			history:  baseHistory,
			want:     true,
		},
		{
			name:     "independent new topic",
			question: "Définir un réseau de neurones convolutif pour la vision",
			history:  baseHistory,
			want:     false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := detectFollowUp(tt.question, tt.history); got != tt.want {
				t.Fatalf("detectFollowUp(%q) = %v, want %v", tt.question, got, tt.want)
			}
		})
	}
}

func TestDetectFollowUpIsPure(t *testing.T) {
	history := turns(
		"user", "Qu'est-ce que le protocole MQTT ?",
		"assistant", "MQTT est un protocole de messagerie léger.",
	)
	first := detectFollowUp("Et pour les capteurs ?", history)
	for i := 0; i < 5; i++ {
		if got := detectFollowUp("Et pour les capteurs ?", history); got != first {
			t.Fatalf("classification changed between identical calls")
		}
	}
}
