package usecase

import (
	"fmt"
	"strings"

	"github.com/inptlabs/edurag/internal/core/domain"
)

// System prompts and templates are French: the assistant serves French-speaking
// engineering students over a French document corpus.
const systemPrompt = `Tu es un assistant pédagogique pour les étudiants de l'INPT.
Tu réponds uniquement à partir des documents de cours fournis.
Si les documents ne contiennent pas la réponse, dis-le clairement.
Cite tes sources avec le format [Source: nom_du_document].`

const qaTemplate = `Contexte extrait des documents de cours :

%s

Question de l'étudiant : %s

Réponds en français, de façon claire et structurée, en t'appuyant uniquement sur le contexte ci-dessus. Termine par les sources utilisées au format [Source: nom_du_document].`

const conversationTemplate = `Contexte extrait des documents de cours :

%s

Historique de la conversation :
%s

Question de suivi de l'étudiant : %s

Réponds en français en tenant compte de l'historique, en t'appuyant uniquement sur le contexte ci-dessus. Termine par les sources utilisées au format [Source: nom_du_document].`

// buildPrompt assembles the final prompt from the retained chunks and, for
// follow-up questions, the bounded conversation history. The context block is
// budget-limited: chunks are added best-first and the first chunk that would
// overflow maxContextLength is dropped along with everything after it.
func buildPrompt(
	question string,
	chunks []domain.ScoredChunk,
	history []domain.ConversationTurn,
	followUp bool,
	maxContextLength int,
) string {
	context := buildContextBlock(chunks, maxContextLength)
	if followUp && len(history) > 0 {
		return fmt.Sprintf(conversationTemplate, context, formatHistory(history), question)
	}
	return fmt.Sprintf(qaTemplate, context, question)
}

func buildContextBlock(chunks []domain.ScoredChunk, maxContextLength int) string {
	var b strings.Builder
	for i, chunk := range chunks {
		header := fmt.Sprintf("[Document %d: %s", i+1, chunk.Source())
		if page, ok := chunk.Metadata[domain.MetaPage]; ok && page != "" {
			header += ", page " + page
		}
		header += "]"

		entry := header + "\n" + chunk.Text + "\n\n"
		if maxContextLength > 0 && b.Len()+len(entry) > maxContextLength {
			break
		}
		b.WriteString(entry)
	}
	return strings.TrimRight(b.String(), "\n")
}

func formatHistory(history []domain.ConversationTurn) string {
	lines := make([]string, 0, len(history))
	for _, turn := range history {
		label := "Étudiant"
		if strings.EqualFold(turn.Role, "assistant") {
			label = "Assistant"
		}
		lines = append(lines, label+": "+turn.Content)
	}
	return strings.Join(lines, "\n")
}
