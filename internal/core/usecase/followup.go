package usecase

import (
	"regexp"
	"strings"

	"github.com/inptlabs/edurag/internal/core/domain"
)

// The corpus and its users are French-speaking; the cues below are hand-tuned
// against real student questions.
var (
	followUpCues = []*regexp.Regexp{
		// Demonstrative pronouns. Anchored on a preceding space so the "ce"
		// inside "qu'est-ce que" does not count as a reference.
		regexp.MustCompile(`(?i)(^|[\s,])(cela|ça|ce|cette|cet|ces)\b`),
		// Personal pronouns in leading position.
		regexp.MustCompile(`(?i)^(il|elle|ils|elles|le|la|les|lui|leur)\b`),
		// Leading conjunctions and continuations.
		regexp.MustCompile(`(?i)^(et|mais|donc|alors|aussi|également)\b`),
		// Direct references.
		regexp.MustCompile(`(?i)\b(même|aussi|également|pareil)\b`),
		// "Et pour..." / "Et le..."
		regexp.MustCompile(`(?i)^et\s+(pour|le|la|les)\b`),
		// "Plus de détails" / "davantage sur"
		regexp.MustCompile(`(?i)\b(plus|davantage|encore|autre)\s+(de|d'|sur)\b`),
	}

	completeQuestionPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\b(qu'est-ce que|c'est quoi|quelle est|quel est|quels sont|quelles sont)\b`),
		regexp.MustCompile(`(?i)\b(comment|pourquoi|où|quand|combien)\b.*\b(le|la|les|un|une|des)\b`),
		regexp.MustCompile(`(?i)\b(expliquer|définir|décrire|présenter)\b.*\b(le|la|les)\b`),
	}

	// Capitalized terms and acronyms shared with the previous user turn
	// signal the question leans on that turn's topic.
	keywordPattern = regexp.MustCompile(`\b[A-Z]{2,}\b|\b[A-Z][a-z]+\b`)
)

// followUpRule is one pure predicate. decided=false passes to the next rule;
// decided=true returns followUp as the classification.
type followUpRule func(question string, history []domain.ConversationTurn) (decided, followUp bool)

var followUpRules = []followUpRule{
	ruleRegexCues,
	ruleCompleteQuestion,
	ruleKeywordOverlap,
}

// detectFollowUp classifies the question as history-dependent or
// self-contained by evaluating the rules in priority order, returning on the
// first match. With fewer than two prior turns it is always independent.
// The decision only selects the prompt template; retrieval is unaffected.
func detectFollowUp(question string, history []domain.ConversationTurn) bool {
	if len(history) < 2 {
		return false
	}
	for _, rule := range followUpRules {
		if decided, followUp := rule(question, history); decided {
			return followUp
		}
	}
	return false
}

func ruleRegexCues(question string, _ []domain.ConversationTurn) (bool, bool) {
	trimmed := strings.TrimSpace(question)
	for _, cue := range followUpCues {
		if cue.MatchString(trimmed) {
			return true, true
		}
	}
	tokens := strings.Fields(strings.TrimSuffix(trimmed, "?"))
	if len(tokens) <= 2 && len(tokens) > 0 {
		return true, true
	}
	return false, false
}

// ruleCompleteQuestion runs before the keyword-overlap rule on purpose: a
// long, well-formed interrogative is independent even when it shares
// capitalized keywords with the previous turn.
func ruleCompleteQuestion(question string, _ []domain.ConversationTurn) (bool, bool) {
	if len(strings.Fields(question)) <= 6 {
		return false, false
	}
	for _, pattern := range completeQuestionPatterns {
		if pattern.MatchString(question) {
			return true, false
		}
	}
	return false, false
}

func ruleKeywordOverlap(question string, history []domain.ConversationTurn) (bool, bool) {
	lastUser := ""
	for i := len(history) - 1; i >= 0; i-- {
		if strings.EqualFold(history[i].Role, "user") {
			lastUser = history[i].Content
			break
		}
	}
	if lastUser == "" {
		return false, false
	}

	previous := keywordSet(lastUser)
	current := keywordSet(question)
	for keyword := range current {
		if _, ok := previous[keyword]; ok {
			return true, true
		}
	}
	return false, false
}

func keywordSet(s string) map[string]struct{} {
	matches := keywordPattern.FindAllString(s, -1)
	out := make(map[string]struct{}, len(matches))
	for _, m := range matches {
		out[m] = struct{}{}
	}
	return out
}
