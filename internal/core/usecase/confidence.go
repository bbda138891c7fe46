package usecase

import (
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/inptlabs/edurag/internal/core/domain"
)

var (
	citationMarkerPattern = regexp.MustCompile(`\[Source:`)
	whitespacePattern     = regexp.MustCompile(`[ \t]+`)
	blankLinesPattern     = regexp.MustCompile(`\n{3,}`)
)

// ConfidenceTuning holds the scoring weights and the hedging vocabulary. The
// defaults ship in code; deployments override them through the tuning file.
type ConfidenceTuning struct {
	RetrievalWeight float64
	LengthWeight    float64
	CitationWeight  float64
	HedgingPenalty  float64
	HedgingPhrases  []string
}

// DefaultConfidenceTuning returns the hand-tuned production values.
func DefaultConfidenceTuning() ConfidenceTuning {
	return ConfidenceTuning{
		RetrievalWeight: 0.6,
		LengthWeight:    0.3,
		CitationWeight:  0.1,
		HedgingPenalty:  0.2,
		HedgingPhrases: []string{
			"je ne sais pas",
			"je n'ai pas",
			"informations insuffisantes",
			"pas dans les documents",
		},
	}
}

// scoreConfidence estimates how trustworthy the generated answer is, in [0,1].
// Retrieval quality dominates; answer length and an explicit citation marker
// add smaller positive signals, and hedging language subtracts a flat penalty.
func scoreConfidence(answer string, chunks []domain.ScoredChunk, tuning ConfidenceTuning) float64 {
	retrieval := 0.0
	if len(chunks) > 0 {
		top := chunks
		if len(top) > 5 {
			top = top[:5]
		}
		sum := 0.0
		for _, chunk := range top {
			sum += chunk.FusedScore
		}
		retrieval = sum / float64(len(top))
	}

	length := float64(len([]rune(answer))) / 200.0
	if length > 1.0 {
		length = 1.0
	}

	citation := 0.0
	if citationMarkerPattern.MatchString(answer) {
		citation = 1.0
	}

	score := tuning.RetrievalWeight*retrieval + tuning.LengthWeight*length + tuning.CitationWeight*citation

	lower := strings.ToLower(answer)
	for _, phrase := range tuning.HedgingPhrases {
		if strings.Contains(lower, phrase) {
			score -= tuning.HedgingPenalty
			break
		}
	}

	return clamp01(score)
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}

// extractSources groups the retained chunks by source document: distinct page
// numbers in ascending order and the best fused score per source. Sources are
// ordered best-score-first, name ascending on ties, capped at maxSources.
func extractSources(chunks []domain.ScoredChunk, maxSources int) []domain.SourceCitation {
	type group struct {
		pages map[int]struct{}
		score float64
	}
	groups := make(map[string]*group, len(chunks))
	names := make([]string, 0, len(chunks))

	for _, chunk := range chunks {
		source := chunk.Source()
		if source == "" {
			continue
		}
		g, ok := groups[source]
		if !ok {
			g = &group{pages: map[int]struct{}{}}
			groups[source] = g
			names = append(names, source)
		}
		if chunk.FusedScore > g.score {
			g.score = chunk.FusedScore
		}
		if raw, ok := chunk.Metadata[domain.MetaPage]; ok {
			if page, err := strconv.Atoi(raw); err == nil {
				g.pages[page] = struct{}{}
			}
		}
	}

	sort.Slice(names, func(i, j int) bool {
		if groups[names[i]].score != groups[names[j]].score {
			return groups[names[i]].score > groups[names[j]].score
		}
		return names[i] < names[j]
	})
	if maxSources > 0 && len(names) > maxSources {
		names = names[:maxSources]
	}

	out := make([]domain.SourceCitation, 0, len(names))
	for _, name := range names {
		g := groups[name]
		pages := make([]int, 0, len(g.pages))
		for page := range g.pages {
			pages = append(pages, page)
		}
		sort.Ints(pages)
		out = append(out, domain.SourceCitation{Source: name, Pages: pages, Score: g.score})
	}
	return out
}

// postProcess normalizes generator output: trims the edges, collapses runs of
// spaces and tabs, and caps consecutive blank lines at one.
func postProcess(answer string) string {
	answer = whitespacePattern.ReplaceAllString(answer, " ")
	answer = blankLinesPattern.ReplaceAllString(answer, "\n\n")
	return strings.TrimSpace(answer)
}
