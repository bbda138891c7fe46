package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/inptlabs/edurag/internal/core/domain"
	"github.com/inptlabs/edurag/internal/core/ports"
)

const weightTolerance = 0.01

// HybridSearchUseCase combines the semantic index and the in-process keyword
// index into one ranked, deduplicated candidate list per question.
type HybridSearchUseCase struct {
	semantic ports.SemanticIndex
	keyword  ports.KeywordIndex

	semanticWeight float64
	keywordWeight  float64
}

// NewHybridSearchUseCase validates weights at construction: they must be
// non-negative and sum to 1 within tolerance. Violations are configuration
// errors, never query-time conditions.
func NewHybridSearchUseCase(
	semantic ports.SemanticIndex,
	keyword ports.KeywordIndex,
	semanticWeight, keywordWeight float64,
) (*HybridSearchUseCase, error) {
	if semanticWeight < 0 || keywordWeight < 0 {
		return nil, domain.WrapError(domain.ErrConfiguration, "hybrid search",
			fmt.Errorf("negative weight: semantic=%.3f keyword=%.3f", semanticWeight, keywordWeight))
	}
	if diff := semanticWeight + keywordWeight - 1.0; diff > weightTolerance || diff < -weightTolerance {
		return nil, domain.WrapError(domain.ErrConfiguration, "hybrid search",
			fmt.Errorf("weights must sum to 1.0: semantic=%.3f keyword=%.3f", semanticWeight, keywordWeight))
	}
	return &HybridSearchUseCase{
		semantic:       semantic,
		keyword:        keyword,
		semanticWeight: semanticWeight,
		keywordWeight:  keywordWeight,
	}, nil
}

// IndexDocuments rebuilds the keyword index from the full corpus. Bulk
// administrative operation; not part of the per-question path.
func (uc *HybridSearchUseCase) IndexDocuments(chunks []domain.Chunk) {
	uc.keyword.Index(chunks)
}

type rankedCandidate struct {
	chunk domain.Chunk
	score float64
	rank  int
}

// Search queries both indices concurrently with 2*topK oversampling,
// normalizes each list independently, fuses by chunk identifier and returns
// the topK best candidates. A non-positive topK is a caller bug and is
// rejected as a configuration error. A failing index contributes nothing
// instead of aborting the search; both lists empty yields an empty,
// non-error result.
func (uc *HybridSearchUseCase) Search(
	ctx context.Context,
	query string,
	topK int,
	filter domain.SearchFilter,
) ([]domain.ScoredChunk, error) {
	if topK <= 0 {
		return nil, domain.WrapError(domain.ErrConfiguration, "hybrid search",
			fmt.Errorf("topK must be positive: got %d", topK))
	}
	candidates := 2 * topK

	var (
		wg      sync.WaitGroup
		semHits []domain.SemanticHit
		semErr  error
		kwHits  []domain.KeywordHit
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		semHits, semErr = uc.semantic.Search(ctx, query, candidates, filter)
	}()
	go func() {
		defer wg.Done()
		kwHits = uc.keyword.Search(query, candidates)
	}()
	wg.Wait()

	if semErr != nil {
		slog.Warn("semantic_search_degraded", "error", semErr)
		semHits = nil
	}

	semList := make([]rankedCandidate, 0, len(semHits))
	for i, hit := range semHits {
		// Collaborator-defined distance converted to an
		// increasing-is-better similarity.
		semList = append(semList, rankedCandidate{
			chunk: hit.Chunk,
			score: 1.0 / (1.0 + hit.Distance),
			rank:  i + 1,
		})
	}
	kwList := make([]rankedCandidate, 0, len(kwHits))
	for i, hit := range kwHits {
		kwList = append(kwList, rankedCandidate{chunk: hit.Chunk, score: hit.Score, rank: i + 1})
	}

	return uc.fuse(semList, kwList, topK), nil
}

type fusedCandidate struct {
	chunk domain.ScoredChunk
	// Original per-list ranks for deterministic tie-breaking; 0 means the
	// chunk was absent from that list.
	semRank int
	kwRank  int
}

func (uc *HybridSearchUseCase) fuse(semantic, keyword []rankedCandidate, topK int) []domain.ScoredChunk {
	semNorm := minMaxNormalize(semantic)
	kwNorm := minMaxNormalize(keyword)

	acc := make(map[string]*fusedCandidate, len(semantic)+len(keyword))
	order := make([]string, 0, len(semantic)+len(keyword))

	for i, cand := range semantic {
		entry, ok := acc[cand.chunk.ID]
		if !ok {
			entry = &fusedCandidate{chunk: domain.ScoredChunk{Chunk: cand.chunk}}
			acc[cand.chunk.ID] = entry
			order = append(order, cand.chunk.ID)
		}
		entry.chunk.SemanticScore = cand.score
		entry.chunk.FusedScore += uc.semanticWeight * semNorm[i]
		entry.semRank = cand.rank
	}
	for i, cand := range keyword {
		entry, ok := acc[cand.chunk.ID]
		if !ok {
			entry = &fusedCandidate{chunk: domain.ScoredChunk{Chunk: cand.chunk}}
			acc[cand.chunk.ID] = entry
			order = append(order, cand.chunk.ID)
		}
		entry.chunk.KeywordScore = cand.score
		entry.chunk.FusedScore += uc.keywordWeight * kwNorm[i]
		entry.kwRank = cand.rank
	}

	fused := make([]*fusedCandidate, 0, len(order))
	for _, id := range order {
		fused = append(fused, acc[id])
	}
	sort.SliceStable(fused, func(i, j int) bool {
		if fused[i].chunk.FusedScore != fused[j].chunk.FusedScore {
			return fused[i].chunk.FusedScore > fused[j].chunk.FusedScore
		}
		if ri, rj := rankOrMax(fused[i].semRank), rankOrMax(fused[j].semRank); ri != rj {
			return ri < rj
		}
		if ri, rj := rankOrMax(fused[i].kwRank), rankOrMax(fused[j].kwRank); ri != rj {
			return ri < rj
		}
		return fused[i].chunk.ID < fused[j].chunk.ID
	})

	if len(fused) > topK {
		fused = fused[:topK]
	}
	out := make([]domain.ScoredChunk, 0, len(fused))
	for i, cand := range fused {
		cand.chunk.Rank = i + 1
		out = append(out, cand.chunk)
	}
	return out
}

// minMaxNormalize maps the list's scores to [0,1]. A zero-variance list
// (including empty and single-value degenerate cases) is left untouched
// rather than divided by zero.
func minMaxNormalize(list []rankedCandidate) []float64 {
	out := make([]float64, len(list))
	if len(list) == 0 {
		return out
	}
	minScore, maxScore := list[0].score, list[0].score
	for _, cand := range list[1:] {
		if cand.score < minScore {
			minScore = cand.score
		}
		if cand.score > maxScore {
			maxScore = cand.score
		}
	}
	span := maxScore - minScore
	for i, cand := range list {
		if span > 0 {
			out[i] = (cand.score - minScore) / span
		} else {
			out[i] = cand.score
		}
	}
	return out
}

func rankOrMax(rank int) int {
	if rank <= 0 {
		return int(^uint(0) >> 1)
	}
	return rank
}
