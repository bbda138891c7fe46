// Package bm25 implements the in-process keyword index: a BM25-scored
// inverted index over the chunk corpus. The whole index is an immutable
// snapshot swapped behind an atomic pointer, so many concurrent readers run
// lock-free while bulk rebuilds stay exclusive and atomic.
package bm25

import (
	"math"
	"sort"
	"sync/atomic"

	"github.com/inptlabs/edurag/internal/core/domain"
)

const (
	k1 = 1.2
	b  = 0.75
)

type posting struct {
	doc int
	tf  int
}

// snapshot is a fully-built, immutable index state. Readers never observe a
// partially rebuilt structure: Index builds a fresh snapshot off to the side
// and publishes it in one pointer store.
type snapshot struct {
	chunks    []domain.Chunk
	postings  map[string][]posting
	docLen    []int
	avgDocLen float64
}

type Index struct {
	current atomic.Pointer[snapshot]
}

func New() *Index {
	idx := &Index{}
	idx.current.Store(&snapshot{postings: map[string][]posting{}})
	return idx
}

// Index rebuilds the whole structure from the given corpus and swaps it in
// atomically. Bulk, infrequent, exclusive-writer operation.
func (idx *Index) Index(chunks []domain.Chunk) {
	next := &snapshot{
		chunks:   make([]domain.Chunk, len(chunks)),
		postings: make(map[string][]posting, len(chunks)*8),
		docLen:   make([]int, len(chunks)),
	}
	copy(next.chunks, chunks)

	totalLen := 0
	for doc, chunk := range next.chunks {
		tokens := Tokenize(chunk.Text)
		next.docLen[doc] = len(tokens)
		totalLen += len(tokens)

		tf := make(map[string]int, len(tokens))
		for _, token := range tokens {
			tf[token]++
		}
		for token, freq := range tf {
			next.postings[token] = append(next.postings[token], posting{doc: doc, tf: freq})
		}
	}
	if len(next.chunks) > 0 {
		next.avgDocLen = float64(totalLen) / float64(len(next.chunks))
	}

	idx.current.Store(next)
}

// Search scores every document containing at least one query token and
// returns the topK positive-scoring hits, best first. An index that was never
// built returns nil.
func (idx *Index) Search(query string, topK int) []domain.KeywordHit {
	snap := idx.current.Load()
	if len(snap.chunks) == 0 || topK <= 0 {
		return nil
	}

	tokens := Tokenize(query)
	if len(tokens) == 0 {
		return nil
	}

	scores := make(map[int]float64, 64)
	n := float64(len(snap.chunks))
	for _, token := range tokens {
		plist := snap.postings[token]
		if len(plist) == 0 {
			continue
		}
		df := float64(len(plist))
		idf := math.Log(1.0 + (n-df+0.5)/(df+0.5))
		for _, p := range plist {
			tf := float64(p.tf)
			norm := k1 * (1.0 - b + b*float64(snap.docLen[p.doc])/snap.avgDocLen)
			scores[p.doc] += idf * (tf * (k1 + 1.0)) / (tf + norm)
		}
	}
	if len(scores) == 0 {
		return nil
	}

	docs := make([]int, 0, len(scores))
	for doc, score := range scores {
		if score > 0 {
			docs = append(docs, doc)
		}
	}
	sort.Slice(docs, func(i, j int) bool {
		if scores[docs[i]] != scores[docs[j]] {
			return scores[docs[i]] > scores[docs[j]]
		}
		return snap.chunks[docs[i]].ID < snap.chunks[docs[j]].ID
	})
	if len(docs) > topK {
		docs = docs[:topK]
	}

	out := make([]domain.KeywordHit, 0, len(docs))
	for _, doc := range docs {
		out = append(out, domain.KeywordHit{Chunk: snap.chunks[doc], Score: scores[doc]})
	}
	return out
}

// Size reports the number of indexed chunks in the current snapshot.
func (idx *Index) Size() int {
	return len(idx.current.Load().chunks)
}
