package domain

// Metadata keys recognized by the core. The ingestion pipeline owns the full
// metadata schema; the core only reads these.
const (
	MetaSource  = "source"
	MetaPage    = "page"
	MetaSection = "section"
)

// Chunk is an immutable unit of indexed text produced by the ingestion
// pipeline. Read-only to the core.
type Chunk struct {
	ID       string            `json:"id"`
	Text     string            `json:"text"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

func (c Chunk) Source() string {
	if c.Metadata == nil {
		return ""
	}
	return c.Metadata[MetaSource]
}

// ScoredChunk carries the per-list and fused relevance of one chunk within a
// single search call. Fused scores are not comparable across calls.
type ScoredChunk struct {
	Chunk
	SemanticScore float64 `json:"semantic_score"`
	KeywordScore  float64 `json:"keyword_score"`
	FusedScore    float64 `json:"fused_score"`
	Rank          int     `json:"rank"`
}

// SemanticHit is a raw nearest-neighbor result from the vector service.
// Distance semantics are collaborator-defined; the engine converts to an
// increasing-is-better similarity before fusion.
type SemanticHit struct {
	Chunk
	Distance float64
}

// KeywordHit is a raw BM25 result from the in-process keyword index.
type KeywordHit struct {
	Chunk
	Score float64
}

// SearchFilter restricts semantic candidates by metadata equality.
type SearchFilter struct {
	Source  string
	Section string
}

func (f SearchFilter) Empty() bool {
	return f.Source == "" && f.Section == ""
}
