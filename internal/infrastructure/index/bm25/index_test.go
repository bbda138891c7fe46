package bm25

import (
	"sync"
	"testing"

	"github.com/inptlabs/edurag/internal/core/domain"
)

func corpus() []domain.Chunk {
	return []domain.Chunk{
		{ID: "c1", Text: "Le protocole MQTT est un protocole de messagerie léger pour l'IoT."},
		{ID: "c2", Text: "Les capteurs IoT transmettent leurs mesures via des réseaux sans fil."},
		{ID: "c3", Text: "La photosynthèse transforme la lumière en énergie chimique."},
	}
}

func TestSearchRanksByRelevance(t *testing.T) {
	idx := New()
	idx.Index(corpus())

	hits := idx.Search("protocole MQTT", 5)
	if len(hits) == 0 {
		t.Fatalf("expected hits for indexed terms")
	}
	if hits[0].ID != "c1" {
		t.Fatalf("expected c1 first, got %s", hits[0].ID)
	}
	for i := 1; i < len(hits); i++ {
		if hits[i].Score > hits[i-1].Score {
			t.Fatalf("hits not sorted by score: %v then %v", hits[i-1].Score, hits[i].Score)
		}
	}
}

func TestSearchNoMatchingTerms(t *testing.T) {
	idx := New()
	idx.Index(corpus())

	if hits := idx.Search("blockchain quantique", 5); len(hits) != 0 {
		t.Fatalf("expected no hits, got %d", len(hits))
	}
}

func TestSearchBeforeIndexBuilt(t *testing.T) {
	idx := New()
	if hits := idx.Search("protocole", 5); hits != nil {
		t.Fatalf("unbuilt index must return nil, got %v", hits)
	}
	if idx.Size() != 0 {
		t.Fatalf("unbuilt index size must be 0, got %d", idx.Size())
	}
}

func TestSearchTopKTruncation(t *testing.T) {
	idx := New()
	idx.Index(corpus())

	hits := idx.Search("IoT réseaux protocole capteurs", 1)
	if len(hits) != 1 {
		t.Fatalf("expected 1 hit with topK=1, got %d", len(hits))
	}
}

func TestIndexReplacesSnapshotAtomically(t *testing.T) {
	idx := New()
	idx.Index(corpus())

	var wg sync.WaitGroup
	stop := make(chan struct{})
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-stop:
				return
			default:
				hits := idx.Search("protocole", 5)
				for _, hit := range hits {
					if hit.ID == "" || hit.Chunk.Text == "" {
						t.Errorf("reader observed partial snapshot: %+v", hit)
						return
					}
				}
			}
		}
	}()

	for i := 0; i < 50; i++ {
		idx.Index(corpus())
	}
	close(stop)
	wg.Wait()

	if idx.Size() != 3 {
		t.Fatalf("expected 3 chunks after rebuilds, got %d", idx.Size())
	}
}

func TestTokenize(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want []string
	}{
		{"lowercase and punctuation", "Le Protocole, MQTT!", []string{"protocole", "mqtt"}},
		{"short tokens dropped", "le de et un protocole", []string{"protocole"}},
		{"accents preserved", "Énergie électrique", []string{"énergie", "électrique"}},
		{"empty input", "", nil},
		{"digits kept", "norme 802 et ipv6", []string{"norme", "802", "ipv6"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Tokenize(tt.in)
			if len(got) != len(tt.want) {
				t.Fatalf("Tokenize(%q) = %v, want %v", tt.in, got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Fatalf("Tokenize(%q)[%d] = %q, want %q", tt.in, i, got[i], tt.want[i])
				}
			}
		})
	}
}
