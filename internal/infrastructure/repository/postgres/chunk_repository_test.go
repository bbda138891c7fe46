package postgres

import (
	"context"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/inptlabs/edurag/internal/core/domain"
)

func TestListChunksBuildsMetadata(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	rows := sqlmock.NewRows([]string{"id", "content", "source", "page", "section"}).
		AddRow("c1", "Le protocole MQTT...", "reseaux.pdf", "3", "Protocoles").
		AddRow("c2", "Sans métadonnées", "", "", "")
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, content")).WillReturnRows(rows)

	repo := NewChunkRepository(db)
	chunks, err := repo.ListChunks(context.Background())
	if err != nil {
		t.Fatalf("list chunks: %v", err)
	}
	if len(chunks) != 2 {
		t.Fatalf("expected 2 chunks, got %d", len(chunks))
	}
	if chunks[0].Metadata[domain.MetaSource] != "reseaux.pdf" || chunks[0].Metadata[domain.MetaPage] != "3" {
		t.Fatalf("metadata mismatch: %+v", chunks[0].Metadata)
	}
	if chunks[1].Metadata != nil {
		t.Fatalf("empty columns must yield nil metadata, got %+v", chunks[1].Metadata)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}
