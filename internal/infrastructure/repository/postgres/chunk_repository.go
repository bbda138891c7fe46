package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/inptlabs/edurag/internal/core/domain"
)

// ChunkRepository reads the chunk corpus maintained by the ingestion
// pipeline. The core never writes this table.
type ChunkRepository struct {
	db *sql.DB
}

func NewChunkRepository(db *sql.DB) *ChunkRepository {
	return &ChunkRepository{db: db}
}

func (r *ChunkRepository) ListChunks(ctx context.Context) ([]domain.Chunk, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT id, content, COALESCE(source, ''), COALESCE(page::text, ''), COALESCE(section, '')
FROM chunks
ORDER BY id
`)
	if err != nil {
		return nil, fmt.Errorf("list chunks: %w", err)
	}
	defer rows.Close()

	out := make([]domain.Chunk, 0, 1024)
	for rows.Next() {
		var (
			chunk   domain.Chunk
			source  string
			page    string
			section string
		)
		if err := rows.Scan(&chunk.ID, &chunk.Text, &source, &page, &section); err != nil {
			return nil, fmt.Errorf("scan chunk: %w", err)
		}
		chunk.Metadata = chunkMetadata(source, page, section)
		out = append(out, chunk)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate chunks: %w", err)
	}
	return out, nil
}

func chunkMetadata(source, page, section string) map[string]string {
	if source == "" && page == "" && section == "" {
		return nil
	}
	meta := make(map[string]string, 3)
	if source != "" {
		meta[domain.MetaSource] = source
	}
	if page != "" {
		meta[domain.MetaPage] = page
	}
	if section != "" {
		meta[domain.MetaSection] = section
	}
	return meta
}
