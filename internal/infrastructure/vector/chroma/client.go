// Package chroma implements the semantic index port against a ChromaDB
// server. The collection is embedded server-side; the client only submits
// query texts and reads back nearest-neighbor chunks with distances.
package chroma

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/inptlabs/edurag/internal/core/domain"
	"github.com/inptlabs/edurag/internal/infrastructure/resilience"
)

type Client struct {
	baseURL    string
	collection string
	httpClient *http.Client
	executor   *resilience.Executor

	resolveMu    sync.Mutex
	collectionID string
}

func New(baseURL, collection string, executor *resilience.Executor) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		collection: collection,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		executor:   executor,
	}
}

// Search returns the n nearest chunks to the query text, closest first.
// Distances are cosine distances as reported by the server.
func (c *Client) Search(ctx context.Context, query string, n int, filter domain.SearchFilter) ([]domain.SemanticHit, error) {
	var hits []domain.SemanticHit
	search := func(ctx context.Context) error {
		var err error
		hits, err = c.search(ctx, query, n, filter)
		return err
	}

	var err error
	if c.executor != nil {
		err = c.executor.Execute(ctx, "chroma_query", search, classifyChromaError)
	} else {
		err = search(ctx)
	}
	if err != nil {
		return nil, domain.WrapError(domain.ErrRetrievalUnavailable, "chroma query", err)
	}
	return hits, nil
}

func (c *Client) search(ctx context.Context, query string, n int, filter domain.SearchFilter) ([]domain.SemanticHit, error) {
	collectionID, err := c.resolveCollection(ctx)
	if err != nil {
		return nil, err
	}

	reqBody := map[string]any{
		"query_texts": []string{query},
		"n_results":   n,
		"include":     []string{"documents", "metadatas", "distances"},
	}
	if where := buildWhere(filter); where != nil {
		reqBody["where"] = where
	}

	var queryResp struct {
		IDs       [][]string         `json:"ids"`
		Documents [][]string         `json:"documents"`
		Metadatas [][]map[string]any `json:"metadatas"`
		Distances [][]float64        `json:"distances"`
	}
	path := fmt.Sprintf("/api/v1/collections/%s/query", url.PathEscape(collectionID))
	if err := c.postJSON(ctx, path, reqBody, &queryResp, "query"); err != nil {
		return nil, err
	}
	if len(queryResp.IDs) == 0 {
		return nil, nil
	}

	ids := queryResp.IDs[0]
	out := make([]domain.SemanticHit, 0, len(ids))
	for i, id := range ids {
		hit := domain.SemanticHit{Chunk: domain.Chunk{ID: id}}
		if len(queryResp.Documents) > 0 && i < len(queryResp.Documents[0]) {
			hit.Text = queryResp.Documents[0][i]
		}
		if len(queryResp.Metadatas) > 0 && i < len(queryResp.Metadatas[0]) {
			hit.Metadata = stringifyMetadata(queryResp.Metadatas[0][i])
		}
		if len(queryResp.Distances) > 0 && i < len(queryResp.Distances[0]) {
			hit.Distance = queryResp.Distances[0][i]
		}
		out = append(out, hit)
	}
	return out, nil
}

// Healthy probes the server heartbeat; used by the readiness endpoint.
func (c *Client) Healthy(ctx context.Context) error {
	var heartbeat map[string]any
	return c.getJSON(ctx, "/api/v1/heartbeat", &heartbeat, "heartbeat")
}

// resolveCollection maps the configured collection name to its server-side
// identifier, once, under a mutex. The cached identifier survives until the
// process restarts; recreating the collection requires a restart as well.
func (c *Client) resolveCollection(ctx context.Context) (string, error) {
	c.resolveMu.Lock()
	defer c.resolveMu.Unlock()
	if c.collectionID != "" {
		return c.collectionID, nil
	}

	var collectionResp struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	}
	path := "/api/v1/collections/" + url.PathEscape(c.collection)
	if err := c.getJSON(ctx, path, &collectionResp, "get collection"); err != nil {
		return "", err
	}
	if collectionResp.ID == "" {
		return "", fmt.Errorf("chroma collection %q has no id", c.collection)
	}
	c.collectionID = collectionResp.ID
	return c.collectionID, nil
}

func buildWhere(filter domain.SearchFilter) map[string]any {
	if filter.Empty() {
		return nil
	}
	clauses := make([]map[string]any, 0, 2)
	if filter.Source != "" {
		clauses = append(clauses, map[string]any{domain.MetaSource: filter.Source})
	}
	if filter.Section != "" {
		clauses = append(clauses, map[string]any{domain.MetaSection: filter.Section})
	}
	if len(clauses) == 1 {
		return clauses[0]
	}
	return map[string]any{"$and": clauses}
}

func stringifyMetadata(raw map[string]any) map[string]string {
	if len(raw) == 0 {
		return nil
	}
	out := make(map[string]string, len(raw))
	for key, value := range raw {
		switch v := value.(type) {
		case string:
			out[key] = v
		case float64:
			// Chroma stores numeric metadata as JSON numbers; pages come
			// back as floats.
			out[key] = strconv.FormatFloat(v, 'f', -1, 64)
		default:
			out[key] = fmt.Sprintf("%v", v)
		}
	}
	return out
}
