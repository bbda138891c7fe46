package httpadapter

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/inptlabs/edurag/internal/config"
	"github.com/inptlabs/edurag/internal/core/domain"
	"github.com/inptlabs/edurag/internal/core/ports"
	"github.com/inptlabs/edurag/internal/observability/metrics"
)

const serviceName = "edurag-api"

// ReadinessProbe reports whether one external collaborator can serve.
type ReadinessProbe func(ctx context.Context) error

type Router struct {
	responder     ports.Responder
	streamer      ports.StreamResponder
	reindexer     ports.Reindexer
	conversations ports.ConversationStore
	probes        map[string]ReadinessProbe
	metrics       *metrics.HTTPServerMetrics
	cfg           config.Config
	logger        *slog.Logger
}

func NewRouter(
	responder ports.Responder,
	streamer ports.StreamResponder,
	reindexer ports.Reindexer,
	conversations ports.ConversationStore,
	probes map[string]ReadinessProbe,
	m *metrics.HTTPServerMetrics,
	cfg config.Config,
	logger *slog.Logger,
) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{
		responder:     responder,
		streamer:      streamer,
		reindexer:     reindexer,
		conversations: conversations,
		probes:        probes,
		metrics:       m,
		cfg:           cfg,
		logger:        logger,
	}
}

func (rt *Router) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", rt.healthz)
	mux.HandleFunc("/readyz", rt.readyz)
	mux.HandleFunc("/v1/ask", rt.ask)
	mux.HandleFunc("/v1/ask/stream", rt.askStream)
	mux.HandleFunc("/v1/index/rebuild", rt.rebuildIndex)
	if rt.metrics != nil {
		mux.Handle("/metrics", rt.metrics.Handler())
	}

	var handler http.Handler = mux
	if rt.metrics != nil {
		handler = rt.metrics.Middleware(serviceName, handler)
	}
	handler = backpressureMiddleware(handler, rt.cfg.APIMaxInFlight, 50*time.Millisecond)
	handler = rateLimitMiddleware(handler, rt.cfg.APIRateLimitRPS, rt.cfg.APIRateLimitBurst)
	handler = accessLogMiddleware(handler)
	handler = requestIDMiddleware(handler)
	return handler
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// readyz probes the external collaborators; any failing probe flips the
// whole endpoint to 503 so the load balancer drains this replica.
func (rt *Router) readyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	status := map[string]string{}
	healthy := true
	for name, probe := range rt.probes {
		if err := probe(ctx); err != nil {
			status[name] = err.Error()
			healthy = false
			continue
		}
		status[name] = "ok"
	}
	if !healthy {
		writeJSON(w, http.StatusServiceUnavailable, status)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

type askRequestBody struct {
	ConversationID string  `json:"conversation_id"`
	Question       string  `json:"question"`
	Source         string  `json:"source"`
	Section        string  `json:"section"`
	Temperature    float64 `json:"temperature"`
}

func (rt *Router) decodeAsk(w http.ResponseWriter, r *http.Request) (domain.AskRequest, bool) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return domain.AskRequest{}, false
	}
	var body askRequestBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return domain.AskRequest{}, false
	}
	if strings.TrimSpace(body.Question) == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "question is required"})
		return domain.AskRequest{}, false
	}
	return domain.AskRequest{
		ConversationID: body.ConversationID,
		Question:       body.Question,
		Filter: domain.SearchFilter{
			Source:  body.Source,
			Section: body.Section,
		},
		Temperature: body.Temperature,
	}, true
}

func (rt *Router) ask(w http.ResponseWriter, r *http.Request) {
	req, ok := rt.decodeAsk(w, r)
	if !ok {
		return
	}
	started := time.Now()

	resp := rt.responder.Respond(r.Context(), req)
	rt.recordOutcome("/v1/ask", resp, started)
	rt.persistTurns(r.Context(), req, resp)

	writeJSON(w, http.StatusOK, resp)
}

// askStream answers over server-sent events: one `token` event per generated
// fragment, then a single `done` event carrying the full response.
func (rt *Router) askStream(w http.ResponseWriter, r *http.Request) {
	req, ok := rt.decodeAsk(w, r)
	if !ok {
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "streaming unsupported"})
		return
	}
	started := time.Now()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	resp := rt.streamer.RespondStream(r.Context(), req, func(token string) error {
		payload, err := json.Marshal(map[string]string{"token": token})
		if err != nil {
			return err
		}
		if _, err := fmt.Fprintf(w, "event: token\ndata: %s\n\n", payload); err != nil {
			return err
		}
		flusher.Flush()
		return nil
	})

	rt.recordOutcome("/v1/ask/stream", resp, started)
	rt.persistTurns(r.Context(), req, resp)

	payload, err := json.Marshal(resp)
	if err != nil {
		rt.logger.Error("encode_stream_response", "error", err)
		return
	}
	fmt.Fprintf(w, "event: done\ndata: %s\n\n", payload)
	flusher.Flush()
}

func (rt *Router) rebuildIndex(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}
	started := time.Now()

	count, err := rt.reindexer.Rebuild(r.Context())
	if err != nil {
		if rt.metrics != nil {
			rt.metrics.RecordReindex(serviceName, "api", "error", 0, time.Since(started))
		}
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	if rt.metrics != nil {
		rt.metrics.RecordReindex(serviceName, "api", "ok", count, time.Since(started))
	}
	writeJSON(w, http.StatusOK, map[string]any{"chunks_indexed": count})
}

// persistTurns appends the question and the answer to the conversation. The
// orchestrator itself stays side-effect free; persistence failures are logged
// and never change the response already produced.
func (rt *Router) persistTurns(ctx context.Context, req domain.AskRequest, resp *domain.RAGResponse) {
	if rt.conversations == nil || req.ConversationID == "" {
		return
	}
	now := time.Now().UTC()
	turns := []domain.ConversationTurn{
		{Role: "user", Content: req.Question, CreatedAt: now},
		{Role: "assistant", Content: resp.Answer, CreatedAt: now},
	}
	for _, turn := range turns {
		if err := rt.conversations.AppendTurn(ctx, req.ConversationID, turn); err != nil {
			rt.logger.Warn("conversation_append_failed",
				"conversation_id", req.ConversationID,
				"role", turn.Role,
				"error", err,
			)
			return
		}
	}
}

func (rt *Router) recordOutcome(endpoint string, resp *domain.RAGResponse, started time.Time) {
	if rt.metrics == nil || resp == nil {
		return
	}
	rt.metrics.RecordAskOutcome(serviceName, endpoint, string(resp.Outcome), len(resp.Chunks), resp.Confidence, time.Since(started))
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		slog.Error("encode_response", "error", err)
	}
}
