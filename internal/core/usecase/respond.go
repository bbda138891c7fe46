package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/inptlabs/edurag/internal/core/domain"
	"github.com/inptlabs/edurag/internal/core/ports"
)

// TerminalMessages are the fixed French answers returned by the non-success
// terminal states. Overridable through the tuning file; the Error message may
// carry one %s slot that receives the underlying error text.
type TerminalMessages struct {
	NoContext     string
	LowConfidence string
	Error         string
}

func DefaultTerminalMessages() TerminalMessages {
	return TerminalMessages{
		NoContext:     "Je n'ai pas trouvé d'informations pertinentes dans les documents de cours pour répondre à cette question. Pourriez-vous reformuler ou préciser votre question ?",
		LowConfidence: "Je ne suis pas suffisamment sûr de ma réponse pour vous la communiquer. Pourriez-vous reformuler votre question ou consulter directement les documents de cours ?",
		Error:         "Une erreur s'est produite lors de la génération de la réponse (%s). Veuillez réessayer dans quelques instants.",
	}
}

// RespondConfig is the orchestrator's tuning surface. All fields are required;
// Bootstrap fills them from the environment and the optional tuning file.
type RespondConfig struct {
	MinConfidence    float64
	MaxSources       int
	TopKRetrieval    int
	MaxContextLength int
	Temperature      float64
	MaxTokens        int
	HistoryWindow    int
	Timeout          time.Duration
	Confidence       ConfidenceTuning
	Messages         TerminalMessages
}

// lowConfidenceScore is the fixed confidence reported when retrieval found
// only matches below the score threshold.
const lowConfidenceScore = 0.3

// RespondUseCase is the response orchestrator: a linear pipeline from question
// to answer with four terminal states. It never returns an error; every
// failure mode becomes a well-formed response.
type RespondUseCase struct {
	searcher  ports.Searcher
	generator ports.AnswerGenerator
	history   ports.ConversationStore
	cfg       RespondConfig
	logger    *slog.Logger
}

func NewRespondUseCase(
	searcher ports.Searcher,
	generator ports.AnswerGenerator,
	history ports.ConversationStore,
	cfg RespondConfig,
	logger *slog.Logger,
) *RespondUseCase {
	if logger == nil {
		logger = slog.Default()
	}
	return &RespondUseCase{
		searcher:  searcher,
		generator: generator,
		history:   history,
		cfg:       cfg,
		logger:    logger,
	}
}

// Respond runs the full pipeline for one question. The only side effect is
// the inference call; persisting conversation turns is the caller's job.
func (uc *RespondUseCase) Respond(ctx context.Context, req domain.AskRequest) *domain.RAGResponse {
	return uc.respond(ctx, req, nil)
}

// RespondStream runs the same pipeline but pushes answer tokens through emit
// as they arrive. Terminal messages are emitted once, whole.
func (uc *RespondUseCase) RespondStream(
	ctx context.Context,
	req domain.AskRequest,
	emit func(token string) error,
) *domain.RAGResponse {
	resp := uc.respond(ctx, req, emit)
	if resp.Outcome != domain.OutcomeSuccess && emit != nil {
		if err := emit(resp.Answer); err != nil {
			uc.logger.Warn("stream_emit_failed", "error", err)
		}
	}
	return resp
}

func (uc *RespondUseCase) respond(
	ctx context.Context,
	req domain.AskRequest,
	emit func(token string) error,
) *domain.RAGResponse {
	started := time.Now()
	log := uc.logger.With("conversation_id", req.ConversationID)

	if uc.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, uc.cfg.Timeout)
		defer cancel()
	}

	history := uc.loadHistory(ctx, req.ConversationID, log)
	followUp := detectFollowUp(req.Question, history)

	chunks, err := uc.searcher.Search(ctx, req.Question, uc.cfg.TopKRetrieval, req.Filter)
	if err != nil {
		log.Error("retrieval_failed", "error", err)
		return uc.errorResponse(req.Question, err)
	}
	retrieved := len(chunks)

	// Empty retrieval and retrieval that filtering empties are distinct
	// terminals: the first means the corpus has nothing on the topic, the
	// second that it has only weak matches.
	if retrieved == 0 {
		log.Info("no_context", "question", req.Question)
		return uc.terminal(domain.OutcomeNoContext, uc.cfg.Messages.NoContext, 0.0,
			uc.metadata(req.Question, 0, 0, history, followUp))
	}

	kept := filterByScore(chunks, uc.cfg.MinConfidence)
	if len(kept) == 0 {
		log.Info("low_confidence_retrieval", "retrieved", retrieved, "threshold", uc.cfg.MinConfidence)
		return uc.terminal(domain.OutcomeLowConfidence, uc.cfg.Messages.LowConfidence, lowConfidenceScore,
			uc.metadata(req.Question, retrieved, 0, history, followUp))
	}

	prompt := buildPrompt(req.Question, kept, history, followUp, uc.cfg.MaxContextLength)
	answer, err := uc.generate(ctx, prompt, req.Temperature, emit)
	if err != nil {
		log.Error("generation_failed", "error", err)
		resp := uc.errorResponse(req.Question, err)
		resp.Metadata["num_chunks_retrieved"] = retrieved
		resp.Metadata["num_chunks_used"] = len(kept)
		return resp
	}

	answer = postProcess(answer)
	sources := extractSources(kept, uc.cfg.MaxSources)
	// Scored over everything retrieval returned: the filter selects
	// context, not evidence. A completed generation is always a success.
	confidence := scoreConfidence(answer, chunks, uc.cfg.Confidence)

	meta := uc.metadata(req.Question, retrieved, len(kept), history, followUp)
	meta["duration_ms"] = time.Since(started).Milliseconds()

	log.Info("response_generated",
		"confidence", confidence,
		"chunks_used", len(kept),
		"sources", len(sources),
		"follow_up", followUp,
	)
	return &domain.RAGResponse{
		Answer:     answer,
		Sources:    sources,
		Confidence: confidence,
		Chunks:     kept,
		Outcome:    domain.OutcomeSuccess,
		Metadata:   meta,
	}
}

func (uc *RespondUseCase) loadHistory(ctx context.Context, conversationID string, log *slog.Logger) []domain.ConversationTurn {
	if conversationID == "" || uc.history == nil || uc.cfg.HistoryWindow <= 0 {
		return nil
	}
	turns, err := uc.history.ContextWindow(ctx, conversationID, uc.cfg.HistoryWindow)
	if err != nil {
		// Missing history degrades the answer, it must not block it.
		log.Warn("history_unavailable", "error", err)
		return nil
	}
	return turns
}

func (uc *RespondUseCase) generate(
	ctx context.Context,
	prompt string,
	temperature float64,
	emit func(token string) error,
) (string, error) {
	if temperature <= 0 {
		temperature = uc.cfg.Temperature
	}
	genReq := ports.GenerateRequest{
		Prompt:      prompt,
		System:      systemPrompt,
		Temperature: temperature,
		MaxTokens:   uc.cfg.MaxTokens,
	}
	if emit == nil {
		return uc.generator.Generate(ctx, genReq)
	}

	var full []byte
	err := uc.generator.GenerateStream(ctx, genReq, func(token string) error {
		full = append(full, token...)
		return emit(token)
	})
	if err != nil {
		return "", err
	}
	return string(full), nil
}

// filterByScore keeps the chunks whose fused score clears the threshold,
// preserving rank order.
func filterByScore(chunks []domain.ScoredChunk, threshold float64) []domain.ScoredChunk {
	kept := make([]domain.ScoredChunk, 0, len(chunks))
	for _, chunk := range chunks {
		if chunk.FusedScore >= threshold {
			kept = append(kept, chunk)
		}
	}
	return kept
}

func (uc *RespondUseCase) metadata(
	question string,
	retrieved, used int,
	history []domain.ConversationTurn,
	followUp bool,
) map[string]any {
	return map[string]any{
		"question":                  question,
		"num_chunks_retrieved":      retrieved,
		"num_chunks_used":           used,
		"has_conversation_history":  len(history) > 0,
		"used_conversation_history": followUp,
	}
}

func (uc *RespondUseCase) terminal(outcome domain.Outcome, answer string, confidence float64, meta map[string]any) *domain.RAGResponse {
	return &domain.RAGResponse{
		Answer:     answer,
		Sources:    []domain.SourceCitation{},
		Confidence: confidence,
		Outcome:    outcome,
		Metadata:   meta,
	}
}

// errorResponse embeds the failure text in the answer so the student sees
// what went wrong, not just that something did.
func (uc *RespondUseCase) errorResponse(question string, err error) *domain.RAGResponse {
	answer := uc.cfg.Messages.Error
	if strings.Contains(answer, "%s") {
		answer = fmt.Sprintf(answer, err.Error())
	}
	return &domain.RAGResponse{
		Answer:     answer,
		Sources:    []domain.SourceCitation{},
		Confidence: 0.0,
		Outcome:    domain.OutcomeError,
		Metadata: map[string]any{
			"question": question,
			"error":    err.Error(),
		},
	}
}
