// Package ollama implements the answer generator port against a local Ollama
// server. Generation is single-attempt: a failed inference call surfaces to
// the orchestrator immediately.
package ollama

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/inptlabs/edurag/internal/core/domain"
	"github.com/inptlabs/edurag/internal/core/ports"
)

type Client struct {
	baseURL    string
	model      string
	httpClient *http.Client
}

func New(baseURL, model string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		model:      model,
		httpClient: &http.Client{Timeout: timeout},
	}
}

type generateBody struct {
	Model   string         `json:"model"`
	Prompt  string         `json:"prompt"`
	System  string         `json:"system,omitempty"`
	Stream  bool           `json:"stream"`
	Options map[string]any `json:"options,omitempty"`
}

func (c *Client) buildBody(req ports.GenerateRequest, stream bool) generateBody {
	options := map[string]any{}
	if req.Temperature > 0 {
		options["temperature"] = req.Temperature
	}
	if req.MaxTokens > 0 {
		options["num_predict"] = req.MaxTokens
	}
	if len(req.Stop) > 0 {
		options["stop"] = req.Stop
	}
	if len(options) == 0 {
		options = nil
	}
	return generateBody{
		Model:   c.model,
		Prompt:  req.Prompt,
		System:  req.System,
		Stream:  stream,
		Options: options,
	}
}

// Generate runs one blocking completion and returns the trimmed answer.
func (c *Client) Generate(ctx context.Context, req ports.GenerateRequest) (string, error) {
	var response struct {
		Response string `json:"response"`
	}
	if err := c.postJSON(ctx, "/api/generate", c.buildBody(req, false), &response, "generate"); err != nil {
		return "", domain.WrapError(domain.ErrGeneration, "ollama generate", err)
	}
	return strings.TrimSpace(response.Response), nil
}

// GenerateStream runs one streaming completion, pushing each token through
// emit as it arrives. An emit error aborts the stream and is returned as-is.
func (c *Client) GenerateStream(ctx context.Context, req ports.GenerateRequest, emit func(token string) error) error {
	resp, err := c.postStream(ctx, "/api/generate", c.buildBody(req, true), "generate stream")
	if err != nil {
		return domain.WrapError(domain.ErrGeneration, "ollama generate stream", err)
	}
	defer resp.Body.Close()

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var event struct {
			Response string `json:"response"`
			Done     bool   `json:"done"`
			Error    string `json:"error"`
		}
		if err := json.Unmarshal([]byte(line), &event); err != nil {
			return domain.WrapError(domain.ErrGeneration, "ollama generate stream",
				fmt.Errorf("decode stream event: %w", err))
		}
		if event.Error != "" {
			return domain.WrapError(domain.ErrGeneration, "ollama generate stream",
				fmt.Errorf("server error: %s", event.Error))
		}
		if event.Response != "" {
			if err := emit(event.Response); err != nil {
				return err
			}
		}
		if event.Done {
			return nil
		}
	}
	if err := scanner.Err(); err != nil {
		return domain.WrapError(domain.ErrGeneration, "ollama generate stream", err)
	}
	return nil
}

// Healthy probes the model listing endpoint; used by the readiness endpoint.
func (c *Client) Healthy(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/tags", nil)
	if err != nil {
		return fmt.Errorf("create tags request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("ollama tags request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("ollama tags status: %s", resp.Status)
	}
	return nil
}
