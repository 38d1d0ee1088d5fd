package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/haventide/compass-backend/internal/pkg/httpx"
	"github.com/haventide/compass-backend/internal/platform/envutil"
	"github.com/haventide/compass-backend/internal/platform/logger"
)

type httpError struct {
	StatusCode int
	Body       string
}

func (e *httpError) Error() string {
	return fmt.Sprintf("llm http error (%d): %s", e.StatusCode, e.Body)
}

func (e *httpError) HTTPStatusCode() int { return e.StatusCode }

type openAIProvider struct {
	log        *logger.Logger
	baseURL    string
	apiKey     string
	model      string
	httpClient *http.Client
	// streamClient has no overall timeout: the deadline would cut off
	// long streams mid-body. Cancellation comes from the context.
	streamClient *http.Client
	maxRetries   int
}

func NewOpenAIProvider(log *logger.Logger) (Provider, error) {
	apiKey := strings.TrimSpace(os.Getenv("OPENAI_API_KEY"))
	if apiKey == "" {
		return nil, fmt.Errorf("missing OPENAI_API_KEY")
	}
	baseURL := strings.TrimRight(envutil.Str("OPENAI_BASE_URL", "https://api.openai.com"), "/")
	return &openAIProvider{
		log:     log.With("provider", "openai"),
		baseURL: baseURL,
		apiKey:  apiKey,
		model:   envutil.Str("OPENAI_MODEL", "gpt-4o"),
		httpClient: &http.Client{
			Timeout: envutil.Duration("LLM_HTTP_TIMEOUT", 120*time.Second),
		},
		streamClient: &http.Client{},
		maxRetries:   envutil.Int("LLM_MAX_RETRIES", 4),
	}, nil
}

func (p *openAIProvider) Name() string { return "openai" }

type oaFunctionCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

type oaToolCall struct {
	ID       string         `json:"id"`
	Type     string         `json:"type"`
	Function oaFunctionCall `json:"function"`
}

type oaMessage struct {
	Role       string       `json:"role"`
	Content    string       `json:"content"`
	ToolCalls  []oaToolCall `json:"tool_calls,omitempty"`
	ToolCallID string       `json:"tool_call_id,omitempty"`
}

type oaTool struct {
	Type     string `json:"type"`
	Function struct {
		Name        string         `json:"name"`
		Description string         `json:"description,omitempty"`
		Parameters  map[string]any `json:"parameters"`
	} `json:"function"`
}

type oaRequest struct {
	Model     string      `json:"model"`
	Messages  []oaMessage `json:"messages"`
	Tools     []oaTool    `json:"tools,omitempty"`
	MaxTokens int         `json:"max_tokens,omitempty"`
	Stream    bool        `json:"stream,omitempty"`
}

type oaResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message      oaMessage `json:"message"`
		FinishReason string    `json:"finish_reason"`
	} `json:"choices"`
}

func (p *openAIProvider) buildRequest(req Request, stream bool) oaRequest {
	out := oaRequest{Model: p.model, MaxTokens: req.MaxTokens, Stream: stream}
	if req.System != "" {
		out.Messages = append(out.Messages, oaMessage{Role: "system", Content: req.System})
	}
	for _, m := range req.Messages {
		om := oaMessage{Role: m.Role, Content: m.Content, ToolCallID: m.ToolCallID}
		for _, tc := range m.ToolCalls {
			om.ToolCalls = append(om.ToolCalls, oaToolCall{
				ID:   tc.ID,
				Type: "function",
				Function: oaFunctionCall{
					Name:      tc.Name,
					Arguments: string(tc.Arguments),
				},
			})
		}
		out.Messages = append(out.Messages, om)
	}
	for _, t := range req.Tools {
		var ot oaTool
		ot.Type = "function"
		ot.Function.Name = t.Name
		ot.Function.Description = t.Description
		ot.Function.Parameters = t.InputSchema
		out.Tools = append(out.Tools, ot)
	}
	return out
}

func (p *openAIProvider) Complete(ctx context.Context, req Request) (*Completion, error) {
	body := p.buildRequest(req, false)
	var resp oaResponse
	if err := p.doWithRetry(ctx, "/v1/chat/completions", body, &resp); err != nil {
		return nil, err
	}
	if len(resp.Choices) == 0 {
		return &Completion{Model: resp.Model}, nil
	}
	msg := resp.Choices[0].Message
	out := &Completion{Text: msg.Content, Model: resp.Model}
	for _, tc := range msg.ToolCalls {
		out.ToolCalls = append(out.ToolCalls, ToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: json.RawMessage(tc.Function.Arguments),
		})
	}
	return out, nil
}

type oaStreamChunk struct {
	Choices []struct {
		Delta struct {
			Content   string `json:"content"`
			ToolCalls []struct {
				Index    int    `json:"index"`
				ID       string `json:"id"`
				Function struct {
					Name      string `json:"name"`
					Arguments string `json:"arguments"`
				} `json:"function"`
			} `json:"tool_calls"`
		} `json:"delta"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
}

func (p *openAIProvider) Stream(ctx context.Context, req Request, handler StreamHandler) (*Completion, error) {
	body := p.buildRequest(req, true)
	resp, err := p.openStream(ctx, "/v1/chat/completions", body)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var text strings.Builder
	type partialCall struct {
		id   string
		name string
		args strings.Builder
	}
	calls := map[int]*partialCall{}
	maxIndex := -1

	err = streamSSE(resp.Body, func(_ string, data string) error {
		if data == "[DONE]" {
			return nil
		}
		var chunk oaStreamChunk
		if uErr := json.Unmarshal([]byte(data), &chunk); uErr != nil {
			return nil
		}
		if len(chunk.Choices) == 0 {
			return nil
		}
		delta := chunk.Choices[0].Delta
		if delta.Content != "" {
			text.WriteString(delta.Content)
			if handler.OnTextDelta != nil {
				handler.OnTextDelta(delta.Content)
			}
		}
		for _, tc := range delta.ToolCalls {
			pc := calls[tc.Index]
			if pc == nil {
				pc = &partialCall{}
				calls[tc.Index] = pc
			}
			if tc.Index > maxIndex {
				maxIndex = tc.Index
			}
			if tc.ID != "" {
				pc.id = tc.ID
			}
			if tc.Function.Name != "" {
				pc.name = tc.Function.Name
			}
			pc.args.WriteString(tc.Function.Arguments)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	out := &Completion{Text: text.String(), Model: p.model}
	for i := 0; i <= maxIndex; i++ {
		pc := calls[i]
		if pc == nil || pc.name == "" {
			continue
		}
		args := pc.args.String()
		if strings.TrimSpace(args) == "" {
			args = "{}"
		}
		call := ToolCall{ID: pc.id, Name: pc.name, Arguments: json.RawMessage(args)}
		out.ToolCalls = append(out.ToolCalls, call)
		if handler.OnToolCall != nil {
			handler.OnToolCall(call)
		}
	}
	return out, nil
}

func (p *openAIProvider) newHTTPRequest(ctx context.Context, path string, body any) (*http.Request, error) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(body); err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+path, &buf)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+p.apiKey)
	req.Header.Set("Content-Type", "application/json")
	return req, nil
}

func (p *openAIProvider) doWithRetry(ctx context.Context, path string, body any, out any) error {
	backoff := 1 * time.Second
	for attempt := 0; attempt <= p.maxRetries; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		req, err := p.newHTTPRequest(ctx, path, body)
		if err != nil {
			return err
		}
		resp, err := p.httpClient.Do(req)
		var raw []byte
		if err == nil {
			raw, err = io.ReadAll(resp.Body)
			_ = resp.Body.Close()
			if err == nil && (resp.StatusCode < 200 || resp.StatusCode >= 300) {
				err = &httpError{StatusCode: resp.StatusCode, Body: string(raw)}
			}
		}
		if err == nil {
			if out == nil {
				return nil
			}
			if uErr := json.Unmarshal(raw, out); uErr != nil {
				return fmt.Errorf("openai decode error: %w", uErr)
			}
			return nil
		}
		if !httpx.IsRetryableError(err) || attempt == p.maxRetries {
			return err
		}
		sleepFor := httpx.JitterSleep(httpx.RetryAfterDuration(resp, backoff, 10*time.Second))
		p.log.Warn("openai request retrying",
			"path", path,
			"attempt", attempt+1,
			"sleep", sleepFor.String(),
			"error", err.Error(),
		)
		time.Sleep(sleepFor)
		backoff *= 2
	}
	return fmt.Errorf("unreachable retry loop")
}

// openStream retries connection establishment only; once a 2xx stream
// is open the body belongs to the caller.
func (p *openAIProvider) openStream(ctx context.Context, path string, body any) (*http.Response, error) {
	backoff := 1 * time.Second
	for attempt := 0; attempt <= p.maxRetries; attempt++ {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		req, err := p.newHTTPRequest(ctx, path, body)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Accept", "text/event-stream")
		resp, err := p.streamClient.Do(req)
		if err == nil && resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return resp, nil
		}
		if err == nil {
			raw, _ := io.ReadAll(resp.Body)
			_ = resp.Body.Close()
			err = &httpError{StatusCode: resp.StatusCode, Body: string(raw)}
		}
		if !httpx.IsRetryableError(err) || attempt == p.maxRetries {
			return nil, err
		}
		sleepFor := httpx.JitterSleep(backoff)
		p.log.Warn("openai stream retrying", "attempt", attempt+1, "sleep", sleepFor.String(), "error", err.Error())
		time.Sleep(sleepFor)
		backoff *= 2
	}
	return nil, fmt.Errorf("unreachable retry loop")
}
