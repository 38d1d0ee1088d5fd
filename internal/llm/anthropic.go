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

const anthropicVersion = "2023-06-01"

type anthropicProvider struct {
	log          *logger.Logger
	baseURL      string
	apiKey       string
	model        string
	maxTokens    int
	httpClient   *http.Client
	streamClient *http.Client
	maxRetries   int
}

func NewAnthropicProvider(log *logger.Logger) (Provider, error) {
	apiKey := strings.TrimSpace(os.Getenv("ANTHROPIC_API_KEY"))
	if apiKey == "" {
		return nil, fmt.Errorf("missing ANTHROPIC_API_KEY")
	}
	baseURL := strings.TrimRight(envutil.Str("ANTHROPIC_BASE_URL", "https://api.anthropic.com"), "/")
	return &anthropicProvider{
		log:       log.With("provider", "anthropic"),
		baseURL:   baseURL,
		apiKey:    apiKey,
		model:     envutil.Str("ANTHROPIC_MODEL", "claude-sonnet-4-20250514"),
		maxTokens: envutil.Int("ANTHROPIC_MAX_TOKENS", 4096),
		httpClient: &http.Client{
			Timeout: envutil.Duration("LLM_HTTP_TIMEOUT", 120*time.Second),
		},
		streamClient: &http.Client{},
		maxRetries:   envutil.Int("LLM_MAX_RETRIES", 4),
	}, nil
}

func (p *anthropicProvider) Name() string { return "anthropic" }

// The messages API carries tool use and tool results inline as content
// blocks, so the provider-neutral messages are re-grouped here: each
// assistant message becomes text + tool_use blocks, and each tool
// result becomes a user message with a tool_result block.
type anBlock struct {
	Type string `json:"type"`

	Text string `json:"text,omitempty"`

	ID    string         `json:"id,omitempty"`
	Name  string         `json:"name,omitempty"`
	Input map[string]any `json:"input,omitempty"`

	ToolUseID string `json:"tool_use_id,omitempty"`
	Content   string `json:"content,omitempty"`
}

type anMessage struct {
	Role    string    `json:"role"`
	Content []anBlock `json:"content"`
}

type anTool struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	InputSchema map[string]any `json:"input_schema"`
}

type anRequest struct {
	Model     string      `json:"model"`
	System    string      `json:"system,omitempty"`
	MaxTokens int         `json:"max_tokens"`
	Messages  []anMessage `json:"messages"`
	Tools     []anTool    `json:"tools,omitempty"`
	Stream    bool        `json:"stream,omitempty"`
}

type anResponse struct {
	Model   string    `json:"model"`
	Content []anBlock `json:"content"`
}

func (p *anthropicProvider) buildRequest(req Request, stream bool) anRequest {
	out := anRequest{
		Model:     p.model,
		System:    req.System,
		MaxTokens: p.maxTokens,
		Stream:    stream,
	}
	if req.MaxTokens > 0 {
		out.MaxTokens = req.MaxTokens
	}
	for _, m := range req.Messages {
		switch m.Role {
		case RoleTool:
			out.Messages = append(out.Messages, anMessage{
				Role: "user",
				Content: []anBlock{{
					Type:      "tool_result",
					ToolUseID: m.ToolCallID,
					Content:   m.Content,
				}},
			})
		case RoleAssistant:
			var blocks []anBlock
			if m.Content != "" {
				blocks = append(blocks, anBlock{Type: "text", Text: m.Content})
			}
			for _, tc := range m.ToolCalls {
				var input map[string]any
				_ = json.Unmarshal(tc.Arguments, &input)
				if input == nil {
					input = map[string]any{}
				}
				blocks = append(blocks, anBlock{
					Type:  "tool_use",
					ID:    tc.ID,
					Name:  tc.Name,
					Input: input,
				})
			}
			if len(blocks) == 0 {
				blocks = []anBlock{{Type: "text", Text: ""}}
			}
			out.Messages = append(out.Messages, anMessage{Role: "assistant", Content: blocks})
		default:
			out.Messages = append(out.Messages, anMessage{
				Role:    "user",
				Content: []anBlock{{Type: "text", Text: m.Content}},
			})
		}
	}
	for _, t := range req.Tools {
		out.Tools = append(out.Tools, anTool{
			Name:        t.Name,
			Description: t.Description,
			InputSchema: t.InputSchema,
		})
	}
	return out
}

func (p *anthropicProvider) Complete(ctx context.Context, req Request) (*Completion, error) {
	body := p.buildRequest(req, false)
	var resp anResponse
	if err := p.doWithRetry(ctx, "/v1/messages", body, &resp); err != nil {
		return nil, err
	}
	out := &Completion{Model: resp.Model}
	var text strings.Builder
	for _, block := range resp.Content {
		switch block.Type {
		case "text":
			text.WriteString(block.Text)
		case "tool_use":
			args, _ := json.Marshal(block.Input)
			out.ToolCalls = append(out.ToolCalls, ToolCall{
				ID:        block.ID,
				Name:      block.Name,
				Arguments: args,
			})
		}
	}
	out.Text = text.String()
	return out, nil
}

type anStreamEvent struct {
	Type  string `json:"type"`
	Index int    `json:"index"`

	ContentBlock struct {
		Type string `json:"type"`
		ID   string `json:"id"`
		Name string `json:"name"`
	} `json:"content_block"`

	Delta struct {
		Type        string `json:"type"`
		Text        string `json:"text"`
		PartialJSON string `json:"partial_json"`
	} `json:"delta"`
}

func (p *anthropicProvider) Stream(ctx context.Context, req Request, handler StreamHandler) (*Completion, error) {
	body := p.buildRequest(req, true)
	resp, err := p.openStream(ctx, "/v1/messages", body)
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
	open := map[int]*partialCall{}
	out := &Completion{Model: p.model}

	err = streamSSE(resp.Body, func(_ string, data string) error {
		var ev anStreamEvent
		if uErr := json.Unmarshal([]byte(data), &ev); uErr != nil {
			return nil
		}
		switch ev.Type {
		case "content_block_start":
			if ev.ContentBlock.Type == "tool_use" {
				open[ev.Index] = &partialCall{id: ev.ContentBlock.ID, name: ev.ContentBlock.Name}
			}
		case "content_block_delta":
			switch ev.Delta.Type {
			case "text_delta":
				text.WriteString(ev.Delta.Text)
				if handler.OnTextDelta != nil {
					handler.OnTextDelta(ev.Delta.Text)
				}
			case "input_json_delta":
				if pc := open[ev.Index]; pc != nil {
					pc.args.WriteString(ev.Delta.PartialJSON)
				}
			}
		case "content_block_stop":
			pc := open[ev.Index]
			if pc == nil {
				return nil
			}
			delete(open, ev.Index)
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
		return nil
	})
	if err != nil {
		return nil, err
	}
	out.Text = text.String()
	return out, nil
}

func (p *anthropicProvider) newHTTPRequest(ctx context.Context, path string, body any) (*http.Request, error) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(body); err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+path, &buf)
	if err != nil {
		return nil, err
	}
	req.Header.Set("x-api-key", p.apiKey)
	req.Header.Set("anthropic-version", anthropicVersion)
	req.Header.Set("Content-Type", "application/json")
	return req, nil
}

func (p *anthropicProvider) doWithRetry(ctx context.Context, path string, body any, out any) error {
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
				return fmt.Errorf("anthropic decode error: %w", uErr)
			}
			return nil
		}
		if !httpx.IsRetryableError(err) || attempt == p.maxRetries {
			return err
		}
		sleepFor := httpx.JitterSleep(httpx.RetryAfterDuration(resp, backoff, 10*time.Second))
		p.log.Warn("anthropic request retrying",
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

func (p *anthropicProvider) openStream(ctx context.Context, path string, body any) (*http.Response, error) {
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
		p.log.Warn("anthropic stream retrying", "attempt", attempt+1, "sleep", sleepFor.String(), "error", err.Error())
		time.Sleep(sleepFor)
		backoff *= 2
	}
	return nil, fmt.Errorf("unreachable retry loop")
}
