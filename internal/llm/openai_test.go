package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/haventide/compass-backend/internal/platform/logger"
)

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New("development")
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	return log
}

func newTestOpenAI(t *testing.T, baseURL string) *openAIProvider {
	t.Helper()
	t.Setenv("OPENAI_API_KEY", "test-key")
	t.Setenv("OPENAI_BASE_URL", baseURL)
	t.Setenv("OPENAI_MODEL", "gpt-test")
	t.Setenv("LLM_MAX_RETRIES", "1")
	p, err := NewOpenAIProvider(testLogger(t))
	if err != nil {
		t.Fatalf("NewOpenAIProvider: %v", err)
	}
	return p.(*openAIProvider)
}

func TestOpenAIBuildRequestMapsMessagesAndTools(t *testing.T) {
	p := newTestOpenAI(t, "http://localhost")
	req := Request{
		System: "You are a coach.",
		Messages: []Message{
			{Role: RoleUser, Content: "hello"},
			{Role: RoleAssistant, Content: "", ToolCalls: []ToolCall{
				{ID: "call_1", Name: "set_progress", Arguments: json.RawMessage(`{"percent":40}`)},
			}},
			{Role: RoleTool, ToolCallID: "call_1", Content: "progress set to 40%"},
		},
		Tools: []Tool{{Name: "set_progress", InputSchema: map[string]any{"type": "object"}}},
	}

	out := p.buildRequest(req, false)
	if out.Model != "gpt-test" {
		t.Fatalf("model = %q", out.Model)
	}
	if len(out.Messages) != 4 || out.Messages[0].Role != "system" {
		t.Fatalf("expected system message prepended, got %+v", out.Messages)
	}
	asst := out.Messages[2]
	if len(asst.ToolCalls) != 1 || asst.ToolCalls[0].Function.Name != "set_progress" {
		t.Fatalf("tool call not mapped: %+v", asst.ToolCalls)
	}
	if out.Messages[3].ToolCallID != "call_1" {
		t.Fatalf("tool result must carry tool_call_id")
	}
	if len(out.Tools) != 1 || out.Tools[0].Type != "function" {
		t.Fatalf("tools not mapped: %+v", out.Tools)
	}
}

func TestOpenAICompleteParsesToolCalls(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("authorization header = %q", got)
		}
		fmt.Fprint(w, `{
			"model": "gpt-test",
			"choices": [{
				"message": {
					"role": "assistant",
					"content": "On it.",
					"tool_calls": [{
						"id": "call_9",
						"type": "function",
						"function": {"name": "append_section_header", "arguments": "{\"title\":\"Goals\"}"}
					}]
				},
				"finish_reason": "tool_calls"
			}]
		}`)
	}))
	defer srv.Close()

	p := newTestOpenAI(t, srv.URL)
	comp, err := p.Complete(context.Background(), Request{Messages: []Message{{Role: RoleUser, Content: "hi"}}})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if comp.Text != "On it." {
		t.Fatalf("text = %q", comp.Text)
	}
	if len(comp.ToolCalls) != 1 || comp.ToolCalls[0].Name != "append_section_header" {
		t.Fatalf("tool calls = %+v", comp.ToolCalls)
	}
}

func TestOpenAICompleteRetriesRetryableStatus(t *testing.T) {
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		fmt.Fprint(w, `{"model":"gpt-test","choices":[{"message":{"role":"assistant","content":"recovered"}}]}`)
	}))
	defer srv.Close()

	p := newTestOpenAI(t, srv.URL)
	comp, err := p.Complete(context.Background(), Request{Messages: []Message{{Role: RoleUser, Content: "hi"}}})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if comp.Text != "recovered" || attempts != 2 {
		t.Fatalf("text = %q, attempts = %d", comp.Text, attempts)
	}
}

func TestOpenAICompleteDoesNotRetryBadRequest(t *testing.T) {
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	p := newTestOpenAI(t, srv.URL)
	_, err := p.Complete(context.Background(), Request{Messages: []Message{{Role: RoleUser, Content: "hi"}}})
	if err == nil {
		t.Fatalf("expected error")
	}
	if attempts != 1 {
		t.Fatalf("400 must not retry, attempts = %d", attempts)
	}
}

func TestOpenAIStreamAccumulatesTextAndToolCalls(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		chunks := []string{
			`{"choices":[{"delta":{"content":"Hel"}}]}`,
			`{"choices":[{"delta":{"content":"lo"}}]}`,
			`{"choices":[{"delta":{"tool_calls":[{"index":0,"id":"call_1","function":{"name":"set_progress","arguments":"{\"per"}}]}}]}`,
			`{"choices":[{"delta":{"tool_calls":[{"index":0,"function":{"arguments":"cent\":40}"}}]}}]}`,
		}
		for _, c := range chunks {
			fmt.Fprintf(w, "data: %s\n\n", c)
		}
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	defer srv.Close()

	p := newTestOpenAI(t, srv.URL)
	var deltas []string
	var calls []ToolCall
	comp, err := p.Stream(context.Background(), Request{Messages: []Message{{Role: RoleUser, Content: "hi"}}}, StreamHandler{
		OnTextDelta: func(d string) { deltas = append(deltas, d) },
		OnToolCall:  func(c ToolCall) { calls = append(calls, c) },
	})
	if err != nil {
		t.Fatalf("Stream: %v", err)
	}
	if comp.Text != "Hello" {
		t.Fatalf("text = %q", comp.Text)
	}
	if len(deltas) != 2 {
		t.Fatalf("deltas = %v", deltas)
	}
	if len(calls) != 1 || calls[0].Name != "set_progress" {
		t.Fatalf("tool calls = %+v", calls)
	}
	var args struct {
		Percent int `json:"percent"`
	}
	if err := json.Unmarshal(calls[0].Arguments, &args); err != nil || args.Percent != 40 {
		t.Fatalf("arguments not reassembled: %s", calls[0].Arguments)
	}
}
