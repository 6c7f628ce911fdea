package translate

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func newOpenAIServer(t *testing.T, status int, reply string) (*OpenAIProvider, *[]map[string]any) {
	t.Helper()
	var requests []map[string]any

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/chat/completions") {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		requests = append(requests, body)

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(reply))
	}))
	t.Cleanup(srv.Close)

	p, err := NewOpenAIProvider(OpenAIConfig{APIKey: "test-key", BaseURL: srv.URL + "/v1/"})
	if err != nil {
		t.Fatalf("NewOpenAIProvider() error = %v", err)
	}
	return p, &requests
}

func TestOpenAIProvider_Translate(t *testing.T) {
	reply := `{
		"id": "chatcmpl-1",
		"object": "chat.completion",
		"created": 1700000000,
		"model": "gpt-4o-mini",
		"choices": [{"index": 0, "finish_reason": "stop", "message": {"role": "assistant", "content": " Bienvenue au port. "}}]
	}`
	p, requests := newOpenAIServer(t, http.StatusOK, reply)

	got, err := p.Translate(context.Background(), "Welcome to the harbour.", "en-US", "fr-FR")
	if err != nil {
		t.Fatalf("Translate() error = %v", err)
	}
	if got != "Bienvenue au port." {
		t.Errorf("Translate() = %q", got)
	}

	if len(*requests) != 1 {
		t.Fatalf("expected one request, got %d", len(*requests))
	}
	req := (*requests)[0]
	if req["model"] != DefaultOpenAIModel {
		t.Errorf("model = %v", req["model"])
	}
	messages, _ := req["messages"].([]any)
	if len(messages) != 2 {
		t.Fatalf("messages = %v", req["messages"])
	}
	system, _ := messages[0].(map[string]any)
	if content, _ := system["content"].(string); !strings.Contains(content, "from en-US to fr-FR") {
		t.Errorf("system prompt = %q", content)
	}
}

func TestOpenAIProvider_EmptyChoices(t *testing.T) {
	p, _ := newOpenAIServer(t, http.StatusOK, `{"id":"x","object":"chat.completion","created":1,"model":"m","choices":[]}`)

	if _, err := p.Translate(context.Background(), "hello", "en-US", "de-DE"); err == nil {
		t.Error("expected error for empty choices")
	}
}

func TestOpenAIProvider_APIError(t *testing.T) {
	p, _ := newOpenAIServer(t, http.StatusBadRequest, `{"error":{"message":"bad model","type":"invalid_request_error"}}`)

	if _, err := p.Translate(context.Background(), "hello", "en-US", "de-DE"); err == nil {
		t.Error("expected error for 400 response")
	}
}

func TestNewOpenAIProvider_RequiresKey(t *testing.T) {
	if _, err := NewOpenAIProvider(OpenAIConfig{}); err == nil {
		t.Error("expected error without API key")
	}
}
