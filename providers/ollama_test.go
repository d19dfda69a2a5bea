package providers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestNewOllama_Defaults(t *testing.T) {
	p, err := NewOllama("", "", "")
	if err != nil {
		t.Fatalf("NewOllama() error: %v", err)
	}
	if p.Name() != "ollama" {
		t.Errorf("Name() = %q, want ollama", p.Name())
	}
	if p.Tier() != TierLocal {
		t.Errorf("Tier() = %q, want local", p.Tier())
	}
	if p.Model() != "llama3.2" {
		t.Errorf("Model() = %q, want llama3.2", p.Model())
	}
}

func TestOllamaProvider_Generate(t *testing.T) {
	var gotReq ollamaRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Errorf("got path %q, want /v1/chat/completions", r.URL.Path)
		}
		_ = json.NewDecoder(r.Body).Decode(&gotReq)
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"id":    "chatcmpl-1",
			"model": "llama3.2",
			"choices": []map[string]interface{}{
				{"message": map[string]string{"role": "assistant", "content": "Hi there"}, "finish_reason": "stop"},
			},
			"usage": map[string]int{"prompt_tokens": 5, "completion_tokens": 3, "total_tokens": 8},
		})
	}))
	defer srv.Close()

	p, _ := NewOllama(srv.URL, "", "")
	resp, err := p.Generate(context.Background(), Request{
		SystemPrompt: "You are helpful",
		Messages:     []Message{{Role: "user", Content: "Hello"}},
	})
	if err != nil {
		t.Fatalf("Generate() error: %v", err)
	}
	if resp.Content != "Hi there" {
		t.Errorf("got content %q, want Hi there", resp.Content)
	}
	if resp.TokensUsed != 8 {
		t.Errorf("got %d tokens, want 8", resp.TokensUsed)
	}

	// System prompt is folded in as the leading system message.
	if len(gotReq.Messages) != 2 {
		t.Fatalf("got %d messages, want 2", len(gotReq.Messages))
	}
	if gotReq.Messages[0].Role != RoleSystem || gotReq.Messages[0].Content != "You are helpful" {
		t.Errorf("got leading message %+v, want system prompt", gotReq.Messages[0])
	}
}

func TestOllamaProvider_GenerateAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":{"message":"model not loaded","type":"server_error"}}`))
	}))
	defer srv.Close()

	p, _ := NewOllama(srv.URL, "", "")
	_, err := p.Generate(context.Background(), Request{
		Messages: []Message{{Role: "user", Content: "Hello"}},
	})
	if err == nil {
		t.Fatal("expected error for API failure")
	}
}

func TestOllamaProvider_Available(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	p, _ := NewOllama(srv.URL, "", "")
	if !p.Available(context.Background()) {
		t.Error("expected Available=true for live server")
	}

	srv.Close()
	if p.Available(context.Background()) {
		t.Error("expected Available=false for closed server")
	}
}
