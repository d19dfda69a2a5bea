package providers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestNewAnthropic_RequiresAPIKey(t *testing.T) {
	_, err := NewAnthropic("", "", "", "")
	if err == nil {
		t.Fatal("expected error for missing api key")
	}
}

func TestNewAnthropic_Defaults(t *testing.T) {
	p, err := NewAnthropic("test-key", "", "", "")
	if err != nil {
		t.Fatalf("NewAnthropic() error: %v", err)
	}
	if p.Name() != "anthropic" {
		t.Errorf("Name() = %q, want anthropic", p.Name())
	}
	if p.Tier() != TierFallback {
		t.Errorf("Tier() = %q, want fallback", p.Tier())
	}
}

func TestAnthropicProvider_Generate(t *testing.T) {
	var gotReq anthropicRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("x-api-key"); got != "test-key" {
			t.Errorf("got api key header %q, want test-key", got)
		}
		if got := r.Header.Get("anthropic-version"); got != anthropicAPIVersion {
			t.Errorf("got version header %q, want %q", got, anthropicAPIVersion)
		}
		_ = json.NewDecoder(r.Body).Decode(&gotReq)
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"id":    "msg_1",
			"model": "claude-3-5-sonnet-20241022",
			"content": []map[string]string{
				{"type": "text", "text": "Hello!"},
			},
			"usage": map[string]int{"input_tokens": 10, "output_tokens": 5},
		})
	}))
	defer srv.Close()

	p, _ := NewAnthropic("test-key", srv.URL, "", "")
	resp, err := p.Generate(context.Background(), Request{
		SystemPrompt: "You are helpful",
		Messages: []Message{
			{Role: "system", Content: "Be brief"},
			{Role: "user", Content: "Hi"},
		},
	})
	if err != nil {
		t.Fatalf("Generate() error: %v", err)
	}
	if resp.Content != "Hello!" {
		t.Errorf("got content %q, want Hello!", resp.Content)
	}
	if resp.TokensUsed != 15 {
		t.Errorf("got %d tokens, want 15 (input+output)", resp.TokensUsed)
	}

	// System prompt and inline system messages fold into the system field.
	if gotReq.System != "You are helpful\nBe brief" {
		t.Errorf("got system %q, want folded prompt", gotReq.System)
	}
	if len(gotReq.Messages) != 1 {
		t.Fatalf("got %d messages, want 1 (system removed)", len(gotReq.Messages))
	}
	if gotReq.MaxTokens != anthropicDefaultMaxTokens {
		t.Errorf("got max_tokens %d, want default %d", gotReq.MaxTokens, anthropicDefaultMaxTokens)
	}
}

func TestAnthropicProvider_GenerateAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"type":"error","error":{"type":"overloaded_error","message":"Overloaded"}}`))
	}))
	defer srv.Close()

	p, _ := NewAnthropic("test-key", srv.URL, "", "")
	_, err := p.Generate(context.Background(), Request{
		Messages: []Message{{Role: "user", Content: "Hi"}},
	})
	if err == nil {
		t.Fatal("expected error for API failure")
	}
}
