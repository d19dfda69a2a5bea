package providers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestNewGemini_RequiresAPIKey(t *testing.T) {
	_, err := NewGemini("", "", "", "")
	if err == nil {
		t.Fatal("expected error for missing api key")
	}
}

func TestNewGemini_Defaults(t *testing.T) {
	p, err := NewGemini("test-key", "", "", "")
	if err != nil {
		t.Fatalf("NewGemini() error: %v", err)
	}
	if p.Name() != "gemini" {
		t.Errorf("Name() = %q, want gemini", p.Name())
	}
	if p.Tier() != TierPrimary {
		t.Errorf("Tier() = %q, want primary", p.Tier())
	}
	if p.Model() != "gemini-2.0-flash" {
		t.Errorf("Model() = %q, want gemini-2.0-flash", p.Model())
	}
}

func TestGeminiProvider_Generate(t *testing.T) {
	var gotReq geminiRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("x-goog-api-key"); got != "test-key" {
			t.Errorf("got api key header %q, want test-key", got)
		}
		_ = json.NewDecoder(r.Body).Decode(&gotReq)
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"candidates": []map[string]interface{}{
				{
					"content": map[string]interface{}{
						"role":  "model",
						"parts": []map[string]string{{"text": "Hello "}, {"text": "back"}},
					},
					"finishReason": "STOP",
				},
			},
			"usageMetadata": map[string]int{
				"promptTokenCount":     4,
				"candidatesTokenCount": 2,
				"totalTokenCount":      6,
			},
		})
	}))
	defer srv.Close()

	p, _ := NewGemini("test-key", srv.URL, "", "")
	resp, err := p.Generate(context.Background(), Request{
		SystemPrompt: "You are helpful",
		Messages: []Message{
			{Role: "user", Content: "Hi"},
			{Role: "assistant", Content: "Hello!"},
			{Role: "user", Content: "Again"},
		},
	})
	if err != nil {
		t.Fatalf("Generate() error: %v", err)
	}
	if resp.Content != "Hello back" {
		t.Errorf("got content %q, want concatenated parts", resp.Content)
	}
	if resp.TokensUsed != 6 {
		t.Errorf("got %d tokens, want 6", resp.TokensUsed)
	}

	if gotReq.SystemInstruction == nil || gotReq.SystemInstruction.Parts[0].Text != "You are helpful" {
		t.Error("expected system prompt mapped to systemInstruction")
	}
	if len(gotReq.Contents) != 3 {
		t.Fatalf("got %d contents, want 3", len(gotReq.Contents))
	}
	if gotReq.Contents[1].Role != "model" {
		t.Errorf("got role %q for assistant turn, want model", gotReq.Contents[1].Role)
	}
}

func TestGeminiProvider_GenerateAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"message":"quota exceeded","status":"RESOURCE_EXHAUSTED"}}`))
	}))
	defer srv.Close()

	p, _ := NewGemini("test-key", srv.URL, "", "")
	_, err := p.Generate(context.Background(), Request{
		Messages: []Message{{Role: "user", Content: "Hi"}},
	})
	if err == nil {
		t.Fatal("expected error for API failure")
	}
}

func TestConvertMessagesToGemini_SkipsSystem(t *testing.T) {
	contents := convertMessagesToGemini([]Message{
		{Role: "system", Content: "be brief"},
		{Role: "user", Content: "Hi"},
	})
	if len(contents) != 1 {
		t.Fatalf("got %d contents, want 1 (system skipped)", len(contents))
	}
	if contents[0].Role != "user" {
		t.Errorf("got role %q, want user", contents[0].Role)
	}
}
