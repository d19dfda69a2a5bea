// Package providers defines the Provider interface and shared data types
// used across all backend implementations the dispatcher can route to.
//
// A Provider belongs to exactly one Tier (primary, fallback, local) which
// fixes its position in the dispatch attempt order. Core types: Request,
// Response, Message.
package providers

import (
	"context"
	"errors"
	"fmt"
)

// Message role constants shared by all providers.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// Tier is the priority class of a provider. Providers are attempted in tier
// order: primary first, then fallback, then local.
type Tier string

// Tier constants in dispatch order.
const (
	TierPrimary  Tier = "primary"
	TierFallback Tier = "fallback"
	TierLocal    Tier = "local"
)

// Tiers lists all tiers in dispatch order.
func Tiers() []Tier {
	return []Tier{TierPrimary, TierFallback, TierLocal}
}

// Valid reports whether t is a known tier.
func (t Tier) Valid() bool {
	switch t {
	case TierPrimary, TierFallback, TierLocal:
		return true
	}
	return false
}

// Provider defines the interface that all text-generation backends must
// implement. Providers are configured once at startup and must be safe for
// concurrent use.
type Provider interface {
	// Name returns the provider identifier (e.g. "gemini", "openai").
	Name() string
	// Tier returns the provider's priority class.
	Tier() Tier
	// Generate sends req to the backend and returns the completed response.
	// Any transport or API problem is returned as an error.
	Generate(ctx context.Context, req Request) (*Response, error)
	// Available is a best-effort liveness probe. It reports reachability of
	// the backend only; it is independent of circuit-breaker state and is
	// never consulted for dispatch gating.
	Available(ctx context.Context) bool
}

// Message represents a single turn in a conversation.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Request represents a text-generation request entering the dispatcher.
// The surrounding application assembles it fully (system prompt plus message
// history) before handing it over.
type Request struct {
	SystemPrompt string    `json:"system_prompt,omitempty"`
	Messages     []Message `json:"messages"`
	Temperature  *float64  `json:"temperature,omitempty"`
	MaxTokens    *int      `json:"max_tokens,omitempty"`
}

// Validate returns an error if the request is missing required fields or
// contains out-of-range parameter values.
func (r Request) Validate() error {
	if len(r.Messages) == 0 {
		return errors.New("at least one message is required")
	}
	for i, m := range r.Messages {
		switch m.Role {
		case RoleUser, RoleAssistant, RoleSystem:
		default:
			return fmt.Errorf("message %d has unknown role %q", i, m.Role)
		}
	}
	if r.Temperature != nil && (*r.Temperature < 0 || *r.Temperature > 2) {
		return errors.New("temperature must be between 0 and 2")
	}
	if r.MaxTokens != nil && *r.MaxTokens <= 0 {
		return errors.New("max_tokens must be positive")
	}
	return nil
}

// Response represents a completed generation, normalised across providers.
// Model carries the name of the provider that produced the response so
// callers can tell which backend actually answered after failover.
type Response struct {
	Content    string `json:"content"`
	Model      string `json:"model"`
	TokensUsed int    `json:"tokens_used"`
	LatencyMs  int64  `json:"latency_ms"`
}
