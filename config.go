package dispatch

// Config holds the configuration for the dispatcher.
type Config struct {
	// Providers declares the backends to construct at startup, in
	// registration order. Order within a tier is dispatch order.
	Providers []ProviderConfig `json:"providers" yaml:"providers"`
	// CircuitBreaker applies to every provider unless overridden per provider.
	CircuitBreaker BreakerConfig `json:"circuit_breaker,omitempty" yaml:"circuit_breaker,omitempty"`
	// Retry configures the per-provider retry policy.
	Retry RetryConfig `json:"retry,omitempty" yaml:"retry,omitempty"`
	// Usage maps provider name to its quota.
	Usage map[string]UsageConfig `json:"usage,omitempty" yaml:"usage,omitempty"`
	// FailoverStore configures where failover audit events are persisted.
	FailoverStore StoreConfig `json:"failover_store,omitempty" yaml:"failover_store,omitempty"`
}

// ProviderConfig declares one backend.
type ProviderConfig struct {
	// Kind selects the implementation: gemini, openai, anthropic, bedrock, ollama.
	Kind string `json:"kind" yaml:"kind"`
	// Tier is the priority class; empty selects the kind's default tier.
	Tier string `json:"tier,omitempty" yaml:"tier,omitempty"`
	// APIKeyEnv names the environment variable holding the credential.
	// APIKey wins when both are set (useful for tests, discouraged in files).
	APIKeyEnv string `json:"api_key_env,omitempty" yaml:"api_key_env,omitempty"`
	APIKey    string `json:"api_key,omitempty" yaml:"api_key,omitempty"`
	// BaseURL overrides the backend endpoint (unused by bedrock).
	BaseURL string `json:"base_url,omitempty" yaml:"base_url,omitempty"`
	// Model is the backend model ID to call; empty selects the kind's default.
	Model string `json:"model,omitempty" yaml:"model,omitempty"`
	// Region is bedrock-only.
	Region string `json:"region,omitempty" yaml:"region,omitempty"`
	// CircuitBreaker overrides the global breaker settings for this provider.
	CircuitBreaker *BreakerConfig `json:"circuit_breaker,omitempty" yaml:"circuit_breaker,omitempty"`
}

// BreakerConfig defines circuit breaker behavior.
type BreakerConfig struct {
	// FailureThreshold is the consecutive-failure count that opens the circuit.
	FailureThreshold int `json:"failure_threshold" yaml:"failure_threshold"`
	// Timeout is the open-state cooldown as a Go duration string (e.g. "60s").
	Timeout string `json:"timeout" yaml:"timeout"`
}

// RetryConfig defines retry behavior per provider attempt.
type RetryConfig struct {
	MaxAttempts       int      `json:"max_attempts,omitempty" yaml:"max_attempts,omitempty"`
	InitialDelayMs    int      `json:"initial_delay_ms,omitempty" yaml:"initial_delay_ms,omitempty"`
	MaxDelayMs        int      `json:"max_delay_ms,omitempty" yaml:"max_delay_ms,omitempty"`
	BackoffMultiplier float64  `json:"backoff_multiplier,omitempty" yaml:"backoff_multiplier,omitempty"`
	RetryableMarkers  []string `json:"retryable_markers,omitempty" yaml:"retryable_markers,omitempty"`
}

// UsageConfig defines one provider's quota.
type UsageConfig struct {
	// TokenLimit is the token budget per window; 0 means unlimited.
	TokenLimit int `json:"token_limit,omitempty" yaml:"token_limit,omitempty"`
	// Window is the budget window as a Go duration string (default "1m").
	Window string `json:"window,omitempty" yaml:"window,omitempty"`
	// RequestsPerSecond adds an optional rate gate; 0 disables it.
	RequestsPerSecond float64 `json:"requests_per_second,omitempty" yaml:"requests_per_second,omitempty"`
	Burst             float64 `json:"burst,omitempty" yaml:"burst,omitempty"`
}

// StoreConfig selects the failover event store backend.
type StoreConfig struct {
	// Driver is one of sqlite, postgres, memory, none. Empty means sqlite.
	Driver string `json:"driver,omitempty" yaml:"driver,omitempty"`
	// DSN is the database path (sqlite) or connection string (postgres).
	DSN string `json:"dsn,omitempty" yaml:"dsn,omitempty"`
}
