// Package dispatch provides a resilient request dispatcher for routing
// text-generation calls across interchangeable backend providers organised
// into priority tiers (primary, fallback, local).
//
// The Dispatcher type is the main entry point: create one with New, register
// extra providers with RegisterProvider, and route requests with Generate.
// Each dispatch walks the tier-ordered provider sequence, skipping providers
// whose circuit breaker is open, retrying transient failures with exponential
// backoff, enforcing usage quotas, and recording every failover in an
// append-only audit store.
package dispatch

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/relaylabs/dispatch/internal/circuitbreaker"
	"github.com/relaylabs/dispatch/internal/failover"
	"github.com/relaylabs/dispatch/internal/logging"
	"github.com/relaylabs/dispatch/internal/metrics"
	"github.com/relaylabs/dispatch/internal/retry"
	"github.com/relaylabs/dispatch/internal/usage"
	"github.com/relaylabs/dispatch/providers"
)

// EventHookFunc is called asynchronously after a dispatch completes or fails.
// Multiple hooks may be registered; all are invoked for every event.
type EventHookFunc func(ctx context.Context, subject string, data map[string]interface{})

// Event subject constants used when invoking dispatcher hooks.
const (
	SubjectDispatchCompleted = "dispatch.request.completed"
	SubjectDispatchFailed    = "dispatch.request.failed"
)

// ProviderHealth reports a provider's live reachability, independent of
// circuit-breaker state.
type ProviderHealth struct {
	Name      string         `json:"name"`
	Tier      providers.Tier `json:"tier"`
	Available bool           `json:"available"`
}

// ProviderStatus reports breaker-informed health used for dashboards.
type ProviderStatus struct {
	Name         string         `json:"name"`
	Tier         providers.Tier `json:"tier"`
	Healthy      bool           `json:"is_healthy"`
	State        string         `json:"state"`
	FailureCount int            `json:"failure_count"`
	OpenedAt     time.Time      `json:"opened_at,omitzero"`
}

// Dispatcher routes generate requests across the configured providers.
type Dispatcher struct {
	mu          sync.RWMutex
	config      Config
	registry    *providers.Registry
	breakers    map[string]*circuitbreaker.Breaker
	retryPolicy retry.Policy
	usage       *usage.Tracker
	events      failover.Store
	hooks       []EventHookFunc
}

// New creates a Dispatcher from cfg: it validates the configuration, opens
// the failover event store, builds the usage tracker and retry policy, and
// constructs and registers every declared provider.
func New(cfg Config) (*Dispatcher, error) {
	if err := ValidateConfig(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	store, err := openStore(cfg.FailoverStore)
	if err != nil {
		return nil, err
	}

	limits := make(map[string]usage.Limit, len(cfg.Usage))
	for name, uc := range cfg.Usage {
		limit := usage.Limit{
			TokenLimit:        uc.TokenLimit,
			RequestsPerSecond: uc.RequestsPerSecond,
			Burst:             uc.Burst,
		}
		if uc.Window != "" {
			limit.Window, _ = time.ParseDuration(uc.Window)
		}
		limits[name] = limit
	}

	d := &Dispatcher{
		config:      cfg,
		registry:    providers.NewRegistry(),
		breakers:    make(map[string]*circuitbreaker.Breaker),
		retryPolicy: retryPolicyFromConfig(cfg.Retry),
		usage:       usage.NewTracker(limits),
		events:      store,
	}

	for _, pc := range cfg.Providers {
		p, err := buildProvider(pc)
		if err != nil {
			return nil, fmt.Errorf("provider %s: %w", pc.Kind, err)
		}
		if err := d.registerProvider(p, pc.CircuitBreaker); err != nil {
			return nil, err
		}
	}

	return d, nil
}

// RegisterProvider registers an additional provider, typically a custom
// implementation not covered by the built-in kinds. It uses the global
// circuit-breaker settings.
func (d *Dispatcher) RegisterProvider(p providers.Provider) error {
	return d.registerProvider(p, nil)
}

func (d *Dispatcher) registerProvider(p providers.Provider, bc *BreakerConfig) error {
	if err := d.registry.Register(p); err != nil {
		return err
	}
	if bc == nil {
		bc = &d.config.CircuitBreaker
	}
	var timeout time.Duration
	if bc.Timeout != "" {
		timeout, _ = time.ParseDuration(bc.Timeout)
	}
	d.mu.Lock()
	d.breakers[p.Name()] = circuitbreaker.New(bc.FailureThreshold, timeout)
	d.mu.Unlock()
	return nil
}

func (d *Dispatcher) breakerFor(name string) *circuitbreaker.Breaker {
	d.mu.RLock()
	b, ok := d.breakers[name]
	d.mu.RUnlock()
	if ok {
		return b
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if b, ok = d.breakers[name]; ok {
		return b
	}
	b = circuitbreaker.New(d.config.CircuitBreaker.FailureThreshold, 0)
	d.breakers[name] = b
	return b
}

// AddHook registers an EventHookFunc that is called asynchronously on each
// completed or failed dispatch.
func (d *Dispatcher) AddHook(fn EventHookFunc) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.hooks = append(d.hooks, fn)
}

// publishEvent calls all registered hooks asynchronously.
func (d *Dispatcher) publishEvent(ctx context.Context, subject string, data map[string]interface{}) {
	d.mu.RLock()
	hooks := make([]EventHookFunc, len(d.hooks))
	copy(hooks, d.hooks)
	d.mu.RUnlock()

	for _, h := range hooks {
		fn := h
		go fn(ctx, subject, data)
	}
}

// Generate routes req across the tier-ordered provider sequence and returns
// the first successful response. It fails with *UsageLimitError when the
// usage gate denies the request before any provider is attempted, and with
// *AllProvidersFailedError when the whole sequence is exhausted. Individual
// provider failures are absorbed as failover triggers and never surface.
func (d *Dispatcher) Generate(ctx context.Context, req providers.Request) (*providers.Response, error) {
	start := time.Now()

	requestID := logging.RequestIDFromContext(ctx)
	if requestID == "" {
		requestID = logging.NewRequestID()
		ctx = logging.WithRequestID(ctx, requestID)
	}
	log := logging.FromContext(ctx)

	ordered := d.registry.Ordered()
	if len(ordered) == 0 {
		return nil, &AllProvidersFailedError{}
	}

	// One usage check at the start of dispatch, against the head of the
	// attempt order. Denial fails the whole request with no provider
	// attempted.
	if allowed, reason := d.usage.CanMakeRequest(ordered[0].Name()); !allowed {
		metrics.UsageDenied.WithLabelValues(ordered[0].Name()).Inc()
		metrics.RequestsTotal.WithLabelValues("", "usage_denied").Inc()
		log.Warn("dispatch denied by usage gate", "provider", ordered[0].Name(), "reason", reason)
		return nil, &UsageLimitError{Reason: reason}
	}

	errs := make(map[string]error, len(ordered))
	for i, p := range ordered {
		name := p.Name()
		breaker := d.breakerFor(name)

		if !breaker.Allow() {
			errs[name] = circuitbreaker.ErrCircuitOpen
			metrics.ProviderErrors.WithLabelValues(name, "circuit_open").Inc()
			metrics.CircuitBreakerState.WithLabelValues(name).Set(float64(breaker.State()))
			log.Debug("skipping provider, circuit open", "provider", name)
			continue
		}

		resp, err := retry.Do(ctx, d.retryPolicy, func(ctx context.Context) (*providers.Response, error) {
			return p.Generate(ctx, req)
		})
		if err == nil {
			breaker.RecordSuccess()
			metrics.CircuitBreakerState.WithLabelValues(name).Set(float64(breaker.State()))
			d.usage.TrackUsage(name, resp.TokensUsed)
			resp.Model = name

			latency := time.Since(start)
			metrics.RequestsTotal.WithLabelValues(name, "success").Inc()
			metrics.RequestDuration.WithLabelValues(name).Observe(latency.Seconds())
			metrics.TokensUsed.WithLabelValues(name).Add(float64(resp.TokensUsed))

			log.Info("dispatch completed",
				"provider", name,
				"tier", string(p.Tier()),
				"latency_ms", latency.Milliseconds(),
				"tokens_used", resp.TokensUsed,
			)
			d.publishEvent(ctx, SubjectDispatchCompleted, map[string]interface{}{
				"request_id":  requestID,
				"provider":    name,
				"tier":        string(p.Tier()),
				"latency_ms":  latency.Milliseconds(),
				"tokens_used": resp.TokensUsed,
				"timestamp":   time.Now(),
			})
			return resp, nil
		}

		// Exhausted failure for this provider: record the failover, trip the
		// breaker once per attempt cycle, and advance.
		breaker.RecordFailure()
		errs[name] = err
		metrics.ProviderErrors.WithLabelValues(name, "provider_error").Inc()
		metrics.CircuitBreakerState.WithLabelValues(name).Set(float64(breaker.State()))

		// A failover event marks a transition to the next provider; the last
		// provider in the sequence has nowhere to fail over to.
		next := ""
		if i+1 < len(ordered) {
			next = ordered[i+1].Name()
			ev := failover.Event{
				FailedProvider: name,
				NextProvider:   next,
				Reason:         err.Error(),
				RequestID:      requestID,
				OccurredAt:     time.Now().UTC(),
			}
			if appendErr := d.events.Append(ctx, ev); appendErr != nil {
				// Persistence is best-effort: never interrupts failover and
				// never aborts an eventual success.
				log.Warn("failed to persist failover event", "provider", name, "error", appendErr.Error())
			}
			metrics.Failovers.WithLabelValues(name, next).Inc()
		}
		log.Warn("provider failed, failing over",
			"provider", name,
			"next", next,
			"error", err.Error(),
		)
	}

	latency := time.Since(start)
	aggErr := &AllProvidersFailedError{Errors: errs}
	metrics.RequestsTotal.WithLabelValues("", "error").Inc()
	log.Error("all providers failed",
		"providers", len(ordered),
		"latency_ms", latency.Milliseconds(),
		"error", aggErr.Error(),
	)
	d.publishEvent(ctx, SubjectDispatchFailed, map[string]interface{}{
		"request_id": requestID,
		"providers":  len(ordered),
		"latency_ms": latency.Milliseconds(),
		"error":      aggErr.Error(),
		"timestamp":  time.Now(),
	})
	return nil, aggErr
}

// ProviderHealth probes every provider's liveness. Results are independent
// of circuit-breaker state.
func (d *Dispatcher) ProviderHealth(ctx context.Context) []ProviderHealth {
	ordered := d.registry.Ordered()
	health := make([]ProviderHealth, len(ordered))
	for i, p := range ordered {
		health[i] = ProviderHealth{
			Name:      p.Name(),
			Tier:      p.Tier(),
			Available: p.Available(ctx),
		}
	}
	return health
}

// ProviderStatus returns the breaker-informed health of every provider.
func (d *Dispatcher) ProviderStatus() []ProviderStatus {
	ordered := d.registry.Ordered()
	status := make([]ProviderStatus, len(ordered))
	for i, p := range ordered {
		snap := d.breakerFor(p.Name()).Snapshot()
		status[i] = ProviderStatus{
			Name:         p.Name(),
			Tier:         p.Tier(),
			Healthy:      snap.State != circuitbreaker.StateOpen,
			State:        snap.State.String(),
			FailureCount: snap.FailureCount,
			OpenedAt:     snap.OpenedAt,
		}
	}
	return status
}

// FailoverEvents returns up to limit recent failover audit events.
func (d *Dispatcher) FailoverEvents(ctx context.Context, limit int) ([]failover.Event, error) {
	return d.events.Recent(ctx, limit)
}

// Usage returns per-provider quota consumption snapshots.
func (d *Dispatcher) Usage() map[string]usage.Snapshot {
	return d.usage.Snapshots()
}

// Providers returns the names of all registered providers in dispatch order.
func (d *Dispatcher) Providers() []string {
	return d.registry.Names()
}

// Close releases the failover store.
func (d *Dispatcher) Close() error {
	if closer, ok := d.events.(interface{ Close() error }); ok {
		return closer.Close()
	}
	return nil
}

func retryPolicyFromConfig(rc RetryConfig) retry.Policy {
	p := retry.DefaultPolicy()
	if rc.MaxAttempts > 0 {
		p.MaxAttempts = rc.MaxAttempts
	}
	if rc.InitialDelayMs > 0 {
		p.InitialDelay = time.Duration(rc.InitialDelayMs) * time.Millisecond
	}
	if rc.MaxDelayMs > 0 {
		p.MaxDelay = time.Duration(rc.MaxDelayMs) * time.Millisecond
	}
	if rc.BackoffMultiplier > 1 {
		p.Multiplier = rc.BackoffMultiplier
	}
	if len(rc.RetryableMarkers) > 0 {
		p.RetryableMarkers = rc.RetryableMarkers
	}
	return p
}

func openStore(sc StoreConfig) (failover.Store, error) {
	switch sc.Driver {
	case "", "sqlite":
		store, err := failover.NewSQLiteStore(sc.DSN)
		if err != nil {
			return nil, err
		}
		return store, nil
	case "postgres":
		store, err := failover.NewPostgresStore(sc.DSN)
		if err != nil {
			return nil, err
		}
		return store, nil
	case "memory":
		return failover.NewMemoryStore(), nil
	case "none":
		return failover.NoopStore{}, nil
	default:
		return nil, fmt.Errorf("unknown failover store driver: %q", sc.Driver)
	}
}

// buildProvider constructs a built-in provider from its declaration.
func buildProvider(pc ProviderConfig) (providers.Provider, error) {
	tier := providers.Tier(pc.Tier)
	apiKey := pc.APIKey
	if apiKey == "" && pc.APIKeyEnv != "" {
		apiKey = os.Getenv(pc.APIKeyEnv)
	}
	if apiKey == "" {
		apiKey = os.Getenv(defaultKeyEnv(pc.Kind))
	}

	switch pc.Kind {
	case "gemini":
		return providers.NewGemini(apiKey, pc.BaseURL, pc.Model, tier)
	case "openai":
		return providers.NewOpenAI(apiKey, pc.BaseURL, pc.Model, tier)
	case "anthropic":
		return providers.NewAnthropic(apiKey, pc.BaseURL, pc.Model, tier)
	case "bedrock":
		return providers.NewBedrock(pc.Region, pc.Model, tier)
	case "ollama":
		return providers.NewOllama(pc.BaseURL, pc.Model, tier)
	default:
		return nil, fmt.Errorf("unknown provider kind: %q", pc.Kind)
	}
}

func defaultKeyEnv(kind string) string {
	switch kind {
	case "gemini":
		return "GEMINI_API_KEY"
	case "openai":
		return "OPENAI_API_KEY"
	case "anthropic":
		return "ANTHROPIC_API_KEY"
	default:
		return ""
	}
}
