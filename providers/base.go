package providers

// Base provides common fields and methods shared by the concrete provider
// implementations. Embed this struct to avoid repeating name, tier, apiKey,
// baseURL, and model handling across providers.
type Base struct {
	name    string
	tier    Tier
	apiKey  string
	baseURL string
	model   string
}

// Name returns the provider name.
func (b *Base) Name() string { return b.name }

// Tier returns the provider's priority class.
func (b *Base) Tier() Tier { return b.tier }

// Model returns the backend model ID this provider calls.
func (b *Base) Model() string { return b.model }
