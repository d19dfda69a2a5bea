package dispatch

import (
	"fmt"
	"sort"
	"strings"
)

// UsageLimitError is returned when the usage gate denies a dispatch before
// any provider is attempted.
type UsageLimitError struct {
	Reason string
}

func (e *UsageLimitError) Error() string {
	return "Usage limit: " + e.Reason
}

// AllProvidersFailedError is returned when every provider in the ordered
// sequence has been attempted (or skipped by its open circuit) and none
// produced a response.
type AllProvidersFailedError struct {
	// Errors maps provider name to its terminal error for the dispatch.
	Errors map[string]error
}

func (e *AllProvidersFailedError) Error() string {
	if len(e.Errors) == 0 {
		return "all providers failed: no providers configured"
	}
	names := make([]string, 0, len(e.Errors))
	for name := range e.Errors {
		names = append(names, name)
	}
	sort.Strings(names)
	parts := make([]string, 0, len(names))
	for _, name := range names {
		parts = append(parts, fmt.Sprintf("%s: %v", name, e.Errors[name]))
	}
	return "all providers failed: " + strings.Join(parts, "; ")
}

// Unwrap exposes the per-provider errors to errors.Is/As.
func (e *AllProvidersFailedError) Unwrap() []error {
	errs := make([]error, 0, len(e.Errors))
	for _, err := range e.Errors {
		errs = append(errs, err)
	}
	return errs
}
