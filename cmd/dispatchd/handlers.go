package main

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/relaylabs/dispatch"
	"github.com/relaylabs/dispatch/internal/logging"
	"github.com/relaylabs/dispatch/providers"
)

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

// handleGenerate decodes a generate request, dispatches it, and maps the
// dispatcher's terminal errors onto HTTP status codes: the usage gate maps
// to 429, total exhaustion to 502.
func handleGenerate(d *dispatch.Dispatcher) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req providers.Request
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
			return
		}
		if err := req.Validate(); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}

		resp, err := d.Generate(r.Context(), req)
		if err != nil {
			var usageErr *dispatch.UsageLimitError
			if errors.As(err, &usageErr) {
				writeError(w, http.StatusTooManyRequests, usageErr.Error())
				return
			}
			var allFailedErr *dispatch.AllProvidersFailedError
			if errors.As(err, &allFailedErr) {
				writeError(w, http.StatusBadGateway, allFailedErr.Error())
				return
			}
			logging.FromContext(r.Context()).Error("generate failed", "error", err.Error())
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}

		writeJSON(w, http.StatusOK, resp)
	}
}

func handleProviderHealth(d *dispatch.Dispatcher) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"providers": d.ProviderHealth(r.Context()),
		})
	}
}

func handleProviderStatus(d *dispatch.Dispatcher) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"providers": d.ProviderStatus(),
		})
	}
}

func handleFailovers(d *dispatch.Dispatcher) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := 50
		if raw := r.URL.Query().Get("limit"); raw != "" {
			parsed, err := strconv.Atoi(raw)
			if err != nil || parsed <= 0 {
				writeError(w, http.StatusBadRequest, "limit must be a positive integer")
				return
			}
			limit = parsed
		}

		events, err := d.FailoverEvents(r.Context(), limit)
		if err != nil {
			logging.FromContext(r.Context()).Error("failed to read failover events", "error", err.Error())
			writeError(w, http.StatusInternalServerError, "failed to read failover events")
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"events": events,
		})
	}
}

func handleUsage(d *dispatch.Dispatcher) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"usage": d.Usage(),
		})
	}
}
