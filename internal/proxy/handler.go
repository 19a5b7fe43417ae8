package proxy

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/ca-srg/searchchat/internal/metrics"
	"github.com/ca-srg/searchchat/internal/types"
)

const maxRequestBody = 1 << 20

// ErrorResponse is the JSON body returned on failure
type ErrorResponse struct {
	Error string `json:"error"`
}

// ServeHTTP handles POST /api/search
func (p *Proxy) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		p.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req types.SearchRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody)).Decode(&req); err != nil {
		metrics.RecordSearch(metrics.SurfaceAPI, metrics.OutcomeRejected)
		p.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	body, _, err := p.Forward(r.Context(), req)
	if err != nil {
		var validationErr *ValidationError
		if errors.As(err, &validationErr) {
			metrics.RecordSearch(metrics.SurfaceAPI, metrics.OutcomeRejected)
			p.writeError(w, http.StatusBadRequest, validationErr.Error())
			return
		}
		metrics.RecordSearch(metrics.SurfaceAPI, metrics.OutcomeFailure)
		p.writeError(w, http.StatusInternalServerError, FetchFailedMessage)
		return
	}

	metrics.RecordSearch(metrics.SurfaceAPI, metrics.OutcomeSuccess)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(body); err != nil {
		p.logger.Printf("Failed to write response: %v", err)
	}
}

func (p *Proxy) writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(ErrorResponse{Error: message}); err != nil {
		p.logger.Printf("Failed to encode error response: %v", err)
	}
}
