package webui

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"strings"

	"github.com/ca-srg/searchchat/internal/proxy"
	"github.com/ca-srg/searchchat/internal/session"
	"github.com/ca-srg/searchchat/internal/types"
)

const maxFormBytes = 1 << 20

// handleAPICatalog lists the supported countries and summary languages
func (s *Server) handleAPICatalog(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	options := s.proxy.Options()
	s.writeJSON(w, &APICatalogResponse{
		Countries:          s.catalog.Countries,
		SummaryLanguages:   s.catalog.SummaryLanguages,
		DefaultCountry:     options.DefaultCountry,
		DefaultSummaryLang: options.DefaultSummaryLang,
	})
}

// handleAPISession returns the caller's session snapshot
func (s *Server) handleAPISession(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	store := s.sessionFor(w, r)
	s.writeJSON(w, &APISessionResponse{SessionID: store.ID(), State: store.Snapshot()})
}

// handleAPISessionSearch submits a search in the caller's session
func (s *Server) handleAPISessionSearch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	req, err := readSearchRequest(w, r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	store := s.sessionFor(w, r)

	// Searches outlive the request so a reload still shows the result
	ctx := context.WithoutCancel(r.Context())
	state, err := store.Submit(ctx, req.Query, req.Country, req.SummaryLang)

	status := http.StatusOK
	var validationErr *proxy.ValidationError
	switch {
	case err == nil, errors.Is(err, session.ErrSuperseded):
	case errors.Is(err, session.ErrEmptyQuery), errors.As(err, &validationErr):
		status = http.StatusBadRequest
	default:
		status = http.StatusBadGateway
	}

	s.respondSession(w, r, store.ID(), state, status)
}

// handleAPISessionSelect selects a history entry
func (s *Server) handleAPISessionSelect(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req SelectRequest
	if isJSON(r) {
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxFormBytes)).Decode(&req); err != nil {
			http.Error(w, "invalid JSON body", http.StatusBadRequest)
			return
		}
	} else {
		r.Body = http.MaxBytesReader(w, r.Body, maxFormBytes)
		if err := r.ParseForm(); err != nil {
			http.Error(w, "invalid form body", http.StatusBadRequest)
			return
		}
		req.ID = r.PostForm.Get("id")
	}

	store := s.sessionFor(w, r)
	state := store.Select(req.ID)

	status := http.StatusOK
	if state.SelectedID != req.ID {
		status = http.StatusNotFound
	}
	s.respondSession(w, r, store.ID(), state, status)
}

// handleAPISessionNew starts a blank chat, keeping history
func (s *Server) handleAPISessionNew(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	store := s.sessionFor(w, r)
	s.respondSession(w, r, store.ID(), store.StartNew(), http.StatusOK)
}

// handleHealthz reports liveness
func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, &HealthResponse{
		Status:   "ok",
		Sessions: s.sessions.Len(),
		Clients:  s.sseManager.GetClientCount(),
		Sweeper:  s.sweeper.GetState(),
	})
}

// respondSession answers HTMX requests with the chat partial, JSON clients
// with the snapshot, and plain form posts with a redirect to the page
func (s *Server) respondSession(w http.ResponseWriter, r *http.Request, sessionID string, state session.State, status int) {
	switch {
	case r.Header.Get("HX-Request") == "true":
		s.render(w, "chat.html", s.pageData(sessionID, state))
	case isJSON(r) || strings.Contains(r.Header.Get("Accept"), "application/json"):
		s.writeJSONStatus(w, status, &APISessionResponse{SessionID: sessionID, State: state})
	default:
		http.Redirect(w, r, "/", http.StatusSeeOther)
	}
}

// readSearchRequest decodes a JSON or form encoded search
func readSearchRequest(w http.ResponseWriter, r *http.Request) (types.SearchRequest, error) {
	var req types.SearchRequest
	if isJSON(r) {
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxFormBytes)).Decode(&req); err != nil {
			return req, fmt.Errorf("invalid JSON body")
		}
		return req, nil
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxFormBytes)
	if err := r.ParseForm(); err != nil {
		return req, fmt.Errorf("invalid form body")
	}
	req.Query = r.PostForm.Get("query")
	req.Country = r.PostForm.Get("country")
	req.SummaryLang = r.PostForm.Get("summaryLang")
	if req.SummaryLang == "" {
		req.SummaryLang = r.PostForm.Get("summary_lang")
	}
	return req, nil
}

func isJSON(r *http.Request) bool {
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	return err == nil && mediaType == "application/json"
}

// writeJSON writes a JSON response
func (s *Server) writeJSON(w http.ResponseWriter, data interface{}) {
	s.writeJSONStatus(w, http.StatusOK, data)
}

func (s *Server) writeJSONStatus(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Printf("Failed to encode JSON: %v", err)
	}
}
