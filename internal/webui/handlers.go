package webui

import (
	"net/http"

	"github.com/ca-srg/searchchat/internal/session"
)

// handleIndex renders the chat page
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	store := s.sessionFor(w, r)
	s.render(w, "index.html", s.pageData(store.ID(), store.Snapshot()))
}

// handlePartialChat renders the sidebar, form and selected entry
func (s *Server) handlePartialChat(w http.ResponseWriter, r *http.Request) {
	store := s.sessionFor(w, r)
	s.render(w, "chat.html", s.pageData(store.ID(), store.Snapshot()))
}

// handlePartialHistory renders the history sidebar
func (s *Server) handlePartialHistory(w http.ResponseWriter, r *http.Request) {
	store := s.sessionFor(w, r)
	s.render(w, "history.html", s.pageData(store.ID(), store.Snapshot()))
}

// handlePartialEntry renders the selected entry, or the blank chat
func (s *Server) handlePartialEntry(w http.ResponseWriter, r *http.Request) {
	store := s.sessionFor(w, r)
	s.render(w, "entry.html", s.pageData(store.ID(), store.Snapshot()))
}

func (s *Server) pageData(sessionID string, state session.State) *PageData {
	return &PageData{
		SessionID: sessionID,
		State:     state,
		Selected:  state.Selected(),
		Catalog:   s.catalog,
	}
}

func (s *Server) render(w http.ResponseWriter, name string, data interface{}) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := s.templates.Render(w, name, data); err != nil {
		s.logger.Printf("Failed to render %s: %v", name, err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
	}
}
