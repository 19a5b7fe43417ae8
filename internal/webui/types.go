package webui

import (
	"github.com/ca-srg/searchchat/internal/catalog"
	"github.com/ca-srg/searchchat/internal/session"
	"github.com/ca-srg/searchchat/internal/types"
)

// SSE event types
const (
	EventTypeConnected        = "connected"
	EventTypeHeartbeat        = "heartbeat"
	EventTypeSearchStarted    = session.EventSearchStarted
	EventTypeSearchCompleted  = session.EventSearchCompleted
	EventTypeSearchFailed     = session.EventSearchFailed
	EventTypeSelectionChanged = session.EventSelectionChanged
)

// SSEEvent is an event queued for delivery. An empty SessionID broadcasts
// to every client.
type SSEEvent struct {
	Event     string      `json:"event"`
	SessionID string      `json:"-"`
	Data      interface{} `json:"data"`
}

// PageData is the view model of the chat page and its partials
type PageData struct {
	SessionID string
	State     session.State
	Selected  *types.HistoryEntry
	Catalog   *catalog.Catalog
}

// APISessionResponse is the JSON form of a session snapshot
type APISessionResponse struct {
	SessionID string `json:"sessionId"`
	session.State
}

// SelectRequest selects a history entry
type SelectRequest struct {
	ID string `json:"id"`
}

// APICatalogResponse lists the supported countries and summary languages
type APICatalogResponse struct {
	Countries          []catalog.Country  `json:"countries"`
	SummaryLanguages   []catalog.Language `json:"summaryLanguages"`
	DefaultCountry     string             `json:"defaultCountry"`
	DefaultSummaryLang string             `json:"defaultSummaryLang"`
}

// HealthResponse is returned by /healthz
type HealthResponse struct {
	Status   string                `json:"status"`
	Sessions int                   `json:"sessions"`
	Clients  int                   `json:"sseClients"`
	Sweeper  *session.SweeperState `json:"sweeper"`
}
