package session

import (
	"github.com/ca-srg/searchchat/internal/types"
)

// DefaultMaxHistory caps the number of entries kept per session
const DefaultMaxHistory = 100

// State is an immutable snapshot of one session. Transitions produce a new
// State through Reduce; a State must not be modified after it is published.
type State struct {
	// History holds completed searches, newest first
	History []types.HistoryEntry `json:"history"`
	// SelectedID is empty or the id of an entry in History
	SelectedID string `json:"selectedId"`
	Loading    bool   `json:"loading"`
	Error      string `json:"error,omitempty"`

	// Draft echoes the last submitted query and is cleared after a
	// successful search. Country and SummaryLang are the resolved codes of
	// the last search that passed validation, for redisplay in the form.
	Draft       string `json:"draft,omitempty"`
	Country     string `json:"country"`
	SummaryLang string `json:"summaryLang"`

	// Seq is the token of the most recent submission
	Seq uint64 `json:"seq"`

	MaxHistory int `json:"-"`
}

// NewState returns the blank state for a fresh session
func NewState(country, summaryLang string, maxHistory int) State {
	if maxHistory < 1 {
		maxHistory = DefaultMaxHistory
	}
	return State{
		History:     []types.HistoryEntry{},
		Country:     country,
		SummaryLang: summaryLang,
		MaxHistory:  maxHistory,
	}
}

// Selected returns the selected entry, or nil for a blank chat
func (s State) Selected() *types.HistoryEntry {
	if s.SelectedID == "" {
		return nil
	}
	for i := range s.History {
		if s.History[i].ID == s.SelectedID {
			entry := s.History[i]
			return &entry
		}
	}
	return nil
}

// Entry looks up a history entry by id
func (s State) Entry(id string) (types.HistoryEntry, bool) {
	for _, entry := range s.History {
		if entry.ID == id {
			return entry, true
		}
	}
	return types.HistoryEntry{}, false
}

// withCodes remembers the codes of a search; blank values keep the previous ones
func (s State) withCodes(country, summaryLang string) State {
	if country != "" {
		s.Country = country
	}
	if summaryLang != "" {
		s.SummaryLang = summaryLang
	}
	return s
}

// Action is a state transition input
type Action interface {
	action()
}

// SubmitStarted marks a submission with token Seq as in flight
type SubmitStarted struct {
	Seq   uint64
	Query string
}

// SubmitRejected records a submission refused before reaching the backend
type SubmitRejected struct {
	Message string
}

// SubmitSucceeded commits the entry produced by submission Seq. Country
// and SummaryLang are the resolved codes the search ran with.
type SubmitSucceeded struct {
	Seq         uint64
	Entry       types.HistoryEntry
	Country     string
	SummaryLang string
}

// SubmitFailed records the failure of submission Seq. Country and
// SummaryLang are left empty when the codes were rejected.
type SubmitFailed struct {
	Seq         uint64
	Message     string
	Country     string
	SummaryLang string
}

// EntrySelected selects the entry with the given id
type EntrySelected struct {
	ID string
}

// NewChatStarted clears the selection
type NewChatStarted struct{}

func (SubmitStarted) action()   {}
func (SubmitRejected) action()  {}
func (SubmitSucceeded) action() {}
func (SubmitFailed) action()    {}
func (EntrySelected) action()   {}
func (NewChatStarted) action()  {}

// Reduce returns the state that results from applying a to s. It never
// modifies s. Completions whose token is not the latest are ignored.
func Reduce(s State, a Action) State {
	switch a := a.(type) {
	case SubmitStarted:
		s.Seq = a.Seq
		s.Loading = true
		s.Error = ""
		s.Draft = a.Query
		return s

	case SubmitRejected:
		s.Error = a.Message
		return s

	case SubmitSucceeded:
		if a.Seq != s.Seq || !s.Loading {
			return s
		}
		if _, exists := s.Entry(a.Entry.ID); exists {
			return s
		}
		limit := s.MaxHistory
		if limit < 1 {
			limit = DefaultMaxHistory
		}
		n := len(s.History) + 1
		if n > limit {
			n = limit
		}
		history := make([]types.HistoryEntry, 0, n)
		history = append(history, a.Entry)
		history = append(history, s.History[:n-1]...)

		s.History = history
		s.SelectedID = a.Entry.ID
		s = s.withCodes(a.Country, a.SummaryLang)
		s.Loading = false
		s.Error = ""
		s.Draft = ""
		return s

	case SubmitFailed:
		if a.Seq != s.Seq || !s.Loading {
			return s
		}
		s = s.withCodes(a.Country, a.SummaryLang)
		s.Loading = false
		s.Error = a.Message
		return s

	case EntrySelected:
		if _, exists := s.Entry(a.ID); exists {
			s.SelectedID = a.ID
		}
		return s

	case NewChatStarted:
		s.SelectedID = ""
		s.Error = ""
		return s
	}

	return s
}
