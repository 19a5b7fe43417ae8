package session

import (
	"context"
	"errors"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ca-srg/searchchat/internal/metrics"
	"github.com/ca-srg/searchchat/internal/proxy"
	"github.com/ca-srg/searchchat/internal/types"
)

// EmptyQueryMessage is shown when a blank query is submitted
const EmptyQueryMessage = "Please enter a search query"

// Session event types
const (
	EventSearchStarted    = "search_started"
	EventSearchCompleted  = "search_completed"
	EventSearchFailed     = "search_failed"
	EventSelectionChanged = "selection_changed"
)

var (
	// ErrEmptyQuery is returned by Submit for a blank query
	ErrEmptyQuery = errors.New("empty query")
	// ErrSuperseded is returned by Submit when a newer submission replaced it
	ErrSuperseded = errors.New("search superseded by a newer submission")
)

// Searcher performs a resolved search
type Searcher interface {
	Search(ctx context.Context, req types.SearchRequest) (*types.SearchResponse, error)
}

// Publisher receives session events
type Publisher interface {
	Publish(sessionID, eventType string, data interface{})
}

// StoreOptions configures a Store
type StoreOptions struct {
	DefaultCountry     string
	DefaultSummaryLang string
	MaxHistory         int
	Publisher          Publisher
	Logger             *log.Logger
}

// Store holds the state of one session and applies transitions to it
type Store struct {
	id        string
	searcher  Searcher
	publisher Publisher
	logger    *log.Logger

	defaultCountry     string
	defaultSummaryLang string

	mu         sync.Mutex
	state      State
	cancel     context.CancelFunc
	lastAccess time.Time

	now   func() time.Time
	newID func() string
}

// NewStore creates the store for session id
func NewStore(id string, searcher Searcher, opts StoreOptions) *Store {
	if opts.Logger == nil {
		opts.Logger = log.New(log.Writer(), "[session] ", log.LstdFlags)
	}
	return &Store{
		id:                 id,
		searcher:           searcher,
		publisher:          opts.Publisher,
		logger:             opts.Logger,
		defaultCountry:     opts.DefaultCountry,
		defaultSummaryLang: opts.DefaultSummaryLang,
		state:              NewState(opts.DefaultCountry, opts.DefaultSummaryLang, opts.MaxHistory),
		lastAccess:         time.Now(),
		now:                time.Now,
		newID:              uuid.NewString,
	}
}

// ID returns the session id
func (s *Store) ID() string {
	return s.id
}

// Snapshot returns the current state
func (s *Store) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastAccess = s.now()
	return s.state
}

// LastAccess returns the time of the last operation on the store
func (s *Store) LastAccess() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastAccess
}

// dispatch applies a under the lock and returns the new state (must be called with lock held)
func (s *Store) dispatch(a Action) State {
	s.state = Reduce(s.state, a)
	s.lastAccess = s.now()
	return s.state
}

// Submit runs a search and commits its result. A newer Submit cancels the
// older one, whose result is then discarded and ErrSuperseded returned.
func (s *Store) Submit(ctx context.Context, query, country, summaryLang string) (State, error) {
	if strings.TrimSpace(query) == "" {
		s.mu.Lock()
		state := s.dispatch(SubmitRejected{Message: EmptyQueryMessage})
		s.mu.Unlock()

		metrics.RecordSearch(metrics.SurfaceWeb, metrics.OutcomeRejected)
		s.publish(EventSearchFailed, map[string]interface{}{"error": EmptyQueryMessage})
		return state, ErrEmptyQuery
	}

	req := types.SearchRequest{
		Query:       query,
		Country:     resolveCode(country, s.defaultCountry),
		SummaryLang: resolveCode(summaryLang, s.defaultSummaryLang),
	}

	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
	}
	reqCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	seq := s.state.Seq + 1
	state := s.dispatch(SubmitStarted{Seq: seq, Query: query})
	s.mu.Unlock()
	defer cancel()

	s.publish(EventSearchStarted, map[string]interface{}{
		"seq":         seq,
		"query":       query,
		"country":     req.Country,
		"summaryLang": req.SummaryLang,
	})

	resp, err := s.searcher.Search(reqCtx, req)

	s.mu.Lock()
	if s.state.Seq != seq {
		state = s.state
		s.mu.Unlock()
		metrics.RecordSearch(metrics.SurfaceWeb, metrics.OutcomeSuperseded)
		s.logger.Printf("Discarding result of superseded search %d in session %s", seq, s.id)
		return state, ErrSuperseded
	}
	s.cancel = nil

	if err != nil {
		failed := SubmitFailed{
			Seq:         seq,
			Message:     proxy.FetchFailedMessage,
			Country:     req.Country,
			SummaryLang: req.SummaryLang,
		}
		outcome := metrics.OutcomeFailure
		var validationErr *proxy.ValidationError
		if errors.As(err, &validationErr) {
			failed.Message = validationErr.Error()
			failed.Country, failed.SummaryLang = "", ""
			outcome = metrics.OutcomeRejected
		}
		state = s.dispatch(failed)
		s.mu.Unlock()

		metrics.RecordSearch(metrics.SurfaceWeb, outcome)
		s.publish(EventSearchFailed, map[string]interface{}{"seq": seq, "error": failed.Message})
		return state, err
	}

	entry := types.NewHistoryEntry(s.newID(), resp, s.now())
	state = s.dispatch(SubmitSucceeded{Seq: seq, Entry: entry, Country: req.Country, SummaryLang: req.SummaryLang})
	s.mu.Unlock()

	metrics.RecordSearch(metrics.SurfaceWeb, metrics.OutcomeSuccess)
	s.publish(EventSearchCompleted, map[string]interface{}{
		"seq":     seq,
		"id":      entry.ID,
		"query":   entry.Query,
		"results": len(entry.Results),
	})
	return state, nil
}

// Select selects entry id. Unknown ids leave the state unchanged.
func (s *Store) Select(id string) State {
	s.mu.Lock()
	before := s.state.SelectedID
	state := s.dispatch(EntrySelected{ID: id})
	s.mu.Unlock()

	if state.SelectedID != before {
		s.publish(EventSelectionChanged, map[string]interface{}{"id": state.SelectedID})
	}
	return state
}

// StartNew clears the selection and keeps history
func (s *Store) StartNew() State {
	s.mu.Lock()
	state := s.dispatch(NewChatStarted{})
	s.mu.Unlock()

	s.publish(EventSelectionChanged, map[string]interface{}{"id": ""})
	return state
}

// Close cancels any in-flight search
func (s *Store) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
}

// resolveCode trims and lowercases a form code, falling back for blank input
func resolveCode(code, fallback string) string {
	code = strings.ToLower(strings.TrimSpace(code))
	if code == "" {
		return fallback
	}
	return code
}

func (s *Store) publish(eventType string, data interface{}) {
	if s.publisher != nil {
		s.publisher.Publish(s.id, eventType, data)
	}
}
