package session

import (
	"log"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ManagerConfig configures a Manager
type ManagerConfig struct {
	IdleTimeout        time.Duration
	MaxSessions        int
	MaxHistory         int
	DefaultCountry     string
	DefaultSummaryLang string
}

// Manager owns the stores of all live sessions
type Manager struct {
	mu        sync.RWMutex
	sessions  map[string]*Store
	searcher  Searcher
	publisher Publisher
	config    ManagerConfig
	logger    *log.Logger
	now       func() time.Time
}

// NewManager creates a session manager
func NewManager(searcher Searcher, publisher Publisher, config ManagerConfig, logger *log.Logger) *Manager {
	if logger == nil {
		logger = log.New(log.Writer(), "[session] ", log.LstdFlags)
	}
	if config.IdleTimeout <= 0 {
		config.IdleTimeout = 2 * time.Hour
	}
	if config.MaxSessions < 1 {
		config.MaxSessions = 1000
	}
	return &Manager{
		sessions:  make(map[string]*Store),
		searcher:  searcher,
		publisher: publisher,
		config:    config,
		logger:    logger,
		now:       time.Now,
	}
}

// Get returns the store for id if it exists
func (m *Manager) Get(id string) (*Store, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	store, ok := m.sessions[id]
	return store, ok
}

// GetOrCreate returns the store for id, creating it if needed. An empty id
// allocates a new one. The second result reports whether a store was created.
func (m *Manager) GetOrCreate(id string) (*Store, bool) {
	if id != "" {
		if store, ok := m.Get(id); ok {
			return store, false
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if id == "" {
		id = uuid.NewString()
	} else if store, ok := m.sessions[id]; ok {
		return store, false
	}

	if len(m.sessions) >= m.config.MaxSessions {
		m.evictOldestLocked()
	}

	store := NewStore(id, m.searcher, StoreOptions{
		DefaultCountry:     m.config.DefaultCountry,
		DefaultSummaryLang: m.config.DefaultSummaryLang,
		MaxHistory:         m.config.MaxHistory,
		Publisher:          m.publisher,
		Logger:             m.logger,
	})
	store.now = m.now
	store.lastAccess = m.now()
	m.sessions[id] = store
	return store, true
}

// Remove drops session id and cancels its in-flight search
func (m *Manager) Remove(id string) {
	m.mu.Lock()
	store, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()

	if ok {
		store.Close()
	}
}

// Len returns the number of live sessions
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Sweep removes sessions idle for longer than the idle timeout and returns
// how many were removed
func (m *Manager) Sweep() int {
	cutoff := m.now().Add(-m.config.IdleTimeout)

	m.mu.Lock()
	var expired []*Store
	for id, store := range m.sessions {
		if store.LastAccess().Before(cutoff) {
			expired = append(expired, store)
			delete(m.sessions, id)
		}
	}
	m.mu.Unlock()

	for _, store := range expired {
		store.Close()
	}
	if len(expired) > 0 {
		m.logger.Printf("Evicted %d idle sessions", len(expired))
	}
	return len(expired)
}

// Close cancels in-flight searches of every session
func (m *Manager) Close() {
	m.mu.Lock()
	stores := make([]*Store, 0, len(m.sessions))
	for _, store := range m.sessions {
		stores = append(stores, store)
	}
	m.sessions = make(map[string]*Store)
	m.mu.Unlock()

	for _, store := range stores {
		store.Close()
	}
}

// evictOldestLocked removes the least recently used tenth of sessions, at least one (must be called with lock held)
func (m *Manager) evictOldestLocked() {
	type aged struct {
		id   string
		seen time.Time
	}
	all := make([]aged, 0, len(m.sessions))
	for id, store := range m.sessions {
		all = append(all, aged{id: id, seen: store.LastAccess()})
	}
	sort.Slice(all, func(i, j int) bool { return all[i].seen.Before(all[j].seen) })

	n := len(all) / 10
	if n < 1 {
		n = 1
	}
	for _, a := range all[:n] {
		m.sessions[a.id].Close()
		delete(m.sessions, a.id)
	}
	m.logger.Printf("Session limit %d reached, evicted %d least recently used", m.config.MaxSessions, n)
}
