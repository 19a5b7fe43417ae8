package webui

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"
)

var (
	errTooManyClients        = errors.New("maximum number of SSE clients reached")
	errTooManySessionClients = errors.New("maximum number of SSE clients for this session reached")
)

// SSEConfig holds configuration for the SSE manager
type SSEConfig struct {
	HeartbeatInterval time.Duration
	BufferSize        int
	MaxClients        int
	// MaxClientsPerSession bounds the streams one browser session can hold open
	MaxClientsPerSession int
}

// DefaultSSEConfig returns the SSE settings used by the server
func DefaultSSEConfig() *SSEConfig {
	return &SSEConfig{
		HeartbeatInterval:    30 * time.Second,
		BufferSize:           100,
		MaxClients:           100,
		MaxClientsPerSession: 10,
	}
}

// SSEClient is one open event stream. Events holds preformatted messages.
type SSEClient struct {
	ID        string
	SessionID string
	Events    chan []byte
	Filters   []string
	Done      chan struct{}
	closeOnce sync.Once
}

func (c *SSEClient) close() {
	c.closeOnce.Do(func() {
		close(c.Done)
		close(c.Events)
	})
}

// wants reports whether the client subscribed to eventType
func (c *SSEClient) wants(eventType string) bool {
	if len(c.Filters) == 0 || eventType == EventTypeHeartbeat {
		return true
	}
	for _, filter := range c.Filters {
		if filter == eventType {
			return true
		}
	}
	return false
}

// SSEManager fans session events out to the streams of that session. It
// implements session.Publisher.
type SSEManager struct {
	mu        sync.RWMutex
	sessions  map[string]map[string]*SSEClient
	clientCnt int

	config *SSEConfig
	logger *log.Logger

	lastEventID atomic.Uint64
	eventQueue  chan *SSEEvent
	cancel      context.CancelFunc
	done        chan struct{}
}

// NewSSEManager creates a new SSE manager
func NewSSEManager(config *SSEConfig, logger *log.Logger) *SSEManager {
	defaults := DefaultSSEConfig()
	if config == nil {
		config = defaults
	}
	if config.HeartbeatInterval <= 0 {
		config.HeartbeatInterval = defaults.HeartbeatInterval
	}
	if config.BufferSize <= 0 {
		config.BufferSize = defaults.BufferSize
	}
	if config.MaxClients <= 0 {
		config.MaxClients = defaults.MaxClients
	}
	if config.MaxClientsPerSession <= 0 {
		config.MaxClientsPerSession = config.MaxClients
	}
	if logger == nil {
		logger = log.Default()
	}

	return &SSEManager{
		sessions:   make(map[string]map[string]*SSEClient),
		config:     config,
		logger:     logger,
		eventQueue: make(chan *SSEEvent, config.BufferSize),
	}
}

// Start runs the dispatcher and heartbeat until Stop or ctx cancellation
func (m *SSEManager) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	m.mu.Lock()
	m.cancel = cancel
	m.done = make(chan struct{})
	done := m.done
	m.mu.Unlock()

	go func() {
		defer close(done)
		m.run(ctx)
	}()
}

// Stop ends the dispatcher and closes every open stream
func (m *SSEManager) Stop() {
	m.mu.Lock()
	cancel, done := m.cancel, m.done
	m.cancel = nil
	for _, clients := range m.sessions {
		for _, client := range clients {
			client.close()
		}
	}
	m.sessions = make(map[string]map[string]*SSEClient)
	m.clientCnt = 0
	m.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
}

func (m *SSEManager) run(ctx context.Context) {
	heartbeat := time.NewTicker(m.config.HeartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case event := <-m.eventQueue:
			m.dispatch(event)
		case now := <-heartbeat.C:
			m.dispatch(&SSEEvent{
				Event: EventTypeHeartbeat,
				Data:  map[string]string{"timestamp": now.Format(time.RFC3339)},
			})
		}
	}
}

// RegisterClient opens a stream for sessionID. filters limits the event
// types delivered; heartbeats always pass.
func (m *SSEManager) RegisterClient(id, sessionID string, filters []string) (*SSEClient, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.clientCnt >= m.config.MaxClients {
		return nil, errTooManyClients
	}
	clients := m.sessions[sessionID]
	if len(clients) >= m.config.MaxClientsPerSession {
		return nil, errTooManySessionClients
	}
	if clients == nil {
		clients = make(map[string]*SSEClient)
		m.sessions[sessionID] = clients
	}

	client := &SSEClient{
		ID:        id,
		SessionID: sessionID,
		Events:    make(chan []byte, m.config.BufferSize),
		Filters:   filters,
		Done:      make(chan struct{}),
	}
	clients[id] = client
	m.clientCnt++

	m.logger.Printf("SSE client %s attached to session %s (total: %d)", id, sessionID, m.clientCnt)
	return client, nil
}

// UnregisterClient closes and removes a stream
func (m *SSEManager) UnregisterClient(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for sessionID, clients := range m.sessions {
		client, ok := clients[id]
		if !ok {
			continue
		}
		client.close()
		delete(clients, id)
		if len(clients) == 0 {
			delete(m.sessions, sessionID)
		}
		m.clientCnt--
		m.logger.Printf("SSE client %s detached (remaining: %d)", id, m.clientCnt)
		return
	}
}

// Publish queues an event for the streams of sessionID
func (m *SSEManager) Publish(sessionID, eventType string, data interface{}) {
	m.SendEvent(&SSEEvent{Event: eventType, SessionID: sessionID, Data: data})
}

// SendEvent queues an event. An event without SessionID goes to every
// stream. Events are dropped when the queue is full.
func (m *SSEManager) SendEvent(event *SSEEvent) {
	select {
	case m.eventQueue <- event:
	default:
		m.logger.Printf("SSE event queue full, dropping %s event", event.Event)
	}
}

func (m *SSEManager) dispatch(event *SSEEvent) {
	data, err := json.Marshal(event.Data)
	if err != nil {
		m.logger.Printf("Failed to marshal SSE event data: %v", err)
		return
	}
	message := formatSSEMessage(m.lastEventID.Add(1), event.Event, data)

	m.mu.RLock()
	defer m.mu.RUnlock()

	if event.SessionID != "" {
		m.deliver(m.sessions[event.SessionID], event.Event, message)
		return
	}
	for _, clients := range m.sessions {
		m.deliver(clients, event.Event, message)
	}
}

// deliver must be called with m.mu held
func (m *SSEManager) deliver(clients map[string]*SSEClient, eventType string, message []byte) {
	for _, client := range clients {
		if !client.wants(eventType) {
			continue
		}
		select {
		case client.Events <- message:
		default:
			m.logger.Printf("SSE client %s is not keeping up, dropping %s", client.ID, eventType)
		}
	}
}

func formatSSEMessage(id uint64, event string, data []byte) []byte {
	return fmt.Appendf(nil, "id: %d\nevent: %s\ndata: %s\n\n", id, event, data)
}

// GetClientCount returns the number of open streams
func (m *SSEManager) GetClientCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.clientCnt
}

// SessionClientCount returns the number of open streams of sessionID
func (m *SSEManager) SessionClientCount(sessionID string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions[sessionID])
}
