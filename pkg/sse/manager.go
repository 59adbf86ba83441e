// Package sse keeps the registry of live Server-Sent Events clients and
// streams events to them.
package sse

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

var (
	// ErrClientClosed is returned by Send after the client disconnected
	ErrClientClosed = errors.New("sse client closed")
	// ErrClientBacklogged is returned when the client's buffer stayed full until the deadline
	ErrClientBacklogged = errors.New("sse client backlogged")
)

// Event is one SSE frame. Data is JSON-encoded unless it is a string.
type Event struct {
	Name string
	Data any
}

// Client is a registered live connection
type Client struct {
	ID          string    `json:"id"`
	UserAgent   string    `json:"user_agent"`
	ConnectedAt time.Time `json:"connected_at"`

	events    chan Event
	done      chan struct{}
	closeOnce sync.Once
	lastSeen  atomic.Int64
}

// Send queues ev for the client's stream
func (c *Client) Send(ctx context.Context, ev Event) error {
	select {
	case <-c.done:
		return ErrClientClosed
	default:
	}
	select {
	case c.events <- ev:
		return nil
	case <-c.done:
		return ErrClientClosed
	case <-ctx.Done():
		return fmt.Errorf("%w: %v", ErrClientBacklogged, ctx.Err())
	}
}

// LastSeen is the time of the last successful write to the client
func (c *Client) LastSeen() time.Time {
	return time.Unix(0, c.lastSeen.Load())
}

func (c *Client) touch(now time.Time) {
	c.lastSeen.Store(now.UnixNano())
}

func (c *Client) close() {
	c.closeOnce.Do(func() { close(c.done) })
}

// Options configures a Manager
type Options struct {
	// KeepAlive is the interval between ping comments on idle streams
	KeepAlive time.Duration
	// StaleAfter prunes clients whose last write is older than this
	StaleAfter time.Duration
	// BufferSize is the per-client event queue length
	BufferSize int
	Clock      func() time.Time
	Logger     zerolog.Logger
}

// Manager is the registry of connected clients. Register, Unregister and
// ForEach are safe for concurrent use.
type Manager struct {
	mu      sync.RWMutex
	clients map[string]*Client
	opts    Options
	log     zerolog.Logger
}

// NewManager creates an empty registry
func NewManager(opts Options) *Manager {
	if opts.KeepAlive <= 0 {
		opts.KeepAlive = 15 * time.Second
	}
	if opts.StaleAfter <= 0 {
		opts.StaleAfter = 3 * opts.KeepAlive
	}
	if opts.BufferSize <= 0 {
		opts.BufferSize = 16
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	return &Manager{
		clients: make(map[string]*Client),
		opts:    opts,
		log:     opts.Logger.With().Str("component", "sse").Logger(),
	}
}

// Register adds a new client and returns it
func (m *Manager) Register(userAgent string) *Client {
	now := m.opts.Clock()
	client := &Client{
		ID:          uuid.New().String(),
		UserAgent:   userAgent,
		ConnectedAt: now,
		events:      make(chan Event, m.opts.BufferSize),
		done:        make(chan struct{}),
	}
	client.touch(now)

	m.mu.Lock()
	m.clients[client.ID] = client
	total := len(m.clients)
	m.mu.Unlock()

	m.log.Info().Str("client_id", client.ID).Int("clients", total).Msg("client connected")
	return client
}

// Unregister removes the client and ends its stream. Unknown ids are ignored.
func (m *Manager) Unregister(id string) {
	m.mu.Lock()
	client, ok := m.clients[id]
	delete(m.clients, id)
	total := len(m.clients)
	m.mu.Unlock()

	if ok {
		client.close()
		m.log.Info().Str("client_id", id).Int("clients", total).Msg("client disconnected")
	}
}

// ForEach calls visit for a snapshot of the registered clients. The registry
// lock is not held while visit runs.
func (m *Manager) ForEach(visit func(*Client)) {
	m.mu.RLock()
	snapshot := make([]*Client, 0, len(m.clients))
	for _, client := range m.clients {
		snapshot = append(snapshot, client)
	}
	m.mu.RUnlock()

	for _, client := range snapshot {
		visit(client)
	}
}

// Len returns the number of registered clients
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.clients)
}

// CloseAll ends every open stream
func (m *Manager) CloseAll() {
	var ids []string
	m.ForEach(func(c *Client) { ids = append(ids, c.ID) })
	for _, id := range ids {
		m.Unregister(id)
	}
}

// Prune unregisters clients with no successful write within StaleAfter
func (m *Manager) Prune() int {
	cutoff := m.opts.Clock().Add(-m.opts.StaleAfter)
	var stale []string
	m.ForEach(func(c *Client) {
		if c.LastSeen().Before(cutoff) {
			stale = append(stale, c.ID)
		}
	})
	for _, id := range stale {
		m.Unregister(id)
	}
	return len(stale)
}

// Run prunes stale clients every KeepAlive until ctx is done
func (m *Manager) Run(ctx context.Context) {
	ticker := time.NewTicker(m.opts.KeepAlive)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := m.Prune(); n > 0 {
				m.log.Info().Int("pruned", n).Msg("pruned stale clients")
			}
		}
	}
}

// ServeHTTP registers the caller as a live client and streams events until
// the request ends, a write fails, or the client is unregistered.
func (m *Manager) ServeHTTP(c *gin.Context) {
	w := c.Writer
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	client := m.Register(c.Request.UserAgent())
	defer m.Unregister(client.ID)

	if err := m.write(client, w, Event{Name: "connected", Data: gin.H{"client_id": client.ID}}); err != nil {
		return
	}

	ticker := time.NewTicker(m.opts.KeepAlive)
	defer ticker.Stop()

	ctx := c.Request.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case <-client.done:
			return
		case ev := <-client.events:
			if err := m.write(client, w, ev); err != nil {
				m.log.Debug().Err(err).Str("client_id", client.ID).Msg("write failed")
				return
			}
		case <-ticker.C:
			if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
				return
			}
			w.Flush()
			client.touch(m.opts.Clock())
		}
	}
}

func (m *Manager) write(client *Client, w gin.ResponseWriter, ev Event) error {
	var data []byte
	switch v := ev.Data.(type) {
	case string:
		data = []byte(v)
	default:
		encoded, err := json.Marshal(v)
		if err != nil {
			return err
		}
		data = encoded
	}
	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Name, data); err != nil {
		return err
	}
	w.Flush()
	client.touch(m.opts.Clock())
	return nil
}
