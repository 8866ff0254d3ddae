package enrollment

import (
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/kozaktomas/visitor-desk/internal/visitor"
)

const (
	// DefaultSessionTTL is how long an abandoned flow is kept before disposal.
	DefaultSessionTTL = 15 * time.Minute

	reapInterval = time.Minute
)

// ManagerConfig configures a Manager. Base holds the options shared by every flow;
// its ID, Visitor, Camera and Hooks are set per flow.
type ManagerConfig struct {
	Base      Options
	NewCamera func(flowID string) Camera
	NewHooks  func(flow *Flow) Hooks
	TTL       time.Duration
}

// Manager owns the open enrollment flows.
type Manager struct {
	cfg    ManagerConfig
	flows  map[string]*Flow
	mu     sync.RWMutex
	stopCh chan struct{}
	once   sync.Once
}

// NewManager creates a manager and starts the background reaper.
func NewManager(cfg ManagerConfig) *Manager {
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultSessionTTL
	}
	m := &Manager{
		cfg:    cfg,
		flows:  make(map[string]*Flow),
		stopCh: make(chan struct{}),
	}
	go m.reapLoop()
	return m
}

// Open creates a new flow for the visitor.
func (m *Manager) Open(info *visitor.Info) (*Flow, error) {
	id := uuid.NewString()

	opts := m.cfg.Base
	opts.ID = id
	opts.Visitor = info
	opts.Hooks = Hooks{}
	if m.cfg.NewCamera != nil {
		opts.Camera = m.cfg.NewCamera(id)
	}

	flow, err := NewFlow(opts)
	if err != nil {
		return nil, err
	}
	if m.cfg.NewHooks != nil {
		flow.SetHooks(m.cfg.NewHooks(flow))
	}

	m.mu.Lock()
	m.flows[id] = flow
	m.mu.Unlock()

	return flow, nil
}

// Get returns the flow with the given ID, or nil.
func (m *Manager) Get(id string) *Flow {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.flows[id]
}

// Close cancels the flow on behalf of the visitor and forgets it.
func (m *Manager) Close(id string) error {
	flow := m.take(id)
	if flow == nil {
		return ErrNotFound
	}
	flow.Close()
	return nil
}

// Remove disposes of the flow without the visitor cancel callback and forgets it.
func (m *Manager) Remove(id string) {
	if flow := m.take(id); flow != nil {
		flow.Dispose()
	}
}

// Len returns the number of open flows.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.flows)
}

// Reap disposes of flows opened before now minus the TTL and returns how many were removed.
func (m *Manager) Reap(now time.Time) int {
	cutoff := now.Add(-m.cfg.TTL)

	m.mu.Lock()
	var expired []*Flow
	for id, flow := range m.flows {
		if flow.CreatedAt().Before(cutoff) {
			expired = append(expired, flow)
			delete(m.flows, id)
		}
	}
	m.mu.Unlock()

	for _, flow := range expired {
		flow.Dispose()
	}
	return len(expired)
}

// Stop stops the reaper and disposes of every open flow.
func (m *Manager) Stop() {
	m.once.Do(func() {
		close(m.stopCh)
	})

	m.mu.Lock()
	flows := m.flows
	m.flows = make(map[string]*Flow)
	m.mu.Unlock()

	for _, flow := range flows {
		flow.Dispose()
	}
}

func (m *Manager) take(id string) *Flow {
	m.mu.Lock()
	defer m.mu.Unlock()
	flow, ok := m.flows[id]
	if !ok {
		return nil
	}
	delete(m.flows, id)
	return flow
}

func (m *Manager) reapLoop() {
	ticker := time.NewTicker(reapInterval)
	defer ticker.Stop()
	for {
		select {
		case <-m.stopCh:
			return
		case now := <-ticker.C:
			if n := m.Reap(now); n > 0 {
				log.Printf("Disposed %d abandoned enrollment flows", n)
			}
		}
	}
}
