package runner

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/rs/zerolog"

	"github.com/hperssn/stride/internal/domain"
	"github.com/hperssn/stride/internal/metrics"
	"github.com/hperssn/stride/internal/sensor"
)

var (
	ErrSessionExists   = errors.New("session already exists")
	ErrSessionNotFound = errors.New("session not found")
	ErrNotPushable     = errors.New("session sensor does not accept pushed readings")
)

const (
	DefaultIdleEviction    = time.Hour
	DefaultCleanupInterval = 5 * time.Minute
)

// DetectorFactory returns the step detector for a new session.
type DetectorFactory func(deviceID string) sensor.Detector

type ManagerConfig struct {
	Session         Config
	Detectors       DetectorFactory
	IdleEviction    time.Duration
	CleanupInterval time.Duration
}

type SessionManager struct {
	mu       sync.Mutex
	sessions map[string]*hosted

	cfg    ManagerConfig
	logger zerolog.Logger
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

type hosted struct {
	ctrl     *Controller
	detector sensor.Detector
}

func NewSessionManager(cfg ManagerConfig, logger zerolog.Logger) *SessionManager {
	if cfg.Detectors == nil {
		cfg.Detectors = func(string) sensor.Detector { return sensor.NewFeed() }
	}
	if cfg.Session.Clock == nil {
		cfg.Session.Clock = clock.New()
	}
	if cfg.IdleEviction <= 0 {
		cfg.IdleEviction = DefaultIdleEviction
	}
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = DefaultCleanupInterval
	}

	ctx, cancel := context.WithCancel(context.Background())
	m := &SessionManager{
		sessions: make(map[string]*hosted),
		cfg:      cfg,
		logger:   logger.With().Str("component", "session-manager").Logger(),
		ctx:      ctx,
		cancel:   cancel,
		done:     make(chan struct{}),
	}

	go m.cleanupLoop()

	return m
}

func (m *SessionManager) cleanupLoop() {
	defer close(m.done)

	clk := m.cfg.Session.Clock
	tk := clk.Ticker(m.cfg.CleanupInterval)
	defer tk.Stop()

	for {
		select {
		case <-tk.C:
			m.cleanupOldSessions(clk.Now())
		case <-m.ctx.Done():
			return
		}
	}
}

// cleanupOldSessions evicts sessions that are not running and have been
// untouched since before now minus the idle eviction window.
func (m *SessionManager) cleanupOldSessions(now time.Time) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := now.Add(-m.cfg.IdleEviction)
	evicted := 0

	for id, h := range m.sessions {
		sess := h.ctrl.Session()
		if !sess.IsRunning() && sess.UpdatedAt.Before(cutoff) {
			h.ctrl.Close()
			delete(m.sessions, id)
			evicted++
		}
	}

	if evicted > 0 {
		metrics.ActiveSessions.Sub(float64(evicted))
		m.logger.Info().Int("evicted", evicted).Msg("Evicted idle sessions")
	}
	return evicted
}

// Create hosts a new idle session for deviceID.
func (m *SessionManager) Create(id, deviceID string) (domain.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if id != "" {
		if _, exists := m.sessions[id]; exists {
			return domain.Session{}, ErrSessionExists
		}
	}

	s := domain.NewSession(id, deviceID)
	det := m.cfg.Detectors(deviceID)

	ctrl, err := NewController(m.ctx, s, det, m.cfg.Session, m.logger)
	if err != nil {
		return domain.Session{}, err
	}

	m.sessions[s.ID] = &hosted{ctrl: ctrl, detector: det}
	metrics.ActiveSessions.Inc()

	m.logger.Info().
		Str("session_id", s.ID).
		Str("device_id", deviceID).
		Msg("Session created")

	return s, nil
}

func (m *SessionManager) controller(id string) (*hosted, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	h, exists := m.sessions[id]
	if !exists {
		return nil, ErrSessionNotFound
	}
	return h, nil
}

func (m *SessionManager) Get(id string) (domain.Session, bool) {
	h, err := m.controller(id)
	if err != nil {
		return domain.Session{}, false
	}
	return h.ctrl.Session(), true
}

func (m *SessionManager) Start(id string) (domain.Session, error) {
	h, err := m.controller(id)
	if err != nil {
		return domain.Session{}, err
	}
	return h.ctrl.Start()
}

func (m *SessionManager) Stop(id string) (domain.Session, error) {
	h, err := m.controller(id)
	if err != nil {
		return domain.Session{}, err
	}
	return h.ctrl.Stop()
}

func (m *SessionManager) Reset(id string) (domain.Session, error) {
	h, err := m.controller(id)
	if err != nil {
		return domain.Session{}, err
	}
	return h.ctrl.Reset()
}

func (m *SessionManager) Show(id string) (domain.Handoff, error) {
	h, err := m.controller(id)
	if err != nil {
		return domain.Handoff{}, err
	}
	return h.ctrl.Show()
}

func (m *SessionManager) Subscribe(id string) (<-chan domain.Session, func(), error) {
	h, err := m.controller(id)
	if err != nil {
		return nil, nil, err
	}
	ch, cancel := h.ctrl.Subscribe()
	return ch, cancel, nil
}

// Publish pushes one step-detector reading to the session's sensor. It
// reports whether the reading reached a live subscription.
func (m *SessionManager) Publish(id string, value float64) (bool, error) {
	h, err := m.controller(id)
	if err != nil {
		return false, err
	}

	p, ok := h.detector.(sensor.Publisher)
	if !ok {
		return false, ErrNotPushable
	}
	return p.Publish(value), nil
}

func (m *SessionManager) Remove(id string) error {
	m.mu.Lock()
	h, exists := m.sessions[id]
	if exists {
		delete(m.sessions, id)
	}
	m.mu.Unlock()

	if !exists {
		return ErrSessionNotFound
	}

	h.ctrl.Close()
	metrics.ActiveSessions.Dec()
	return nil
}

func (m *SessionManager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Close stops the cleanup loop and every hosted session.
func (m *SessionManager) Close() {
	m.cancel()
	<-m.done

	m.mu.Lock()
	defer m.mu.Unlock()

	for id, h := range m.sessions {
		h.ctrl.Close()
		delete(m.sessions, id)
	}
	metrics.ActiveSessions.Set(0)
}
