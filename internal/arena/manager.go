package arena

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// ErrSpaceNotFound reports a join against a space id the provider does not
// know about.
var ErrSpaceNotFound = errors.New("space not found")

// Manager owns the space id → session mapping. Sessions are created lazily
// on first join and discarded when their last participant leaves, so an
// empty space holds no server state.
type Manager struct {
	provider DescriptorProvider
	logger   *zap.SugaredLogger
	group    singleflight.Group

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewManager builds a manager resolving descriptors through provider.
func NewManager(provider DescriptorProvider, logger *zap.SugaredLogger) *Manager {
	return &Manager{
		provider: provider,
		logger:   logger.With("component", "arena"),
		sessions: make(map[string]*Session),
	}
}

// Join resolves or creates the session for spaceID and admits userID into
// it. Concurrent first joins for the same space id share a single descriptor
// fetch; a join racing a release simply retries against a fresh session.
func (m *Manager) Join(ctx context.Context, spaceID, userID string, conn Conn) (*Session, Position, error) {
	for {
		session, err := m.getOrCreate(ctx, spaceID)
		if err != nil {
			return nil, Position{}, err
		}
		spawn, err := session.Join(userID, conn)
		if errors.Is(err, errSessionReleased) {
			continue
		}
		if errors.Is(err, ErrSpaceFull) {
			// Nobody can ever occupy this session; drop it instead of
			// leaking an empty entry.
			m.release(session)
			return nil, Position{}, err
		}
		if err != nil {
			return nil, Position{}, err
		}
		return session, spawn, nil
	}
}

// getOrCreate returns the live session for spaceID, loading the descriptor
// on first access. The singleflight group collapses concurrent loads of the
// same space into one provider call.
func (m *Manager) getOrCreate(ctx context.Context, spaceID string) (*Session, error) {
	m.mu.Lock()
	if session, ok := m.sessions[spaceID]; ok {
		m.mu.Unlock()
		return session, nil
	}
	m.mu.Unlock()

	v, err, _ := m.group.Do(spaceID, func() (any, error) {
		desc, err := m.provider.GetSpaceDescriptor(ctx, spaceID)
		if err != nil {
			return nil, fmt.Errorf("load descriptor for %s: %w", spaceID, err)
		}
		return desc, nil
	})
	if err != nil {
		if errors.Is(err, ErrSpaceNotFound) {
			return nil, ErrSpaceNotFound
		}
		return nil, err
	}
	desc := v.(*SpaceDescriptor)

	m.mu.Lock()
	defer m.mu.Unlock()
	if session, ok := m.sessions[spaceID]; ok {
		// Lost the race; the winner's session is authoritative.
		return session, nil
	}
	session := newSession(desc, m, m.logger)
	m.sessions[spaceID] = session
	m.logger.Infow("session created", "space", spaceID, "width", desc.Width, "height", desc.Height)
	return session, nil
}

// release discards a session once empty. Emptiness is re-checked under both
// locks so a join that slipped in after the last leave keeps the session
// alive; lookup and release are mutually exclusive per space id.
func (m *Manager) release(s *Session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	current, ok := m.sessions[s.id]
	if !ok || current != s {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.participants) > 0 {
		return
	}
	s.released = true
	delete(m.sessions, s.id)
	m.logger.Infow("session released", "space", s.id)
}

// SessionCount reports the number of live sessions, for diagnostics.
func (m *Manager) SessionCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}
