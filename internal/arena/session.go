package arena

import (
	"errors"
	"sync"

	"go.uber.org/zap"

	"gridspace/server/internal/net/proto"
)

// Protocol-level session errors. They affect a single request, never the
// session or the process.
var (
	ErrAlreadyJoined = errors.New("user already joined this space")
	ErrNotJoined     = errors.New("user not joined to this space")
	ErrSpaceFull     = errors.New("no unblocked cell to spawn on")
)

// errSessionReleased marks a session that was removed from the manager
// between lookup and join. Callers go through Manager.Join, which retries.
var errSessionReleased = errors.New("session released")

// Conn is the session's non-owning handle to a participant's transport
// connection. A failed Send means the connection is gone and the participant
// is removed.
type Conn interface {
	Send(data []byte) error
}

// Participant is a user's live presence inside one session.
type Participant struct {
	UserID string
	Pos    Position
	conn   Conn
}

// Session holds the in-memory state of one occupied space: who is present
// and where. All mutations are serialized by the session mutex, so moves in
// the same space are validated one at a time while distinct spaces proceed
// in parallel.
type Session struct {
	id      string
	desc    *SpaceDescriptor
	blocked map[Position]struct{}
	manager *Manager
	logger  *zap.SugaredLogger

	mu           sync.Mutex
	participants map[string]*Participant
	released     bool
}

func newSession(desc *SpaceDescriptor, manager *Manager, logger *zap.SugaredLogger) *Session {
	return &Session{
		id:           desc.ID,
		desc:         desc,
		blocked:      desc.BlockedCells(),
		manager:      manager,
		logger:       logger.With("space", desc.ID),
		participants: make(map[string]*Participant),
	}
}

// ID returns the space id this session serves.
func (s *Session) ID() string { return s.id }

// Descriptor returns the read-only space descriptor.
func (s *Session) Descriptor() *SpaceDescriptor { return s.desc }

// MoveOutcome reports the result of an attempted move. Pos is the accepted
// target on success, or the participant's unchanged position on rejection.
type MoveOutcome struct {
	Accepted bool
	Pos      Position
}

// Join admits a user, assigns a spawn position, sends space-joined to the
// joiner and announces user-join to everyone already present. It fails with
// ErrAlreadyJoined when the user is already in the session, and with
// ErrSpaceFull when every cell of the space is statically blocked.
func (s *Session) Join(userID string, conn Conn) (Position, error) {
	s.mu.Lock()
	if s.released {
		s.mu.Unlock()
		return Position{}, errSessionReleased
	}
	if _, ok := s.participants[userID]; ok {
		s.mu.Unlock()
		return Position{}, ErrAlreadyJoined
	}

	spawn, ok := s.spawnLocked()
	if !ok {
		s.mu.Unlock()
		return Position{}, ErrSpaceFull
	}
	others := make([]proto.UserPosition, 0, len(s.participants))
	for _, p := range s.participants {
		others = append(others, proto.UserPosition{UserID: p.UserID, X: p.Pos.X, Y: p.Pos.Y})
	}

	s.participants[userID] = &Participant{UserID: userID, Pos: spawn, conn: conn}

	var failed []string
	if data, err := proto.EncodeSpaceJoined(proto.SpaceJoined{
		Spawn: proto.Point{X: spawn.X, Y: spawn.Y},
		Users: others,
	}); err == nil {
		failed = append(failed, s.sendLocked(userID, data)...)
	}
	if data, err := proto.EncodeUserJoin(proto.UserJoin{UserID: userID, X: spawn.X, Y: spawn.Y}); err == nil {
		failed = append(failed, s.broadcastLocked(data, userID)...)
	}
	s.mu.Unlock()

	s.logger.Infow("participant joined", "user", userID, "x", spawn.X, "y", spawn.Y)
	s.dropFailed(failed)
	return spawn, nil
}

// AttemptMove validates a proposed position for the user. An accepted move
// updates the participant and is broadcast to every participant including
// the mover; a rejected move answers only the requester with its unchanged
// position.
func (s *Session) AttemptMove(userID string, target Position) (MoveOutcome, error) {
	s.mu.Lock()
	p, ok := s.participants[userID]
	if !ok {
		s.mu.Unlock()
		return MoveOutcome{}, ErrNotJoined
	}

	if err := ValidateMove(p.Pos, target, s.desc.Width, s.desc.Height, s.blocked); err != nil {
		outcome := MoveOutcome{Accepted: false, Pos: p.Pos}
		var failed []string
		if data, encErr := proto.EncodeMovementRejected(proto.MovementRejected{X: p.Pos.X, Y: p.Pos.Y}); encErr == nil {
			failed = s.sendLocked(userID, data)
		}
		s.mu.Unlock()

		s.logger.Debugw("movement rejected", "user", userID, "x", target.X, "y", target.Y, "cause", err)
		s.dropFailed(failed)
		return outcome, nil
	}

	p.Pos = target
	var failed []string
	if data, err := proto.EncodeMovementAccepted(proto.MovementAccepted{UserID: userID, X: target.X, Y: target.Y}); err == nil {
		failed = s.broadcastLocked(data, "")
	}
	s.mu.Unlock()

	s.dropFailed(failed)
	return MoveOutcome{Accepted: true, Pos: target}, nil
}

// Leave removes the user and announces user-left to the remaining members.
// It is idempotent; leaving twice is a no-op. The last leave hands the
// session back to the manager.
func (s *Session) Leave(userID string) {
	s.mu.Lock()
	if _, ok := s.participants[userID]; !ok {
		s.mu.Unlock()
		return
	}
	delete(s.participants, userID)

	var failed []string
	if data, err := proto.EncodeUserLeft(proto.UserLeft{UserID: userID}); err == nil {
		failed = s.broadcastLocked(data, "")
	}
	empty := len(s.participants) == 0
	s.mu.Unlock()

	s.logger.Infow("participant left", "user", userID)
	s.dropFailed(failed)
	if empty {
		s.manager.release(s)
	}
}

// Participants returns a snapshot of current participant ids and positions.
func (s *Session) Participants() []proto.UserPosition {
	s.mu.Lock()
	defer s.mu.Unlock()
	snapshot := make([]proto.UserPosition, 0, len(s.participants))
	for _, p := range s.participants {
		snapshot = append(snapshot, proto.UserPosition{UserID: p.UserID, X: p.Pos.X, Y: p.Pos.Y})
	}
	return snapshot
}

// spawnLocked picks the spawn position for a new participant: row-major scan
// from the origin for the first cell that is neither statically blocked nor
// occupied. If every free cell is occupied the scan repeats ignoring
// occupancy, since participants do not block each other. Reports false when
// static elements cover the whole grid, so no legal spawn exists.
func (s *Session) spawnLocked() (Position, bool) {
	occupied := make(map[Position]struct{}, len(s.participants))
	for _, p := range s.participants {
		occupied[p.Pos] = struct{}{}
	}
	for y := 0; y < s.desc.Height; y++ {
		for x := 0; x < s.desc.Width; x++ {
			pos := Position{X: x, Y: y}
			if _, blocked := s.blocked[pos]; blocked {
				continue
			}
			if _, taken := occupied[pos]; taken {
				continue
			}
			return pos, true
		}
	}
	for y := 0; y < s.desc.Height; y++ {
		for x := 0; x < s.desc.Width; x++ {
			pos := Position{X: x, Y: y}
			if _, blocked := s.blocked[pos]; !blocked {
				return pos, true
			}
		}
	}
	return Position{}, false
}

// dropFailed removes participants whose connections refused a write. Each
// removal runs the normal leave path, so remaining members still get their
// user-left notification.
func (s *Session) dropFailed(userIDs []string) {
	for _, id := range userIDs {
		s.logger.Warnw("dropping participant after failed write", "user", id)
		s.Leave(id)
	}
}
