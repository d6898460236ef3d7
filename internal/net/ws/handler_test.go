package ws

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"gridspace/server/internal/arena"
	"gridspace/server/internal/auth"
	"gridspace/server/internal/net/proto"
	"gridspace/server/internal/store"
)

type wsFixture struct {
	t       *testing.T
	url     string
	auth    *auth.Service
	store   *store.Store
	spaceID string
}

func newWSFixture(t *testing.T, dimensions string) *wsFixture {
	t.Helper()
	st := store.New()
	space, err := st.CreateSpace("owner-1", "test space", dimensions, "")
	if err != nil {
		t.Fatalf("create space: %v", err)
	}

	logger := zap.NewNop().Sugar()
	authSvc := auth.NewService("test-secret", time.Hour)
	manager := arena.NewManager(st, logger)
	registry := NewRegistry()
	handler := NewHandler(manager, authSvc, registry, logger, HandlerConfig{ReadLimit: 4096})

	server := httptest.NewServer(http.HandlerFunc(handler.Handle))
	t.Cleanup(server.Close)

	return &wsFixture{
		t:       t,
		url:     "ws" + strings.TrimPrefix(server.URL, "http"),
		auth:    authSvc,
		store:   st,
		spaceID: space.ID,
	}
}

func (f *wsFixture) dial() *websocket.Conn {
	f.t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(f.url, nil)
	if err != nil {
		f.t.Fatalf("dial: %v", err)
	}
	f.t.Cleanup(func() { conn.Close() })
	return conn
}

func (f *wsFixture) token(userID string) string {
	f.t.Helper()
	token, err := f.auth.IssueToken(userID, auth.RoleUser)
	if err != nil {
		f.t.Fatalf("issue token: %v", err)
	}
	return token
}

func (f *wsFixture) send(conn *websocket.Conn, msgType string, payload any) {
	f.t.Helper()
	raw, err := json.Marshal(payload)
	if err != nil {
		f.t.Fatalf("marshal %s payload: %v", msgType, err)
	}
	if err := conn.WriteJSON(proto.Envelope{Type: msgType, Payload: raw}); err != nil {
		f.t.Fatalf("write %s: %v", msgType, err)
	}
}

func (f *wsFixture) read(conn *websocket.Conn) proto.Envelope {
	f.t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		f.t.Fatalf("read frame: %v", err)
	}
	env, err := proto.DecodeEnvelope(data)
	if err != nil {
		f.t.Fatalf("decode frame %q: %v", data, err)
	}
	return env
}

func (f *wsFixture) expect(conn *websocket.Conn, msgType string, payload any) {
	f.t.Helper()
	env := f.read(conn)
	if env.Type != msgType {
		f.t.Fatalf("frame type = %q, want %q (payload %s)", env.Type, msgType, env.Payload)
	}
	if payload != nil {
		if err := json.Unmarshal(env.Payload, payload); err != nil {
			f.t.Fatalf("decode %s payload: %v", msgType, err)
		}
	}
}

// join performs the join handshake for userID and returns its spawn position.
func (f *wsFixture) join(conn *websocket.Conn, userID string) proto.Point {
	f.t.Helper()
	f.send(conn, proto.TypeJoin, proto.Join{SpaceID: f.spaceID, Token: f.token(userID)})
	var joined proto.SpaceJoined
	f.expect(conn, proto.TypeSpaceJoined, &joined)
	return joined.Spawn
}

func TestJoinHandshake(t *testing.T) {
	f := newWSFixture(t, "5x5")

	first := f.dial()
	f.send(first, proto.TypeJoin, proto.Join{SpaceID: f.spaceID, Token: f.token("u-1")})
	var joined proto.SpaceJoined
	f.expect(first, proto.TypeSpaceJoined, &joined)
	if joined.Spawn != (proto.Point{X: 0, Y: 0}) {
		t.Fatalf("first spawn = %+v, want origin", joined.Spawn)
	}
	if joined.Users == nil || len(joined.Users) != 0 {
		t.Fatalf("first joiner users = %v, want empty list", joined.Users)
	}

	second := f.dial()
	f.send(second, proto.TypeJoin, proto.Join{SpaceID: f.spaceID, Token: f.token("u-2")})
	f.expect(second, proto.TypeSpaceJoined, &joined)
	if len(joined.Users) != 1 || joined.Users[0].UserID != "u-1" {
		t.Fatalf("second joiner users = %v, want just u-1", joined.Users)
	}

	var announce proto.UserJoin
	f.expect(first, proto.TypeUserJoin, &announce)
	if announce.UserID != "u-2" {
		t.Fatalf("user-join for %q, want u-2", announce.UserID)
	}
	if announce.X != joined.Spawn.X || announce.Y != joined.Spawn.Y {
		t.Fatalf("announced spawn (%d,%d) does not match joiner's (%d,%d)",
			announce.X, announce.Y, joined.Spawn.X, joined.Spawn.Y)
	}
}

func TestMovementBroadcastAndRejection(t *testing.T) {
	f := newWSFixture(t, "5x5")

	mover := f.dial()
	moverSpawn := f.join(mover, "u-1")
	watcher := f.dial()
	f.join(watcher, "u-2")
	f.expect(mover, proto.TypeUserJoin, nil)

	f.send(mover, proto.TypeMovement, proto.Movement{X: moverSpawn.X, Y: moverSpawn.Y + 1})
	for _, conn := range []*websocket.Conn{mover, watcher} {
		var moved proto.MovementAccepted
		f.expect(conn, proto.TypeMovementAccepted, &moved)
		if moved.UserID != "u-1" || moved.X != moverSpawn.X || moved.Y != moverSpawn.Y+1 {
			t.Fatalf("movement broadcast = %+v, want u-1 at (%d,%d)", moved, moverSpawn.X, moverSpawn.Y+1)
		}
	}

	// A two-cell jump is rejected and answered only to the mover with its
	// unchanged position.
	f.send(mover, proto.TypeMovement, proto.Movement{X: moverSpawn.X + 2, Y: moverSpawn.Y + 1})
	var rejected proto.MovementRejected
	f.expect(mover, proto.TypeMovementRejected, &rejected)
	if rejected.X != moverSpawn.X || rejected.Y != moverSpawn.Y+1 {
		t.Fatalf("rejection position = (%d,%d), want unchanged (%d,%d)",
			rejected.X, rejected.Y, moverSpawn.X, moverSpawn.Y+1)
	}

	// The watcher's next frame is the following accepted move, proving the
	// rejection was never broadcast.
	f.send(mover, proto.TypeMovement, proto.Movement{X: moverSpawn.X + 1, Y: moverSpawn.Y + 1})
	var moved proto.MovementAccepted
	f.expect(watcher, proto.TypeMovementAccepted, &moved)
	if moved.X != moverSpawn.X+1 || moved.Y != moverSpawn.Y+1 {
		t.Fatalf("watcher saw (%d,%d), want the accepted move (%d,%d)",
			moved.X, moved.Y, moverSpawn.X+1, moverSpawn.Y+1)
	}
}

func TestInvalidTokenClosesConnection(t *testing.T) {
	f := newWSFixture(t, "5x5")

	conn := f.dial()
	f.send(conn, proto.TypeJoin, proto.Join{SpaceID: f.spaceID, Token: "not-a-token"})

	var fail proto.Error
	f.expect(conn, proto.TypeError, &fail)
	if fail.Reason != proto.ReasonUnauthorized {
		t.Fatalf("error reason = %q, want %q", fail.Reason, proto.ReasonUnauthorized)
	}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Fatal("connection still open after rejected token")
	}
}

func TestUnknownSpaceKeepsConnectionUsable(t *testing.T) {
	f := newWSFixture(t, "5x5")

	conn := f.dial()
	f.send(conn, proto.TypeJoin, proto.Join{SpaceID: "no-such-space", Token: f.token("u-1")})

	var fail proto.Error
	f.expect(conn, proto.TypeError, &fail)
	if fail.Reason != proto.ReasonSpaceNotFound {
		t.Fatalf("error reason = %q, want %q", fail.Reason, proto.ReasonSpaceNotFound)
	}

	// The same connection may retry with a real space.
	spawn := f.join(conn, "u-1")
	if spawn != (proto.Point{X: 0, Y: 0}) {
		t.Fatalf("spawn after retry = %+v, want origin", spawn)
	}
}

func TestJoinFullyBlockedSpaceKeepsConnectionUsable(t *testing.T) {
	f := newWSFixture(t, "5x5")

	// A 1x1 space whose only cell holds a static element leaves no legal
	// spawn.
	wall, err := f.store.CreateElement("https://img.example/wall.png", 1, 1, true)
	if err != nil {
		t.Fatalf("create element: %v", err)
	}
	blocked, err := f.store.CreateSpace("owner-1", "sealed", "1x1", "")
	if err != nil {
		t.Fatalf("create space: %v", err)
	}
	if _, err := f.store.AddSpaceElement(blocked.ID, wall.ID, 0, 0); err != nil {
		t.Fatalf("place element: %v", err)
	}

	conn := f.dial()
	f.send(conn, proto.TypeJoin, proto.Join{SpaceID: blocked.ID, Token: f.token("u-1")})

	var fail proto.Error
	f.expect(conn, proto.TypeError, &fail)
	if fail.Reason != proto.ReasonSpaceFull {
		t.Fatalf("error reason = %q, want %q", fail.Reason, proto.ReasonSpaceFull)
	}

	// The same connection may still join a space with room.
	spawn := f.join(conn, "u-1")
	if spawn != (proto.Point{X: 0, Y: 0}) {
		t.Fatalf("spawn after refusal = %+v, want origin", spawn)
	}
}

func TestMovementBeforeJoinIsRefused(t *testing.T) {
	f := newWSFixture(t, "5x5")

	conn := f.dial()
	f.send(conn, proto.TypeMovement, proto.Movement{X: 1, Y: 0})

	var fail proto.Error
	f.expect(conn, proto.TypeError, &fail)
	if fail.Reason != proto.ReasonNotJoined {
		t.Fatalf("error reason = %q, want %q", fail.Reason, proto.ReasonNotJoined)
	}
}

func TestDisconnectNotifiesPeers(t *testing.T) {
	f := newWSFixture(t, "5x5")

	stayer := f.dial()
	f.join(stayer, "u-1")
	leaver := f.dial()
	f.join(leaver, "u-2")
	f.expect(stayer, proto.TypeUserJoin, nil)

	if err := leaver.Close(); err != nil {
		t.Fatalf("close leaver: %v", err)
	}

	var left proto.UserLeft
	f.expect(stayer, proto.TypeUserLeft, &left)
	if left.UserID != "u-2" {
		t.Fatalf("user-left for %q, want u-2", left.UserID)
	}
}

func TestExplicitLeave(t *testing.T) {
	f := newWSFixture(t, "5x5")

	stayer := f.dial()
	f.join(stayer, "u-1")
	leaver := f.dial()
	f.join(leaver, "u-2")
	f.expect(stayer, proto.TypeUserJoin, nil)

	f.send(leaver, proto.TypeLeave, struct{}{})

	var left proto.UserLeft
	f.expect(stayer, proto.TypeUserLeft, &left)
	if left.UserID != "u-2" {
		t.Fatalf("user-left for %q, want u-2", left.UserID)
	}

	leaver.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := leaver.ReadMessage(); err == nil {
		t.Fatal("connection still open after explicit leave")
	}
}

func TestMalformedFramesAreIgnored(t *testing.T) {
	f := newWSFixture(t, "5x5")

	conn := f.dial()
	if err := conn.WriteMessage(websocket.TextMessage, []byte("not json")); err != nil {
		t.Fatalf("write garbage: %v", err)
	}
	if err := conn.WriteMessage(websocket.TextMessage, []byte(`{"payload":{}}`)); err != nil {
		t.Fatalf("write typeless frame: %v", err)
	}

	// The connection survives garbage and still serves a normal join.
	spawn := f.join(conn, "u-1")
	if spawn != (proto.Point{X: 0, Y: 0}) {
		t.Fatalf("spawn after garbage = %+v, want origin", spawn)
	}
}
