package ws

import (
	"errors"
	"net/http"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"gridspace/server/internal/arena"
	"gridspace/server/internal/auth"
	"gridspace/server/internal/net/proto"
)

// TokenValidator maps a presented token to a user identity. Implemented by
// the auth service.
type TokenValidator interface {
	ValidateToken(token string) (auth.Identity, error)
}

// HandlerConfig carries the handler's tunables.
type HandlerConfig struct {
	ReadLimit int64
}

// Handler upgrades websocket requests and drives the per-connection protocol
// state machine: Connected until a successful join, InSpace while a member
// of exactly one session, Closed when the loop exits.
type Handler struct {
	arena    *arena.Manager
	auth     TokenValidator
	registry *Registry
	logger   *zap.SugaredLogger
	upgrader websocket.Upgrader
	cfg      HandlerConfig
}

// NewHandler builds a websocket handler over the given session manager and
// token validator.
func NewHandler(manager *arena.Manager, validator TokenValidator, registry *Registry, logger *zap.SugaredLogger, cfg HandlerConfig) *Handler {
	return &Handler{
		arena:    manager,
		auth:     validator,
		registry: registry,
		logger:   logger.With("component", "ws"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		cfg: cfg,
	}
}

// Handle upgrades the request and serves the connection until it closes.
func (h *Handler) Handle(w http.ResponseWriter, r *http.Request) {
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warnw("upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}

	c := h.registry.add(ws)
	if c == nil {
		ws.Close()
		return
	}
	go c.writePump()
	h.serve(r, c)
}

// serve runs the read loop for one connection. Whatever way the loop exits,
// the connection resolves to "never joined" or "cleanly left": a joined
// participant is always removed from its session before teardown.
func (h *Handler) serve(r *http.Request, c *client) {
	var (
		session *arena.Session
		userID  string
	)
	defer func() {
		if session != nil {
			session.Leave(userID)
		}
		h.registry.remove(c)
		c.Close()
	}()

	if h.cfg.ReadLimit > 0 {
		c.ws.SetReadLimit(h.cfg.ReadLimit)
	}

	for {
		_, payload, err := c.ws.ReadMessage()
		if err != nil {
			return
		}

		env, err := proto.DecodeEnvelope(payload)
		if err != nil {
			h.logger.Debugw("discarding malformed frame", "conn", c.id, "error", err)
			continue
		}

		switch env.Type {
		case proto.TypeJoin:
			if session != nil {
				h.sendError(c, proto.ReasonAlreadyJoined, "already in a space")
				continue
			}
			msg, err := proto.DecodeJoin(env.Payload)
			if err != nil {
				h.sendError(c, proto.ReasonProtocol, "malformed join payload")
				continue
			}

			identity, err := h.auth.ValidateToken(msg.Token)
			if err != nil {
				h.sendError(c, proto.ReasonUnauthorized, "invalid token")
				return
			}

			joined, _, err := h.arena.Join(r.Context(), msg.SpaceID, identity.UserID, c)
			switch {
			case err == nil:
				session = joined
				userID = identity.UserID
			case errors.Is(err, arena.ErrSpaceNotFound):
				h.sendError(c, proto.ReasonSpaceNotFound, "no such space")
			case errors.Is(err, arena.ErrSpaceFull):
				h.sendError(c, proto.ReasonSpaceFull, "no free cell to spawn on")
			case errors.Is(err, arena.ErrAlreadyJoined):
				h.sendError(c, proto.ReasonAlreadyJoined, "user already in this space")
			default:
				h.logger.Warnw("join failed", "conn", c.id, "space", msg.SpaceID, "error", err)
				h.sendError(c, proto.ReasonProtocol, "join failed")
			}

		case proto.TypeMovement:
			if session == nil {
				h.sendError(c, proto.ReasonNotJoined, "join a space first")
				continue
			}
			msg, err := proto.DecodeMovement(env.Payload)
			if err != nil {
				h.sendError(c, proto.ReasonProtocol, "malformed movement payload")
				continue
			}
			if _, err := session.AttemptMove(userID, arena.Position{X: msg.X, Y: msg.Y}); err != nil {
				// The session dropped us after a failed write; no membership remains.
				session = nil
				userID = ""
				h.sendError(c, proto.ReasonNotJoined, "join a space first")
			}

		case proto.TypeLeave:
			if session != nil {
				session.Leave(userID)
				session = nil
				userID = ""
			}
			return

		default:
			h.sendError(c, proto.ReasonProtocol, "unknown message type")
		}
	}
}

func (h *Handler) sendError(c *client, reason, message string) {
	data, err := proto.EncodeError(proto.Error{Reason: reason, Message: message})
	if err != nil {
		return
	}
	if err := c.Send(data); err != nil {
		h.logger.Debugw("failed to send error frame", "conn", c.id, "error", err)
	}
}
