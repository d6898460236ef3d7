package proto

import (
	"encoding/json"
	"fmt"
)

// Inbound message type identifiers.
const (
	TypeJoin     = "join"
	TypeMovement = "movement"
	TypeLeave    = "leave"
)

// Outbound message type identifiers.
const (
	TypeSpaceJoined      = "space-joined"
	TypeUserJoin         = "user-join"
	TypeMovementAccepted = "movement"
	TypeMovementRejected = "movement-rejected"
	TypeUserLeft         = "user-left"
	TypeError            = "error"
)

// Envelope is the wire frame shared by every websocket message. The payload
// layout depends on Type.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// DecodeEnvelope parses the outer frame of an inbound message.
func DecodeEnvelope(data []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return env, fmt.Errorf("decode envelope: %w", err)
	}
	if env.Type == "" {
		return env, fmt.Errorf("decode envelope: missing type")
	}
	return env, nil
}

// Join asks the server to admit the sender into a space.
type Join struct {
	SpaceID string `json:"spaceId"`
	Token   string `json:"token"`
}

// DecodeJoin parses a join payload.
func DecodeJoin(payload []byte) (Join, error) {
	var msg Join
	if err := json.Unmarshal(payload, &msg); err != nil {
		return msg, fmt.Errorf("decode join: %w", err)
	}
	if msg.SpaceID == "" {
		return msg, fmt.Errorf("decode join: missing spaceId")
	}
	return msg, nil
}

// Movement proposes a new position for the sender's participant.
type Movement struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// DecodeMovement parses a movement payload.
func DecodeMovement(payload []byte) (Movement, error) {
	var msg Movement
	if err := json.Unmarshal(payload, &msg); err != nil {
		return msg, fmt.Errorf("decode movement: %w", err)
	}
	return msg, nil
}

// Point carries a grid coordinate inside outbound payloads.
type Point struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// UserPosition pairs a participant id with its current position.
type UserPosition struct {
	UserID string `json:"userId"`
	X      int    `json:"x"`
	Y      int    `json:"y"`
}

// SpaceJoined is sent to a joiner after admission: its spawn position plus a
// snapshot of the other participants already present.
type SpaceJoined struct {
	Spawn Point          `json:"spawn"`
	Users []UserPosition `json:"users"`
}

// EncodeSpaceJoined renders the admission payload for the joiner.
func EncodeSpaceJoined(msg SpaceJoined) ([]byte, error) {
	if msg.Users == nil {
		msg.Users = []UserPosition{}
	}
	return encode(TypeSpaceJoined, msg)
}

// UserJoin announces a new participant to the members already in the space.
type UserJoin struct {
	UserID string `json:"userId"`
	X      int    `json:"x"`
	Y      int    `json:"y"`
}

// EncodeUserJoin renders a user-join broadcast.
func EncodeUserJoin(msg UserJoin) ([]byte, error) {
	return encode(TypeUserJoin, msg)
}

// MovementAccepted broadcasts an accepted position change to every
// participant, the mover included.
type MovementAccepted struct {
	UserID string `json:"userId"`
	X      int    `json:"x"`
	Y      int    `json:"y"`
}

// EncodeMovementAccepted renders an accepted-movement broadcast.
func EncodeMovementAccepted(msg MovementAccepted) ([]byte, error) {
	return encode(TypeMovementAccepted, msg)
}

// MovementRejected carries the requester's unchanged position back after an
// illegal move. It is never broadcast.
type MovementRejected struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// EncodeMovementRejected renders a movement rejection.
func EncodeMovementRejected(msg MovementRejected) ([]byte, error) {
	return encode(TypeMovementRejected, msg)
}

// UserLeft announces a departed participant to the remaining members.
type UserLeft struct {
	UserID string `json:"userId"`
}

// EncodeUserLeft renders a user-left broadcast.
func EncodeUserLeft(msg UserLeft) ([]byte, error) {
	return encode(TypeUserLeft, msg)
}

// Error reason codes understood by clients.
const (
	ReasonUnauthorized  = "unauthorized"
	ReasonSpaceNotFound = "space-not-found"
	ReasonSpaceFull     = "space-full"
	ReasonAlreadyJoined = "already-joined"
	ReasonNotJoined     = "not-joined"
	ReasonProtocol      = "protocol"
)

// Error notifies the sender that a request was refused.
type Error struct {
	Reason  string `json:"reason"`
	Message string `json:"message,omitempty"`
}

// EncodeError renders a protocol error response.
func EncodeError(msg Error) ([]byte, error) {
	return encode(TypeError, msg)
}

func encode(msgType string, payload any) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode %s payload: %w", msgType, err)
	}
	data, err := json.Marshal(Envelope{Type: msgType, Payload: raw})
	if err != nil {
		return nil, fmt.Errorf("encode %s envelope: %w", msgType, err)
	}
	return data, nil
}
