package messages

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

const (
	// MessageBufferSize represents the maximum size of a frame read from the channel
	MessageBufferSize = 1 << 20
)

// FrameKind identifies what a frame asks of its receiver.
type FrameKind byte

const (
	// FrameKindSend publishes a command from the client to an application destination
	FrameKindSend FrameKind = iota + 1
	// FrameKindSubscribe asks the server to push a topic or queue
	FrameKindSubscribe
	// FrameKindUnsubscribe stops a subscription
	FrameKindUnsubscribe
	// FrameKindMessage carries a server push for a subscribed destination
	FrameKindMessage
	// FrameKindError reports a server-side failure for a frame
	FrameKindError
)

func (k FrameKind) String() string {
	switch k {
	case FrameKindSend:
		return "send"
	case FrameKindSubscribe:
		return "subscribe"
	case FrameKindUnsubscribe:
		return "unsubscribe"
	case FrameKindMessage:
		return "message"
	case FrameKindError:
		return "error"
	default:
		return fmt.Sprintf("kind(%d)", byte(k))
	}
}

// Outbound application destinations
const (
	DestinationClashStart     = "/app/clashStart"
	DestinationClashNew       = "/app/clashNew"
	DestinationClashProcessed = "/app/clashProcessed"
	DestinationPlayCard       = "/app/playCard"
	DestinationClashAction    = "/app/clashAction"
	DestinationGotKnockout    = "/app/gotKnockout"
	DestinationClashForfeit   = "/app/clashForfeit"
	DestinationPlayerReady    = "/app/playerReady"
)

// DestinationDeck is the private queue carrying the local player's hand.
const DestinationDeck = "/user/queue/deck"

// GameTopic is the destination pushing snapshots of one game.
func GameTopic(gameID string) string {
	return "/topic/game/" + gameID
}

// Frame is a single message on the snapshot channel.
type Frame struct {
	Kind        FrameKind       `json:"kind"`
	ID          string          `json:"id"`
	Destination string          `json:"destination"`
	Payload     json.RawMessage `json:"payload,omitempty"`
}

// NewFrame builds a frame with a fresh id.
func NewFrame(kind FrameKind, destination string, payload json.RawMessage) *Frame {
	return &Frame{
		Kind:        kind,
		ID:          uuid.NewString(),
		Destination: destination,
		Payload:     payload,
	}
}

// PlayCard commits a card from the hand to the clash.
type PlayCard struct {
	PlayerID string      `json:"playerId"`
	Card     interface{} `json:"card"`
}

// ClashAction resolves the current turn. A nil target skips the turn.
type ClashAction struct {
	UserID     string `json:"userId"`
	TargetSeat *int   `json:"targetSeat"`
}
