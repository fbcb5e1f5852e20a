package dispatch

import (
	"fmt"

	gametypes "github.com/cbodonnell/clash/pkg/game/types"
)

// CommandKind names an outbound command.
type CommandKind int

const (
	CommandStartClash CommandKind = iota + 1
	CommandStartNewClash
	CommandDecisionProcessed
	CommandPlayCard
	CommandResolveAction
	CommandClaimKnockout
	CommandForfeit
	CommandReady
	CommandRollInitiative
	CommandRemoveCardInPlay
	CommandClaimWin
)

func (k CommandKind) String() string {
	switch k {
	case CommandStartClash:
		return "start clash"
	case CommandStartNewClash:
		return "start new clash"
	case CommandDecisionProcessed:
		return "decision processed"
	case CommandPlayCard:
		return "play card"
	case CommandResolveAction:
		return "resolve action"
	case CommandClaimKnockout:
		return "claim knockout"
	case CommandForfeit:
		return "forfeit clash"
	case CommandReady:
		return "ready"
	case CommandRollInitiative:
		return "roll initiative"
	case CommandRemoveCardInPlay:
		return "remove card in play"
	case CommandClaimWin:
		return "claim win"
	default:
		return fmt.Sprintf("command(%d)", int(k))
	}
}

// Command is a decided outbound call.
type Command struct {
	Kind     CommandKind
	GameID   string
	PlayerID string
	// Card is set for CommandPlayCard.
	Card *gametypes.Card
	// TargetSeat is the attacked seat for CommandResolveAction. Nil skips the turn.
	TargetSeat *int
}

func (c Command) String() string {
	switch c.Kind {
	case CommandResolveAction:
		if c.TargetSeat == nil {
			return "resolve action (skip)"
		}
		return fmt.Sprintf("resolve action (seat %d)", *c.TargetSeat)
	default:
		return c.Kind.String()
	}
}

// Outcome describes how a command was received.
type Outcome int

const (
	// OutcomeAccepted means the call succeeded. For channel commands it only
	// means the frame was accepted for transmission.
	OutcomeAccepted Outcome = iota + 1
	// OutcomeConflict means a peer already caused the same effect.
	OutcomeConflict
)

func (o Outcome) String() string {
	switch o {
	case OutcomeAccepted:
		return "accepted"
	case OutcomeConflict:
		return "conflict"
	default:
		return "unknown"
	}
}

// Result is the outcome of a sent command.
type Result struct {
	Outcome Outcome
	// Value carries the roll for CommandRollInitiative.
	Value int
}
