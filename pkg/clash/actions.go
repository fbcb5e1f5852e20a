package clash

import (
	"github.com/cbodonnell/clash/pkg/dispatch"
	gametypes "github.com/cbodonnell/clash/pkg/game/types"
)

// ToggleReady flips the ready flag in the lobby. It is offered again once the
// next snapshot arrives or the send fails.
func (m *Machine) ToggleReady() ([]Effect, error) {
	const action = "toggle ready"
	if !m.current(gametypes.PhaseWaitingForPlayers) {
		return nil, notAllowed(action, "not in the lobby")
	}
	if m.readySent {
		return nil, notAllowed(action, "already sent")
	}
	m.readySent = true
	return []Effect{m.send(dispatch.Command{Kind: dispatch.CommandReady})}, nil
}

// PlayCard commits card while drawing or when replacing a depleted card.
func (m *Machine) PlayCard(card gametypes.Card) ([]Effect, error) {
	const action = "play card"
	if !m.CanPlayCard() {
		return nil, notAllowed(action, "no card can be played in %s", m.phase())
	}
	if !m.hasDeck {
		return nil, notAllowed(action, "the hand has not been received yet")
	}
	if !m.inHand(card) {
		return nil, notAllowed(action, "%s is not in the hand", card)
	}

	m.view.SelectedCard = &card
	m.lock()
	m.narrative = narrativeWaitingForCards
	return []Effect{m.send(dispatch.Command{Kind: dispatch.CommandPlayCard, Card: &card})}, nil
}

// SelectTarget picks the opponent shown in the attack menu.
func (m *Machine) SelectTarget(seat int) error {
	const action = "select target"
	if !m.view.UserTurn {
		return notAllowed(action, "not your turn")
	}
	if err := m.checkTarget(action, seat); err != nil {
		return err
	}
	m.view.DropdownTarget = &DropdownTarget{Seat: seat, Name: m.snapshot.PlayerName(seat)}
	return nil
}

// AttackCard resolves the turn against the card of seat.
func (m *Machine) AttackCard(seat int) ([]Effect, error) {
	const action = "attack"
	if !m.view.UserTurn {
		return nil, notAllowed(action, "not your turn")
	}
	if err := m.checkTarget(action, seat); err != nil {
		return nil, err
	}
	m.lock()
	return []Effect{m.send(dispatch.Command{Kind: dispatch.CommandResolveAction, TargetSeat: gametypes.Seat(seat)})}, nil
}

// SkipTurn resolves the turn without a target.
func (m *Machine) SkipTurn() ([]Effect, error) {
	if !m.view.UserTurn {
		return nil, notAllowed("skip turn", "not your turn")
	}
	m.lock()
	return []Effect{m.send(dispatch.Command{Kind: dispatch.CommandResolveAction})}, nil
}

// ForfeitClash leaves the clash instead of replacing a depleted card.
func (m *Machine) ForfeitClash() ([]Effect, error) {
	if !m.CanForfeit() {
		return nil, notAllowed("forfeit", "no replacement is being asked for")
	}
	m.lock()
	m.view.HandSuppressed = true
	return []Effect{m.send(dispatch.Command{Kind: dispatch.CommandForfeit})}, nil
}

// CanPlayCard reports whether PlayCard is offered.
func (m *Machine) CanPlayCard() bool {
	if m.snapshot == nil || m.acted || m.view.HandSuppressed || m.view.SelectedCard != nil {
		return false
	}
	switch m.snapshot.Phase {
	case gametypes.PhaseDrawingCards, gametypes.PhaseClashPlayerReplacingCard:
		return true
	default:
		return false
	}
}

// CanForfeit reports whether the replace prompt is showing.
func (m *Machine) CanForfeit() bool {
	return m.current(gametypes.PhaseClashPlayerReplacingCard) &&
		m.view.SelectedCard == nil && !m.acted && !m.view.HandSuppressed
}

// userActions are the commands sent on behalf of the player.
var userActions = map[dispatch.CommandKind]bool{
	dispatch.CommandReady:         true,
	dispatch.CommandPlayCard:      true,
	dispatch.CommandResolveAction: true,
	dispatch.CommandForfeit:       true,
}

// lock applies the optimistic lock held until the next phase entry, or until
// the action fails to send.
func (m *Machine) lock() {
	m.acted = true
	m.view.UserTurn = false
	m.view.DropdownTarget = nil
}

// unlock undoes the local effects of a user action that was never sent and
// repaints the phase from the latest snapshot.
func (m *Machine) unlock(kind dispatch.CommandKind) {
	s := m.snapshot
	if s == nil {
		return
	}
	if kind == dispatch.CommandReady {
		m.readySent = false
		return
	}

	m.acted = false
	switch kind {
	case dispatch.CommandPlayCard:
		m.view.SelectedCard = nil
	case dispatch.CommandForfeit:
		m.view.HandSuppressed = false
	}

	switch s.Phase {
	case gametypes.PhaseDrawingCards:
		m.syncSelectedCard(s)
		m.narrative = m.drawingNarrative()
	case gametypes.PhaseClashPlayerTurn:
		if m.pending != TimerTurn {
			m.renderTurn(s)
		}
	case gametypes.PhaseClashPlayerReplacingCard:
		m.renderReplacing(s)
	}
}

func (m *Machine) checkTarget(action string, seat int) error {
	if seat == m.seat {
		return notAllowed(action, "cannot target your own card")
	}
	if _, ok := m.snapshot.CardFor(seat); !ok {
		return notAllowed(action, "seat %d has no card in play", seat)
	}
	return nil
}

func (m *Machine) inHand(card gametypes.Card) bool {
	for _, c := range m.deck {
		if c.SameCard(card) {
			return true
		}
	}
	return false
}

func (m *Machine) phase() gametypes.Phase {
	if m.snapshot == nil {
		return gametypes.PhaseUnknown
	}
	return m.snapshot.Phase
}
