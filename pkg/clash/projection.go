package clash

import (
	gametypes "github.com/cbodonnell/clash/pkg/game/types"
	"github.com/cbodonnell/clash/pkg/session"
)

// Projection is what the UI renders.
type Projection struct {
	GameID         string
	Seat           int
	Phase          gametypes.Phase
	Narrative      string
	CardsFaceDown  bool
	MyTurn         bool
	HandSuppressed bool
	SelectedCard   *gametypes.Card
	DropdownTarget *DropdownTarget
	// Opponents are all players except the local one, ordered by seat.
	Opponents   []gametypes.PlayerView
	CardsInPlay map[int]gametypes.Card
	// Countdown is the number of ticks left before the clash starts.
	Countdown   int
	Hand        []gametypes.Card
	CanForfeit  bool
	CanPlayCard bool
}

// Projection returns a copy of the current view.
func (m *Machine) Projection() Projection {
	p := Projection{
		GameID:         m.gameID,
		Seat:           m.seat,
		Phase:          m.phase(),
		Narrative:      m.narrative,
		CardsFaceDown:  m.view.CardsNotRevealed,
		MyTurn:         m.view.UserTurn,
		HandSuppressed: m.view.HandSuppressed,
		Countdown:      m.countdown,
		Hand:           append([]gametypes.Card(nil), m.deck...),
		CanForfeit:     m.CanForfeit(),
		CanPlayCard:    m.CanPlayCard(),
	}
	if m.view.SelectedCard != nil {
		card := *m.view.SelectedCard
		p.SelectedCard = &card
	}
	if m.view.DropdownTarget != nil {
		target := *m.view.DropdownTarget
		p.DropdownTarget = &target
	}
	if m.snapshot != nil {
		p.Opponents = m.snapshot.Opponents(m.seat)
		p.CardsInPlay = make(map[int]gametypes.Card, len(m.snapshot.CardsInPlay))
		for seat, card := range m.snapshot.CardsInPlay {
			p.CardsInPlay[seat] = card
		}
	}
	return p
}

// View returns a copy of the local clash view.
func (m *Machine) View() View {
	v := m.view
	if v.SelectedCard != nil {
		card := *v.SelectedCard
		v.SelectedCard = &card
	}
	if v.DropdownTarget != nil {
		target := *v.DropdownTarget
		v.DropdownTarget = &target
	}
	return v
}

// Progress returns what would be persisted for this player.
func (m *Machine) Progress() session.Progress {
	return m.progress
}
