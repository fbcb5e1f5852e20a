package types

import "sort"

// NoInitiative is the currentInitiativeValue reported outside of a turn.
const NoInitiative = -1

// GameSnapshot is a full authoritative view of one game. Snapshots are
// immutable once parsed and are replaced wholesale on every push.
type GameSnapshot struct {
	ID    string `json:"id"`
	Phase Phase  `json:"state"`
	// Players maps seat to player view.
	Players map[int]PlayerView `json:"players"`
	// CardsInPlay maps seat to the card committed to the clash.
	CardsInPlay            map[int]Card `json:"cardsInPlay"`
	AddSubDice             int          `json:"addSubDice"`
	CurrentInitiativeValue int          `json:"currentInitiativeValue"`
	// InitiativeMap maps initiative value to seat.
	InitiativeMap     map[int]int `json:"initiativeMap"`
	LastAction        ActionView  `json:"lastAction"`
	CurrentPlayerSeat *int        `json:"currentPlayerSeat,omitempty"`
}

// ActionView is the most recently resolved action. A nil seat means "none":
// a nil receiver is a skipped turn and a nil dealer is a forfeit.
type ActionView struct {
	DealingSeat   *int `json:"dealingSeat"`
	ReceivingSeat *int `json:"receivingSeat"`
	Damage        int  `json:"damageDealt"`
}

// Seat returns a pointer to s for building action views.
func Seat(s int) *int {
	return &s
}

// PlayerName resolves a seat to a display name.
func (g *GameSnapshot) PlayerName(seat int) string {
	if p, ok := g.Players[seat]; ok {
		return p.DisplayName()
	}
	return DefaultPlayerName(seat)
}

// CardFor returns the card committed by seat.
func (g *GameSnapshot) CardFor(seat int) (Card, bool) {
	c, ok := g.CardsInPlay[seat]
	return c, ok
}

// InitiativeForSeat returns the initiative value assigned to seat.
func (g *GameSnapshot) InitiativeForSeat(seat int) (int, bool) {
	for value, s := range g.InitiativeMap {
		if s == seat {
			return value, true
		}
	}
	return 0, false
}

// CurrentActorSeat returns the seat whose decision is awaited.
func (g *GameSnapshot) CurrentActorSeat() (int, bool) {
	if g.CurrentPlayerSeat != nil {
		return *g.CurrentPlayerSeat, true
	}
	if g.CurrentInitiativeValue == NoInitiative {
		return 0, false
	}
	seat, ok := g.InitiativeMap[g.CurrentInitiativeValue]
	return seat, ok
}

// SoleCardHolder returns the seat of the only card left in play.
func (g *GameSnapshot) SoleCardHolder() (int, bool) {
	if len(g.CardsInPlay) != 1 {
		return 0, false
	}
	for seat := range g.CardsInPlay {
		return seat, true
	}
	return 0, false
}

// AnyDepleted reports whether a committed card has reached zero health.
func (g *GameSnapshot) AnyDepleted() bool {
	for _, c := range g.CardsInPlay {
		if c.Depleted() {
			return true
		}
	}
	return false
}

// Seats returns the occupied seats in ascending order.
func (g *GameSnapshot) Seats() []int {
	seats := make([]int, 0, len(g.Players))
	for seat := range g.Players {
		seats = append(seats, seat)
	}
	sort.Ints(seats)
	return seats
}

// Opponents returns every player except self ordered by seat.
func (g *GameSnapshot) Opponents(self int) []PlayerView {
	opponents := make([]PlayerView, 0, len(g.Players))
	for _, seat := range g.Seats() {
		if seat == self {
			continue
		}
		opponents = append(opponents, g.Players[seat])
	}
	return opponents
}

// AllReady reports whether every seated player is ready.
func (g *GameSnapshot) AllReady() bool {
	if len(g.Players) == 0 {
		return false
	}
	for _, p := range g.Players {
		if !p.Ready {
			return false
		}
	}
	return true
}

// StonesLeader returns the player holding the most sacred stones, lowest
// seat first on ties.
func (g *GameSnapshot) StonesLeader() (PlayerView, bool) {
	var leader PlayerView
	found := false
	for _, seat := range g.Seats() {
		p := g.Players[seat]
		if !found || p.SacredStones > leader.SacredStones {
			leader = p
			found = true
		}
	}
	return leader, found
}
