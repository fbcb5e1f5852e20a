package types

import "fmt"

// PlayerView is the public view of one seated player.
type PlayerView struct {
	Seat         int    `json:"seat"`
	Name         string `json:"name"`
	Ready        bool   `json:"isReady"`
	DeckSize     int    `json:"deckSize"`
	SacredStones int    `json:"sacredStones"`
	Initiative   int    `json:"initiative"`
}

// DisplayName returns the player name, falling back to the seat label.
func (p PlayerView) DisplayName() string {
	if p.Name == "" {
		return DefaultPlayerName(p.Seat)
	}
	return p.Name
}

// DefaultPlayerName is the label shown for a player without a name.
func DefaultPlayerName(seat int) string {
	return fmt.Sprintf("Player %d", seat)
}

type CardStyle string

const (
	CardStyleAttacker  CardStyle = "ATTACKER"
	CardStyleDefender  CardStyle = "DEFENDER"
	CardStyleTrickster CardStyle = "TRICKSTER"
)

// Card is a card in a hand or committed to a clash.
type Card struct {
	ID             string    `json:"id,omitempty"`
	Style          CardStyle `json:"style"`
	Level          int       `json:"level"`
	MaxHP          int       `json:"maxHp"`
	CurHP          int       `json:"curHp"`
	HasTotem       bool      `json:"hasTotem"`
	TaunterCharges int       `json:"taunterCharges"`
}

// Depleted reports whether the card has no health left.
func (c Card) Depleted() bool {
	return c.CurHP <= 0
}

// SameCard reports whether c and o describe the same physical card. Cards
// without ids are matched on their fixed attributes.
func (c Card) SameCard(o Card) bool {
	if c.ID != "" && o.ID != "" {
		return c.ID == o.ID
	}
	return c.Style == o.Style && c.Level == o.Level && c.MaxHP == o.MaxHP
}

func (c Card) String() string {
	return fmt.Sprintf("%s L%d %d/%d", c.Style, c.Level, c.CurHP, c.MaxHP)
}
