package types

import (
	"encoding/json"
	"fmt"
)

// ErrMalformedSnapshot is returned when a payload cannot become a GameSnapshot.
type ErrMalformedSnapshot struct {
	Reason string
}

func (e *ErrMalformedSnapshot) Error() string {
	return fmt.Sprintf("malformed snapshot: %s", e.Reason)
}

func IsMalformedSnapshot(err error) bool {
	_, ok := err.(*ErrMalformedSnapshot)
	return ok
}

// gameViewWire accepts both the "players" and "playerViews" spellings of the roster.
type gameViewWire struct {
	GameSnapshot
	PlayerViews map[int]PlayerView `json:"playerViews"`
	State       string             `json:"state"`
}

// ParseSnapshot decodes and checks a game view payload.
func ParseSnapshot(b []byte) (*GameSnapshot, error) {
	if len(b) == 0 {
		return nil, &ErrMalformedSnapshot{Reason: "empty payload"}
	}

	wire := &gameViewWire{}
	if err := json.Unmarshal(b, wire); err != nil {
		return nil, &ErrMalformedSnapshot{Reason: err.Error()}
	}

	snapshot := wire.GameSnapshot
	if snapshot.ID == "" {
		return nil, &ErrMalformedSnapshot{Reason: "missing id"}
	}
	phase, err := ParsePhase(wire.State)
	if err != nil {
		return nil, &ErrMalformedSnapshot{Reason: err.Error()}
	}
	snapshot.Phase = phase

	if snapshot.Players == nil {
		snapshot.Players = wire.PlayerViews
	}
	if snapshot.Players == nil {
		snapshot.Players = make(map[int]PlayerView)
	}
	for seat, p := range snapshot.Players {
		p.Seat = seat
		p.Name = p.DisplayName()
		snapshot.Players[seat] = p
	}
	if snapshot.CardsInPlay == nil {
		snapshot.CardsInPlay = make(map[int]Card)
	}
	if snapshot.InitiativeMap == nil {
		snapshot.InitiativeMap = make(map[int]int)
	}

	seen := make(map[int]int, len(snapshot.InitiativeMap))
	for value, seat := range snapshot.InitiativeMap {
		if other, ok := seen[seat]; ok {
			return nil, &ErrMalformedSnapshot{Reason: fmt.Sprintf("seat %d holds initiative %d and %d", seat, other, value)}
		}
		seen[seat] = value
	}

	return &snapshot, nil
}

// MarshalSnapshot encodes a snapshot in the game view wire shape.
func MarshalSnapshot(s *GameSnapshot) ([]byte, error) {
	b, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal snapshot: %v", err)
	}
	return b, nil
}

// ParseDeck decodes the private hand of the local player.
func ParseDeck(b []byte) ([]Card, error) {
	cards := []Card{}
	if err := json.Unmarshal(b, &cards); err != nil {
		return nil, fmt.Errorf("failed to unmarshal deck: %v", err)
	}
	return cards, nil
}
