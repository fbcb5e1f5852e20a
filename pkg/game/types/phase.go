package types

import "fmt"

// Phase is a step of the game and clash progression. Values are totally
// ordered in the order the server walks through them.
type Phase int

const (
	PhaseUnknown Phase = iota
	PhaseWaitingForPlayers
	PhaseDrawingCards
	PhaseCountDown
	PhaseClashRollInit
	PhaseClashRollHP
	PhaseClashPlayerTurn
	PhaseClashProcessingDecision
	PhaseClashPlayerReplacingCard
	PhaseClashTotem
	PhaseClashConcluded
	PhaseFinished
)

var phaseNames = map[Phase]string{
	PhaseWaitingForPlayers:        "WAITING_FOR_PLAYERS",
	PhaseDrawingCards:             "DRAWING_CARDS",
	PhaseCountDown:                "COUNT_DOWN",
	PhaseClashRollInit:            "CLASH_ROLL_INIT",
	PhaseClashRollHP:              "CLASH_ROLL_HP",
	PhaseClashPlayerTurn:          "CLASH_PLAYER_TURN",
	PhaseClashProcessingDecision:  "CLASH_PROCESSING_DECISION",
	PhaseClashPlayerReplacingCard: "CLASH_PLAYER_REPLACING_CARD",
	PhaseClashTotem:               "CLASH_TOTEM",
	PhaseClashConcluded:           "CLASH_CONCLUDED",
	PhaseFinished:                 "FINISHED",
}

func (p Phase) String() string {
	if name, ok := phaseNames[p]; ok {
		return name
	}
	return "UNKNOWN"
}

// Valid reports whether p is one of the known phases.
func (p Phase) Valid() bool {
	_, ok := phaseNames[p]
	return ok
}

// InClash reports whether p belongs to a running clash.
func (p Phase) InClash() bool {
	return p >= PhaseClashRollInit && p <= PhaseClashConcluded
}

// ParsePhase decodes the wire name of a phase.
func ParsePhase(s string) (Phase, error) {
	for p, name := range phaseNames {
		if name == s {
			return p, nil
		}
	}
	return PhaseUnknown, fmt.Errorf("unknown phase: %q", s)
}

func (p Phase) MarshalText() ([]byte, error) {
	if !p.Valid() {
		return nil, fmt.Errorf("cannot marshal phase %d", int(p))
	}
	return []byte(p.String()), nil
}

func (p *Phase) UnmarshalText(b []byte) error {
	parsed, err := ParsePhase(string(b))
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}
