package clash

import (
	"fmt"

	gametypes "github.com/cbodonnell/clash/pkg/game/types"
)

const (
	narrativeSelectCard      = "Select a card to play."
	narrativeWaitingForCards = "Waiting for other players to select their cards..."
	narrativeRolling         = "Rolling for initiative..."
	narrativeRollMissing     = "Waiting for your initiative roll..."
	narrativeYourTurn        = "It's your turn!"
	narrativeReplaceCard     = "Play a new card or forfeit the clash."
	narrativeClashStarting   = "Clash starting..."
	narrativeRollingHP       = "Rolling for health..."
	narrativeTotem           = "Resolving totems..."
	narrativeNextTurn        = "Waiting for the next turn..."
	narrativeGameOver        = "The game is over."
)

// ActionNarrative describes the last resolved action. A missing receiver
// is a skipped turn and a missing dealer is a forfeit.
func ActionNarrative(s *gametypes.GameSnapshot) string {
	action := s.LastAction
	switch {
	case action.DealingSeat == nil && action.ReceivingSeat == nil:
		return ""
	case action.DealingSeat == nil:
		return fmt.Sprintf("%s forfeited from the clash.", s.PlayerName(*action.ReceivingSeat))
	case action.ReceivingSeat == nil:
		return fmt.Sprintf("%s skipped their turn.", s.PlayerName(*action.DealingSeat))
	default:
		return fmt.Sprintf("%s dealt %d damage to %s!",
			s.PlayerName(*action.DealingSeat), action.Damage, s.PlayerName(*action.ReceivingSeat))
	}
}

// ClashWinner returns the seat that won the clash: the only card holder
// left, or else the last dealing party.
func ClashWinner(s *gametypes.GameSnapshot) (int, bool) {
	if seat, ok := s.SoleCardHolder(); ok {
		return seat, true
	}
	if s.LastAction.DealingSeat != nil {
		return *s.LastAction.DealingSeat, true
	}
	return 0, false
}

func winnerNarrative(s *gametypes.GameSnapshot) string {
	seat, ok := ClashWinner(s)
	if !ok {
		return "The clash is over."
	}
	return fmt.Sprintf("%s won the clash!", s.PlayerName(seat))
}

func lobbyNarrative(s *gametypes.GameSnapshot) string {
	switch {
	case len(s.Players) < 2:
		return "Waiting for players"
	case !s.AllReady():
		return "Waiting for all players to be ready..."
	default:
		return "Game starting..."
	}
}

func countdownNarrative(remaining int) string {
	if remaining <= 0 {
		return narrativeClashStarting
	}
	return fmt.Sprintf("Clash starting in %d...", remaining)
}

func rollNarrative(roll int) string {
	return fmt.Sprintf("Rolled a %d for initiative", roll)
}

func waitingForActorNarrative(s *gametypes.GameSnapshot) string {
	seat, ok := s.CurrentActorSeat()
	if !ok {
		return narrativeNextTurn
	}
	return fmt.Sprintf("Waiting for %s's decision...", s.PlayerName(seat))
}

func replacingNarrative(s *gametypes.GameSnapshot, self int) string {
	for _, seat := range s.Seats() {
		if seat == self {
			continue
		}
		card, ok := s.CardFor(seat)
		if !ok || card.Depleted() {
			return fmt.Sprintf("%s is deciding whether to play a new card...", s.PlayerName(seat))
		}
	}
	return "Waiting for a new card to be played..."
}

func finishedNarrative(s *gametypes.GameSnapshot) string {
	leader, ok := s.StonesLeader()
	if !ok {
		return narrativeGameOver
	}
	return fmt.Sprintf("The game is over. %s wins with %d sacred stones!", leader.DisplayName(), leader.SacredStones)
}
