package clash

import (
	"time"

	"github.com/cbodonnell/clash/pkg/dispatch"
	gametypes "github.com/cbodonnell/clash/pkg/game/types"
	"github.com/cbodonnell/clash/pkg/log"
	"github.com/cbodonnell/clash/pkg/session"
)

// View is the locally derived clash state of one player.
type View struct {
	SelectedCard     *gametypes.Card
	CardsNotRevealed bool
	UserTurn         bool
	HandSuppressed   bool
	DropdownTarget   *DropdownTarget
}

// DropdownTarget is the opponent picked in the attack menu. It is
// presentation state only and never persisted.
type DropdownTarget struct {
	Seat int
	Name string
}

// Machine turns snapshots, timers and command results into view changes and
// effects. It performs no I/O and must only be used from one goroutine.
type Machine struct {
	gameID   string
	playerID string
	seat     int
	timing   Timing

	progress  session.Progress
	snapshot  *gametypes.GameSnapshot
	deck      []gametypes.Card
	view      View
	narrative string

	// entry increments on every phase entry and tags its continuations.
	entry uint64
	// entered is set when the current phase was entered in this session.
	entered bool
	// pending is the continuation the current entry still waits for.
	pending TimerKind
	emitted map[dispatch.CommandKind]bool
	// acted locks user actions until the next phase entry or a failed send.
	acted     bool
	rolling   bool
	rollEntry uint64
	countdown int
	readySent bool
	hasDeck   bool
}

type NewMachineOptions struct {
	GameID   string
	PlayerID string
	Seat     int
	// Progress is what was persisted by a previous session.
	Progress session.Progress
	Timing   Timing
}

func NewMachine(opts NewMachineOptions) *Machine {
	return &Machine{
		gameID:   opts.GameID,
		playerID: opts.PlayerID,
		seat:     opts.Seat,
		timing:   opts.Timing,
		progress: opts.Progress,
		emitted:  make(map[dispatch.CommandKind]bool),
	}
}

// OnSnapshot handles a pushed or fetched snapshot. A phase that differs from
// the last observed one is entered, anything else is replayed.
func (m *Machine) OnSnapshot(s *gametypes.GameSnapshot) []Effect {
	if s == nil {
		return nil
	}
	if s.ID != m.gameID {
		log.Warn("Ignoring snapshot of game %s while following %s", s.ID, m.gameID)
		return nil
	}

	m.snapshot = s
	m.readySent = false

	if s.Phase != m.progress.LastObservedPhase {
		log.Debug("Entering phase %s (was %s)", s.Phase, m.progress.LastObservedPhase)
		return m.enter(s)
	}
	log.Trace("Replaying phase %s", s.Phase)
	return m.replay(s)
}

// OnTimer resumes a delayed continuation.
func (m *Machine) OnTimer(t Timer) []Effect {
	if m.snapshot == nil || t.Entry != m.entry || t.Phase != m.snapshot.Phase {
		log.Trace("Dropping superseded %s for %s", t.Kind, t.Phase)
		return nil
	}

	s := m.snapshot
	switch t.Kind {
	case TimerCountdownTick:
		m.countdown--
		m.narrative = countdownNarrative(m.countdown)
		if m.countdown > 0 {
			return []Effect{m.schedule(TimerCountdownTick, m.timing.CountdownInterval)}
		}
		return m.emit(dispatch.CommandStartClash)
	case TimerTurn:
		if m.pending != TimerTurn {
			return nil
		}
		m.pending = 0
		return m.resolveTurn(s)
	case TimerDecision:
		if m.pending != TimerDecision {
			return nil
		}
		m.pending = 0
		return m.resolveDecision(s)
	case TimerConcluded:
		if m.pending != TimerConcluded {
			return nil
		}
		m.pending = 0
		return m.emit(dispatch.CommandStartNewClash)
	default:
		log.Error("Unhandled timer kind: %s", t.Kind)
		return nil
	}
}

// OnCommandResult handles the outcome of a Send effect. Failures are logged
// and never retried. A conflict counts as success.
func (m *Machine) OnCommandResult(cmd dispatch.Command, entry uint64, result dispatch.Result, err error) []Effect {
	if err != nil {
		log.Error("Failed to send %s: %v", cmd, err)
		switch {
		case cmd.Kind == dispatch.CommandRollInitiative && entry == m.rollEntry:
			m.rolling = false
		case userActions[cmd.Kind] && entry == m.entry:
			m.unlock(cmd.Kind)
		}
		return nil
	}

	if result.Outcome == dispatch.OutcomeConflict {
		log.Debug("%s was already performed", cmd)
	}

	if cmd.Kind != dispatch.CommandRollInitiative {
		return nil
	}
	if entry != m.rollEntry {
		log.Warn("Dropping initiative roll of a previous clash")
		return nil
	}
	m.rolling = false
	if result.Outcome == dispatch.OutcomeConflict {
		return nil
	}

	// the roll belongs to this clash even if the phase moved on
	m.progress.InitiativeRoll = result.Value
	m.progress.HasRoll = true
	if m.current(gametypes.PhaseClashRollInit) {
		m.narrative = rollNarrative(result.Value)
	}
	return []Effect{PersistRoll{Roll: result.Value}}
}

// OnDeck handles a new private hand.
func (m *Machine) OnDeck(cards []gametypes.Card) {
	m.deck = append([]gametypes.Card(nil), cards...)
	m.hasDeck = true
}

func (m *Machine) enter(s *gametypes.GameSnapshot) []Effect {
	m.entry++
	m.entered = true
	m.pending = 0
	m.emitted = make(map[dispatch.CommandKind]bool)
	m.acted = false
	m.rolling = false
	m.countdown = 0
	m.progress.LastObservedPhase = s.Phase
	m.view.UserTurn = false
	m.view.DropdownTarget = nil

	effects := []Effect{CancelTimers{}, PersistPhase{Phase: s.Phase}}

	switch s.Phase {
	case gametypes.PhaseWaitingForPlayers:
		m.narrative = lobbyNarrative(s)
	case gametypes.PhaseDrawingCards:
		m.view.CardsNotRevealed = true
		m.view.HandSuppressed = false
		m.view.SelectedCard = nil
		m.syncSelectedCard(s)
		m.narrative = m.drawingNarrative()
	case gametypes.PhaseCountDown:
		m.countdown = m.timing.CountdownTicks
		m.narrative = countdownNarrative(m.countdown)
		if m.countdown <= 0 {
			return append(effects, m.emit(dispatch.CommandStartClash)...)
		}
		effects = append(effects, m.schedule(TimerCountdownTick, m.timing.CountdownInterval))
	case gametypes.PhaseClashRollInit:
		m.view.CardsNotRevealed = false
		m.progress.HasRoll = false
		m.progress.InitiativeRoll = 0
		m.rolling = true
		m.rollEntry = m.entry
		m.narrative = narrativeRolling
		effects = append(effects, ClearRoll{})
		effects = append(effects, m.emit(dispatch.CommandRollInitiative)...)
	case gametypes.PhaseClashRollHP:
		m.view.CardsNotRevealed = false
		m.narrative = narrativeRollingHP
	case gametypes.PhaseClashPlayerTurn:
		m.view.CardsNotRevealed = false
		// the previous narrative stays up until the delay has passed
		effects = append(effects, m.delay(TimerTurn, m.timing.TurnDelay)...)
	case gametypes.PhaseClashProcessingDecision:
		m.view.CardsNotRevealed = false
		m.narrative = ActionNarrative(s)
		effects = append(effects, m.delay(TimerDecision, m.timing.DecisionDelay)...)
	case gametypes.PhaseClashPlayerReplacingCard:
		m.view.CardsNotRevealed = false
		m.renderReplacing(s)
	case gametypes.PhaseClashTotem:
		m.narrative = narrativeTotem
	case gametypes.PhaseClashConcluded:
		m.view.HandSuppressed = true
		m.clearDepletedCard(s)
		m.narrative = winnerNarrative(s)
		effects = append(effects, m.delay(TimerConcluded, m.timing.ConcludedDelay)...)
	case gametypes.PhaseFinished:
		m.view.HandSuppressed = true
		m.narrative = finishedNarrative(s)
	default:
		log.Warn("No entry action for phase %s", s.Phase)
	}

	return effects
}

// replay repaints the current phase. Its only outbound call is the health
// guarded knockout re-check.
func (m *Machine) replay(s *gametypes.GameSnapshot) []Effect {
	switch s.Phase {
	case gametypes.PhaseWaitingForPlayers:
		m.narrative = lobbyNarrative(s)
	case gametypes.PhaseDrawingCards:
		m.view.CardsNotRevealed = true
		m.syncSelectedCard(s)
		m.narrative = m.drawingNarrative()
	case gametypes.PhaseCountDown:
		// a countdown is never restarted on replay
		m.narrative = countdownNarrative(m.countdown)
	case gametypes.PhaseClashRollInit:
		m.view.CardsNotRevealed = false
		switch {
		case m.progress.HasRoll:
			m.narrative = rollNarrative(m.progress.InitiativeRoll)
		case m.rolling:
			m.narrative = narrativeRolling
		default:
			m.narrative = narrativeRollMissing
		}
	case gametypes.PhaseClashRollHP:
		m.view.CardsNotRevealed = false
		m.narrative = narrativeRollingHP
	case gametypes.PhaseClashPlayerTurn:
		m.view.CardsNotRevealed = false
		if m.pending == TimerTurn {
			return nil
		}
		m.renderTurn(s)
	case gametypes.PhaseClashProcessingDecision:
		m.view.CardsNotRevealed = false
		m.narrative = ActionNarrative(s)
		if !m.entered && len(m.emitted) == 0 {
			return m.claimKnockout(s)
		}
	case gametypes.PhaseClashPlayerReplacingCard:
		m.view.CardsNotRevealed = false
		m.renderReplacing(s)
	case gametypes.PhaseClashTotem:
		m.narrative = narrativeTotem
	case gametypes.PhaseClashConcluded:
		m.view.HandSuppressed = true
		m.clearDepletedCard(s)
		m.narrative = winnerNarrative(s)
	case gametypes.PhaseFinished:
		m.view.HandSuppressed = true
		m.narrative = finishedNarrative(s)
	}
	return nil
}

func (m *Machine) resolveTurn(s *gametypes.GameSnapshot) []Effect {
	if seat, ok := s.SoleCardHolder(); ok && seat == m.seat {
		m.view.UserTurn = false
		m.narrative = winnerNarrative(s)
		return m.emit(dispatch.CommandClaimWin)
	}
	m.renderTurn(s)
	return nil
}

func (m *Machine) renderTurn(s *gametypes.GameSnapshot) {
	if seat, ok := s.SoleCardHolder(); ok && seat == m.seat {
		m.view.UserTurn = false
		m.narrative = winnerNarrative(s)
		return
	}

	roll, known := m.initiative(s)
	m.view.UserTurn = known && !m.acted && roll == s.CurrentInitiativeValue
	switch {
	case m.view.UserTurn:
		m.narrative = narrativeYourTurn
	case !known:
		m.narrative = narrativeRollMissing
	default:
		m.narrative = waitingForActorNarrative(s)
	}
}

func (m *Machine) resolveDecision(s *gametypes.GameSnapshot) []Effect {
	if !s.AnyDepleted() {
		return m.emit(dispatch.CommandDecisionProcessed)
	}

	var effects []Effect
	if card, ok := s.CardFor(m.seat); ok && card.Depleted() {
		m.view.SelectedCard = nil
		effects = append(effects, m.emit(dispatch.CommandRemoveCardInPlay)...)
	}
	return append(effects, m.claimKnockout(s)...)
}

// claimKnockout claims the pickup when this seat dealt the last action and
// the receiving card is still in play with no health left.
func (m *Machine) claimKnockout(s *gametypes.GameSnapshot) []Effect {
	action := s.LastAction
	if action.DealingSeat == nil || *action.DealingSeat != m.seat || action.ReceivingSeat == nil {
		return nil
	}
	card, ok := s.CardFor(*action.ReceivingSeat)
	if !ok || !card.Depleted() {
		return nil
	}
	return m.emit(dispatch.CommandClaimKnockout)
}

func (m *Machine) renderReplacing(s *gametypes.GameSnapshot) {
	card, ok := s.CardFor(m.seat)
	if !ok || card.Depleted() {
		m.view.SelectedCard = nil
		if m.acted {
			m.narrative = narrativeWaitingForCards
			return
		}
		m.narrative = narrativeReplaceCard
		return
	}
	m.view.SelectedCard = &card
	m.narrative = replacingNarrative(s, m.seat)
}

func (m *Machine) drawingNarrative() string {
	if m.view.SelectedCard != nil {
		return narrativeWaitingForCards
	}
	return narrativeSelectCard
}

func (m *Machine) syncSelectedCard(s *gametypes.GameSnapshot) {
	if card, ok := s.CardFor(m.seat); ok {
		m.view.SelectedCard = &card
	}
}

func (m *Machine) clearDepletedCard(s *gametypes.GameSnapshot) {
	card, ok := s.CardFor(m.seat)
	if !ok || card.Depleted() {
		m.view.SelectedCard = nil
	}
}

// initiative returns this seat's roll, falling back to the initiative map.
func (m *Machine) initiative(s *gametypes.GameSnapshot) (int, bool) {
	if m.progress.HasRoll {
		return m.progress.InitiativeRoll, true
	}
	return s.InitiativeForSeat(m.seat)
}

// emit sends a one-shot command at most once per phase entry.
func (m *Machine) emit(kind dispatch.CommandKind) []Effect {
	if m.emitted[kind] {
		return nil
	}
	m.emitted[kind] = true
	return []Effect{m.send(dispatch.Command{Kind: kind})}
}

func (m *Machine) send(cmd dispatch.Command) Send {
	cmd.GameID = m.gameID
	cmd.PlayerID = m.playerID
	return Send{Command: cmd, Entry: m.entry}
}

func (m *Machine) schedule(kind TimerKind, after time.Duration) Effect {
	return Schedule{
		Timer: Timer{Kind: kind, Phase: m.snapshot.Phase, Entry: m.entry},
		After: after,
	}
}

// delay schedules a continuation, running it at once when there is no delay.
func (m *Machine) delay(kind TimerKind, after time.Duration) []Effect {
	m.pending = kind
	if after <= 0 {
		return m.OnTimer(Timer{Kind: kind, Phase: m.snapshot.Phase, Entry: m.entry})
	}
	return []Effect{m.schedule(kind, after)}
}

func (m *Machine) current(phase gametypes.Phase) bool {
	return m.snapshot != nil && m.snapshot.Phase == phase
}
