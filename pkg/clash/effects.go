package clash

import (
	"fmt"
	"time"

	"github.com/cbodonnell/clash/pkg/dispatch"
	gametypes "github.com/cbodonnell/clash/pkg/game/types"
)

// Effect is a side effect decided by the Machine. Effects are executed in
// the order they are returned.
type Effect interface {
	effect()
}

// PersistPhase records the phase that was just entered.
type PersistPhase struct {
	Phase gametypes.Phase
}

// PersistRoll records the initiative roll of the current clash.
type PersistRoll struct {
	Roll int
}

// ClearRoll forgets the roll of a previous clash.
type ClearRoll struct{}

// Send hands a command to the dispatcher. Its result must be passed back
// to Machine.OnCommandResult together with Entry.
type Send struct {
	Command dispatch.Command
	Entry   uint64
}

// Schedule fires Timer through Machine.OnTimer once After has elapsed.
type Schedule struct {
	Timer Timer
	After time.Duration
}

// CancelTimers stops every scheduled timer.
type CancelTimers struct{}

func (PersistPhase) effect() {}
func (PersistRoll) effect()  {}
func (ClearRoll) effect()    {}
func (Send) effect()         {}
func (Schedule) effect()     {}
func (CancelTimers) effect() {}

func (e PersistPhase) String() string { return fmt.Sprintf("persist phase %s", e.Phase) }
func (e PersistRoll) String() string  { return fmt.Sprintf("persist roll %d", e.Roll) }
func (ClearRoll) String() string      { return "clear roll" }
func (e Send) String() string         { return fmt.Sprintf("send %s", e.Command) }
func (e Schedule) String() string     { return fmt.Sprintf("schedule %s in %s", e.Timer.Kind, e.After) }
func (CancelTimers) String() string   { return "cancel timers" }

type TimerKind int

const (
	TimerCountdownTick TimerKind = iota + 1
	TimerTurn
	TimerDecision
	TimerConcluded
)

func (k TimerKind) String() string {
	switch k {
	case TimerCountdownTick:
		return "countdown tick"
	case TimerTurn:
		return "turn delay"
	case TimerDecision:
		return "decision delay"
	case TimerConcluded:
		return "concluded delay"
	default:
		return fmt.Sprintf("timer(%d)", int(k))
	}
}

// Timer is a delayed continuation of one phase entry. It is ignored when
// the phase entry it belongs to is no longer current.
type Timer struct {
	Kind  TimerKind
	Phase gametypes.Phase
	Entry uint64
}

// Timing holds the local presentation delays.
type Timing struct {
	CountdownTicks    int
	CountdownInterval time.Duration
	TurnDelay         time.Duration
	DecisionDelay     time.Duration
	ConcludedDelay    time.Duration
}

func DefaultTiming() Timing {
	return Timing{
		CountdownTicks:    3,
		CountdownInterval: time.Second,
		TurnDelay:         2 * time.Second,
		DecisionDelay:     3 * time.Second,
		ConcludedDelay:    5 * time.Second,
	}
}
