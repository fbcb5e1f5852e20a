package session

import (
	"context"
	"fmt"
	"strconv"

	gametypes "github.com/cbodonnell/clash/pkg/game/types"
	"github.com/cbodonnell/clash/pkg/log"
)

const (
	fieldLastObservedPhase = "lastObservedPhase"
	fieldInitiativeRoll    = "initiativeRoll"
)

// Progress is what survives a reload for one player in one game.
type Progress struct {
	// LastObservedPhase is PhaseUnknown when nothing was persisted.
	LastObservedPhase gametypes.Phase
	InitiativeRoll    int
	HasRoll           bool
}

// ProgressStore persists Progress on top of a Store.
type ProgressStore struct {
	store Store
}

func NewProgressStore(store Store) *ProgressStore {
	return &ProgressStore{
		store: store,
	}
}

// Key returns the store key for one field of a player's progress.
func Key(gameID, playerID, field string) string {
	return fmt.Sprintf("clash:%s:%s:%s", gameID, playerID, field)
}

// Load reads the persisted progress. Missing or unparseable values are
// reported as absent rather than as errors.
func (p *ProgressStore) Load(ctx context.Context, gameID, playerID string) (Progress, error) {
	progress := Progress{}

	raw, err := p.store.Get(ctx, Key(gameID, playerID, fieldLastObservedPhase))
	switch {
	case err == nil:
		phase, parseErr := gametypes.ParsePhase(raw)
		if parseErr != nil {
			log.Warn("Ignoring persisted phase for game %s: %v", gameID, parseErr)
		} else {
			progress.LastObservedPhase = phase
		}
	case IsNotFound(err):
	default:
		return progress, fmt.Errorf("failed to load last observed phase: %v", err)
	}

	raw, err = p.store.Get(ctx, Key(gameID, playerID, fieldInitiativeRoll))
	switch {
	case err == nil:
		roll, parseErr := strconv.Atoi(raw)
		if parseErr != nil {
			log.Warn("Ignoring persisted initiative roll for game %s: %v", gameID, parseErr)
		} else {
			progress.InitiativeRoll = roll
			progress.HasRoll = true
		}
	case IsNotFound(err):
	default:
		return progress, fmt.Errorf("failed to load initiative roll: %v", err)
	}

	return progress, nil
}

func (p *ProgressStore) SavePhase(ctx context.Context, gameID, playerID string, phase gametypes.Phase) error {
	if err := p.store.Set(ctx, Key(gameID, playerID, fieldLastObservedPhase), phase.String()); err != nil {
		return fmt.Errorf("failed to save last observed phase: %v", err)
	}
	return nil
}

func (p *ProgressStore) SaveRoll(ctx context.Context, gameID, playerID string, roll int) error {
	if err := p.store.Set(ctx, Key(gameID, playerID, fieldInitiativeRoll), strconv.Itoa(roll)); err != nil {
		return fmt.Errorf("failed to save initiative roll: %v", err)
	}
	return nil
}

func (p *ProgressStore) ClearRoll(ctx context.Context, gameID, playerID string) error {
	if err := p.store.Remove(ctx, Key(gameID, playerID, fieldInitiativeRoll)); err != nil {
		return fmt.Errorf("failed to clear initiative roll: %v", err)
	}
	return nil
}
