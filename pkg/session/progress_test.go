package session

import (
	"context"
	"fmt"
	"testing"

	mocks "github.com/cbodonnell/clash/mocks/github.com/cbodonnell/clash/pkg/session"
	gametypes "github.com/cbodonnell/clash/pkg/game/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestProgressStore_Load(t *testing.T) {
	phaseKey := Key("g1", "p1", fieldLastObservedPhase)
	rollKey := Key("g1", "p1", fieldInitiativeRoll)

	tests := []struct {
		name    string
		setup   func(m *mocks.Store)
		want    Progress
		wantErr bool
	}{
		{
			name: "nothing persisted",
			setup: func(m *mocks.Store) {
				m.EXPECT().Get(mock.Anything, phaseKey).Return("", &ErrNotFound{}).Once()
				m.EXPECT().Get(mock.Anything, rollKey).Return("", &ErrNotFound{}).Once()
			},
			want: Progress{},
		},
		{
			name: "phase and roll persisted",
			setup: func(m *mocks.Store) {
				m.EXPECT().Get(mock.Anything, phaseKey).Return("CLASH_ROLL_INIT", nil).Once()
				m.EXPECT().Get(mock.Anything, rollKey).Return("7", nil).Once()
			},
			want: Progress{LastObservedPhase: gametypes.PhaseClashRollInit, InitiativeRoll: 7, HasRoll: true},
		},
		{
			name: "unparseable values are treated as absent",
			setup: func(m *mocks.Store) {
				m.EXPECT().Get(mock.Anything, phaseKey).Return("[object Object]", nil).Once()
				m.EXPECT().Get(mock.Anything, rollKey).Return("seven", nil).Once()
			},
			want: Progress{},
		},
		{
			name: "store failure",
			setup: func(m *mocks.Store) {
				m.EXPECT().Get(mock.Anything, phaseKey).Return("", fmt.Errorf("disk on fire")).Once()
			},
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := mocks.NewStore(t)
			tt.setup(m)

			got, err := NewProgressStore(m).Load(context.Background(), "g1", "p1")
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestProgressStore_writes(t *testing.T) {
	m := mocks.NewStore(t)
	m.EXPECT().Set(mock.Anything, "clash:g1:p1:lastObservedPhase", "CLASH_PLAYER_TURN").Return(nil).Once()
	m.EXPECT().Set(mock.Anything, "clash:g1:p1:initiativeRoll", "12").Return(nil).Once()
	m.EXPECT().Remove(mock.Anything, "clash:g1:p1:initiativeRoll").Return(nil).Once()

	p := NewProgressStore(m)
	ctx := context.Background()
	require.NoError(t, p.SavePhase(ctx, "g1", "p1", gametypes.PhaseClashPlayerTurn))
	require.NoError(t, p.SaveRoll(ctx, "g1", "p1", 12))
	require.NoError(t, p.ClearRoll(ctx, "g1", "p1"))
}
