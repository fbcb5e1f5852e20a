package session

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	gametypes "github.com/cbodonnell/clash/pkg/game/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// exerciseStore runs the behaviour shared by every backend.
func exerciseStore(t *testing.T, s Store) {
	ctx := context.Background()
	key := Key("game-"+t.Name(), "player", "field")

	_, err := s.Get(ctx, key)
	assert.True(t, IsNotFound(err), "expected not found, got %v", err)

	require.NoError(t, s.Set(ctx, key, "one"))
	require.NoError(t, s.Set(ctx, key, "two"))
	got, err := s.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, "two", got)

	require.NoError(t, s.Remove(ctx, key))
	require.NoError(t, s.Remove(ctx, key))
	_, err = s.Get(ctx, key)
	assert.True(t, IsNotFound(err))
}

func TestMemoryStore(t *testing.T) {
	exerciseStore(t, NewMemoryStore())
}

func TestSQLiteStore(t *testing.T) {
	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), "session.db")

	s, err := NewSQLiteStore(ctx, dbPath)
	require.NoError(t, err)
	exerciseStore(t, s)

	progress := NewProgressStore(s)
	require.NoError(t, progress.SavePhase(ctx, "g1", "p1", gametypes.PhaseClashRollInit))
	require.NoError(t, progress.SaveRoll(ctx, "g1", "p1", 7))
	require.NoError(t, s.Close(ctx))

	// progress must survive reopening the database
	reopened, err := Open(ctx, "sqlite://"+dbPath)
	require.NoError(t, err)
	defer reopened.Close(ctx)

	got, err := NewProgressStore(reopened).Load(ctx, "g1", "p1")
	require.NoError(t, err)
	assert.Equal(t, Progress{LastObservedPhase: gametypes.PhaseClashRollInit, InitiativeRoll: 7, HasRoll: true}, got)
}

func TestPostgresStore(t *testing.T) {
	connStr := os.Getenv("CLASH_TEST_POSTGRES_URL")
	if connStr == "" {
		t.Skip("CLASH_TEST_POSTGRES_URL not set")
	}
	s, err := Open(context.Background(), connStr)
	require.NoError(t, err)
	defer s.Close(context.Background())
	exerciseStore(t, s)
}

func TestRedisStore(t *testing.T) {
	url := os.Getenv("CLASH_TEST_REDIS_URL")
	if url == "" {
		t.Skip("CLASH_TEST_REDIS_URL not set")
	}
	s, err := Open(context.Background(), url)
	require.NoError(t, err)
	defer s.Close(context.Background())
	exerciseStore(t, s)
}

func TestOpen(t *testing.T) {
	tests := []struct {
		name    string
		connStr string
		wantErr bool
	}{
		{name: "memory", connStr: "memory://"},
		{name: "unknown scheme", connStr: "floppy://a", wantErr: true},
		{name: "sqlite without path", connStr: "sqlite://", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := Open(context.Background(), tt.connStr)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.NoError(t, s.Close(context.Background()))
		})
	}
}
