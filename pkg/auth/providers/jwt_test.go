package providers

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJWTAuthProvider_VerifyToken(t *testing.T) {
	secret := []byte("s3cret")
	playerID := uuid.NewString()

	valid, err := NewToken(secret, playerID, time.Hour)
	require.NoError(t, err)
	expired, err := NewToken(secret, playerID, -time.Hour)
	require.NoError(t, err)
	otherKey, err := NewToken([]byte("other"), playerID, time.Hour)
	require.NoError(t, err)
	notUUID, err := NewToken(secret, "alice", time.Hour)
	require.NoError(t, err)

	tests := []struct {
		name     string
		provider *JWTAuthProvider
		token    string
		wantErr  bool
	}{
		{name: "verified", provider: NewJWTAuthProvider(secret), token: valid},
		{name: "expired", provider: NewJWTAuthProvider(secret), token: expired, wantErr: true},
		{name: "wrong key", provider: NewJWTAuthProvider(secret), token: otherKey, wantErr: true},
		{name: "unverified ignores key", provider: NewUnverifiedJWTAuthProvider(), token: otherKey},
		{name: "subject must be a player id", provider: NewUnverifiedJWTAuthProvider(), token: notUUID, wantErr: true},
		{name: "garbage", provider: NewUnverifiedJWTAuthProvider(), token: "abc", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			claims, err := tt.provider.VerifyToken(context.Background(), tt.token)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, playerID, claims.UID)
		})
	}
}
