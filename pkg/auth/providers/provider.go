package providers

import "context"

type AuthProvider interface {
	VerifyToken(ctx context.Context, idToken string) (*TokenClaims, error)
}

type TokenClaims struct {
	// UID is the player id carried as the token subject.
	UID string `json:"uid"`
}
