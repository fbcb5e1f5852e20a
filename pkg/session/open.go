package session

import (
	"context"
	"fmt"
	"net/url"
)

// Open creates a store from a connection string. The scheme selects the
// backend: memory, sqlite, postgres/postgresql or redis/rediss.
func Open(ctx context.Context, connStr string) (Store, error) {
	u, err := url.Parse(connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection string: %v", err)
	}

	switch u.Scheme {
	case "memory":
		return NewMemoryStore(), nil
	case "sqlite":
		dbPath := u.Host + u.Path
		if dbPath == "" {
			return nil, fmt.Errorf("sqlite connection string has no path: %s", connStr)
		}
		return NewSQLiteStore(ctx, dbPath)
	case "postgres", "postgresql":
		return NewPostgresStore(ctx, u.String())
	case "redis", "rediss":
		return NewRedisStore(ctx, u.String())
	default:
		return nil, fmt.Errorf("unknown session store type %s", u.Scheme)
	}
}
