package history

import (
	"context"
	"fmt"
	"strings"
)

// NewStore picks a backend from the database URL: empty means in-memory,
// postgres:// or postgresql:// means PostgreSQL, and sqlite://<path> or a
// path ending in .db means SQLite.
func NewStore(ctx context.Context, databaseURL string) (Store, error) {
	u := strings.TrimSpace(databaseURL)
	switch {
	case u == "":
		return NewInMemoryStore(), nil
	case strings.HasPrefix(u, "postgres://"), strings.HasPrefix(u, "postgresql://"):
		return NewPostgresStore(ctx, u)
	case strings.HasPrefix(u, "sqlite://"):
		return NewSQLiteStore(ctx, strings.TrimPrefix(u, "sqlite://"))
	case strings.HasSuffix(u, ".db"), strings.HasSuffix(u, ".sqlite"):
		return NewSQLiteStore(ctx, u)
	default:
		return nil, fmt.Errorf("unsupported database url %q", u)
	}
}
