package metastore

import (
	"context"
	"fmt"
	"strings"
)

// Open selects a Store implementation from dsn's scheme: "postgres://" or
// "postgresql://" dials pgx; anything else is treated as a SQLite file
// path.
func Open(ctx context.Context, dsn string) (Store, error) {
	switch {
	case strings.HasPrefix(dsn, "postgres://"), strings.HasPrefix(dsn, "postgresql://"):
		return OpenPostgres(ctx, dsn)
	case dsn == "":
		return nil, fmt.Errorf("metastore dsn is required")
	default:
		return OpenSQLite(dsn)
	}
}
