// Package backend opens the store.Store named by a connection URI.
package backend

import (
	"context"
	"fmt"
	"strings"

	"github.com/alphabot-ai/blogapi/internal/store"
	"github.com/alphabot-ai/blogapi/internal/store/memory"
	"github.com/alphabot-ai/blogapi/internal/store/postgres"
	"github.com/alphabot-ai/blogapi/internal/store/sqlite"
)

// Open recognises:
//
//	memory://                     in-process maps, lost on exit
//	sqlite://<path>, file:<dsn>   SQLite database
//	postgres://..., postgresql:// PostgreSQL
//
// A bare path is treated as a SQLite file.
func Open(ctx context.Context, uri string) (store.Store, error) {
	switch {
	case uri == "":
		return nil, fmt.Errorf("store uri is empty")
	case strings.HasPrefix(uri, "memory://"):
		return memory.New(), nil
	case strings.HasPrefix(uri, "postgres://"), strings.HasPrefix(uri, "postgresql://"):
		return postgres.Open(ctx, uri)
	case strings.HasPrefix(uri, "sqlite://"):
		return sqlite.Open(strings.TrimPrefix(uri, "sqlite://"))
	case strings.HasPrefix(uri, "file:"):
		return sqlite.Open(uri)
	case strings.Contains(uri, "://"):
		return nil, fmt.Errorf("unsupported store uri scheme: %s", uri)
	default:
		return sqlite.Open(uri)
	}
}

// Kind names the backend Open would pick, for logging.
func Kind(uri string) string {
	switch {
	case strings.HasPrefix(uri, "memory://"):
		return "memory"
	case strings.HasPrefix(uri, "postgres://"), strings.HasPrefix(uri, "postgresql://"):
		return "postgres"
	default:
		return "sqlite"
	}
}
