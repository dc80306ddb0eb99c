package ledger

import (
	"fmt"
	"strings"

	"github.com/aatumaykin/outreach/internal/logger"
)

// Config selects and locates the ledger backend.
//
// Driver values:
//   - "csv" (default): flat CSV file
//   - "sqlite": SQLite database file
type Config struct {
	Driver string
	Path   string
}

// Open initializes the configured store.
func Open(cfg Config, log *logger.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, fmt.Errorf("ledger path is required")
	}

	switch strings.ToLower(strings.TrimSpace(cfg.Driver)) {
	case "", "csv":
		return NewCSVStore(path, log), nil
	case "sqlite", "sqlite3":
		return OpenSQLite(path, log)
	default:
		return nil, fmt.Errorf("unknown ledger driver: %s (expected: csv, sqlite)", cfg.Driver)
	}
}
