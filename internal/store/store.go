package store

import (
	"cacheprobe/internal/probe"
	"context"
	"fmt"
	"time"
)

// Finding is a stored positive result tagged with the run that produced it.
type Finding struct {
	RunID   string            `json:"run_id"`
	URL     string            `json:"url"`
	Method  string            `json:"method"`
	Headers map[string]string `json:"headers"`
	FoundAt time.Time         `json:"found_at"`
}

// Store keeps findings across runs for later analysis.
//
// Implementations must be safe for concurrent use.
type Store interface {
	Save(ctx context.Context, runID string, r *probe.Result) error
	// Findings returns the findings of one run in insertion order.
	Findings(ctx context.Context, runID string) ([]Finding, error)
	Close() error
}

// Open selects a backend by driver name.
func Open(driver, path string) (Store, error) {
	switch driver {
	case "sqlite":
		return NewSQLiteStore(path)
	case "leveldb":
		return NewLevelDBStore(path)
	default:
		return nil, fmt.Errorf("unsupported store driver: %s", driver)
	}
}
