package store

import (
	"cacheprobe/internal/probe"
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/util"
)

// LevelDBStore keys findings as "f:<run>:<seq>" so a prefix scan returns one
// run in insertion order.
type LevelDBStore struct {
	db  *leveldb.DB
	seq atomic.Uint64
}

func NewLevelDBStore(path string) (*LevelDBStore, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open leveldb store %s: %w", path, err)
	}
	s := &LevelDBStore{db: db}
	s.seq.Store(uint64(time.Now().UnixNano()))
	return s, nil
}

func runPrefix(runID string) []byte {
	return []byte("f:" + runID + ":")
}

func (s *LevelDBStore) Save(ctx context.Context, runID string, r *probe.Result) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	b, err := json.Marshal(Finding{
		RunID:   runID,
		URL:     r.URL,
		Method:  r.Method,
		Headers: r.Headers,
		FoundAt: time.Now().UTC(),
	})
	if err != nil {
		return err
	}

	key := fmt.Appendf(runPrefix(runID), "%020d", s.seq.Add(1))
	if err := s.db.Put(key, b, nil); err != nil {
		return fmt.Errorf("failed to save finding for %s: %w", r.URL, err)
	}
	return nil
}

func (s *LevelDBStore) Findings(ctx context.Context, runID string) ([]Finding, error) {
	it := s.db.NewIterator(util.BytesPrefix(runPrefix(runID)), nil)
	defer it.Release()

	findings := make([]Finding, 0)
	for it.Next() {
		if err := ctx.Err(); err != nil {
			return findings, err
		}
		var f Finding
		if err := json.Unmarshal(it.Value(), &f); err != nil {
			continue
		}
		findings = append(findings, f)
	}
	return findings, it.Error()
}

func (s *LevelDBStore) Close() error {
	return s.db.Close()
}
