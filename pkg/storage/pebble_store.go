package storage

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/cockroachdb/pebble"
	"github.com/ethereum/go-ethereum/common"

	"github.com/uhyunpark/hyperswap/pkg/chain"
)

type PebbleStore struct {
	db *pebble.DB
}

func NewPebbleStore(path string) (*PebbleStore, error) {
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		return nil, err
	}
	return &PebbleStore{db: db}, nil
}
func (s *PebbleStore) Close() error { return s.db.Close() }

var (
	_ chain.AccountStore = (*PebbleStore)(nil)
	_ BlockStore         = (*PebbleStore)(nil)
)

// ============================================================================
// Account Persistence Methods
// ============================================================================

// SaveAccounts writes a commit's dirty accounts and the runtime counters
// in one synced batch, so a crash never leaves half a commit behind.
func (s *PebbleStore) SaveAccounts(recs []chain.AccountRecord, meta chain.Meta) error {
	batch := s.db.NewBatch()
	defer batch.Close()

	for _, rec := range recs {
		data, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("failed to marshal account %s: %w", rec.Address.Hex(), err)
		}
		if err := batch.Set(accountKey(rec.Address), data, nil); err != nil {
			return fmt.Errorf("failed to stage account: %w", err)
		}
	}
	data, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("failed to marshal meta: %w", err)
	}
	if err := batch.Set(kMeta(), data, nil); err != nil {
		return fmt.Errorf("failed to stage meta: %w", err)
	}
	if err := batch.Commit(pebble.Sync); err != nil {
		return fmt.Errorf("failed to save accounts: %w", err)
	}
	return nil
}

// LoadAccounts returns every persisted account in key order.
func (s *PebbleStore) LoadAccounts() ([]chain.AccountRecord, chain.Meta, error) {
	var meta chain.Meta
	val, closer, err := s.db.Get(kMeta())
	switch {
	case errors.Is(err, pebble.ErrNotFound):
		return nil, meta, nil
	case err != nil:
		return nil, meta, fmt.Errorf("failed to get meta: %w", err)
	}
	err = json.Unmarshal(val, &meta)
	closer.Close()
	if err != nil {
		return nil, meta, fmt.Errorf("failed to unmarshal meta: %w", err)
	}

	prefix := []byte(prefixAccount)
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: keyUpperBound(prefix),
	})
	if err != nil {
		return nil, meta, err
	}
	defer iter.Close()

	var recs []chain.AccountRecord
	for iter.First(); iter.Valid(); iter.Next() {
		var rec chain.AccountRecord
		if err := json.Unmarshal(iter.Value(), &rec); err != nil {
			return nil, meta, fmt.Errorf("failed to unmarshal account at %x: %w", iter.Key(), err)
		}
		recs = append(recs, rec)
	}
	return recs, meta, iter.Error()
}

// ============================================================================
// Block Persistence Methods
// ============================================================================

func (s *PebbleStore) SaveBlock(b Block) error {
	val, err := encodeGob(b)
	if err != nil {
		return fmt.Errorf("encode block: %w", err)
	}
	batch := s.db.NewBatch()
	defer batch.Close()
	h := heightKey(b.Height)
	_ = batch.Set(kBlock(b.Height), val, nil)
	_ = batch.Set(kBlockHash(b.Hash()), h, nil)
	_ = batch.Set(kHead(), h, nil)
	return batch.Commit(pebble.Sync)
}

func (s *PebbleStore) GetBlock(height uint64) (Block, bool) {
	val, closer, err := s.db.Get(kBlock(height))
	if err != nil {
		return Block{}, false
	}
	defer closer.Close()
	var out Block
	if err := decodeGob(val, &out); err != nil {
		return Block{}, false
	}
	return out, true
}

func (s *PebbleStore) GetBlockByHash(h common.Hash) (Block, bool) {
	height, ok := s.getHeight(kBlockHash(h))
	if !ok {
		return Block{}, false
	}
	return s.GetBlock(height)
}

func (s *PebbleStore) Head() (uint64, bool) { return s.getHeight(kHead()) }

func (s *PebbleStore) getHeight(key []byte) (uint64, bool) {
	val, closer, err := s.db.Get(key)
	if err != nil {
		return 0, false
	}
	defer closer.Close()
	if len(val) != 8 {
		return 0, false
	}
	return binary.BigEndian.Uint64(val), true
}
