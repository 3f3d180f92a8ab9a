package storage

import (
	"sort"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/uhyunpark/hyperswap/pkg/chain"
)

type InMemoryBlockStore struct {
	mu       sync.Mutex
	blocks   map[uint64]Block
	byHash   map[common.Hash]uint64
	head     uint64
	haveHead bool
}

func NewInMemoryBlockStore() *InMemoryBlockStore {
	return &InMemoryBlockStore{
		blocks: make(map[uint64]Block),
		byHash: make(map[common.Hash]uint64),
	}
}

func (s *InMemoryBlockStore) SaveBlock(b Block) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.blocks[b.Height] = b
	s.byHash[b.Hash()] = b.Height
	s.head, s.haveHead = b.Height, true
	return nil
}

func (s *InMemoryBlockStore) GetBlock(height uint64) (Block, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.blocks[height]
	return b, ok
}

func (s *InMemoryBlockStore) GetBlockByHash(h common.Hash) (Block, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	height, ok := s.byHash[h]
	if !ok {
		return Block{}, false
	}
	return s.blocks[height], true
}

func (s *InMemoryBlockStore) Head() (uint64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.head, s.haveHead
}

// InMemoryAccountStore keeps committed accounts in memory, for tests and
// nodes started without a data directory.
type InMemoryAccountStore struct {
	mu   sync.Mutex
	recs map[common.Address]chain.AccountRecord
	meta chain.Meta
}

func NewInMemoryAccountStore() *InMemoryAccountStore {
	return &InMemoryAccountStore{recs: make(map[common.Address]chain.AccountRecord)}
}

func (s *InMemoryAccountStore) SaveAccounts(recs []chain.AccountRecord, meta chain.Meta) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range recs {
		s.recs[r.Address] = r
	}
	s.meta = meta
	return nil
}

func (s *InMemoryAccountStore) LoadAccounts() ([]chain.AccountRecord, chain.Meta, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]chain.AccountRecord, 0, len(s.recs))
	for _, r := range s.recs {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Address.Cmp(out[j].Address) < 0 })
	return out, s.meta, nil
}

var (
	_ BlockStore         = (*InMemoryBlockStore)(nil)
	_ chain.AccountStore = (*InMemoryAccountStore)(nil)
)
