package consensus

import "sync"

// MemStore keeps consensus blocks and certificates in memory. Committing a
// block drops everything older than it; the ledger itself is persisted by
// the application.
type MemStore struct {
	mu        sync.Mutex
	blocks    map[Hash]Block
	certs     map[View]Certificate
	committed Hash
	have      bool
}

func NewMemStore() *MemStore {
	return &MemStore{
		blocks: make(map[Hash]Block),
		certs:  make(map[View]Certificate),
	}
}

func (s *MemStore) SaveBlock(b Block) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.blocks[HashOfBlock(b)] = b
}

func (s *MemStore) GetBlock(h Hash) (Block, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.blocks[h]
	return b, ok
}

func (s *MemStore) SaveCert(c Certificate) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.certs[c.View] = c
}

func (s *MemStore) GetCert(v View) (Certificate, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.certs[v]
	return c, ok
}

func (s *MemStore) SetCommitted(h Hash) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.committed, s.have = h, true

	b, ok := s.blocks[h]
	if !ok {
		return
	}
	for k, old := range s.blocks {
		if old.Height < b.Height {
			delete(s.blocks, k)
		}
	}
	for v := range s.certs {
		if v < b.View {
			delete(s.certs, v)
		}
	}
}

func (s *MemStore) GetCommitted() (Hash, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.committed, s.have
}
