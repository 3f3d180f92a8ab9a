package consensus

import "sync"

type Safety struct {
	state  *State
	blocks map[Hash]Block
	mu     sync.RWMutex
}

func NewSafety(s *State) *Safety {
	st := &Safety{state: s, blocks: make(map[Hash]Block)}
	gen := s.Genesis
	st.blocks[HashOfBlock(gen)] = gen
	return st
}

func (s *Safety) HighestCert() Certificate {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.state.HighCert != nil {
		return *s.state.HighCert
	}
	return Certificate{View: 0, H: HashOfBlock(s.state.Genesis)}
}

func (s *Safety) HighestDouble() *DoubleCert { return nil }

// OnPrepare records a newly observed certificate and its block.
func (s *Safety) OnPrepare(cert Certificate, b Block) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if b.Proposer != "" {
		s.blocks[HashOfBlock(b)] = b
	}
	if s.state.HighCert == nil || cert.View > s.state.HighCert.View {
		c := cert
		s.state.HighCert = &c
	}
}

func (s *Safety) UpdateLock(cert Certificate, b Block) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state.HighCert == nil || cert.View > s.state.HighCert.View {
		c := cert
		s.state.HighCert = &c
	}
	s.blocks[HashOfBlock(b)] = b
	s.state.Locked = &Locked{Block: b, Cert: cert}
}

// CanVote accepts a proposal that extends a certificate at least as recent
// as the lock.
func (s *Safety) CanVote(p Propose) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.state.Locked == nil {
		return true
	}
	return p.HighCert.View >= s.state.Locked.Cert.View
}

func (s *Safety) BlockByHash(h Hash) (Block, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	b, ok := s.blocks[h]
	return b, ok
}

// Prune drops blocks below height, keeping the genesis and the locked block.
func (s *Safety) Prune(height Height) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for h, b := range s.blocks {
		if b.Height < height && b.Proposer != "genesis" {
			delete(s.blocks, h)
		}
	}
	if s.state.Locked != nil {
		s.blocks[HashOfBlock(s.state.Locked.Block)] = s.state.Locked.Block
	}
}
