// Package mempool queues signed external messages between admission and
// block assembly.
package mempool

import (
	"errors"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

var (
	ErrFull      = errors.New("mempool full")
	ErrDuplicate = errors.New("message already pending")
	ErrEmpty     = errors.New("empty message")
)

// Mempool is a single FIFO by admission order. Messages are never
// reordered: a sender's nonces must reach the runtime in sequence.
type Mempool struct {
	mu      sync.Mutex
	queue   [][]byte
	pending map[common.Hash]struct{}
	maxTxs  int
}

// NewMempool returns a mempool holding at most maxTxs messages; zero
// means unbounded.
func NewMempool(maxTxs int) *Mempool {
	return &Mempool{pending: make(map[common.Hash]struct{}), maxTxs: maxTxs}
}

// PushRaw enqueues a copy of b.
func (m *Mempool) PushRaw(b []byte) error {
	if len(b) == 0 {
		return ErrEmpty
	}
	h := crypto.Keccak256Hash(b)
	cp := append([]byte(nil), b...)

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, dup := m.pending[h]; dup {
		return ErrDuplicate
	}
	if m.maxTxs > 0 && len(m.queue) >= m.maxTxs {
		return ErrFull
	}
	m.pending[h] = struct{}{}
	m.queue = append(m.queue, cp)
	return nil
}

// SelectForProposal removes and returns up to maxTxs messages totalling at
// most maxBytes, oldest first. Zero limits mean unbounded.
func (m *Mempool) SelectForProposal(maxBytes int64, maxTxs int) [][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out [][]byte
	var used int64
	for len(m.queue) > 0 {
		tx := m.queue[0]
		n := int64(len(tx))
		if maxBytes > 0 && used+n > maxBytes {
			break
		}
		if maxTxs > 0 && len(out) >= maxTxs {
			break
		}
		out = append(out, tx)
		used += n
		m.queue = m.queue[1:]
		delete(m.pending, crypto.Keccak256Hash(tx))
	}
	return out
}

// Len returns total pending txs.
func (m *Mempool) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.queue)
}
