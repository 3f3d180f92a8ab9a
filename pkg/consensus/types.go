// Package consensus orders blocks with a chained two-phase HotStuff:
// the leader of each view proposes, validators execute and vote, and a
// block commits once a certificate for its child is observed.
package consensus

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"time"
)

type NodeID string
type View uint64
type Height uint64

type Quorum struct{ N, T int } // N=3t+1, T=t

// NewQuorum tolerates t = (n-1)/3 faulty validators.
func NewQuorum(n int) Quorum { return Quorum{N: n, T: (n - 1) / 3} }

// Need is the vote count that forms a certificate, 2t+1.
func (q Quorum) Need() int { return 2*q.T + 1 }

type Hash [32]byte

func (h Hash) String() string { return fmt.Sprintf("%x", h[:]) }

type Block struct {
	Height   Height
	View     View
	Parent   Hash
	AppHash  Hash // state after executing this block, set at commit
	Payload  []byte
	Proposer NodeID
	Time     time.Time
}

type Certificate struct {
	View    View
	H       Hash // consensus hash of the certified block
	AppHash Hash // state all voters reached executing it
	Sig     []byte
}

type DoubleCert struct{ C1, C2 Certificate }

type Vote struct {
	View     View
	H        Hash
	AppHash  Hash
	SigShare []byte
	From     NodeID
}

type Locked struct {
	Block Block
	Cert  Certificate
}

// HashOfBlock commits to the consensus fields of a block. AppHash is left
// out: it is unknown when the block is proposed and is agreed through the
// votes instead.
func HashOfBlock(b Block) Hash {
	h := sha256.New()

	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], uint64(b.Height))
	h.Write(buf[:])
	binary.BigEndian.PutUint64(buf[:], uint64(b.View))
	h.Write(buf[:])
	h.Write(b.Parent[:])
	h.Write(b.Payload)
	h.Write([]byte(b.Proposer))
	binary.BigEndian.PutUint64(buf[:], uint64(b.Time.UnixNano()))
	h.Write(buf[:])

	return sha256.Sum256(h.Sum(nil))
}

// ---- Storage/WAL interfaces ----

type BlockStore interface {
	SaveBlock(b Block)
	GetBlock(h Hash) (Block, bool)
	SaveCert(c Certificate)
	GetCert(v View) (Certificate, bool)
	SetCommitted(h Hash)
	GetCommitted() (Hash, bool)
}

type WAL interface {
	Append(line string)
}

// Signer produces vote shares and combines a quorum of them into the
// certificate signature.
type Signer interface {
	SignShare(msg []byte) ([]byte, error)
	Combine(shares [][]byte) ([]byte, error)
}
