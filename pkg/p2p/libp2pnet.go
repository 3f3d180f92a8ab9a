// Package p2p carries consensus traffic between validators, gossips signed
// messages and block announcements, and serves committed blocks to peers
// that fell behind.
package p2p

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	libp2p "github.com/libp2p/go-libp2p"
	pubsub "github.com/libp2p/go-libp2p-pubsub"
	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/network"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/libp2p/go-libp2p/core/protocol"
	ma "github.com/multiformats/go-multiaddr"
	"go.uber.org/zap"

	"github.com/uhyunpark/hyperswap/pkg/consensus"
	"github.com/uhyunpark/hyperswap/pkg/storage"
)

const (
	topicMessages = "hyperswap-msg"
	topicBlocks   = "hyperswap-block"
	topicPropose  = "hyperswap-propose"
	topicPrepare  = "hyperswap-prepare"
	protocolBlock = protocol.ID("/hyperswap/block/1.0.0")
	protocolVote  = protocol.ID("/hyperswap/vote/1.0.0")

	// maxBlockBytes bounds a block response read from a peer.
	maxBlockBytes = 32 << 20
)

// GossipHandlers receive inbound gossip. Nil handlers drop it.
type GossipHandlers struct {
	// OnMessage gets a serialized signed message gossiped by another node.
	OnMessage func(ctx context.Context, raw []byte)
	// OnBlock gets a block announcement from another node.
	OnBlock func(ctx context.Context, from peer.ID, a BlockAnnounce)
}

type Libp2pNet struct {
	h      host.Host
	ps     *pubsub.PubSub
	log    *zap.SugaredLogger
	blocks storage.BlockStore

	tMessages, tBlocks     *pubsub.Topic
	subMessages, subBlocks *pubsub.Subscription
	tPropose, tPrepare     *pubsub.Topic
	subPropose, subPrepare *pubsub.Subscription

	muVotes sync.Mutex
	votes   map[consensus.View]map[consensus.Hash][]consensus.Vote
	// voteArrivedCh wakes CollectVotes when a vote is stored
	voteArrivedCh chan struct{}

	muH       sync.RWMutex
	handlers  GossipHandlers
	consensus consensus.Handlers
}

var _ consensus.Network = (*Libp2pNet)(nil)

type Libp2pConfig struct {
	ListenAddr string
	Bootstrap  []string
	// Blocks serves block requests from peers; nil disables serving.
	Blocks storage.BlockStore
	Logger *zap.SugaredLogger
}

func NewLibp2pNet(ctx context.Context, cfg Libp2pConfig) (*Libp2pNet, error) {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop().Sugar()
	}
	var opts []libp2p.Option
	if cfg.ListenAddr != "" {
		maddr, err := ma.NewMultiaddr(cfg.ListenAddr)
		if err != nil {
			return nil, err
		}
		opts = append(opts, libp2p.ListenAddrs(maddr))
	}
	h, err := libp2p.New(opts...)
	if err != nil {
		return nil, err
	}
	ps, err := pubsub.NewGossipSub(ctx, h)
	if err != nil {
		h.Close()
		return nil, err
	}

	net := &Libp2pNet{
		h: h, ps: ps, log: cfg.Logger, blocks: cfg.Blocks,
		votes:         make(map[consensus.View]map[consensus.Hash][]consensus.Vote),
		voteArrivedCh: make(chan struct{}, 100),
	}

	for _, bs := range cfg.Bootstrap {
		if err := net.Connect(ctx, bs); err != nil {
			cfg.Logger.Warnw("bootstrap_connect_failed", "addr", bs, "err", err)
		}
	}

	if err := net.joinTopics(); err != nil {
		h.Close()
		return nil, err
	}

	if cfg.Blocks != nil {
		h.SetStreamHandler(protocolBlock, net.handleBlockStream)
	}
	h.SetStreamHandler(protocolVote, net.handleVoteStream)

	go net.handleMessages(ctx)
	go net.handleBlocks(ctx)
	go net.handlePropose(ctx)
	go net.handlePrepare(ctx)

	cfg.Logger.Infow("libp2p_ready", "peer", h.ID().String(), "listen", cfg.ListenAddr)
	return net, nil
}

// Connect dials a full /p2p/ multiaddr.
func (n *Libp2pNet) Connect(ctx context.Context, addr string) error {
	m, err := ma.NewMultiaddr(addr)
	if err != nil {
		return err
	}
	info, err := peer.AddrInfoFromP2pAddr(m)
	if err != nil {
		return err
	}
	return n.h.Connect(ctx, *info)
}

func (n *Libp2pNet) joinTopics() error {
	var err error
	if n.tMessages, err = n.ps.Join(topicMessages); err != nil {
		return err
	}
	if n.tBlocks, err = n.ps.Join(topicBlocks); err != nil {
		return err
	}

	if n.subMessages, err = n.tMessages.Subscribe(); err != nil {
		return err
	}
	if n.subBlocks, err = n.tBlocks.Subscribe(); err != nil {
		return err
	}

	if n.tPropose, err = n.ps.Join(topicPropose); err != nil {
		return err
	}
	if n.tPrepare, err = n.ps.Join(topicPrepare); err != nil {
		return err
	}
	if n.subPropose, err = n.tPropose.Subscribe(); err != nil {
		return err
	}
	if n.subPrepare, err = n.tPrepare.Subscribe(); err != nil {
		return err
	}
	return nil
}

func (n *Libp2pNet) SetGossipHandlers(h GossipHandlers) {
	n.muH.Lock()
	n.handlers = h
	n.muH.Unlock()
}

// SetHandlers registers the consensus engine.
func (n *Libp2pNet) SetHandlers(h consensus.Handlers) {
	n.muH.Lock()
	n.consensus = h
	n.muH.Unlock()
}

func (n *Libp2pNet) Host() host.Host { return n.h }

// NodeID names this node as a validator: its libp2p peer ID.
func (n *Libp2pNet) NodeID() consensus.NodeID { return consensus.NodeID(n.h.ID().String()) }

// Addrs returns the dialable /p2p/ addresses of this node.
func (n *Libp2pNet) Addrs() []string {
	out := make([]string, 0, len(n.h.Addrs()))
	for _, a := range n.h.Addrs() {
		out = append(out, fmt.Sprintf("%s/p2p/%s", a, n.h.ID()))
	}
	return out
}

func (n *Libp2pNet) Close() error { return n.h.Close() }

// PublishMessage gossips a serialized signed message.
func (n *Libp2pNet) PublishMessage(ctx context.Context, raw []byte) error {
	return n.tMessages.Publish(ctx, raw)
}

// AnnounceBlock gossips a committed block's header.
func (n *Libp2pNet) AnnounceBlock(ctx context.Context, b storage.Block) error {
	data, err := gobEncode(BlockAnnounce{Height: b.Height, Hash: b.Hash(), StateHash: b.StateHash, Messages: len(b.Messages)})
	if err != nil {
		return err
	}
	return n.tBlocks.Publish(ctx, data)
}

// FetchBlock asks p for the block at height.
func (n *Libp2pNet) FetchBlock(ctx context.Context, p peer.ID, height uint64) (storage.Block, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	stream, err := n.h.NewStream(ctx, p, protocolBlock)
	if err != nil {
		return storage.Block{}, err
	}
	defer stream.Close()

	req, err := gobEncode(BlockRequestWire{Height: height})
	if err != nil {
		return storage.Block{}, err
	}
	if _, err := stream.Write(req); err != nil {
		return storage.Block{}, err
	}
	if err := stream.CloseWrite(); err != nil {
		return storage.Block{}, err
	}

	data, err := io.ReadAll(io.LimitReader(stream, maxBlockBytes))
	if err != nil {
		return storage.Block{}, err
	}
	var resp BlockResponseWire
	if err := gobDecode(data, &resp); err != nil {
		return storage.Block{}, err
	}
	if !resp.Found {
		return storage.Block{}, fmt.Errorf("peer %s has no block %d", p, height)
	}
	var b storage.Block
	if err := gobDecode(resp.Block, &b); err != nil {
		return storage.Block{}, err
	}
	if b.Height != height {
		return storage.Block{}, errors.New("peer returned a different height")
	}
	return b, nil
}

// inbound

func (n *Libp2pNet) handleMessages(ctx context.Context) {
	for {
		msg, err := n.subMessages.Next(ctx)
		if err != nil {
			return
		}
		if msg.ReceivedFrom == n.h.ID() {
			continue
		}

		n.muH.RLock()
		h := n.handlers
		n.muH.RUnlock()
		if h.OnMessage != nil {
			h.OnMessage(ctx, msg.Data)
		}
	}
}

func (n *Libp2pNet) handleBlocks(ctx context.Context) {
	for {
		msg, err := n.subBlocks.Next(ctx)
		if err != nil {
			return
		}
		if msg.ReceivedFrom == n.h.ID() {
			continue
		}
		var a BlockAnnounce
		if err := gobDecode(msg.Data, &a); err != nil {
			n.log.Debugw("bad_block_announce", "from", msg.ReceivedFrom.String(), "err", err)
			continue
		}

		n.muH.RLock()
		h := n.handlers
		n.muH.RUnlock()
		if h.OnBlock != nil {
			h.OnBlock(ctx, msg.ReceivedFrom, a)
		}
	}
}

// handleBlockStream answers one block request per stream
func (n *Libp2pNet) handleBlockStream(s network.Stream) {
	defer s.Close()

	data, err := io.ReadAll(io.LimitReader(s, 1024))
	if err != nil {
		return
	}
	var req BlockRequestWire
	if err := gobDecode(data, &req); err != nil {
		return
	}

	var resp BlockResponseWire
	if b, ok := n.blocks.GetBlock(req.Height); ok {
		enc, err := gobEncode(b)
		if err != nil {
			n.log.Warnw("block_encode_failed", "height", req.Height, "err", err)
			return
		}
		resp = BlockResponseWire{Found: true, Block: enc}
	}
	out, err := gobEncode(resp)
	if err != nil {
		return
	}
	_, _ = s.Write(out)
}
