// Package node turns the actor runtime into a block-producing node:
// signed external messages are admitted to the mempool, cut into blocks,
// executed to quiescence and persisted.
package node

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/uhyunpark/hyperswap/pkg/abci"
	"github.com/uhyunpark/hyperswap/pkg/chain"
	"github.com/uhyunpark/hyperswap/pkg/mempool"
	"github.com/uhyunpark/hyperswap/pkg/metrics"
	"github.com/uhyunpark/hyperswap/pkg/storage"
	"github.com/uhyunpark/hyperswap/pkg/swap"
	"github.com/uhyunpark/hyperswap/pkg/util"
)

var (
	ErrStaleNonce  = errors.New("nonce already used")
	ErrWrongHeight = errors.New("unexpected block height")
)

type Option func(*App)

func WithLogger(l *zap.Logger) Option        { return func(a *App) { a.log = l } }
func WithMetrics(m *metrics.Metrics) Option  { return func(a *App) { a.metrics = m } }
func WithWAL(w storage.WAL) Option           { return func(a *App) { a.wal = w } }
func WithClock(c util.Clock) Option          { return func(a *App) { a.clock = c } }
func WithMempool(mp *mempool.Mempool) Option { return func(a *App) { a.mempool = mp } }
func WithMaxBlockTxs(n int) Option           { return func(a *App) { a.maxBlockTxs = n } }

// App executes blocks of signed messages against the runtime.
type App struct {
	mu       sync.Mutex
	chain    *chain.Chain
	blocks   storage.BlockStore
	verifier *Verifier
	mempool  *mempool.Mempool
	wal      storage.WAL
	metrics  *metrics.Metrics
	log      *zap.Logger
	clock    util.Clock

	maxBlockTxs int

	height   uint64
	lastHash common.Hash

	// OnBlock is called after every committed block.
	OnBlock func(storage.Block)
}

var _ abci.Application = (*App)(nil)

// NewApp resumes from the head of blocks.
func NewApp(c *chain.Chain, blocks storage.BlockStore, v *Verifier, opts ...Option) (*App, error) {
	a := &App{
		chain:       c,
		blocks:      blocks,
		verifier:    v,
		wal:         storage.NewNopWAL(),
		metrics:     metrics.NopMetrics(),
		log:         zap.NewNop(),
		clock:       util.RealClock{},
		maxBlockTxs: 1000,
	}
	for _, o := range opts {
		o(a)
	}
	if a.mempool == nil {
		a.mempool = mempool.NewMempool(10 * a.maxBlockTxs)
	}
	if head, ok := blocks.Head(); ok {
		b, found := blocks.GetBlock(head)
		if !found {
			return nil, fmt.Errorf("head block %d missing", head)
		}
		a.height, a.lastHash = head, b.Hash()
		if b.StateHash != c.StateHash() {
			return nil, fmt.Errorf("state hash %s does not match block %d (%s)", c.StateHash().Hex(), head, b.StateHash.Hex())
		}
	}
	return a, nil
}

func (a *App) Chain() *chain.Chain        { return a.chain }
func (a *App) Clock() util.Clock          { return a.clock }
func (a *App) MaxBlockTxs() int           { return a.maxBlockTxs }
func (a *App) Blocks() storage.BlockStore { return a.blocks }
func (a *App) Mempool() *mempool.Mempool  { return a.mempool }

// Head returns the latest committed height and block hash.
func (a *App) Head() (uint64, common.Hash) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.height, a.lastHash
}

// CheckTx admits a serialized signed message to the mempool.
func (a *App) CheckTx(raw []byte) error {
	sm, err := ParseSignedMessage(raw)
	if err != nil {
		a.metrics.RejectedMsgs.With("reason", "parse").Add(1)
		return err
	}
	if _, err := a.verifier.Verify(sm); err != nil {
		a.metrics.RejectedMsgs.With("reason", "signature").Add(1)
		return err
	}
	if _, err := sm.ToChainMessage(); err != nil {
		a.metrics.RejectedMsgs.With("reason", "parse").Add(1)
		return err
	}
	if cur := a.chain.Nonce(sm.From); sm.Nonce <= cur {
		a.metrics.RejectedMsgs.With("reason", "nonce").Add(1)
		return fmt.Errorf("%w: %d, account at %d", ErrStaleNonce, sm.Nonce, cur)
	}
	if err := a.mempool.PushRaw(raw); err != nil {
		a.metrics.RejectedMsgs.With("reason", "mempool").Add(1)
		return err
	}
	a.metrics.TxSizeBytes.Observe(float64(len(raw)))
	a.metrics.MempoolSize.Set(float64(a.mempool.Len()))
	return nil
}

func (a *App) PrepareProposal(req abci.RequestPrepareProposal) abci.ResponsePrepareProposal {
	txs := a.mempool.SelectForProposal(req.MaxTxBytes, req.MaxTxs)
	a.metrics.MempoolSize.Set(float64(a.mempool.Len()))
	return abci.ResponsePrepareProposal{Txs: txs}
}

// ProcessProposal accepts a block only if every message is well formed
// and correctly signed.
func (a *App) ProcessProposal(req abci.RequestProcessProposal) abci.ResponseProcessProposal {
	for i, raw := range req.Txs {
		sm, err := ParseSignedMessage(raw)
		if err == nil {
			_, err = a.verifier.Verify(sm)
		}
		if err != nil {
			return abci.ResponseProcessProposal{Reason: fmt.Sprintf("tx %d: %v", i, err)}
		}
	}
	return abci.ResponseProcessProposal{Accept: true}
}

// FinalizeBlock submits every message in order, runs the queue to
// quiescence, commits the state and persists the block. A message that
// fails admission is recorded in its result and skipped.
func (a *App) FinalizeBlock(req abci.RequestFinalizeBlock) (abci.ResponseFinalizeBlock, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if req.Height != a.height+1 {
		return abci.ResponseFinalizeBlock{}, fmt.Errorf("%w: %d, want %d", ErrWrongHeight, req.Height, a.height+1)
	}
	start := time.Now()

	results := make([]abci.TxResult, 0, len(req.Txs))
	for _, raw := range req.Txs {
		res, err := a.submit(raw)
		if err != nil {
			res.Error = err.Error()
			a.metrics.RejectedMsgs.With("reason", "admission").Add(1)
			a.log.Debug("message_skipped", zap.String("from", res.Sender.Hex()), zap.Uint64("nonce", res.Nonce), zap.Error(err))
		}
		results = append(results, res)
	}

	txs, err := a.chain.Run(context.Background())
	if err != nil {
		return abci.ResponseFinalizeBlock{}, fmt.Errorf("run block %d: %w", req.Height, err)
	}
	if err := a.chain.Commit(); err != nil {
		return abci.ResponseFinalizeBlock{}, fmt.Errorf("commit block %d: %w", req.Height, err)
	}

	b := storage.Block{
		Height:    req.Height,
		Parent:    a.lastHash,
		Time:      req.Timestamp,
		StateHash: a.chain.StateHash(),
		Messages:  req.Txs,
		Txs:       txs,
	}
	if err := a.blocks.SaveBlock(b); err != nil {
		return abci.ResponseFinalizeBlock{}, fmt.Errorf("save block %d: %w", req.Height, err)
	}
	hash := b.Hash()
	a.height, a.lastHash = b.Height, hash
	a.wal.Append(fmt.Sprintf("block height=%d hash=%s state=%s msgs=%d txs=%d", b.Height, hash.Hex(), b.StateHash.Hex(), len(b.Messages), len(b.Txs)))

	events := a.record(txs)
	a.metrics.Height.Set(float64(b.Height))
	a.metrics.BlockProcessingTime.Observe(time.Since(start).Seconds())

	// Quiet logging: only log non-empty blocks
	if len(req.Txs) > 0 {
		a.log.Info("block_committed",
			zap.Uint64("height", b.Height),
			zap.String("hash", hash.Hex()),
			zap.String("state", b.StateHash.Hex()),
			zap.Int("msgs", len(req.Txs)),
			zap.Int("txs", len(txs)))
	}
	if a.OnBlock != nil {
		a.OnBlock(b)
	}
	return abci.ResponseFinalizeBlock{Events: events, Results: results, AppHash: b.StateHash}, nil
}

func (a *App) submit(raw []byte) (abci.TxResult, error) {
	sm, err := ParseSignedMessage(raw)
	if err != nil {
		return abci.TxResult{}, err
	}
	res := abci.TxResult{Sender: sm.From, Nonce: sm.Nonce}
	if _, err := a.verifier.Verify(sm); err != nil {
		return res, err
	}
	msg, err := sm.ToChainMessage()
	if err != nil {
		return res, err
	}
	return res, a.chain.SubmitWithNonce(sm.From, sm.Nonce, msg)
}

// record updates metrics from the block's transactions and returns the
// block events.
func (a *App) record(txs []chain.Transaction) []string {
	events := []string{"commit"}
	for _, tx := range txs {
		outcome := "success"
		switch {
		case tx.Rejected != "":
			outcome = "rejected"
		case !tx.Success:
			outcome = "failed"
		}
		a.metrics.Transactions.With("outcome", outcome).Add(1)
		if name, ok := swap.OpName(tx.Op); ok {
			a.metrics.SwapOps.With("op", name).Add(1)
			events = append(events, name+":"+outcome)
		}
	}
	fees, _ := new(big.Float).SetInt(a.chain.Fees().ToBig()).Float64()
	a.metrics.FeesCollected.Set(fees)
	return events
}

// ProduceBlock cuts and executes the next block directly, without
// consensus. It reports false when the mempool is empty.
func (a *App) ProduceBlock() (storage.Block, bool, error) {
	if a.mempool.Len() == 0 {
		return storage.Block{}, false, nil
	}
	height, _ := a.Head()
	height++
	prep := a.PrepareProposal(abci.RequestPrepareProposal{Height: height, MaxTxs: a.maxBlockTxs})
	if len(prep.Txs) == 0 {
		return storage.Block{}, false, nil
	}
	if resp := a.ProcessProposal(abci.RequestProcessProposal{Height: height, Txs: prep.Txs}); !resp.Accept {
		// admission already verified each message; a failure here means
		// the mempool is corrupt
		return storage.Block{}, false, fmt.Errorf("own proposal rejected: %s", resp.Reason)
	}
	now := uint64(a.clock.Now().UnixMilli())
	if _, err := a.FinalizeBlock(abci.RequestFinalizeBlock{Height: height, Timestamp: now, Txs: prep.Txs}); err != nil {
		return storage.Block{}, false, err
	}
	b, _ := a.blocks.GetBlock(height)
	return b, true, nil
}
