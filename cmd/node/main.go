package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/uhyunpark/hyperswap/params"
	"github.com/uhyunpark/hyperswap/pkg/api"
	"github.com/uhyunpark/hyperswap/pkg/chain"
	"github.com/uhyunpark/hyperswap/pkg/consensus"
	"github.com/uhyunpark/hyperswap/pkg/mempool"
	"github.com/uhyunpark/hyperswap/pkg/metrics"
	"github.com/uhyunpark/hyperswap/pkg/node"
	"github.com/uhyunpark/hyperswap/pkg/p2p"
	"github.com/uhyunpark/hyperswap/pkg/storage"
	"github.com/uhyunpark/hyperswap/pkg/util"
)

func main() {
	envPath := flag.String("env", "", "path to .env file (default: .env in the working directory)")
	flag.Parse()

	// Load config from .env file and environment variables
	cfg := params.LoadFromEnv(*envPath)

	// Setup logging (console, plus a file when NODE_LOG_FILE is set)
	var logger *zap.Logger
	var err error
	if cfg.Node.LogFile != "" {
		logger, err = util.NewLoggerWithFile(cfg.Node.LogFile)
	} else {
		logger, err = util.NewLogger()
	}
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()
	sugar := logger.Sugar()
	sugar.Infow("logger_initialized", "log_file", cfg.Node.LogFile)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ---- Storage ----
	var (
		accounts chain.AccountStore
		blocks   storage.BlockStore
		wal      storage.WAL = storage.NewNopWAL()
		subLog   storage.WAL = storage.NewNopWAL()
	)
	if dir := cfg.Node.DataDir; dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			sugar.Fatalw("data_dir_failed", "dir", dir, "err", err)
		}
		db, err := storage.NewPebbleStore(filepath.Join(dir, "db"))
		if err != nil {
			sugar.Fatalw("pebble_open_failed", "err", err)
		}
		defer db.Close()
		accounts, blocks = db, db

		fw, err := storage.NewFileWAL(filepath.Join(dir, "blocks.wal"))
		if err != nil {
			sugar.Fatalw("wal_open_failed", "err", err)
		}
		defer fw.Close()
		wal = fw

		sl, err := storage.NewFileWAL(filepath.Join(dir, "submissions.log"))
		if err != nil {
			sugar.Fatalw("submission_log_open_failed", "err", err)
		}
		defer sl.Close()
		subLog = sl
		sugar.Infow("storage_ready", "backend", "pebble", "dir", dir)
	} else {
		accounts, blocks = storage.NewInMemoryAccountStore(), storage.NewInMemoryBlockStore()
		sugar.Info("storage_ready backend=memory (state is lost on exit)")
	}

	// ---- Runtime + genesis ----
	c, genesis, err := node.NewChain(cfg, accounts, logger.Named("chain"))
	if err != nil {
		sugar.Fatalw("genesis_failed", "err", err)
	}
	sugar.Infow("genesis_ready", "master", genesis.Master.Hex(), "admin", genesis.Admin.Hex(), "jettons", len(genesis.Jettons))

	// ---- App ----
	m := metrics.PrometheusMetrics("hyperswap")
	app, err := node.NewApp(c, blocks, node.NewVerifier(node.Domain(cfg)),
		node.WithLogger(logger.Named("app")),
		node.WithMetrics(m),
		node.WithWAL(wal),
		node.WithMempool(mempool.NewMempool(10*cfg.Node.MaxBlockTxs)),
		node.WithMaxBlockTxs(cfg.Node.MaxBlockTxs),
	)
	if err != nil {
		sugar.Fatalw("app_init_failed", "err", err)
	}
	sugar.Infow("block_time_config", "min_block_time_ms", cfg.Node.MinBlockTime.Milliseconds())

	// ---- P2P (optional) ----
	apiOpts := []api.Option{
		api.WithLogger(logger.Named("api")),
		api.WithMetricsHandler(promhttp.Handler()),
		api.WithSubmissionLog(subLog),
	}
	var net *p2p.Libp2pNet
	if cfg.Node.EnableP2P {
		net, err = p2p.NewLibp2pNet(ctx, p2p.Libp2pConfig{
			ListenAddr: cfg.Node.ListenAddr,
			Bootstrap:  cfg.Node.Bootstrap,
			Blocks:     blocks,
			Logger:     sugar.Named("p2p"),
		})
		if err != nil {
			sugar.Fatalw("libp2p_init_failed", "err", err)
		}
		defer net.Close()
		net.SetGossipHandlers(p2p.GossipHandlers{
			OnMessage: func(_ context.Context, raw []byte) {
				if err := app.CheckTx(raw); err != nil {
					sugar.Debugw("gossip_message_rejected", "err", err)
				}
			},
			OnBlock: func(_ context.Context, from peer.ID, a p2p.BlockAnnounce) {
				height, hash := app.Head()
				if a.Height == height && a.Hash != hash {
					sugar.Warnw("peer_block_diverged", "peer", from.String(), "height", a.Height, "ours", hash.Hex(), "theirs", a.Hash.Hex())
				}
			},
		})
		apiOpts = append(apiOpts, api.WithPublisher(net))
		sugar.Infow("p2p_enabled", "addrs", net.Addrs())
	}

	// ---- API Server ----
	apiServer := api.NewServer(app, genesis, cfg, apiOpts...)
	go func() {
		if err := apiServer.Start(ctx, cfg.Node.APIAddr); err != nil {
			sugar.Fatalw("api_server_failed", "err", err)
		}
	}()

	// Hook API server and gossip to block commits
	app.OnBlock = func(b storage.Block) {
		apiServer.BroadcastBlock(b)
		if net != nil {
			if err := net.AnnounceBlock(ctx, b); err != nil {
				sugar.Debugw("block_announce_failed", "height", b.Height, "err", err)
			}
		}
	}

	// ---- Consensus ----
	// Without p2p this node is the lone validator and votes in process.
	var (
		cnet consensus.Network
		self consensus.NodeID
	)
	if net != nil {
		cnet, self = net, net.NodeID()
	} else {
		if len(cfg.Consensus.Validators) > 1 {
			sugar.Fatalw("validators_need_p2p", "validators", len(cfg.Consensus.Validators))
		}
		self = consensus.NodeID("local")
		cnet = consensus.NewLocalNet(self)
	}
	engine := node.NewConsensus(app, cfg, cnet, self, sugar.Named("consensus"))
	engine.OnBlockCommit = func(b consensus.Block) {
		sugar.Debugw("consensus_commit", "height", b.Height, "view", b.View, "apphash", b.AppHash.String())
	}
	sugar.Infow("consensus_starting",
		"self", self,
		"validators", engine.State.Q.N,
		"quorum_need", engine.State.Q.Need())

	go func() {
		if err := engine.Run(ctx); err != nil && ctx.Err() == nil {
			sugar.Fatalw("engine_failed", "err", err)
		}
	}()

	// Progress logging loop
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()
	var lastLogged uint64
	for {
		select {
		case <-ctx.Done():
			sugar.Info("node_stopping")
			return
		case <-ticker.C:
			height, hash := app.Head()
			if height != lastLogged {
				sugar.Infow("chain_progress",
					"height", height,
					"committed", engine.CommittedHeight(),
					"hash", hash.Hex(),
					"mempool", app.Mempool().Len(),
					"blocks_since_last_log", height-lastLogged)
				lastLogged = height
			}
		}
	}
}
