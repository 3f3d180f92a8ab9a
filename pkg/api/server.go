package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/gorilla/mux"
	"github.com/holiman/uint256"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/uhyunpark/hyperswap/params"
	"github.com/uhyunpark/hyperswap/pkg/chain"
	"github.com/uhyunpark/hyperswap/pkg/jetton"
	"github.com/uhyunpark/hyperswap/pkg/node"
	"github.com/uhyunpark/hyperswap/pkg/storage"
	"github.com/uhyunpark/hyperswap/pkg/swap"
)

// maxMessageBytes bounds POST /messages bodies.
const maxMessageBytes = 64 << 10

type Option func(*Server)

func WithLogger(l *zap.Logger) Option { return func(s *Server) { s.log = l } }

// WithMetricsHandler serves h on /metrics.
func WithMetricsHandler(h http.Handler) Option { return func(s *Server) { s.metrics = h } }

// WithSubmissionLog journals every accepted submission to w.
func WithSubmissionLog(w storage.WAL) Option { return func(s *Server) { s.txLog = w } }

// Publisher relays accepted messages to other nodes.
type Publisher interface {
	PublishMessage(ctx context.Context, raw []byte) error
}

// WithPublisher gossips every accepted submission through p.
func WithPublisher(p Publisher) Option { return func(s *Server) { s.pub = p } }

// WithAllowedOrigins replaces the default CORS origins.
func WithAllowedOrigins(origins ...string) Option { return func(s *Server) { s.origins = origins } }

// Server handles REST API and WebSocket connections
type Server struct {
	app     *node.App
	genesis node.Genesis
	cfg     params.Config
	router  *mux.Router
	hub     *Hub
	txLog   storage.WAL
	metrics http.Handler
	pub     Publisher
	origins []string
	log     *zap.Logger
}

// NewServer creates a new API server
func NewServer(app *node.App, g node.Genesis, cfg params.Config, opts ...Option) *Server {
	s := &Server{
		app:     app,
		genesis: g,
		cfg:     cfg,
		router:  mux.NewRouter(),
		txLog:   storage.NewNopWAL(),
		origins: []string{"http://localhost:3000", "http://localhost:3001"},
		log:     zap.NewNop(),
	}
	for _, o := range opts {
		o(s)
	}
	s.hub = NewHub(s.log)
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	// API v1 routes
	api := s.router.PathPrefix("/api/v1").Subrouter()

	// Chain endpoints
	api.HandleFunc("/chain/status", s.handleGetChainStatus).Methods("GET")
	api.HandleFunc("/blocks/latest", s.handleGetLatestBlock).Methods("GET")
	api.HandleFunc("/blocks/{height:[0-9]+}", s.handleGetBlock).Methods("GET")

	// Swap endpoints
	api.HandleFunc("/master", s.handleGetMaster).Methods("GET")
	api.HandleFunc("/vaults/{owner}", s.handleGetVault).Methods("GET")
	api.HandleFunc("/vaults/{owner}/orders", s.handleGetOrders).Methods("GET")
	api.HandleFunc("/vaults/{owner}/orders/{id:[0-9]+}", s.handleGetOrder).Methods("GET")

	// Account endpoints
	api.HandleFunc("/accounts/{address}", s.handleGetAccount).Methods("GET")
	api.HandleFunc("/jettons/{root}/wallets/{owner}", s.handleGetJettonWallet).Methods("GET")

	// Message submission
	api.HandleFunc("/messages", s.handleSubmitMessage).Methods("POST")

	// WebSocket endpoint
	s.router.HandleFunc("/ws", s.handleWebSocket)

	// Health check
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")

	if s.metrics != nil {
		s.router.Handle("/metrics", s.metrics).Methods("GET")
	}
}

// Handler returns the router wrapped in CORS.
func (s *Server) Handler() http.Handler {
	c := cors.New(cors.Options{
		AllowedOrigins:   s.origins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
	})
	return c.Handler(s.router)
}

// Start serves until ctx is cancelled.
func (s *Server) Start(ctx context.Context, addr string) error {
	go s.hub.Run(ctx)

	srv := &http.Server{Addr: addr, Handler: s.Handler(), ReadHeaderTimeout: 10 * time.Second}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	s.log.Info("api_server_starting", zap.String("addr", addr))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// ==============================
// REST Handlers
// ==============================

func (s *Server) handleGetChainStatus(w http.ResponseWriter, r *http.Request) {
	height, hash := s.app.Head()
	c := s.app.Chain()
	respondJSON(w, ChainStatus{
		Height:      height,
		Hash:        hash,
		StateHash:   c.StateHash(),
		MempoolSize: s.app.Mempool().Len(),
		Fees:        dec(c.Fees()),
		Supply:      dec(c.Supply()),
	})
}

func (s *Server) handleGetLatestBlock(w http.ResponseWriter, r *http.Request) {
	head, ok := s.app.Blocks().Head()
	if !ok {
		respondError(w, http.StatusNotFound, "no blocks yet", "")
		return
	}
	s.respondBlock(w, head)
}

func (s *Server) handleGetBlock(w http.ResponseWriter, r *http.Request) {
	height, err := strconv.ParseUint(mux.Vars(r)["height"], 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid height", err.Error())
		return
	}
	s.respondBlock(w, height)
}

func (s *Server) respondBlock(w http.ResponseWriter, height uint64) {
	b, ok := s.app.Blocks().GetBlock(height)
	if !ok {
		respondError(w, http.StatusNotFound, "block not found", fmt.Sprintf("height %d", height))
		return
	}
	respondJSON(w, BlockInfo{Hash: b.Hash(), Block: b})
}

func (s *Server) handleGetMaster(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, MasterInfo{
		Address:             s.genesis.Master,
		Admin:               s.genesis.Admin,
		Jettons:             s.genesis.Jettons,
		GasFee:              dec(s.app.Chain().GasFee()),
		JettonTransferValue: strconv.FormatUint(s.cfg.Swap.JettonTransferValue, 10),
		NativeCommission:    strconv.FormatUint(s.cfg.Swap.NativeCommission, 10),
	})
}

func (s *Server) vault(w http.ResponseWriter, r *http.Request) (VaultInfo, bool) {
	owner, ok := addressVar(w, r, "owner")
	if !ok {
		return VaultInfo{}, false
	}
	addr := swap.VaultAddress(s.genesis.Master, owner)
	info := VaultInfo{Owner: owner, Address: addr, Balance: "0", NativeEscrow: "0", Orders: []swap.Order{}}
	if acc, ok := s.app.Chain().Account(addr); ok {
		info.Balance = dec(acc.Balance)
	}
	err := s.app.Chain().View(addr, func(ct chain.Contract) error {
		v, ok := ct.(*swap.Vault)
		if !ok {
			return fmt.Errorf("%s is not a vault", addr.Hex())
		}
		info.Deployed = true
		info.NativeEscrow = dec(v.NativeEscrow())
		info.Orders = v.Orders()
		return nil
	})
	if err != nil && !errors.Is(err, chain.ErrNoAccount) && !errors.Is(err, chain.ErrNotContract) {
		respondError(w, http.StatusInternalServerError, "failed to read vault", err.Error())
		return VaultInfo{}, false
	}
	return info, true
}

func (s *Server) handleGetVault(w http.ResponseWriter, r *http.Request) {
	if info, ok := s.vault(w, r); ok {
		respondJSON(w, info)
	}
}

func (s *Server) handleGetOrders(w http.ResponseWriter, r *http.Request) {
	if info, ok := s.vault(w, r); ok {
		respondJSON(w, info.Orders)
	}
}

func (s *Server) handleGetOrder(w http.ResponseWriter, r *http.Request) {
	info, ok := s.vault(w, r)
	if !ok {
		return
	}
	id, err := strconv.ParseUint(mux.Vars(r)["id"], 10, 32)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid order id", err.Error())
		return
	}
	for _, o := range info.Orders {
		if o.ID == uint32(id) {
			respondJSON(w, o)
			return
		}
	}
	respondError(w, http.StatusNotFound, "order not found", fmt.Sprintf("order %d", id))
}

func (s *Server) handleGetAccount(w http.ResponseWriter, r *http.Request) {
	addr, ok := addressVar(w, r, "address")
	if !ok {
		return
	}
	info := AccountInfo{Address: addr, Balance: "0"}
	if acc, ok := s.app.Chain().Account(addr); ok {
		info.Exists = true
		info.Balance = dec(acc.Balance)
		info.Nonce = acc.Nonce
		info.Code = acc.Code
	}
	respondJSON(w, info)
}

func (s *Server) handleGetJettonWallet(w http.ResponseWriter, r *http.Request) {
	root, ok := addressVar(w, r, "root")
	if !ok {
		return
	}
	owner, ok := addressVar(w, r, "owner")
	if !ok {
		return
	}
	wallet := jetton.WalletAddress(root, owner)
	balance := new(uint256.Int)
	_ = s.app.Chain().View(wallet, func(ct chain.Contract) error {
		if jw, ok := ct.(*jetton.Wallet); ok {
			balance = jw.Balance.Clone()
		}
		return nil
	})
	respondJSON(w, JettonWalletInfo{Root: root, Owner: owner, Wallet: wallet, Balance: dec(balance)})
}

func (s *Server) handleSubmitMessage(w http.ResponseWriter, r *http.Request) {
	// Read signed message body
	bodyBytes, err := io.ReadAll(io.LimitReader(r.Body, maxMessageBytes+1))
	if err != nil {
		respondError(w, http.StatusBadRequest, "failed to read body", err.Error())
		return
	}
	if len(bodyBytes) > maxMessageBytes {
		respondError(w, http.StatusRequestEntityTooLarge, "message too large", "")
		return
	}

	if err := s.app.CheckTx(bodyBytes); err != nil {
		respondError(w, http.StatusBadRequest, "message rejected", err.Error())
		return
	}

	hash := crypto.Keccak256Hash(bodyBytes)
	s.log.Debug("message_submitted", zap.String("hash", hash.Hex()), zap.Int("bytes", len(bodyBytes)))
	s.logSubmission(hash, bodyBytes)
	if s.pub != nil {
		if err := s.pub.PublishMessage(r.Context(), bodyBytes); err != nil {
			s.log.Warn("message_gossip_failed", zap.String("hash", hash.Hex()), zap.Error(err))
		}
	}

	respondJSON(w, SubmitMessageResponse{Status: "accepted", Hash: hash})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, map[string]string{"status": "ok"})
}

// ==============================
// Broadcast Methods (called after every block)
// ==============================

// BroadcastBlock pushes a block summary to "blocks" subscribers and each
// transaction to the subscribers of its sender and recipient.
func (s *Server) BroadcastBlock(b storage.Block) {
	s.hub.BroadcastToChannel("blocks", BlockUpdate{
		Type:      "block",
		Height:    b.Height,
		Hash:      b.Hash(),
		StateHash: b.StateHash,
		Time:      b.Time,
		Messages:  len(b.Messages),
		Txs:       len(b.Txs),
	})
	for _, tx := range b.Txs {
		update := TxUpdate{Type: "tx", Height: b.Height, Tx: tx}
		s.hub.BroadcastToChannel(accountChannel(tx.To), update)
		if tx.From != tx.To {
			s.hub.BroadcastToChannel(accountChannel(tx.From), update)
		}
	}
}

// ==============================
// Helper Functions
// ==============================

func addressVar(w http.ResponseWriter, r *http.Request, name string) (common.Address, bool) {
	v := mux.Vars(r)[name]
	if !common.IsHexAddress(v) {
		respondError(w, http.StatusBadRequest, "invalid address", v)
		return common.Address{}, false
	}
	return common.HexToAddress(v), true
}

func respondJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, error string, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(ErrorResponse{
		Error:   error,
		Message: message,
	})
}

// logSubmission journals an accepted message, one JSON object per line
func (s *Server) logSubmission(hash common.Hash, raw []byte) {
	entry := map[string]interface{}{
		"timestamp": time.Now().Format(time.RFC3339),
		"event":     "MESSAGE_SUBMIT",
		"hash":      hash.Hex(),
		"message":   json.RawMessage(raw),
	}
	jsonData, err := json.Marshal(entry)
	if err != nil {
		s.log.Warn("submission_log_marshal_failed", zap.Error(err))
		return
	}
	s.txLog.Append(string(jsonData))
}
