package params

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Coin is the number of nano units in one whole native coin.
const Coin uint64 = 1_000_000_000

type Chain struct {
	// GasFee is charged from the inbound value of every message delivered
	// to a contract.
	GasFee uint64
	// MaxSteps bounds the number of deliveries in one run of the queue.
	MaxSteps int
}

type Swap struct {
	// JettonTransferValue is attached to every jetton transfer the protocol
	// initiates. It pays both wallet hops; the rest comes back as excess.
	JettonTransferValue uint64
	// NativeCommission is retained by the vault on every native payment.
	NativeCommission uint64
}

type Consensus struct {
	// Validators lists the libp2p peer IDs of the validator set in leader
	// order. Empty runs this node as the only validator.
	Validators []string
	Ppc        time.Duration // follower wait for the leader's proposal
	Delta      time.Duration // network delay bound
	Verbose    bool
}

type Node struct {
	// MinBlockTime paces block production. The leader only proposes when
	// the mempool is non-empty, so an idle devnet does not spam the log.
	MinBlockTime time.Duration
	MaxBlockTxs  int

	DataDir string // empty means in-memory stores
	LogFile string
	APIAddr string

	EnableP2P  bool
	ListenAddr string
	Bootstrap  []string

	// Genesis is a list of "0xaddr=amount" native allocations in nano units.
	Genesis []string
	// MasterAdmin seeds the MasterOrder address.
	MasterAdmin string
	// DemoJettons deploys one minter per "SYMBOL" owned by MasterAdmin.
	DemoJettons []string
}

type Domain struct {
	Name    string
	Version string
	ChainID int64
}

type Config struct {
	Chain     Chain
	Swap      Swap
	Consensus Consensus
	Node      Node
	Domain    Domain
}

func Default() Config {
	return Config{
		Chain: Chain{
			GasFee:   10_000_000, // 0.01
			MaxSteps: 100_000,
		},
		Swap: Swap{
			JettonTransferValue: 50_000_000, // 0.05
			NativeCommission:    10_000_000, // 0.01
		},
		Consensus: Consensus{
			Ppc:   150 * time.Millisecond,
			Delta: 50 * time.Millisecond,
		},
		Node: Node{
			MinBlockTime: 200 * time.Millisecond,
			MaxBlockTxs:  1000,
			APIAddr:      ":8080",
			ListenAddr:   "/ip4/0.0.0.0/tcp/9000",
			MasterAdmin:  "0x0000000000000000000000000000000000000001",
		},
		Domain: Domain{
			Name:    "HyperSwap",
			Version: "1",
			ChainID: 1337,
		},
	}
}

// LoadFromEnv loads configuration from .env file (if exists) and environment variables
// Priority: ENV > .env file > defaults
func LoadFromEnv(envPath string) Config {
	cfg := Default()

	if envPath != "" {
		_ = godotenv.Load(envPath)
	} else {
		_ = godotenv.Load()
	}

	if v := os.Getenv("CHAIN_GAS_FEE"); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			cfg.Chain.GasFee = n
		}
	}
	if v := os.Getenv("CHAIN_MAX_STEPS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Chain.MaxSteps = n
		}
	}

	if v := os.Getenv("SWAP_JETTON_TRANSFER_VALUE"); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			cfg.Swap.JettonTransferValue = n
		}
	}
	if v := os.Getenv("SWAP_NATIVE_COMMISSION"); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			cfg.Swap.NativeCommission = n
		}
	}

	if ppc := os.Getenv("CONSENSUS_PPC_MS"); ppc != "" {
		if ms, err := strconv.Atoi(ppc); err == nil {
			cfg.Consensus.Ppc = time.Duration(ms) * time.Millisecond
		}
	}
	if delta := os.Getenv("CONSENSUS_DELTA_MS"); delta != "" {
		if ms, err := strconv.Atoi(delta); err == nil {
			cfg.Consensus.Delta = time.Duration(ms) * time.Millisecond
		}
	}
	cfg.Consensus.Validators = splitList(os.Getenv("CONSENSUS_VALIDATORS"), cfg.Consensus.Validators)
	if v := os.Getenv("VERBOSE"); v != "" {
		cfg.Consensus.Verbose = v == "true"
	}

	if minBlock := os.Getenv("NODE_MIN_BLOCK_TIME_MS"); minBlock != "" {
		if ms, err := strconv.Atoi(minBlock); err == nil {
			cfg.Node.MinBlockTime = time.Duration(ms) * time.Millisecond
		}
	}
	if v := os.Getenv("NODE_MAX_BLOCK_TXS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Node.MaxBlockTxs = n
		}
	}
	cfg.Node.DataDir = getEnv("NODE_DATA_DIR", cfg.Node.DataDir)
	cfg.Node.LogFile = getEnv("NODE_LOG_FILE", cfg.Node.LogFile)
	cfg.Node.APIAddr = getEnv("API_ADDR", cfg.Node.APIAddr)
	cfg.Node.ListenAddr = getEnv("P2P_LISTEN_ADDR", cfg.Node.ListenAddr)
	cfg.Node.MasterAdmin = getEnv("MASTER_ADMIN", cfg.Node.MasterAdmin)
	if v := os.Getenv("P2P_ENABLED"); v != "" {
		cfg.Node.EnableP2P = v == "true"
	}
	cfg.Node.Bootstrap = splitList(os.Getenv("P2P_BOOTSTRAP"), cfg.Node.Bootstrap)
	cfg.Node.Genesis = splitList(os.Getenv("GENESIS_BALANCES"), cfg.Node.Genesis)
	cfg.Node.DemoJettons = splitList(os.Getenv("DEMO_JETTONS"), cfg.Node.DemoJettons)

	cfg.Domain.Name = getEnv("EIP712_NAME", cfg.Domain.Name)
	if v := os.Getenv("EIP712_CHAIN_ID"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.Domain.ChainID = n
		}
	}

	return cfg
}

// getEnv returns environment variable value or default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// splitList parses a comma-separated list, dropping blanks.
func splitList(v string, def []string) []string {
	if v == "" {
		return def
	}
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
