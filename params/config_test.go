package params

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadFromEnvOverrides(t *testing.T) {
	dir := t.TempDir()
	envPath := filepath.Join(dir, ".env")
	content := "CHAIN_GAS_FEE=20000000\nSWAP_NATIVE_COMMISSION=5\nNODE_MIN_BLOCK_TIME_MS=50\nGENESIS_BALANCES=0xaa=1, 0xbb=2\nCONSENSUS_PPC_MS=30\nCONSENSUS_VALIDATORS=peerA,peerB\n"
	if err := os.WriteFile(envPath, []byte(content), 0o644); err != nil {
		t.Fatalf("write env: %v", err)
	}
	// godotenv never overrides variables that are already set.
	for _, k := range []string{"CHAIN_GAS_FEE", "SWAP_NATIVE_COMMISSION", "NODE_MIN_BLOCK_TIME_MS", "GENESIS_BALANCES", "CONSENSUS_PPC_MS", "CONSENSUS_VALIDATORS"} {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}

	cfg := LoadFromEnv(envPath)

	if cfg.Chain.GasFee != 20_000_000 {
		t.Errorf("GasFee = %d, want 20000000", cfg.Chain.GasFee)
	}
	if cfg.Swap.NativeCommission != 5 {
		t.Errorf("NativeCommission = %d, want 5", cfg.Swap.NativeCommission)
	}
	if cfg.Node.MinBlockTime != 50*time.Millisecond {
		t.Errorf("MinBlockTime = %v, want 50ms", cfg.Node.MinBlockTime)
	}
	if len(cfg.Node.Genesis) != 2 || cfg.Node.Genesis[1] != "0xbb=2" {
		t.Errorf("Genesis = %v", cfg.Node.Genesis)
	}
	if cfg.Consensus.Ppc != 30*time.Millisecond || cfg.Consensus.Delta != Default().Consensus.Delta {
		t.Errorf("Ppc/Delta = %v/%v", cfg.Consensus.Ppc, cfg.Consensus.Delta)
	}
	if len(cfg.Consensus.Validators) != 2 || cfg.Consensus.Validators[0] != "peerA" {
		t.Errorf("Validators = %v", cfg.Consensus.Validators)
	}
	if cfg.Swap.JettonTransferValue != Default().Swap.JettonTransferValue {
		t.Errorf("JettonTransferValue should keep its default")
	}
}
