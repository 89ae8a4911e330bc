package main

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"epochvault/config"
)

const testGenesis = `chain_id: 9
tokens:
  - symbol: SHARE
    decimals: 6
  - symbol: USDC
    name: USD Coin
    decimals: 6
module_alloc:
  vault:
    SHARE: "1000000"
`

func TestResolveGenesisPathPrecedence(t *testing.T) {
	env := func(v string) func(string) (string, bool) {
		return func(key string) (string, bool) {
			if key == genesisPathEnv && v != "" {
				return v, true
			}
			return "", false
		}
	}
	require.Equal(t, "/flag.yaml", resolveGenesisPath("/flag.yaml", "cfg.yaml", "/etc/vault/config.toml", env("/env.yaml")))
	require.Equal(t, "/env.yaml", resolveGenesisPath("", "cfg.yaml", "/etc/vault/config.toml", env("/env.yaml")))
	require.Equal(t, "/etc/vault/cfg.yaml", resolveGenesisPath("", "cfg.yaml", "/etc/vault/config.toml", env("")))
	require.Equal(t, "/abs/cfg.yaml", resolveGenesisPath("", "/abs/cfg.yaml", "config.toml", nil))
	require.Equal(t, "", resolveGenesisPath("", "", "config.toml", nil))
}

func TestOpenNodeAppliesGenesisOnce(t *testing.T) {
	dir := t.TempDir()
	genesisPath := filepath.Join(dir, "genesis.yaml")
	require.NoError(t, os.WriteFile(genesisPath, []byte(testGenesis), 0o600))

	cfg := config.Default()
	cfg.ChainID = 9
	cfg.DataDir = filepath.Join(dir, "data")
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	n, err := openNode(cfg, genesisPath, logger)
	require.NoError(t, err)

	body := []byte(`{"jsonrpc":"2.0","method":"token_getBalance","params":["SHARE","` +
		mustVaultAddress(t, n) + `"],"id":1}`)
	rec := httptest.NewRecorder()
	n.server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", bytes.NewReader(body)))
	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Result struct {
			Balance string `json:"balance"`
		} `json:"result"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, "1000000", resp.Result.Balance)
	n.Close()

	// A second start reuses the stored genesis even without a file.
	n, err = openNode(cfg, "", logger)
	require.NoError(t, err)
	n.Close()
}

func TestOpenNodeRequiresGenesisOnEmptyStore(t *testing.T) {
	cfg := config.Default()
	cfg.DataDir = t.TempDir()
	cfg.Indexer.Enabled = false
	_, err := openNode(cfg, "", slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err == nil {
		t.Fatalf("expected an error for an empty store without genesis")
	}
}

func mustVaultAddress(t *testing.T, n *node) string {
	t.Helper()
	view, err := n.host.Balance("SHARE", n.host.VaultAddress())
	require.NoError(t, err)
	return view.Address
}
