package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sample = `
server:
  addr: ":8080"
db:
  dsn: "postgres://localhost/bookings"
auth:
  jwt_secret: "s3cret"
catalog:
  base_url: "http://catalog:8080"
  timeout_ms: 1500
reclamations:
  base_url: "http://reclamations:8080"
chain:
  chain_id: "11155111"
  symbol: "ETH"
  rpc_endpoints: ["http://rpc-a", "http://rpc-b"]
pricing:
  rate: "35000"
`

func TestParseAppliesDefaults(t *testing.T) {
	cfg, err := Parse([]byte(sample))
	require.NoError(t, err)

	assert.Equal(t, "evm", cfg.Chain.AddressFormat)
	assert.Equal(t, 18, cfg.Chain.Decimals)
	assert.Equal(t, 12, cfg.Chain.ConfirmDepth)
	assert.Equal(t, "MAD", cfg.Pricing.FiatCurrency)
	assert.Equal(t, 1500*time.Millisecond, cfg.Catalog.Timeout())
	assert.Equal(t, 3, cfg.Reclamation.Retries)
	assert.Equal(t, []string{"http://rpc-a", "http://rpc-b"}, cfg.Chain.RPCEndpoints)
}

func TestParseEnvOverrides(t *testing.T) {
	t.Setenv("CONFIRM_DEPTH", "3")
	t.Setenv("RPC_ENDPOINTS", " http://x , ,http://y")
	t.Setenv("CONVERSION_RATE", "29079")

	cfg, err := Parse([]byte(sample))
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.Chain.ConfirmDepth)
	assert.Equal(t, []string{"http://x", "http://y"}, cfg.Chain.RPCEndpoints)
	assert.Equal(t, "29079", cfg.Pricing.Rate)
}

func TestParseRejectsIncompleteConfig(t *testing.T) {
	_, err := Parse([]byte("server:\n  addr: \":8080\"\n"))
	assert.Error(t, err)

	bech32 := strings.Replace(sample, "chain:\n", "chain:\n  address_format: bech32\n", 1)
	_, err = Parse([]byte(bech32))
	assert.EqualError(t, err, "chain.bech32_prefix is required for bech32 addresses")
}

func TestLoadFromConfigPath(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sample), 0o600))
	t.Setenv("CONFIG_PATH", path)

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.Server.Addr)
}
