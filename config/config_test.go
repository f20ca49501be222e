package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/log"
	"github.com/ethereum/go-ethereum/params"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vulcanize/go-evm-tracer/config"
)

func load(t *testing.T, args ...string) (config.Config, error) {
	t.Helper()
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	config.BuildFlagSet(fs)
	require.NoError(t, fs.Parse(args))
	v, err := config.NewViper(fs)
	require.NoError(t, err)
	return config.Load(v)
}

func TestDefaults(t *testing.T) {
	cfg, err := load(t)
	require.NoError(t, err)
	assert.Equal(t, config.Default(), cfg)
	assert.Nil(t, cfg.BlockNumber)
	assert.Same(t, params.MainnetChainConfig, cfg.ChainConfig())
}

func TestFlags(t *testing.T) {
	cfg, err := load(t, "--block-number=17000000", "--workers=4", "--verbosity=5", "--chain-id=5")
	require.NoError(t, err)
	require.NotNil(t, cfg.BlockNumber)
	assert.Equal(t, uint64(17_000_000), *cfg.BlockNumber)
	assert.Equal(t, 4, cfg.Workers)
	assert.Equal(t, log.LvlTrace, cfg.Verbosity)
	assert.Same(t, params.GoerliChainConfig, cfg.ChainConfig())

	ecfg := cfg.EngineConfig()
	assert.Equal(t, uint64(17_000_000), ecfg.Block.Number)
	assert.Equal(t, cfg.GasLimit, ecfg.GasLimit)
}

func TestEnvironment(t *testing.T) {
	t.Setenv("EVMTRACE_RPC_URL", "http://node:8545")
	t.Setenv("EVMTRACE_CACHE_SIZE", "128")
	cfg, err := load(t)
	require.NoError(t, err)
	assert.Equal(t, "http://node:8545", cfg.RPCURL)
	assert.Equal(t, 128, cfg.CacheSize)
}

func TestConfigFile(t *testing.T) {
	file := filepath.Join(t.TempDir(), "evmtrace.yaml")
	require.NoError(t, os.WriteFile(file, []byte("gas-limit: 1000000\nworkers: 2\n"), 0o600))
	cfg, err := load(t, "--config="+file)
	require.NoError(t, err)
	assert.Equal(t, uint64(1_000_000), cfg.GasLimit)
	assert.Equal(t, 2, cfg.Workers)
}

func TestUnknownChain(t *testing.T) {
	cfg, err := load(t, "--chain-id=31337")
	require.NoError(t, err)
	cc := cfg.ChainConfig()
	assert.Equal(t, uint64(31337), cc.ChainID.Uint64())
	assert.Equal(t, uint64(1), params.MainnetChainConfig.ChainID.Uint64())
}

func TestValidate(t *testing.T) {
	_, err := load(t, "--workers=0")
	assert.Error(t, err)
	_, err = load(t, "--verbosity=9")
	assert.Error(t, err)
	_, err = load(t, "--rpc-url=")
	assert.Error(t, err)
}
