package config

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/log"
	"github.com/ethereum/go-ethereum/params"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/vulcanize/go-evm-tracer/backend"
	"github.com/vulcanize/go-evm-tracer/engine"
)

// Keys shared by flags, environment variables and config files
const (
	RPCURLKey      = "rpc-url"
	BlockNumberKey = "block-number"
	ChainIDKey     = "chain-id"
	GasLimitKey    = "gas-limit"
	CacheSizeKey   = "cache-size"
	WorkersKey     = "workers"
	VerbosityKey   = "verbosity"
	ConfigFileKey  = "config"

	envPrefix = "EVMTRACE"
)

// Config is the runtime configuration of the tracer
type Config struct {
	RPCURL string
	// BlockNumber pins state reads; nil follows the latest block at startup
	BlockNumber *uint64
	ChainID     uint64
	GasLimit    uint64
	CacheSize   int
	Workers     int
	Verbosity   log.Lvl
}

// Default returns mainnet parameters
func Default() Config {
	return Config{
		RPCURL:    "http://127.0.0.1:8545",
		ChainID:   params.MainnetChainConfig.ChainID.Uint64(),
		GasLimit:  engine.DefaultGasLimit,
		CacheSize: backend.DefaultCacheSize,
		Workers:   1,
		Verbosity: log.LvlInfo,
	}
}

// BuildFlagSet declares every configuration flag
func BuildFlagSet(fs *pflag.FlagSet) {
	def := Default()
	fs.String(RPCURLKey, def.RPCURL, "JSON-RPC endpoint state is read from")
	fs.Int64(BlockNumberKey, -1, "Block to read state at, negative for the latest block")
	fs.Uint64(ChainIDKey, def.ChainID, "Chain id selecting the fork rules")
	fs.Uint64(GasLimitKey, def.GasLimit, "Gas limit of transactions that do not carry one")
	fs.Int(CacheSizeKey, def.CacheSize, "Entries per backend cache")
	fs.Int(WorkersKey, def.Workers, "Engines executing independent batches in parallel")
	fs.Int(VerbosityKey, int(def.Verbosity), "Logging verbosity: 0=crit, 1=error, 2=warn, 3=info, 4=debug, 5=trace")
	fs.String(ConfigFileKey, "", "Optional configuration file")
}

// NewViper binds the flag set and EVMTRACE_* environment variables, then reads the
// config file if one was named
func NewViper(fs *pflag.FlagSet) (*viper.Viper, error) {
	v := viper.New()
	if err := v.BindPFlags(fs); err != nil {
		return nil, err
	}
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if file := v.GetString(ConfigFileKey); file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", file, err)
		}
	}
	return v, nil
}

// Load extracts and validates the configuration
func Load(v *viper.Viper) (Config, error) {
	def := Default()
	v.SetDefault(RPCURLKey, def.RPCURL)
	v.SetDefault(BlockNumberKey, -1)
	v.SetDefault(ChainIDKey, def.ChainID)
	v.SetDefault(GasLimitKey, def.GasLimit)
	v.SetDefault(CacheSizeKey, def.CacheSize)
	v.SetDefault(WorkersKey, def.Workers)
	v.SetDefault(VerbosityKey, int(def.Verbosity))

	cfg := Config{
		RPCURL:    v.GetString(RPCURLKey),
		ChainID:   v.GetUint64(ChainIDKey),
		GasLimit:  v.GetUint64(GasLimitKey),
		CacheSize: v.GetInt(CacheSizeKey),
		Workers:   v.GetInt(WorkersKey),
		Verbosity: log.Lvl(v.GetInt(VerbosityKey)),
	}
	if n := v.GetInt64(BlockNumberKey); n >= 0 {
		block := uint64(n)
		cfg.BlockNumber = &block
	}
	return cfg, cfg.Validate()
}

// Validate checks the configuration for values the engine cannot run with
func (c Config) Validate() error {
	switch {
	case c.RPCURL == "":
		return fmt.Errorf("%s is required", RPCURLKey)
	case c.ChainID == 0:
		return fmt.Errorf("%s must be positive", ChainIDKey)
	case c.GasLimit == 0:
		return fmt.Errorf("%s must be positive", GasLimitKey)
	case c.CacheSize <= 0:
		return fmt.Errorf("%s must be positive, got %d", CacheSizeKey, c.CacheSize)
	case c.Workers <= 0:
		return fmt.Errorf("%s must be positive, got %d", WorkersKey, c.Workers)
	case c.Verbosity < log.LvlCrit || c.Verbosity > log.LvlTrace:
		return fmt.Errorf("%s out of range: %d", VerbosityKey, c.Verbosity)
	}
	return nil
}

// ChainConfig returns the fork rules of the configured chain. Unknown chains run
// with mainnet rules under their own chain id.
func (c Config) ChainConfig() *params.ChainConfig {
	for _, known := range []*params.ChainConfig{
		params.MainnetChainConfig,
		params.GoerliChainConfig,
		params.SepoliaChainConfig,
	} {
		if known.ChainID.Uint64() == c.ChainID {
			return known
		}
	}
	cfg := *params.MainnetChainConfig
	cfg.ChainID = new(big.Int).SetUint64(c.ChainID)
	return &cfg
}

// EngineConfig converts the configuration into engine parameters
func (c Config) EngineConfig() engine.Config {
	cfg := engine.DefaultConfig()
	cfg.ChainConfig = c.ChainConfig()
	cfg.GasLimit = c.GasLimit
	cfg.Block.GasLimit = c.GasLimit
	if c.BlockNumber != nil {
		cfg.Block.Number = *c.BlockNumber
	}
	return cfg
}
