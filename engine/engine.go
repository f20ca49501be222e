package engine

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/core/vm"
	"github.com/ethereum/go-ethereum/log"
	"github.com/ethereum/go-ethereum/params"

	"github.com/vulcanize/go-evm-tracer/backend"
	"github.com/vulcanize/go-evm-tracer/forkstate"
	"github.com/vulcanize/go-evm-tracer/tracer"
)

// DefaultGasLimit is the per transaction gas limit used when none is given
const DefaultGasLimit = 30_000_000

// BlockEnv is the block context transactions execute in
type BlockEnv struct {
	Number    uint64
	Timestamp uint64
	BaseFee   *big.Int
	GasLimit  uint64
	Coinbase  common.Address
}

// Config holds the engine parameters
type Config struct {
	ChainConfig *params.ChainConfig
	Block       BlockEnv
	GasLimit    uint64
}

// DefaultConfig returns mainnet parameters
func DefaultConfig() Config {
	return Config{
		ChainConfig: params.MainnetChainConfig,
		Block:       BlockEnv{GasLimit: DefaultGasLimit},
		GasLimit:    DefaultGasLimit,
	}
}

// Engine drives transactions through the interpreter over a lazily fetched state.
// An Engine owns its state and inspector and must not be used concurrently;
// run one Engine per goroutine and share the backend instead.
type Engine struct {
	cfg       Config
	backend   backend.Backend
	state     *forkstate.State
	inspector tracer.Inspector
	block     BlockEnv
	logger    log.Logger
}

// New creates an engine. A nil inspector runs without tracing.
func New(b backend.Backend, inspector tracer.Inspector, cfg Config) (*Engine, error) {
	if b == nil {
		return nil, fmt.Errorf("engine requires a state backend")
	}
	if cfg.ChainConfig == nil {
		cfg.ChainConfig = params.MainnetChainConfig
	}
	if cfg.GasLimit == 0 {
		cfg.GasLimit = DefaultGasLimit
	}
	if cfg.Block.GasLimit == 0 {
		cfg.Block.GasLimit = cfg.GasLimit
	}
	if inspector == nil {
		inspector = tracer.Noop{}
	}
	st, err := forkstate.New(b)
	if err != nil {
		return nil, err
	}
	return &Engine{
		cfg:       cfg,
		backend:   b,
		state:     st,
		inspector: inspector,
		block:     cfg.Block,
		logger:    log.New("module", "engine"),
	}, nil
}

// Inspector returns the instrumentation attached to the engine
func (e *Engine) Inspector() tracer.Inspector {
	return e.inspector
}

// State exposes the engine state, mostly for inspection after a batch
func (e *Engine) State() *forkstate.State {
	return e.state
}

// Block returns the current block context
func (e *Engine) Block() BlockEnv {
	return e.block
}

// SetBlock moves the engine to another block. Backends that can be re-pinned are
// moved along and all cached state is dropped.
func (e *Engine) SetBlock(env BlockEnv) error {
	if env.GasLimit == 0 {
		env.GasLimit = e.cfg.GasLimit
	}
	e.block = env
	if pinner, ok := e.backend.(backend.BlockPinner); ok {
		e.backend = pinner.AtBlock(env.Number)
	}
	return e.ResetState()
}

// ResetState drops every local modification and cached load
func (e *Engine) ResetState() error {
	st, err := forkstate.New(e.backend)
	if err != nil {
		return err
	}
	e.state = st
	return nil
}

// Balance returns the balance of addr in the current state
func (e *Engine) Balance(ctx context.Context, addr common.Address) (*big.Int, error) {
	e.state.SetContext(ctx)
	e.state.ClearErr()
	balance := e.state.GetBalance(addr)
	if err := e.state.BackendErr(); err != nil {
		return nil, err
	}
	return new(big.Int).Set(balance), nil
}

func (e *Engine) blockContext(ctx context.Context, env BlockEnv) vm.BlockContext {
	baseFee := env.BaseFee
	if baseFee == nil {
		baseFee = new(big.Int)
	}
	header := &types.Header{
		Number:     new(big.Int).SetUint64(env.Number),
		Time:       env.Timestamp,
		GasLimit:   env.GasLimit,
		BaseFee:    baseFee,
		Difficulty: new(big.Int),
		Coinbase:   env.Coinbase,
	}
	coinbase := env.Coinbase
	bctx := core.NewEVMBlockContext(header, nil, &coinbase)
	bctx.GetHash = func(n uint64) common.Hash {
		hasher, ok := e.backend.(backend.BlockHasher)
		if !ok {
			return common.Hash{}
		}
		hash, err := hasher.BlockHash(ctx, n)
		if err != nil {
			e.logger.Warn("Block hash lookup failed", "number", n, "err", err)
			return common.Hash{}
		}
		return hash
	}
	return bctx
}
