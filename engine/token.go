package engine

import (
	"bytes"
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"github.com/vulcanize/go-evm-tracer/proxy"
)

const erc20ABIJSON = `[
{"constant":true,"inputs":[],"name":"symbol","outputs":[{"name":"","type":"string"}],"type":"function"},
{"constant":true,"inputs":[],"name":"decimals","outputs":[{"name":"","type":"uint8"}],"type":"function"},
{"constant":true,"inputs":[{"name":"owner","type":"address"}],"name":"balanceOf","outputs":[{"name":"","type":"uint256"}],"type":"function"}
]`

var erc20ABI abi.ABI

func init() {
	var err error
	if erc20ABI, err = abi.JSON(strings.NewReader(erc20ABIJSON)); err != nil {
		panic(err)
	}
}

// TokenInfo is the metadata of a fungible token
type TokenInfo struct {
	Address  common.Address
	Symbol   string
	Decimals uint8
	// Implementation is set when the token sits behind a recognised proxy
	Implementation *common.Address
}

// TokenInfo reads symbol and decimals of an ERC20 token
func (e *Engine) TokenInfo(ctx context.Context, token common.Address) (*TokenInfo, error) {
	info := &TokenInfo{Address: token}
	impl, err := proxy.Resolve(ctx, e.backend, token)
	if err != nil {
		return nil, err
	}
	info.Implementation = impl

	ret, err := e.tokenCall(ctx, token, "symbol")
	if err != nil {
		return nil, err
	}
	if info.Symbol, err = unpackSymbol(ret); err != nil {
		return nil, err
	}

	ret, err = e.tokenCall(ctx, token, "decimals")
	if err != nil {
		return nil, err
	}
	values, err := erc20ABI.Unpack("decimals", ret)
	if err != nil {
		return nil, fmt.Errorf("decode decimals of %s: %w", token.Hex(), err)
	}
	info.Decimals = values[0].(uint8)
	return info, nil
}

// TokenBalance returns the ERC20 balance of holder
func (e *Engine) TokenBalance(ctx context.Context, token, holder common.Address) (*big.Int, error) {
	ret, err := e.tokenCall(ctx, token, "balanceOf", holder)
	if err != nil {
		return nil, err
	}
	values, err := erc20ABI.Unpack("balanceOf", ret)
	if err != nil {
		return nil, fmt.Errorf("decode balance of %s: %w", token.Hex(), err)
	}
	return values[0].(*big.Int), nil
}

func (e *Engine) tokenCall(ctx context.Context, token common.Address, method string, args ...interface{}) ([]byte, error) {
	data, err := erc20ABI.Pack(method, args...)
	if err != nil {
		return nil, err
	}
	ret, err := e.Call(ctx, CallRequest{To: token, Data: data})
	if err != nil {
		return nil, fmt.Errorf("%s on %s: %w", method, token.Hex(), err)
	}
	return ret, nil
}

// unpackSymbol accepts both string and legacy bytes32 symbols
func unpackSymbol(ret []byte) (string, error) {
	if values, err := erc20ABI.Unpack("symbol", ret); err == nil {
		return values[0].(string), nil
	}
	if len(ret) == 32 {
		return string(bytes.TrimRight(ret, "\x00")), nil
	}
	return "", fmt.Errorf("undecodable symbol %x", ret)
}
