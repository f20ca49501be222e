package proxy

import (
	"context"

	"github.com/ethereum/go-ethereum/common"

	"github.com/vulcanize/go-evm-tracer/backend"
)

// Storage slots where common proxy standards keep their implementation address
var (
	EIP1967LogicSlot  = common.HexToHash("0x360894a13ba1a3210667c828492db98dca3e2076cc3735a920a3ca505d382bbc")
	EIP1967BeaconSlot = common.HexToHash("0xa3f0ad74e5423aebfd80d3ef4346578335a9a72aeaee59ff6cb3582b35133d50")
	OZImplSlot        = common.HexToHash("0x7050c9e0f4ca769c69bd3a8ef740bc37934f8e2c036e5a723fd8ee048ed3f8c3")
	EIP1822LogicSlot  = common.HexToHash("0xc5f16f0fcc639fa48a6947836d9850f504798523bf8c9a3a87d5876cf622bcf7")
)

// Slots is the lookup order used by Resolve
var Slots = []common.Hash{
	EIP1967LogicSlot,
	EIP1967BeaconSlot,
	OZImplSlot,
	EIP1822LogicSlot,
}

// Resolve returns the implementation behind a proxy, or nil when addr is not a
// recognised proxy. A slot value only counts when it points at an account with code.
// Beacon proxies resolve to the beacon contract.
func Resolve(ctx context.Context, b backend.Backend, addr common.Address) (*common.Address, error) {
	acc, err := b.GetAccount(ctx, addr)
	if err != nil {
		return nil, err
	}
	if acc.Empty() {
		return nil, nil
	}
	for _, slot := range Slots {
		value, err := b.GetStorage(ctx, addr, slot)
		if err != nil {
			return nil, err
		}
		if value == (common.Hash{}) {
			continue
		}
		impl := common.BytesToAddress(value.Bytes()[12:])
		code, err := b.GetCode(ctx, impl)
		if err != nil {
			return nil, err
		}
		if len(code) > 0 {
			return &impl, nil
		}
	}
	return nil, nil
}
