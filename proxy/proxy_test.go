package proxy_test

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vulcanize/go-evm-tracer/backend"
	"github.com/vulcanize/go-evm-tracer/proxy"
)

var (
	ctx       = context.Background()
	proxyAddr = common.HexToAddress("0x1000")
	implAddr  = common.HexToAddress("0x2000")
	runtime   = []byte{0x60, 0x00, 0x80, 0xfd}
)

func TestResolveSlots(t *testing.T) {
	for _, slot := range proxy.Slots {
		mem := backend.NewMemory().
			SetCode(proxyAddr, runtime).
			SetCode(implAddr, runtime).
			SetStorage(proxyAddr, slot, common.BytesToHash(implAddr.Bytes()))
		impl, err := proxy.Resolve(ctx, mem, proxyAddr)
		require.NoError(t, err)
		require.NotNil(t, impl, "slot %s", slot.Hex())
		assert.Equal(t, implAddr, *impl)
	}
}

func TestResolveSkipsCodelessTargets(t *testing.T) {
	other := common.HexToAddress("0x3000")
	mem := backend.NewMemory().
		SetCode(proxyAddr, runtime).
		SetCode(implAddr, runtime).
		SetStorage(proxyAddr, proxy.EIP1967LogicSlot, common.BytesToHash(other.Bytes())).
		SetStorage(proxyAddr, proxy.EIP1822LogicSlot, common.BytesToHash(implAddr.Bytes()))
	impl, err := proxy.Resolve(ctx, mem, proxyAddr)
	require.NoError(t, err)
	require.NotNil(t, impl)
	assert.Equal(t, implAddr, *impl)
}

func TestResolveNotProxy(t *testing.T) {
	mem := backend.NewMemory().
		SetCode(proxyAddr, runtime).
		SetBalance(implAddr, big.NewInt(1))
	impl, err := proxy.Resolve(ctx, mem, proxyAddr)
	require.NoError(t, err)
	assert.Nil(t, impl)

	impl, err = proxy.Resolve(ctx, mem, common.HexToAddress("0xdead"))
	require.NoError(t, err)
	assert.Nil(t, impl)
}

func TestResolveBackendError(t *testing.T) {
	boom := errors.New("unavailable")
	mem := backend.NewMemory().SetCode(proxyAddr, runtime).Fail(proxyAddr, boom)
	_, err := proxy.Resolve(ctx, mem, proxyAddr)
	require.ErrorIs(t, err, boom)
}
