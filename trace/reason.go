package trace

import (
	"bytes"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

var (
	errorSelector = []byte{0x08, 0xc3, 0x79, 0xa0}
	panicSelector = []byte{0x4e, 0x48, 0x7b, 0x71}
)

// Solidity panic codes
var panicReasons = map[uint64]string{
	0x00: "generic panic",
	0x01: "assert(false)",
	0x11: "arithmetic underflow or overflow",
	0x12: "division or modulo by zero",
	0x21: "enum overflow",
	0x22: "invalid encoded storage byte array accessed",
	0x31: "out-of-bounds array access; popping on an empty array",
	0x32: "out-of-bounds access of an array or bytesN",
	0x41: "out of memory",
	0x51: "uninitialized function",
}

// DecodeRevertReason renders revert data as Error(string) message, a Panic(uint256)
// description, or the hex of the raw output for custom errors.
func DecodeRevertReason(output []byte) string {
	if len(output) == 0 {
		return ""
	}
	if bytes.HasPrefix(output, errorSelector) {
		if reason, err := abi.UnpackRevert(output); err == nil {
			return reason
		}
	}
	if bytes.HasPrefix(output, panicSelector) && len(output) == 36 {
		code := new(big.Int).SetBytes(output[4:])
		if code.IsUint64() {
			if reason, ok := panicReasons[code.Uint64()]; ok {
				return fmt.Sprintf("panic: %s (0x%x)", reason, code)
			}
		}
		return fmt.Sprintf("panic: unknown code 0x%x", code)
	}
	return hexutil.Encode(output)
}
