package trace

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// Format renders the call tree and the flattened transfers, committed writes and
// logs as indented text
func Format(out *TraceOutput) string {
	if out == nil || out.Root == nil {
		return ""
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Outcome: %s\n", out.Outcome)
	formatFrame(&b, out.Root, 0)

	if len(out.Transfers) > 0 {
		b.WriteString("Transfers:\n")
		for _, t := range out.Transfers {
			token := ""
			if t.Token != nil {
				token = " token " + t.Token.Hex()
			}
			if t.TokenID != nil {
				token += " id " + t.TokenID.Dec()
			}
			fmt.Fprintf(&b, "  %s %s %s -> %s amount %s%s\n", t.FramePath, t.Kind, t.From.Hex(), t.To.Hex(), amount(t), token)
		}
	}
	if writes := out.CommittedWrites(); len(writes) > 0 {
		b.WriteString("Storage writes:\n")
		for _, w := range writes {
			var next common.Hash
			if w.New != nil {
				next = *w.New
			}
			fmt.Fprintf(&b, "  %s %s[%s] %s -> %s\n", w.FramePath, w.Owner.Hex(), w.Slot.Hex(), w.Previous.Hex(), next.Hex())
		}
	}
	if len(out.Logs) > 0 {
		b.WriteString("Logs:\n")
		for _, l := range out.Logs {
			fmt.Fprintf(&b, "  %s %s topics %d data %s\n", l.FramePath, l.Address.Hex(), len(l.Topics), hexutil.Encode(l.Data))
		}
	}
	return b.String()
}

func formatFrame(b *strings.Builder, f *CallFrame, depth int) {
	indent := strings.Repeat("  ", depth)
	fmt.Fprintf(b, "%s%s %s %s -> %s", indent, f.Path, f.Kind, f.From.Hex(), f.To.Hex())
	if f.Kind.KeepsContext() {
		fmt.Fprintf(b, " context %s", f.Context.Hex())
	}
	if f.Value != nil && f.Value.Sign() > 0 {
		fmt.Fprintf(b, " value %s", f.Value)
	}
	fmt.Fprintf(b, " gas %d/%d %s\n", f.GasUsed, f.Gas, describe(f.Status))
	if len(f.Input) > 0 {
		fmt.Fprintf(b, "%s  Input: %s\n", indent, hexutil.Encode(f.Input))
	}
	if len(f.Output) > 0 {
		fmt.Fprintf(b, "%s  Output: %s\n", indent, hexutil.Encode(f.Output))
	}
	for _, child := range f.Children {
		formatFrame(b, child, depth+1)
	}
}

// FormatError describes the frame where the failure originated. It returns the
// empty string when no frame failed.
func FormatError(out *TraceOutput) string {
	if out == nil || !out.Failed() {
		return ""
	}
	at := out.ErrorOrigin
	if at == nil {
		at = out.FirstError
	}
	f := out.Frame(at)
	if f == nil {
		return ""
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Error in %s to %s at %s:\n", f.Kind, f.To.Hex(), f.Path)
	fmt.Fprintf(&b, "  From: %s\n", f.From.Hex())
	if f.Kind.KeepsContext() {
		fmt.Fprintf(&b, "  Context: %s\n", f.Context.Hex())
	}
	if f.Value != nil && f.Value.Sign() > 0 {
		fmt.Fprintf(&b, "  Value: %s wei\n", f.Value)
	}
	if len(f.Input) > 0 {
		fmt.Fprintf(&b, "  Input: %s\n", hexutil.Encode(f.Input))
	}
	fmt.Fprintf(&b, "  Error: %s\n", describe(f.Status))
	if !out.FirstError.Equal(f.Path) {
		fmt.Fprintf(&b, "  First failed frame: %s\n", out.FirstError)
	}
	return b.String()
}

func describe(s Status) string {
	if s.Kind == Error && s.Err != "" {
		return s.String() + ": " + s.Err
	}
	return s.String()
}

func amount(t AssetTransfer) string {
	if t.Amount == nil {
		return "0"
	}
	return t.Amount.Dec()
}
