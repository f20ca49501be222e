package plugin

import (
	"github.com/ipfs/kubo/plugin"
	"github.com/ipld/go-ipld-prime/multicodec"

	"github.com/vulcanize/go-evm-tracer/tx_trace"
)

// Plugins is exported list of plugins that will be loaded
var Plugins = []plugin.Plugin{
	&traceIPLDPlugin{},
}

type traceIPLDPlugin struct{}

var _ plugin.PluginIPLD = (*traceIPLDPlugin)(nil)

// Name satisfies the Plugin interface
func (*traceIPLDPlugin) Name() string {
	return "ipld-evm-trace"
}

// Version satisfies the Plugin interface
func (*traceIPLDPlugin) Version() string {
	return "0.1.0"
}

// Init satisfies the Plugin interface
func (*traceIPLDPlugin) Init(_ *plugin.Environment) error {
	return nil
}

// Register satisfies the PluginIPLD interface
func (*traceIPLDPlugin) Register(reg multicodec.Registry) error {
	reg.RegisterDecoder(tx_trace.MultiCodecType, tx_trace.Decode)
	reg.RegisterEncoder(tx_trace.MultiCodecType, tx_trace.Encode)
	return nil
}
