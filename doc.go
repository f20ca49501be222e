/*
Package evmtrace traces EVM transactions executed against forked chain state.

The engine package runs batches of simulated transactions over a state that is
fetched lazily from a backend (a JSON-RPC node, optionally behind an LRU cache)
and records every call frame, storage access, log and asset transfer through the
tracer package. Finished traces are plain trace.TraceOutput values; the tx_trace
package turns them into content addressed IPLD nodes, and importing the plugin
package registers that codec with a kubo node.

The evmtrace command in cmd/evmtrace drives all of this from the command line.
*/
package evmtrace
