// Package host is the out-of-zkVM half of the pipeline: given a chain RPC
// endpoint and a block number, it fetches everything a ClientInput needs
// (the block, its ancestors, eth_getProof responses, bytecodes) by lazily
// re-executing the block against a database
// backed by live RPC calls, then assembles and verifies a ClientInput the
// same way the in-zkVM client will.
package host

import "time"

// Config controls one witness-producer run.
type Config struct {
	// RPCURL is the archive-node JSON-RPC endpoint fetched against.
	RPCURL string

	// ChainID is recorded into the produced ClientInput and used to select
	// its ChainSpec; callers that already know it can skip an extra
	// eth_chainId round trip.
	ChainID uint64

	// AncestorWindow is how many ancestor headers to fetch and embed, i.e.
	// how far back BLOCKHASH may reach during re-execution.
	AncestorWindow int

	// Concurrency bounds how many in-flight RPC calls the lazy database
	// issues at once.
	Concurrency int

	// RPCTimeout is a per-call timeout setting. It is carried in the Config
	// only: no RPC call made by Producer or RPCDB applies it, so each call
	// is bounded only by the context passed to Produce.
	RPCTimeout time.Duration

	// CacheDir, if non-empty, is where produced ClientInputs are cached on
	// disk (see cache.go) so a repeated request for the same block is free.
	CacheDir string

	// OpcodeTracking is carried straight into the produced ClientInput.
	OpcodeTracking bool
}

// DefaultConfig returns a Config with the same defaults the teacher's own
// CLI tools apply before layering user flags on top.
func DefaultConfig() Config {
	return Config{
		AncestorWindow: 256,
		Concurrency:    16,
		RPCTimeout:     30 * time.Second,
	}
}
