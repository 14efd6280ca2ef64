package host

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"golang.org/x/sync/errgroup"

	"github.com/succinctlabs/rsp/client"
	"github.com/succinctlabs/rsp/log"
	"github.com/succinctlabs/rsp/state"
)

// Producer builds and verifies ClientInputs for a single chain, fetching
// from cfg.RPCURL and optionally caching results under cfg.CacheDir.
type Producer struct {
	cfg     Config
	eth     *ethclient.Client
	cache   *Cache
	metrics *Metrics
}

// NewProducer dials cfg.RPCURL and returns a ready Producer.
func NewProducer(ctx context.Context, cfg Config, metrics *Metrics) (*Producer, error) {
	eth, err := ethclient.DialContext(ctx, cfg.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("host: dial %s: %w", cfg.RPCURL, err)
	}
	var cache *Cache
	if cfg.CacheDir != "" {
		cache = NewCache(cfg.CacheDir)
	}
	return &Producer{cfg: cfg, eth: eth, cache: cache, metrics: metrics}, nil
}

// Produce returns the ClientInput for blockNumber, from cache if present,
// otherwise by fetching and re-executing the block against a live RPC
// database and recording its witness-closure, then self-verifying the
// result with the same Executor the zkVM guest runs before handing it back.
func (p *Producer) Produce(ctx context.Context, blockNumber uint64) (*client.ClientInput, error) {
	if p.cache != nil {
		if in, ok := p.cache.Get(p.cfg.ChainID, blockNumber); ok {
			if p.metrics != nil {
				p.metrics.CacheHits.Inc()
			}
			log.Default().Module("host").WithBlock(blockNumber).Debug("cache hit")
			return in, nil
		}
	}
	if p.metrics != nil {
		p.metrics.CacheMisses.Inc()
	}

	in, err := p.produce(ctx, blockNumber)
	if err != nil {
		return nil, err
	}

	if p.cache != nil {
		if err := p.cache.Put(p.cfg.ChainID, blockNumber, in); err != nil {
			return nil, err
		}
	}
	if p.metrics != nil {
		p.metrics.BlocksProduced.Inc()
		p.metrics.WitnessNodesTotal.Add(float64(len(in.WitnessNodes)))
	}
	return in, nil
}

func (p *Producer) produce(ctx context.Context, blockNumber uint64) (*client.ClientInput, error) {
	logger := log.Default().Module("host").WithBlock(blockNumber)

	block, err := p.eth.BlockByNumber(ctx, new(big.Int).SetUint64(blockNumber))
	if err != nil {
		return nil, fmt.Errorf("host: fetch block %d: %w", blockNumber, err)
	}
	header := block.Header()

	chainID := p.cfg.ChainID
	if chainID == 0 {
		id, err := p.eth.ChainID(ctx)
		if err != nil {
			return nil, fmt.Errorf("host: fetch chain id: %w", err)
		}
		chainID = id.Uint64()
	}
	logger = logger.WithChain(chainID)
	chainSpec, err := client.ChainSpecFor(chainID, nil)
	if err != nil {
		return nil, err
	}

	logger.Debug("fetching ancestor headers", "window", p.cfg.AncestorWindow)
	ancestors, err := p.fetchAncestors(ctx, blockNumber)
	if err != nil {
		return nil, err
	}

	rpcdb := NewRPCDB(ctx, p.eth, blockNumber-1, p.cfg.Concurrency)
	for _, h := range ancestors {
		rpcdb.SeedBlockHash(h.Number.Uint64(), h.Hash())
	}

	senders, err := client.RecoverSenders(chainSpec.Config, header, block.Transactions())
	if err != nil {
		return nil, err
	}

	statedb := client.NewOverlayStateDB(rpcdb)
	if _, _, err := client.RunBlock(chainSpec, statedb, header, block.Transactions(), senders, header.Coinbase, block.Withdrawals(), block.Uncles(), nil); err != nil {
		return nil, fmt.Errorf("host: discovery execution: %w", err)
	}

	// Two eth_getProof passes bracket the block: "before" at N-1 anchors the
	// claimed parent state root; "after" at N covers whatever the discovery
	// execution above just wrote (freshly created accounts, newly nonzero
	// storage slots) so their trie nodes are available to the post-execution
	// state-root step too. Both sets of raw nodes feed ClientInput's flat
	// witness; the structured per-account proofs additionally let the host
	// cross-check its own witness assembly against state.FromTransitionProofs
	// before ever handing the input to the zkVM-side Executor.
	before, err := p.fetchProofs(ctx, blockNumber-1, ancestors[0].Root, rpcdb)
	if err != nil {
		return nil, err
	}
	after, err := p.fetchProofs(ctx, blockNumber, header.Root, rpcdb)
	if err != nil {
		return nil, err
	}
	if _, err := state.FromTransitionProofs(before.root, before.accounts, after.accounts); err != nil {
		return nil, fmt.Errorf("host: transition-proof cross-check: %w", err)
	}
	logger.Debug("transition-proof cross-check passed", "touched_accounts", len(before.accounts))

	in := &client.ClientInput{
		CurrentBlock:    block,
		AncestorHeaders: ancestors,
		WitnessNodes:    append(before.nodes, after.nodes...),
		ParentStateRoot: before.root,
		ChainID:         chainID,
		OpcodeTracking:  p.cfg.OpcodeTracking,
	}
	for addr, slots := range rpcdb.TouchedSlots() {
		in.TouchedAccounts = append(in.TouchedAccounts, client.TouchedAccount{Address: addr, Slots: slots})
	}
	for addr := range diffAddresses(rpcdb.TouchedAddresses(), in.TouchedAccounts) {
		in.TouchedAccounts = append(in.TouchedAccounts, client.TouchedAccount{Address: addr})
	}
	for hash, code := range rpcdb.Bytecodes() {
		in.Bytecodes = append(in.Bytecodes, client.BytecodeEntry{CodeHash: hash, Code: code})
	}

	if _, err := client.NewExecutor().Execute(in); err != nil {
		return nil, fmt.Errorf("host: self-verification of produced input failed: %w", err)
	}
	logger.Info("produced client input", "witness_nodes", len(in.WitnessNodes), "touched_accounts", len(in.TouchedAccounts))
	return in, nil
}

// diffAddresses returns the touched addresses not already present in have,
// so an address that was only read (never had a storage slot touched) still
// gets a TouchedAccount entry with no slots.
func diffAddresses(all []common.Address, have []client.TouchedAccount) map[common.Address]bool {
	present := make(map[common.Address]bool, len(have))
	for _, ta := range have {
		present[ta.Address] = true
	}
	missing := make(map[common.Address]bool)
	for _, a := range all {
		if !present[a] {
			missing[a] = true
		}
	}
	return missing
}

func (p *Producer) fetchAncestors(ctx context.Context, blockNumber uint64) ([]*types.Header, error) {
	window := p.cfg.AncestorWindow
	if window <= 0 {
		window = 1
	}
	start := uint64(0)
	if blockNumber > uint64(window) {
		start = blockNumber - uint64(window)
	}

	numbers := make([]uint64, 0, blockNumber-start)
	for n := blockNumber - 1; n >= start && n > 0; n-- {
		numbers = append(numbers, n)
		if n == start {
			break
		}
	}

	headers := make([]*types.Header, len(numbers))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.cfg.Concurrency)
	for i, n := range numbers {
		i, n := i, n
		g.Go(func() error {
			h, err := p.eth.HeaderByNumber(gctx, new(big.Int).SetUint64(n))
			if err != nil {
				return fmt.Errorf("fetch ancestor header %d: %w", n, err)
			}
			headers[i] = h
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return headers, nil
}
