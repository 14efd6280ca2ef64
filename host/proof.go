package host

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/ethclient/gethclient"
	"golang.org/x/sync/errgroup"

	"github.com/succinctlabs/rsp/state"
)

// proofBundle is the result of fetching eth_getProof for every touched
// address/slot at one block: both the flat, already-decoded list of every
// RLP-encoded trie node named by any of the returned proofs (fed to
// ClientInput.WitnessNodes; deduplication left to the caller, since
// state.FromExecutionWitness indexes by hash so duplicates are harmless),
// and the same proofs kept structured per-account (fed to
// state.FromTransitionProofs, which needs the before/after account-proof
// pairing, not a flat node list).
type proofBundle struct {
	nodes    [][]byte
	accounts []state.AccountProof
	root     common.Hash
}

// fetchProofs calls eth_getProof once per touched address (batched with
// bounded concurrency) at blockNumber, covering every slot rpcdb recorded
// for that address. root is the caller-supplied state root this blockNumber
// is anchored to (block N-1's root for a "before" call, block N's for an
// "after" call) — eth_getProof doesn't return a state root of its own to
// check against.
func (p *Producer) fetchProofs(ctx context.Context, blockNumber uint64, root common.Hash, rpcdb *RPCDB) (proofBundle, error) {
	gc := gethclient.New(p.eth.Client())

	touchedSlots := rpcdb.TouchedSlots()
	addrs := rpcdb.TouchedAddresses()

	type result struct {
		nodes   [][]byte
		account state.AccountProof
	}
	results := make([]result, len(addrs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.cfg.Concurrency)
	blockNum := new(big.Int).SetUint64(blockNumber)
	for i, addr := range addrs {
		i, addr := i, addr
		g.Go(func() error {
			keys := make([]string, 0, len(touchedSlots[addr]))
			for _, slot := range touchedSlots[addr] {
				keys = append(keys, slot.Hex())
			}
			res, err := gc.GetProof(gctx, addr, keys, blockNum)
			if err != nil {
				return fmt.Errorf("eth_getProof %s: %w", addr, err)
			}
			var nodes [][]byte
			var accountNodes [][]byte
			for _, n := range res.AccountProof {
				raw, err := hexutil.Decode(n)
				if err != nil {
					return fmt.Errorf("decode account proof node: %w", err)
				}
				nodes = append(nodes, raw)
				accountNodes = append(accountNodes, raw)
			}
			ap := state.AccountProof{Address: addr, AccountProof: accountNodes}
			for _, sp := range res.StorageProof {
				var spNodes [][]byte
				for _, n := range sp.Proof {
					raw, err := hexutil.Decode(n)
					if err != nil {
						return fmt.Errorf("decode storage proof node: %w", err)
					}
					nodes = append(nodes, raw)
					spNodes = append(spNodes, raw)
				}
				ap.StorageProofs = append(ap.StorageProofs, state.StorageSlotProof{
					Key:   common.HexToHash(sp.Key),
					Proof: spNodes,
				})
			}
			results[i] = result{nodes: nodes, account: ap}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return proofBundle{}, err
	}

	bundle := proofBundle{root: root}
	for _, r := range results {
		bundle.nodes = append(bundle.nodes, r.nodes...)
		bundle.accounts = append(bundle.accounts, r.account)
	}
	return bundle, nil
}
