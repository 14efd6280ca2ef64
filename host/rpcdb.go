package host

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/holiman/uint256"
	"golang.org/x/sync/semaphore"

	"github.com/succinctlabs/rsp/witnessdb"
)

// RPCDB is a client.ReadOnlyDB backed by live eth_getBalance/eth_getCode/
// eth_getStorageAt/eth_getTransactionCount calls against an archive node at
// a fixed block. Every lookup is also recorded, so after a block has been
// executed against it, TouchedAddresses and TouchedSlots report exactly the
// addresses and slots the production witness must cover. Calls from the
// EVM's single execution goroutine are sequential in practice; the
// semaphore bounds the account and storage fetches of any callers that use
// one RPCDB from several goroutines at once. (Producer.fetchAncestors does
// not go through RPCDB; it bounds its own header fetches with an errgroup.)
type RPCDB struct {
	eth   *ethclient.Client
	block *big.Int // the block this database represents state AT (the parent of the block being produced)
	sem   *semaphore.Weighted
	ctx   context.Context

	mu          sync.Mutex
	accounts    map[common.Address]witnessdb.AccountInfo
	storage     map[common.Address]map[common.Hash]common.Hash
	blockHashes map[uint64]common.Hash

	touchedAddrs map[common.Address]bool
	touchedSlots map[common.Address]map[common.Hash]bool
	codeHashes   map[common.Hash][]byte
}

// NewRPCDB returns a database representing chain state as of parentBlock.
func NewRPCDB(ctx context.Context, eth *ethclient.Client, parentBlock uint64, concurrency int) *RPCDB {
	if concurrency < 1 {
		concurrency = 1
	}
	return &RPCDB{
		eth:          eth,
		block:        new(big.Int).SetUint64(parentBlock),
		sem:          semaphore.NewWeighted(int64(concurrency)),
		ctx:          ctx,
		accounts:     make(map[common.Address]witnessdb.AccountInfo),
		storage:      make(map[common.Address]map[common.Hash]common.Hash),
		blockHashes:  make(map[uint64]common.Hash),
		touchedAddrs: make(map[common.Address]bool),
		touchedSlots: make(map[common.Address]map[common.Hash]bool),
		codeHashes:   make(map[common.Hash][]byte),
	}
}

// SeedBlockHash records a known ancestor header's hash so BlockHash can
// serve it without a network round trip; Producer populates these upfront
// for the whole ancestor window before execution starts.
func (d *RPCDB) SeedBlockHash(number uint64, hash common.Hash) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.blockHashes[number] = hash
}

// Basic implements client.ReadOnlyDB.
func (d *RPCDB) Basic(addr common.Address) (witnessdb.AccountInfo, bool) {
	d.mu.Lock()
	d.touchedAddrs[addr] = true
	if info, ok := d.accounts[addr]; ok {
		d.mu.Unlock()
		return info, info.Nonce != 0 || !info.Balance.IsZero() || len(info.Code) > 0
	}
	d.mu.Unlock()

	info, present, err := d.fetchAccount(addr)
	if err != nil {
		panic(fmt.Errorf("host: fetch account %s: %w", addr, err))
	}
	d.mu.Lock()
	d.accounts[addr] = info
	d.mu.Unlock()
	return info, present
}

// Storage implements client.ReadOnlyDB.
func (d *RPCDB) Storage(addr common.Address, slot common.Hash) common.Hash {
	d.mu.Lock()
	if m, ok := d.touchedSlots[addr]; ok {
		m[slot] = true
	} else {
		d.touchedSlots[addr] = map[common.Hash]bool{slot: true}
	}
	if m, ok := d.storage[addr]; ok {
		if v, ok := m[slot]; ok {
			d.mu.Unlock()
			return v
		}
	}
	d.mu.Unlock()

	v, err := d.fetchStorage(addr, slot)
	if err != nil {
		panic(fmt.Errorf("host: fetch storage %s/%s: %w", addr, slot, err))
	}
	d.mu.Lock()
	m, ok := d.storage[addr]
	if !ok {
		m = make(map[common.Hash]common.Hash)
		d.storage[addr] = m
	}
	m[slot] = v
	d.mu.Unlock()
	return v
}

// BlockHash implements client.ReadOnlyDB. Unlike witnessdb.WitnessDB, an
// unseeded lookup fetches rather than panics: the host does not yet know
// the ancestor window's exact extent until execution itself reveals it.
func (d *RPCDB) BlockHash(number uint64) common.Hash {
	d.mu.Lock()
	if h, ok := d.blockHashes[number]; ok {
		d.mu.Unlock()
		return h
	}
	d.mu.Unlock()

	header, err := d.eth.HeaderByNumber(d.ctx, new(big.Int).SetUint64(number))
	if err != nil {
		panic(fmt.Errorf("host: fetch ancestor header %d: %w", number, err))
	}
	hash := header.Hash()
	d.mu.Lock()
	d.blockHashes[number] = hash
	d.mu.Unlock()
	return hash
}

func (d *RPCDB) fetchAccount(addr common.Address) (witnessdb.AccountInfo, bool, error) {
	if err := d.sem.Acquire(d.ctx, 1); err != nil {
		return witnessdb.AccountInfo{}, false, err
	}
	defer d.sem.Release(1)

	balance, err := d.eth.BalanceAt(d.ctx, addr, d.block)
	if err != nil {
		return witnessdb.AccountInfo{}, false, fmt.Errorf("eth_getBalance: %w", err)
	}
	nonce, err := d.eth.NonceAt(d.ctx, addr, d.block)
	if err != nil {
		return witnessdb.AccountInfo{}, false, fmt.Errorf("eth_getTransactionCount: %w", err)
	}
	code, err := d.eth.CodeAt(d.ctx, addr, d.block)
	if err != nil {
		return witnessdb.AccountInfo{}, false, fmt.Errorf("eth_getCode: %w", err)
	}

	bal, overflow := uint256.FromBig(balance)
	if overflow {
		return witnessdb.AccountInfo{}, false, fmt.Errorf("balance overflows 256 bits")
	}
	info := witnessdb.AccountInfo{Nonce: nonce, Balance: bal}
	if len(code) > 0 {
		info.Code = code
		info.CodeHash = crypto.Keccak256Hash(code)
		d.mu.Lock()
		d.codeHashes[info.CodeHash] = code
		d.mu.Unlock()
	} else {
		info.CodeHash = types.EmptyCodeHash
	}
	present := nonce != 0 || balance.Sign() != 0 || len(code) > 0
	return info, present, nil
}

func (d *RPCDB) fetchStorage(addr common.Address, slot common.Hash) (common.Hash, error) {
	if err := d.sem.Acquire(d.ctx, 1); err != nil {
		return common.Hash{}, err
	}
	defer d.sem.Release(1)

	v, err := d.eth.StorageAt(d.ctx, addr, slot, d.block)
	if err != nil {
		return common.Hash{}, fmt.Errorf("eth_getStorageAt: %w", err)
	}
	return common.BytesToHash(v), nil
}

// TouchedAddresses returns every address Basic was asked about, in
// unspecified order.
func (d *RPCDB) TouchedAddresses() []common.Address {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]common.Address, 0, len(d.touchedAddrs))
	for a := range d.touchedAddrs {
		out = append(out, a)
	}
	return out
}

// TouchedSlots returns every (address, slot) pair Storage was asked about.
func (d *RPCDB) TouchedSlots() map[common.Address][]common.Hash {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make(map[common.Address][]common.Hash, len(d.touchedSlots))
	for addr, slots := range d.touchedSlots {
		list := make([]common.Hash, 0, len(slots))
		for s := range slots {
			list = append(list, s)
		}
		out[addr] = list
	}
	return out
}

// Bytecodes returns every non-empty bytecode fetched during Basic lookups,
// keyed by code hash.
func (d *RPCDB) Bytecodes() map[common.Hash][]byte {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make(map[common.Hash][]byte, len(d.codeHashes))
	for h, c := range d.codeHashes {
		out[h] = c
	}
	return out
}
