package client

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/tracing"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/params"
	"github.com/holiman/uint256"

	"github.com/succinctlabs/rsp/witnessdb"
)

// ReadOnlyDB is the read surface OverlayStateDB layers its mutable overlay
// on top of. witnessdb.WitnessDB satisfies it directly for the in-zkVM
// path; host.RPCDB satisfies it too, so the host can drive the exact same
// overlay/EVM wiring against a live archive node while it discovers which
// addresses and slots a block actually touches.
type ReadOnlyDB interface {
	Basic(addr common.Address) (witnessdb.AccountInfo, bool)
	Storage(addr common.Address, slot common.Hash) common.Hash
	BlockHash(number uint64) common.Hash
}

// accountOverlay holds one address's in-memory mutations layered on top of
// whatever witnessdb.WitnessDB reported for it at block start.
type accountOverlay struct {
	loaded bool // true once this address's base state has been copied in from the WitnessDB

	balance  *uint256.Int
	nonce    uint64
	code     []byte
	codeHash common.Hash

	created        bool
	selfDestructed bool
	dirty          bool // true once any mutating method has touched this account

	storage map[common.Hash]common.Hash
}

func (a *accountOverlay) clone() *accountOverlay {
	c := &accountOverlay{
		loaded:         a.loaded,
		balance:        new(uint256.Int).Set(a.balance),
		nonce:          a.nonce,
		code:           a.code,
		codeHash:       a.codeHash,
		created:        a.created,
		selfDestructed: a.selfDestructed,
		dirty:          a.dirty,
		storage:        make(map[common.Hash]common.Hash, len(a.storage)),
	}
	for k, v := range a.storage {
		c.storage[k] = v
	}
	return c
}

// overlaySnapshot is a full deep copy of the mutable parts of overlayState,
// taken on Snapshot and restored wholesale on RevertToSnapshot. Journaling
// individual mutations (as go-ethereum's own StateDB does) would avoid the
// copying cost, but a flat copy is far easier to get right without a
// compiler to check it against, and re-execution inside the zkVM is already
// paying O(block) costs dominated by EVM interpretation, not state bookkeeping.
type overlaySnapshot struct {
	accounts        map[common.Address]*accountOverlay
	transient       map[common.Address]map[common.Hash]common.Hash
	accessListAddrs map[common.Address]bool
	accessListSlots map[common.Address]map[common.Hash]bool
	refund          uint64
	logsLen         int
}

// OverlayStateDB implements go-ethereum's vm.StateDB on top of a read-only
// witnessdb.WitnessDB, holding every mutation the EVM makes in memory.
// Nothing it does touches the underlying WitnessDB or its tries; the final
// post-state is read back out via PostState once execution finishes, for
// state.EthereumState.Update to apply.
type OverlayStateDB struct {
	db ReadOnlyDB

	accounts        map[common.Address]*accountOverlay
	transient       map[common.Address]map[common.Hash]common.Hash
	accessListAddrs map[common.Address]bool
	accessListSlots map[common.Address]map[common.Hash]bool

	refund uint64
	logs   []*types.Log

	snapshots []overlaySnapshot
}

// NewOverlayStateDB wraps db in a fresh, empty overlay.
func NewOverlayStateDB(db ReadOnlyDB) *OverlayStateDB {
	return &OverlayStateDB{
		db:              db,
		accounts:        make(map[common.Address]*accountOverlay),
		transient:       make(map[common.Address]map[common.Hash]common.Hash),
		accessListAddrs: make(map[common.Address]bool),
		accessListSlots: make(map[common.Address]map[common.Hash]bool),
	}
}

func (s *OverlayStateDB) account(addr common.Address) *accountOverlay {
	a, ok := s.accounts[addr]
	if ok {
		return a
	}
	info, present := s.db.Basic(addr)
	a = &accountOverlay{loaded: true, storage: make(map[common.Hash]common.Hash)}
	if present {
		a.balance = new(uint256.Int).Set(info.Balance)
		a.nonce = info.Nonce
		a.codeHash = info.CodeHash
		a.code = info.Code
	} else {
		a.balance = new(uint256.Int)
		a.codeHash = types.EmptyCodeHash
	}
	s.accounts[addr] = a
	return a
}

// --- account lifecycle ---

func (s *OverlayStateDB) CreateAccount(addr common.Address) {
	a := s.account(addr)
	a.created = true
	a.dirty = true
}

func (s *OverlayStateDB) CreateContract(addr common.Address) {
	// Storage layout is identical either way in this overlay; only account
	// existence tracking (handled by CreateAccount) matters here.
}

func (s *OverlayStateDB) Exist(addr common.Address) bool {
	a := s.account(addr)
	if a.selfDestructed {
		return false
	}
	if a.created {
		return true
	}
	_, present := s.db.Basic(addr)
	return present
}

func (s *OverlayStateDB) Empty(addr common.Address) bool {
	a := s.account(addr)
	return a.nonce == 0 && a.balance.IsZero() && a.codeHash == types.EmptyCodeHash
}

// --- balance ---

func (s *OverlayStateDB) GetBalance(addr common.Address) *uint256.Int {
	return new(uint256.Int).Set(s.account(addr).balance)
}

func (s *OverlayStateDB) AddBalance(addr common.Address, amount *uint256.Int, reason tracing.BalanceChangeReason) uint256.Int {
	a := s.account(addr)
	prev := *a.balance
	a.balance.Add(a.balance, amount)
	a.dirty = true
	return prev
}

func (s *OverlayStateDB) SubBalance(addr common.Address, amount *uint256.Int, reason tracing.BalanceChangeReason) uint256.Int {
	a := s.account(addr)
	prev := *a.balance
	a.balance.Sub(a.balance, amount)
	a.dirty = true
	return prev
}

// --- nonce ---

func (s *OverlayStateDB) GetNonce(addr common.Address) uint64 {
	return s.account(addr).nonce
}

func (s *OverlayStateDB) SetNonce(addr common.Address, nonce uint64, reason tracing.NonceChangeReason) {
	a := s.account(addr)
	a.nonce = nonce
	a.dirty = true
}

// --- code ---

func (s *OverlayStateDB) GetCodeHash(addr common.Address) common.Hash {
	return s.account(addr).codeHash
}

func (s *OverlayStateDB) GetCode(addr common.Address) []byte {
	return s.account(addr).code
}

func (s *OverlayStateDB) GetCodeSize(addr common.Address) int {
	return len(s.account(addr).code)
}

func (s *OverlayStateDB) SetCode(addr common.Address, code []byte) {
	a := s.account(addr)
	a.code = code
	a.codeHash = crypto.Keccak256Hash(code)
	a.dirty = true
}

// --- refund counter ---

func (s *OverlayStateDB) AddRefund(amount uint64) { s.refund += amount }

func (s *OverlayStateDB) SubRefund(amount uint64) {
	if amount > s.refund {
		panic("client: refund counter below zero")
	}
	s.refund -= amount
}

func (s *OverlayStateDB) GetRefund() uint64 { return s.refund }

// --- storage ---

func (s *OverlayStateDB) GetCommittedState(addr common.Address, key common.Hash) common.Hash {
	return s.db.Storage(addr, key)
}

func (s *OverlayStateDB) GetState(addr common.Address, key common.Hash) common.Hash {
	a := s.account(addr)
	if v, ok := a.storage[key]; ok {
		return v
	}
	return s.GetCommittedState(addr, key)
}

func (s *OverlayStateDB) SetState(addr common.Address, key, value common.Hash) common.Hash {
	a := s.account(addr)
	prev := s.GetState(addr, key)
	a.storage[key] = value
	a.dirty = true
	return prev
}

func (s *OverlayStateDB) GetStorageRoot(addr common.Address) common.Hash {
	// Intra-block storage-root queries are not part of the re-execution
	// contract this client validates (only the final post-block state root
	// is checked); no opcode needs a live value here.
	return common.Hash{}
}

// --- transient storage (EIP-1153) ---

func (s *OverlayStateDB) GetTransientState(addr common.Address, key common.Hash) common.Hash {
	if m, ok := s.transient[addr]; ok {
		return m[key]
	}
	return common.Hash{}
}

func (s *OverlayStateDB) SetTransientState(addr common.Address, key, value common.Hash) {
	m, ok := s.transient[addr]
	if !ok {
		m = make(map[common.Hash]common.Hash)
		s.transient[addr] = m
	}
	m[key] = value
}

// --- self-destruct ---

func (s *OverlayStateDB) SelfDestruct(addr common.Address) uint256.Int {
	a := s.account(addr)
	prev := *a.balance
	a.selfDestructed = true
	a.balance = new(uint256.Int)
	return prev
}

func (s *OverlayStateDB) HasSelfDestructed(addr common.Address) bool {
	return s.account(addr).selfDestructed
}

func (s *OverlayStateDB) SelfDestruct6780(addr common.Address) (uint256.Int, bool) {
	a := s.account(addr)
	if !a.created {
		return uint256.Int{}, false
	}
	return s.SelfDestruct(addr), true
}

// --- access list (EIP-2929/2930) ---

func (s *OverlayStateDB) AddressInAccessList(addr common.Address) bool {
	return s.accessListAddrs[addr]
}

func (s *OverlayStateDB) SlotInAccessList(addr common.Address, slot common.Hash) (addressOk bool, slotOk bool) {
	addressOk = s.accessListAddrs[addr]
	if m, ok := s.accessListSlots[addr]; ok {
		slotOk = m[slot]
	}
	return
}

func (s *OverlayStateDB) AddAddressToAccessList(addr common.Address) {
	s.accessListAddrs[addr] = true
}

func (s *OverlayStateDB) AddSlotToAccessList(addr common.Address, slot common.Hash) {
	s.accessListAddrs[addr] = true
	m, ok := s.accessListSlots[addr]
	if !ok {
		m = make(map[common.Hash]bool)
		s.accessListSlots[addr] = m
	}
	m[slot] = true
}

func (s *OverlayStateDB) Prepare(rules params.Rules, sender, coinbase common.Address, dst *common.Address, precompiles []common.Address, txAccesses types.AccessList) {
	s.accessListAddrs[sender] = true
	if dst != nil {
		s.accessListAddrs[*dst] = true
	}
	if rules.IsEIP2929 {
		s.accessListAddrs[coinbase] = true
		for _, p := range precompiles {
			s.accessListAddrs[p] = true
		}
	}
	for _, e := range txAccesses {
		s.accessListAddrs[e.Address] = true
		m, ok := s.accessListSlots[e.Address]
		if !ok {
			m = make(map[common.Hash]bool)
			s.accessListSlots[e.Address] = m
		}
		for _, key := range e.StorageKeys {
			m[key] = true
		}
	}
}

// --- snapshot / revert ---

func (s *OverlayStateDB) Snapshot() int {
	snap := overlaySnapshot{
		accounts:        make(map[common.Address]*accountOverlay, len(s.accounts)),
		transient:       make(map[common.Address]map[common.Hash]common.Hash, len(s.transient)),
		accessListAddrs: make(map[common.Address]bool, len(s.accessListAddrs)),
		accessListSlots: make(map[common.Address]map[common.Hash]bool, len(s.accessListSlots)),
		refund:          s.refund,
		logsLen:         len(s.logs),
	}
	for addr, a := range s.accounts {
		snap.accounts[addr] = a.clone()
	}
	for addr, m := range s.transient {
		cm := make(map[common.Hash]common.Hash, len(m))
		for k, v := range m {
			cm[k] = v
		}
		snap.transient[addr] = cm
	}
	for addr, ok := range s.accessListAddrs {
		snap.accessListAddrs[addr] = ok
	}
	for addr, m := range s.accessListSlots {
		cm := make(map[common.Hash]bool, len(m))
		for k, v := range m {
			cm[k] = v
		}
		snap.accessListSlots[addr] = cm
	}
	s.snapshots = append(s.snapshots, snap)
	return len(s.snapshots) - 1
}

func (s *OverlayStateDB) RevertToSnapshot(id int) {
	snap := s.snapshots[id]
	s.accounts = snap.accounts
	s.transient = snap.transient
	s.accessListAddrs = snap.accessListAddrs
	s.accessListSlots = snap.accessListSlots
	s.refund = snap.refund
	s.logs = s.logs[:snap.logsLen]
	s.snapshots = s.snapshots[:id]
}

// --- logs / preimages ---

func (s *OverlayStateDB) AddLog(log *types.Log) {
	s.logs = append(s.logs, log)
}

func (s *OverlayStateDB) Logs() []*types.Log { return s.logs }

func (s *OverlayStateDB) AddPreimage(hash common.Hash, preimage []byte) {
	// Preimage recording exists upstream for debug tooling (e.g. `debug_`
	// RPCs over a full node's disk database); this executor never serves
	// those, so preimages are not retained.
}

// PostState flattens every address this overlay actually mutated (balance,
// nonce, code, storage, creation, or self-destruction) into the
// account/storage write lists state.EthereumState.Update applies to the
// parent tries. Addresses that were only read — an Exist check on a CALL
// target, a balance peek — are left out: writing them back would plant a
// zero-value leaf for every address the block merely glanced at.
func (s *OverlayStateDB) PostState() postState {
	var ps postState
	for addr, a := range s.accounts {
		if a.selfDestructed {
			ps.Accounts = append(ps.Accounts, accountWrite{Address: addr, Deleted: true})
			continue
		}
		if !a.dirty {
			continue
		}
		ps.Accounts = append(ps.Accounts, accountWrite{
			Address:  addr,
			Nonce:    a.nonce,
			Balance:  new(uint256.Int).Set(a.balance),
			CodeHash: a.codeHash,
		})
		for slot, value := range a.storage {
			ps.Storage = append(ps.Storage, storageWrite{Address: addr, Slot: slot, Value: value})
		}
	}
	return ps
}

// postState and its write types are the client package's own view of a
// post-execution diff, converted to state.HashedPostState by
// applyPostState once assembled (see executor.go). Keeping this type local
// avoids giving OverlayStateDB a compile-time dependency on the state
// package's exact AccountUpdate/StorageUpdate shapes.
type postState struct {
	Accounts []accountWrite
	Storage  []storageWrite
}

type accountWrite struct {
	Address  common.Address
	Deleted  bool
	Nonce    uint64
	Balance  *uint256.Int
	CodeHash common.Hash
}

type storageWrite struct {
	Address common.Address
	Slot    common.Hash
	Value   common.Hash
}
