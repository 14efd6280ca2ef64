package client

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/params"
	"github.com/holiman/uint256"
)

// TestExecuteEmptyBlockRunsAllStagesInOrder exercises the full seven-stage
// pipeline (testable property 7, determinism) on a transaction-free block
// over an all-empty parent state, and asserts CycleReport records every
// stage exactly once and in the fixed order spec §9 names them.
func TestExecuteEmptyBlockRunsAllStagesInOrder(t *testing.T) {
	ancestor := &types.Header{Number: big.NewInt(99), Difficulty: big.NewInt(0), GasLimit: 30_000_000, Time: 1000}
	header := &types.Header{
		Number:      big.NewInt(100),
		Difficulty:  big.NewInt(0),
		ParentHash:  ancestor.Hash(),
		Root:        types.EmptyRootHash,
		ReceiptHash: types.EmptyRootHash,
		GasUsed:     0,
		GasLimit:    30_000_000,
		Time:        1010,
	}
	block := types.NewBlockWithHeader(header)

	in := &ClientInput{
		CurrentBlock:    block,
		AncestorHeaders: []*types.Header{ancestor},
		ParentStateRoot: types.EmptyRootHash,
		ChainID:         ChainIDMainnet,
	}
	data, err := Encode(in)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	report := &CycleReport{}
	executor := &Executor{Cycles: report}
	result, err := executor.ExecuteBytes(data)
	if err != nil {
		t.Fatalf("ExecuteBytes: %v", err)
	}
	if result.GasUsed != 0 {
		t.Fatalf("GasUsed = %d, want 0", result.GasUsed)
	}

	want := []string{
		stageDeserializeInputs,
		stageInitWitnessDB,
		stageRecoverSenders,
		stageValidateHeader,
		stageExecuteBlock,
		stageValidatePostExec,
		stageComputeStateRoot,
	}
	if len(report.Stages) != len(want) {
		t.Fatalf("Stages = %v, want %v", report.Stages, want)
	}
	for i := range want {
		if report.Stages[i] != want[i] {
			t.Fatalf("Stages[%d] = %q, want %q", i, report.Stages[i], want[i])
		}
	}
}

func TestValidateHeaderChainAcceptsConsecutiveParent(t *testing.T) {
	parent := &types.Header{Number: big.NewInt(9), Difficulty: big.NewInt(0)}
	header := &types.Header{Number: big.NewInt(10), Difficulty: big.NewInt(0), ParentHash: parent.Hash()}

	if err := validateHeaderChain(header, []*types.Header{parent}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidateHeaderChainRejectsWrongBlockNumber(t *testing.T) {
	parent := &types.Header{Number: big.NewInt(9), Difficulty: big.NewInt(0)}
	header := &types.Header{Number: big.NewInt(11), Difficulty: big.NewInt(0), ParentHash: parent.Hash()}

	err := validateHeaderChain(header, []*types.Header{parent})
	asErr, ok := err.(*Error)
	if !ok || asErr.Kind != InvalidHeaderBlockNumber {
		t.Fatalf("err = %v, want InvalidHeaderBlockNumber", err)
	}
}

func TestValidateHeaderChainRejectsWrongParentHash(t *testing.T) {
	parent := &types.Header{Number: big.NewInt(9), Difficulty: big.NewInt(0)}
	header := &types.Header{Number: big.NewInt(10), Difficulty: big.NewInt(0), ParentHash: common.Hash{0xff}}

	err := validateHeaderChain(header, []*types.Header{parent})
	asErr, ok := err.(*Error)
	if !ok || asErr.Kind != InvalidHeaderParentHash {
		t.Fatalf("err = %v, want InvalidHeaderParentHash", err)
	}
}

func TestValidateHeaderChainNoAncestorsIsOk(t *testing.T) {
	header := &types.Header{Number: big.NewInt(10), Difficulty: big.NewInt(0)}
	if err := validateHeaderChain(header, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidateHeaderConsistencyRejectsOversizedExtraData(t *testing.T) {
	spec := ChainSpec{ChainID: ChainIDMainnet}
	header := &types.Header{Extra: make([]byte, 33)}

	if err := validateHeaderConsistency(spec, header, nil); err == nil {
		t.Fatal("expected an error for oversized extra data")
	}
}

func TestValidateHeaderConsistencyWhitelistsLineaFamily(t *testing.T) {
	spec := ChainSpec{ChainID: ChainIDLinea}
	header := &types.Header{Extra: make([]byte, 64), GasLimit: 30_000_000}

	if err := validateHeaderConsistency(spec, header, nil); err != nil {
		t.Fatalf("expected Linea's oversized extra data to be whitelisted, got %v", err)
	}
}

func TestValidatePostExecutionRejectsGasMismatch(t *testing.T) {
	header := &types.Header{GasUsed: 100}
	if err := validatePostExecution(header, nil, 99); err == nil {
		t.Fatal("expected a gas-used mismatch error")
	}
}

func TestValidatePostExecutionRejectsReceiptRootMismatch(t *testing.T) {
	header := &types.Header{GasUsed: 0, ReceiptHash: common.Hash{0x01}}
	if err := validatePostExecution(header, nil, 0); err == nil {
		t.Fatal("expected a receipt root mismatch error")
	}
}

func TestValidatePostExecutionAcceptsEmptyBlock(t *testing.T) {
	header := &types.Header{GasUsed: 0}
	header.ReceiptHash = types.EmptyReceiptsHash
	if err := validatePostExecution(header, nil, 0); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidatePostExecutionRejectsPectraRequests(t *testing.T) {
	hash := common.Hash{0x01}
	header := &types.Header{GasUsed: 0, ReceiptHash: types.EmptyReceiptsHash, RequestsHash: &hash}
	err := validatePostExecution(header, nil, 0)
	asErr, ok := err.(*Error)
	if !ok || asErr.Kind != PectraRequestsUnsupported {
		t.Fatalf("err = %v, want PectraRequestsUnsupported", err)
	}
}

func preLondonMainnetPair() (parent, header *types.Header) {
	parent = &types.Header{Number: big.NewInt(1), Difficulty: big.NewInt(1), GasLimit: 30_000_000, Time: 1000}
	header = &types.Header{Number: big.NewInt(2), Difficulty: big.NewInt(1), GasLimit: 30_000_000, Time: 1010, ParentHash: parent.Hash()}
	return parent, header
}

func TestValidateHeaderConsistencyAcceptsConsecutiveHeaders(t *testing.T) {
	spec, err := ChainSpecFor(ChainIDMainnet, nil)
	if err != nil {
		t.Fatal(err)
	}
	parent, header := preLondonMainnetPair()
	if err := validateHeaderConsistency(spec, header, parent); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidateHeaderConsistencyRejectsNonMonotonicTimestamp(t *testing.T) {
	spec, err := ChainSpecFor(ChainIDMainnet, nil)
	if err != nil {
		t.Fatal(err)
	}
	parent, header := preLondonMainnetPair()
	header.Time = parent.Time

	if err := validateHeaderConsistency(spec, header, parent); err == nil {
		t.Fatal("expected an error for a non-increasing timestamp")
	}
}

func TestValidateHeaderConsistencyRejectsGasLimitOutsideBoundDivisor(t *testing.T) {
	spec, err := ChainSpecFor(ChainIDMainnet, nil)
	if err != nil {
		t.Fatal(err)
	}
	parent, header := preLondonMainnetPair()
	header.GasLimit = parent.GasLimit * 2

	if err := validateHeaderConsistency(spec, header, parent); err == nil {
		t.Fatal("expected an error for a gas limit outside the bound-divisor range")
	}
}

func TestValidateHeaderConsistencyRejectsDifficultyRegrowthAfterMerge(t *testing.T) {
	spec, err := ChainSpecFor(ChainIDMainnet, nil)
	if err != nil {
		t.Fatal(err)
	}
	parent, header := preLondonMainnetPair()
	parent.Difficulty = big.NewInt(0)
	header.Difficulty = big.NewInt(5)

	if err := validateHeaderConsistency(spec, header, parent); err == nil {
		t.Fatal("expected an error for nonzero difficulty after the parent reached zero")
	}
}

func TestApplyWithdrawalsCreditsGweiAsWei(t *testing.T) {
	db := NewOverlayStateDB(emptyWitnessDB(t))
	addr := common.BytesToAddress([]byte{6})
	applyWithdrawals(db, types.Withdrawals{{Address: addr, Amount: 3}})

	want := new(uint256.Int).Mul(uint256.NewInt(3), uint256.NewInt(1_000_000_000))
	if got := db.GetBalance(addr); !got.Eq(want) {
		t.Fatalf("balance = %s, want %s", got, want)
	}
}

func TestAccumulateBlockRewardCreditsBeneficiaryAndUncles(t *testing.T) {
	db := NewOverlayStateDB(emptyWitnessDB(t))
	spec, err := ChainSpecFor(ChainIDMainnet, nil)
	if err != nil {
		t.Fatal(err)
	}
	beneficiary := common.BytesToAddress([]byte{7})
	uncle := common.BytesToAddress([]byte{8})
	header := &types.Header{Number: big.NewInt(100)}
	uncles := []*types.Header{{Number: big.NewInt(99), Coinbase: uncle}}

	accumulateBlockReward(db, spec.Config, header, uncles, beneficiary)

	if db.GetBalance(beneficiary).IsZero() {
		t.Fatal("expected beneficiary to be credited a block reward")
	}
	if db.GetBalance(uncle).IsZero() {
		t.Fatal("expected uncle miner to be credited an uncle reward")
	}
}

func TestProcessBeaconBlockRootWritesRingBufferSlots(t *testing.T) {
	db := NewOverlayStateDB(emptyWitnessDB(t))
	root := common.HexToHash("0xbeef")
	processBeaconBlockRoot(db, 42, root)

	ps := db.PostState()
	if len(ps.Storage) != 2 {
		t.Fatalf("expected 2 storage writes, got %d", len(ps.Storage))
	}
	for _, w := range ps.Storage {
		if w.Address != params.BeaconRootsAddress {
			t.Fatalf("write to unexpected address %s", w.Address)
		}
	}
}

func TestProcessParentBlockHashWritesRingBufferSlot(t *testing.T) {
	db := NewOverlayStateDB(emptyWitnessDB(t))
	hash := common.HexToHash("0xdead")
	processParentBlockHash(db, 41, hash)

	ps := db.PostState()
	if len(ps.Storage) != 1 {
		t.Fatalf("expected 1 storage write, got %d", len(ps.Storage))
	}
	if got := db.GetState(params.HistoryStorageAddress, common.BigToHash(big.NewInt(41))); got != hash {
		t.Fatalf("GetState = %s, want %s", got, hash)
	}
}
