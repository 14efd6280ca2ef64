package host

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/succinctlabs/rsp/client"
)

func TestCachePutGetRoundTrip(t *testing.T) {
	dir := t.TempDir()
	c := NewCache(dir)

	header := &types.Header{Number: big.NewInt(5), Difficulty: big.NewInt(0)}
	in := &client.ClientInput{
		CurrentBlock:    types.NewBlockWithHeader(header),
		ParentStateRoot: common.HexToHash("0x01"),
		ChainID:         client.ChainIDMainnet,
	}

	if _, ok := c.Get(client.ChainIDMainnet, 5); ok {
		t.Fatal("expected a cache miss before Put")
	}
	if err := c.Put(client.ChainIDMainnet, 5, in); err != nil {
		t.Fatalf("Put: %v", err)
	}

	got, ok := c.Get(client.ChainIDMainnet, 5)
	if !ok {
		t.Fatal("expected a cache hit after Put")
	}
	if got.ParentStateRoot != in.ParentStateRoot {
		t.Fatalf("ParentStateRoot = %s, want %s", got.ParentStateRoot, in.ParentStateRoot)
	}
	if got.CurrentBlock.NumberU64() != 5 {
		t.Fatalf("NumberU64() = %d, want 5", got.CurrentBlock.NumberU64())
	}
}
