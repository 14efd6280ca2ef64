package host

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"github.com/succinctlabs/rsp/client"
)

func TestDiffAddressesReturnsOnlyMissing(t *testing.T) {
	a := common.BytesToAddress([]byte{1})
	b := common.BytesToAddress([]byte{2})
	c := common.BytesToAddress([]byte{3})

	have := []client.TouchedAccount{{Address: a}}
	missing := diffAddresses([]common.Address{a, b, c}, have)

	if len(missing) != 2 || !missing[b] || !missing[c] {
		t.Fatalf("missing = %+v", missing)
	}
	if missing[a] {
		t.Fatal("a should not be reported as missing")
	}
}
