// Command client is the zkVM guest binary: it reads an RLP-encoded
// ClientInput from stdin, re-executes the block against the embedded
// witness, and exits 0 only if the recomputed state root, receipts root,
// and gas usage all match the block's own header. It never touches the
// network — everything it needs is already in the ClientInput.
package main

import (
	"fmt"
	"io"
	"os"

	"github.com/succinctlabs/rsp/client"
)

func main() {
	os.Exit(run())
}

func run() int {
	data, err := io.ReadAll(os.Stdin)
	if err != nil {
		fmt.Fprintf(os.Stderr, "client: read stdin: %v\n", err)
		return 1
	}

	result, err := client.NewExecutor().ExecuteBytes(data)
	if err != nil {
		fmt.Fprintf(os.Stderr, "client: %v\n", err)
		return 1
	}

	fmt.Fprintf(os.Stderr, "client: verified block %d (hash %s, gas used %d)\n",
		result.Header.Number.Uint64(), result.Header.Hash(), result.GasUsed)
	return 0
}
