package host

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/succinctlabs/rsp/client"
)

// Cache is a flat on-disk store of already-produced, RLP-encoded
// ClientInputs, keyed by chain ID and block number: <root>/input/<chain
// id>/<block number>.bin. It exists so repeated requests for the same
// block (common while iterating on a prover) skip re-fetching from the
// archive node entirely.
type Cache struct {
	root string
}

// NewCache returns a Cache rooted at dir. The directory is created lazily on
// first Put, not here.
func NewCache(dir string) *Cache {
	return &Cache{root: dir}
}

func (c *Cache) path(chainID, blockNumber uint64) string {
	return filepath.Join(c.root, "input", fmt.Sprintf("%d", chainID), fmt.Sprintf("%d.bin", blockNumber))
}

// Get returns the cached ClientInput for (chainID, blockNumber), if present.
func (c *Cache) Get(chainID, blockNumber uint64) (*client.ClientInput, bool) {
	data, err := os.ReadFile(c.path(chainID, blockNumber))
	if err != nil {
		return nil, false
	}
	in, err := client.Decode(data)
	if err != nil {
		return nil, false
	}
	return in, true
}

// Put stores in under (chainID, blockNumber), creating parent directories as
// needed.
func (c *Cache) Put(chainID, blockNumber uint64, in *client.ClientInput) error {
	data, err := client.Encode(in)
	if err != nil {
		return fmt.Errorf("host: encode cached input: %w", err)
	}
	path := c.path(chainID, blockNumber)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("host: create cache dir: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("host: write cache entry: %w", err)
	}
	return nil
}
