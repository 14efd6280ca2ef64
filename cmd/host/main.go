// Command host fetches one Ethereum block from an archive node, builds and
// verifies a ClientInput for it, and writes the RLP-encoded result to the
// --out file (or to stdout when --out is omitted) for the client binary (or
// a zkVM guest) to consume.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/urfave/cli/v2"

	"github.com/succinctlabs/rsp/client"
	"github.com/succinctlabs/rsp/host"
	"github.com/succinctlabs/rsp/log"
)

func main() {
	app := &cli.App{
		Name:  "host",
		Usage: "produce and verify a ClientInput for one block",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "rpc-url", Required: true, Usage: "archive-node JSON-RPC endpoint"},
			&cli.Uint64Flag{Name: "block", Required: true, Usage: "block number to produce a ClientInput for"},
			&cli.Uint64Flag{Name: "chain-id", Usage: "chain id (fetched from the RPC endpoint if omitted)"},
			&cli.StringFlag{Name: "out", Usage: "output path for the RLP-encoded ClientInput (stdout if omitted)"},
			&cli.StringFlag{Name: "cache-dir", Usage: "directory to cache produced inputs under"},
			&cli.IntFlag{Name: "concurrency", Value: 16, Usage: "max in-flight RPC requests"},
			&cli.IntFlag{Name: "ancestor-window", Value: 256, Usage: "number of ancestor headers to embed"},
			&cli.BoolFlag{Name: "opcode-tracking", Usage: "enable per-opcode cycle tracking in the produced input"},
			&cli.StringFlag{Name: "metrics-addr", Usage: "if set, serve Prometheus metrics on this address (e.g. :9100)"},
		},
		Action: run,
	}
	if err := app.Run(os.Args); err != nil {
		log.Default().Module("host").Error("fatal", "err", err)
		os.Exit(1)
	}
}

func run(c *cli.Context) error {
	logger := log.New(slog.LevelInfo).Module("host")

	cfg := host.DefaultConfig()
	cfg.RPCURL = c.String("rpc-url")
	cfg.ChainID = c.Uint64("chain-id")
	cfg.CacheDir = c.String("cache-dir")
	cfg.Concurrency = c.Int("concurrency")
	cfg.AncestorWindow = c.Int("ancestor-window")
	cfg.OpcodeTracking = c.Bool("opcode-tracking")

	registry := prometheus.NewRegistry()
	metrics := host.NewMetrics(registry)
	if addr := c.String("metrics-addr"); addr != "" {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
			logger.Info("serving metrics", "addr", addr)
			if err := http.ListenAndServe(addr, mux); err != nil {
				logger.Error("metrics server exited", "err", err)
			}
		}()
	}

	ctx := context.Background()
	producer, err := host.NewProducer(ctx, cfg, metrics)
	if err != nil {
		return err
	}

	blockNumber := c.Uint64("block")
	logger.Info("producing client input", "block", blockNumber, "rpc_url", cfg.RPCURL)

	in, err := producer.Produce(ctx, blockNumber)
	if err != nil {
		return fmt.Errorf("produce block %d: %w", blockNumber, err)
	}

	data, err := client.Encode(in)
	if err != nil {
		return fmt.Errorf("encode client input: %w", err)
	}

	out := c.String("out")
	if out == "" {
		_, err = os.Stdout.Write(data)
		return err
	}
	if err := os.WriteFile(out, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", out, err)
	}
	logger.Info("wrote client input", "path", out, "bytes", len(data))
	return nil
}
