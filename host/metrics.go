package host

import "github.com/prometheus/client_golang/prometheus"

// Metrics are the counters/histograms a producer run reports, registered
// against whatever prometheus.Registerer the caller (typically a cmd/host
// main function wiring up promhttp.Handler) supplies. Producer updates
// BlocksProduced, WitnessNodesTotal, CacheHits and CacheMisses;
// RPCRequestsTotal and RPCRequestDuration are registered, but no code in
// this package records RPC requests into them.
type Metrics struct {
	RPCRequestsTotal   *prometheus.CounterVec
	RPCRequestDuration *prometheus.HistogramVec
	BlocksProduced     prometheus.Counter
	WitnessNodesTotal  prometheus.Counter
	CacheHits          prometheus.Counter
	CacheMisses        prometheus.Counter
}

// NewMetrics constructs and registers a Metrics set under the "rsp_host"
// namespace.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		RPCRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "rsp_host",
			Name:      "rpc_requests_total",
			Help:      "Number of JSON-RPC requests issued to the archive node, by method.",
		}, []string{"method"}),
		RPCRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "rsp_host",
			Name:      "rpc_request_duration_seconds",
			Help:      "Latency of JSON-RPC requests issued to the archive node, by method.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),
		BlocksProduced: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "rsp_host",
			Name:      "blocks_produced_total",
			Help:      "Number of blocks for which a ClientInput was successfully produced.",
		}),
		WitnessNodesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "rsp_host",
			Name:      "witness_nodes_total",
			Help:      "Total number of trie nodes embedded across all produced witnesses.",
		}),
		CacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "rsp_host",
			Name:      "cache_hits_total",
			Help:      "Number of ClientInput requests served from the on-disk cache.",
		}),
		CacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "rsp_host",
			Name:      "cache_misses_total",
			Help:      "Number of ClientInput requests that required a fresh RPC-backed build.",
		}),
	}
	reg.MustRegister(
		m.RPCRequestsTotal,
		m.RPCRequestDuration,
		m.BlocksProduced,
		m.WitnessNodesTotal,
		m.CacheHits,
		m.CacheMisses,
	)
	return m
}
