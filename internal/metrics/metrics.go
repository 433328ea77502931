// Package metrics implements Prometheus metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Operation label values.
const (
	OpPush    = "push"
	OpPop     = "pop"
	OpSegment = "segment"
	OpSet     = "set"
	OpDecTTL  = "dec_ttl"
	OpPushEth = "push_eth"
	OpPopEth  = "pop_eth"
)

var (
	// PacketsTotal counts packets an operation completed on
	PacketsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ovs_nsh_packets_total",
			Help: "Total number of packets processed by NSH operations",
		},
		[]string{"op"},
	)

	// DropsTotal counts packets dropped by operation and reason
	DropsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ovs_nsh_drops_total",
			Help: "Total number of packets dropped by NSH operations",
		},
		[]string{"op", "reason"},
	)

	// SegmentsPerPacket tracks how many segments one super-packet was split into
	SegmentsPerPacket = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "ovs_nsh_segments_per_packet",
			Help:    "Number of segments produced per segmented packet",
			Buckets: prometheus.ExponentialBuckets(1, 2, 8), // 1, 2, 4, ..., 128
		},
	)

	// VportsActive tracks attached vports
	VportsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "ovs_nsh_vports_active",
			Help: "Number of vports currently attached",
		},
	)

	// VportNotificationsTotal counts management notifications by event
	VportNotificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ovs_nsh_vport_notifications_total",
			Help: "Total number of vport notifications delivered",
		},
		[]string{"event"},
	)
)
