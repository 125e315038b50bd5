package fabnet

// Controller self-instrumentation

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	packetInCount = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fabnet_packet_ins_total",
		Help: "Packets punted to the controller, by kind",
	}, []string{"kind"})

	hostLearnCount = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fabnet_hosts_learned_total",
		Help: "Host bindings created",
	})

	flowInstallCount = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fabnet_flow_installs_total",
		Help: "Flow rules installed or replaced",
	})

	groupInstallCount = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fabnet_group_installs_total",
		Help: "Multipath groups installed",
	})

	pathMissCount = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fabnet_path_misses_total",
		Help: "Packets dropped because no path was found",
	})
)
