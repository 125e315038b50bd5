package fabnet

// Dynamic shortest-path routing. The adjacency map is rebuilt from the raw
// link inventory on every switch connect and on a periodic refresh. On a
// first packet toward a known destination, the minimum-hop path is computed
// with Dijkstra over the unweighted adjacency map and one rule per hop is
// installed; the triggering packet is then forwarded out of the first hop.
// Ties between equal-length paths fall to whatever order the search yields.

import (
	"time"

	"github.com/contiv/fabnet/pkg/ofctrl"

	log "github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/graph/path"
	"gonum.org/v1/gonum/graph/simple"
)

type spStrategy struct {
	agent *FabnetAgent
}

func newSpStrategy(agent *FabnetAgent) *spStrategy {
	return &spStrategy{agent: agent}
}

func (self *spStrategy) name() string {
	return StrategyShortestPath
}

// The reactive strategy has no convergence lifecycle
func (self *spStrategy) status() string {
	return "reactive"
}

func (self *spStrategy) start() {
	self.agent.wg.Add(2)
	go self.linkRefresh()
	go self.keepAlive()
}

// Rebuild-on-connect discovery policy
func (self *spStrategy) switchConnected(sw *ofctrl.OFSwitch) {
	self.agent.rebuildLinks()
	self.logCompleteness()
}

// Periodically rebuild the adjacency map from the link inventory
func (self *spStrategy) linkRefresh() {
	defer self.agent.wg.Done()

	ticker := time.NewTicker(self.agent.cfg.LinkRefreshInterval)
	defer ticker.Stop()

	for {
		select {
		case <-self.agent.stopChan:
			return
		case <-ticker.C:
			self.agent.rebuildLinks()
			self.logCompleteness()
		}
	}
}

// Periodic liveness log
func (self *spStrategy) keepAlive() {
	defer self.agent.wg.Done()

	ticker := time.NewTicker(self.agent.cfg.KeepAliveInterval)
	defer ticker.Stop()

	for {
		select {
		case <-self.agent.stopChan:
			return
		case <-ticker.C:
			log.Infof("fabnet controller alive: waiting for network events")
		}
	}
}

func (self *spStrategy) logCompleteness() {
	numSwitches, numLinks := self.agent.snapshot()
	expSwitches, expLinks := self.agent.expectedCounts()
	log.Infof("Topology completeness: %d/%d switches, %d/%d links",
		numSwitches, expSwitches, numLinks, expLinks)
}

// Compute the minimum-hop switch path from src to dst over the current
// topology view. Returns nil if either switch is unknown or the graph is
// disconnected between them.
func (self *spStrategy) shortestPath(src, dst uint64) []uint64 {
	view := self.agent.TopologyView()

	if view[src] == nil || view[dst] == nil {
		log.Errorf("Cannot find path: switch %d or %d not in topology view", src, dst)
		return nil
	}

	if src == dst {
		return []uint64{src}
	}

	// Weight every edge 1: Dijkstra over the uniform-cost graph minimizes
	// hop count
	g := simple.NewUndirectedGraph()
	for dpid := range view {
		g.AddNode(simple.Node(dpid))
	}
	for dpid, neighbors := range view {
		for nbr := range neighbors {
			if dpid < nbr {
				g.SetEdge(g.NewEdge(simple.Node(dpid), simple.Node(nbr)))
			}
		}
	}

	shortest := path.DijkstraFrom(g.Node(int64(src)), g)
	nodes, _ := shortest.To(int64(dst))
	if len(nodes) == 0 {
		log.Errorf("No path from switch %d to switch %d", src, dst)
		return nil
	}

	hops := make([]uint64, 0, len(nodes))
	for _, node := range nodes {
		hops = append(hops, uint64(node.ID()))
	}

	return hops
}

// Handle a first packet toward dstIP: compute the path from the ingress
// switch to the destination's attachment switch, install one rule per hop
// and forward the triggering packet. On failure the packet is dropped; the
// next packet for the same destination re-triggers the search.
func (self *spStrategy) ipPacketRcvd(sw *ofctrl.OFSwitch, inPort uint32, pkt *ipPacket) {
	binding := self.agent.hostLookup(pkt.dstIP)
	if binding == nil {
		log.Debugf("Destination %s unknown, dropping packet from switch %d", pkt.dstIP, sw.DPID())
		return
	}

	var hops []uint64
	if binding.DPID == sw.DPID() {
		// Source and destination attach to the same switch
		hops = []uint64{sw.DPID()}
	} else {
		hops = self.shortestPath(sw.DPID(), binding.DPID)
		if hops == nil {
			pathMissCount.Inc()
			return
		}
	}

	log.Infof("Installing path for %s: %v", pkt.dstIP, hops)

	view := self.agent.TopologyView()
	dstIp := pkt.dstIP

	// Install a destination rule on every switch along the path
	for i, hop := range hops {
		hopSw := self.agent.switchByDpid(hop)
		if hopSw == nil {
			log.Warnf("Switch %d on path not connected, skipping", hop)
			continue
		}

		outPort := binding.Port
		if i < len(hops)-1 {
			outPort = view[hop][hops[i+1]]
		}

		flow, err := hopSw.NewFlow(ofctrl.FlowMatch{
			Priority:  FLOW_ROUTE_PRIORITY,
			Ethertype: ETH_TYPE_IP,
			IpDa:      &dstIp,
		})
		if err == nil {
			var out *ofctrl.Output
			out, _ = hopSw.NewOutputPort(outPort)
			err = flow.Next(out)
		}
		if err != nil {
			log.Errorf("Failed to install path rule on switch %d. Err: %v", hop, err)
			continue
		}
		flowInstallCount.Inc()
	}

	// Forward the packet that triggered the path computation
	firstPort := binding.Port
	if len(hops) > 1 {
		firstPort = view[hops[0]][hops[1]]
	}
	if err := sw.SendPacket(firstPort, pkt.data); err != nil {
		log.Errorf("Failed to forward packet on switch %d. Err: %v", sw.DPID(), err)
	}
}
