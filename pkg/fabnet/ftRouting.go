package fabnet

// Static two-level fat-tree routing. A readiness watcher polls the live
// topology state until the discovered switch and link counts match the
// model, then installs the full rule set once and retires. Traffic going up
// is spread over every candidate uplink with a select group; traffic going
// down always has a unique path, so downward rules are plain outputs.

import (
	"fmt"
	"time"

	"github.com/contiv/fabnet/pkg/fattree"
	"github.com/contiv/fabnet/pkg/libfsm"
	"github.com/contiv/fabnet/pkg/ofctrl"

	log "github.com/sirupsen/logrus"
)

// Convergence lifecycle states
const (
	STATE_DISCOVERING = "discovering"
	STATE_CONVERGED   = "converged"
)

const EVENT_READY = "ready"

type ftStrategy struct {
	agent *FabnetAgent
	fsm   *libfsm.Fsm // Convergence lifecycle
}

func newFtStrategy(agent *FabnetAgent) *ftStrategy {
	self := &ftStrategy{agent: agent}

	// Proactive installation is the transition out of discovery. A failed
	// installation keeps the strategy in discovering.
	self.fsm = libfsm.NewFsm(libfsm.FsmTable{
		{CurrState: STATE_DISCOVERING, EventName: EVENT_READY, NewState: STATE_CONVERGED,
			Callback: func(e libfsm.Event) error { return self.installProactiveFlows() }},
	}, STATE_DISCOVERING)

	return self
}

func (self *ftStrategy) name() string {
	return StrategyFatTree
}

func (self *ftStrategy) status() string {
	return self.fsm.State()
}

func (self *ftStrategy) start() {
	self.agent.wg.Add(1)
	go self.readinessWatcher()
}

func (self *ftStrategy) switchConnected(sw *ofctrl.OFSwitch) {
	// Proactive installation waits for full discovery; nothing per switch
}

// All IP routing is installed proactively. An IP packet reaching the
// controller means the fabric has not converged yet; it is dropped.
func (self *ftStrategy) ipPacketRcvd(sw *ofctrl.OFSwitch, inPort uint32, pkt *ipPacket) {
	log.Debugf("Dropping IP packet for %s on switch %d: proactive flows not installed yet",
		pkt.dstIP, sw.DPID())
}

// Poll the live topology state until the fabric is fully discovered, then
// install all proactive flows and retire. The watcher never re-arms, even if
// links change later.
func (self *ftStrategy) readinessWatcher() {
	defer self.agent.wg.Done()

	ticker := time.NewTicker(self.agent.cfg.ReadinessInterval)
	defer ticker.Stop()

	for {
		select {
		case <-self.agent.stopChan:
			return

		case <-ticker.C:
			if !self.agent.ready() {
				continue
			}

			numSwitches, numLinks := self.agent.snapshot()
			log.Infof("All %d switches and %d links discovered. Installing proactive flows",
				numSwitches, numLinks)

			if err := self.fsm.FsmEvent(libfsm.Event{EventName: EVENT_READY}); err != nil {
				log.Errorf("Error during proactive flow installation: %v", err)
				return
			}

			log.Infof("Proactive flow installation complete")
			return
		}
	}
}

// Install the two-level routing rules on every switch. Not transactional:
// on the first failing switch the remaining switches are skipped and the
// fabric is left partially configured.
func (self *ftStrategy) installProactiveFlows() error {
	view := self.agent.TopologyView()

	for _, sw := range self.agent.switchList() {
		info, ok := self.agent.swInfo[sw.DPID()]
		if !ok {
			log.Warnf("Switch %d is not part of the fat-tree model, skipping", sw.DPID())
			continue
		}

		var err error
		switch info.Role {
		case fattree.RoleEdge:
			err = self.installEdgeFlows(sw, info, view)
		case fattree.RoleAggregation:
			err = self.installAggFlows(sw, info, view)
		case fattree.RoleCore:
			err = self.installCoreFlows(sw, view)
		}

		if err != nil {
			return fmt.Errorf("switch %d: %w", sw.DPID(), err)
		}
	}

	return nil
}

// Edge switch rules: exact match per locally attached host going down,
// one select group over all aggregation uplinks for everything else.
func (self *ftStrategy) installEdgeFlows(sw *ofctrl.OFSwitch, info fattree.SwitchInfo,
	view map[uint64]map[uint64]uint32) error {
	radix := self.agent.cfg.K / 2

	// Local hosts occupy ports 1..k/2 in host index order
	for i := 0; i < radix; i++ {
		hostIp := fattree.HostIP(info.Pod, info.Pos, i)

		flow, err := sw.NewFlow(ofctrl.FlowMatch{
			Priority:  FLOW_HOST_PRIORITY,
			Ethertype: ETH_TYPE_IP,
			IpDa:      &hostIp,
		})
		if err != nil {
			return err
		}

		outPort, _ := sw.NewOutputPort(uint32(i + 1))
		if err := flow.Next(outPort); err != nil {
			return err
		}
		flowInstallCount.Inc()
	}

	return self.installUplinkGroup(sw, view, fattree.RoleAggregation)
}

// Aggregation switch rules: edge subnet per local edge switch going down,
// one select group over all core uplinks for everything else.
func (self *ftStrategy) installAggFlows(sw *ofctrl.OFSwitch, info fattree.SwitchInfo,
	view map[uint64]map[uint64]uint32) error {
	for _, nbr := range sortedNeighbors(view, sw.DPID()) {
		nbrInfo, ok := self.agent.swInfo[nbr]
		if !ok || nbrInfo.Role != fattree.RoleEdge {
			continue
		}

		subnet := fattree.EdgeSubnet(nbrInfo.Pod, nbrInfo.Pos)
		flow, err := sw.NewFlow(ofctrl.FlowMatch{
			Priority:  FLOW_HOST_PRIORITY,
			Ethertype: ETH_TYPE_IP,
			IpDa:      &subnet.IP,
			IpDaMask:  &subnet.Mask,
		})
		if err != nil {
			return err
		}

		outPort, _ := sw.NewOutputPort(view[sw.DPID()][nbr])
		if err := flow.Next(outPort); err != nil {
			return err
		}
		flowInstallCount.Inc()
	}

	return self.installUplinkGroup(sw, view, fattree.RoleCore)
}

// Install the upward multipath group and the catch-all rule pointing at it.
// The group id is the switch's own dpid: every edge and aggregation switch
// owns exactly one group.
func (self *ftStrategy) installUplinkGroup(sw *ofctrl.OFSwitch,
	view map[uint64]map[uint64]uint32, uplinkRole fattree.NodeRole) error {
	group, err := sw.NewGroup(uint32(sw.DPID()), ofctrl.GroupSelect)
	if err != nil {
		return err
	}

	numUplinks := 0
	for _, nbr := range sortedNeighbors(view, sw.DPID()) {
		nbrInfo, ok := self.agent.swInfo[nbr]
		if !ok || nbrInfo.Role != uplinkRole {
			continue
		}

		outPort, _ := sw.NewOutputPort(view[sw.DPID()][nbr])
		if err := group.AddOutput(outPort); err != nil {
			return err
		}
		numUplinks++
	}

	if numUplinks == 0 {
		log.Warnf("Switch %d has no %s uplinks, skipping default route", sw.DPID(), uplinkRole)
		return nil
	}
	groupInstallCount.Inc()

	dfltFlow, err := sw.NewFlow(ofctrl.FlowMatch{
		Priority:  FLOW_ROUTE_PRIORITY,
		Ethertype: ETH_TYPE_IP,
	})
	if err != nil {
		return err
	}
	if err := dfltFlow.Next(group); err != nil {
		return err
	}
	flowInstallCount.Inc()

	return nil
}

// Core switch rules: one route per pod supernet. With a single port toward
// the pod the rule is a plain output; should several ports reach one pod,
// they are spread with a select group keyed by the pod number.
func (self *ftStrategy) installCoreFlows(sw *ofctrl.OFSwitch,
	view map[uint64]map[uint64]uint32) error {
	// Collect the ports reaching each pod
	podPorts := make(map[int][]uint32)
	for _, nbr := range sortedNeighbors(view, sw.DPID()) {
		nbrInfo, ok := self.agent.swInfo[nbr]
		if !ok || nbrInfo.Pod < 0 {
			continue
		}
		podPorts[nbrInfo.Pod] = append(podPorts[nbrInfo.Pod], view[sw.DPID()][nbr])
	}

	for pod := 0; pod < self.agent.cfg.K; pod++ {
		ports := podPorts[pod]
		if len(ports) == 0 {
			log.Warnf("Core switch %d has no port toward pod %d", sw.DPID(), pod)
			continue
		}

		supernet := fattree.PodSupernet(pod)
		flow, err := sw.NewFlow(ofctrl.FlowMatch{
			Priority:  FLOW_ROUTE_PRIORITY,
			Ethertype: ETH_TYPE_IP,
			IpDa:      &supernet.IP,
			IpDaMask:  &supernet.Mask,
		})
		if err != nil {
			return err
		}

		var next ofctrl.FgraphElem
		if len(ports) == 1 {
			next, _ = sw.NewOutputPort(ports[0])
		} else {
			group, err := sw.NewGroup(uint32(pod), ofctrl.GroupSelect)
			if err != nil {
				return err
			}
			for _, port := range ports {
				outPort, _ := sw.NewOutputPort(port)
				if err := group.AddOutput(outPort); err != nil {
					return err
				}
			}
			groupInstallCount.Inc()
			next = group
		}

		if err := flow.Next(next); err != nil {
			return err
		}
		flowInstallCount.Inc()
	}

	return nil
}
