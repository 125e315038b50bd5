package fabnet

// Live topology state: the switch registry and the adjacency map, fed by
// device-connect and link-observed events. All access goes through the
// agent's lock; callers get copies, never the inner maps.

import (
	"github.com/contiv/fabnet/pkg/fattree"
	"github.com/contiv/fabnet/pkg/ofctrl"

	log "github.com/sirupsen/logrus"
	"golang.org/x/exp/slices"
)

// Register a connected switch and initialize its neighbor map
func (self *FabnetAgent) switchAdd(sw *ofctrl.OFSwitch) {
	self.lock.Lock()
	defer self.lock.Unlock()

	dpid := sw.DPID()
	self.switchDb[dpid] = sw
	if self.linkDb[dpid] == nil {
		self.linkDb[dpid] = make(map[uint64]uint32)
	}
}

// Record an observed link. One observation registers both directions;
// observing the same link again, in either direction, is a no-op.
func (self *FabnetAgent) linkAdd(link ofctrl.LinkInfo) {
	self.lock.Lock()
	defer self.lock.Unlock()

	if self.linkAddLocked(link) {
		self.linkInventory = append(self.linkInventory, link)
		log.Infof("Discovered link: %d:%d <-> %d:%d",
			link.SrcDPID, link.SrcPort, link.DstDPID, link.DstPort)
	}
}

// Insert one link into the adjacency map. Returns true if the link was new.
// Caller must hold the lock.
func (self *FabnetAgent) linkAddLocked(link ofctrl.LinkInfo) bool {
	if self.linkDb[link.SrcDPID] == nil {
		self.linkDb[link.SrcDPID] = make(map[uint64]uint32)
	}
	if self.linkDb[link.DstDPID] == nil {
		self.linkDb[link.DstDPID] = make(map[uint64]uint32)
	}

	_, known := self.linkDb[link.SrcDPID][link.DstDPID]

	self.linkDb[link.SrcDPID][link.DstDPID] = link.SrcPort
	self.linkDb[link.DstDPID][link.SrcDPID] = link.DstPort

	return !known
}

// Discard the adjacency map and rebuild it from the raw link inventory.
// The dynamic strategy runs this on every switch connect, trading
// recomputation for freedom from stale entries.
func (self *FabnetAgent) rebuildLinks() {
	self.lock.Lock()
	defer self.lock.Unlock()

	for dpid := range self.linkDb {
		self.linkDb[dpid] = make(map[uint64]uint32)
	}

	for _, link := range self.linkInventory {
		self.linkAddLocked(link)
	}
}

// Take a consistent snapshot of (registered switch count, unique undirected
// link count)
func (self *FabnetAgent) snapshot() (int, int) {
	self.lock.Lock()
	defer self.lock.Unlock()

	// Both directions are always registered together, so counting ordered
	// pairs once counts undirected links
	numLinks := 0
	for src, neighbors := range self.linkDb {
		for dst := range neighbors {
			if src < dst {
				numLinks++
			}
		}
	}

	return len(self.switchDb), numLinks
}

// Expected counts for full discovery of the configured fabric
func (self *FabnetAgent) expectedCounts() (int, int) {
	return fattree.NumSwitches(self.cfg.K), fattree.NumFabricLinks(self.cfg.K)
}

// Readiness predicate: discovered counts match the topology model
func (self *FabnetAgent) ready() bool {
	numSwitches, numLinks := self.snapshot()
	expSwitches, expLinks := self.expectedCounts()

	return numSwitches == expSwitches && numLinks == expLinks
}

// TopologyView returns a copy of the adjacency map: dpid to
// {neighbor dpid -> local egress port}. This is the single source of truth
// the routing strategies read.
func (self *FabnetAgent) TopologyView() map[uint64]map[uint64]uint32 {
	self.lock.Lock()
	defer self.lock.Unlock()

	view := make(map[uint64]map[uint64]uint32, len(self.linkDb))
	for dpid, neighbors := range self.linkDb {
		view[dpid] = make(map[uint64]uint32, len(neighbors))
		for nbr, port := range neighbors {
			view[dpid][nbr] = port
		}
	}

	return view
}

// Returns the registered switches sorted by dpid
func (self *FabnetAgent) switchList() []*ofctrl.OFSwitch {
	self.lock.Lock()
	defer self.lock.Unlock()

	dpids := make([]uint64, 0, len(self.switchDb))
	for dpid := range self.switchDb {
		dpids = append(dpids, dpid)
	}
	slices.Sort(dpids)

	switches := make([]*ofctrl.OFSwitch, 0, len(dpids))
	for _, dpid := range dpids {
		switches = append(switches, self.switchDb[dpid])
	}

	return switches
}

// Returns the switch handle for a dpid, nil if not registered
func (self *FabnetAgent) switchByDpid(dpid uint64) *ofctrl.OFSwitch {
	self.lock.Lock()
	defer self.lock.Unlock()

	return self.switchDb[dpid]
}

// Sorted neighbor dpids of a switch in a topology view
func sortedNeighbors(view map[uint64]map[uint64]uint32, dpid uint64) []uint64 {
	neighbors := make([]uint64, 0, len(view[dpid]))
	for nbr := range view[dpid] {
		neighbors = append(neighbors, nbr)
	}
	slices.Sort(neighbors)

	return neighbors
}
