package fabnet

// This file implements the fabnet agent: the control plane of a
// software-defined fat-tree fabric. The agent owns the live topology state
// and the host table, receives device events from the controller core, and
// drives one of two routing strategies:
//   - "ft": static two-level fat-tree routing, installed proactively once
//     the fabric is fully discovered
//   - "sp": dynamic shortest-path routing, computed per destination on
//     first-packet events

import (
	"fmt"
	"sync"
	"time"

	"github.com/contiv/fabnet/pkg/fattree"
	"github.com/contiv/fabnet/pkg/ofctrl"

	log "github.com/sirupsen/logrus"
)

// Routing strategy names
const (
	StrategyFatTree      = "ft"
	StrategyShortestPath = "sp"
)

// Flow priorities. Higher priority always wins; rules of equal priority
// never overlap in match scope by construction.
const (
	FLOW_MISS_PRIORITY  = 0 // table miss, punt to controller
	FLOW_ROUTE_PRIORITY = 1 // subnet/default routes and multipath groups
	FLOW_HOST_PRIORITY  = 2 // exact host and edge subnet matches
)

const ETH_TYPE_IP uint16 = 0x0800

// Agent configuration
type Config struct {
	K        int    `yaml:"k"`        // Fat-tree port count
	Strategy string `yaml:"strategy"` // "ft" or "sp"
	ApiAddr  string `yaml:"apiAddr"`  // REST/metrics listen address

	// Background task intervals. Not read from the config file.
	ReadinessInterval   time.Duration `yaml:"-"`
	LinkRefreshInterval time.Duration `yaml:"-"`
	KeepAliveInterval   time.Duration `yaml:"-"`
}

// Default configuration for a k-port fabric
func DefaultConfig(k int) Config {
	return Config{
		K:                   k,
		Strategy:            StrategyFatTree,
		ApiAddr:             ":8500",
		ReadinessInterval:   time.Second,
		LinkRefreshInterval: 5 * time.Second,
		KeepAliveInterval:   15 * time.Second,
	}
}

// A routing strategy plugs into the agent's packet dispatcher and lifecycle
type routingStrategy interface {
	name() string

	// Human-readable lifecycle state for the status API
	status() string

	// Start background tasks on the agent's stop channel and wait group
	start()

	// Called after the agent registered a newly connected switch
	switchConnected(sw *ofctrl.OFSwitch)

	// Called with a first IP packet after the source host was learned
	ipPacketRcvd(sw *ofctrl.OFSwitch, inPort uint32, pkt *ipPacket)
}

// Fabnet agent state
type FabnetAgent struct {
	cfg    Config
	topo   *fattree.Fattree               // Canonical topology model for cfg.K
	swInfo map[uint64]fattree.SwitchInfo  // Static role map derived from the model
	ctrler *ofctrl.Controller             // Controller core feeding this agent

	// Shared mutable state. One coarse lock; held only for map operations.
	lock          sync.Mutex
	switchDb      map[uint64]*ofctrl.OFSwitch  // Registered switches by dpid
	linkDb        map[uint64]map[uint64]uint32 // dpid -> neighbor dpid -> local egress port
	linkInventory []ofctrl.LinkInfo            // Raw observed links, for rebuilds
	hostDb        map[string]*HostBinding      // Learned hosts by IP string

	strategy routingStrategy

	// Background task lifecycle
	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// Create a new fabnet agent and start its background tasks
func NewFabnetAgent(cfg Config) (*FabnetAgent, error) {
	// Build the canonical topology model. Fails on a bad port count before
	// any state exists.
	topo, err := fattree.New(cfg.K)
	if err != nil {
		return nil, err
	}

	agent := new(FabnetAgent)
	agent.cfg = cfg
	agent.topo = topo
	agent.swInfo = topo.SwitchMap()
	agent.switchDb = make(map[uint64]*ofctrl.OFSwitch)
	agent.linkDb = make(map[uint64]map[uint64]uint32)
	agent.hostDb = make(map[string]*HostBinding)
	agent.stopChan = make(chan struct{})

	switch cfg.Strategy {
	case StrategyFatTree:
		agent.strategy = newFtStrategy(agent)
	case StrategyShortestPath:
		agent.strategy = newSpStrategy(agent)
	default:
		return nil, fmt.Errorf("unknown routing strategy %q", cfg.Strategy)
	}

	// Create the controller core
	agent.ctrler = ofctrl.NewController(agent)

	// Start the strategy's background tasks
	agent.strategy.start()

	log.Infof("fabnet agent initialized: k=%d, strategy=%s", cfg.K, agent.strategy.name())

	return agent, nil
}

// Returns the controller core the device channel drives
func (self *FabnetAgent) Controller() *ofctrl.Controller {
	return self.ctrler
}

// Returns the canonical topology model the agent was built for
func (self *FabnetAgent) Topology() *fattree.Fattree {
	return self.topo
}

// Stop signals all background tasks and waits for them to exit
func (self *FabnetAgent) Stop() {
	self.stopOnce.Do(func() {
		close(self.stopChan)
	})
	self.wg.Wait()

	log.Infof("fabnet agent stopped")
}

// Handle switch connected event
func (self *FabnetAgent) SwitchConnected(sw *ofctrl.OFSwitch) {
	log.Infof("Switch %d connected", sw.DPID())

	self.switchAdd(sw)

	// Install the table-miss rule so first packets reach the controller
	missFlow, err := sw.NewFlow(ofctrl.FlowMatch{Priority: FLOW_MISS_PRIORITY})
	if err == nil {
		err = missFlow.Next(sw.SendToController())
	}
	if err != nil {
		log.Errorf("Failed to install table-miss rule on switch %d. Err: %v", sw.DPID(), err)
	} else {
		flowInstallCount.Inc()
	}

	self.strategy.switchConnected(sw)
}

// Handle switch disconnect event. State is kept; the fabric does not handle
// device removal.
func (self *FabnetAgent) SwitchDisconnected(sw *ofctrl.OFSwitch) {
	log.Infof("Switch %d disconnected", sw.DPID())
}

// Handle an observed link
func (self *FabnetAgent) LinkDiscovered(link ofctrl.LinkInfo) {
	self.linkAdd(link)
}
