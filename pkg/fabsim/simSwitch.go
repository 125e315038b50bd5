package fabsim

// Emulated switch: applies the controller's flow and group mods to its
// tables and forwards frames by table lookup, highest priority first.

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/contiv/fabnet/pkg/ofctrl"

	"github.com/gopacket/gopacket"
	"github.com/gopacket/gopacket/layers"
	log "github.com/sirupsen/logrus"
	"golang.org/x/exp/slices"
)

// One switch port: either a link to a peer switch or a host attachment
type simPort struct {
	peerDpid uint64
	peerPort uint32
	host     *SimHost
}

type simFlow struct {
	priority uint16
	match    ofctrl.FlowMatch
	actions  []ofctrl.Action
}

type simGroup struct {
	groupType ofctrl.GroupType
	buckets   []ofctrl.Action
}

// SimSwitch implements ofctrl.Datapath
type SimSwitch struct {
	fabric *SimFabric
	dpid   uint64

	lock   sync.Mutex
	flowDb map[string]*simFlow
	groups map[uint32]*simGroup
	ports  map[uint32]*simPort
}

func newSimSwitch(fabric *SimFabric, dpid uint64) *SimSwitch {
	return &SimSwitch{
		fabric: fabric,
		dpid:   dpid,
		flowDb: make(map[string]*simFlow),
		groups: make(map[uint32]*simGroup),
		ports:  make(map[uint32]*simPort),
	}
}

// DPID returns the datapath id of the emulated switch
func (self *SimSwitch) DPID() uint64 {
	return self.dpid
}

// Rule identity on the device: the (priority, match) pair
func flowModKey(msg *ofctrl.FlowMod) string {
	jsonVal, _ := json.Marshal(msg.Match)
	return string(jsonVal)
}

// Send applies a control message to the emulated switch
func (self *SimSwitch) Send(msg ofctrl.Message) error {
	switch m := msg.(type) {
	case *ofctrl.FlowMod:
		self.lock.Lock()
		self.flowDb[flowModKey(m)] = &simFlow{
			priority: m.Priority,
			match:    m.Match,
			actions:  m.Actions,
		}
		self.lock.Unlock()

	case *ofctrl.GroupMod:
		self.lock.Lock()
		self.groups[m.GroupId] = &simGroup{
			groupType: m.GroupType,
			buckets:   m.Buckets,
		}
		self.lock.Unlock()

	case *ofctrl.PacketOut:
		frame := self.fabric.newFrame(m.Data)
		self.transmit(frame, m.OutPort, m.InPort)

	default:
		return fmt.Errorf("switch %d: unknown message %T", self.dpid, msg)
	}

	return nil
}

// NumFlows returns the number of rules installed on the device
func (self *SimSwitch) NumFlows() int {
	self.lock.Lock()
	defer self.lock.Unlock()

	return len(self.flowDb)
}

// Look up the highest-priority flow matching a frame. Returns a copy of the
// action list.
func (self *SimSwitch) lookup(inPort uint32, eth *layers.Ethernet, ip *layers.IPv4) []ofctrl.Action {
	self.lock.Lock()
	defer self.lock.Unlock()

	flows := make([]*simFlow, 0, len(self.flowDb))
	for _, flow := range self.flowDb {
		flows = append(flows, flow)
	}
	slices.SortFunc(flows, func(a, b *simFlow) int {
		return int(b.priority) - int(a.priority)
	})

	for _, flow := range flows {
		if flowMatches(&flow.match, inPort, eth, ip) {
			return append([]ofctrl.Action{}, flow.actions...)
		}
	}

	return nil
}

func flowMatches(m *ofctrl.FlowMatch, inPort uint32, eth *layers.Ethernet, ip *layers.IPv4) bool {
	if m.InputPort != 0 && m.InputPort != inPort {
		return false
	}
	if m.Ethertype != 0 && m.Ethertype != uint16(eth.EthernetType) {
		return false
	}
	if m.IpDa != nil {
		if ip == nil {
			return false
		}
		want := m.IpDa.To4()
		have := ip.DstIP.To4()
		if want == nil || have == nil {
			return false
		}
		if m.IpDaMask != nil {
			for i := 0; i < 4; i++ {
				if want[i]&(*m.IpDaMask)[i] != have[i]&(*m.IpDaMask)[i] {
					return false
				}
			}
		} else if !want.Equal(have) {
			return false
		}
	}

	return true
}

// Process a frame arriving on a port
func (self *SimSwitch) receiveFrame(frame *simFrame, inPort uint32) {
	// A frame transits each switch at most once
	if frame.visited[self.dpid] {
		return
	}
	frame.visited[self.dpid] = true

	packet := gopacket.NewPacket(frame.data, layers.LayerTypeEthernet, gopacket.NoCopy)
	ethLayer := packet.Layer(layers.LayerTypeEthernet)
	if ethLayer == nil {
		return
	}
	eth := ethLayer.(*layers.Ethernet)

	var ip *layers.IPv4
	if ipLayer := packet.Layer(layers.LayerTypeIPv4); ipLayer != nil {
		ip = ipLayer.(*layers.IPv4)
	}

	actions := self.lookup(inPort, eth, ip)
	if actions == nil {
		log.Debugf("Switch %d: no rule for frame on port %d, dropping", self.dpid, inPort)
		return
	}

	self.execute(frame, inPort, actions)
}

func (self *SimSwitch) execute(frame *simFrame, inPort uint32, actions []ofctrl.Action) {
	for _, act := range actions {
		switch act.Type {
		case ofctrl.ActionTypeOutput:
			self.transmit(frame, act.Port, inPort)

		case ofctrl.ActionTypeFlood:
			self.transmit(frame, ofctrl.P_FLOOD, inPort)

		case ofctrl.ActionTypeController:
			self.fabric.punt(frame, self.dpid, inPort)

		case ofctrl.ActionTypeGroup:
			self.lock.Lock()
			group := self.groups[act.GroupId]
			self.lock.Unlock()
			if group == nil || len(group.buckets) == 0 {
				log.Warnf("Switch %d: group %d missing or empty", self.dpid, act.GroupId)
				continue
			}

			if group.groupType == ofctrl.GroupAll {
				for _, bucket := range group.buckets {
					self.transmit(frame, bucket.Port, inPort)
				}
			} else {
				// Emulated select group: spread by frame id
				bucket := group.buckets[frame.id%uint64(len(group.buckets))]
				self.transmit(frame, bucket.Port, inPort)
			}
		}
	}
}

// Put a frame on a port. P_FLOOD sends it out of every port except ingress.
func (self *SimSwitch) transmit(frame *simFrame, outPort, inPort uint32) {
	if outPort == ofctrl.P_FLOOD {
		self.lock.Lock()
		ports := make([]uint32, 0, len(self.ports))
		for port := range self.ports {
			if port != inPort {
				ports = append(ports, port)
			}
		}
		self.lock.Unlock()

		for _, port := range ports {
			self.deliver(frame, port)
		}
		return
	}

	self.deliver(frame, outPort)
}

func (self *SimSwitch) deliver(frame *simFrame, outPort uint32) {
	self.lock.Lock()
	port := self.ports[outPort]
	self.lock.Unlock()

	if port == nil {
		log.Debugf("Switch %d: no such port %d", self.dpid, outPort)
		return
	}

	if port.host != nil {
		port.host.receive(frame)
		return
	}

	self.fabric.switches[port.peerDpid].receiveFrame(frame, port.peerPort)
}
