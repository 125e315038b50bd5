package fabsim

// In-process emulated fat-tree fabric. The simulator turns the topology
// model into one emulated switch per switch node and one emulated host per
// server node, wires their ports in the model's order, and drives the
// controller through the device-control boundary: switch connects, link
// observations (both directions) and packet-ins. Emulated switches honor the
// flow and group mods the controller installs, so host-to-host delivery
// exercises the full control loop.

import (
	"fmt"
	"net"
	"sync"
	"sync/atomic"

	"github.com/contiv/fabnet/pkg/fattree"
	"github.com/contiv/fabnet/pkg/ofctrl"

	"github.com/gopacket/gopacket"
	"github.com/gopacket/gopacket/layers"
	log "github.com/sirupsen/logrus"
)

// SimFabric is the emulated fabric
type SimFabric struct {
	topo   *fattree.Fattree
	ctrler *ofctrl.Controller

	switches map[uint64]*SimSwitch
	swOrder  []uint64            // dpids in model order
	hosts    map[string]*SimHost // by harness name (h1..hN)
	hostByIP map[string]*SimHost
	links    []ofctrl.LinkInfo // inter-switch links, one per direction pair

	frameId uint64

	// Frame currently punted to the controller. Packet-outs the controller
	// issues while handling it inherit its visited set, so a flood the
	// controller re-emits cannot revisit a switch the original frame
	// already transited. Only touched on the synchronous packet path.
	curFrame *simFrame
}

// SimHost is one emulated host
type SimHost struct {
	Name string
	IP   net.IP
	MAC  net.HardwareAddr

	fabric     *SimFabric
	attachDpid uint64
	attachPort uint32

	lock  sync.Mutex
	inbox [][]byte
}

// A frame in flight. The visited set stops flood loops.
type simFrame struct {
	id      uint64
	data    []byte
	visited map[uint64]bool
}

// Build the emulated fabric for a topology model
func NewSimFabric(topo *fattree.Fattree) *SimFabric {
	self := &SimFabric{
		topo:     topo,
		switches: make(map[uint64]*SimSwitch),
		hosts:    make(map[string]*SimHost),
		hostByIP: make(map[string]*SimHost),
	}

	// Port numbering on every node follows its edge wiring order, starting
	// at 1. On edge switches this puts hosts on ports 1..k/2 in host index
	// order.
	portOf := func(node *fattree.Node, edge *fattree.Edge) uint32 {
		for i, e := range node.Edges {
			if e == edge {
				return uint32(i + 1)
			}
		}
		return 0
	}

	// Create hosts
	for i, server := range topo.Servers {
		host := &SimHost{
			Name:   fmt.Sprintf("h%d", i+1),
			IP:     fattree.HostIP(server.Pod, server.Pos, server.HostIdx),
			MAC:    fattree.HostMAC(server.Pod, server.Pos, server.HostIdx),
			fabric: self,
		}

		// Every host hangs off exactly one edge switch
		edge := server.Edges[0]
		attach := edge.Peer(server)
		host.attachDpid = uint64(attach.ID)
		host.attachPort = portOf(attach, edge)

		self.hosts[host.Name] = host
		self.hostByIP[host.IP.String()] = host
	}

	// Create switches and wire their ports
	for _, swNode := range topo.Switches {
		sw := newSimSwitch(self, uint64(swNode.ID))
		for _, edge := range swNode.Edges {
			port := portOf(swNode, edge)
			peer := edge.Peer(swNode)

			if peer.Role == fattree.RoleHost {
				host := self.hostByIP[fattree.HostIP(peer.Pod, peer.Pos, peer.HostIdx).String()]
				sw.ports[port] = &simPort{host: host}
			} else {
				sw.ports[port] = &simPort{
					peerDpid: uint64(peer.ID),
					peerPort: portOf(peer, edge),
				}
			}
		}

		self.switches[sw.dpid] = sw
		self.swOrder = append(self.swOrder, sw.dpid)
	}

	// Collect the inter-switch links once each
	for _, edge := range topo.FabricEdges() {
		self.links = append(self.links, ofctrl.LinkInfo{
			SrcDPID: uint64(edge.LNode.ID),
			SrcPort: portOf(edge.LNode, edge),
			DstDPID: uint64(edge.RNode.ID),
			DstPort: portOf(edge.RNode, edge),
		})
	}

	return self
}

// Start connects every emulated switch to the controller and reports every
// fabric link in both directions, the way the discovery protocol observes
// them.
func (self *SimFabric) Start(ctrler *ofctrl.Controller) {
	self.ctrler = ctrler

	for _, dpid := range self.swOrder {
		ctrler.SwitchConnect(dpid, self.switches[dpid])
	}

	for _, link := range self.links {
		ctrler.LinkDiscovered(link)
		ctrler.LinkDiscovered(ofctrl.LinkInfo{
			SrcDPID: link.DstDPID,
			SrcPort: link.DstPort,
			DstDPID: link.SrcDPID,
			DstPort: link.SrcPort,
		})
	}

	log.Infof("Emulated fabric started: %d switches, %d links, %d hosts",
		len(self.switches), len(self.links), len(self.hosts))
}

// Host returns an emulated host by harness name (h1..hN)
func (self *SimFabric) Host(name string) *SimHost {
	return self.hosts[name]
}

// HostByIP returns an emulated host by its address
func (self *SimFabric) HostByIP(ip string) *SimHost {
	return self.hostByIP[ip]
}

// Switch returns an emulated switch by dpid
func (self *SimFabric) Switch(dpid uint64) *SimSwitch {
	return self.switches[dpid]
}

// NumHosts returns the number of emulated hosts
func (self *SimFabric) NumHosts() int {
	return len(self.hosts)
}

func (self *SimFabric) newFrame(data []byte) *simFrame {
	frame := &simFrame{
		id:      atomic.AddUint64(&self.frameId, 1),
		data:    data,
		visited: make(map[uint64]bool),
	}

	// Descendants of a punted frame share its visited set
	if self.curFrame != nil {
		frame.visited = self.curFrame.visited
	}

	return frame
}

// Run the controller packet-in for a frame, marking it as the current frame
// for the duration
func (self *SimFabric) punt(frame *simFrame, dpid uint64, inPort uint32) {
	prev := self.curFrame
	self.curFrame = frame
	self.ctrler.PacketIn(dpid, inPort, frame.data)
	self.curFrame = prev
}

// Inject a frame from a host into its attachment switch
func (self *SimHost) inject(data []byte) {
	sw := self.fabric.switches[self.attachDpid]
	sw.receiveFrame(self.fabric.newFrame(data), self.attachPort)
}

// SendARPRequest emits a broadcast ARP request for the target address
func (self *SimHost) SendARPRequest(dstIP net.IP) error {
	eth := &layers.Ethernet{
		SrcMAC:       self.MAC,
		DstMAC:       net.HardwareAddr{0xff, 0xff, 0xff, 0xff, 0xff, 0xff},
		EthernetType: layers.EthernetTypeARP,
	}
	arp := &layers.ARP{
		AddrType:          layers.LinkTypeEthernet,
		Protocol:          layers.EthernetTypeIPv4,
		HwAddressSize:     6,
		ProtAddressSize:   4,
		Operation:         layers.ARPRequest,
		SourceHwAddress:   []byte(self.MAC),
		SourceProtAddress: []byte(self.IP.To4()),
		DstHwAddress:      make([]byte, 6),
		DstProtAddress:    []byte(dstIP.To4()),
	}

	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true}
	if err := gopacket.SerializeLayers(buf, opts, eth, arp); err != nil {
		return err
	}

	self.inject(buf.Bytes())

	return nil
}

// SendIPPacket emits an IP packet toward the destination address
func (self *SimHost) SendIPPacket(dstIP net.IP, payload []byte) error {
	// The emulated host skips address resolution and addresses the frame
	// to the destination directly
	dstMAC := net.HardwareAddr{0xff, 0xff, 0xff, 0xff, 0xff, 0xff}
	if dst := self.fabric.hostByIP[dstIP.String()]; dst != nil {
		dstMAC = dst.MAC
	}

	eth := &layers.Ethernet{
		SrcMAC:       self.MAC,
		DstMAC:       dstMAC,
		EthernetType: layers.EthernetTypeIPv4,
	}
	ip := &layers.IPv4{
		Version:  4,
		TTL:      64,
		Protocol: layers.IPProtocolUDP,
		SrcIP:    self.IP.To4(),
		DstIP:    dstIP.To4(),
	}

	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}
	if err := gopacket.SerializeLayers(buf, opts, eth, ip, gopacket.Payload(payload)); err != nil {
		return err
	}

	self.inject(buf.Bytes())

	return nil
}

// Deliver a frame to the host
func (self *SimHost) receive(frame *simFrame) {
	self.lock.Lock()
	defer self.lock.Unlock()

	self.inbox = append(self.inbox, frame.data)
}

// NumReceived returns the number of frames delivered to the host
func (self *SimHost) NumReceived() int {
	self.lock.Lock()
	defer self.lock.Unlock()

	return len(self.inbox)
}

// Received returns a copy of the delivered frames
func (self *SimHost) Received() [][]byte {
	self.lock.Lock()
	defer self.lock.Unlock()

	frames := make([][]byte, len(self.inbox))
	copy(frames, self.inbox)

	return frames
}
