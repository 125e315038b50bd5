package fabnet

// Packet dispatcher: the single synchronous entry point for packets punted
// by switches. Discovery frames are discarded, address-resolution queries
// are answered from the host table or flooded, and first IP packets are
// handed to the active routing strategy.

import (
	"net"

	"github.com/contiv/fabnet/pkg/ofctrl"

	"github.com/gopacket/gopacket"
	"github.com/gopacket/gopacket/layers"
	log "github.com/sirupsen/logrus"
)

// Decoded IP packet handed to the routing strategy
type ipPacket struct {
	srcIP net.IP
	dstIP net.IP
	data  []byte // The full original frame
}

// Receive a packet from a switch
func (self *FabnetAgent) PacketRcvd(sw *ofctrl.OFSwitch, pkt *ofctrl.PacketIn) {
	packet := gopacket.NewPacket(pkt.Data, layers.LayerTypeEthernet, gopacket.NoCopy)

	ethLayer := packet.Layer(layers.LayerTypeEthernet)
	if ethLayer == nil {
		log.Debugf("Non-ethernet packet from switch %d, ignoring", sw.DPID())
		return
	}
	eth := ethLayer.(*layers.Ethernet)

	// Ignore link-layer discovery frames
	if eth.EthernetType == layers.EthernetTypeLinkLayerDiscovery {
		packetInCount.WithLabelValues("lldp").Inc()
		return
	}

	if arpLayer := packet.Layer(layers.LayerTypeARP); arpLayer != nil {
		packetInCount.WithLabelValues("arp").Inc()
		self.processArp(sw, pkt.InPort, arpLayer.(*layers.ARP), pkt.Data)
		return
	}

	if ipLayer := packet.Layer(layers.LayerTypeIPv4); ipLayer != nil {
		packetInCount.WithLabelValues("ipv4").Inc()
		ip := ipLayer.(*layers.IPv4)

		// Learn the source host location
		self.learnHost(ip.SrcIP, eth.SrcMAC, sw.DPID(), pkt.InPort)

		self.strategy.ipPacketRcvd(sw, pkt.InPort, &ipPacket{
			srcIP: ip.SrcIP,
			dstIP: ip.DstIP,
			data:  pkt.Data,
		})
		return
	}

	packetInCount.WithLabelValues("other").Inc()
	log.Debugf("Unhandled ethertype %#x from switch %d", uint16(eth.EthernetType), sw.DPID())
}

// Process an address-resolution packet: learn the source, then either
// deliver directly to the known target's attachment point or flood from the
// ingress switch.
func (self *FabnetAgent) processArp(sw *ofctrl.OFSwitch, inPort uint32, arp *layers.ARP, data []byte) {
	srcIp := net.IP(arp.SourceProtAddress)
	srcMac := net.HardwareAddr(arp.SourceHwAddress)
	dstIp := net.IP(arp.DstProtAddress)

	self.learnHost(srcIp, srcMac, sw.DPID(), inPort)

	binding := self.hostLookup(dstIp)
	if binding == nil {
		log.Debugf("ARP target %s unknown, flooding from switch %d", dstIp, sw.DPID())
		if err := sw.FloodPacket(inPort, data); err != nil {
			log.Errorf("Failed to flood ARP on switch %d. Err: %v", sw.DPID(), err)
		}
		return
	}

	dstSw := self.switchByDpid(binding.DPID)
	if dstSw == nil {
		log.Warnf("ARP target switch %d not connected", binding.DPID)
		return
	}

	log.Debugf("ARP target %s known, forwarding to switch %d port %d",
		dstIp, binding.DPID, binding.Port)
	if err := dstSw.SendPacket(binding.Port, data); err != nil {
		log.Errorf("Failed to forward ARP to switch %d. Err: %v", binding.DPID, err)
	}
}
