package fattree

// Address assignment for fat-tree hosts. The scheme follows the original
// fat-tree paper: host addresses are 10.<pod>.<edge switch>.<2 + host index>,
// so an edge switch owns the /24 10.<pod>.<pos>.0/24 and a pod owns the /16
// 10.<pod>.0.0/16. The routing engine depends on these prefixes bit-exact.

import (
	"net"
)

// HostIP returns the address of host hostIdx on the edge switch at position
// edgePos in the given pod.
func HostIP(pod, edgePos, hostIdx int) net.IP {
	return net.IPv4(10, byte(pod), byte(edgePos), byte(2+hostIdx))
}

// EdgeSubnet returns the /24 owned by the edge switch at position edgePos in
// the given pod.
func EdgeSubnet(pod, edgePos int) *net.IPNet {
	return &net.IPNet{
		IP:   net.IPv4(10, byte(pod), byte(edgePos), 0),
		Mask: net.CIDRMask(24, 32),
	}
}

// PodSupernet returns the /16 covering all hosts in the given pod.
func PodSupernet(pod int) *net.IPNet {
	return &net.IPNet{
		IP:   net.IPv4(10, byte(pod), 0, 0),
		Mask: net.CIDRMask(16, 32),
	}
}

// HostMAC returns a deterministic hardware address for a host, derived from
// its position in the tree the same way the emulation harness numbers
// auto-assigned MACs.
func HostMAC(pod, edgePos, hostIdx int) net.HardwareAddr {
	return net.HardwareAddr{0x00, 0x00, 0x0a, byte(pod), byte(edgePos), byte(2 + hostIdx)}
}
