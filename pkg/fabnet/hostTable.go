package fabnet

// Host learning table. A host binding is created the first time a source
// address is seen and is never updated or evicted: a host that changes its
// attachment point keeps its stale binding.

import (
	"net"

	log "github.com/sirupsen/logrus"
)

// HostBinding ties a host IP to its attachment point
type HostBinding struct {
	IP   net.IP           // Host IP address
	MAC  net.HardwareAddr // Host hardware address
	DPID uint64           // Attachment switch
	Port uint32           // Attachment port on the switch
}

// Learn a host from an observed source address. First seen wins; returns
// true if the binding is new.
func (self *FabnetAgent) learnHost(ip net.IP, mac net.HardwareAddr, dpid uint64, port uint32) bool {
	self.lock.Lock()

	key := ip.String()
	if self.hostDb[key] != nil {
		self.lock.Unlock()
		return false
	}

	self.hostDb[key] = &HostBinding{
		IP:   append(net.IP{}, ip...),
		MAC:  append(net.HardwareAddr{}, mac...),
		DPID: dpid,
		Port: port,
	}
	self.lock.Unlock()

	hostLearnCount.Inc()
	log.Infof("Learned host: IP %s, MAC %s, at switch %d port %d", ip, mac, dpid, port)

	return true
}

// Look up the binding for a host IP, nil if unknown
func (self *FabnetAgent) hostLookup(ip net.IP) *HostBinding {
	self.lock.Lock()
	defer self.lock.Unlock()

	return self.hostDb[ip.String()]
}

// HostTable returns a copy of the learned host bindings keyed by IP
func (self *FabnetAgent) HostTable() map[string]HostBinding {
	self.lock.Lock()
	defer self.lock.Unlock()

	hosts := make(map[string]HostBinding, len(self.hostDb))
	for ip, binding := range self.hostDb {
		hosts[ip] = *binding
	}

	return hosts
}
