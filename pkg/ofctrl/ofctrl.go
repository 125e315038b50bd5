package ofctrl

// This library implements a simple match-action fabric controller core.
// Devices announce themselves on a device-control channel; the controller
// keeps a handle per switch and forwards connect, link and packet events to
// the registered application.

import (
	"sync"

	log "github.com/sirupsen/logrus"
)

// Datapath is the controller's handle to one switch's control channel.
// A failed Send means the device is unavailable; the caller logs and skips.
type Datapath interface {
	Send(msg Message) error
}

// PacketIn is a packet punted to the controller
type PacketIn struct {
	InPort uint32
	Data   []byte
}

// LinkInfo describes one observed unidirectional link
type LinkInfo struct {
	SrcDPID uint64
	SrcPort uint32
	DstDPID uint64
	DstPort uint32
}

// Applications implement this interface to receive controller events
type AppInterface interface {
	SwitchConnected(sw *OFSwitch)
	SwitchDisconnected(sw *OFSwitch)
	LinkDiscovered(link LinkInfo)
	PacketRcvd(sw *OFSwitch, pkt *PacketIn)
}

type Controller struct {
	app AppInterface

	lock     sync.Mutex
	switchDb map[uint64]*OFSwitch
}

// Create a new controller
func NewController(app AppInterface) *Controller {
	c := new(Controller)

	// Save the handler
	c.app = app
	c.switchDb = make(map[uint64]*OFSwitch)

	return c
}

// Handle a device connect. Registers the switch handle and notifies the
// application. A reconnecting switch keeps its handle and gets the new
// datapath.
func (self *Controller) SwitchConnect(dpid uint64, dp Datapath) *OFSwitch {
	self.lock.Lock()
	sw := self.switchDb[dpid]
	if sw == nil {
		log.Infof("Connection from new switch: %d", dpid)
		sw = NewOFSwitch(dpid, dp)
		self.switchDb[dpid] = sw
	} else {
		log.Infof("Connection from known switch: %d", dpid)
		sw.dp = dp
	}
	self.lock.Unlock()

	// Send connection up callback
	self.app.SwitchConnected(sw)

	return sw
}

// Handle a device disconnect. The handle stays registered; flows survive a
// control channel bounce.
func (self *Controller) SwitchDisconnect(dpid uint64) {
	self.lock.Lock()
	sw := self.switchDb[dpid]
	self.lock.Unlock()

	if sw == nil {
		log.Warnf("Disconnect from unknown switch: %d", dpid)
		return
	}

	self.app.SwitchDisconnected(sw)
}

// Handle an observed link. Links are reported per direction; deduplication
// is the application's concern.
func (self *Controller) LinkDiscovered(link LinkInfo) {
	self.app.LinkDiscovered(link)
}

// Handle a packet punted by a switch
func (self *Controller) PacketIn(dpid uint64, inPort uint32, data []byte) {
	self.lock.Lock()
	sw := self.switchDb[dpid]
	self.lock.Unlock()

	if sw == nil {
		log.Warnf("Packet-in from unknown switch: %d", dpid)
		return
	}

	self.app.PacketRcvd(sw, &PacketIn{InPort: inPort, Data: data})
}

// Returns the switch handle for a dpid, nil if the switch never connected
func (self *Controller) Switch(dpid uint64) *OFSwitch {
	self.lock.Lock()
	defer self.lock.Unlock()

	return self.switchDb[dpid]
}
