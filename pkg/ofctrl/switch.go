package ofctrl

// This file implements the per-switch state: the datapath handle and the
// flow/group databases. The databases give rule installation its idempotence:
// NewFlow on an already known (priority, match) key hands back the existing
// entry, so pointing it at a new element replaces the action list on the
// device instead of duplicating the rule.

import (
	"errors"
	"sync"

	"golang.org/x/exp/slices"
)

var ErrSwitchUnavailable = errors.New("switch datapath unavailable")

type OFSwitch struct {
	dpid uint64
	dp   Datapath

	lock    sync.Mutex
	flowDb  map[string]*Flow
	groupDb map[uint32]*Group

	dropAction   *Output
	sendToCtrler *Output
	floodAction  *Output
}

// Snapshot of one installed flow, for inspection and the status API
type FlowEntry struct {
	Priority uint16    `json:"priority"`
	Match    FlowMatch `json:"match"`
	Actions  []Action  `json:"actions"`
}

// Snapshot of one installed group
type GroupEntry struct {
	GroupId   uint32    `json:"groupId"`
	GroupType GroupType `json:"groupType"`
	Ports     []uint32  `json:"ports"`
}

// Create a new switch handle
func NewOFSwitch(dpid uint64, dp Datapath) *OFSwitch {
	s := new(OFSwitch)
	s.dpid = dpid
	s.dp = dp
	s.flowDb = make(map[string]*Flow)
	s.groupDb = make(map[uint32]*Group)

	// Create the fixed output elements
	s.dropAction = &Output{outputType: "drop"}
	s.sendToCtrler = &Output{outputType: "toController", portNo: P_CONTROLLER}
	s.floodAction = &Output{outputType: "flood", portNo: P_FLOOD}

	return s
}

// Returns the datapath id of the switch
func (self *OFSwitch) DPID() uint64 {
	return self.dpid
}

// Send a message to the switch
func (self *OFSwitch) Send(msg Message) error {
	if self.dp == nil {
		return ErrSwitchUnavailable
	}

	return self.dp.Send(msg)
}

// Return a flow entry for the match. If a flow with the same priority and
// match already exists, the existing entry is returned; installing it again
// replaces its actions.
func (self *OFSwitch) NewFlow(match FlowMatch) (*Flow, error) {
	key := match.flowKey()
	if key == "" {
		return nil, errors.New("invalid flow match")
	}

	self.lock.Lock()
	defer self.lock.Unlock()

	if flow := self.flowDb[key]; flow != nil {
		return flow, nil
	}

	flow := &Flow{
		Switch: self,
		Match:  match,
	}
	self.flowDb[key] = flow

	return flow, nil
}

// Return a multipath group. If the group id is already taken the existing
// group is returned, so each switch owns at most one group per id.
func (self *OFSwitch) NewGroup(groupId uint32, groupType GroupType) (*Group, error) {
	self.lock.Lock()
	defer self.lock.Unlock()

	if group := self.groupDb[groupId]; group != nil {
		if group.GroupType != groupType {
			return nil, errors.New("group exists with different type")
		}
		return group, nil
	}

	group := &Group{
		Switch:    self,
		GroupId:   groupId,
		GroupType: groupType,
	}
	self.groupDb[groupId] = group

	return group, nil
}

// Create a new output graph element for a port
func (self *OFSwitch) NewOutputPort(portNo uint32) (*Output, error) {
	return &Output{outputType: "port", portNo: portNo}, nil
}

// Return the drop graph element
func (self *OFSwitch) DropAction() *Output {
	return self.dropAction
}

// Return the send-to-controller graph element
func (self *OFSwitch) SendToController() *Output {
	return self.sendToCtrler
}

// Return the flood graph element
func (self *OFSwitch) FloodAction() *Output {
	return self.floodAction
}

// Send a packet out of a port on the switch
func (self *OFSwitch) SendPacket(outPort uint32, data []byte) error {
	return self.Send(&PacketOut{
		InPort:  P_CONTROLLER,
		OutPort: outPort,
		Data:    data,
	})
}

// Flood a packet out of all ports on the switch except the ingress port
func (self *OFSwitch) FloodPacket(inPort uint32, data []byte) error {
	return self.Send(&PacketOut{
		InPort:  inPort,
		OutPort: P_FLOOD,
		Data:    data,
	})
}

// Number of flows in the flow database
func (self *OFSwitch) NumFlows() int {
	self.lock.Lock()
	defer self.lock.Unlock()

	return len(self.flowDb)
}

// Snapshot the flow database, highest priority first
func (self *OFSwitch) DumpFlows() []FlowEntry {
	self.lock.Lock()
	defer self.lock.Unlock()

	entries := make([]FlowEntry, 0, len(self.flowDb))
	for _, flow := range self.flowDb {
		entry := FlowEntry{
			Priority: flow.Match.Priority,
			Match:    flow.Match,
		}
		if flow.NextElem != nil {
			entry.Actions = flow.NextElem.GetActions()
		}
		entries = append(entries, entry)
	}

	slices.SortFunc(entries, func(a, b FlowEntry) int {
		return int(b.Priority) - int(a.Priority)
	})

	return entries
}

// Snapshot the group database
func (self *OFSwitch) DumpGroups() []GroupEntry {
	self.lock.Lock()
	defer self.lock.Unlock()

	entries := make([]GroupEntry, 0, len(self.groupDb))
	for _, group := range self.groupDb {
		entry := GroupEntry{
			GroupId:   group.GroupId,
			GroupType: group.GroupType,
		}
		for _, out := range group.Outputs {
			if act := out.GetOutAction(); act != nil {
				entry.Ports = append(entry.Ports, act.Port)
			}
		}
		entries = append(entries, entry)
	}

	slices.SortFunc(entries, func(a, b GroupEntry) int {
		return int(a.GroupId) - int(b.GroupId)
	})

	return entries
}
