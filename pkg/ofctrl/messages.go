package ofctrl

// Messages exchanged over the device-control channel. The channel is an
// in-process call boundary: the controller builds one of these messages and
// hands it to the switch's Datapath. An emulated datapath applies it to its
// tables; a test datapath records it.

// Reserved port numbers, matching the openflow 1.3 values
const (
	P_FLOOD      uint32 = 0xfffffffb // Output to all ports except ingress
	P_CONTROLLER uint32 = 0xfffffffd // Punt to the controller
)

// Flow/group mod command
type ModCommand int

const (
	CommandAdd ModCommand = iota
	CommandModify
)

// Action types carried in flow mods and group buckets
type ActionType string

const (
	ActionTypeOutput     ActionType = "output"
	ActionTypeGroup      ActionType = "group"
	ActionTypeController ActionType = "toController"
	ActionTypeFlood      ActionType = "flood"
)

// A single action. Port is set for "output", GroupId for "group".
type Action struct {
	Type    ActionType `json:"type"`
	Port    uint32     `json:"port,omitempty"`
	GroupId uint32     `json:"groupId,omitempty"`
}

// Message is one unit sent to a datapath
type Message interface {
	msgType() string
}

// FlowMod installs or replaces a match-action rule. The (priority, match)
// pair identifies the rule; CommandModify replaces the action list of an
// already installed rule.
type FlowMod struct {
	Command  ModCommand
	Priority uint16
	Match    FlowMatch
	Actions  []Action
}

func (self *FlowMod) msgType() string { return "flowMod" }

// GroupMod installs or replaces a multipath group. Each bucket holds one
// output action.
type GroupMod struct {
	Command   ModCommand
	GroupId   uint32
	GroupType GroupType
	Buckets   []Action
}

func (self *GroupMod) msgType() string { return "groupMod" }

// PacketOut asks the switch to emit a packet on a port. OutPort may be
// P_FLOOD.
type PacketOut struct {
	InPort  uint32
	OutPort uint32
	Data    []byte
}

func (self *PacketOut) msgType() string { return "packetOut" }
