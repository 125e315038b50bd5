package ofctrl

// This file implements the forwarding graph API for the flow

import (
	"encoding/json"
	"errors"
	"net"
)

var ErrGroupNotInstalled = errors.New("group referenced before install")

// Subset of match fields this fabric routes on. A nil IpDaMask with a
// non-nil IpDa matches the exact /32.
type FlowMatch struct {
	Priority  uint16
	InputPort uint32
	Ethertype uint16
	IpDa      *net.IP
	IpDaMask  *net.IPMask
}

// String key for the flow. Identifies the rule for replace-not-duplicate
// semantics: two installs with equal priority and match map to one entry.
func (self *FlowMatch) flowKey() string {
	jsonVal, err := json.Marshal(self)
	if err != nil {
		return ""
	}

	return string(jsonVal)
}

// State of a flow entry
type Flow struct {
	Switch      *OFSwitch  // Switch where this flow is installed
	Match       FlowMatch  // Priority and fields to be matched
	NextElem    FgraphElem // Next fw graph element
	isInstalled bool       // Is the flow installed in the switch
}

// Fgraph element type for the flow
func (self *Flow) Type() string {
	return "flow"
}

// Install a flow entry. Re-installing an already installed flow issues a
// modify, replacing the action list on the device.
func (self *Flow) install() error {
	flowMod := &FlowMod{
		Command:  CommandAdd,
		Priority: self.Match.Priority,
		Match:    self.Match,
		Actions:  self.NextElem.GetActions(),
	}
	if self.isInstalled {
		flowMod.Command = CommandModify
	}

	// Send the message
	if err := self.Switch.Send(flowMod); err != nil {
		return err
	}

	// Mark it as installed
	self.isInstalled = true

	return nil
}

// Set the next element in the Fgraph and install the flow. A group element
// must be installed on the switch before a flow can point at it.
func (self *Flow) Next(elem FgraphElem) error {
	if group, ok := elem.(*Group); ok && !group.isInstalled {
		return ErrGroupNotInstalled
	}

	// Set the next element in the graph
	self.NextElem = elem

	// Install the flow entry
	return self.install()
}
