package ofctrl

// This file implements the forwarding graph API for the multipath group
// element. A select group spreads matching traffic over its buckets; an all
// group replicates to every bucket.

type GroupType string

const (
	GroupSelect GroupType = "select"
	GroupAll    GroupType = "all"
)

// Multipath group Fgraph element
type Group struct {
	Switch      *OFSwitch // Switch where this group is installed
	GroupId     uint32    // Group id, scoped to the switch
	GroupType   GroupType // select or all
	isInstalled bool      // Is this installed in the datapath

	Outputs []*Output // Candidate output ports, one bucket each
}

// Fgraph element type for the group
func (self *Group) Type() string {
	return "group"
}

// A flow pointing at a group installs a single group action
func (self *Group) GetActions() []Action {
	return []Action{{Type: ActionTypeGroup, GroupId: self.GroupId}}
}

// Add a new output to the group and install it
func (self *Group) AddOutput(out *Output) error {
	self.Outputs = append(self.Outputs, out)

	// Install in the HW
	return self.install()
}

// Install a group entry on the switch
func (self *Group) install() error {
	groupMod := &GroupMod{
		Command:   CommandAdd,
		GroupId:   self.GroupId,
		GroupType: self.GroupType,
	}

	// Change the OP to modify if it was already installed
	if self.isInstalled {
		groupMod.Command = CommandModify
	}

	// Loop thru all outputs and add a bucket per port
	for _, output := range self.Outputs {
		if act := output.GetOutAction(); act != nil {
			groupMod.Buckets = append(groupMod.Buckets, *act)
		}
	}

	// Send it to the switch
	if err := self.Switch.Send(groupMod); err != nil {
		return err
	}

	// Mark it as installed
	self.isInstalled = true

	return nil
}
