package ofctrl

// This file defines the forwarding graph API.
//
// Example usage
//   hostOut, _ := sw.NewOutputPort(1)
//   hostFlow, _ := sw.NewFlow(FlowMatch{
//                       Priority:  2,
//                       Ethertype: 0x0800,
//                       IpDa:      &hostIp,
//                   })
//   hostFlow.Next(hostOut)
//
//   uplinks, _ := sw.NewGroup(uint32(sw.DPID()), GroupSelect)
//   uplinks.AddOutput(aggOut1)
//   uplinks.AddOutput(aggOut2)
//   dfltFlow, _ := sw.NewFlow(FlowMatch{Priority: 1, Ethertype: 0x0800})
//   dfltFlow.Next(uplinks)

type FgraphElem interface {
	Type() string // Returns the type of fw graph element

	// Returns the action list a flow pointing at this element installs
	GetActions() []Action
}
