package ofctrl

import (
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Datapath that records every message it is sent
type fakeDatapath struct {
	msgs []Message
}

func (self *fakeDatapath) Send(msg Message) error {
	self.msgs = append(self.msgs, msg)
	return nil
}

func (self *fakeDatapath) lastFlowMod() *FlowMod {
	for i := len(self.msgs) - 1; i >= 0; i-- {
		if fm, ok := self.msgs[i].(*FlowMod); ok {
			return fm
		}
	}
	return nil
}

// App that records controller callbacks
type fakeApp struct {
	connected    []uint64
	disconnected []uint64
	links        []LinkInfo
	packets      []*PacketIn
}

func (self *fakeApp) SwitchConnected(sw *OFSwitch)    { self.connected = append(self.connected, sw.DPID()) }
func (self *fakeApp) SwitchDisconnected(sw *OFSwitch) { self.disconnected = append(self.disconnected, sw.DPID()) }
func (self *fakeApp) LinkDiscovered(link LinkInfo)    { self.links = append(self.links, link) }
func (self *fakeApp) PacketRcvd(sw *OFSwitch, pkt *PacketIn) {
	self.packets = append(self.packets, pkt)
}

func TestFlowInstall(t *testing.T) {
	dp := &fakeDatapath{}
	sw := NewOFSwitch(1, dp)

	ipDa := net.ParseIP("10.1.0.2")
	flow, err := sw.NewFlow(FlowMatch{Priority: 2, Ethertype: 0x0800, IpDa: &ipDa})
	require.NoError(t, err)

	out, err := sw.NewOutputPort(7)
	require.NoError(t, err)
	require.NoError(t, flow.Next(out))

	fm := dp.lastFlowMod()
	require.NotNil(t, fm)
	assert.Equal(t, CommandAdd, fm.Command)
	assert.Equal(t, uint16(2), fm.Priority)
	assert.Equal(t, []Action{{Type: ActionTypeOutput, Port: 7}}, fm.Actions)
	assert.Equal(t, 1, sw.NumFlows())
}

// Installing a flow with the same priority and match replaces the existing
// rule's actions instead of duplicating the rule.
func TestFlowReplaceNotDuplicate(t *testing.T) {
	dp := &fakeDatapath{}
	sw := NewOFSwitch(1, dp)

	ipDa := net.ParseIP("10.1.0.2")
	flow, err := sw.NewFlow(FlowMatch{Priority: 2, Ethertype: 0x0800, IpDa: &ipDa})
	require.NoError(t, err)
	out7, _ := sw.NewOutputPort(7)
	require.NoError(t, flow.Next(out7))

	// Second install of the same key hands back the same entry
	ipDa2 := net.ParseIP("10.1.0.2")
	flow2, err := sw.NewFlow(FlowMatch{Priority: 2, Ethertype: 0x0800, IpDa: &ipDa2})
	require.NoError(t, err)
	assert.Same(t, flow, flow2)

	out9, _ := sw.NewOutputPort(9)
	require.NoError(t, flow2.Next(out9))

	fm := dp.lastFlowMod()
	require.NotNil(t, fm)
	assert.Equal(t, CommandModify, fm.Command)
	assert.Equal(t, []Action{{Type: ActionTypeOutput, Port: 9}}, fm.Actions)
	assert.Equal(t, 1, sw.NumFlows())

	// A different priority with the same match is a different rule
	ipDa3 := net.ParseIP("10.1.0.2")
	flow3, err := sw.NewFlow(FlowMatch{Priority: 1, Ethertype: 0x0800, IpDa: &ipDa3})
	require.NoError(t, err)
	assert.NotSame(t, flow, flow3)
}

// A flow cannot point at a group before the group is on the switch
func TestGroupBeforeFlow(t *testing.T) {
	dp := &fakeDatapath{}
	sw := NewOFSwitch(1, dp)

	group, err := sw.NewGroup(5, GroupSelect)
	require.NoError(t, err)

	flow, err := sw.NewFlow(FlowMatch{Priority: 1, Ethertype: 0x0800})
	require.NoError(t, err)

	err = flow.Next(group)
	assert.ErrorIs(t, err, ErrGroupNotInstalled)

	// Adding an output installs the group; pointing the flow at it now works
	out, _ := sw.NewOutputPort(3)
	require.NoError(t, group.AddOutput(out))
	require.NoError(t, flow.Next(group))

	fm := dp.lastFlowMod()
	require.NotNil(t, fm)
	assert.Equal(t, []Action{{Type: ActionTypeGroup, GroupId: 5}}, fm.Actions)
}

// Each AddOutput reinstalls the group with the grown bucket list
func TestGroupBuckets(t *testing.T) {
	dp := &fakeDatapath{}
	sw := NewOFSwitch(1, dp)

	group, err := sw.NewGroup(1, GroupSelect)
	require.NoError(t, err)

	out2, _ := sw.NewOutputPort(2)
	out3, _ := sw.NewOutputPort(3)
	require.NoError(t, group.AddOutput(out2))
	require.NoError(t, group.AddOutput(out3))

	gm, ok := dp.msgs[len(dp.msgs)-1].(*GroupMod)
	require.True(t, ok)
	assert.Equal(t, CommandModify, gm.Command)
	assert.Equal(t, GroupSelect, gm.GroupType)
	assert.Equal(t, []Action{
		{Type: ActionTypeOutput, Port: 2},
		{Type: ActionTypeOutput, Port: 3},
	}, gm.Buckets)

	// Same id is the same group; a different type for the id is an error
	again, err := sw.NewGroup(1, GroupSelect)
	require.NoError(t, err)
	assert.Same(t, group, again)

	_, err = sw.NewGroup(1, GroupAll)
	assert.Error(t, err)
}

func TestSendOnNilDatapath(t *testing.T) {
	sw := NewOFSwitch(1, nil)

	err := sw.SendPacket(3, []byte{1, 2, 3})
	assert.ErrorIs(t, err, ErrSwitchUnavailable)
}

func TestFloodPacket(t *testing.T) {
	dp := &fakeDatapath{}
	sw := NewOFSwitch(1, dp)

	require.NoError(t, sw.FloodPacket(4, []byte{0xde, 0xad}))

	po, ok := dp.msgs[len(dp.msgs)-1].(*PacketOut)
	require.True(t, ok)
	assert.Equal(t, uint32(4), po.InPort)
	assert.Equal(t, P_FLOOD, po.OutPort)
}

// DumpFlows reports installed rules, highest priority first
func TestDumpFlows(t *testing.T) {
	dp := &fakeDatapath{}
	sw := NewOFSwitch(1, dp)

	missFlow, _ := sw.NewFlow(FlowMatch{Priority: 0})
	require.NoError(t, missFlow.Next(sw.SendToController()))

	ipDa := net.ParseIP("10.0.0.2")
	hostFlow, _ := sw.NewFlow(FlowMatch{Priority: 2, Ethertype: 0x0800, IpDa: &ipDa})
	out, _ := sw.NewOutputPort(1)
	require.NoError(t, hostFlow.Next(out))

	entries := sw.DumpFlows()
	require.Equal(t, 2, len(entries))
	assert.Equal(t, uint16(2), entries[0].Priority)
	assert.Equal(t, uint16(0), entries[1].Priority)
	assert.Equal(t, []Action{{Type: ActionTypeController, Port: P_CONTROLLER}},
		entries[1].Actions)
}

func TestControllerCallbacks(t *testing.T) {
	app := &fakeApp{}
	ctrler := NewController(app)

	dp := &fakeDatapath{}
	sw := ctrler.SwitchConnect(10, dp)
	require.NotNil(t, sw)
	assert.Equal(t, []uint64{10}, app.connected)
	assert.Same(t, sw, ctrler.Switch(10))
	assert.Nil(t, ctrler.Switch(99))

	// A reconnect keeps the handle and fires the callback again
	sw2 := ctrler.SwitchConnect(10, &fakeDatapath{})
	assert.Same(t, sw, sw2)
	assert.Equal(t, []uint64{10, 10}, app.connected)

	link := LinkInfo{SrcDPID: 10, SrcPort: 1, DstDPID: 11, DstPort: 2}
	ctrler.LinkDiscovered(link)
	assert.Equal(t, []LinkInfo{link}, app.links)

	ctrler.PacketIn(10, 3, []byte{0xca, 0xfe})
	require.Equal(t, 1, len(app.packets))
	assert.Equal(t, uint32(3), app.packets[0].InPort)

	// Events for unknown switches are dropped
	ctrler.PacketIn(99, 1, nil)
	assert.Equal(t, 1, len(app.packets))
	ctrler.SwitchDisconnect(99)
	assert.Empty(t, app.disconnected)

	ctrler.SwitchDisconnect(10)
	assert.Equal(t, []uint64{10}, app.disconnected)
}
