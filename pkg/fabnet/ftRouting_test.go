package fabnet

import (
	"testing"
	"time"

	"github.com/contiv/fabnet/pkg/libfsm"
	"github.com/contiv/fabnet/pkg/ofctrl"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Smallest fat-tree, driven by hand. Construction order gives:
// core=1, pod0 agg=2, pod0 edge=3, pod1 agg=5, pod1 edge=6 (4 and 7 are the
// hosts). Port numbering follows each node's wiring order, hosts first on
// edge switches.
func newK2TestFabric(t *testing.T) (*FabnetAgent, map[uint64]*fakeDatapath) {
	cfg := DefaultConfig(2)
	// Keep the watcher dormant; the test drives installation directly
	cfg.ReadinessInterval = time.Hour

	agent, err := NewFabnetAgent(cfg)
	require.NoError(t, err)
	t.Cleanup(agent.Stop)

	dps := make(map[uint64]*fakeDatapath)
	for _, dpid := range []uint64{1, 2, 3, 5, 6} {
		dps[dpid] = &fakeDatapath{}
		agent.Controller().SwitchConnect(dpid, dps[dpid])
	}

	for _, link := range []ofctrl.LinkInfo{
		{SrcDPID: 3, SrcPort: 2, DstDPID: 2, DstPort: 1}, // edge0 - agg0
		{SrcDPID: 2, SrcPort: 2, DstDPID: 1, DstPort: 1}, // agg0 - core
		{SrcDPID: 6, SrcPort: 2, DstDPID: 5, DstPort: 1}, // edge1 - agg1
		{SrcDPID: 5, SrcPort: 2, DstDPID: 1, DstPort: 2}, // agg1 - core
	} {
		agent.LinkDiscovered(link)
	}

	return agent, dps
}

func TestFtProactiveInstall(t *testing.T) {
	agent, dps := newK2TestFabric(t)
	require.True(t, agent.ready())

	// Full discovery drives the convergence machine through installation
	ft := agent.strategy.(*ftStrategy)
	assert.Equal(t, STATE_DISCOVERING, ft.status())
	require.NoError(t, ft.fsm.FsmEvent(libfsm.Event{EventName: EVENT_READY}))
	assert.Equal(t, STATE_CONVERGED, ft.status())

	// Edge switch in pod 0: miss rule, exact host rule, uplink catch-all
	edgeMods := dps[3].flowMods()
	require.Equal(t, 3, len(edgeMods))

	hostMod := edgeMods[1]
	assert.Equal(t, uint16(FLOW_HOST_PRIORITY), hostMod.Priority)
	assert.Equal(t, "10.0.0.2", hostMod.Match.IpDa.String())
	assert.Equal(t, []ofctrl.Action{{Type: ofctrl.ActionTypeOutput, Port: 1}}, hostMod.Actions)

	dfltMod := edgeMods[2]
	assert.Equal(t, uint16(FLOW_ROUTE_PRIORITY), dfltMod.Priority)
	assert.Equal(t, ETH_TYPE_IP, dfltMod.Match.Ethertype)
	assert.Nil(t, dfltMod.Match.IpDa, "catch-all must not match a destination")
	assert.Equal(t, []ofctrl.Action{{Type: ofctrl.ActionTypeGroup, GroupId: 3}}, dfltMod.Actions)

	// The edge uplink group spreads over the aggregation port
	var edgeGroups []*ofctrl.GroupMod
	for _, msg := range dps[3].msgs {
		if gm, ok := msg.(*ofctrl.GroupMod); ok {
			edgeGroups = append(edgeGroups, gm)
		}
	}
	require.Equal(t, 1, len(edgeGroups))
	assert.Equal(t, ofctrl.GroupSelect, edgeGroups[0].GroupType)
	assert.Equal(t, []ofctrl.Action{{Type: ofctrl.ActionTypeOutput, Port: 2}},
		edgeGroups[0].Buckets)

	// Aggregation switch in pod 0: edge subnet down, core catch-all up
	aggMods := dps[2].flowMods()
	require.Equal(t, 3, len(aggMods))

	subnetMod := aggMods[1]
	assert.Equal(t, uint16(FLOW_HOST_PRIORITY), subnetMod.Priority)
	assert.Equal(t, "10.0.0.0", subnetMod.Match.IpDa.String())
	require.NotNil(t, subnetMod.Match.IpDaMask)
	ones, _ := subnetMod.Match.IpDaMask.Size()
	assert.Equal(t, 24, ones)
	assert.Equal(t, []ofctrl.Action{{Type: ofctrl.ActionTypeOutput, Port: 1}}, subnetMod.Actions)

	// Core switch: one pod supernet route per pod, plain outputs since a
	// single port reaches each pod
	coreMods := dps[1].flowMods()
	require.Equal(t, 3, len(coreMods))

	for i, pod := 1, 0; i < 3; i, pod = i+1, pod+1 {
		mod := coreMods[i]
		assert.Equal(t, uint16(FLOW_ROUTE_PRIORITY), mod.Priority)
		assert.Equal(t, byte(pod), mod.Match.IpDa.To4()[1], "pod byte")
		ones, _ := mod.Match.IpDaMask.Size()
		assert.Equal(t, 16, ones)
		assert.Equal(t, []ofctrl.Action{{Type: ofctrl.ActionTypeOutput, Port: uint32(pod + 1)}},
			mod.Actions)
	}
}

// Re-running the installer replaces every rule in place: the second pass
// issues modifies, never duplicates.
func TestFtReinstallIdempotent(t *testing.T) {
	agent, dps := newK2TestFabric(t)

	ft := agent.strategy.(*ftStrategy)
	require.NoError(t, ft.installProactiveFlows())

	numMods := len(dps[3].flowMods())

	require.NoError(t, ft.installProactiveFlows())

	mods := dps[3].flowMods()
	require.Equal(t, 2*numMods, len(mods))
	for _, mod := range mods[numMods:] {
		assert.Equal(t, ofctrl.CommandModify, mod.Command,
			"reinstall must modify, not add")
	}

	// The controller-side database holds each rule once
	sw := agent.Controller().Switch(3)
	assert.Equal(t, numMods, sw.NumFlows())
}
