package fabnet

import (
	"testing"

	"github.com/contiv/fabnet/pkg/ofctrl"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// One observation registers both directions; re-observing the same link, in
// either direction, changes nothing.
func TestLinkDedup(t *testing.T) {
	agent := newTestAgent(t, StrategyFatTree)

	link := ofctrl.LinkInfo{SrcDPID: 1, SrcPort: 3, DstDPID: 2, DstPort: 1}
	agent.LinkDiscovered(link)
	agent.LinkDiscovered(link)
	agent.LinkDiscovered(ofctrl.LinkInfo{SrcDPID: 2, SrcPort: 1, DstDPID: 1, DstPort: 3})

	_, numLinks := agent.snapshot()
	assert.Equal(t, 1, numLinks)
	assert.Equal(t, 1, len(agent.linkInventory))

	view := agent.TopologyView()
	assert.Equal(t, uint32(3), view[1][2])
	assert.Equal(t, uint32(1), view[2][1])
}

// The rebuild discards the adjacency map and replays the raw inventory, so
// entries with no backing observation disappear.
func TestRebuildLinks(t *testing.T) {
	agent := newTestAgent(t, StrategyFatTree)

	agent.LinkDiscovered(ofctrl.LinkInfo{SrcDPID: 1, SrcPort: 3, DstDPID: 2, DstPort: 1})

	// Pollute the adjacency map behind the inventory's back
	agent.lock.Lock()
	agent.linkDb[1][99] = 7
	agent.lock.Unlock()

	agent.rebuildLinks()

	view := agent.TopologyView()
	assert.Equal(t, uint32(3), view[1][2])
	_, stale := view[1][99]
	assert.False(t, stale, "stale entry must not survive a rebuild")
}

// Readiness requires the discovered counts to match the model exactly
func TestReadiness(t *testing.T) {
	agent := newTestAgent(t, StrategyFatTree)

	expSwitches, expLinks := agent.expectedCounts()
	assert.Equal(t, 20, expSwitches, "k=4 switch count")
	assert.Equal(t, 32, expLinks, "k=4 link count")
	assert.False(t, agent.ready())

	// Register every switch and report every model link
	for _, node := range agent.topo.Switches {
		agent.switchAdd(ofctrl.NewOFSwitch(uint64(node.ID), &fakeDatapath{}))
	}
	assert.False(t, agent.ready(), "links still missing")

	for i, edge := range agent.topo.FabricEdges() {
		agent.LinkDiscovered(ofctrl.LinkInfo{
			SrcDPID: uint64(edge.LNode.ID),
			SrcPort: uint32(i + 1),
			DstDPID: uint64(edge.RNode.ID),
			DstPort: uint32(i + 1),
		})
	}
	assert.True(t, agent.ready())
}

// The topology view is a copy; mutating it does not touch agent state
func TestTopologyViewIsolation(t *testing.T) {
	agent := newTestAgent(t, StrategyFatTree)

	agent.LinkDiscovered(ofctrl.LinkInfo{SrcDPID: 1, SrcPort: 3, DstDPID: 2, DstPort: 1})

	view := agent.TopologyView()
	view[1][2] = 99
	delete(view, 2)

	fresh := agent.TopologyView()
	require.Equal(t, uint32(3), fresh[1][2])
	require.Equal(t, uint32(1), fresh[2][1])
}
