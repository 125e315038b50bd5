package fabnet

import (
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/contiv/fabnet/pkg/ofctrl"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func apiGet(t *testing.T, server *httptest.Server, path string, out interface{}) *http.Response {
	resp, err := http.Get(server.URL + path)
	require.NoError(t, err)
	defer resp.Body.Close()

	if out != nil && resp.StatusCode == http.StatusOK {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}

	return resp
}

func TestApiEndpoints(t *testing.T) {
	agent := newTestAgent(t, StrategyFatTree)

	dp := &fakeDatapath{}
	agent.Controller().SwitchConnect(1, dp)
	agent.LinkDiscovered(ofctrl.LinkInfo{SrcDPID: 1, SrcPort: 3, DstDPID: 2, DstPort: 1})
	agent.learnHost(net.ParseIP("10.0.0.2"), testMAC(2), 1, 1)

	server := httptest.NewServer(NewApiServer(agent, "").createRouter())
	defer server.Close()

	var status statusResp
	resp := apiGet(t, server, "/status", &status)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 4, status.K)
	assert.Equal(t, StrategyFatTree, status.Strategy)
	assert.Equal(t, STATE_DISCOVERING, status.State)
	assert.Equal(t, 1, status.NumSwitches)
	assert.Equal(t, 20, status.ExpSwitches)
	assert.Equal(t, 1, status.NumHosts)

	var topology map[string]map[string]uint32
	resp = apiGet(t, server, "/topology", &topology)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, uint32(3), topology["1"]["2"])

	var hosts map[string]hostResp
	apiGet(t, server, "/hosts", &hosts)
	require.Contains(t, hosts, "10.0.0.2")
	assert.Equal(t, uint64(1), hosts["10.0.0.2"].DPID)
	assert.Equal(t, testMAC(2).String(), hosts["10.0.0.2"].MAC)

	var switches []switchResp
	apiGet(t, server, "/switches", &switches)
	require.Equal(t, 1, len(switches))
	assert.Equal(t, uint64(1), switches[0].DPID)
	assert.Equal(t, "core", switches[0].Role)
	assert.Equal(t, 1, switches[0].NumFlows, "table-miss rule")

	var flows []ofctrl.FlowEntry
	apiGet(t, server, "/switch/1/flows", &flows)
	require.Equal(t, 1, len(flows))
	assert.Equal(t, uint16(FLOW_MISS_PRIORITY), flows[0].Priority)

	// Unknown and malformed switch ids fail
	resp = apiGet(t, server, "/switch/99/flows", nil)
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	resp = apiGet(t, server, "/switch/bogus/groups", nil)
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)

	// Metrics endpoint answers
	resp = apiGet(t, server, "/metrics", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
