package fabnet

// Read-only REST API over the controller state, plus the metrics endpoint.

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
)

type HttpApiFunc func(w http.ResponseWriter, r *http.Request, vars map[string]string) (interface{}, error)

// ApiServer serves controller state over HTTP
type ApiServer struct {
	agent      *FabnetAgent
	listenAddr string
}

// Host binding in API form
type hostResp struct {
	IP   string `json:"ip"`
	MAC  string `json:"mac"`
	DPID uint64 `json:"dpid"`
	Port uint32 `json:"port"`
}

// Per-switch summary in API form
type switchResp struct {
	DPID      uint64 `json:"dpid"`
	Role      string `json:"role"`
	Pod       int    `json:"pod"`
	NumFlows  int    `json:"numFlows"`
	NumGroups int    `json:"numGroups"`
}

// Create the API server
func NewApiServer(agent *FabnetAgent, listenAddr string) *ApiServer {
	return &ApiServer{
		agent:      agent,
		listenAddr: listenAddr,
	}
}

// Serve blocks serving the REST API
func (self *ApiServer) Serve() error {
	router := self.createRouter()

	log.Infof("HTTP server listening on %s", self.listenAddr)

	return http.ListenAndServe(self.listenAddr, router)
}

// Create a router and initialize the routes
func (self *ApiServer) createRouter() *mux.Router {
	// Create a new router instance
	router := mux.NewRouter()

	// List of routes
	routeMap := map[string]map[string]HttpApiFunc{
		"GET": {
			"/status":               self.httpGetStatus,
			"/topology":             self.httpGetTopology,
			"/hosts":                self.httpGetHosts,
			"/switches":             self.httpGetSwitches,
			"/switch/{dpid}/flows":  self.httpGetSwitchFlows,
			"/switch/{dpid}/groups": self.httpGetSwitchGroups,
		},
	}

	// Register each method/path
	for method, routes := range routeMap {
		for route, funct := range routes {
			log.Infof("Registering %s %s", method, route)

			// Create a closure for the handlers
			f := makeHttpHandler(method, route, funct)

			// Register the handler
			router.Path(route).Methods(method).HandlerFunc(f)
		}
	}

	// Prometheus metrics
	router.Path("/metrics").Handler(promhttp.Handler())

	return router
}

// Simple wrapper for http handlers
func makeHttpHandler(localMethod string, localRoute string, handlerFunc HttpApiFunc) http.HandlerFunc {
	// Create a closure and return an anonymous function
	return func(w http.ResponseWriter, r *http.Request) {
		log.Debugf("Calling %s %s", localMethod, localRoute)

		// Call the handler
		resp, err := handlerFunc(w, r, mux.Vars(r))
		if err != nil {
			log.Errorf("Handler for %s %s returned error: %s", localMethod, localRoute, err)
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}

		// Send HTTP response as json
		writeJSON(w, http.StatusOK, resp)
	}
}

// writeJSON writes the value v to the http response stream as json
func writeJSON(w http.ResponseWriter, code int, v interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)

	return json.NewEncoder(w).Encode(v)
}

// Controller status in API form
type statusResp struct {
	K           int    `json:"k"`
	Strategy    string `json:"strategy"`
	State       string `json:"state"`
	NumSwitches int    `json:"numSwitches"`
	ExpSwitches int    `json:"expSwitches"`
	NumLinks    int    `json:"numLinks"`
	ExpLinks    int    `json:"expLinks"`
	NumHosts    int    `json:"numHosts"`
}

// Strategy lifecycle and discovery progress
func (self *ApiServer) httpGetStatus(w http.ResponseWriter, r *http.Request,
	vars map[string]string) (interface{}, error) {
	numSwitches, numLinks := self.agent.snapshot()
	expSwitches, expLinks := self.agent.expectedCounts()

	return statusResp{
		K:           self.agent.cfg.K,
		Strategy:    self.agent.strategy.name(),
		State:       self.agent.strategy.status(),
		NumSwitches: numSwitches,
		ExpSwitches: expSwitches,
		NumLinks:    numLinks,
		ExpLinks:    expLinks,
		NumHosts:    len(self.agent.HostTable()),
	}, nil
}

// Topology view keyed by string dpids
func (self *ApiServer) httpGetTopology(w http.ResponseWriter, r *http.Request,
	vars map[string]string) (interface{}, error) {
	view := self.agent.TopologyView()

	resp := make(map[string]map[string]uint32, len(view))
	for dpid, neighbors := range view {
		entry := make(map[string]uint32, len(neighbors))
		for nbr, port := range neighbors {
			entry[strconv.FormatUint(nbr, 10)] = port
		}
		resp[strconv.FormatUint(dpid, 10)] = entry
	}

	return resp, nil
}

// Learned host table
func (self *ApiServer) httpGetHosts(w http.ResponseWriter, r *http.Request,
	vars map[string]string) (interface{}, error) {
	hosts := self.agent.HostTable()

	resp := make(map[string]hostResp, len(hosts))
	for ip, binding := range hosts {
		resp[ip] = hostResp{
			IP:   binding.IP.String(),
			MAC:  binding.MAC.String(),
			DPID: binding.DPID,
			Port: binding.Port,
		}
	}

	return resp, nil
}

// Registered switches with their model roles
func (self *ApiServer) httpGetSwitches(w http.ResponseWriter, r *http.Request,
	vars map[string]string) (interface{}, error) {
	var resp []switchResp
	for _, sw := range self.agent.switchList() {
		entry := switchResp{
			DPID:      sw.DPID(),
			NumFlows:  sw.NumFlows(),
			NumGroups: len(sw.DumpGroups()),
		}
		if info, ok := self.agent.swInfo[sw.DPID()]; ok {
			entry.Role = string(info.Role)
			entry.Pod = info.Pod
		}
		resp = append(resp, entry)
	}

	return resp, nil
}

func (self *ApiServer) switchFromVars(vars map[string]string) (uint64, error) {
	dpid, err := strconv.ParseUint(vars["dpid"], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("bad dpid %q", vars["dpid"])
	}
	if self.agent.switchByDpid(dpid) == nil {
		return 0, fmt.Errorf("switch %d not connected", dpid)
	}

	return dpid, nil
}

// Flow database of one switch
func (self *ApiServer) httpGetSwitchFlows(w http.ResponseWriter, r *http.Request,
	vars map[string]string) (interface{}, error) {
	dpid, err := self.switchFromVars(vars)
	if err != nil {
		return nil, err
	}

	return self.agent.switchByDpid(dpid).DumpFlows(), nil
}

// Group database of one switch
func (self *ApiServer) httpGetSwitchGroups(w http.ResponseWriter, r *http.Request,
	vars map[string]string) (interface{}, error) {
	dpid, err := self.switchFromVars(vars)
	if err != nil {
		return nil, err
	}

	return self.agent.switchByDpid(dpid).DumpGroups(), nil
}
