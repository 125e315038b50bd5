package fattree

// This file implements the canonical k-ary fat-tree topology model.
// A fat-tree built from k-port switches has (k/2)^2 core switches and k pods,
// each pod holding k/2 aggregation and k/2 edge switches, with k/2 hosts
// hanging off every edge switch. The model is purely structural: it is
// consumed once by the emulation harness and by the static routing engine to
// derive expected switch/link counts and per-switch roles.

import (
	"errors"
)

// Role of a node in the fat-tree
type NodeRole string

const (
	RoleCore        NodeRole = "core"
	RoleAggregation NodeRole = "aggregation"
	RoleEdge        NodeRole = "edge"
	RoleHost        NodeRole = "host"
)

// Topology generation errors
var (
	ErrOddPortCount      = errors.New("fat-tree port count must be even")
	ErrPortCountTooSmall = errors.New("fat-tree port count must be at least 2")
)

// Edge is an undirected link between two nodes. Each edge appears exactly
// once in the model regardless of which endpoint created it.
type Edge struct {
	LNode *Node
	RNode *Node
}

// Peer returns the other endpoint of the edge
func (self *Edge) Peer(node *Node) *Node {
	if self.LNode == node {
		return self.RNode
	}
	return self.LNode
}

// Node is a switch or host in the fat-tree graph
type Node struct {
	ID   int      // Dense 1-based id, assigned in construction order
	Role NodeRole // core, aggregation, edge or host

	Pod     int // Pod index. -1 for core switches
	Pos     int // Position within the pod layer. For hosts, the edge switch index
	HostIdx int // Index of the host on its edge switch. -1 for switches

	Edges []*Edge // Incident edges, in wiring order
}

// Add an edge connecting this node to a peer
func (self *Node) AddEdge(peer *Node) *Edge {
	edge := &Edge{
		LNode: self,
		RNode: peer,
	}

	self.Edges = append(self.Edges, edge)
	peer.Edges = append(peer.Edges, edge)

	return edge
}

// Check if a node is directly connected to a peer
func (self *Node) IsNeighbor(peer *Node) bool {
	for _, edge := range self.Edges {
		if edge.LNode == peer || edge.RNode == peer {
			return true
		}
	}

	return false
}

// SwitchInfo describes the role a switch plays in the fabric. This is the
// static map the routing engine consults when it translates topology roles
// into flow rules.
type SwitchInfo struct {
	Role NodeRole
	Pod  int // -1 for core switches
	Pos  int // Position within the pod layer. Unused for core switches
}

// Fattree holds the generated graph: ordered host nodes and ordered switch
// nodes, core switches first, then per-pod aggregation and edge switches.
type Fattree struct {
	K        int     // Switch port count the tree was built for
	Servers  []*Node // All host nodes, in construction order
	Switches []*Node // All switch nodes, in construction order
}

// Expected element counts for a k-ary fat-tree
func NumCoreSwitches(k int) int { return (k / 2) * (k / 2) }
func NumAggSwitches(k int) int  { return k * k / 2 }
func NumEdgeSwitches(k int) int { return k * k / 2 }
func NumSwitches(k int) int     { return NumCoreSwitches(k) + NumAggSwitches(k) + NumEdgeSwitches(k) }
func NumHosts(k int) int        { return k * k * k / 4 }

// Number of undirected switch-to-switch links: k^2/2 pod-internal links per
// pod plus k/2 uplinks per aggregation switch
func NumFabricLinks(k int) int { return k * k * k / 2 }

// New generates the fat-tree for the given switch port count. Construction
// is deterministic: two calls with the same k produce identical ids, roles
// and adjacency.
func New(k int) (*Fattree, error) {
	if k < 2 {
		return nil, ErrPortCountTooSmall
	}
	if k%2 != 0 {
		return nil, ErrOddPortCount
	}

	self := &Fattree{K: k}

	numPods := k
	radix := k / 2

	nodeId := 0
	newNode := func(role NodeRole, pod, pos, hostIdx int) *Node {
		nodeId++
		return &Node{
			ID:      nodeId,
			Role:    role,
			Pod:     pod,
			Pos:     pos,
			HostIdx: hostIdx,
		}
	}

	// Core switches first
	coreSwitches := make([]*Node, 0, NumCoreSwitches(k))
	for i := 0; i < NumCoreSwitches(k); i++ {
		sw := newNode(RoleCore, -1, i, -1)
		coreSwitches = append(coreSwitches, sw)
		self.Switches = append(self.Switches, sw)
	}

	// Per-pod aggregation and edge switches, with hosts on each edge switch
	aggByPod := make([][]*Node, numPods)
	edgeByPod := make([][]*Node, numPods)
	for p := 0; p < numPods; p++ {
		for s := 0; s < radix; s++ {
			sw := newNode(RoleAggregation, p, s, -1)
			aggByPod[p] = append(aggByPod[p], sw)
			self.Switches = append(self.Switches, sw)
		}

		for s := 0; s < radix; s++ {
			sw := newNode(RoleEdge, p, s, -1)
			edgeByPod[p] = append(edgeByPod[p], sw)
			self.Switches = append(self.Switches, sw)

			for h := 0; h < radix; h++ {
				host := newNode(RoleHost, p, s, h)
				self.Servers = append(self.Servers, host)
				sw.AddEdge(host)
			}
		}
	}

	// Every edge switch connects to every aggregation switch in its pod
	for p := 0; p < numPods; p++ {
		for _, edgeSw := range edgeByPod[p] {
			for _, aggSw := range aggByPod[p] {
				edgeSw.AddEdge(aggSw)
			}
		}
	}

	// Aggregation switch at position s owns the core group
	// [s*k/2 .. s*k/2 + k/2 - 1]. This partitions the core layer into k/2
	// disjoint groups, one per aggregation position.
	for p := 0; p < numPods; p++ {
		for s := 0; s < radix; s++ {
			aggSw := aggByPod[p][s]
			for i := 0; i < radix; i++ {
				aggSw.AddEdge(coreSwitches[s*radix+i])
			}
		}
	}

	return self, nil
}

// SwitchMap returns the dpid to switch-info map the routing engine reads.
// Datapath ids are the model's node ids.
func (self *Fattree) SwitchMap() map[uint64]SwitchInfo {
	swMap := make(map[uint64]SwitchInfo)
	for _, sw := range self.Switches {
		swMap[uint64(sw.ID)] = SwitchInfo{
			Role: sw.Role,
			Pod:  sw.Pod,
			Pos:  sw.Pos,
		}
	}

	return swMap
}

// FabricEdges returns every switch-to-switch edge exactly once, in wiring
// order. Host attachment edges are excluded.
func (self *Fattree) FabricEdges() []*Edge {
	var edges []*Edge
	seen := make(map[*Edge]bool)
	for _, sw := range self.Switches {
		for _, edge := range sw.Edges {
			if edge.LNode.Role == RoleHost || edge.RNode.Role == RoleHost {
				continue
			}
			if !seen[edge] {
				seen[edge] = true
				edges = append(edges, edge)
			}
		}
	}

	return edges
}
