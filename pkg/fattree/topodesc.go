package fattree

// Serializable topology description. The emulation harness consumes the
// fat-tree model offline through this form: named switches and hosts with
// their addresses, and the full link list with emulated link properties.

import (
	"encoding/json"
	"fmt"
	"os"
	"path"

	"gopkg.in/yaml.v3"
)

// SwitchDesc describes one switch to the harness
type SwitchDesc struct {
	Name string `yaml:"name" json:"name"`
	DPID uint64 `yaml:"dpid" json:"dpid"`
	Role string `yaml:"role" json:"role"`
	Pod  int    `yaml:"pod" json:"pod"`
	Pos  int    `yaml:"pos" json:"pos"`
}

// HostDesc describes one host and its assigned address
type HostDesc struct {
	Name    string `yaml:"name" json:"name"`
	IP      string `yaml:"ip" json:"ip"`
	MAC     string `yaml:"mac" json:"mac"`
	Pod     int    `yaml:"pod" json:"pod"`
	EdgePos int    `yaml:"edgePos" json:"edgePos"`
	HostIdx int    `yaml:"hostIdx" json:"hostIdx"`
}

// LinkDesc describes one undirected link with its emulated properties
type LinkDesc struct {
	Src       string `yaml:"src" json:"src"`
	Dst       string `yaml:"dst" json:"dst"`
	Bandwidth int    `yaml:"bandwidth" json:"bandwidth"` // Mbps
	Delay     string `yaml:"delay" json:"delay"`
}

// TopoDesc is the full topology description document
type TopoDesc struct {
	K        int          `yaml:"k" json:"k"`
	Switches []SwitchDesc `yaml:"switches" json:"switches"`
	Hosts    []HostDesc   `yaml:"hosts" json:"hosts"`
	Links    []LinkDesc   `yaml:"links" json:"links"`
}

// Default emulated link properties
const (
	DefaultLinkBandwidth = 15 // Mbps
	DefaultLinkDelay     = "5ms"
)

// Harness names: hosts are h1..hN in server order, switches s1..sM in switch
// order.
func hostName(idx int) string   { return fmt.Sprintf("h%d", idx+1) }
func switchName(idx int) string { return fmt.Sprintf("s%d", idx+1) }

// BuildTopoDesc transforms the generated fat-tree into its serializable
// description.
func (self *Fattree) BuildTopoDesc() *TopoDesc {
	desc := &TopoDesc{K: self.K}

	nodeNames := make(map[*Node]string)

	for i, sw := range self.Switches {
		nodeNames[sw] = switchName(i)
		desc.Switches = append(desc.Switches, SwitchDesc{
			Name: switchName(i),
			DPID: uint64(sw.ID),
			Role: string(sw.Role),
			Pod:  sw.Pod,
			Pos:  sw.Pos,
		})
	}

	for i, host := range self.Servers {
		nodeNames[host] = hostName(i)
		desc.Hosts = append(desc.Hosts, HostDesc{
			Name:    hostName(i),
			IP:      HostIP(host.Pod, host.Pos, host.HostIdx).String(),
			MAC:     HostMAC(host.Pod, host.Pos, host.HostIdx).String(),
			Pod:     host.Pod,
			EdgePos: host.Pos,
			HostIdx: host.HostIdx,
		})
	}

	// Every edge exactly once, host attachments included
	seen := make(map[*Edge]bool)
	allNodes := append(append([]*Node{}, self.Servers...), self.Switches...)
	for _, node := range allNodes {
		for _, edge := range node.Edges {
			if seen[edge] {
				continue
			}
			seen[edge] = true

			desc.Links = append(desc.Links, LinkDesc{
				Src:       nodeNames[edge.LNode],
				Dst:       nodeNames[edge.RNode],
				Bandwidth: DefaultLinkBandwidth,
				Delay:     DefaultLinkDelay,
			})
		}
	}

	return desc
}

// WriteToFile serializes the topology description to the named file. The
// file extension selects yaml or json format.
func (self *TopoDesc) WriteToFile(filename string) error {
	var bytes []byte
	var err error

	switch path.Ext(filename) {
	case ".json":
		bytes, err = json.MarshalIndent(self, "", "  ")
	default:
		bytes, err = yaml.Marshal(self)
	}
	if err != nil {
		return err
	}

	return os.WriteFile(filename, bytes, 0644)
}
