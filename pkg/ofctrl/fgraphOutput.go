package ofctrl

// This file implements the forwarding graph API for the output element

type Output struct {
	outputType string // Output type: "drop", "toController", "flood" or "port"
	portNo     uint32 // Output port number
}

// Fgraph element type for the output
func (self *Output) Type() string {
	return "output"
}

// Action list for the output element. A drop is the absence of actions.
func (self *Output) GetActions() []Action {
	switch self.outputType {
	case "drop":
		return nil
	case "toController":
		return []Action{{Type: ActionTypeController, Port: P_CONTROLLER}}
	case "flood":
		return []Action{{Type: ActionTypeFlood, Port: P_FLOOD}}
	default:
		return []Action{{Type: ActionTypeOutput, Port: self.portNo}}
	}
}

// The output action for use in a group bucket. Nil for non-port outputs.
func (self *Output) GetOutAction() *Action {
	if self.outputType != "port" {
		return nil
	}

	return &Action{Type: ActionTypeOutput, Port: self.portNo}
}
