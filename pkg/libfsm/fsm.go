package libfsm

// Small finite state machine library. A transition table maps
// (current state, event) pairs to a new state and an optional callback; an
// event whose callback fails leaves the machine in its current state.

import (
	"fmt"
	"sync"

	log "github.com/sirupsen/logrus"
)

// FSM event
type Event struct {
	EventName string      // Name of the event
	EventData interface{} // Event specific data
}

// Callback function type
type CallbackFunc func(Event) error

// FSM transition entry
type Transition struct {
	CurrState string
	EventName string
	NewState  string
	Callback  CallbackFunc
}

type FsmTable []Transition

// Main FSM structure
type Fsm struct {
	transitions FsmTable

	lock  sync.Mutex
	state string
}

// Create a new Fsm
func NewFsm(fsmTable FsmTable, initState string) *Fsm {
	return &Fsm{
		transitions: fsmTable,
		state:       initState,
	}
}

// State returns the FSM's current state
func (self *Fsm) State() string {
	self.lock.Lock()
	defer self.lock.Unlock()

	return self.state
}

// Handle a new event for the fsm. The transition callback runs with the
// machine locked; it must not re-enter the fsm.
func (self *Fsm) FsmEvent(event Event) error {
	self.lock.Lock()
	defer self.lock.Unlock()

	log.Debugf("Processing event %s in state %s", event.EventName, self.state)

	// find the <currState, event> pair in the transition table
	for _, trans := range self.transitions {
		if trans.CurrState != self.state || trans.EventName != event.EventName {
			continue
		}

		if trans.Callback != nil {
			if err := trans.Callback(event); err != nil {
				log.Errorf("Processing event %s failed in state %s. Err: %v",
					event.EventName, self.state, err)
				return err
			}
		}

		if self.state != trans.NewState {
			log.Infof("Transitioning from state %s to %s", self.state, trans.NewState)
			self.state = trans.NewState
		}

		return nil
	}

	return fmt.Errorf("invalid event %s in state %s", event.EventName, self.state)
}
