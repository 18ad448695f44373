// Package status folds the voice action stream into a per-device view of
// where each client is in its lifecycle.
package status

import (
	"context"
	"errors"
	"maps"

	"github.com/looplab/fsm"

	"github.com/nupi-ai/voxflux/internal/action"
	"github.com/nupi-ai/voxflux/internal/flux"
)

// Device lifecycle states.
const (
	StateIdle        = "idle"
	StateRegistering = "registering"
	StateReady       = "ready"
	StateRinging     = "ringing"
	StateInCall      = "in-call"
	StateOffline     = "offline"
	StateDestroyed   = "destroyed"
)

var transitions = fsm.Events{
	{Name: action.NameSetup, Src: []string{StateIdle, StateOffline, StateDestroyed}, Dst: StateRegistering},
	{Name: action.NameReady, Src: []string{StateIdle, StateRegistering, StateOffline}, Dst: StateReady},
	{Name: action.NameIncoming, Src: []string{StateReady}, Dst: StateRinging},
	{Name: action.NameConnect, Src: []string{StateReady, StateRinging}, Dst: StateInCall},
	{Name: action.NameCancel, Src: []string{StateRinging}, Dst: StateReady},
	{Name: action.NameDisconnect, Src: []string{StateRinging, StateInCall}, Dst: StateReady},
	{Name: action.NameOffline, Src: []string{StateIdle, StateRegistering, StateReady, StateRinging, StateInCall}, Dst: StateOffline},
	{Name: action.NameDestroy, Src: []string{StateIdle, StateRegistering, StateReady, StateRinging, StateInCall, StateOffline}, Dst: StateDestroyed},
}

// DeviceStatus is what the store knows about one device.
type DeviceStatus struct {
	ID        string              `json:"id"`
	State     string              `json:"state"`
	Identity  string              `json:"identity,omitempty"`
	CallSID   string              `json:"callSid,omitempty"`
	LastError *action.ClientError `json:"lastError,omitempty"`
	UpdatedAt string              `json:"updatedAt"`
}

// State is the store state: devices by id plus handler faults.
type State struct {
	Devices   map[string]DeviceStatus `json:"devices"`
	Faults    int                     `json:"faults"`
	LastFault *action.SerializedError `json:"lastFault,omitempty"`
}

// Device returns the status of id.
func (s State) Device(id string) (DeviceStatus, bool) {
	d, ok := s.Devices[id]
	return d, ok
}

// Transition reports the state a device in from moves to on event. ok is
// false when the event does not apply in from.
func Transition(from, event string) (string, bool) {
	machine := fsm.NewFSM(from, transitions, fsm.Callbacks{})
	err := machine.Event(context.Background(), event)
	if err != nil {
		var noTransition fsm.NoTransitionError
		if errors.As(err, &noTransition) {
			return from, true
		}
		return from, false
	}
	return machine.Current(), true
}

// Reducer builds the reducer for actions namespaced with prefix.
func Reducer(prefix string) flux.Reducer[State] {
	return func(state State, a action.Action) State {
		name, ok := action.Base(prefix, a.Type)
		if !ok {
			return state
		}

		if name == action.NameUnhandledError {
			state.Faults++
			if a.Meta.Error != nil {
				fault := *a.Meta.Error
				state.LastFault = &fault
			}
			return state
		}

		id := action.DeviceOf(a)
		if id == "" {
			return state
		}

		current, known := state.Devices[id]
		if !known {
			if name == action.NameDestroy {
				return state
			}
			current = DeviceStatus{ID: id, State: StateIdle}
		}

		next := current
		switch name {
		case action.NameError:
			if e, ok := a.Payload.(action.ClientError); ok {
				next.LastError = &e
			}
		default:
			to, ok := Transition(current.State, name)
			if !ok {
				return state
			}
			next.State = to
			switch p := a.Payload.(type) {
			case action.Device:
				next.Identity = p.Identity
			case action.Connection:
				next.CallSID = p.SID
			}
			if to == StateReady || to == StateOffline || to == StateDestroyed {
				next.CallSID = ""
			}
			if name == action.NameSetup {
				next.LastError = nil
			}
		}

		if next == current && known {
			return state
		}
		next.UpdatedAt = a.Meta.Timestamp

		devices := maps.Clone(state.Devices)
		if devices == nil {
			devices = make(map[string]DeviceStatus)
		}
		devices[id] = next
		state.Devices = devices
		return state
	}
}
