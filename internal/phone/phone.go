// Package phone describes the voice client voxflux drives and ships a
// websocket implementation of it. Everything related to media negotiation,
// transport and codecs lives behind the gateway the client talks to.
package phone

import (
	"errors"
	"fmt"

	"github.com/pion/webrtc/v4"
)

// Event names a notification emitted by a client.
type Event string

const (
	EventCancel     Event = "cancel"
	EventConnect    Event = "connect"
	EventDisconnect Event = "disconnect"
	EventError      Event = "error"
	EventIncoming   Event = "incoming"
	EventOffline    Event = "offline"
	EventReady      Event = "ready"
)

// Events lists every event a client can emit, in registration order.
var Events = []Event{
	EventCancel,
	EventConnect,
	EventError,
	EventDisconnect,
	EventIncoming,
	EventOffline,
	EventReady,
}

var (
	// ErrClosed is returned by operations on a destroyed client.
	ErrClosed = errors.New("phone: client destroyed")
	// ErrNotConfigured is returned before Setup succeeded.
	ErrNotConfigured = errors.New("phone: client not set up")
	// ErrNoIncomingCall is returned by AcceptIncoming when nothing is ringing.
	ErrNoIncomingCall = errors.New("phone: no incoming call")
)

// Options configures a client. The values are forwarded to the gateway as-is.
type Options struct {
	Sounds            map[string]string  `json:"sounds,omitempty"`
	CodecPreferences  []string           `json:"codecPreferences,omitempty"`
	ICEServers        []webrtc.ICEServer `json:"iceServers,omitempty"`
	MaxAverageBitrate int                `json:"maxAverageBitrate,omitempty"`
	DSCP              bool               `json:"dscp,omitempty"`
	CloseProtection   bool               `json:"closeProtection,omitempty"`
	Edge              []string           `json:"edge,omitempty"`
	Debug             bool               `json:"debug,omitempty"`
}

// AudioConstraints selects the capture device used when a call is accepted.
// A zero value means the platform default input.
type AudioConstraints struct {
	DeviceID string `json:"deviceId,omitempty"`
}

// Listener receives the data attached to an event. Only the field matching
// the event is set: Call for call events, Device for ready/offline, Err for
// error.
type Listener func(EventData)

// EventData is what a client hands to listeners.
type EventData struct {
	Call   *Call
	Device *Device
	Err    *Error
}

// Client is one voice client instance.
type Client interface {
	Setup(token string, opts Options) error
	On(event Event, fn Listener)
	AcceptIncoming(constraints AudioConstraints) error
	Destroy() error
	SelectOutputDevice(id string) error
	TestOutputDevice() error
}

// Factory creates a fresh, unconfigured client.
type Factory func() (Client, error)

// Direction of a call relative to this client.
type Direction string

const (
	DirectionIncoming Direction = "INCOMING"
	DirectionOutgoing Direction = "OUTGOING"
)

// MediaDevice describes an audio input or output known to the client.
type MediaDevice struct {
	ID    string `json:"deviceId"`
	Label string `json:"label"`
}

// Device is the client's own state as reported with ready/offline.
type Device struct {
	Identity      string
	State         string
	Edge          string
	InputDevices  []MediaDevice
	OutputDevices []MediaDevice

	client Client
}

// Client returns the live client the state belongs to.
func (d *Device) Client() Client {
	return d.client
}

// Call is a live call handle.
type Call struct {
	SID              string
	Direction        Direction
	Status           string
	From             string
	To               string
	Parameters       map[string]string
	CustomParameters map[string]string
	Muted            bool

	control callControl
}

type callControl interface {
	sendCall(kind, callSID string) error
}

// Disconnect hangs up the call.
func (c *Call) Disconnect() error {
	if c.control == nil {
		return ErrNotConfigured
	}
	return c.control.sendCall(frameHangup, c.SID)
}

// Error is a failure reported by the client or its gateway.
type Error struct {
	Code        int
	Message     string
	Description string
}

func (e *Error) Error() string {
	if e.Description != "" {
		return fmt.Sprintf("phone: %d %s: %s", e.Code, e.Message, e.Description)
	}
	return fmt.Sprintf("phone: %d %s", e.Code, e.Message)
}
