package action

import "github.com/nupi-ai/voxflux/internal/phone"

// SetupPayload asks the middleware to create (if needed) and configure the
// client registered under DeviceID.
type SetupPayload struct {
	Token    string        `json:"token"`
	Options  phone.Options `json:"options"`
	DeviceID string        `json:"deviceId"`
}

// DevicePayload names a registered client.
type DevicePayload struct {
	DeviceID string `json:"deviceId"`
}

// AudioDevicePayload names an audio input or output.
type AudioDevicePayload struct {
	AudioDeviceID string `json:"audioDeviceId"`
}

// Connection is the plain-data projection of a call.
type Connection struct {
	SID              string            `json:"sid"`
	Direction        string            `json:"direction"`
	Status           string            `json:"status"`
	From             string            `json:"from,omitempty"`
	To               string            `json:"to,omitempty"`
	Parameters       map[string]string `json:"parameters,omitempty"`
	CustomParameters map[string]string `json:"customParameters,omitempty"`
	Muted            bool              `json:"muted"`
}

// AudioDevice is an input or output known to the client.
type AudioDevice struct {
	ID    string `json:"deviceId"`
	Label string `json:"label"`
}

// Device is the plain-data projection of the client state.
type Device struct {
	Identity      string        `json:"identity,omitempty"`
	State         string        `json:"state"`
	Edge          string        `json:"edge,omitempty"`
	InputDevices  []AudioDevice `json:"inputDevices,omitempty"`
	OutputDevices []AudioDevice `json:"outputDevices,omitempty"`
}

// ClientError is the plain-data projection of an error reported by the client.
type ClientError struct {
	Code        int    `json:"code"`
	Message     string `json:"message"`
	Description string `json:"description,omitempty"`
}
