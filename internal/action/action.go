// Package action defines the envelopes that flow through the voxflux store:
// commands issued by callers, notifications observed on the phone client and
// the error envelope produced when a command handler fails.
package action

import (
	"strings"
)

const (
	// DefaultPrefix namespaces every action owned by the voice middleware.
	DefaultPrefix = "@@voice"
	// Separator joins the prefix and the command/event name.
	Separator = "::"
	// DefaultDeviceID is used when a caller does not name a device.
	DefaultDeviceID = "default"
)

// Action is a tagged, timestamped envelope.
type Action struct {
	Type    string `json:"type"`
	Meta    Meta   `json:"meta"`
	Payload any    `json:"payload,omitempty"`
}

// Meta carries creation metadata. Timestamp is set by the creator and is
// never rewritten afterwards.
type Meta struct {
	Timestamp string           `json:"timestamp"`
	DeviceID  string           `json:"deviceId,omitempty"`
	Error     *SerializedError `json:"error,omitempty"`
}

// SerializedError is the transport-safe form of a caught fault.
type SerializedError struct {
	Name    string `json:"name"`
	Message string `json:"message"`
	Stack   string `json:"stack"`
}

// TypeFor joins prefix and name. An empty prefix falls back to DefaultPrefix.
func TypeFor(prefix, name string) string {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return prefix + Separator + name
}

// Base strips "<prefix>::" from actionType. ok is false when actionType is
// not namespaced with prefix.
func Base(prefix, actionType string) (string, bool) {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return strings.CutPrefix(actionType, prefix+Separator)
}

// HasPrefix reports whether actionType belongs to the prefix namespace.
func HasPrefix(prefix, actionType string) bool {
	_, ok := Base(prefix, actionType)
	return ok
}

// DeviceOf returns the device identifier an action refers to, looking at the
// metadata first and then at command payloads.
func DeviceOf(a Action) string {
	if a.Meta.DeviceID != "" {
		return a.Meta.DeviceID
	}
	switch p := a.Payload.(type) {
	case SetupPayload:
		return p.DeviceID
	case DevicePayload:
		return p.DeviceID
	case *SetupPayload:
		if p != nil {
			return p.DeviceID
		}
	case *DevicePayload:
		if p != nil {
			return p.DeviceID
		}
	}
	return ""
}

func deviceOrDefault(deviceID string) string {
	deviceID = strings.TrimSpace(deviceID)
	if deviceID == "" {
		return DefaultDeviceID
	}
	return deviceID
}
