package eventbus

import (
	"time"

	"github.com/nupi-ai/voxflux/internal/action"
)

// Topic identifies a logical channel on the bus.
type Topic string

const (
	// TopicActions carries every action after the store reduced it.
	TopicActions Topic = "store.actions"
	// TopicDeviceStatus carries device state transitions.
	TopicDeviceStatus Topic = "device.status"
)

// Source describes which component produced an event.
type Source string

const (
	SourceStore   Source = "store"
	SourceStatus  Source = "status"
	SourceUnknown Source = "unknown"
)

// Envelope wraps every message published on the bus.
type Envelope struct {
	Topic     Topic
	Timestamp time.Time
	Source    Source
	Payload   any
}

// Actions is the typed descriptor for TopicActions.
var Actions = NewTopicDef[action.Action](TopicActions)
