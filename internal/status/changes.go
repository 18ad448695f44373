package status

import (
	"context"

	"github.com/nupi-ai/voxflux/internal/action"
	"github.com/nupi-ai/voxflux/internal/eventbus"
	"github.com/nupi-ai/voxflux/internal/flux"
)

// Change records one device moving between lifecycle states.
type Change struct {
	DeviceID string `json:"deviceId"`
	From     string `json:"from"`
	To       string `json:"to"`
	Action   string `json:"action"`
}

// Changes is the typed descriptor for eventbus.TopicDeviceStatus.
var Changes = eventbus.NewTopicDef[Change](eventbus.TopicDeviceStatus)

// Publisher wraps reduce so that every device whose state differs after an
// action is published as a Change. The store runs its reducer under its lock,
// so before and after always belong to the same reduction.
func Publisher(bus *eventbus.Bus, reduce flux.Reducer[State]) flux.Reducer[State] {
	return func(before State, a action.Action) State {
		after := reduce(before, a)
		for _, c := range diff(before, after, a.Type) {
			eventbus.Publish(context.Background(), bus, Changes, eventbus.SourceStatus, c)
		}
		return after
	}
}

func diff(before, after State, actionType string) []Change {
	var changes []Change
	for id, now := range after.Devices {
		was, ok := before.Devices[id]
		from := ""
		if ok {
			from = was.State
		}
		if from == now.State {
			continue
		}
		changes = append(changes, Change{DeviceID: id, From: from, To: now.State, Action: actionType})
	}
	return changes
}
