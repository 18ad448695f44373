package voice

import (
	"maps"

	"github.com/nupi-ai/voxflux/internal/action"
	"github.com/nupi-ai/voxflux/internal/phone"
)

func connection(c *phone.Call) action.Connection {
	if c == nil {
		return action.Connection{}
	}
	return action.Connection{
		SID:              c.SID,
		Direction:        string(c.Direction),
		Status:           c.Status,
		From:             c.From,
		To:               c.To,
		Parameters:       maps.Clone(c.Parameters),
		CustomParameters: maps.Clone(c.CustomParameters),
		Muted:            c.Muted,
	}
}

func device(d *phone.Device) action.Device {
	if d == nil {
		return action.Device{}
	}
	return action.Device{
		Identity:      d.Identity,
		State:         d.State,
		Edge:          d.Edge,
		InputDevices:  audioDevices(d.InputDevices),
		OutputDevices: audioDevices(d.OutputDevices),
	}
}

func audioDevices(in []phone.MediaDevice) []action.AudioDevice {
	if len(in) == 0 {
		return nil
	}
	out := make([]action.AudioDevice, len(in))
	for i, d := range in {
		out[i] = action.AudioDevice{ID: d.ID, Label: d.Label}
	}
	return out
}

func clientError(e *phone.Error) action.ClientError {
	if e == nil {
		return action.ClientError{}
	}
	return action.ClientError{
		Code:        e.Code,
		Message:     e.Message,
		Description: e.Description,
	}
}
