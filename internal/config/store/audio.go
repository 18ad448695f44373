package store

import (
	"context"
	"fmt"
	"strings"
)

// Setting keys holding the last selected audio devices.
const (
	KeyInputDevice  = "audio.input_device"
	KeyOutputDevice = "audio.output_device"
)

// AudioDevices captures the per-profile audio device preferences.
type AudioDevices struct {
	InputDevice  string `json:"input_device,omitempty"`
	OutputDevice string `json:"output_device,omitempty"`
}

// LoadAudioDevices returns the stored device preferences. Missing keys come
// back empty.
func (s *Store) LoadAudioDevices(ctx context.Context) (AudioDevices, error) {
	values, err := s.LoadSettings(ctx, KeyInputDevice, KeyOutputDevice)
	if err != nil {
		return AudioDevices{}, fmt.Errorf("config: load audio devices: %w", err)
	}
	return AudioDevices{
		InputDevice:  values[KeyInputDevice],
		OutputDevice: values[KeyOutputDevice],
	}, nil
}

// SaveAudioDevices stores the non-empty fields of devices.
func (s *Store) SaveAudioDevices(ctx context.Context, devices AudioDevices) error {
	values := make(map[string]string, 2)
	if v := strings.TrimSpace(devices.InputDevice); v != "" {
		values[KeyInputDevice] = v
	}
	if v := strings.TrimSpace(devices.OutputDevice); v != "" {
		values[KeyOutputDevice] = v
	}
	if err := s.SaveSettings(ctx, values); err != nil {
		return fmt.Errorf("config: save audio devices: %w", err)
	}
	return nil
}
