package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	configstore "github.com/nupi-ai/voxflux/internal/config/store"
)

const storeQueryTimeout = 5 * time.Second

func newDevicesCommand() *cobra.Command {
	devicesCmd := &cobra.Command{
		Use:           "devices",
		Short:         "Show or change the stored audio device preferences",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	devicesShowCmd := &cobra.Command{
		Use:           "show",
		Short:         "Show the stored input and output devices",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          devicesShow,
	}

	devicesSetInputCmd := &cobra.Command{
		Use:           "set-input <device-id>",
		Short:         "Store the input device used when accepting calls",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return devicesSet(cmd, configstore.AudioDevices{InputDevice: args[0]})
		},
	}

	devicesSetOutputCmd := &cobra.Command{
		Use:           "set-output <device-id>",
		Short:         "Store the output device selected when a client is ready",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return devicesSet(cmd, configstore.AudioDevices{OutputDevice: args[0]})
		},
	}

	devicesCmd.AddCommand(devicesShowCmd, devicesSetInputCmd, devicesSetOutputCmd)
	return devicesCmd
}

func openStore(cmd *cobra.Command) (*configstore.Store, error) {
	store, err := configstore.Open(configstore.Options{InstanceName: instanceFlag(cmd)})
	if err != nil {
		return nil, fmt.Errorf("failed to open config store: %w", err)
	}
	return store, nil
}

func devicesShow(cmd *cobra.Command, _ []string) error {
	out := newOutputFormatter(cmd)

	store, err := openStore(cmd)
	if err != nil {
		return err
	}
	defer store.Close()

	ctx, cancel := context.WithTimeout(cmd.Context(), storeQueryTimeout)
	defer cancel()
	devices, err := store.LoadAudioDevices(ctx)
	if err != nil {
		return err
	}

	if out.jsonMode {
		return out.Print(devices)
	}
	return out.Print(fmt.Sprintf("Input device:  %s\nOutput device: %s",
		orDefault(devices.InputDevice), orDefault(devices.OutputDevice)))
}

func devicesSet(cmd *cobra.Command, devices configstore.AudioDevices) error {
	out := newOutputFormatter(cmd)
	if strings.TrimSpace(devices.InputDevice) == "" && strings.TrimSpace(devices.OutputDevice) == "" {
		return fmt.Errorf("device id must not be empty")
	}

	store, err := openStore(cmd)
	if err != nil {
		return err
	}
	defer store.Close()

	ctx, cancel := context.WithTimeout(cmd.Context(), storeQueryTimeout)
	defer cancel()
	if err := store.SaveAudioDevices(ctx, devices); err != nil {
		return err
	}

	if devices.InputDevice != "" {
		return out.Success(fmt.Sprintf("Input device set to %s", strings.TrimSpace(devices.InputDevice)),
			map[string]any{"input_device": strings.TrimSpace(devices.InputDevice)})
	}
	return out.Success(fmt.Sprintf("Output device set to %s", strings.TrimSpace(devices.OutputDevice)),
		map[string]any{"output_device": strings.TrimSpace(devices.OutputDevice)})
}

func orDefault(id string) string {
	if id == "" {
		return "(default)"
	}
	return id
}
