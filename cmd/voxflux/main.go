package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/nupi-ai/voxflux/internal/config"
	"github.com/nupi-ai/voxflux/internal/version"
)

func newRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "voxflux",
		Short: "Voxflux - voice client calls as a stream of actions",
		Long: `Voxflux drives voice clients from dispatched actions and turns their
events (ready, incoming, connect, disconnect, ...) back into actions,
served over an HTTP API and a websocket stream.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.Version = version.String()
	rootCmd.SetVersionTemplate("{{printf \"%s\\n\" .Version}}")

	rootCmd.PersistentFlags().Bool("json", false, "Output in JSON format")
	rootCmd.PersistentFlags().String("instance", config.DefaultInstance, "Instance name")
	rootCmd.PersistentFlags().String("config", "", "Configuration file (defaults to the instance config.yaml)")

	rootCmd.AddCommand(newServeCommand(), newDevicesCommand(), newVersionCommand())
	return rootCmd
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// OutputFormatter handles output in JSON or human-readable format.
type OutputFormatter struct {
	cmd      *cobra.Command
	jsonMode bool
}

func newOutputFormatter(cmd *cobra.Command) *OutputFormatter {
	jsonMode, _ := cmd.Flags().GetBool("json")
	return &OutputFormatter{cmd: cmd, jsonMode: jsonMode}
}

// Print writes data as indented JSON in JSON mode; strings are printed as-is
// otherwise.
func (f *OutputFormatter) Print(data any) error {
	out := f.cmd.OutOrStdout()
	if text, ok := data.(string); ok && !f.jsonMode {
		_, err := fmt.Fprintln(out, text)
		return err
	}
	jsonBytes, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}
	_, err = fmt.Fprintln(out, string(jsonBytes))
	return err
}

// Success reports a completed operation.
func (f *OutputFormatter) Success(message string, data map[string]any) error {
	if f.jsonMode {
		output := map[string]any{
			"success": true,
			"message": message,
		}
		for k, v := range data {
			output[k] = v
		}
		return f.Print(output)
	}
	return f.Print(message)
}

func instanceFlag(cmd *cobra.Command) string {
	name, _ := cmd.Flags().GetString("instance")
	if name == "" {
		return config.DefaultInstance
	}
	return name
}

// loadConfig reads the instance .env, then the YAML file named by --config
// (or the instance default, which may be absent), then environment overrides.
func loadConfig(cmd *cobra.Command, paths config.InstancePaths) (config.Config, error) {
	if err := config.LoadDotEnv(paths.Env); err != nil {
		return config.Config{}, fmt.Errorf("load %s: %w", paths.Env, err)
	}

	path, _ := cmd.Flags().GetString("config")
	var (
		cfg config.Config
		err error
	)
	if path != "" {
		cfg, err = config.Load(config.ExpandPath(path))
	} else {
		cfg, err = config.LoadOrDefault(paths.Config)
	}
	if err != nil {
		return config.Config{}, err
	}
	cfg.ApplyEnv()
	return cfg, nil
}
