package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/nupi-ai/voxflux/internal/config"
	"github.com/nupi-ai/voxflux/internal/server"
	"github.com/nupi-ai/voxflux/internal/version"
)

const versionProbeTimeout = 2 * time.Second

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:           "version",
		Short:         "Show the client and running server versions",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          runVersion,
	}
}

func runVersion(cmd *cobra.Command, _ []string) error {
	out := newOutputFormatter(cmd)
	clientVersion := version.String()

	cfg, err := loadConfig(cmd, config.GetInstancePaths(instanceFlag(cmd)))
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), versionProbeTimeout)
	defer cancel()
	serverVersion, serverErr := probeServer(ctx, cfg.Listen)

	if out.jsonMode {
		data := map[string]any{"client": clientVersion}
		if serverErr != nil {
			data["server"] = nil
			data["server_error"] = serverErr.Error()
		} else {
			data["server"] = serverVersion
			if w := version.CheckMismatch(serverVersion); w != "" {
				data["mismatch"] = true
				data["warning"] = w
			}
		}
		return out.Print(data)
	}

	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "Client: %s\n", version.FormatVersion(clientVersion))
	if serverErr != nil {
		fmt.Fprintf(w, "Server: unavailable (%v)\n", serverErr)
		return nil
	}
	fmt.Fprintf(w, "Server: %s\n", version.FormatVersion(serverVersion))
	if warning := version.CheckMismatch(serverVersion); warning != "" {
		fmt.Fprintln(w, warning)
	}
	return nil
}

func probeServer(ctx context.Context, listen string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "http://"+listen+"/healthz", nil)
	if err != nil {
		return "", err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("unexpected status %s", resp.Status)
	}
	var health server.HealthResponse
	if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
		return "", fmt.Errorf("decode health response: %w", err)
	}
	return health.Version, nil
}
