package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/crypto/ssh/terminal"

	"github.com/nupi-ai/voxflux/internal/config"
)

// secretReader reads one secret per prompt, without echo when stdin is a
// terminal.
type secretReader struct {
	out   io.Writer
	in    io.Reader
	lines *bufio.Reader
}

func newSecretReader(cmd *cobra.Command) *secretReader {
	in := cmd.InOrStdin()
	return &secretReader{out: cmd.ErrOrStderr(), in: in, lines: bufio.NewReader(in)}
}

func (r *secretReader) read(prompt string) (string, error) {
	fmt.Fprint(r.out, prompt)

	if f, ok := r.in.(*os.File); ok && terminal.IsTerminal(int(f.Fd())) {
		secret, err := terminal.ReadPassword(int(f.Fd()))
		fmt.Fprintln(r.out)
		if err != nil {
			return "", fmt.Errorf("read secret: %w", err)
		}
		return strings.TrimSpace(string(secret)), nil
	}

	line, err := r.lines.ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("read secret: %w", err)
	}
	return strings.TrimSpace(line), nil
}

// promptMissingTokens asks for the token of every device configured without
// one. An empty answer is an error.
func promptMissingTokens(cmd *cobra.Command, cfg *config.Config) error {
	reader := newSecretReader(cmd)
	for i := range cfg.Devices {
		dev := &cfg.Devices[i]
		if strings.TrimSpace(dev.Token) != "" {
			continue
		}
		token, err := reader.read(fmt.Sprintf("Access token for device %q: ", dev.ID))
		if err != nil {
			return err
		}
		if token == "" {
			return fmt.Errorf("device %q: token is required", dev.ID)
		}
		dev.Token = token
	}
	return nil
}
