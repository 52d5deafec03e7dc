// Package config prints the effective settings.
package config

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/skinscan/skinscan/internal/conf"
)

const redacted = "[REDACTED]"

// Command creates the config command.
func Command(settings *conf.Settings) *cobra.Command {
	var showSecrets bool

	cmd := &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration as YAML",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return Write(cmd.OutOrStdout(), settings, showSecrets)
		},
	}

	cmd.Flags().BoolVar(&showSecrets, "show-secrets", false, "Print passwords and DSNs unmasked")
	return cmd
}

// Write encodes settings as YAML. Secrets are masked unless showSecrets.
func Write(out io.Writer, settings *conf.Settings, showSecrets bool) error {
	view := *settings
	if !showSecrets {
		mask(&view.History.MySQL.Password)
		mask(&view.MQTT.Password)
		mask(&view.Sentry.DSN)
	}

	enc := yaml.NewEncoder(out)
	enc.SetIndent(2)
	if err := enc.Encode(&view); err != nil {
		return fmt.Errorf("error encoding settings: %w", err)
	}
	return enc.Close()
}

func mask(s *string) {
	if *s != "" {
		*s = redacted
	}
}
