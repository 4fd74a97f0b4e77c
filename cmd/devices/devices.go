package devices

import (
	"github.com/spf13/cobra"

	"github.com/pagd-project/pagd-go/internal/analysis"
	"github.com/pagd-project/pagd-go/internal/conf"
)

// Command creates the command listing capture devices.
func Command(settings *conf.Settings) *cobra.Command {
	var backend string
	cmd := &cobra.Command{
		Use:   "devices",
		Short: "List the available audio capture devices",
		Long:  "List capture device names usable as audio.source in the configuration.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !cmd.Flags().Changed("backend") {
				backend = settings.Audio.Backend
			}
			return analysis.PrintDevices(backend, cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVar(&backend, "backend", "", "Audio backend (alsa, pulse, coreaudio, wasapi)")
	return cmd
}
