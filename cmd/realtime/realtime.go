package realtime

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pagd-project/pagd-go/internal/analysis"
	"github.com/pagd-project/pagd-go/internal/buildinfo"
	"github.com/pagd-project/pagd-go/internal/conf"
)

// Command creates the command for live capture and classification.
func Command(settings *conf.Settings, build *buildinfo.Context) *cobra.Command {
	var threshold float32

	cmd := &cobra.Command{
		Use:   "realtime",
		Short: "Classify live audio",
		Long:  "Capture audio from the configured device, run the active classifier and publish reports until interrupted.",
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("threshold") {
				for i := range settings.Classifiers {
					settings.Classifiers[i].Threshold = threshold
				}
			}
			return analysis.RealtimeAnalysis(cmd.Context(), settings, build)
		},
	}

	if err := setupFlags(cmd, &threshold); err != nil {
		panic(err)
	}

	return cmd
}

// setupFlags configures flags specific to the realtime command.
func setupFlags(cmd *cobra.Command, threshold *float32) error {
	cmd.Flags().String("source", "", "Audio capture device (\"default\", a device name substring or ID)")
	cmd.Flags().String("backend", "", "Audio backend (alsa, pulseaudio, coreaudio, wasapi)")
	cmd.Flags().String("listen", "", "Listen address of the HTTP API")
	cmd.Flags().Float32VarP(threshold, "threshold", "t", conf.DefaultThreshold, "Override every classifier's threshold, between 0.0 and 1.0")

	bindings := map[string]string{
		"source":  "audio.source",
		"backend": "audio.backend",
		"listen":  "webserver.listen",
	}
	for flag, key := range bindings {
		if err := viper.BindPFlag(key, cmd.Flags().Lookup(flag)); err != nil {
			return fmt.Errorf("error binding flag %s: %w", flag, err)
		}
	}
	return nil
}
