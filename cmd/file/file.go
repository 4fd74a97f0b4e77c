package file

import (
	"github.com/spf13/cobra"

	"github.com/pagd-project/pagd-go/internal/analysis"
	"github.com/pagd-project/pagd-go/internal/conf"
)

// Command creates the command replaying a recorded file.
func Command(settings *conf.Settings) *cobra.Command {
	var (
		opts      analysis.FileOptions
		threshold float32
	)

	cmd := &cobra.Command{
		Use:   "file [input.wav|input.flac]",
		Short: "Classify a recorded audio file",
		Long:  "Replay a WAV or FLAC file through one classifier and print every result.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.Path = args[0]
			if cmd.Flags().Changed("threshold") {
				for i := range settings.Classifiers {
					settings.Classifiers[i].Threshold = threshold
				}
			}
			return analysis.FileAnalysis(cmd.Context(), settings, opts, cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVar(&opts.Classifier, "classifier", "", "Classifier to replay through (default: the selected one)")
	cmd.Flags().BoolVar(&opts.Realtime, "realtime", false, "Replay at the file's real speed")
	cmd.Flags().Float32VarP(&threshold, "threshold", "t", conf.DefaultThreshold, "Detection threshold, between 0.0 and 1.0")

	return cmd
}
