package labels

import (
	"github.com/spf13/cobra"

	"github.com/pagd-project/pagd-go/internal/analysis"
	"github.com/pagd-project/pagd-go/internal/conf"
)

// Command creates the command printing classifier categories.
func Command(settings *conf.Settings) *cobra.Command {
	return &cobra.Command{
		Use:   "labels [classifier]",
		Short: "Print the categories of the configured classifiers",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var name string
			if len(args) == 1 {
				name = args[0]
			}
			return analysis.PrintLabels(settings, name, cmd.OutOrStdout())
		},
	}
}
