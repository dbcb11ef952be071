package main

import (
	"github.com/spf13/cobra"

	"github.com/at-ishikawa/learnsync/internal/datasync"
)

func newExportCommand() *cobra.Command {
	var outputDir string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write the local sessions and cards to YAML files",
		Args:  cobra.NoArgs,
		RunE: withApp(func(cmd *cobra.Command, args []string, a *app) error {
			result, err := datasync.NewYAMLSink(outputDir).Export(a.local)
			if err != nil {
				return err
			}
			_, _ = successColor.Fprintf(cmd.OutOrStdout(), "exported %d sessions and %d cards to %s\n",
				result.Sessions, result.Cards, outputDir)
			return nil
		}),
	}
	cmd.Flags().StringVarP(&outputDir, "output", "o", "export", "Output directory")
	return cmd
}
