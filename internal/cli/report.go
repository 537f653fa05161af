package cli

import (
	"github.com/spf13/cobra"
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Print the storage report",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		s, err := openSession(cmd, false)
		if err != nil {
			return err
		}
		return s.finish(cmd)
	},
}

func init() {
	rootCmd.AddCommand(reportCmd)
}
