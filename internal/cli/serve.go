package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API, queue consumers and inbox watcher",
	Long: `Serves the REST and MCP endpoints, consumes article and fetch
tasks from NSQ and, when INBOX_DIR is set, ingests JSON Lines files
dropped into the inbox. Stops on SIGINT or SIGTERM.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	s, err := openSession(cmd, true)
	if err != nil {
		return err
	}

	serveErr := s.app.Serve(s.ctx)
	if err := s.finish(cmd); err != nil && serveErr == nil {
		return err
	}
	if serveErr != nil {
		return fmt.Errorf("serve: %w", serveErr)
	}
	return nil
}
