package cli

import (
	"github.com/spf13/cobra"

	"github.com/jwulff/echo/internal/mcpserver"
)

func NewMCPCmd(deps *Dependencies) *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve the transcript archive to MCP clients over stdio",
		Long: `Start a Model Context Protocol server on stdin/stdout so assistants can
list, read and flag archived transcripts. Logs go to the log file only.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, _, err := deps.OpenArchive(cmd.Context())
			if err != nil {
				return err
			}
			deps.Logger.Info("mcp server starting", "version", deps.Version)
			return mcpserver.Serve(mcpserver.New(store, deps.Version))
		},
	}
}
