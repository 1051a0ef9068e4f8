package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jwulff/echo/internal/token"
)

func NewTokenCmd(deps *Dependencies) *cobra.Command {
	return &cobra.Command{
		Use:   "token",
		Short: "Fetch a streaming token to check the API key",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := token.New(deps.Config.TokenURL, token.WithLogger(deps.Logger))
			tok, err := client.Fetch(cmd.Context(), deps.Config.APIKey)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Token OK: %s\n", token.Redact(tok))
			return nil
		},
	}
}
