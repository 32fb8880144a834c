package main

import (
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"github.com/storyline-qa/storyline/client"
)

func newGenerateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "generate <project-id> <user-story>",
		Short: "Generate a test scenario from a user story",
		Args:  cobra.ExactArgs(2),
		RunE:  generateScenario,
	}

	cmd.Flags().String("context", "", "additional project context for the generator")

	return cmd
}

func generateScenario(cmd *cobra.Command, args []string) error {
	host, err := cmd.Flags().GetString("host")
	if err != nil {
		return err
	}

	projectContext, err := cmd.Flags().GetString("context")
	if err != nil {
		return err
	}

	c := client.New(host, &http.Client{Timeout: 30 * time.Second})

	id, err := c.CreateScenario(cmd.Context(), args[0], args[1], projectContext)
	if err != nil {
		return err
	}

	fmt.Fprintln(cmd.OutOrStdout(), id)

	return nil
}
