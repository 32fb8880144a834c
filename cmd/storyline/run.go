package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"github.com/storyline-qa/storyline/client"
)

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run <scenario-id>",
		Short: "Execute a stored test scenario",
		Args:  cobra.ExactArgs(1),
		RunE:  runScenario,
	}

	cmd.Flags().Bool("json", false, "print the full result as json")

	return cmd
}

func runScenario(cmd *cobra.Command, args []string) error {
	host, err := cmd.Flags().GetString("host")
	if err != nil {
		return err
	}

	asJSON, err := cmd.Flags().GetBool("json")
	if err != nil {
		return err
	}

	c := client.New(host, &http.Client{Timeout: 15 * time.Minute})

	result, err := c.RunScenario(cmd.Context(), args[0])
	if err != nil {
		return err
	}

	if asJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")

		return enc.Encode(result)
	}

	status := "PASSED"
	if !result.Passed {
		status = "FAILED"
	}

	fmt.Fprintf(cmd.OutOrStdout(), "%s %s (%s)\n", status, result.ID, result.Duration)

	for _, step := range result.Steps {
		mark := "ok"
		if !step.Passed {
			mark = "fail"
		}

		fmt.Fprintf(cmd.OutOrStdout(), "  [%s] %s %s\n", mark, step.Action, step.Target)
	}

	if !result.Passed {
		return fmt.Errorf("scenario run failed: %s", result.Message)
	}

	return nil
}
