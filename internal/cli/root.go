package cli

import (
	"github.com/spf13/cobra"
)

// NewRootCmd собирает корневую команду lintgate.
func NewRootCmd(version string) *cobra.Command {
	var apiURL string
	var jsonOutput bool

	rootCmd := &cobra.Command{
		Use:           "lintgate",
		Short:         "lintgate CLI — license lint runs with superseding per branch",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&apiURL, "api-url", "http://localhost:8080", "API server URL")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")

	clientFn := func() *Client { return NewClient(apiURL) }
	outputFn := func() *Output {
		return NewOutputTo(rootCmd.OutOrStdout(), rootCmd.ErrOrStderr(), jsonOutput)
	}

	rootCmd.AddCommand(
		NewTriggerCmd(clientFn, outputFn),
		NewRunCmd(clientFn, outputFn),
		NewWorkflowCmd(clientFn, outputFn),
	)

	return rootCmd
}
