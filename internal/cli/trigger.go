package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// NewTriggerCmd создаёт команду отправки trigger'а.
func NewTriggerCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var req TriggerRequest

	cmd := &cobra.Command{
		Use:   "trigger push|pull_request REF",
		Short: "Submit a trigger and show the admitted runs",
		Long: `Submit a push or pull_request trigger.

A newer trigger for the same workflow and ref cancels the run that is
still pending or running for that group.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			req.Event = args[0]
			req.Ref = args[1]

			resp, err := client.Trigger(req)
			if err != nil {
				return err
			}

			if len(resp.Runs) == 0 {
				out.Success("No workflow matched the trigger")
				return nil
			}

			rows := make([][]string, len(resp.Runs))
			for i, r := range resp.Runs {
				rows[i] = runRow(r)
			}
			out.Success(fmt.Sprintf("Admitted %d run(s)", len(resp.Runs)))
			out.Print(runHeaders, rows, resp.Runs)
			return nil
		},
	}

	cmd.Flags().StringVar(&req.BaseRef, "base", "", "Target branch of the pull request")
	cmd.Flags().StringVar(&req.SHA, "sha", "", "Commit to check out")
	cmd.Flags().StringVar(&req.Action, "action", "", "Pull request action (opened, synchronize, reopened)")
	cmd.Flags().StringVar(&req.Workflow, "workflow", "", "Admit into this workflow only")

	return cmd
}
