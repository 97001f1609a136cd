package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var runHeaders = []string{"ID", "WORKFLOW", "GROUP", "RESULT", "CREATED"}

func runRow(r RunResponse) []string {
	return []string{r.ID, r.Workflow, r.GroupKey, r.Result(), r.CreatedAt}
}

// NewRunCmd создаёт группу команд для управления runs.
func NewRunCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Inspect and report runs",
	}

	cmd.AddCommand(
		newRunListCmd(clientFn, outputFn),
		newRunShowCmd(clientFn, outputFn),
		newRunActiveCmd(clientFn, outputFn),
		newRunStartCmd(clientFn, outputFn),
		newRunCompleteCmd(clientFn, outputFn),
	)

	return cmd
}

func newRunListCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var opts ListRunsOpts

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			runs, err := client.ListRuns(opts)
			if err != nil {
				return err
			}

			rows := make([][]string, len(runs))
			for i, r := range runs {
				rows[i] = runRow(r)
			}

			out.Print(runHeaders, rows, runs)
			return nil
		},
	}

	cmd.Flags().StringVar(&opts.Status, "status", "", "Filter by status (PENDING, RUNNING, CANCELLED, COMPLETED)")
	cmd.Flags().StringVar(&opts.Workflow, "workflow", "", "Filter by workflow")
	cmd.Flags().StringVar(&opts.Group, "group", "", "Filter by concurrency group key")
	cmd.Flags().BoolVar(&opts.Active, "active", false, "Only PENDING and RUNNING runs")
	cmd.Flags().IntVar(&opts.Limit, "limit", 0, "Maximum number of results")

	return cmd
}

func newRunShowCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "show ID",
		Short: "Show run details",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			run, err := client.GetRun(args[0])
			if err != nil {
				return err
			}

			if out.jsonMode {
				out.JSON(run)
				return nil
			}

			out.Table(
				[]string{"ID", "WORKFLOW", "GROUP", "REF", "SHA", "RESULT", "SUPERSEDED_BY", "ERROR"},
				[][]string{{run.ID, run.Workflow, run.GroupKey, run.Ref, run.SHA, run.Result(), run.SupersededBy, run.Error}},
			)

			if len(run.Steps) > 0 {
				rows := make([][]string, len(run.Steps))
				for i, s := range run.Steps {
					rows[i] = []string{s.Name, s.Kind, s.Status, fmt.Sprint(s.ExitCode), firstLine(s.Error)}
				}
				fmt.Fprintln(out.w)
				out.Table([]string{"STEP", "KIND", "STATUS", "EXIT", "ERROR"}, rows)
			}
			return nil
		},
	}
}

func newRunActiveCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "active GROUP",
		Short: "Show the active run of a concurrency group",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			run, err := clientFn().ActiveRun(args[0])
			if err != nil {
				return err
			}
			out := outputFn()
			out.Print(runHeaders, [][]string{runRow(*run)}, run)
			return nil
		},
	}
}

func newRunStartCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "start ID",
		Short: "Mark a run as RUNNING (for external workers)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			run, err := client.StartRun(args[0])
			if err != nil {
				return err
			}

			if run.Status == "CANCELLED" {
				out.Success(fmt.Sprintf("Run %s was superseded, do not execute it", run.ID))
			} else {
				out.Success(fmt.Sprintf("Run started: %s", run.ID))
			}
			out.Print(runHeaders, [][]string{runRow(*run)}, run)
			return nil
		},
	}
}

func newRunCompleteCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var req CompleteRunRequest

	cmd := &cobra.Command{
		Use:   "complete ID",
		Short: "Report the job result of a run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			req.Outcome = strings.ToUpper(req.Outcome)
			req.FailureKind = strings.ToUpper(req.FailureKind)

			run, err := client.CompleteRun(args[0], req)
			if err != nil {
				return err
			}

			out.Success(fmt.Sprintf("Run %s: %s", run.ID, run.Result()))
			return nil
		},
	}

	cmd.Flags().StringVar(&req.Outcome, "outcome", "", "SUCCESS or FAILURE")
	cmd.Flags().StringVar(&req.FailureKind, "failure-kind", "", "LINT_FAILURE or INFRASTRUCTURE_ERROR")
	cmd.Flags().StringVar(&req.Error, "error", "", "Error message")
	_ = cmd.MarkFlagRequired("outcome")

	return cmd
}

func firstLine(s string) string {
	line, _, _ := strings.Cut(s, "\n")
	return line
}
