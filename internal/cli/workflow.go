package cli

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/shaiso/lintgate/internal/workflow"
)

// NewWorkflowCmd создаёт группу команд для workflow.
func NewWorkflowCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "workflow",
		Short: "Inspect workflow definitions",
	}

	cmd.AddCommand(
		newWorkflowListCmd(clientFn, outputFn),
		newWorkflowCheckCmd(outputFn),
	)

	return cmd
}

func newWorkflowListCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List workflows loaded by the server",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			workflows, err := client.ListWorkflows()
			if err != nil {
				return err
			}

			rows := make([][]string, len(workflows))
			for i, w := range workflows {
				rows[i] = []string{w.Name, events(w.On), w.ConcurrencyGroup, strconv.FormatBool(w.CancelInProgress), w.Path}
			}

			out.Print([]string{"NAME", "ON", "GROUP", "CANCEL_IN_PROGRESS", "PATH"}, rows, workflows)
			return nil
		},
	}
}

// newWorkflowCheckCmd проверяет файлы workflow локально, без API.
func newWorkflowCheckCmd(outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "check DIR",
		Short: "Validate workflow files in a directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := outputFn()

			workflows, err := workflow.LoadDir(args[0])
			if err != nil {
				return err
			}
			if len(workflows) == 0 {
				return fmt.Errorf("no workflow files in %s", args[0])
			}

			rows := make([][]string, len(workflows))
			for i, w := range workflows {
				steps := make([]string, len(w.Steps))
				for j, s := range w.Steps {
					steps[j] = string(s.Kind)
				}
				rows[i] = []string{w.Name, w.Path, w.Concurrency.Group, strings.Join(steps, ",")}
			}

			out.Print([]string{"NAME", "PATH", "GROUP", "STEPS"}, rows, workflows)
			out.Success(fmt.Sprintf("%d workflow(s) OK", len(workflows)))
			return nil
		},
	}
}

func events(on map[string]any) string {
	names := make([]string, 0, len(on))
	for name := range on {
		names = append(names, name)
	}
	sort.Strings(names)
	return strings.Join(names, ",")
}
