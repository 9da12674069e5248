package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/shaiso/Loom/internal/repo"
)

// NewWorkflowCmd создаёт группу команд для управления определениями
// workflow в базе данных.
func NewWorkflowCmd(outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "workflow",
		Short: "Manage workflow definitions",
	}

	cmd.AddCommand(
		newWorkflowPushCmd(outputFn),
		newWorkflowGetCmd(outputFn),
		newWorkflowListCmd(outputFn),
		newWorkflowDeleteCmd(outputFn),
		newWorkflowRunsCmd(outputFn),
	)

	return cmd
}

func newWorkflowPushCmd(outputFn func() *Output) *cobra.Command {
	var ref string

	cmd := &cobra.Command{
		Use:   "push FILE",
		Short: "Save a workflow definition as a new version",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := outputFn()
			ctx := cmd.Context()

			ir, err := readWorkflowFile(args[0])
			if err != nil {
				return err
			}

			name := ref
			if name == "" {
				name = ir.Name
			}
			if name == "" {
				return fmt.Errorf("workflow has no name, pass --ref")
			}

			pool, err := repo.NewPool(ctx)
			if err != nil {
				return fmt.Errorf("connect to database: %w", err)
			}
			defer pool.Close()

			rec, err := repo.NewWorkflowRepo(pool).Save(ctx, name, ir)
			if err != nil {
				return err
			}

			out.Success(fmt.Sprintf("Workflow %s saved as version %d", rec.Ref, rec.Version))
			out.Print(
				[]string{"REF", "VERSION", "NODES", "CREATED"},
				[][]string{{
					rec.Ref,
					strconv.Itoa(rec.Version),
					strconv.Itoa(len(rec.Spec.Nodes)),
					rec.CreatedAt.Format("2006-01-02 15:04:05"),
				}},
				rec,
			)
			return nil
		},
	}

	cmd.Flags().StringVar(&ref, "ref", "", "Ref to save under (default: workflow name)")

	return cmd
}

func newWorkflowGetCmd(outputFn func() *Output) *cobra.Command {
	var version int

	cmd := &cobra.Command{
		Use:   "get REF",
		Short: "Show a workflow definition",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := outputFn()
			ctx := cmd.Context()

			pool, err := repo.NewPool(ctx)
			if err != nil {
				return fmt.Errorf("connect to database: %w", err)
			}
			defer pool.Close()

			workflows := repo.NewWorkflowRepo(pool)

			var rec *repo.WorkflowRecord
			if cmd.Flags().Changed("version") {
				rec, err = workflows.GetVersion(ctx, args[0], version)
			} else {
				rec, err = workflows.Get(ctx, args[0])
			}
			if err != nil {
				return err
			}

			// Определение всегда выводится как JSON
			out.JSON(rec)
			return nil
		},
	}

	cmd.Flags().IntVar(&version, "version", 0, "Definition version (latest if not specified)")

	return cmd
}

func newWorkflowListCmd(outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List workflow definitions",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := outputFn()
			ctx := cmd.Context()

			pool, err := repo.NewPool(ctx)
			if err != nil {
				return fmt.Errorf("connect to database: %w", err)
			}
			defer pool.Close()

			records, err := repo.NewWorkflowRepo(pool).List(ctx)
			if err != nil {
				return err
			}

			headers := []string{"REF", "VERSION", "NODES", "CREATED"}
			rows := make([][]string, len(records))
			for i, rec := range records {
				rows[i] = []string{
					rec.Ref,
					strconv.Itoa(rec.Version),
					strconv.Itoa(len(rec.Spec.Nodes)),
					rec.CreatedAt.Format("2006-01-02 15:04:05"),
				}
			}

			out.Print(headers, rows, records)
			return nil
		},
	}
}

func newWorkflowDeleteCmd(outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "delete REF",
		Short: "Delete all versions of a workflow definition",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := outputFn()
			ctx := cmd.Context()

			pool, err := repo.NewPool(ctx)
			if err != nil {
				return fmt.Errorf("connect to database: %w", err)
			}
			defer pool.Close()

			if err := repo.NewWorkflowRepo(pool).Delete(ctx, args[0]); err != nil {
				return err
			}

			out.Success(fmt.Sprintf("Workflow %s deleted", args[0]))
			return nil
		},
	}
}

func newWorkflowRunsCmd(outputFn func() *Output) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "runs REF",
		Short: "List archived runs of a workflow",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := outputFn()
			ctx := cmd.Context()

			pool, err := repo.NewPool(ctx)
			if err != nil {
				return fmt.Errorf("connect to database: %w", err)
			}
			defer pool.Close()

			runs, err := repo.NewRunRepo(pool).ListByWorkflow(ctx, args[0], limit)
			if err != nil {
				return err
			}

			headers := []string{"ID", "STATUS", "ACTION", "DURATION", "CREATED"}
			rows := make([][]string, len(runs))
			for i, r := range runs {
				rows[i] = []string{
					r.ID.String(),
					string(r.Status),
					r.Action,
					r.Duration().String(),
					r.CreatedAt.Format("2006-01-02 15:04:05"),
				}
			}

			out.Print(headers, rows, runs)
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 50, "Maximum number of results")

	return cmd
}
