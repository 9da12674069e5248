package cli

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/shaiso/Loom/internal/engine"
	"github.com/shaiso/Loom/internal/loader"
	"github.com/shaiso/Loom/internal/nodes"
)

// validateReport — итог проверки для вывода CLI.
type validateReport struct {
	File     string   `json:"file"`
	Valid    bool     `json:"valid"`
	Problems []string `json:"problems,omitempty"`
}

// NewValidateCmd создаёт команду статической проверки определения.
func NewValidateCmd(outputFn func() *Output) *cobra.Command {
	var maxDepth int

	cmd := &cobra.Command{
		Use:   "validate FILE",
		Short: "Validate a workflow definition without running it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := outputFn()

			ir, err := readWorkflowFile(args[0])
			if err != nil {
				return err
			}

			err = engine.ValidateWorkflow(cmd.Context(), ir, engine.CompileOptions{
				Registry:          nodes.DefaultRegistry(),
				Loader:            loader.NewFileLoader(filepath.Dir(args[0])),
				ValidateTemplates: true,
				MaxDepth:          maxDepth,
			})

			report := validateReport{File: args[0], Valid: err == nil}
			var tvErr *engine.TemplateValidationError
			if errors.As(err, &tvErr) {
				report.Problems = tvErr.Problems
			} else if err != nil {
				report.Problems = []string{err.Error()}
			}

			out.JSON(report)
			if err != nil {
				return fmt.Errorf("workflow %s is invalid", args[0])
			}
			out.Success(fmt.Sprintf("Workflow %s is valid", args[0]))
			return nil
		},
	}

	cmd.Flags().IntVar(&maxDepth, "max-depth", 0, "Max workflow nesting depth (default 10)")

	return cmd
}
