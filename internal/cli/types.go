package cli

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/shaiso/Loom/internal/domain"
	"github.com/shaiso/Loom/internal/nodes"
)

// NewTypesCmd создаёт команду просмотра зарегистрированных типов узлов.
func NewTypesCmd(outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "types",
		Short: "List registered node types and their interfaces",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := outputFn()

			registry := nodes.DefaultRegistry()
			types := registry.Types()

			descs, err := registry.GetInterfaces(types)
			if err != nil {
				return err
			}

			headers := []string{"TYPE", "PARAMS", "OUTPUTS", "ACTIONS", "DESCRIPTION"}
			rows := make([][]string, 0, len(descs))
			for _, typ := range types {
				desc := descs[typ]
				rows = append(rows, []string{
					desc.Type,
					paramKeys(desc.Interface.Params),
					portKeys(desc.Interface.Outputs),
					strings.Join(desc.Interface.Actions, ","),
					desc.Interface.Description,
				})
			}

			out.Print(headers, rows, descs)
			return nil
		},
	}
}

func paramKeys(params []domain.ParamDef) string {
	keys := make([]string, len(params))
	for i, p := range params {
		keys[i] = p.Key
		if p.Required {
			keys[i] += "*"
		}
	}
	return strings.Join(keys, ",")
}

func portKeys(ports []domain.PortDef) string {
	keys := make([]string, len(ports))
	for i, p := range ports {
		keys[i] = p.Key
	}
	return strings.Join(keys, ",")
}
