// Loom CLI — инструмент командной строки для компиляции и выполнения
// workflow.
//
// Использование:
//
//	loom [--json] <command> [flags]
//
// Команды:
//
//	run       Запуск workflow из файла или БД
//	validate  Статическая проверка определения
//	workflow  Управление определениями в БД
//	types     Зарегистрированные типы узлов
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/shaiso/Loom/internal/cli"
)

// version задаётся через ldflags при сборке.
var version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var jsonOutput bool

	rootCmd := &cobra.Command{
		Use:           "loom",
		Short:         "Loom — workflow compiler and execution engine",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")

	outputFn := func() *cli.Output { return cli.NewOutput(jsonOutput) }

	rootCmd.AddCommand(
		cli.NewRunCmd(outputFn),
		cli.NewValidateCmd(outputFn),
		cli.NewWorkflowCmd(outputFn),
		cli.NewTypesCmd(outputFn),
	)

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
