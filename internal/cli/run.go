package cli

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/shaiso/Loom/internal/domain"
	"github.com/shaiso/Loom/internal/engine"
	"github.com/shaiso/Loom/internal/events"
	"github.com/shaiso/Loom/internal/loader"
	"github.com/shaiso/Loom/internal/nodes"
	"github.com/shaiso/Loom/internal/repo"
	"github.com/shaiso/Loom/internal/telemetry"
)

// runReport — итог run для вывода CLI.
type runReport struct {
	RunID      string         `json:"run_id"`
	Workflow   string         `json:"workflow"`
	Status     string         `json:"status"`
	Action     string         `json:"action,omitempty"`
	Error      string         `json:"error,omitempty"`
	DurationMs int64          `json:"duration_ms"`
	Store      map[string]any `json:"store,omitempty"`
}

// NewRunCmd создаёт команду запуска workflow.
func NewRunCmd(outputFn func() *Output) *cobra.Command {
	var (
		ref         string
		params      []string
		noValidate  bool
		maxDepth    int
		showStore   bool
		withEvents  bool
		amqpURL     string
		metricsAddr string
		archive     bool
	)

	cmd := &cobra.Command{
		Use:   "run [FILE]",
		Short: "Run a workflow from a file or from the database",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := outputFn()
			ctx := cmd.Context()
			logger := telemetry.SetupLogger()

			if len(args) == 0 && ref == "" {
				return fmt.Errorf("either FILE or --ref is required")
			}

			initialParams, err := parseParams(params)
			if err != nil {
				return err
			}

			// Источник определений: каталог файла или БД
			var (
				ir       *domain.WorkflowIR
				irLoader engine.Loader
				runRepo  *repo.RunRepo
			)
			if len(args) > 0 {
				ir, err = readWorkflowFile(args[0])
				if err != nil {
					return err
				}
				irLoader = loader.NewFileLoader(filepath.Dir(args[0]))
			} else {
				pool, err := repo.NewPool(ctx)
				if err != nil {
					return fmt.Errorf("connect to database: %w", err)
				}
				defer pool.Close()

				workflows := repo.NewWorkflowRepo(pool)
				ir, err = workflows.Load(ctx, ref)
				if err != nil {
					return fmt.Errorf("load workflow %q: %w", ref, err)
				}
				irLoader = workflows
				runRepo = repo.NewRunRepo(pool)
			}

			if metricsAddr != "" {
				startMetricsServer(metricsAddr, logger)
			}

			var sink events.Sink
			if withEvents {
				if amqpURL == "" {
					amqpURL = events.DefaultURL()
				}
				conn, err := events.NewConnection(amqpURL, logger)
				if err != nil {
					return fmt.Errorf("connect to broker: %w", err)
				}
				defer conn.Close()
				if err := events.SetupTopology(ctx, conn); err != nil {
					return fmt.Errorf("declare topology: %w", err)
				}
				sink = events.NewPublisher(conn, logger)
			}

			compiled, err := engine.Compile(ctx, ir, initialParams, engine.CompileOptions{
				Registry:          nodes.DefaultRegistry(),
				Loader:            irLoader,
				ValidateTemplates: !noValidate,
				MaxDepth:          maxDepth,
			})
			if err != nil {
				return fmt.Errorf("compile workflow: %w", err)
			}

			run := domain.NewRun(workflowName(ir, ref, args), initialParams)
			run.MarkRunning()

			e := engine.NewEngine(compiled, engine.EngineOptions{
				Sink:   sink,
				Logger: logger,
			})
			outcome, runErr := e.Run(ctx)
			run.ID = outcome.RunID
			if runErr != nil {
				run.MarkFailed(runErr.Error())
			} else {
				run.MarkSucceeded(outcome.Action)
			}

			if archive {
				if runRepo == nil {
					out.Error("--archive requires --ref (database mode)")
				} else if err := runRepo.Save(ctx, run); err != nil {
					out.Error(fmt.Sprintf("archive run: %v", err))
				}
			}

			report := runReport{
				RunID:      outcome.RunID.String(),
				Workflow:   outcome.Workflow,
				Status:     string(outcome.Status),
				Action:     outcome.Action,
				DurationMs: outcome.Duration.Milliseconds(),
			}
			if runErr != nil {
				report.Error = runErr.Error()
			}
			if showStore {
				report.Store = outcome.Store.FlatView()
			}

			out.Print(
				[]string{"RUN_ID", "WORKFLOW", "STATUS", "ACTION", "DURATION"},
				[][]string{{
					report.RunID,
					report.Workflow,
					report.Status,
					report.Action,
					fmt.Sprintf("%dms", report.DurationMs),
				}},
				report,
			)
			return runErr
		},
	}

	cmd.Flags().StringVar(&ref, "ref", "", "Run a workflow stored in the database")
	cmd.Flags().StringSliceVar(&params, "param", nil, "Initial params as KEY=VALUE (repeatable, VALUE may be JSON)")
	cmd.Flags().BoolVar(&noValidate, "no-validate", false, "Skip static template validation")
	cmd.Flags().IntVar(&maxDepth, "max-depth", 0, "Max workflow nesting depth (default 10)")
	cmd.Flags().BoolVar(&showStore, "show-store", false, "Include the final store in the output")
	cmd.Flags().BoolVar(&withEvents, "events", false, "Publish lifecycle events to RabbitMQ")
	cmd.Flags().StringVar(&amqpURL, "amqp-url", "", "RabbitMQ URL (default LOOM_AMQP_URL or local)")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "Expose Prometheus metrics on this address")
	cmd.Flags().BoolVar(&archive, "archive", false, "Save the finished run to the database")

	return cmd
}

// parseParams разбирает флаги --param KEY=VALUE.
// VALUE сначала пробуется как JSON, иначе берётся строкой.
func parseParams(pairs []string) (map[string]any, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	params := make(map[string]any, len(pairs))
	for _, kv := range pairs {
		parts := strings.SplitN(kv, "=", 2)
		if len(parts) != 2 || parts[0] == "" {
			return nil, fmt.Errorf("invalid param format %q, expected KEY=VALUE", kv)
		}
		var parsed any
		if err := json.Unmarshal([]byte(parts[1]), &parsed); err == nil {
			params[parts[0]] = parsed
		} else {
			params[parts[0]] = parts[1]
		}
	}
	return params, nil
}

// readWorkflowFile читает и парсит IR из файла.
func readWorkflowFile(path string) (*domain.WorkflowIR, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read workflow file: %w", err)
	}
	ir, err := domain.ParseWorkflowIR(data)
	if err != nil {
		return nil, fmt.Errorf("parse workflow file %s: %w", path, err)
	}
	return ir, nil
}

// workflowName выбирает имя run: имя IR, затем ref, затем имя файла.
func workflowName(ir *domain.WorkflowIR, ref string, args []string) string {
	if ir.Name != "" {
		return ir.Name
	}
	if ref != "" {
		return ref
	}
	return strings.TrimSuffix(filepath.Base(args[0]), filepath.Ext(args[0]))
}

// startMetricsServer поднимает HTTP endpoint /metrics в фоне.
func startMetricsServer(addr string, logger *slog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("metrics server failed", "error", err)
		}
	}()
}
