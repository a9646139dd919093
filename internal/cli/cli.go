package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/stackagent/conductor/internal/config"
	internal_http "github.com/stackagent/conductor/internal/http"
	"github.com/stackagent/conductor/internal/log"
	"github.com/stackagent/conductor/internal/metrics"
	"github.com/stackagent/conductor/internal/service"
	internal_storage "github.com/stackagent/conductor/internal/storage"
	"github.com/stackagent/conductor/pkg/agent"
	"github.com/stackagent/conductor/pkg/engine"
	"github.com/stackagent/conductor/pkg/models"
	"github.com/stackagent/conductor/pkg/storage"
)

func SetupCLI(rootCmd *cobra.Command) {
	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the Conductor API server",
		Run: func(cmd *cobra.Command, args []string) {
			cfg := config.Load()
			if db, _ := cmd.Flags().GetString("db"); db != "" {
				cfg.DBConnStr = db
			}
			if port, _ := cmd.Flags().GetString("port"); port != "" {
				cfg.Port = port
			}
			store := initStore(cfg.DBConnStr)
			defer store.Close()

			svc := newService(store, cfg, metrics.NewEngineMetrics())
			if err := svc.RegisterTemplates(); err != nil {
				log.GetLogger().Errorf("Failed to register workflow templates: %v", err)
				os.Exit(1)
			}
			if err := internal_http.StartServer(cfg.Port, svc); err != nil {
				log.GetLogger().Errorf("Server stopped: %v", err)
				os.Exit(1)
			}
		},
	}
	serveCmd.Flags().String("port", "", "Port to listen on (overrides PORT)")

	createCmd := &cobra.Command{
		Use:   "create [definition.json]",
		Short: "Create a workflow from a JSON definition file",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			dbConnStr, err := cmd.Flags().GetString("db")
			if err != nil {
				log.GetLogger().Errorf("Error retrieving db flag: %v", err)
				os.Exit(1)
			}
			wf := loadDefinition(args[0])
			cfg := config.Load()
			if dbConnStr != "" {
				cfg.DBConnStr = dbConnStr
			}
			store := initStore(cfg.DBConnStr)
			defer store.Close()
			svc := newService(store, cfg, nil)
			createWorkflow(svc, wf)
		},
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List all workflows",
		Run: func(cmd *cobra.Command, args []string) {
			dbConnStr, err := cmd.Flags().GetString("db")
			if err != nil {
				log.GetLogger().Errorf("Error retrieving db flag: %v", err)
				os.Exit(1)
			}
			cfg := config.Load()
			if dbConnStr != "" {
				cfg.DBConnStr = dbConnStr
			}
			store := initStore(cfg.DBConnStr)
			defer store.Close()
			svc := newService(store, cfg, nil)
			listWorkflows(svc)
		},
	}

	statusCmd := &cobra.Command{
		Use:   "status [execution-id]",
		Short: "Show the recorded status of an execution",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			dbConnStr, err := cmd.Flags().GetString("db")
			if err != nil {
				log.GetLogger().Errorf("Error retrieving db flag: %v", err)
				os.Exit(1)
			}
			cfg := config.Load()
			if dbConnStr != "" {
				cfg.DBConnStr = dbConnStr
			}
			store := initStore(cfg.DBConnStr)
			defer store.Close()
			showExecutionStatus(store, args[0])
		},
	}

	runCmd := &cobra.Command{
		Use:   "run [definition.json]",
		Short: "Run a workflow definition in-process and print the outcome",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			wf := loadDefinition(args[0])
			vars, err := cmd.Flags().GetStringArray("var")
			if err != nil {
				log.GetLogger().Errorf("Error retrieving var flag: %v", err)
				os.Exit(1)
			}
			if wf.Variables == nil {
				wf.Variables = make(map[string]any)
			}
			for _, kv := range vars {
				parts := strings.SplitN(kv, "=", 2)
				if len(parts) != 2 {
					fmt.Fprintf(os.Stderr, "Error: --var expects key=value, got %q\n", kv)
					os.Exit(1)
				}
				wf.Variables[parts[0]] = parts[1]
			}
			runWorkflow(wf)
		},
	}
	runCmd.Flags().StringArray("var", nil, "Workflow variable override (key=value, repeatable)")

	rootCmd.AddCommand(serveCmd, createCmd, listCmd, statusCmd, runCmd)
}

func newService(store storage.Store, cfg config.Config, m engine.Metrics) *service.WorkflowService {
	logger := log.GetLogger()
	state := engine.NewStateStore()
	eng := engine.New(agent.Builtin(), state, logger, engine.Config{
		MaxConcurrency: cfg.MaxConcurrency,
		RetryBaseDelay: cfg.RetryBaseDelay,
		RetryMaxDelay:  cfg.RetryMaxDelay,
		Metrics:        m,
	})
	return service.NewWorkflowService(store, eng, state, logger)
}

func loadDefinition(path string) models.WorkflowDefinition {
	data, err := os.ReadFile(path)
	if err != nil {
		log.GetLogger().Errorf("Failed to read definition file: %v", err)
		fmt.Fprintf(os.Stderr, "Error: failed to read %s: %v\n", path, err)
		os.Exit(1)
	}
	var wf models.WorkflowDefinition
	if err := json.Unmarshal(data, &wf); err != nil {
		log.GetLogger().Errorf("Failed to parse definition file: %v", err)
		fmt.Fprintf(os.Stderr, "Error: invalid workflow definition in %s: %v\n", path, err)
		os.Exit(1)
	}
	return wf
}

func createWorkflow(svc *service.WorkflowService, wf models.WorkflowDefinition) {
	id, err := svc.CreateWorkflow(wf)
	if err != nil {
		log.GetLogger().Errorf("Failed to create workflow: %v", err)
		fmt.Fprintf(os.Stderr, "Error: failed to create workflow: %v\n", err)
		os.Exit(1)
	}
	fmt.Fprintf(os.Stdout, "Created workflow '%s' with ID %d\n", wf.Name, id)
}

func listWorkflows(svc *service.WorkflowService) {
	workflows, err := svc.ListWorkflows()
	if err != nil {
		log.GetLogger().Errorf("Failed to list workflows: %v", err)
		fmt.Fprintf(os.Stderr, "Error: failed to list workflows: %v\n", err)
		os.Exit(1)
	}
	if len(workflows) == 0 {
		fmt.Fprintf(os.Stdout, "No workflows found.\n")
		return
	}
	fmt.Fprintf(os.Stdout, "Workflows:\n")
	for _, wf := range workflows {
		fmt.Fprintf(os.Stdout, "- ID: %d, Name: %s, Tasks: %d, Created: %s\n",
			wf.ID, wf.Name, len(wf.Tasks), wf.CreatedAt.Format(time.RFC3339))
	}
}

func showExecutionStatus(store storage.Store, id string) {
	rec, err := store.GetExecution(id)
	if err != nil {
		log.GetLogger().Errorf("Failed to get execution %s: %v", id, err)
		fmt.Fprintf(os.Stderr, "Error: failed to get execution %s: %v\n", id, err)
		os.Exit(1)
	}
	fmt.Fprintf(os.Stdout, "Execution %s ('%s'): %s, progress %.2f\n",
		rec.ID, rec.WorkflowName, rec.Status, rec.Progress)
	if rec.ErrorMsg != "" {
		fmt.Fprintf(os.Stdout, "Error: %s\n", rec.ErrorMsg)
	}
	if rec.StartedAt != nil {
		fmt.Fprintf(os.Stdout, "Started: %s\n", rec.StartedAt.Format(time.RFC3339))
	}
	if rec.FinishedAt != nil {
		fmt.Fprintf(os.Stdout, "Finished: %s\n", rec.FinishedAt.Format(time.RFC3339))
	}
}

func runWorkflow(wf models.WorkflowDefinition) {
	logger := log.GetLogger()
	state := engine.NewStateStore()
	cfg := config.Load()
	eng := engine.New(agent.Builtin(), state, logger, engine.Config{
		MaxConcurrency: cfg.MaxConcurrency,
		RetryBaseDelay: cfg.RetryBaseDelay,
		RetryMaxDelay:  cfg.RetryMaxDelay,
	})
	exec, err := eng.Execute(context.Background(), wf)
	if err != nil {
		log.GetLogger().Errorf("Failed to run workflow: %v", err)
		fmt.Fprintf(os.Stderr, "Error: failed to run workflow: %v\n", err)
		os.Exit(1)
	}
	fmt.Fprintf(os.Stdout, "Execution %s finished with status %s\n", exec.ID, exec.Status)
	for _, name := range exec.TaskOrder {
		t := exec.Tasks[name]
		line := fmt.Sprintf("- %s: %s (attempts: %d)", t.Name, t.Status, t.Attempts)
		if t.ErrorMsg != "" {
			line += " error: " + t.ErrorMsg
		}
		fmt.Fprintln(os.Stdout, line)
	}
	if exec.Status != models.CompletedExecutionStatus {
		os.Exit(1)
	}
}

func initStore(dbConnStr string) *internal_storage.PostgresStore {
	store, err := internal_storage.InitStore(dbConnStr)
	if err != nil {
		log.GetLogger().Errorf("Failed to initialize store: %v", err)
		os.Exit(1)
	}
	return store
}
