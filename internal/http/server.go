package http

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/stackagent/conductor/internal/log"
	"github.com/stackagent/conductor/internal/service"
	"github.com/stackagent/conductor/pkg/engine"
	"github.com/stackagent/conductor/pkg/graph"
	"github.com/stackagent/conductor/pkg/models"
	"github.com/stackagent/conductor/pkg/storage"
)

// StartServer serves the workflow API on the given port and blocks.
func StartServer(port string, svc *service.WorkflowService) error {
	log.GetLogger().Infof("Starting Conductor server on :%s", port)
	return http.ListenAndServe(":"+port, Handler(svc))
}

// Handler builds the API routing table.
func Handler(svc *service.WorkflowService) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", healthHandler)
	mux.HandleFunc("/workflows", workflowsHandler(svc))
	mux.HandleFunc("/workflows/", workflowHandler(svc))
	mux.HandleFunc("/executions", executionsHandler(svc))
	mux.HandleFunc("/executions/", executionHandler(svc))
	mux.Handle("/metrics", promhttp.Handler())
	return mux
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	fmt.Fprintf(w, "Conductor server is running")
}

func workflowsHandler(svc *service.WorkflowService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			listWorkflowsHTTP(w, svc)
		case http.MethodPost:
			createWorkflowHTTP(w, r, svc)
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	}
}

// workflowHandler routes /workflows/{id} and /workflows/{id}/executions.
func workflowHandler(svc *service.WorkflowService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		parts := strings.Split(strings.Trim(strings.TrimPrefix(r.URL.Path, "/workflows/"), "/"), "/")
		id, err := strconv.ParseInt(parts[0], 10, 64)
		if err != nil {
			http.Error(w, "Invalid workflow ID", http.StatusBadRequest)
			return
		}
		switch {
		case len(parts) == 1 && r.Method == http.MethodGet:
			getWorkflowHTTP(w, svc, id)
		case len(parts) == 2 && parts[1] == "executions" && r.Method == http.MethodPost:
			startExecutionHTTP(w, r, svc, id)
		default:
			http.NotFound(w, r)
		}
	}
}

func executionsHandler(svc *service.WorkflowService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		executions := svc.ListExecutions()
		summaries := make([]executionSummary, 0, len(executions))
		for _, exec := range executions {
			summaries = append(summaries, summarize(exec))
		}
		writeJSON(w, http.StatusOK, summaries)
	}
}

// executionHandler routes /executions/{id}, /executions/{id}/logs and
// /executions/{id}/cancel.
func executionHandler(svc *service.WorkflowService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		parts := strings.Split(strings.Trim(strings.TrimPrefix(r.URL.Path, "/executions/"), "/"), "/")
		id := parts[0]
		if id == "" {
			http.NotFound(w, r)
			return
		}
		switch {
		case len(parts) == 1 && r.Method == http.MethodGet:
			getExecutionHTTP(w, svc, id)
		case len(parts) == 2 && parts[1] == "logs" && r.Method == http.MethodGet:
			getExecutionLogsHTTP(w, svc, id)
		case len(parts) == 2 && parts[1] == "cancel" && r.Method == http.MethodPost:
			cancelExecutionHTTP(w, svc, id)
		default:
			http.NotFound(w, r)
		}
	}
}

func createWorkflowHTTP(w http.ResponseWriter, r *http.Request, svc *service.WorkflowService) {
	var wf models.WorkflowDefinition
	if err := json.NewDecoder(r.Body).Decode(&wf); err != nil {
		http.Error(w, fmt.Sprintf("Invalid workflow definition: %v", err), http.StatusBadRequest)
		return
	}
	id, err := svc.CreateWorkflow(wf)
	if err != nil {
		if graph.IsValidationError(err) || strings.Contains(err.Error(), "workflow name") || strings.Contains(err.Error(), "on_error policy") {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		log.GetLogger().Errorf("Failed to create workflow: %v", err)
		http.Error(w, fmt.Sprintf("Failed to create workflow: %v", err), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"id": id, "name": wf.Name})
}

func listWorkflowsHTTP(w http.ResponseWriter, svc *service.WorkflowService) {
	workflows, err := svc.ListWorkflows()
	if err != nil {
		log.GetLogger().Errorf("Failed to list workflows: %v", err)
		http.Error(w, fmt.Sprintf("Failed to list workflows: %v", err), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, workflows)
}

func getWorkflowHTTP(w http.ResponseWriter, svc *service.WorkflowService, id int64) {
	wf, err := svc.GetWorkflow(id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			http.Error(w, "Workflow not found", http.StatusNotFound)
			return
		}
		log.GetLogger().Errorf("Failed to get workflow %d: %v", id, err)
		http.Error(w, fmt.Sprintf("Failed to get workflow: %v", err), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, wf)
}

func startExecutionHTTP(w http.ResponseWriter, r *http.Request, svc *service.WorkflowService, workflowID int64) {
	var body struct {
		Variables map[string]any `json:"variables"`
	}
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, fmt.Sprintf("Invalid request body: %v", err), http.StatusBadRequest)
			return
		}
	}
	execID, err := svc.StartExecution(workflowID, body.Variables)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			http.Error(w, "Workflow not found", http.StatusNotFound)
			return
		}
		log.GetLogger().Errorf("Failed to start execution of workflow %d: %v", workflowID, err)
		http.Error(w, fmt.Sprintf("Failed to start execution: %v", err), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"execution_id": execID})
}

func getExecutionHTTP(w http.ResponseWriter, svc *service.WorkflowService, id string) {
	exec, err := svc.GetExecution(id)
	if err != nil {
		if errors.Is(err, engine.ErrExecutionNotFound) {
			http.Error(w, "Execution not found", http.StatusNotFound)
			return
		}
		log.GetLogger().Errorf("Failed to get execution %s: %v", id, err)
		http.Error(w, fmt.Sprintf("Failed to get execution: %v", err), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, exec)
}

func getExecutionLogsHTTP(w http.ResponseWriter, svc *service.WorkflowService, id string) {
	logs, err := svc.GetExecutionLogs(id)
	if err != nil {
		if errors.Is(err, engine.ErrExecutionNotFound) {
			http.Error(w, "Execution not found", http.StatusNotFound)
			return
		}
		log.GetLogger().Errorf("Failed to get logs for execution %s: %v", id, err)
		http.Error(w, fmt.Sprintf("Failed to get logs: %v", err), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, logs)
}

func cancelExecutionHTTP(w http.ResponseWriter, svc *service.WorkflowService, id string) {
	if err := svc.CancelExecution(id); err != nil {
		if errors.Is(err, engine.ErrExecutionNotFound) {
			http.Error(w, "Execution not found", http.StatusNotFound)
			return
		}
		log.GetLogger().Errorf("Failed to cancel execution %s: %v", id, err)
		http.Error(w, fmt.Sprintf("Failed to cancel execution: %v", err), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"execution_id": id, "cancelled": true})
}

// executionSummary is the list-view shape; task details are only in the
// single-execution response.
type executionSummary struct {
	ID           string                 `json:"id"`
	WorkflowName string                 `json:"workflow_name"`
	Status       models.ExecutionStatus `json:"status"`
	Progress     float64                `json:"progress"`
	ErrorMsg     string                 `json:"error,omitempty"`
}

func summarize(exec models.Execution) executionSummary {
	return executionSummary{
		ID:           exec.ID,
		WorkflowName: exec.WorkflowName,
		Status:       exec.Status,
		Progress:     exec.Progress,
		ErrorMsg:     exec.ErrorMsg,
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.GetLogger().Errorf("Failed to encode response: %v", err)
	}
}
