package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/calder-io/flowgate/internal/diagram"
	"github.com/calder-io/flowgate/internal/store"
)

// runDiagram implements the "flowgate diagram" subcommand: it renders a
// stored workflow, optionally overlaid with one of its executions.
func runDiagram(args []string) error {
	fs := flag.NewFlagSet("diagram", flag.ContinueOnError)
	format := fs.String("format", "ascii", "output format: ascii or mermaid")
	executionID := fs.String("execution", "", "overlay step results from this execution")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("usage: flowgate diagram [-format ascii|mermaid] [-execution ID] <workflow-id>")
	}

	cfg := loadConfig()
	st, err := store.NewLibSQLStore("file:" + cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	out, err := renderWorkflowDiagram(context.Background(), st, fs.Arg(0), *executionID, *format)
	if err != nil {
		return err
	}
	fmt.Fprint(os.Stdout, out)
	return nil
}

func renderWorkflowDiagram(ctx context.Context, st store.Store, workflowID, executionID, format string) (string, error) {
	wf, err := st.GetWorkflow(ctx, workflowID)
	if err != nil {
		return "", fmt.Errorf("load workflow: %w", err)
	}
	if wf == nil {
		return "", fmt.Errorf("workflow %s not found", workflowID)
	}

	var ex *store.Execution
	if executionID != "" {
		ex, err = st.GetExecution(ctx, executionID)
		if err != nil {
			return "", fmt.Errorf("load execution: %w", err)
		}
		if ex == nil {
			return "", fmt.Errorf("execution %s not found", executionID)
		}
		if ex.WorkflowID != wf.ID {
			return "", fmt.Errorf("execution %s does not belong to workflow %s", executionID, workflowID)
		}
	}

	model := diagram.Build(wf, ex)
	switch format {
	case "mermaid":
		return diagram.RenderMermaid(model), nil
	case "ascii":
		return diagram.RenderASCII(model), nil
	default:
		return "", fmt.Errorf("unknown format %q (want ascii or mermaid)", format)
	}
}
