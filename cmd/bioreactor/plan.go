package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/fentz26/bioreactor/internal/models"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Generate and execute step plans",
}

var planGenerateCmd = &cobra.Command{
	Use:   "generate [prompt]",
	Short: "Ask the planner for a plan and print it as YAML",
	RunE:  runPlanGenerate,
}

var planExecCmd = &cobra.Command{
	Use:   "exec",
	Short: "Execute a plan from a file or a fresh prompt",
	Long: `Executes a plan and prints its step log.

The plan comes from --file (YAML or JSON) or, with --prompt, from the planner.
The command exits non-zero when the plan aborts.`,
	RunE: runPlanExec,
}

var (
	planFile   string
	planPrompt string
)

func init() {
	planCmd.AddCommand(planGenerateCmd, planExecCmd)

	planExecCmd.Flags().StringVarP(&planFile, "file", "f", "", "Plan file (.yaml, .yml or .json)")
	planExecCmd.Flags().StringVar(&planPrompt, "prompt", "", "Generate the plan from this prompt instead of a file")
	planExecCmd.MarkFlagsMutuallyExclusive("file", "prompt")
	planExecCmd.MarkFlagsOneRequired("file", "prompt")
}

func generatePlan(prompt string) (*models.PlanSpec, error) {
	resp, err := apiPost("/llm/plan", map[string]string{"prompt": prompt})
	if err != nil {
		return nil, err
	}

	var spec models.PlanSpec
	if err := json.Unmarshal(resp, &spec); err != nil {
		return nil, err
	}
	return &spec, nil
}

func runPlanGenerate(cmd *cobra.Command, args []string) error {
	spec, err := generatePlan(strings.Join(args, " "))
	if err != nil {
		return err
	}

	out, err := yaml.Marshal(spec)
	if err != nil {
		return err
	}
	fmt.Print(string(out))
	return nil
}

// loadPlanFile decodes a plan file by extension. Anything but .json is
// treated as YAML.
func loadPlanFile(path string) (*models.PlanSpec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read plan: %w", err)
	}

	var spec models.PlanSpec
	if strings.EqualFold(filepath.Ext(path), ".json") {
		err = json.Unmarshal(data, &spec)
	} else {
		err = yaml.Unmarshal(data, &spec)
	}
	if err != nil {
		return nil, fmt.Errorf("parse plan %s: %w", path, err)
	}
	if spec.Steps == nil {
		return nil, fmt.Errorf("parse plan %s: steps list required", path)
	}
	return &spec, nil
}

func runPlanExec(cmd *cobra.Command, args []string) error {
	var (
		spec *models.PlanSpec
		err  error
	)
	if planFile != "" {
		spec, err = loadPlanFile(planFile)
	} else {
		spec, err = generatePlan(planPrompt)
	}
	if err != nil {
		return err
	}

	if spec.Note != "" {
		fmt.Printf("Note: %s\n", spec.Note)
	}
	fmt.Printf("Executing %d step(s)...\n", len(spec.Steps))

	status, body, err := apiExecutePlan(spec)
	if err != nil {
		return err
	}

	switch status {
	case http.StatusOK:
		var res struct {
			Message     string            `json:"message"`
			Log         []models.LogEntry `json:"log"`
			ExecutionID string            `json:"execution_id"`
		}
		if err := json.Unmarshal(body, &res); err != nil {
			return err
		}
		printLog(res.Log)
		fmt.Printf("%s (execution %s)\n", res.Message, truncateID(res.ExecutionID))
		return nil

	case http.StatusInternalServerError:
		var res struct {
			Detail struct {
				Log []models.LogEntry `json:"log"`
			} `json:"detail"`
			ExecutionID string `json:"execution_id"`
		}
		if err := json.Unmarshal(body, &res); err != nil || res.Detail.Log == nil {
			return apiError(status, body)
		}
		printLog(res.Detail.Log)
		last := res.Detail.Log[len(res.Detail.Log)-1]
		return fmt.Errorf("plan aborted at step %d (execution %s)", last.Step, truncateID(res.ExecutionID))

	default:
		return apiError(status, body)
	}
}

func printLog(log []models.LogEntry) {
	for _, e := range log {
		fmt.Printf("  Step %d (%s) %s: %s\n", e.Step, e.Type, e.Status, formatDetails(e.Details))
	}
}

// formatDetails flattens log details: maps are printed with sorted keys.
func formatDetails(details interface{}) string {
	switch d := details.(type) {
	case string:
		return d
	case map[string]interface{}:
		parts := make([]string, 0, len(d))
		for _, k := range sortedKeys(d) {
			parts = append(parts, fmt.Sprintf("%s: %v", k, d[k]))
		}
		return strings.Join(parts, ", ")
	case nil:
		return ""
	default:
		return fmt.Sprint(d)
	}
}
