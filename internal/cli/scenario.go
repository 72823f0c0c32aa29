package cli

import (
	"bytes"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/docsync/internal/harness"
)

// ScenarioOptions holds flags for the scenario command.
type ScenarioOptions struct {
	*RootOptions
	GoldenDir string // compare snapshots against <dir>/<name>.golden
	Update    bool   // rewrite golden files instead of comparing
}

// ScenarioResult holds the result of a single scenario execution.
type ScenarioResult struct {
	Name   string   `json:"name"`
	File   string   `json:"file"`
	Pass   bool     `json:"pass"`
	Errors []string `json:"errors,omitempty"`
}

// ScenarioReport holds the overall result.
type ScenarioReport struct {
	Scenarios []ScenarioResult `json:"scenarios"`
	Passed    int              `json:"passed"`
	Failed    int              `json:"failed"`
	Total     int              `json:"total"`
}

func (r ScenarioReport) Text() string {
	var b strings.Builder
	for _, s := range r.Scenarios {
		if s.Pass {
			fmt.Fprintf(&b, "PASS %s\n", s.Name)
			continue
		}
		fmt.Fprintf(&b, "FAIL %s\n", s.Name)
		for _, e := range s.Errors {
			fmt.Fprintf(&b, "  %s\n", e)
		}
	}
	fmt.Fprintf(&b, "%d passed, %d failed, %d total\n", r.Passed, r.Failed, r.Total)
	return b.String()
}

// NewScenarioCommand creates the scenario command.
func NewScenarioCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ScenarioOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "scenario <file.yaml>...",
		Short: "Run conflict resolution scenarios",
		Long: `Run harness scenarios, each in a fresh in-memory database, and check
their expectations.

Exit codes:
  0 - All scenarios passed
  1 - One or more scenarios failed
  2 - Command error

Examples:
  docsync scenario ./scenarios/inventory.yaml
  docsync scenario ./scenarios/*.yaml --golden ./golden
  docsync scenario ./scenarios/*.yaml --golden ./golden --update`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScenarios(opts, args, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.GoldenDir, "golden", "", "directory of golden snapshots to compare against")
	cmd.Flags().BoolVar(&opts.Update, "update", false, "regenerate golden files (requires --golden)")
	return cmd
}

func runScenarios(opts *ScenarioOptions, files []string, cmd *cobra.Command) error {
	if opts.Update && opts.GoldenDir == "" {
		return NewExitError(ExitCommandError, "--update requires --golden")
	}

	report := ScenarioReport{Scenarios: make([]ScenarioResult, 0, len(files)), Total: len(files)}
	for _, file := range files {
		res := runScenarioFile(opts, file)
		if res.Pass {
			report.Passed++
		} else {
			report.Failed++
		}
		report.Scenarios = append(report.Scenarios, res)
	}

	if err := opts.formatter(cmd).Success(report); err != nil {
		return err
	}
	if report.Failed > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d of %d scenario(s) failed", report.Failed, report.Total))
	}
	return nil
}

func runScenarioFile(opts *ScenarioOptions, file string) ScenarioResult {
	fail := func(name, msg string) ScenarioResult {
		return ScenarioResult{Name: name, File: file, Errors: []string{msg}}
	}

	scenario, err := harness.LoadScenario(file)
	if err != nil {
		return fail(filepath.Base(file), fmt.Sprintf("failed to load scenario: %v", err))
	}
	result, err := harness.Run(scenario)
	if err != nil {
		return fail(scenario.Name, fmt.Sprintf("execution failed: %v", err))
	}

	res := ScenarioResult{Name: scenario.Name, File: file, Pass: result.Pass, Errors: result.Errors}
	if opts.GoldenDir == "" {
		return res
	}

	snapshot, err := harness.Snapshot(scenario.Name, result)
	if err != nil {
		return fail(scenario.Name, fmt.Sprintf("snapshot failed: %v", err))
	}
	goldenPath := filepath.Join(opts.GoldenDir, scenario.Name+".golden")
	if opts.Update {
		if err := os.MkdirAll(opts.GoldenDir, 0o755); err != nil {
			return fail(scenario.Name, fmt.Sprintf("failed to create golden dir: %v", err))
		}
		if err := os.WriteFile(goldenPath, snapshot, 0o644); err != nil {
			return fail(scenario.Name, fmt.Sprintf("failed to write golden file: %v", err))
		}
		slog.Info("golden file updated", "path", goldenPath)
		return res
	}

	want, err := os.ReadFile(goldenPath)
	if err != nil {
		return fail(scenario.Name, fmt.Sprintf("failed to read golden file: %v", err))
	}
	if !bytes.Equal(want, snapshot) {
		res.Pass = false
		res.Errors = append(res.Errors, fmt.Sprintf("snapshot differs from %s", goldenPath))
	}
	return res
}
