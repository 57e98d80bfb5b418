package sweep

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/calderml/sweep/internal/platform/logger"
)

// defaultResultFile is where a trial command writes its final objective
// value when no other name is configured.
const defaultResultFile = "objective.txt"

// CommandObjective evaluates trials by launching an external command,
// typically a training script. Each trial gets its own run directory
// under RunRoot; the sampled parameters are appended to the command line
// as dotted key=value overrides, and the final objective value is read
// back from a result file the command writes into its run directory.
type CommandObjective struct {
	// Program is the executable to launch for every trial.
	Program string

	// Args are fixed arguments placed before the per-trial overrides.
	Args []string

	// RunRoot is the directory trial run directories are created under.
	RunRoot string

	// ResultFile is the file name, relative to the trial's run directory,
	// the command writes the objective value to. Defaults to objective.txt.
	ResultFile string

	// Env holds extra KEY=VALUE entries appended to the inherited
	// environment.
	Env []string
}

// Evaluate runs the configured command for one trial and parses the
// objective value it reports.
func (c *CommandObjective) Evaluate(ctx context.Context, trial *ActiveTrial) (float64, error) {
	log := logger.FromContext(ctx)

	runDir := filepath.Join(c.RunRoot, fmt.Sprintf("trial-%d", trial.Number()))
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		return 0, fmt.Errorf("failed to create trial run directory: %w", err)
	}

	args := make([]string, 0, len(c.Args)+len(trial.Params()))
	args = append(args, c.Args...)
	args = append(args, overrideArgs(trial)...)

	cmd := exec.CommandContext(ctx, c.Program, args...)
	cmd.Dir = runDir
	cmd.Env = append(os.Environ(), c.Env...)
	cmd.Env = append(cmd.Env,
		"SWEEP_RUN_DIR="+runDir,
		"SWEEP_TRIAL_NUMBER="+strconv.Itoa(trial.Number()),
	)

	stdout, err := os.Create(filepath.Join(runDir, "stdout.log"))
	if err != nil {
		return 0, fmt.Errorf("failed to create stdout log: %w", err)
	}
	defer func() { _ = stdout.Close() }()

	stderr, err := os.Create(filepath.Join(runDir, "stderr.log"))
	if err != nil {
		return 0, fmt.Errorf("failed to create stderr log: %w", err)
	}
	defer func() { _ = stderr.Close() }()

	cmd.Stdout = stdout
	cmd.Stderr = stderr

	log.Debug("launching trial command",
		"program", c.Program,
		"args", args,
		"run_dir", runDir)

	if err := cmd.Run(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return 0, ctxErr
		}
		return 0, fmt.Errorf("trial command failed: %w", err)
	}

	return c.readResult(runDir)
}

// readResult parses the objective value the command wrote.
func (c *CommandObjective) readResult(runDir string) (float64, error) {
	name := c.ResultFile
	if name == "" {
		name = defaultResultFile
	}

	data, err := os.ReadFile(filepath.Join(runDir, name))
	if err != nil {
		return 0, fmt.Errorf("trial command wrote no result file: %w", err)
	}

	value, err := strconv.ParseFloat(strings.TrimSpace(string(data)), 64)
	if err != nil {
		return 0, fmt.Errorf("result file %q does not hold a number: %w", name, err)
	}

	return value, nil
}

// overrideArgs renders the trial's params as dotted key=value command
// line overrides, in stable key order.
func overrideArgs(trial *ActiveTrial) []string {
	params := trial.Params()

	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	args := make([]string, 0, len(keys))
	for _, k := range keys {
		args = append(args, k+"="+formatParam(params[k]))
	}
	return args
}

func formatParam(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case int:
		return strconv.Itoa(x)
	case float64:
		return strconv.FormatFloat(x, 'g', -1, 64)
	case bool:
		return strconv.FormatBool(x)
	default:
		return fmt.Sprintf("%v", x)
	}
}
