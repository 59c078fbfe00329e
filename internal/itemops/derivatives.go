package itemops

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"scanpipe/internal/config"
	"scanpipe/internal/logging"
	"scanpipe/internal/pipeline"
	"scanpipe/internal/services"
	"scanpipe/internal/tasks"
)

const (
	inputToken  = "{input}"
	outputToken = "{output}"
)

// CommandRunner abstracts command execution for testability.
type CommandRunner interface {
	Run(ctx context.Context, binary string, args []string) ([]byte, error)
}

type commandRunner struct{}

func (commandRunner) Run(ctx context.Context, binary string, args []string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, binary, args...) //nolint:gosec
	var output bytes.Buffer
	cmd.Stdout = &output
	cmd.Stderr = &output
	err := cmd.Run()
	return output.Bytes(), err
}

// DerivativesOption configures the derivatives operation.
type DerivativesOption func(*Derivatives)

// WithCommandRunner injects a custom runner (primarily for tests).
func WithCommandRunner(runner CommandRunner) DerivativesOption {
	return func(d *Derivatives) {
		if runner != nil {
			d.runner = runner
		}
	}
}

// Derivatives renders one derivative per preservation scan with the
// configured external command.
type Derivatives struct {
	cfg    *config.Config
	layout Layout
	runner CommandRunner
	logger *slog.Logger
}

// NewDerivatives constructs the derivatives operation.
func NewDerivatives(cfg *config.Config, logger *slog.Logger, opts ...DerivativesOption) *Derivatives {
	d := &Derivatives{
		cfg:    cfg,
		layout: NewLayout(cfg),
		runner: commandRunner{},
		logger: logging.NewComponentLogger(logger, "derivatives"),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func (d *Derivatives) Execute(ctx context.Context, item tasks.WorkItem) (tasks.Outcome, error) {
	task := string(pipeline.TaskDerivatives)
	binary := d.cfg.DerivativeBinary()
	if _, ok := d.runner.(commandRunner); ok {
		if _, err := exec.LookPath(binary); err != nil {
			return tasks.Outcome{}, services.Wrap(services.ErrExternalTool, task, "locate command", fmt.Sprintf("derivative command %q not found", binary), err)
		}
	}

	preservation := d.layout.PreservationDir(item)
	scans, err := regularFiles(preservation)
	if err != nil {
		return tasks.Outcome{}, services.Wrap(services.ErrTransient, task, "list preservation", preservation, err)
	}
	if len(scans) == 0 {
		return tasks.Outcome{}, services.Wrap(services.ErrNotFound, task, "list preservation", fmt.Sprintf("no preservation scans in %s", preservation), nil)
	}

	outDir := d.layout.DerivativeDir(item)
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return tasks.Outcome{}, services.Wrap(services.ErrTransient, task, "create derivative dir", outDir, err)
	}

	generated, skipped := 0, 0
	for _, name := range scans {
		if err := ctx.Err(); err != nil {
			return tasks.Outcome{}, err
		}
		base := strings.TrimSuffix(name, filepath.Ext(name))
		output := filepath.Join(outDir, base+"."+d.cfg.Pipeline.DerivativeType)
		if info, err := os.Stat(output); err == nil && info.Size() > 0 {
			skipped++
			continue
		}
		args := expandArgs(d.cfg.Pipeline.DerivativeArgs, filepath.Join(preservation, name), output)
		out, err := d.runner.Run(ctx, binary, args)
		if err != nil {
			_ = os.Remove(output)
			if ctxErr := ctx.Err(); ctxErr != nil {
				return tasks.Outcome{}, ctxErr
			}
			detail := strings.TrimSpace(string(out))
			if detail == "" {
				detail = name
			} else {
				detail = name + ": " + detail
			}
			return tasks.Outcome{}, services.Wrap(services.ErrExternalTool, task, binary, detail, err)
		}
		d.logger.Debug("derivative generated", logging.String("scan", name), logging.String("output", filepath.Base(output)))
		generated++
	}

	message := fmt.Sprintf("generated %d %s derivatives", generated, d.cfg.Pipeline.DerivativeType)
	if skipped > 0 {
		message += fmt.Sprintf(", %d already present", skipped)
	}
	return tasks.Outcome{Message: message}, nil
}

// HealthCheck reports whether the derivative command is resolvable.
func (d *Derivatives) HealthCheck(context.Context) tasks.Health {
	binary := d.cfg.DerivativeBinary()
	if _, err := exec.LookPath(binary); err != nil {
		return tasks.Unhealthy(pipeline.TaskDerivatives, fmt.Sprintf("binary %q not found", binary))
	}
	return tasks.Healthy(pipeline.TaskDerivatives)
}

func expandArgs(template []string, input, output string) []string {
	args := make([]string, len(template))
	for i, arg := range template {
		arg = strings.ReplaceAll(arg, inputToken, input)
		args[i] = strings.ReplaceAll(arg, outputToken, output)
	}
	return args
}
