package config

import (
	"errors"
	"fmt"
	"slices"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePipeline(); err != nil {
		return err
	}
	if err := c.validateWorkflow(); err != nil {
		return err
	}
	return c.validateLogging()
}

func (c *Config) validatePipeline() error {
	if len(c.Pipeline.ScanExtensions) == 0 {
		return errors.New("pipeline.scan_extensions must list at least one extension")
	}
	if strings.ContainsAny(c.Pipeline.PreservationDir, `/\`) {
		return fmt.Errorf("pipeline.preservation_dir must be a single directory name, got %q", c.Pipeline.PreservationDir)
	}
	if !c.Pipeline.GenerateDerivatives {
		return nil
	}
	if c.Pipeline.DerivativeType == "" {
		return errors.New("pipeline.derivative_type must be set when pipeline.generate_derivatives is true")
	}
	if strings.ContainsAny(c.Pipeline.DerivativeType, `/\ `) {
		return fmt.Errorf("pipeline.derivative_type %q is not a file extension", c.Pipeline.DerivativeType)
	}
	if c.Pipeline.DerivativeCommand == "" {
		return errors.New("pipeline.derivative_command must be set when pipeline.generate_derivatives is true")
	}
	if !slices.Contains(c.Pipeline.DerivativeArgs, derivativeInputToken) || !slices.Contains(c.Pipeline.DerivativeArgs, derivativeOutputToken) {
		return fmt.Errorf("pipeline.derivative_args must include %s and %s", derivativeInputToken, derivativeOutputToken)
	}
	return nil
}

func (c *Config) validateWorkflow() error {
	if err := ensurePositiveMap(map[string]int{
		"workflow.worker_count":   c.Workflow.WorkerCount,
		"logging.stream_capacity": c.Logging.StreamCapacity,
	}); err != nil {
		return err
	}
	if c.Workflow.TaskTimeout < 0 {
		return errors.New("workflow.task_timeout must not be negative")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
		return nil
	default:
		return fmt.Errorf("logging.level %q must be one of debug, info, warn, error", c.Logging.Level)
	}
}

func ensurePositiveMap(values map[string]int) error {
	for key, value := range values {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}
