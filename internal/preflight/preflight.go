package preflight

import (
	"context"
	"strings"

	"scanpipe/internal/config"
	"scanpipe/internal/deps"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	Detail string
}

// RunAll executes all applicable preflight checks for the given config.
// Checks are only run when the corresponding feature is enabled.
func RunAll(ctx context.Context, cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}

	var results []Result
	results = append(results, CheckDirectoryAccess("Data directory", cfg.Paths.DataDir))
	results = append(results, CheckDirectoryAccess("Output directory", cfg.Paths.OutputDir))

	if strings.TrimSpace(cfg.Paths.ScanStorageLocation) != "" {
		results = append(results, CheckDirectoryAccess("Scan storage", cfg.Paths.ScanStorageLocation))
	}

	if cfg.Pipeline.GenerateDerivatives {
		for _, status := range CheckSystemDeps(ctx, cfg) {
			results = append(results, fromDependency(status))
		}
	}
	return results
}

// Failed returns the results that did not pass.
func Failed(results []Result) []Result {
	var failed []Result
	for _, result := range results {
		if !result.Passed {
			failed = append(failed, result)
		}
	}
	return failed
}

func fromDependency(status deps.Status) Result {
	if status.Available {
		return Result{Name: status.Name, Passed: true, Detail: status.Command + " (found)"}
	}
	return Result{Name: status.Name, Passed: status.Optional, Detail: status.Detail}
}
