package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizePipeline()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.DataDir) == "" {
		c.Paths.DataDir = defaultDataDir
	}
	if c.Paths.DataDir, err = expandPath(c.Paths.DataDir); err != nil {
		return fmt.Errorf("paths.data_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	if c.Paths.OutputDir, err = expandPath(strings.TrimSpace(c.Paths.OutputDir)); err != nil {
		return fmt.Errorf("paths.output_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.ScanStorageLocation) == "" {
		if value, ok := os.LookupEnv(storageLocationEnvVar); ok {
			c.Paths.ScanStorageLocation = value
		}
	}
	if c.Paths.ScanStorageLocation, err = expandPath(strings.TrimSpace(c.Paths.ScanStorageLocation)); err != nil {
		return fmt.Errorf("paths.scan_storage_location: %w", err)
	}
	return nil
}

func (c *Config) normalizePipeline() {
	c.Pipeline.DerivativeType = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(c.Pipeline.DerivativeType), "."))
	c.Pipeline.DerivativeCommand = strings.TrimSpace(c.Pipeline.DerivativeCommand)
	if len(c.Pipeline.DerivativeArgs) == 0 {
		c.Pipeline.DerivativeArgs = []string{derivativeInputToken, derivativeOutputToken}
	}
	c.Pipeline.PreservationDir = strings.TrimSpace(c.Pipeline.PreservationDir)
	if c.Pipeline.PreservationDir == "" {
		c.Pipeline.PreservationDir = defaultPreservationDir
	}

	exts := make([]string, 0, len(c.Pipeline.ScanExtensions))
	seen := make(map[string]struct{}, len(c.Pipeline.ScanExtensions))
	for _, ext := range c.Pipeline.ScanExtensions {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext == "" {
			continue
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		if _, ok := seen[ext]; ok {
			continue
		}
		seen[ext] = struct{}{}
		exts = append(exts, ext)
	}
	c.Pipeline.ScanExtensions = exts
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "", "console":
		c.Logging.Format = "console"
	case "json":
	default:
		c.Logging.Format = "console"
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
	if c.Logging.StreamCapacity == 0 {
		c.Logging.StreamCapacity = defaultLogStreamCapacity
	}
}
