package config

const (
	defaultDataDir            = "~/.local/share/scanpipe"
	defaultLogDir             = "~/.local/share/scanpipe/logs"
	defaultOutputDir          = "~/digitization"
	defaultDerivativeType     = "jpg"
	defaultDerivativeCommand  = "magick"
	defaultPreservationDir    = "preservation"
	defaultWorkerCount        = 4
	defaultLogFormat          = "console"
	defaultLogLevel           = "info"
	defaultLogStreamCapacity  = 512
	storageLocationEnvVar     = "SCANPIPE_STORAGE_LOCATION"
	derivativeInputToken      = "{input}"
	derivativeOutputToken     = "{output}"
	databaseFileName          = "scanpipe.db"
	lockFileName              = "scanpipe.lock"
	defaultGenerateDerivative = true
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir:   defaultDataDir,
			LogDir:    defaultLogDir,
			OutputDir: defaultOutputDir,
		},
		Pipeline: Pipeline{
			GenerateDerivatives: defaultGenerateDerivative,
			DerivativeType:      defaultDerivativeType,
			DerivativeCommand:   defaultDerivativeCommand,
			DerivativeArgs:      []string{derivativeInputToken, derivativeOutputToken},
			ScanExtensions:      []string{".tif", ".tiff"},
			PreservationDir:     defaultPreservationDir,
		},
		Workflow: Workflow{
			WorkerCount: defaultWorkerCount,
		},
		Logging: Logging{
			Format:         defaultLogFormat,
			Level:          defaultLogLevel,
			StreamCapacity: defaultLogStreamCapacity,
		},
	}
}
