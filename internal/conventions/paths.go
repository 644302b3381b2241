package conventions

import "path/filepath"

const (
	// DefaultDataDir is the default pipemeter data directory name (relative to home).
	DefaultDataDir = ".pipemeter"
	// DBFile is the default SQLite ledger filename.
	DBFile = "pipemeter.db"
	// LogsDir is the subdirectory for per-step log files.
	LogsDir = "logs"
	// StepLogExt is the extension of per-step log files.
	StepLogExt = ".log"
)

// DBPath returns the SQLite ledger path inside a data directory.
func DBPath(dataDir string) string {
	return filepath.Join(dataDir, DBFile)
}

// LogDir returns the step log directory inside a data directory.
func LogDir(dataDir string) string {
	return filepath.Join(dataDir, LogsDir)
}

// StepLogPath returns the log file path for a named step.
func StepLogPath(logDir, stepName string) string {
	return filepath.Join(logDir, stepName+StepLogExt)
}
