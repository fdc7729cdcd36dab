package simulation

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/okian/arena/pkg/logger"
)

// File permission constants.
const (
	logFilePermission = 0600
)

// SetupLogging sends log output to stdout and, unless logFile is "-", to a
// file as well. An empty logFile picks a timestamped name. The returned
// function closes the file.
func SetupLogging(logFile, format string) (func() error, error) {
	if logFile == "-" {
		if err := logger.InitWith(os.Stdout, format); err != nil {
			return nil, fmt.Errorf("failed to initialize logger: %w", err)
		}
		return func() error { return nil }, nil
	}
	if logFile == "" {
		logFile = "simulation_" + time.Now().Format("20060102_150405") + ".log"
	}

	file, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, logFilePermission)
	if err != nil {
		return nil, fmt.Errorf("failed to create log file: %w", err)
	}
	if err := logger.InitWith(io.MultiWriter(os.Stdout, file), format); err != nil {
		_ = file.Close()
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return file.Close, nil
}

// ShowHelp prints usage information for the simulation tool.
func ShowHelp() {
	os.Stdout.WriteString(`Arena Convergence Simulation
============================

Casts synthetic ballots against an in-process rating service. Every item
has a hidden true quality per dimension; voters perceive it through
Gaussian noise. The report gives the Spearman rank correlation between
learned ratings and the truth, and each dimension's mean.

Usage:
  go run ./cmd/simulate [options]

Options:
  -items int        Number of items (default 100)
  -votes int        Number of ballots (default 20000)
  -workers int      Concurrent voters (default CPU cores)
  -spread float     Std dev of true quality in rating points (default 200)
  -noise float      Std dev of voter perception error (default 60)
  -draw float       Perceived gap treated as a draw (default 15)
  -seed int         Random seed (default 1)
  -min-spearman f   Exit non-zero if any dimension correlates below this
  -log string       Log file, "-" for stdout only (default: simulation_TIMESTAMP.log)
  -format string    Log format: text or json (default text)
  -verbose          Log progress while voting
  -help             Show this help message

Examples:
  go run ./cmd/simulate -votes 50000 -workers 16
  go run ./cmd/simulate -noise 150 -min-spearman 0.8 -log -
`)
}
