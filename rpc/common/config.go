package common

import (
	"fmt"
	"strings"

	"github.com/ValentinKolb/dVol/lib/volume"
)

// --------------------------------------------------------------------------
// Worker modes
// --------------------------------------------------------------------------

// WorkerMode selects where background work runs.
type WorkerMode string

const (
	WorkerModeInProc  WorkerMode = "inproc"  // goroutine workers in this process
	WorkerModeProcess WorkerMode = "process" // child processes speaking the stream protocol over stdio
	WorkerModeNone    WorkerMode = "none"    // no workers, every call runs inline
)

// ParseWorkerMode converts a string to a WorkerMode.
func ParseWorkerMode(s string) (WorkerMode, error) {
	switch WorkerMode(strings.ToLower(s)) {
	case WorkerModeInProc:
		return WorkerModeInProc, nil
	case WorkerModeProcess:
		return WorkerModeProcess, nil
	case WorkerModeNone:
		return WorkerModeNone, nil
	default:
		return "", fmt.Errorf("invalid worker mode: %s. must be one of inproc, process, none", s)
	}
}

// --------------------------------------------------------------------------
// Coordinator configuration struct
// --------------------------------------------------------------------------

// CoordinatorConfig holds the configuration shared by all dVol commands.
type CoordinatorConfig struct {
	// Background execution
	WorkerMode WorkerMode
	Serializer string   // binary, json or gob (process mode)
	WorkerCmd  []string // command starting a worker process (process mode)

	// Codec parameters
	ChunkSize   int
	Compression volume.Compression
	PieceSize   int

	// Logging configuration
	LogLevel string
}

// ExportOptions returns the export options for this configuration.
func (c *CoordinatorConfig) ExportOptions(stream bool) ExportOptions {
	return ExportOptions{
		ChunkSize:   c.ChunkSize,
		Compression: c.Compression,
		Stream:      stream,
	}
}

// String returns a formatted string representation of the configuration
func (c *CoordinatorConfig) String() string {
	var sb strings.Builder

	// Create helper functions for consistent formatting
	addSection := func(title string) {
		sb.WriteString("\n")
		sb.WriteString(fmt.Sprintf("%s\n", strings.ToUpper(title)))
	}

	addField := func(name, value string) {
		sb.WriteString(fmt.Sprintf("  %-22s: %s\n", name, value))
	}

	// Workers
	addSection("Workers")
	addField("Mode", string(c.WorkerMode))
	if c.WorkerMode == WorkerModeProcess {
		addField("Serializer", c.Serializer)
		addField("Command", strings.Join(c.WorkerCmd, " "))
	}

	// Codec
	addSection("Codec")
	addField("Chunk Size", fmt.Sprintf("%d bytes", c.ChunkSize))
	addField("Compression", c.Compression.String())
	addField("Piece Size", fmt.Sprintf("%d bytes", c.PieceSize))

	// Logging configuration
	addSection("Logging")
	addField("Log Level", c.LogLevel)

	return sb.String()
}
