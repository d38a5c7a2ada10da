package util

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/ValentinKolb/dVol/lib/volume"
	"github.com/ValentinKolb/dVol/rpc/client"
	"github.com/ValentinKolb/dVol/rpc/common"
	"github.com/joho/godotenv"
	"github.com/lni/dragonboat/v4/logger"
	gometrics "github.com/rcrowley/go-metrics"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	// Wrap is the number of characters to Wrap the help text at
	Wrap int = 50
)

// Logger is the logger of all dvol commands
var Logger = logger.GetLogger("cli")

// WrapString wraps a string at Wrap characters
func WrapString(text string) string {
	var wrappedLines []string
	var currentLine strings.Builder
	lineWidth := 0

	for _, word := range strings.Fields(text) {
		wordWidth := len(word)

		// Check if we need to wrap
		if lineWidth > 0 && lineWidth+1+wordWidth > Wrap {
			wrappedLines = append(wrappedLines, currentLine.String())
			currentLine.Reset()
			lineWidth = 0
		}

		// Add space before word (if not first word on line)
		if lineWidth > 0 {
			currentLine.WriteString(" ")
			lineWidth++
		}

		currentLine.WriteString(word)
		lineWidth += wordWidth
	}

	// Add any remaining text
	if currentLine.Len() > 0 {
		wrappedLines = append(wrappedLines, currentLine.String())
	}

	return strings.Join(wrappedLines, "\n")
}

// SetupCoordinatorFlags adds the worker and codec flags to a command
func SetupCoordinatorFlags(cmd *cobra.Command) {
	key := "worker-mode"
	cmd.PersistentFlags().String(key, string(common.WorkerModeInProc), WrapString("Where background work runs (inproc, process, none). In process mode every worker is a child process started with --worker-cmd"))

	key = "serializer"
	cmd.PersistentFlags().String(key, "binary", WrapString("serializer used between coordinator and worker processes (binary, json, gob)"))

	key = "worker-cmd"
	cmd.PersistentFlags().String(key, "", WrapString("Command starting a worker process (process mode). Defaults to this binary with the worker subcommand"))

	key = "chunk-size"
	cmd.PersistentFlags().Int(key, 4096, WrapString("Raw size of a payload chunk in KB"))

	key = "compression"
	cmd.PersistentFlags().String(key, "none", WrapString("Per-chunk compression of exported containers (none, zstd, snappy)"))

	key = "piece-size"
	cmd.PersistentFlags().Int(key, 1024, WrapString("Size of the pieces an import reads from its source in KB"))

	key = "log-level"
	cmd.PersistentFlags().String(key, "info", WrapString("LogLevel is the level at which logs will be output (debug, info, warn, error)"))

	key = "stats"
	cmd.PersistentFlags().Bool(key, false, WrapString("Print the coordinator round trip timers to stderr when the command finishes"))
}

// InitConfig initializes configuration from environment variables
func InitConfig() {
	// load env files
	_ = godotenv.Load(".env")
	_ = godotenv.Load(".env.local")

	// initialize viper
	viper.SetEnvPrefix("dvol")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv() // read in environment variables that match
}

// BindCommandFlags binds a command's flags to viper and initializes the
// loggers with the configured level
func BindCommandFlags(cmd *cobra.Command) error {
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return err
	}
	return common.InitLoggers(viper.GetString("log-level"))
}

// GetCoordinatorConfig reads the coordinator configuration from viper
func GetCoordinatorConfig() (*common.CoordinatorConfig, error) {
	mode, err := common.ParseWorkerMode(viper.GetString("worker-mode"))
	if err != nil {
		return nil, err
	}
	compression, err := volume.ParseCompression(viper.GetString("compression"))
	if err != nil {
		return nil, err
	}

	conf := &common.CoordinatorConfig{
		WorkerMode:  mode,
		Serializer:  viper.GetString("serializer"),
		ChunkSize:   viper.GetInt("chunk-size") * 1024,
		Compression: compression,
		PieceSize:   viper.GetInt("piece-size") * 1024,
		LogLevel:    viper.GetString("log-level"),
	}

	if mode == common.WorkerModeProcess {
		if raw := viper.GetString("worker-cmd"); raw != "" {
			conf.WorkerCmd = strings.Fields(raw)
		} else {
			self, err := os.Executable()
			if err != nil {
				return nil, fmt.Errorf("failed to locate dvol binary: %w", err)
			}
			conf.WorkerCmd = []string{self, "worker", "--serializer", conf.Serializer, "--log-level", conf.LogLevel}
		}
	}

	return conf, nil
}

// NewCoordinator creates a coordinator for the configuration. The caller
// must Dispose it.
func NewCoordinator(conf *common.CoordinatorConfig) (*client.Coordinator, error) {
	factory, err := client.NewFactory(conf)
	if err != nil {
		return nil, err
	}
	Logger.Debugf("Coordinator configuration:%s", conf)
	return client.NewCoordinator(factory), nil
}

// PrintStats writes the coordinator timers to stderr if --stats is set
func PrintStats(c *client.Coordinator) {
	if !viper.GetBool("stats") {
		return
	}
	gometrics.WriteOnce(c.Registry(), os.Stderr)
}

// SignalContext returns a context cancelled on SIGINT or SIGTERM
func SignalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// FormatBytes renders a byte count for humans
func FormatBytes(n uint64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := uint64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}

// Elapsed formats the time since start in milliseconds
func Elapsed(start time.Time) string {
	return fmt.Sprintf("%.1fms", float64(time.Since(start).Microseconds())/1000)
}
