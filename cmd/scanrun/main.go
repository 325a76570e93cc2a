package main

import (
	"fmt"
	"os"
	goruntime "runtime"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const version = "0.3.0"

var (
	verbose bool
	logger  *zap.Logger

	rootCmd = &cobra.Command{
		Use:   "scanrun",
		Short: "Compile and execute scan loops described in YAML",
		Long: `scanrun compiles a loop description (streams, initial state and a step
program) and executes it with the scan runtime.`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			logger = newLogger(verbose)
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			_ = logger.Sync()
		},
	}

	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "scanrun v%s (%s %s/%s)\n",
				version, goruntime.Version(), goruntime.GOOS, goruntime.GOARCH)
		},
	}
)

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log loop lifecycle events to stderr")
	rootCmd.AddCommand(runCmd, checkCmd, benchCmd, versionCmd)
}

// newLogger writes console-encoded entries to stderr. Loop events are logged
// at debug level, so they only show up with --verbose.
func newLogger(verbose bool) *zap.Logger {
	level := zap.InfoLevel
	if verbose {
		level = zap.DebugLevel
	}
	core := zapcore.NewCore(
		zapcore.NewConsoleEncoder(zap.NewDevelopmentEncoderConfig()),
		zapcore.Lock(os.Stderr),
		level,
	)
	return zap.New(core)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
