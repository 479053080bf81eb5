// Command camcal calibrates a camera from photographs of a chessboard target.
package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"camcal/internal/calib"

	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var (
	logLevel   = "info"
	configPath = ""
)

func setupLogger() error {
	level, err := logrus.ParseLevel(logLevel)
	if err != nil {
		return pkgerrors.Wrap(err, "failed to parse log level")
	}
	logrus.SetLevel(level)
	logrus.SetOutput(os.Stderr)
	logrus.SetFormatter(&logrus.TextFormatter{})
	if term.IsTerminal(int(os.Stderr.Fd())) {
		logrus.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: time.Kitchen,
		})
	}
	return nil
}

func handleCmdError(err error) {
	var inputErr *calib.InputError
	switch {
	case errors.Is(err, calib.ErrCancelled):
		fmt.Fprintln(os.Stderr, "\nCalibration stopped before the solve, nothing was written.")
	case errors.As(err, &inputErr):
		fmt.Fprintln(os.Stderr, "\nCheck the chessboard flags or the config file.")
	}
}

func main() {
	cmd := NewCommand()
	if err := cmd.Execute(); err != nil {
		handleCmdError(err)
		os.Exit(1)
	}
}

// NewCommand builds the camcal root command.
func NewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "camcal",
		Short: "camcal estimates camera intrinsics from chessboard photographs",
		Long: `camcal estimates camera intrinsics and lens distortion from photographs of a
planar chessboard target and stores them as an OpenCV compatible parameter file
(XML, JSON or YAML).`,
		SilenceUsage: true,
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			return setupLogger()
		},
	}

	globalFlags := cmd.PersistentFlags()
	globalFlags.StringVarP(&logLevel, "log-level", "l", "info", "log level (trace, debug, info, warn, error, fatal, panic)")
	globalFlags.StringVarP(&configPath, "config", "c", "", "run config file (YAML or JSON)")

	cmd.AddCommand(
		NewCalibrateCommand(),
		NewShowCommand(),
		NewConvertCommand(),
		NewServeCommand(),
		NewVersionCommand(),
	)

	return cmd
}
