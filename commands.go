package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"camcal/internal/board"
	"camcal/internal/calib"
	"camcal/internal/config"
	"camcal/internal/opencv"
	"camcal/internal/params"
	"camcal/internal/projection"
	"camcal/internal/server"
	"camcal/internal/version"

	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// loadConfig returns the config file named by --config, or the defaults.
func loadConfig() (*config.Config, error) {
	if configPath == "" {
		return config.Default(), nil
	}
	c, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	return c, nil
}

// applyConfigLogLevel lets the config file set the level unless --log-level was given.
func applyConfigLogLevel(cmd *cobra.Command, c *config.Config) {
	if configPath != "" && !cmd.Flags().Changed("log-level") {
		logrus.SetLevel(c.LogLevel)
	}
}

type calibrateOptions struct {
	rows, cols int
	square     float64
	window     []int
	preset     string
	boardFile  string
	model      string
	output     string
}

// apply overrides c with the flags that were set on cmd.
func (o *calibrateOptions) apply(cmd *cobra.Command, c *config.Config, args []string) error {
	flags := cmd.Flags()
	if flags.Changed("preset") {
		spec, ok := board.GetSpec(o.preset)
		if !ok {
			return pkgerrors.Errorf("unknown chessboard preset %q, known: %v", o.preset, board.ListSpecs())
		}
		c.Chessboard = spec
	}
	if flags.Changed("board-file") {
		spec, err := board.LoadFromFile(o.boardFile)
		if err != nil {
			return err
		}
		c.Chessboard = spec
	}
	if flags.Changed("rows") || flags.Changed("cols") {
		rows, cols := c.Chessboard.Corners.Rows, c.Chessboard.Corners.Cols
		if flags.Changed("rows") {
			rows = o.rows
		}
		if flags.Changed("cols") {
			cols = o.cols
		}
		c.Chessboard = c.Chessboard.WithCorners(rows, cols)
	}
	if flags.Changed("square") {
		c.Chessboard = c.Chessboard.WithSquareWidth(o.square)
	}
	if flags.Changed("window") {
		if len(o.window) != 2 {
			return pkgerrors.Errorf("--window takes width,height, got %v", o.window)
		}
		c.Chessboard = c.Chessboard.WithRefineWindow(o.window[0], o.window[1])
	}
	if flags.Changed("model") {
		model, err := calib.ParseDistortionModel(o.model)
		if err != nil {
			return err
		}
		c.Model = model
	}
	if flags.Changed("output") {
		c.Output = o.output
	}
	if len(args) > 0 {
		c.Images = args
	}
	return nil
}

// interruptContext returns a context cancelled on SIGINT or SIGTERM.
func interruptContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// NewCalibrateCommand .
func NewCalibrateCommand() *cobra.Command {
	opts := &calibrateOptions{}

	cmd := &cobra.Command{
		Use:   "calibrate [images...]",
		Short: "Calibrate a camera from chessboard images",
		Long: `Detect the chessboard in every image, solve for the camera matrix and the
distortion coefficients, and write them to the output file. Images given as
arguments replace the images listed in the config file. Press Ctrl-C to stop
the run before the solve.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := loadConfig()
			if err != nil {
				return err
			}
			applyConfigLogLevel(cmd, c)
			if err := opts.apply(cmd, c, args); err != nil {
				return err
			}
			return runCalibrate(cmd, c)
		},
	}

	def := board.DefaultSpec()
	flags := cmd.Flags()
	flags.StringVar(&opts.preset, "preset", "", fmt.Sprintf("chessboard preset %v", board.ListSpecs()))
	flags.StringVar(&opts.boardFile, "board-file", "", "chessboard spec JSON file")
	cmd.MarkFlagsMutuallyExclusive("preset", "board-file")
	flags.IntVar(&opts.rows, "rows", def.Corners.Rows, "inner corners per column")
	flags.IntVar(&opts.cols, "cols", def.Corners.Cols, "inner corners per row")
	flags.Float64Var(&opts.square, "square", def.SquareWidth, "square edge length in world units")
	flags.IntSliceVar(&opts.window, "window", []int{def.RefineWindow.Width, def.RefineWindow.Height}, "subpixel refinement half window width,height (0,0 disables)")
	flags.StringVar(&opts.model, "model", calib.ModelStandard.String(), "distortion model (standard, rational, thin-prism, rational-thin-prism)")
	flags.StringVarP(&opts.output, "output", "o", "camera.xml", "parameter file to write (.xml, .json, .yaml)")

	return cmd
}

func runCalibrate(cmd *cobra.Command, c *config.Config) error {
	log := logrus.WithField("component", "calibration")
	log.WithFields(c.LogrusFields()).Info("starting calibration")

	if _, err := params.FormatForPath(c.Output); err != nil {
		return err
	}

	session := opencv.NewSession(log)
	if err := session.SetSpec(c.Chessboard); err != nil {
		return err
	}
	if err := session.SetModel(c.Model); err != nil {
		return err
	}
	if err := session.SetImages(c.Images); err != nil {
		return err
	}

	ctx, stop := interruptContext()
	defer stop()

	progress := calib.NewChannel(len(c.Images) + 1)
	out, err := session.Start(ctx, progress)
	if err != nil {
		return err
	}
	go func() {
		<-ctx.Done()
		session.Stop()
	}()

	var outcome calib.Outcome
	for done := false; !done; {
		select {
		case p := <-progress.Events():
			printProgress(cmd, p)
		case outcome = <-out:
			done = true
		}
	}
	for drained := false; !drained; {
		select {
		case p := <-progress.Events():
			printProgress(cmd, p)
		default:
			drained = true
		}
	}

	if outcome.Err != nil {
		return outcome.Err
	}

	printImages(cmd, session.Images())
	printResult(cmd, outcome.Result)

	if err := session.Save(c.Output); err != nil {
		return err
	}
	cmd.Printf("\nCalibration written to %s\n", c.Output)
	return nil
}

func printProgress(cmd *cobra.Command, p calib.Progress) {
	if p.Label == "" {
		cmd.Printf("[%d/%d] solving\n", p.Step, p.Total)
		return
	}
	cmd.Printf("[%d/%d] %s\n", p.Step, p.Total, p.Label)
}

func printImages(cmd *cobra.Command, images []calib.Image) {
	cmd.Println()
	for _, img := range images {
		if img.Status != calib.StatusFound {
			cmd.Printf("  %-40s %s\n", img.Path, img.Status)
			continue
		}
		cmd.Printf("  %-40s %s  error %.4f px\n", img.Path, img.Status, img.ReprojectionError)
	}
}

func printResult(cmd *cobra.Command, r *calib.Result) {
	k := r.CameraMatrix
	cmd.Println()
	cmd.Printf("Resolution:          %s\n", r.Resolution)
	cmd.Printf("Focal length:        fx=%.4f fy=%.4f\n", k.Fx, k.Fy)
	cmd.Printf("Principal point:     cx=%.4f cy=%.4f\n", k.Cx, k.Cy)
	cmd.Printf("Distortion:          %v\n", r.Distortion)
	if r.ReprojectionError == params.UnknownReprojectionError {
		cmd.Printf("Reprojection error:  unknown\n")
	} else {
		cmd.Printf("Reprojection error:  %.6f px\n", r.ReprojectionError)
	}
	cmd.Printf("Undistort residual:  %.3g\n", projection.DistortUndistortError(k, r.Distortion))
}

// NewShowCommand .
func NewShowCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "show <file>",
		Short: "Print a calibration parameter file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := params.Load(args[0])
			if err != nil {
				return err
			}
			printResult(cmd, calib.ResultFromParameters(p))
			return nil
		},
	}
}

// NewConvertCommand .
func NewConvertCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "convert <in> <out>",
		Short: "Convert a calibration parameter file between XML, JSON and YAML",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := params.Convert(args[0], args[1]); err != nil {
				return err
			}
			logrus.WithFields(logrus.Fields{"from": args[0], "to": args[1]}).Info("parameters converted")
			return nil
		},
	}
}

// NewServeCommand .
func NewServeCommand() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve a calibration session over HTTP",
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := loadConfig()
			if err != nil {
				return err
			}
			applyConfigLogLevel(cmd, c)
			if cmd.Flags().Changed("addr") || configPath == "" {
				c.Listen = addr
			}

			session := opencv.NewSession(logrus.WithField("component", "calibration"))
			if err := session.SetSpec(c.Chessboard); err != nil {
				return err
			}
			if err := session.SetModel(c.Model); err != nil {
				return err
			}
			if err := session.SetImages(c.Images); err != nil {
				return err
			}

			ctx, stop := interruptContext()
			defer stop()

			srv := server.New(session, logrus.WithField("component", "server"))
			if err := srv.Run(ctx, c.Listen); err != nil {
				return pkgerrors.Wrapf(err, "serve on %s", c.Listen)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&addr, "addr", config.Default().Listen, "listen address")

	return cmd
}

// NewVersionCommand .
func NewVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version",
		Run: func(cmd *cobra.Command, _ []string) {
			cmd.Printf("%s\n", version.Get())
		},
	}
}
