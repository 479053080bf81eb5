// Command synthboard renders synthetic chessboard views with a known camera and
// writes a run config that calibrates them.
package main

import (
	"fmt"
	"os"
	"path/filepath"

	"camcal/internal/board"
	"camcal/internal/config"
	imgdec "camcal/internal/image"
	"camcal/internal/projection"
	"camcal/internal/synth"
	"camcal/pkg/geometry"

	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

type options struct {
	outDir        string
	preset        string
	count         int
	width, height int
	focal         float64
	supersample   int
}

func main() {
	if err := newCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newCommand() *cobra.Command {
	opts := &options{}

	cmd := &cobra.Command{
		Use:          "synthboard",
		Short:        "Render synthetic chessboard views for calibration",
		SilenceUsage: true,
		RunE: func(_ *cobra.Command, _ []string) error {
			return run(opts)
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&opts.outDir, "out", "o", "synth", "output directory")
	flags.StringVar(&opts.preset, "preset", "opencv-9x6", fmt.Sprintf("chessboard preset %v", board.ListSpecs()))
	flags.IntVarP(&opts.count, "count", "n", 8, "number of views")
	flags.IntVar(&opts.width, "width", 640, "image width")
	flags.IntVar(&opts.height, "height", 480, "image height")
	flags.Float64Var(&opts.focal, "focal", 500, "focal length in pixels")
	flags.IntVar(&opts.supersample, "supersample", 2, "samples per pixel along each axis")

	return cmd
}

func run(opts *options) error {
	spec, ok := board.GetSpec(opts.preset)
	if !ok {
		return pkgerrors.Errorf("unknown chessboard preset %q", opts.preset)
	}
	if opts.count <= 0 {
		return pkgerrors.Errorf("count must be positive, got %d", opts.count)
	}
	if err := os.MkdirAll(opts.outDir, 0o755); err != nil {
		return err
	}

	camera := synth.Camera{
		K: projection.CameraMatrix{
			Fx: opts.focal,
			Fy: opts.focal,
			Cx: float64(opts.width-1) / 2,
			Cy: float64(opts.height-1) / 2,
		},
		Size: geometry.NewSize(opts.width, opts.height),
	}
	r := synth.NewRenderer(camera, spec)
	r.Supersample = opts.supersample

	log := logrus.WithFields(logrus.Fields{
		"component": "synthboard",
		"board":     spec.Name,
	})

	var images []string
	for i, pose := range r.DefaultPoses(opts.count) {
		if !r.InFrame(pose) {
			log.WithField("view", i).Warn("board leaves the frame, skipping view")
			continue
		}
		img, err := r.Render(pose)
		if err != nil {
			return err
		}
		name := fmt.Sprintf("view%02d.png", i)
		if err := imgdec.SavePNG(filepath.Join(opts.outDir, name), img); err != nil {
			return err
		}
		images = append(images, name)
		log.WithField("file", name).Debug("view rendered")
	}

	boardFile := "chessboard.json"
	if err := spec.SaveToFile(filepath.Join(opts.outDir, boardFile)); err != nil {
		return err
	}

	cfg := config.Default()
	cfg.Images = images
	cfg.Output = "camera.xml"
	raw := cfg.Raw()
	raw.Chessboard = &config.RawChessboard{File: &boardFile}
	cfgPath := filepath.Join(opts.outDir, "config.yaml")
	if err := config.Save(cfgPath, raw); err != nil {
		return err
	}

	log.WithFields(logrus.Fields{
		"views":  len(images),
		"fx":     camera.K.Fx,
		"config": cfgPath,
	}).Info("synthetic views written")
	return nil
}
