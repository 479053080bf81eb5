// Package calib orchestrates intrinsic camera calibration from chessboard views:
// per-image detection and refinement, one aggregate solve, reprojection scoring,
// cooperative cancellation and progress reporting.
package calib

import (
	"context"
	"image"
	"math"

	"camcal/internal/board"
	"camcal/internal/projection"
	"camcal/pkg/geometry"

	"github.com/golang/geo/r3"
	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Engine runs calibrations with a fixed set of collaborators.
type Engine struct {
	Decoder   Decoder
	Detector  Detector
	Refiner   Refiner
	Solver    Solver
	Projector Projector

	Log *logrus.Entry
}

func (e *Engine) log() *logrus.Entry {
	if e.Log != nil {
		return e.Log
	}
	return logrus.WithField("component", "calibration")
}

func (e *Engine) projector() Projector {
	if e.Projector != nil {
		return e.Projector
	}
	return projection.Projector{}
}

// Validate checks run inputs without touching any image.
func (e *Engine) Validate(images []Image, spec board.Spec, model DistortionModel) error {
	if len(images) == 0 {
		return &InputError{Field: "images", Reason: "no images for calibration provided"}
	}
	if err := spec.Validate(); err != nil {
		return &InputError{Field: "chessboard", Reason: err.Error()}
	}
	if !model.Valid() {
		return &InputError{Field: "model", Reason: model.String()}
	}
	if e.Decoder == nil || e.Detector == nil || e.Solver == nil {
		return &InputError{Field: "engine", Reason: "decoder, detector and solver are required"}
	}
	if spec.RefineWindow.Enabled() && e.Refiner == nil {
		return &InputError{Field: "engine", Reason: "refinement window set but no refiner configured"}
	}
	return nil
}

// Calibrate runs one calibration over images in order. The per-image state in
// images is rewritten in place. Progress is emitted once per processed image and
// once for the solve step. A stop request or a cancelled ctx ends the run with
// a CancelledError before the solver is invoked.
func (e *Engine) Calibrate(ctx context.Context, images []Image, spec board.Spec, model DistortionModel, progress ProgressChannel) (*Result, error) {
	if err := e.Validate(images, spec, model); err != nil {
		return nil, err
	}
	if progress == nil {
		progress = discardChannel{}
	}

	log := e.log().WithFields(logrus.Fields{
		"images":     len(images),
		"chessboard": spec.Corners.String(),
		"model":      model.String(),
	})
	log.Info("calibration started")

	stopped := func() bool {
		return progress.IsStopRequested() || ctx.Err() != nil
	}

	pattern := spec.PatternPoints()
	total := len(images) + 1

	var (
		reference    geometry.Size
		objectPoints [][]r3.Vector
		imagePoints  [][]geometry.Point2D
		viewIndex    []int // image index of each accepted view
	)

	for i := range images {
		if stopped() {
			log.WithField("processed", i).Info("calibration cancelled")
			return nil, &CancelledError{Processed: i}
		}

		img := &images[i]
		img.reset()

		corners, err := e.processImage(img, spec, &reference)
		if err != nil {
			return nil, err
		}

		if stopped() {
			log.WithField("processed", i).Info("calibration cancelled")
			return nil, &CancelledError{Processed: i}
		}

		if corners != nil {
			img.Status = StatusFound
			img.Corners = corners
			objectPoints = append(objectPoints, pattern)
			imagePoints = append(imagePoints, corners)
			viewIndex = append(viewIndex, i)
		} else {
			img.Status = StatusNotFound
		}

		progress.Emit(i+1, total, img.Path)
	}

	if len(imagePoints) == 0 {
		return nil, &SolveError{Err: pkgerrors.New("no chessboard detected in any image")}
	}

	log.WithField("views", len(imagePoints)).Debug("solving")
	sol, err := e.Solver.Solve(objectPoints, imagePoints, reference, model)
	if err != nil {
		return nil, &SolveError{Err: err}
	}
	if err := checkSolution(sol, len(imagePoints), model); err != nil {
		return nil, &SolveError{Err: err}
	}

	score := ScoreReprojection(objectPoints, imagePoints, sol, e.projector())

	perImage := make([]float64, len(images))
	for i := range perImage {
		perImage[i] = NotComputed
	}
	for v, idx := range viewIndex {
		images[idx].ReprojectionError = score.PerView[v]
		perImage[idx] = score.PerView[v]
	}

	result := &Result{
		CameraMatrix:      sol.CameraMatrix,
		Distortion:        sol.Distortion,
		Resolution:        reference,
		ReprojectionError: score.Overall,
		PerImageErrors:    perImage,
		Poses:             sol.Poses,
		Model:             model,
		SolverRMS:         sol.RMS,
	}

	progress.Emit(total, total, "")

	log.WithFields(logrus.Fields{
		"views":              len(imagePoints),
		"fx":                 result.CameraMatrix.Fx,
		"fy":                 result.CameraMatrix.Fy,
		"reprojection_error": result.ReprojectionError,
	}).Info("calibration finished")

	return result, nil
}

// processImage decodes, checks and detects one image. It returns the accepted
// corners, nil when the pattern was not usable, or an error that aborts the run.
func (e *Engine) processImage(img *Image, spec board.Spec, reference *geometry.Size) ([]geometry.Point2D, error) {
	log := e.log().WithField("file", img.Path)

	gray, err := e.Decoder.Decode(img.Path)
	if err != nil {
		return nil, &ImageReadError{File: img.Path, Err: err}
	}
	size := geometry.NewSize(gray.Bounds().Dx(), gray.Bounds().Dy())
	if size.Width == 0 || size.Height == 0 {
		return nil, &ImageReadError{File: img.Path, Err: pkgerrors.New("image has no pixels")}
	}

	if reference.IsZero() {
		*reference = size
	} else if size != *reference {
		return nil, &ResolutionMismatchError{File: img.Path, Expected: *reference, Actual: size}
	}

	corners, found, err := e.Detector.FindCorners(gray, spec.Corners)
	if err != nil {
		log.WithError(err).Warn("chessboard detection failed")
		return nil, nil
	}
	if !found {
		log.Debug("chessboard not found")
		return nil, nil
	}
	if len(corners) != spec.Corners.Count() {
		log.WithFields(logrus.Fields{
			"want": spec.Corners.Count(),
			"got":  len(corners),
		}).Warn("detector returned an incomplete corner grid")
		return nil, nil
	}

	if spec.RefineWindow.Enabled() {
		refined, err := e.refine(gray, corners, spec.RefineWindow, size)
		if err != nil {
			log.WithError(&RefinementFailure{File: img.Path, Err: err}).Warn("corner refinement failed, skipping image")
			return nil, nil
		}
		corners = refined
	}

	log.Debug("chessboard found")
	return corners, nil
}

func (e *Engine) refine(gray *image.Gray, corners []geometry.Point2D, window board.Window, size geometry.Size) ([]geometry.Point2D, error) {
	refined, err := e.Refiner.Refine(gray, corners, window)
	if err != nil {
		return nil, err
	}
	if len(refined) != len(corners) {
		return nil, pkgerrors.Errorf("refiner returned %d corners, want %d", len(refined), len(corners))
	}
	for i, p := range refined {
		if !p.IsFinite() || !size.Contains(p) {
			return nil, pkgerrors.Errorf("corner %d refined to invalid position (%g, %g)", i, p.X, p.Y)
		}
	}
	return refined, nil
}

func checkSolution(sol *Solution, views int, model DistortionModel) error {
	if sol == nil {
		return pkgerrors.New("solver returned no solution")
	}
	if len(sol.Poses) != views {
		return pkgerrors.Errorf("solver returned %d poses for %d views", len(sol.Poses), views)
	}
	k := sol.CameraMatrix
	for _, v := range []float64{k.Fx, k.Fy, k.Cx, k.Cy} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return pkgerrors.New("solver returned a non-finite camera matrix")
		}
	}
	if k.Fx <= 0 || k.Fy <= 0 {
		return pkgerrors.Errorf("solver returned non-positive focal lengths (%g, %g)", k.Fx, k.Fy)
	}

	n, _ := model.NumCoefficients()
	dist := make([]float64, n)
	copy(dist, sol.Distortion)
	sol.Distortion = dist
	return nil
}
