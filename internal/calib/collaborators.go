package calib

import (
	"image"

	"camcal/internal/board"
	"camcal/internal/projection"
	"camcal/pkg/geometry"

	"github.com/golang/geo/r3"
)

// Decoder loads an image file as an 8-bit grayscale raster.
type Decoder interface {
	Decode(path string) (*image.Gray, error)
}

// Detector finds the inner corners of a chessboard, row-major.
// found is false when the pattern is not visible; err is reserved for
// internal failures.
type Detector interface {
	FindCorners(img *image.Gray, size board.Size) (corners []geometry.Point2D, found bool, err error)
}

// Refiner moves detected corners to subpixel accuracy within window.
type Refiner interface {
	Refine(img *image.Gray, corners []geometry.Point2D, window board.Window) ([]geometry.Point2D, error)
}

// Solution is the output of the aggregate nonlinear solve.
type Solution struct {
	CameraMatrix projection.CameraMatrix
	Distortion   []float64
	Poses        []projection.Pose // one per view, in input order
	RMS          float64           // solver-reported RMS error, informational
}

// Solver estimates intrinsics and per-view extrinsics from matched point sets.
type Solver interface {
	Solve(objectPoints [][]r3.Vector, imagePoints [][]geometry.Point2D, imageSize geometry.Size, model DistortionModel) (*Solution, error)
}

// Projector maps board points of one view to pixels.
type Projector interface {
	Project(points []r3.Vector, pose projection.Pose, k projection.CameraMatrix, dist []float64) []geometry.Point2D
}
