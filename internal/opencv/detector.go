package opencv

import (
	"image"

	"camcal/internal/board"
	"camcal/pkg/geometry"

	pkgerrors "github.com/pkg/errors"
	"gocv.io/x/gocv"
)

// DefaultDetectorFlags are the chessboard search flags used by the calibration tool.
const DefaultDetectorFlags = gocv.CalibCBAdaptiveThresh | gocv.CalibCBFilterQuads

// Detector finds chessboard inner corners with cv::findChessboardCorners.
type Detector struct {
	Flags gocv.CalibCBFlag
}

// NewDetector creates a detector with the default flags.
func NewDetector() *Detector {
	return &Detector{Flags: DefaultDetectorFlags}
}

// FindCorners returns the inner corners row by row. found is false when the full
// pattern is not visible.
func (d *Detector) FindCorners(img *image.Gray, size board.Size) ([]geometry.Point2D, bool, error) {
	mat, err := grayToMat(img)
	if err != nil {
		return nil, false, err
	}
	defer mat.Close()

	corners := gocv.NewMat()
	defer corners.Close()

	if !gocv.FindChessboardCorners(mat, size.PatternSize(), &corners, d.Flags) {
		return nil, false, nil
	}

	points := matToPoints(corners)
	if len(points) != size.Count() {
		return nil, false, pkgerrors.Errorf("detector returned %d corners, want %d", len(points), size.Count())
	}
	return points, true, nil
}
