package opencv

import (
	"image"

	"camcal/internal/board"
	"camcal/pkg/geometry"

	pkgerrors "github.com/pkg/errors"
	"gocv.io/x/gocv"
)

// Refiner moves corners to subpixel accuracy with cv::cornerSubPix.
type Refiner struct {
	MaxIterations int
	Epsilon       float64
}

// NewRefiner creates a refiner stopping after 30 iterations or a 0.1 pixel move.
func NewRefiner() *Refiner {
	return &Refiner{MaxIterations: 30, Epsilon: 0.1}
}

// Refine returns the refined corners. It fails instead of calling into OpenCV
// when the window does not fit the image, which would raise a C++ exception.
func (r *Refiner) Refine(img *image.Gray, corners []geometry.Point2D, window board.Window) ([]geometry.Point2D, error) {
	if len(corners) == 0 {
		return nil, pkgerrors.New("no corners to refine")
	}
	if !window.Enabled() {
		return corners, nil
	}

	w, h := img.Bounds().Dx(), img.Bounds().Dy()
	if w < window.Width*2+5 || h < window.Height*2+5 {
		return nil, pkgerrors.Errorf("refinement window %dx%d too large for %dx%d image",
			window.Width, window.Height, w, h)
	}

	mat, err := grayToMat(img)
	if err != nil {
		return nil, err
	}
	defer mat.Close()

	points := pointsToMat(corners)
	defer points.Close()

	criteria := gocv.NewTermCriteria(gocv.MaxIter+gocv.EPS, r.MaxIterations, r.Epsilon)
	gocv.CornerSubPix(mat, &points, window.Point(), image.Pt(-1, -1), criteria)

	refined := matToPoints(points)
	if len(refined) != len(corners) {
		return nil, pkgerrors.Errorf("refinement returned %d corners, want %d", len(refined), len(corners))
	}
	return refined, nil
}
