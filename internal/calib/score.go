package calib

import (
	"camcal/pkg/geometry"

	"github.com/golang/geo/r3"
)

// Score is the reprojection error of a solved calibration.
type Score struct {
	// Overall is the correspondence-weighted mean: total pixel distance over all
	// views divided by the total number of corners.
	Overall float64
	// PerView is each view's summed distance divided by its own corner count.
	PerView []float64
	Points  int
}

// ScoreReprojection reprojects every view's pattern points through the solved
// model and measures the pixel distance to the detected corners.
func ScoreReprojection(objectPoints [][]r3.Vector, imagePoints [][]geometry.Point2D, sol *Solution, projector Projector) Score {
	score := Score{PerView: make([]float64, len(objectPoints))}

	var total float64
	for i := range objectPoints {
		if i >= len(sol.Poses) || i >= len(imagePoints) {
			score.PerView[i] = NotComputed
			continue
		}
		projected := projector.Project(objectPoints[i], sol.Poses[i], sol.CameraMatrix, sol.Distortion)
		n := min(len(projected), len(imagePoints[i]))
		if n == 0 {
			score.PerView[i] = NotComputed
			continue
		}
		viewErr := geometry.SumDistances(projected[:n], imagePoints[i][:n])
		score.PerView[i] = viewErr / float64(n)
		total += viewErr
		score.Points += n
	}

	if score.Points > 0 {
		score.Overall = total / float64(score.Points)
	}
	return score
}
