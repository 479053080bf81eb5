package calib

import (
	"testing"

	"camcal/internal/projection"
	"camcal/pkg/geometry"

	"github.com/golang/geo/r3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// planeProjector maps board points straight to pixels, ignoring the camera.
type planeProjector struct{}

func (planeProjector) Project(points []r3.Vector, _ projection.Pose, _ projection.CameraMatrix, _ []float64) []geometry.Point2D {
	out := make([]geometry.Point2D, len(points))
	for i, p := range points {
		out[i] = geometry.NewPoint2D(p.X, p.Y)
	}
	return out
}

func shifted(points []r3.Vector, dx float64) []geometry.Point2D {
	out := make([]geometry.Point2D, len(points))
	for i, p := range points {
		out[i] = geometry.NewPoint2D(p.X+dx, p.Y)
	}
	return out
}

func TestScoreIsCorrespondenceWeighted(t *testing.T) {
	viewA := []r3.Vector{{X: 0}, {X: 1}, {X: 2}, {X: 3}}
	viewB := []r3.Vector{{X: 0}, {X: 1}}

	sol := &Solution{Poses: make([]projection.Pose, 2)}
	score := ScoreReprojection(
		[][]r3.Vector{viewA, viewB},
		[][]geometry.Point2D{shifted(viewA, 1), shifted(viewB, 4)},
		sol, planeProjector{},
	)

	require.Len(t, score.PerView, 2)
	assert.InDelta(t, 1.0, score.PerView[0], 1e-12)
	assert.InDelta(t, 4.0, score.PerView[1], 1e-12)
	assert.Equal(t, 6, score.Points)
	// (4*1 + 2*4) / 6, not the mean of per-view means (2.5).
	assert.InDelta(t, 2.0, score.Overall, 1e-12)
}

func TestScoreMissingPose(t *testing.T) {
	view := []r3.Vector{{X: 0}, {X: 1}}
	sol := &Solution{Poses: make([]projection.Pose, 1)}

	score := ScoreReprojection(
		[][]r3.Vector{view, view},
		[][]geometry.Point2D{shifted(view, 0.5), shifted(view, 0.5)},
		sol, planeProjector{},
	)
	assert.InDelta(t, 0.5, score.PerView[0], 1e-12)
	assert.Equal(t, NotComputed, score.PerView[1])
	assert.InDelta(t, 0.5, score.Overall, 1e-12)
}

func TestScoreExactProjection(t *testing.T) {
	points := testSpec.PatternPoints()
	pose := testPose(1)
	detected := projection.Project(points, pose, testCamera, nil)

	sol := &Solution{CameraMatrix: testCamera, Poses: []projection.Pose{pose}}
	score := ScoreReprojection([][]r3.Vector{points}, [][]geometry.Point2D{detected}, sol, projection.Projector{})
	assert.InDelta(t, 0, score.Overall, 1e-9)
}
