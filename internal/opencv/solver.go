package opencv

import (
	"camcal/internal/calib"
	"camcal/internal/projection"
	"camcal/pkg/geometry"

	"github.com/golang/geo/r3"
	pkgerrors "github.com/pkg/errors"
	"gocv.io/x/gocv"
)

// Solver estimates intrinsics with cv::calibrateCamera. OpenCV's default
// termination criteria apply (30 iterations or DBL_EPSILON).
type Solver struct{}

// NewSolver creates a solver.
func NewSolver() *Solver {
	return &Solver{}
}

// Solve runs one aggregate calibration over all views.
func (s *Solver) Solve(objectPoints [][]r3.Vector, imagePoints [][]geometry.Point2D, imageSize geometry.Size, model calib.DistortionModel) (*calib.Solution, error) {
	if len(objectPoints) == 0 || len(objectPoints) != len(imagePoints) {
		return nil, pkgerrors.Errorf("need matching object and image point sets, got %d and %d",
			len(objectPoints), len(imagePoints))
	}
	flags, err := model.Flags()
	if err != nil {
		return nil, err
	}
	numCoeffs, err := model.NumCoefficients()
	if err != nil {
		return nil, err
	}

	objects := gocv.NewPoints3fVector()
	defer objects.Close()
	images := gocv.NewPoints2fVector()
	defer images.Close()

	for i := range objectPoints {
		if len(objectPoints[i]) != len(imagePoints[i]) {
			return nil, pkgerrors.Errorf("view %d: %d object points for %d image points",
				i, len(objectPoints[i]), len(imagePoints[i]))
		}

		pts3 := make([]gocv.Point3f, len(objectPoints[i]))
		for j, p := range objectPoints[i] {
			pts3[j] = gocv.Point3f{X: float32(p.X), Y: float32(p.Y), Z: float32(p.Z)}
		}
		ov := gocv.NewPoint3fVectorFromPoints(pts3)
		objects.Append(ov)
		ov.Close()

		iv := gocv.NewPoint2fVectorFromPoints(toPoint2f(imagePoints[i]))
		images.Append(iv)
		iv.Close()
	}

	cameraMatrix := gocv.NewMat()
	defer cameraMatrix.Close()
	dist := gocv.NewMat()
	defer dist.Close()
	rvecs := gocv.NewMat()
	defer rvecs.Close()
	tvecs := gocv.NewMat()
	defer tvecs.Close()

	rms := gocv.CalibrateCamera(objects, images, imageSize.Point(), &cameraMatrix, &dist, &rvecs, &tvecs, gocv.CalibFlag(flags))

	if cameraMatrix.Rows() != 3 || cameraMatrix.Cols() != 3 {
		return nil, pkgerrors.Errorf("calibrateCamera returned a %dx%d camera matrix", cameraMatrix.Rows(), cameraMatrix.Cols())
	}

	sol := &calib.Solution{
		CameraMatrix: projection.CameraMatrix{
			Fx: cameraMatrix.GetDoubleAt(0, 0),
			Fy: cameraMatrix.GetDoubleAt(1, 1),
			Cx: cameraMatrix.GetDoubleAt(0, 2),
			Cy: cameraMatrix.GetDoubleAt(1, 2),
		},
		Distortion: readVector(dist, numCoeffs),
		RMS:        rms,
	}

	rot := readVec3s(rvecs)
	trans := readVec3s(tvecs)
	if len(rot) != len(objectPoints) || len(trans) != len(objectPoints) {
		return nil, pkgerrors.Errorf("calibrateCamera returned %d/%d poses for %d views",
			len(rot), len(trans), len(objectPoints))
	}
	sol.Poses = make([]projection.Pose, len(rot))
	for i := range rot {
		sol.Poses[i] = projection.Pose{Rotation: rot[i], Translation: trans[i]}
	}
	return sol, nil
}

// readVector reads a row or column CV_64F vector, zero padded or truncated to n.
func readVector(m gocv.Mat, n int) []float64 {
	out := make([]float64, n)
	total := m.Total()
	for i := 0; i < total && i < n; i++ {
		if m.Rows() == 1 {
			out[i] = m.GetDoubleAt(0, i)
		} else {
			out[i] = m.GetDoubleAt(i, 0)
		}
	}
	return out
}

// readVec3s reads the Nx1 CV_64FC3 Mat OpenCV produces for per-view rotation
// and translation vectors.
func readVec3s(m gocv.Mat) []r3.Vector {
	if m.Empty() {
		return nil
	}
	out := make([]r3.Vector, 0, m.Rows())
	for i := 0; i < m.Rows(); i++ {
		if m.Channels() == 3 {
			v := m.GetVecdAt(i, 0)
			out = append(out, r3.Vector{X: v[0], Y: v[1], Z: v[2]})
			continue
		}
		out = append(out, r3.Vector{X: m.GetDoubleAt(i, 0), Y: m.GetDoubleAt(i, 1), Z: m.GetDoubleAt(i, 2)})
	}
	return out
}
