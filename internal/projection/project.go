// Package projection implements the pinhole camera model with the OpenCV lens
// distortion polynomial, used to reproject calibration pattern points.
package projection

import (
	"math"

	"camcal/pkg/geometry"

	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/mat"
)

// CameraMatrix holds the intrinsic parameters of a pinhole camera.
// The full matrix is
//
//	[fx  0 cx]
//	[ 0 fy cy]
//	[ 0  0  1]
type CameraMatrix struct {
	Fx, Fy float64
	Cx, Cy float64
}

// Dense returns the 3x3 camera matrix.
func (k CameraMatrix) Dense() *mat.Dense {
	return mat.NewDense(3, 3, []float64{
		k.Fx, 0, k.Cx,
		0, k.Fy, k.Cy,
		0, 0, 1,
	})
}

// CameraMatrixFromDense reads fx, fy, cx, cy out of a 3x3 matrix.
func CameraMatrixFromDense(m mat.Matrix) CameraMatrix {
	return CameraMatrix{
		Fx: m.At(0, 0),
		Fy: m.At(1, 1),
		Cx: m.At(0, 2),
		Cy: m.At(1, 2),
	}
}

// Pose is the extrinsic transform of one calibration view: board -> camera.
// Rotation is a Rodrigues vector (axis * angle in radians).
type Pose struct {
	Rotation    r3.Vector `json:"rotation"`
	Translation r3.Vector `json:"translation"`
}

// Rodrigues converts a rotation vector to a 3x3 rotation matrix.
func Rodrigues(r r3.Vector) *mat.Dense {
	theta := r.Norm()
	R := mat.NewDense(3, 3, []float64{1, 0, 0, 0, 1, 0, 0, 0, 1})
	if theta < 1e-12 {
		return R
	}
	k := r.Mul(1 / theta)
	c, s := math.Cos(theta), math.Sin(theta)

	kkT := mat.NewDense(3, 3, []float64{
		k.X * k.X, k.X * k.Y, k.X * k.Z,
		k.Y * k.X, k.Y * k.Y, k.Y * k.Z,
		k.Z * k.X, k.Z * k.Y, k.Z * k.Z,
	})
	skew := mat.NewDense(3, 3, []float64{
		0, -k.Z, k.Y,
		k.Z, 0, -k.X,
		-k.Y, k.X, 0,
	})

	R.Scale(c, R)
	kkT.Scale(1-c, kkT)
	skew.Scale(s, skew)
	R.Add(R, kkT)
	R.Add(R, skew)
	return R
}

// RotationVector converts a 3x3 rotation matrix back to a Rodrigues vector.
func RotationVector(R mat.Matrix) r3.Vector {
	trace := R.At(0, 0) + R.At(1, 1) + R.At(2, 2)
	cosTheta := math.Max(-1, math.Min(1, (trace-1)/2))
	theta := math.Acos(cosTheta)
	if theta < 1e-12 {
		return r3.Vector{}
	}
	axis := r3.Vector{
		X: R.At(2, 1) - R.At(1, 2),
		Y: R.At(0, 2) - R.At(2, 0),
		Z: R.At(1, 0) - R.At(0, 1),
	}
	if n := axis.Norm(); n > 1e-12 {
		return axis.Mul(theta / n)
	}
	// theta close to pi: recover the axis from the symmetric part.
	x := math.Sqrt(math.Max(0, (R.At(0, 0)+1)/2))
	y := math.Sqrt(math.Max(0, (R.At(1, 1)+1)/2))
	z := math.Sqrt(math.Max(0, (R.At(2, 2)+1)/2))
	if R.At(0, 1) < 0 {
		y = -y
	}
	if R.At(0, 2) < 0 {
		z = -z
	}
	return r3.Vector{X: x, Y: y, Z: z}.Normalize().Mul(theta)
}

// Transform maps board points into camera coordinates.
func (p Pose) Transform(points []r3.Vector) []r3.Vector {
	R := Rodrigues(p.Rotation)
	out := make([]r3.Vector, len(points))
	for i, pt := range points {
		v := mat.NewVecDense(3, []float64{pt.X, pt.Y, pt.Z})
		var c mat.VecDense
		c.MulVec(R, v)
		out[i] = r3.Vector{
			X: c.AtVec(0) + p.Translation.X,
			Y: c.AtVec(1) + p.Translation.Y,
			Z: c.AtVec(2) + p.Translation.Z,
		}
	}
	return out
}

// coefficients unpacks an OpenCV ordered distortion vector
// (k1, k2, p1, p2[, k3[, k4, k5, k6[, s1, s2, s3, s4]]]). Missing entries are zero.
type coefficients struct {
	k1, k2, p1, p2, k3, k4, k5, k6 float64
	s1, s2, s3, s4                 float64
}

func unpack(dist []float64) coefficients {
	at := func(i int) float64 {
		if i < len(dist) {
			return dist[i]
		}
		return 0
	}
	return coefficients{
		k1: at(0), k2: at(1), p1: at(2), p2: at(3), k3: at(4),
		k4: at(5), k5: at(6), k6: at(7),
		s1: at(8), s2: at(9), s3: at(10), s4: at(11),
	}
}

// Distort applies the lens model to a normalized image point.
func Distort(x, y float64, dist []float64) (float64, float64) {
	c := unpack(dist)
	r2 := x*x + y*y
	r4 := r2 * r2
	r6 := r4 * r2

	radial := (1 + c.k1*r2 + c.k2*r4 + c.k3*r6) / (1 + c.k4*r2 + c.k5*r4 + c.k6*r6)
	xd := x*radial + 2*c.p1*x*y + c.p2*(r2+2*x*x) + c.s1*r2 + c.s2*r4
	yd := y*radial + c.p1*(r2+2*y*y) + 2*c.p2*x*y + c.s3*r2 + c.s4*r4
	return xd, yd
}

// Undistort inverts Distort by fixed-point iteration.
func Undistort(xd, yd float64, dist []float64, iterations int) (float64, float64) {
	c := unpack(dist)
	x, y := xd, yd
	for i := 0; i < iterations; i++ {
		r2 := x*x + y*y
		icdist := (1 + ((c.k6*r2+c.k5)*r2+c.k4)*r2) / (1 + ((c.k3*r2+c.k2)*r2+c.k1)*r2)
		deltaX := 2*c.p1*x*y + c.p2*(r2+2*x*x) + c.s1*r2 + c.s2*r2*r2
		deltaY := c.p1*(r2+2*y*y) + 2*c.p2*x*y + c.s3*r2 + c.s4*r2*r2
		x = (xd - deltaX) * icdist
		y = (yd - deltaY) * icdist
	}
	return x, y
}

// Project maps board points through pose, intrinsics and distortion to pixels.
func Project(points []r3.Vector, pose Pose, k CameraMatrix, dist []float64) []geometry.Point2D {
	cam := pose.Transform(points)
	out := make([]geometry.Point2D, len(cam))
	for i, p := range cam {
		z := p.Z
		if z == 0 {
			z = 1
		}
		xd, yd := Distort(p.X/z, p.Y/z, dist)
		out[i] = geometry.Point2D{
			X: k.Fx*xd + k.Cx,
			Y: k.Fy*yd + k.Cy,
		}
	}
	return out
}

// Projector is the stateless point reprojection collaborator.
type Projector struct{}

// Project implements reprojection of pattern points for one view.
func (Projector) Project(points []r3.Vector, pose Pose, k CameraMatrix, dist []float64) []geometry.Point2D {
	return Project(points, pose, k, dist)
}

// DistortUndistortError measures how well the distortion model can be inverted.
// A 41x41 grid of normalized points in [-2, 2] is projected with an identity pose,
// mapped back through Undistort, and the mean normalized distance is returned.
func DistortUndistortError(k CameraMatrix, dist []float64) float64 {
	if k.Fx == 0 || k.Fy == 0 {
		return math.NaN()
	}
	var grid []r3.Vector
	for i := -20; i <= 20; i++ {
		for j := -20; j <= 20; j++ {
			grid = append(grid, r3.Vector{X: float64(i) / 10, Y: float64(j) / 10, Z: 1})
		}
	}

	projected := Project(grid, Pose{}, k, dist)
	var total float64
	for i, p := range projected {
		x, y := Undistort((p.X-k.Cx)/k.Fx, (p.Y-k.Cy)/k.Fy, dist, 20)
		dx := grid[i].X - x
		dy := grid[i].Y - y
		total += math.Sqrt(dx*dx + dy*dy)
	}
	return total / float64(len(grid))
}
