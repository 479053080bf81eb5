// Package opencv binds the calibration collaborators to OpenCV through gocv:
// chessboard detection, subpixel corner refinement and the camera solver.
package opencv

import (
	"image"

	"camcal/pkg/geometry"

	pkgerrors "github.com/pkg/errors"
	"gocv.io/x/gocv"
)

// grayToMat copies an 8-bit grayscale raster into a single channel Mat.
// The caller must Close the returned Mat.
func grayToMat(img *image.Gray) (gocv.Mat, error) {
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	if w == 0 || h == 0 {
		return gocv.Mat{}, pkgerrors.New("empty image")
	}

	pix := img.Pix
	if img.Stride != w || bounds.Min != (image.Point{}) {
		// Repack sub-images and padded rows into a dense buffer.
		pix = make([]byte, w*h)
		for y := 0; y < h; y++ {
			row := img.PixOffset(bounds.Min.X, bounds.Min.Y+y)
			copy(pix[y*w:(y+1)*w], img.Pix[row:row+w])
		}
	} else {
		pix = append([]byte(nil), pix[:w*h]...)
	}

	mat, err := gocv.NewMatFromBytes(h, w, gocv.MatTypeCV8UC1, pix)
	if err != nil {
		return gocv.Mat{}, pkgerrors.Wrap(err, "failed to create Mat")
	}
	return mat, nil
}

// pointsToMat packs corners into an Nx2 CV_32F Mat, the layout OpenCV accepts
// wherever a vector of Point2f is expected.
func pointsToMat(points []geometry.Point2D) gocv.Mat {
	mat := gocv.NewMatWithSize(len(points), 2, gocv.MatTypeCV32F)
	for i, p := range points {
		mat.SetFloatAt(i, 0, float32(p.X))
		mat.SetFloatAt(i, 1, float32(p.Y))
	}
	return mat
}

// matToPoints reads corners from either an Nx1 CV_32FC2 Mat (as produced by
// FindChessboardCorners) or an Nx2 CV_32F Mat.
func matToPoints(mat gocv.Mat) []geometry.Point2D {
	if mat.Empty() {
		return nil
	}

	if mat.Channels() == 2 {
		n := mat.Total()
		points := make([]geometry.Point2D, 0, n)
		for i := 0; i < mat.Rows(); i++ {
			for j := 0; j < mat.Cols(); j++ {
				v := mat.GetVecfAt(i, j)
				points = append(points, geometry.NewPoint2D(float64(v[0]), float64(v[1])))
			}
		}
		return points
	}

	points := make([]geometry.Point2D, mat.Rows())
	for i := range points {
		points[i] = geometry.NewPoint2D(float64(mat.GetFloatAt(i, 0)), float64(mat.GetFloatAt(i, 1)))
	}
	return points
}

// toPoint2f converts corners to gocv points.
func toPoint2f(points []geometry.Point2D) []gocv.Point2f {
	out := make([]gocv.Point2f, len(points))
	for i, p := range points {
		out[i] = gocv.Point2f{X: float32(p.X), Y: float32(p.Y)}
	}
	return out
}
