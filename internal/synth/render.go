// Package synth renders chessboard views through a known pinhole camera.
//
// The renderer maps every pixel back onto the board plane through the inverse
// of the plane-to-image homography H = K [r1 r2 t] and shades it by the square
// it lands in. Views rendered this way have exactly known corner positions,
// which makes them useful for exercising the calibration pipeline end to end.
package synth

import (
	"image"
	"math"

	"camcal/internal/board"
	"camcal/internal/projection"
	"camcal/pkg/geometry"

	"github.com/golang/geo/r3"
	pkgerrors "github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// Intensities used for the rendered scene.
const (
	Black      = 20
	White      = 235
	Background = 90
)

// Camera is an ideal pinhole camera without distortion.
type Camera struct {
	K    projection.CameraMatrix
	Size geometry.Size
}

// DefaultCamera returns a 640x480 camera with a 500 pixel focal length.
func DefaultCamera() Camera {
	return Camera{
		K:    projection.CameraMatrix{Fx: 500, Fy: 500, Cx: 320, Cy: 240},
		Size: geometry.NewSize(640, 480),
	}
}

// Renderer draws a chessboard target as seen by a camera.
type Renderer struct {
	Camera Camera
	Board  board.Spec

	// Supersample is the number of samples per pixel along each axis.
	Supersample int
	// Margin is the white border around the squares, in square widths.
	Margin float64
}

// NewRenderer creates a renderer with 2x2 supersampling and a one square margin.
func NewRenderer(camera Camera, spec board.Spec) *Renderer {
	return &Renderer{
		Camera:      camera,
		Board:       spec,
		Supersample: 2,
		Margin:      1,
	}
}

// homography returns H mapping board plane coordinates (X, Y, 1) to pixels.
func (r *Renderer) homography(pose projection.Pose) *mat.Dense {
	R := projection.Rodrigues(pose.Rotation)
	t := pose.Translation

	rt := mat.NewDense(3, 3, []float64{
		R.At(0, 0), R.At(0, 1), t.X,
		R.At(1, 0), R.At(1, 1), t.Y,
		R.At(2, 0), R.At(2, 1), t.Z,
	})

	var h mat.Dense
	h.Mul(r.Camera.K.Dense(), rt)
	return &h
}

// Render draws the board at pose.
func (r *Renderer) Render(pose projection.Pose) (*image.Gray, error) {
	if err := r.Board.Validate(); err != nil {
		return nil, err
	}
	size := r.Camera.Size
	if size.Width <= 0 || size.Height <= 0 {
		return nil, pkgerrors.Errorf("invalid camera size %s", size)
	}
	if pose.Translation.Z <= 0 {
		return nil, pkgerrors.Errorf("board must be in front of the camera, got z=%g", pose.Translation.Z)
	}

	var inv mat.Dense
	if err := inv.Inverse(r.homography(pose)); err != nil {
		return nil, pkgerrors.Wrap(err, "board plane is degenerate for this pose")
	}
	var hi [9]float64
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			hi[i*3+j] = inv.At(i, j)
		}
	}

	ss := r.Supersample
	if ss < 1 {
		ss = 1
	}
	step := 1 / float64(ss)

	img := image.NewGray(image.Rect(0, 0, size.Width, size.Height))
	for y := 0; y < size.Height; y++ {
		for x := 0; x < size.Width; x++ {
			var sum int
			for sy := 0; sy < ss; sy++ {
				for sx := 0; sx < ss; sx++ {
					// Pixel centers sit on integer coordinates.
					u := float64(x) - 0.5 + (float64(sx)+0.5)*step
					v := float64(y) - 0.5 + (float64(sy)+0.5)*step
					sum += int(r.shade(hi, u, v))
				}
			}
			img.Pix[y*img.Stride+x] = uint8(sum / (ss * ss))
		}
	}
	return img, nil
}

// shade returns the scene intensity seen at pixel (u, v).
func (r *Renderer) shade(hi [9]float64, u, v float64) uint8 {
	w := hi[6]*u + hi[7]*v + hi[8]
	if w == 0 {
		return Background
	}
	X := (hi[0]*u + hi[1]*v + hi[2]) / w
	Y := (hi[3]*u + hi[4]*v + hi[5]) / w

	sq := r.Board.SquareWidth
	cols := float64(r.Board.Corners.Cols)
	rows := float64(r.Board.Corners.Rows)
	margin := r.Margin * sq

	// Squares span one square beyond the outer inner corners.
	if X < -sq-margin || X > cols*sq+margin || Y < -sq-margin || Y > rows*sq+margin {
		return Background
	}
	if X < -sq || X > cols*sq || Y < -sq || Y > rows*sq {
		return White
	}

	ix := int(math.Floor(X / sq))
	iy := int(math.Floor(Y / sq))
	if (ix+iy)%2 == 0 {
		return Black
	}
	return White
}

// Corners returns the exact pixel positions of the inner corners at pose.
func (r *Renderer) Corners(pose projection.Pose) []geometry.Point2D {
	return projection.Project(r.Board.PatternPoints(), pose, r.Camera.K, nil)
}

// InFrame reports whether the whole board, margin included, is visible at pose.
func (r *Renderer) InFrame(pose projection.Pose) bool {
	sq := r.Board.SquareWidth
	m := sq + r.Margin*sq
	cols := float64(r.Board.Corners.Cols) * sq
	rows := float64(r.Board.Corners.Rows) * sq
	outline := []r3.Vector{
		{X: -m, Y: -m},
		{X: cols + m, Y: -m},
		{X: cols + m, Y: rows + m},
		{X: -m, Y: rows + m},
	}
	for _, p := range projection.Project(outline, pose, r.Camera.K, nil) {
		if !r.Camera.Size.Contains(p) {
			return false
		}
	}
	return true
}

// CenteredPose places the board center on the optical axis at distance z after
// rotating it by rotation.
func (r *Renderer) CenteredPose(rotation r3.Vector, z float64) projection.Pose {
	sq := r.Board.SquareWidth
	center := r3.Vector{
		X: float64(r.Board.Corners.Cols-1) * sq / 2,
		Y: float64(r.Board.Corners.Rows-1) * sq / 2,
	}
	rotated := projection.Pose{Rotation: rotation}.Transform([]r3.Vector{center})[0]
	return projection.Pose{
		Rotation:    rotation,
		Translation: r3.Vector{X: -rotated.X, Y: -rotated.Y, Z: z - rotated.Z},
	}
}

// tilts are the view rotations used by DefaultPoses, cycled when more views are
// requested.
var tilts = []r3.Vector{
	{X: 0.25, Y: 0.15, Z: 0.05},
	{X: -0.25, Y: 0.2, Z: -0.05},
	{X: 0.2, Y: -0.25, Z: 0.1},
	{X: -0.15, Y: -0.2, Z: 0},
	{X: 0.1, Y: 0.3, Z: -0.1},
	{X: 0.3, Y: -0.05, Z: 0.02},
	{X: -0.05, Y: -0.3, Z: -0.08},
}

// DefaultPoses returns n varied views of the board, each fully in frame.
// The distance is chosen so the board fills roughly half of the image width.
func (r *Renderer) DefaultPoses(n int) []projection.Pose {
	sq := r.Board.SquareWidth
	boardWidth := (float64(r.Board.Corners.Cols) + 1 + 2*r.Margin) * sq
	z := 2 * boardWidth * r.Camera.K.Fx / float64(r.Camera.Size.Width)

	poses := make([]projection.Pose, n)
	for i := range poses {
		tilt := tilts[i%len(tilts)]
		dz := z * (1 + 0.05*float64(i/len(tilts)) + 0.03*float64(i%3))
		poses[i] = r.CenteredPose(tilt, dz)
	}
	return poses
}
