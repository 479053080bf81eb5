// Package geometry provides basic geometric types used throughout the application.
package geometry

import (
	"fmt"
	"image"
	"math"
)

// Point2D represents a 2D point with floating-point coordinates.
// Image points use pixel coordinates with the origin at the top-left corner.
type Point2D struct {
	X float64 `json:"x" yaml:"x"`
	Y float64 `json:"y" yaml:"y"`
}

// NewPoint2D creates a new Point2D.
func NewPoint2D(x, y float64) Point2D {
	return Point2D{X: x, Y: y}
}

// Distance returns the Euclidean distance to another point.
func (p Point2D) Distance(other Point2D) float64 {
	dx := p.X - other.X
	dy := p.Y - other.Y
	return math.Sqrt(dx*dx + dy*dy)
}

// Sub returns the difference of two points.
func (p Point2D) Sub(other Point2D) Point2D {
	return Point2D{X: p.X - other.X, Y: p.Y - other.Y}
}

// IsFinite reports whether both coordinates are finite numbers.
func (p Point2D) IsFinite() bool {
	return !math.IsNaN(p.X) && !math.IsNaN(p.Y) && !math.IsInf(p.X, 0) && !math.IsInf(p.Y, 0)
}

// Size is an integer width/height pair, used for image resolutions.
type Size struct {
	Width  int `json:"width" yaml:"width"`
	Height int `json:"height" yaml:"height"`
}

// NewSize creates a new Size.
func NewSize(width, height int) Size {
	return Size{Width: width, Height: height}
}

// IsZero reports whether the size is unset.
func (s Size) IsZero() bool {
	return s.Width == 0 && s.Height == 0
}

// Contains returns true if the point lies inside a width x height pixel area.
func (s Size) Contains(p Point2D) bool {
	return p.X >= 0 && p.Y >= 0 && p.X <= float64(s.Width-1) && p.Y <= float64(s.Height-1)
}

// Point returns the size as an image.Point (width, height).
func (s Size) Point() image.Point {
	return image.Pt(s.Width, s.Height)
}

func (s Size) String() string {
	return fmt.Sprintf("%dx%d", s.Width, s.Height)
}

// SumDistances returns the summed pairwise distance of two equally long point lists.
// Extra points in the longer list are ignored.
func SumDistances(a, b []Point2D) float64 {
	n := min(len(a), len(b))
	var total float64
	for i := 0; i < n; i++ {
		total += a[i].Distance(b[i])
	}
	return total
}
