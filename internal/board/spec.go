// Package board provides chessboard target specifications and management.
package board

import (
	"encoding/json"
	"fmt"
	"image"
	"os"
	"sort"

	"github.com/golang/geo/r3"
	pkgerrors "github.com/pkg/errors"
)

// Size is the number of inner corners of a chessboard target.
// Cols counts corners along a row (horizontal), Rows counts corners along a column.
type Size struct {
	Rows int `json:"rows" yaml:"rows"`
	Cols int `json:"cols" yaml:"cols"`
}

// Count returns the number of inner corners.
func (s Size) Count() int {
	return s.Rows * s.Cols
}

// PatternSize returns the size in the (width, height) convention used by OpenCV.
func (s Size) PatternSize() image.Point {
	return image.Pt(s.Cols, s.Rows)
}

func (s Size) String() string {
	return fmt.Sprintf("%dx%d", s.Cols, s.Rows)
}

// Window is a corner refinement search window in pixels.
// A zero in either axis disables refinement.
type Window struct {
	Width  int `json:"width" yaml:"width"`
	Height int `json:"height" yaml:"height"`
}

// Enabled reports whether refinement should run for this window.
func (w Window) Enabled() bool {
	return w.Width > 0 && w.Height > 0
}

// Point returns the window as an image.Point.
func (w Window) Point() image.Point {
	return image.Pt(w.Width, w.Height)
}

// Spec defines a planar chessboard calibration target.
type Spec struct {
	Name         string  `json:"name,omitempty" yaml:"name,omitempty"`
	Corners      Size    `json:"corners" yaml:"corners"`
	SquareWidth  float64 `json:"square_width" yaml:"square_width"` // physical edge length of one square
	RefineWindow Window  `json:"refine_window" yaml:"refine_window"`
}

// DefaultSpec returns the target used when nothing else is configured:
// 7x6 inner corners, 0.06 squares, 10x10 refinement window.
func DefaultSpec() Spec {
	return Spec{
		Name:         "default",
		Corners:      Size{Rows: 6, Cols: 7},
		SquareWidth:  0.06,
		RefineWindow: Window{Width: 10, Height: 10},
	}
}

// Validate checks the geometry of the target.
func (s Spec) Validate() error {
	if s.Corners.Rows < 2 || s.Corners.Cols < 2 {
		return pkgerrors.Errorf("chessboard corners must be at least 2x2, got %s", s.Corners)
	}
	if !(s.SquareWidth > 0) {
		return pkgerrors.Errorf("chessboard square width must be positive, got %g", s.SquareWidth)
	}
	if s.RefineWindow.Width < 0 || s.RefineWindow.Height < 0 {
		return pkgerrors.Errorf("refinement window must not be negative, got %dx%d",
			s.RefineWindow.Width, s.RefineWindow.Height)
	}
	return nil
}

// WithCorners returns a copy of the spec with a different corner grid.
func (s Spec) WithCorners(rows, cols int) Spec {
	s.Corners = Size{Rows: rows, Cols: cols}
	return s
}

// WithSquareWidth returns a copy of the spec with a different square width.
func (s Spec) WithSquareWidth(width float64) Spec {
	s.SquareWidth = width
	return s
}

// WithRefineWindow returns a copy of the spec with a different refinement window.
func (s Spec) WithRefineWindow(width, height int) Spec {
	s.RefineWindow = Window{Width: width, Height: height}
	return s
}

// PatternPoints returns the inner corners in board coordinates, row-major,
// on the Z=0 plane. The order matches the detector's corner order.
func (s Spec) PatternPoints() []r3.Vector {
	points := make([]r3.Vector, 0, s.Corners.Count())
	for i := 0; i < s.Corners.Rows; i++ {
		for j := 0; j < s.Corners.Cols; j++ {
			points = append(points, r3.Vector{
				X: float64(j) * s.SquareWidth,
				Y: float64(i) * s.SquareWidth,
				Z: 0,
			})
		}
	}
	return points
}

// SaveToFile saves the spec to a JSON file.
func (s Spec) SaveToFile(path string) error {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// LoadFromFile loads a spec from a JSON file.
func LoadFromFile(path string) (Spec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Spec{}, err
	}

	var spec Spec
	if err := json.Unmarshal(data, &spec); err != nil {
		return Spec{}, err
	}

	if err := spec.Validate(); err != nil {
		return Spec{}, pkgerrors.Wrap(err, "invalid chessboard spec")
	}

	return spec, nil
}

// Registry of known chessboard targets
var registry = make(map[string]Spec)

// Register adds a chessboard spec to the registry.
func Register(spec Spec) {
	registry[spec.Name] = spec
}

// GetSpec returns a chessboard spec by name.
func GetSpec(name string) (Spec, bool) {
	spec, ok := registry[name]
	return spec, ok
}

// ListSpecs returns all registered spec names, sorted.
func ListSpecs() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func init() {
	Register(DefaultSpec())
	Register(OpenCV9x6Spec())
	Register(A4Spec())
	Register(A3Spec())
}
