package calib

import (
	"camcal/pkg/geometry"

	pkgerrors "github.com/pkg/errors"
)

// Status is the detection state of one calibration image.
type Status int

const (
	StatusNotProcessed Status = iota
	StatusFound
	StatusNotFound
)

func (s Status) String() string {
	switch s {
	case StatusNotProcessed:
		return "not processed"
	case StatusFound:
		return "found"
	case StatusNotFound:
		return "not found"
	default:
		return "unknown"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// NotComputed is the reprojection error sentinel for images without a score.
const NotComputed = -1.0

// Image is one registered calibration photograph and its detection state.
type Image struct {
	Path              string             `json:"path"`
	Status            Status             `json:"status"`
	Corners           []geometry.Point2D `json:"corners,omitempty"`
	ReprojectionError float64            `json:"reprojection_error"`
}

// NewImage creates an unprocessed image entry.
func NewImage(path string) Image {
	return Image{
		Path:              path,
		Status:            StatusNotProcessed,
		ReprojectionError: NotComputed,
	}
}

func (img *Image) reset() {
	img.Status = StatusNotProcessed
	img.Corners = nil
	img.ReprojectionError = NotComputed
}

// Clone returns a deep copy.
func (img Image) Clone() Image {
	if img.Corners != nil {
		img.Corners = append([]geometry.Point2D(nil), img.Corners...)
	}
	return img
}

// Registry is the ordered set of registered calibration images.
// It is not safe for concurrent use; Session guards it.
type Registry struct {
	images []Image
}

// Add registers an image path at the end of the registry.
func (r *Registry) Add(path string) {
	r.images = append(r.images, NewImage(path))
}

// Set replaces the registry contents with paths, in order.
func (r *Registry) Set(paths []string) {
	r.images = make([]Image, 0, len(paths))
	for _, p := range paths {
		r.Add(p)
	}
}

// Remove deregisters the image at index.
func (r *Registry) Remove(index int) error {
	if index < 0 || index >= len(r.images) {
		return pkgerrors.Errorf("image index %d out of range [0, %d)", index, len(r.images))
	}
	r.images = append(r.images[:index], r.images[index+1:]...)
	return nil
}

// Clear removes all images.
func (r *Registry) Clear() {
	r.images = nil
}

// Len returns the number of registered images.
func (r *Registry) Len() int {
	return len(r.images)
}

// Files returns the registered paths in order.
func (r *Registry) Files() []string {
	files := make([]string, len(r.images))
	for i, img := range r.images {
		files[i] = img.Path
	}
	return files
}

// Snapshot returns a deep copy of the registered images.
func (r *Registry) Snapshot() []Image {
	out := make([]Image, len(r.images))
	for i, img := range r.images {
		out[i] = img.Clone()
	}
	return out
}

// commit stores the per-image outcome of a run. The paths must match the registry.
func (r *Registry) commit(images []Image) {
	if len(images) != len(r.images) {
		return
	}
	for i := range images {
		if images[i].Path != r.images[i].Path {
			return
		}
	}
	r.images = images
}
