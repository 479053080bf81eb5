// Package image provides calibration image loading and grayscale conversion.
package image

import (
	"image"
	_ "image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"strings"

	pkgerrors "github.com/pkg/errors"
	"go.uber.org/multierr"
	_ "golang.org/x/image/bmp"
	xdraw "golang.org/x/image/draw"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// Decoder loads calibration images from disk as 8-bit grayscale rasters.
type Decoder struct{}

// NewDecoder creates a Decoder.
func NewDecoder() *Decoder {
	return &Decoder{}
}

// Decode loads the image at path and converts it to grayscale.
func (d *Decoder) Decode(path string) (*image.Gray, error) {
	return Load(path)
}

// Load loads an image from the specified path and converts it to grayscale.
// The returned raster always starts at the origin and has Stride == width.
func Load(path string) (*image.Gray, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "failed to open image")
	}
	defer file.Close()

	img, _, err := image.Decode(file)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "failed to decode image")
	}

	gray := ToGray(img)
	if gray.Bounds().Empty() {
		return nil, pkgerrors.Errorf("image %s has no pixels", path)
	}
	return gray, nil
}

// ToGray converts any image to a zero-origin, tightly packed grayscale raster.
func ToGray(img image.Image) *image.Gray {
	b := img.Bounds()
	if g, ok := img.(*image.Gray); ok && b.Min == (image.Point{}) && g.Stride == b.Dx() {
		return g
	}
	dst := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	xdraw.Draw(dst, dst.Bounds(), img, b.Min, xdraw.Src)
	return dst
}

// SavePNG writes a grayscale raster as PNG.
func SavePNG(path string, img image.Image) (err error) {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Append(err, file.Close())
	}()

	return png.Encode(file, img)
}

// SupportedFormats returns the list of supported image formats.
func SupportedFormats() []string {
	return []string{".png", ".jpg", ".jpeg", ".tiff", ".tif", ".bmp", ".webp"}
}

// IsSupportedFormat checks if the given path has a supported image format.
func IsSupportedFormat(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, format := range SupportedFormats() {
		if ext == format {
			return true
		}
	}
	return false
}
