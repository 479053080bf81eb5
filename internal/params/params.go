// Package params persists camera calibration parameters.
//
// Three formats are supported, selected by file extension: the OpenCV
// FileStorage XML layout (.xml), JSON (.json) and YAML (.yaml, .yml).
package params

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	pkgerrors "github.com/pkg/errors"
	"go.uber.org/multierr"
)

// UnknownReprojectionError is stored when a file carries no reprojection error.
const UnknownReprojectionError = -1.0

// Parameters is the persisted form of a calibration result.
type Parameters struct {
	Fx                   float64   `json:"fx" yaml:"fx"`
	Fy                   float64   `json:"fy" yaml:"fy"`
	Cx                   float64   `json:"cx" yaml:"cx"`
	Cy                   float64   `json:"cy" yaml:"cy"`
	DistortionCoeffs     []float64 `json:"distortion_coefficients" yaml:"distortion_coefficients,flow"`
	HorizontalResolution int       `json:"horizontal_resolution" yaml:"horizontal_resolution"`
	VerticalResolution   int       `json:"vertical_resolution" yaml:"vertical_resolution"`
	ReprojectionError    float64   `json:"reprojection_error" yaml:"reprojection_error"`
}

// Format is a parameter file encoding.
type Format string

const (
	FormatXML  Format = "xml"
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// UnsupportedFormatError is returned for file extensions without a codec.
type UnsupportedFormatError struct {
	Path string
	Ext  string
}

func (e *UnsupportedFormatError) Error() string {
	if e.Ext == "" {
		return fmt.Sprintf("unsupported parameter file %s: no extension (want .xml, .json, .yaml or .yml)", e.Path)
	}
	return fmt.Sprintf("unsupported parameter file %s: extension %q (want .xml, .json, .yaml or .yml)", e.Path, e.Ext)
}

// ParseError is returned for malformed parameter files.
type ParseError struct {
	Path  string
	Field string
	Err   error
}

func (e *ParseError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("parse %s: %v", e.Path, e.Err)
	}
	return fmt.Sprintf("parse %s: field %s: %v", e.Path, e.Field, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// FormatForPath selects the format from the file extension.
func FormatForPath(path string) (Format, error) {
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".xml":
		return FormatXML, nil
	case ".json":
		return FormatJSON, nil
	case ".yaml", ".yml":
		return FormatYAML, nil
	default:
		return "", &UnsupportedFormatError{Path: path, Ext: ext}
	}
}

// Encode writes p in the given format.
func Encode(w io.Writer, format Format, p Parameters) error {
	switch format {
	case FormatXML:
		return encodeXML(w, p)
	case FormatJSON:
		return encodeJSON(w, p)
	case FormatYAML:
		return encodeYAML(w, p)
	default:
		return pkgerrors.Errorf("unknown parameter format %q", format)
	}
}

// Decode reads parameters in the given format. name is used in error messages.
func Decode(data []byte, format Format, name string) (Parameters, error) {
	switch format {
	case FormatXML:
		return decodeXML(data, name)
	case FormatJSON:
		return decodeJSON(data, name)
	case FormatYAML:
		return decodeYAML(data, name)
	default:
		return Parameters{}, pkgerrors.Errorf("unknown parameter format %q", format)
	}
}

// Save writes p to path in the format selected by its extension.
func Save(path string, p Parameters) (err error) {
	format, err := FormatForPath(path)
	if err != nil {
		return err
	}

	f, err := os.Create(path)
	if err != nil {
		return pkgerrors.Wrapf(err, "create %s", path)
	}
	defer func() {
		err = multierr.Append(err, f.Close())
	}()

	if err := Encode(f, format, p); err != nil {
		return pkgerrors.Wrapf(err, "write %s", path)
	}
	return nil
}

// Load reads parameters from path in the format selected by its extension.
func Load(path string) (Parameters, error) {
	format, err := FormatForPath(path)
	if err != nil {
		return Parameters{}, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Parameters{}, pkgerrors.Wrapf(err, "read %s", path)
	}
	return Decode(data, format, path)
}

// Convert reads parameters from src and writes them to dst, translating formats.
func Convert(src, dst string) error {
	p, err := Load(src)
	if err != nil {
		return err
	}
	return Save(dst, p)
}
