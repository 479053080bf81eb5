package params

import (
	"encoding/json"
	"errors"
	"io"

	pkgerrors "github.com/pkg/errors"
)

// rawParameters mirrors Parameters with pointers so missing keys are detected.
type rawParameters struct {
	Fx                   *float64  `json:"fx" yaml:"fx"`
	Fy                   *float64  `json:"fy" yaml:"fy"`
	Cx                   *float64  `json:"cx" yaml:"cx"`
	Cy                   *float64  `json:"cy" yaml:"cy"`
	DistortionCoeffs     []float64 `json:"distortion_coefficients" yaml:"distortion_coefficients"`
	HorizontalResolution *int      `json:"horizontal_resolution" yaml:"horizontal_resolution"`
	VerticalResolution   *int      `json:"vertical_resolution" yaml:"vertical_resolution"`
	ReprojectionError    *float64  `json:"reprojection_error" yaml:"reprojection_error"`
}

func encodeJSON(w io.Writer, p Parameters) error {
	if p.DistortionCoeffs == nil {
		p.DistortionCoeffs = []float64{}
	}
	data, err := json.MarshalIndent(p, "", "    ")
	if err != nil {
		return pkgerrors.Wrap(err, "marshal parameters")
	}
	data = append(data, '\n')
	_, err = w.Write(data)
	return err
}

func decodeJSON(data []byte, name string) (Parameters, error) {
	var raw rawParameters
	if err := json.Unmarshal(data, &raw); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) {
			return Parameters{}, &ParseError{Path: name, Field: typeErr.Field, Err: err}
		}
		return Parameters{}, &ParseError{Path: name, Err: err}
	}
	return raw.resolve(name)
}

func (raw rawParameters) resolve(name string) (Parameters, error) {
	p := Parameters{
		DistortionCoeffs:  raw.DistortionCoeffs,
		ReprojectionError: UnknownReprojectionError,
	}

	floats := []struct {
		field string
		src   *float64
		dst   *float64
	}{
		{"fx", raw.Fx, &p.Fx},
		{"fy", raw.Fy, &p.Fy},
		{"cx", raw.Cx, &p.Cx},
		{"cy", raw.Cy, &p.Cy},
	}
	for _, f := range floats {
		if f.src == nil {
			return Parameters{}, &ParseError{Path: name, Field: f.field, Err: errMissing}
		}
		*f.dst = *f.src
	}

	ints := []struct {
		field string
		src   *int
		dst   *int
	}{
		{"horizontal_resolution", raw.HorizontalResolution, &p.HorizontalResolution},
		{"vertical_resolution", raw.VerticalResolution, &p.VerticalResolution},
	}
	for _, f := range ints {
		if f.src == nil {
			return Parameters{}, &ParseError{Path: name, Field: f.field, Err: errMissing}
		}
		*f.dst = *f.src
	}

	if raw.DistortionCoeffs == nil {
		return Parameters{}, &ParseError{Path: name, Field: "distortion_coefficients", Err: errMissing}
	}
	if raw.ReprojectionError != nil {
		p.ReprojectionError = *raw.ReprojectionError
	}
	return p, nil
}

var errMissing = pkgerrors.New("missing")
