package params

import (
	"bufio"
	"encoding/xml"
	"fmt"
	"io"
	"strconv"
	"strings"

	pkgerrors "github.com/pkg/errors"
)

// xmlStorage is the subset of the OpenCV FileStorage XML document used for
// calibration parameters. Scalars are kept as text so each field can be
// validated on its own.
type xmlStorage struct {
	XMLName              xml.Name   `xml:"opencv_storage"`
	Fx                   *string    `xml:"fx"`
	Fy                   *string    `xml:"fy"`
	Cx                   *string    `xml:"cx"`
	Cy                   *string    `xml:"cy"`
	Distortion           *xmlMatrix `xml:"distortion_coefficients"`
	VerticalResolution   *string    `xml:"vertical_resolution"`
	HorizontalResolution *string    `xml:"horizontal_resolution"`
	ReprojectionError    *string    `xml:"reprojection_error"`
}

type xmlMatrix struct {
	TypeID string `xml:"type_id,attr"`
	Rows   int    `xml:"rows"`
	Cols   int    `xml:"cols"`
	Dt     string `xml:"dt"`
	Data   string `xml:"data"`
}

// formatDouble writes a double the way FileStorage does.
func formatDouble(v float64) string {
	return fmt.Sprintf("%.16e", v)
}

func encodeXML(w io.Writer, p Parameters) error {
	bw := bufio.NewWriter(w)

	fmt.Fprintln(bw, `<?xml version="1.0"?>`)
	fmt.Fprintln(bw, "<opencv_storage>")
	fmt.Fprintf(bw, "<fx>%s</fx>\n", formatDouble(p.Fx))
	fmt.Fprintf(bw, "<fy>%s</fy>\n", formatDouble(p.Fy))
	fmt.Fprintf(bw, "<cx>%s</cx>\n", formatDouble(p.Cx))
	fmt.Fprintf(bw, "<cy>%s</cy>\n", formatDouble(p.Cy))

	fmt.Fprintln(bw, `<distortion_coefficients type_id="opencv-matrix">`)
	fmt.Fprintf(bw, "  <rows>%d</rows>\n", len(p.DistortionCoeffs))
	fmt.Fprintln(bw, "  <cols>1</cols>")
	fmt.Fprintln(bw, "  <dt>d</dt>")
	fmt.Fprint(bw, "  <data>")
	for i, v := range p.DistortionCoeffs {
		if i%4 == 0 {
			fmt.Fprint(bw, "\n    ")
		} else {
			fmt.Fprint(bw, " ")
		}
		fmt.Fprint(bw, formatDouble(v))
	}
	fmt.Fprintln(bw, "</data></distortion_coefficients>")

	fmt.Fprintf(bw, "<vertical_resolution>%d</vertical_resolution>\n", p.VerticalResolution)
	fmt.Fprintf(bw, "<horizontal_resolution>%d</horizontal_resolution>\n", p.HorizontalResolution)
	fmt.Fprintf(bw, "<reprojection_error>%s</reprojection_error>\n", formatDouble(p.ReprojectionError))
	fmt.Fprintln(bw, "</opencv_storage>")

	return bw.Flush()
}

func decodeXML(data []byte, name string) (Parameters, error) {
	var doc xmlStorage
	if err := xml.Unmarshal(data, &doc); err != nil {
		return Parameters{}, &ParseError{Path: name, Err: err}
	}

	p := Parameters{ReprojectionError: UnknownReprojectionError}

	floats := []struct {
		field string
		src   *string
		dst   *float64
	}{
		{"fx", doc.Fx, &p.Fx},
		{"fy", doc.Fy, &p.Fy},
		{"cx", doc.Cx, &p.Cx},
		{"cy", doc.Cy, &p.Cy},
	}
	for _, f := range floats {
		if f.src == nil {
			return Parameters{}, &ParseError{Path: name, Field: f.field, Err: errMissing}
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(*f.src), 64)
		if err != nil {
			return Parameters{}, &ParseError{Path: name, Field: f.field, Err: err}
		}
		*f.dst = v
	}

	ints := []struct {
		field string
		src   *string
		dst   *int
	}{
		{"horizontal_resolution", doc.HorizontalResolution, &p.HorizontalResolution},
		{"vertical_resolution", doc.VerticalResolution, &p.VerticalResolution},
	}
	for _, f := range ints {
		if f.src == nil {
			return Parameters{}, &ParseError{Path: name, Field: f.field, Err: errMissing}
		}
		v, err := strconv.Atoi(strings.TrimSpace(*f.src))
		if err != nil {
			return Parameters{}, &ParseError{Path: name, Field: f.field, Err: err}
		}
		*f.dst = v
	}

	if doc.ReprojectionError != nil {
		v, err := strconv.ParseFloat(strings.TrimSpace(*doc.ReprojectionError), 64)
		if err != nil {
			return Parameters{}, &ParseError{Path: name, Field: "reprojection_error", Err: err}
		}
		p.ReprojectionError = v
	}

	if doc.Distortion == nil {
		return Parameters{}, &ParseError{Path: name, Field: "distortion_coefficients", Err: errMissing}
	}
	coeffs, err := doc.Distortion.values()
	if err != nil {
		return Parameters{}, &ParseError{Path: name, Field: "distortion_coefficients", Err: err}
	}
	p.DistortionCoeffs = coeffs
	return p, nil
}

// values returns the matrix elements in row-major order. Any rows x cols shape is
// accepted; OpenCV writes distortion vectors both as rows and columns.
func (m *xmlMatrix) values() ([]float64, error) {
	if m.TypeID != "" && m.TypeID != "opencv-matrix" {
		return nil, pkgerrors.Errorf("unexpected type_id %q", m.TypeID)
	}
	if m.Dt != "" && m.Dt != "d" && m.Dt != "f" {
		return nil, pkgerrors.Errorf("unsupported element type %q", m.Dt)
	}
	if m.Rows < 0 || m.Cols < 0 {
		return nil, pkgerrors.Errorf("invalid shape %dx%d", m.Rows, m.Cols)
	}

	fields := strings.Fields(m.Data)
	if len(fields) != m.Rows*m.Cols {
		return nil, pkgerrors.Errorf("%dx%d matrix has %d elements", m.Rows, m.Cols, len(fields))
	}
	values := make([]float64, len(fields))
	for i, s := range fields {
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, pkgerrors.Wrapf(err, "element %d", i)
		}
		values[i] = v
	}
	return values, nil
}
