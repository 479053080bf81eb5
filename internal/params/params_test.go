package params

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleParameters() Parameters {
	return Parameters{
		Fx:                   512.3456789012345,
		Fy:                   498.76543210987654,
		Cx:                   319.5,
		Cy:                   241.25,
		DistortionCoeffs:     []float64{-0.2812345678901234, 0.0712, 1.5e-4, -2.25e-5, 0.0031},
		HorizontalResolution: 640,
		VerticalResolution:   480,
		ReprojectionError:    0.1234567890123456,
	}
}

func TestFormatForPath(t *testing.T) {
	tests := []struct {
		path string
		want Format
	}{
		{"camera.xml", FormatXML},
		{"camera.XML", FormatXML},
		{"dir/camera.json", FormatJSON},
		{"camera.yaml", FormatYAML},
		{"camera.yml", FormatYAML},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			got, err := FormatForPath(tt.path)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := FormatForPath("camera.txt")
	var unsupported *UnsupportedFormatError
	require.ErrorAs(t, err, &unsupported)
	assert.Equal(t, ".txt", unsupported.Ext)
	assert.Contains(t, err.Error(), "camera.txt")

	_, err = FormatForPath("camera")
	require.ErrorAs(t, err, &unsupported)
}

func TestRoundTrip(t *testing.T) {
	dir := t.TempDir()
	want := sampleParameters()

	for _, name := range []string{"camera.json", "camera.xml", "camera.yaml", "camera.yml"} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(dir, name)
			require.NoError(t, Save(path, want))

			got, err := Load(path)
			require.NoError(t, err)
			assert.Equal(t, want, got)
		})
	}
}

func TestRoundTripLongVector(t *testing.T) {
	dir := t.TempDir()
	want := sampleParameters()
	want.DistortionCoeffs = []float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12}

	for _, name := range []string{"camera.json", "camera.xml", "camera.yaml"} {
		path := filepath.Join(dir, name)
		require.NoError(t, Save(path, want))
		got, err := Load(path)
		require.NoError(t, err)
		assert.Equal(t, want.DistortionCoeffs, got.DistortionCoeffs, name)
	}
}

func TestJSONLayout(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, FormatJSON, sampleParameters()))

	out := buf.String()
	assert.True(t, strings.HasPrefix(out, "{\n    \"fx\": "), out)
	assert.Contains(t, out, "\"distortion_coefficients\": [\n        -0.2812345678901234,")
	assert.Contains(t, out, "\"horizontal_resolution\": 640")
	assert.True(t, strings.HasSuffix(out, "}\n"))
}

func TestXMLLayout(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, FormatXML, sampleParameters()))

	out := buf.String()
	assert.True(t, strings.HasPrefix(out, "<?xml version=\"1.0\"?>\n<opencv_storage>\n"))
	assert.Contains(t, out, "<cx>3.1950000000000000e+02</cx>")
	assert.Contains(t, out, `<distortion_coefficients type_id="opencv-matrix">`)
	assert.Contains(t, out, "<rows>5</rows>")
	assert.Contains(t, out, "<dt>d</dt>")
	assert.Contains(t, out, "<vertical_resolution>480</vertical_resolution>")
	assert.Contains(t, out, "<horizontal_resolution>640</horizontal_resolution>")
}

func TestDecodeOpenCVRowVector(t *testing.T) {
	doc := `<?xml version="1.0"?>
<opencv_storage>
<fx>5.0e+02</fx>
<fy>5.0e+02</fy>
<cx>320.</cx>
<cy>240.</cy>
<distortion_coefficients type_id="opencv-matrix">
  <rows>1</rows>
  <cols>5</cols>
  <dt>d</dt>
  <data>
    -1.0e-01 2.0e-02 0. 0. 1.0e-03</data></distortion_coefficients>
<vertical_resolution>480</vertical_resolution>
<horizontal_resolution>640</horizontal_resolution>
</opencv_storage>
`
	p, err := Decode([]byte(doc), FormatXML, "cam.xml")
	require.NoError(t, err)
	assert.Equal(t, 500.0, p.Fx)
	assert.Equal(t, 320.0, p.Cx)
	assert.Equal(t, []float64{-0.1, 0.02, 0, 0, 0.001}, p.DistortionCoeffs)
	assert.Equal(t, UnknownReprojectionError, p.ReprojectionError)
}

func TestDecodeJSONWithoutReprojectionError(t *testing.T) {
	doc := `{
    "cx": 320.0,
    "cy": 240.0,
    "distortion_coefficients": [0.1, 0.2, 0.0, 0.0, 0.3],
    "fx": 500.0,
    "fy": 501.0,
    "horizontal_resolution": 640,
    "vertical_resolution": 480
}`
	p, err := Decode([]byte(doc), FormatJSON, "cam.json")
	require.NoError(t, err)
	assert.Equal(t, 501.0, p.Fy)
	assert.Equal(t, 480, p.VerticalResolution)
	assert.Equal(t, UnknownReprojectionError, p.ReprojectionError)
}

func TestDecodeErrors(t *testing.T) {
	tests := []struct {
		name      string
		format    Format
		doc       string
		wantField string
	}{
		{"json syntax", FormatJSON, `{"fx": `, ""},
		{"json missing fx", FormatJSON, `{"fy": 1, "cx": 1, "cy": 1, "distortion_coefficients": [], "horizontal_resolution": 1, "vertical_resolution": 1}`, "fx"},
		{"json bad resolution", FormatJSON, `{"fx": 1, "fy": 1, "cx": 1, "cy": 1, "distortion_coefficients": [], "horizontal_resolution": "wide", "vertical_resolution": 1}`, "horizontal_resolution"},
		{"json missing distortion", FormatJSON, `{"fx": 1, "fy": 1, "cx": 1, "cy": 1, "horizontal_resolution": 1, "vertical_resolution": 1}`, "distortion_coefficients"},
		{"xml not xml", FormatXML, `not xml at all`, ""},
		{"xml bad fx", FormatXML, `<opencv_storage><fx>abc</fx></opencv_storage>`, "fx"},
		{"xml missing cy", FormatXML, `<opencv_storage><fx>1</fx><fy>1</fy><cx>1</cx></opencv_storage>`, "cy"},
		{"xml short matrix", FormatXML, `<opencv_storage><fx>1</fx><fy>1</fy><cx>1</cx><cy>1</cy>
<horizontal_resolution>1</horizontal_resolution><vertical_resolution>1</vertical_resolution>
<distortion_coefficients type_id="opencv-matrix"><rows>5</rows><cols>1</cols><dt>d</dt><data>1 2</data></distortion_coefficients>
</opencv_storage>`, "distortion_coefficients"},
		{"yaml empty", FormatYAML, ``, ""},
		{"yaml missing vertical", FormatYAML, "fx: 1\nfy: 1\ncx: 1\ncy: 1\ndistortion_coefficients: []\nhorizontal_resolution: 1\n", "vertical_resolution"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode([]byte(tt.doc), tt.format, "broken")
			var parseErr *ParseError
			require.ErrorAs(t, err, &parseErr)
			assert.Equal(t, "broken", parseErr.Path)
			assert.Equal(t, tt.wantField, parseErr.Field)
			assert.Contains(t, err.Error(), "broken")
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.json"))
	require.Error(t, err)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestSaveUnsupported(t *testing.T) {
	path := filepath.Join(t.TempDir(), "camera.ini")
	err := Save(path, sampleParameters())
	var unsupported *UnsupportedFormatError
	require.ErrorAs(t, err, &unsupported)
	_, statErr := os.Stat(path)
	assert.True(t, os.IsNotExist(statErr))
}

func TestConvert(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "camera.xml")
	dst := filepath.Join(dir, "camera.json")

	want := sampleParameters()
	require.NoError(t, Save(src, want))
	require.NoError(t, Convert(src, dst))

	got, err := Load(dst)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}
