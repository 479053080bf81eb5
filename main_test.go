package main

import (
	"bytes"
	"path/filepath"
	"testing"

	"camcal/internal/board"
	"camcal/internal/calib"
	"camcal/internal/config"
	"camcal/internal/params"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func sampleParameters() params.Parameters {
	return params.Parameters{
		Fx: 512.5, Fy: 510.25, Cx: 319.5, Cy: 241,
		DistortionCoeffs:     []float64{-0.2, 0.05, 0.001, -0.0005, 0},
		HorizontalResolution: 640,
		VerticalResolution:   480,
		ReprojectionError:    0.31,
	}
}

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "camcal")
}

func TestShowAndConvert(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "camera.xml")
	dst := filepath.Join(dir, "camera.yaml")
	require.NoError(t, params.Save(src, sampleParameters()))

	out, err := execute(t, "show", src)
	require.NoError(t, err)
	assert.Contains(t, out, "fx=512.5000")
	assert.Contains(t, out, "640x480")
	assert.Contains(t, out, "0.310000 px")

	_, err = execute(t, "convert", src, dst)
	require.NoError(t, err)
	p, err := params.Load(dst)
	require.NoError(t, err)
	assert.Equal(t, sampleParameters(), p)

	_, err = execute(t, "convert", src, filepath.Join(dir, "camera.ini"))
	assert.Error(t, err)
	_, err = execute(t, "show")
	assert.Error(t, err)
}

func TestCalibrateOptionsOverrideConfig(t *testing.T) {
	opts := &calibrateOptions{}
	cmd := NewCalibrateCommand()
	require.NoError(t, cmd.Flags().Parse([]string{"--rows", "6", "--cols", "9", "--window", "5,5", "--model", "rational", "-o", "out.json"}))

	c := config.Default()
	c.Images = []string{"from-config.png"}
	opts.rows, opts.cols = 6, 9
	opts.window = []int{5, 5}
	opts.model = "rational"
	opts.output = "out.json"
	require.NoError(t, opts.apply(cmd, c, []string{"a.png", "b.png"}))

	assert.Equal(t, board.Size{Rows: 6, Cols: 9}, c.Chessboard.Corners)
	assert.Equal(t, board.Window{Width: 5, Height: 5}, c.Chessboard.RefineWindow)
	assert.Equal(t, board.DefaultSpec().SquareWidth, c.Chessboard.SquareWidth)
	assert.Equal(t, calib.ModelRational, c.Model)
	assert.Equal(t, "out.json", c.Output)
	assert.Equal(t, []string{"a.png", "b.png"}, c.Images)
}

func TestCalibrateOptionsErrors(t *testing.T) {
	cmd := NewCalibrateCommand()
	require.NoError(t, cmd.Flags().Parse([]string{"--window", "5", "--model", "fisheye", "--preset", "nope"}))

	err := (&calibrateOptions{preset: "nope"}).apply(cmd, config.Default(), nil)
	assert.ErrorContains(t, err, "unknown chessboard preset")

	cmd = NewCalibrateCommand()
	require.NoError(t, cmd.Flags().Parse([]string{"--window", "5"}))
	err = (&calibrateOptions{window: []int{5}}).apply(cmd, config.Default(), nil)
	assert.ErrorContains(t, err, "--window")

	cmd = NewCalibrateCommand()
	require.NoError(t, cmd.Flags().Parse([]string{"--model", "fisheye"}))
	err = (&calibrateOptions{model: "fisheye"}).apply(cmd, config.Default(), nil)
	assert.Error(t, err)
}

func TestCalibrateBoardFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "board.json")
	require.NoError(t, board.A4Spec().SaveToFile(path))

	cmd := NewCalibrateCommand()
	require.NoError(t, cmd.Flags().Parse([]string{"--board-file", path, "--square", "0.03"}))
	c := config.Default()
	require.NoError(t, (&calibrateOptions{boardFile: path, square: 0.03}).apply(cmd, c, nil))
	assert.Equal(t, board.Size{Rows: 6, Cols: 8}, c.Chessboard.Corners)
	assert.Equal(t, 0.03, c.Chessboard.SquareWidth)

	cmd = NewCalibrateCommand()
	require.NoError(t, cmd.Flags().Parse([]string{"--board-file", filepath.Join(t.TempDir(), "none.json")}))
	assert.Error(t, (&calibrateOptions{boardFile: filepath.Join(t.TempDir(), "none.json")}).apply(cmd, config.Default(), nil))
}

func TestCalibrateRejectsUnknownOutputFormat(t *testing.T) {
	_, err := execute(t, "calibrate", "--output", "camera.txt", "a.png")
	assert.Error(t, err)
}
