package config

import (
	"os"
	"path/filepath"
	"testing"

	"camcal/internal/board"
	"camcal/internal/calib"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestDefault(t *testing.T) {
	c := Default()
	assert.Equal(t, board.DefaultSpec(), c.Chessboard)
	assert.Equal(t, calib.ModelStandard, c.Model)
	assert.Equal(t, "camera.xml", c.Output)
	assert.Equal(t, logrus.InfoLevel, c.LogLevel)
	assert.Empty(t, c.Images)
}

func TestLoadYAML(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"b.png", "a.png", "c.jpg"} {
		writeFile(t, filepath.Join(dir, name), "")
	}
	path := filepath.Join(dir, "run.yaml")
	writeFile(t, path, `
chessboard:
  preset: opencv-9x6
  square_width: 0.02
  refine_window: [5, 7]
model: rational_thin_prism
images:
  - c.jpg
  - "*.png"
  - c.jpg
output: out/camera.json
log_level: debug
`)

	c, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, board.Size{Rows: 6, Cols: 9}, c.Chessboard.Corners)
	assert.Equal(t, 0.02, c.Chessboard.SquareWidth)
	assert.Equal(t, board.Window{Width: 5, Height: 7}, c.Chessboard.RefineWindow)
	assert.Equal(t, calib.ModelRationalThinPrism, c.Model)
	assert.Equal(t, []string{
		filepath.Join(dir, "c.jpg"),
		filepath.Join(dir, "a.png"),
		filepath.Join(dir, "b.png"),
	}, c.Images)
	assert.Equal(t, "out/camera.json", c.Output)
	assert.Equal(t, logrus.DebugLevel, c.LogLevel)
}

func TestLoadJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.json")
	writeFile(t, path, `{"chessboard": {"rows": 5, "cols": 4, "refine_window": [0]}, "model": "thin-prism"}`)

	c, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, board.Size{Rows: 5, Cols: 4}, c.Chessboard.Corners)
	assert.Equal(t, 0.06, c.Chessboard.SquareWidth)
	assert.False(t, c.Chessboard.RefineWindow.Enabled())
	assert.Equal(t, calib.ModelThinPrism, c.Model)
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"bad yaml", "chessboard: [1, 2"},
		{"unknown preset", "chessboard:\n  preset: nope\n"},
		{"preset and file", "chessboard:\n  preset: a4-8x6\n  file: board.json\n"},
		{"missing chessboard file", "chessboard:\n  file: board.json\n"},
		{"invalid corners", "chessboard:\n  rows: 1\n"},
		{"too many window values", "chessboard:\n  refine_window: [1, 2, 3]\n"},
		{"unknown model", "model: fisheye\n"},
		{"bad log level", "log_level: loud\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "run.yaml")
			writeFile(t, path, tt.content)
			_, err := Load(path)
			assert.Error(t, err)
		})
	}

	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestLoadChessboardFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, board.A3Spec().SaveToFile(filepath.Join(dir, "board.json")))
	path := filepath.Join(dir, "run.yaml")
	writeFile(t, path, "chessboard:\n  file: board.json\n  rows: 7\n")

	c, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, board.Size{Rows: 7, Cols: 11}, c.Chessboard.Corners)
	assert.Equal(t, 0.03, c.Chessboard.SquareWidth)
	assert.Equal(t, "a3-11x8", c.Chessboard.Name)
}

func TestGlobSkipsNonImages(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"a.png", "b.PNG", "notes.txt", "c.tiff"} {
		writeFile(t, filepath.Join(dir, name), "")
	}
	path := filepath.Join(dir, "run.yaml")
	writeFile(t, path, "images:\n  - \"*\"\n  - notes.txt\n")

	c, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(dir, "a.png"),
		filepath.Join(dir, "b.PNG"),
		filepath.Join(dir, "c.tiff"),
		filepath.Join(dir, "notes.txt"),
	}, c.Images)
}

func TestSaveRoundTrip(t *testing.T) {
	dir := t.TempDir()
	want := Default()
	want.Chessboard = board.OpenCV9x6Spec()
	want.Model = calib.ModelRational
	want.Images = []string{filepath.Join(dir, "view1.png")}

	path := filepath.Join(dir, "saved.yaml")
	require.NoError(t, Save(path, want.Raw()))

	got, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, want.Chessboard.Corners, got.Chessboard.Corners)
	assert.Equal(t, want.Chessboard.SquareWidth, got.Chessboard.SquareWidth)
	assert.Equal(t, want.Chessboard.RefineWindow, got.Chessboard.RefineWindow)
	assert.Equal(t, want.Model, got.Model)
	assert.Equal(t, want.Images, got.Images)
	assert.Equal(t, want.Output, got.Output)
}

func TestLogrusFields(t *testing.T) {
	fields := Default().LogrusFields()
	assert.Equal(t, "7x6", fields["chessboard"])
	assert.Equal(t, "standard", fields["model"])
	assert.Equal(t, 0, fields["images"])
}
