package main

import (
	"path/filepath"
	"testing"

	"camcal/internal/config"
	imgdec "camcal/internal/image"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunWritesViewsAndConfig(t *testing.T) {
	dir := t.TempDir()
	opts := &options{
		outDir:      dir,
		preset:      "opencv-9x6",
		count:       3,
		width:       320,
		height:      240,
		focal:       250,
		supersample: 1,
	}
	require.NoError(t, run(opts))

	c, err := config.Load(filepath.Join(dir, "config.yaml"))
	require.NoError(t, err)
	require.Len(t, c.Images, 3)
	assert.Equal(t, 6, c.Chessboard.Corners.Rows)
	assert.Equal(t, 9, c.Chessboard.Corners.Cols)
	assert.Equal(t, "opencv-9x6", c.Chessboard.Name)

	img, err := imgdec.Load(c.Images[0])
	require.NoError(t, err)
	assert.Equal(t, 320, img.Bounds().Dx())
	assert.Equal(t, 240, img.Bounds().Dy())
}

func TestRunRejectsBadOptions(t *testing.T) {
	assert.Error(t, run(&options{outDir: t.TempDir(), preset: "nope", count: 1}))
	assert.Error(t, run(&options{outDir: t.TempDir(), preset: "opencv-9x6", count: 0}))
}
