// Package config loads calibration run configuration files.
//
// A config file is YAML (JSON documents are accepted as well). Every field is
// optional; unset fields fall back to defaults.
package config

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"camcal/internal/board"
	"camcal/internal/calib"
	imgdec "camcal/internal/image"

	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"go.uber.org/multierr"
	"gopkg.in/yaml.v3"
)

var defaultRawConfig = &RawConfig{
	Model:    ptrTo(calib.ModelStandard.String()),
	Output:   ptrTo("camera.xml"),
	LogLevel: ptrTo(logrus.InfoLevel.String()),
	Listen:   ptrTo("127.0.0.1:8080"),
}

// RawChessboard is the chessboard section as written in the file.
// Preset names a registered board and File a board spec JSON file, relative to
// the config file; the other fields override either.
type RawChessboard struct {
	Preset       *string  `yaml:"preset,omitempty" json:"preset,omitempty"`
	File         *string  `yaml:"file,omitempty" json:"file,omitempty"`
	Rows         *int     `yaml:"rows,omitempty" json:"rows,omitempty"`
	Cols         *int     `yaml:"cols,omitempty" json:"cols,omitempty"`
	SquareWidth  *float64 `yaml:"square_width,omitempty" json:"square_width,omitempty"`
	RefineWindow []int    `yaml:"refine_window,omitempty,flow" json:"refine_window,omitempty"`
}

// RawConfig is the file representation of a run configuration.
type RawConfig struct {
	Chessboard *RawChessboard `yaml:"chessboard,omitempty" json:"chessboard,omitempty"`
	Model      *string        `yaml:"model,omitempty" json:"model,omitempty"`
	Images     []string       `yaml:"images,omitempty" json:"images,omitempty"`
	Output     *string        `yaml:"output,omitempty" json:"output,omitempty"`
	LogLevel   *string        `yaml:"log_level,omitempty" json:"log_level,omitempty"`
	Listen     *string        `yaml:"listen,omitempty" json:"listen,omitempty"`
}

// Config is a resolved run configuration.
type Config struct {
	Chessboard board.Spec
	Model      calib.DistortionModel
	Images     []string
	Output     string
	LogLevel   logrus.Level
	Listen     string
}

// Default returns the configuration used without a config file.
func Default() *Config {
	c, err := defaultRawConfig.Resolve("")
	if err != nil {
		panic(err)
	}
	return c
}

// Load reads and resolves the config file at path. Relative image paths and
// patterns are resolved against the directory of the file.
func Load(path string) (*Config, error) {
	raw, err := LoadRaw(path)
	if err != nil {
		return nil, err
	}
	c, err := raw.Resolve(filepath.Dir(path))
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "config %s", path)
	}
	return c, nil
}

// LoadRaw reads the config file at path without resolving defaults.
func LoadRaw(path string) (*RawConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "read config %s", path)
	}
	raw := &RawConfig{}
	if err := yaml.Unmarshal(data, raw); err != nil {
		return nil, pkgerrors.Wrapf(err, "parse config %s", path)
	}
	return raw, nil
}

// Save writes raw to path as YAML.
func Save(path string, raw *RawConfig) (err error) {
	if raw == nil {
		return pkgerrors.New("config is nil")
	}
	f, err := os.Create(path)
	if err != nil {
		return pkgerrors.Wrapf(err, "create config %s", path)
	}
	defer func() {
		err = multierr.Append(err, f.Close())
	}()

	enc := yaml.NewEncoder(f)
	enc.SetIndent(2)
	if err := enc.Encode(raw); err != nil {
		return pkgerrors.Wrapf(err, "write config %s", path)
	}
	return enc.Close()
}

// Resolve applies defaults and validates the configuration. baseDir anchors
// relative image paths; empty means the working directory.
func (r *RawConfig) Resolve(baseDir string) (*Config, error) {
	spec, err := r.Chessboard.resolve(baseDir)
	if err != nil {
		return nil, err
	}

	modelName := *defaultRawConfig.Model
	if r.Model != nil {
		modelName = *r.Model
	}
	model, err := calib.ParseDistortionModel(modelName)
	if err != nil {
		return nil, err
	}

	levelName := *defaultRawConfig.LogLevel
	if r.LogLevel != nil {
		levelName = *r.LogLevel
	}
	level, err := logrus.ParseLevel(levelName)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "log_level")
	}

	images, err := expandImages(r.Images, baseDir)
	if err != nil {
		return nil, err
	}

	c := &Config{
		Chessboard: spec,
		Model:      model,
		Images:     images,
		Output:     *defaultRawConfig.Output,
		LogLevel:   level,
		Listen:     *defaultRawConfig.Listen,
	}
	if r.Output != nil {
		c.Output = *r.Output
	}
	if r.Listen != nil {
		c.Listen = *r.Listen
	}
	return c, nil
}

func (rc *RawChessboard) resolve(baseDir string) (board.Spec, error) {
	spec := board.DefaultSpec()
	if rc == nil {
		return spec, nil
	}

	switch {
	case rc.Preset != nil && rc.File != nil:
		return board.Spec{}, pkgerrors.New("chessboard preset and file are mutually exclusive")
	case rc.Preset != nil:
		preset, ok := board.GetSpec(*rc.Preset)
		if !ok {
			return board.Spec{}, pkgerrors.Errorf("unknown chessboard preset %q (known: %s)",
				*rc.Preset, strings.Join(board.ListSpecs(), ", "))
		}
		spec = preset
	case rc.File != nil:
		path := *rc.File
		if baseDir != "" && !filepath.IsAbs(path) {
			path = filepath.Join(baseDir, path)
		}
		loaded, err := board.LoadFromFile(path)
		if err != nil {
			return board.Spec{}, pkgerrors.Wrap(err, "chessboard file")
		}
		spec = loaded
	}

	if rc.Rows != nil || rc.Cols != nil {
		rows, cols := spec.Corners.Rows, spec.Corners.Cols
		if rc.Rows != nil {
			rows = *rc.Rows
		}
		if rc.Cols != nil {
			cols = *rc.Cols
		}
		spec = spec.WithCorners(rows, cols)
	}
	if rc.SquareWidth != nil {
		spec = spec.WithSquareWidth(*rc.SquareWidth)
	}
	switch len(rc.RefineWindow) {
	case 0:
	case 1:
		spec = spec.WithRefineWindow(rc.RefineWindow[0], rc.RefineWindow[0])
	case 2:
		spec = spec.WithRefineWindow(rc.RefineWindow[0], rc.RefineWindow[1])
	default:
		return board.Spec{}, pkgerrors.Errorf("refine_window takes one or two values, got %d", len(rc.RefineWindow))
	}
	if rc.Preset == nil && rc.File == nil && (rc.Rows != nil || rc.Cols != nil) {
		spec.Name = ""
	}

	if err := spec.Validate(); err != nil {
		return board.Spec{}, err
	}
	return spec, nil
}

// expandImages resolves paths and glob patterns, keeping the listed order.
// Matches of one pattern are sorted and limited to decodable image formats;
// duplicates are dropped.
func expandImages(patterns []string, baseDir string) ([]string, error) {
	var out []string
	seen := make(map[string]bool)
	for _, pattern := range patterns {
		if baseDir != "" && !filepath.IsAbs(pattern) {
			pattern = filepath.Join(baseDir, pattern)
		}
		matches := []string{pattern}
		if strings.ContainsAny(pattern, "*?[") {
			var err error
			matches, err = filepath.Glob(pattern)
			if err != nil {
				return nil, pkgerrors.Wrapf(err, "image pattern %q", pattern)
			}
			matches = supportedImages(matches)
			sort.Strings(matches)
		}
		for _, m := range matches {
			if !seen[m] {
				seen[m] = true
				out = append(out, m)
			}
		}
	}
	return out, nil
}

func supportedImages(paths []string) []string {
	out := paths[:0]
	for _, p := range paths {
		if imgdec.IsSupportedFormat(p) {
			out = append(out, p)
		}
	}
	return out
}

// LogrusFields returns the configuration as log fields.
func (c *Config) LogrusFields() logrus.Fields {
	return logrus.Fields{
		"chessboard":    c.Chessboard.Corners.String(),
		"square_width":  c.Chessboard.SquareWidth,
		"refine_window": c.Chessboard.RefineWindow.Point().String(),
		"model":         c.Model.String(),
		"images":        len(c.Images),
		"output":        c.Output,
	}
}

// Raw converts a resolved configuration back to its file form.
func (c *Config) Raw() *RawConfig {
	raw := &RawConfig{
		Chessboard: &RawChessboard{
			Rows:         ptrTo(c.Chessboard.Corners.Rows),
			Cols:         ptrTo(c.Chessboard.Corners.Cols),
			SquareWidth:  ptrTo(c.Chessboard.SquareWidth),
			RefineWindow: []int{c.Chessboard.RefineWindow.Width, c.Chessboard.RefineWindow.Height},
		},
		Model:    ptrTo(c.Model.String()),
		Images:   append([]string(nil), c.Images...),
		Output:   ptrTo(c.Output),
		LogLevel: ptrTo(c.LogLevel.String()),
		Listen:   ptrTo(c.Listen),
	}
	return raw
}

func ptrTo[T any](v T) *T {
	return &v
}
