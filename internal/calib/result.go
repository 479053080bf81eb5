package calib

import (
	"camcal/internal/params"
	"camcal/internal/projection"
	"camcal/pkg/geometry"
)

// Result is the outcome of a successful calibration or a loaded parameter file.
type Result struct {
	CameraMatrix      projection.CameraMatrix `json:"camera_matrix"`
	Distortion        []float64               `json:"distortion_coefficients"`
	Resolution        geometry.Size           `json:"resolution"`
	ReprojectionError float64                 `json:"reprojection_error"`

	// PerImageErrors has one entry per registered image, NotComputed where the
	// image did not contribute corners. Empty for loaded results.
	PerImageErrors []float64         `json:"per_image_errors,omitempty"`
	Poses          []projection.Pose `json:"poses,omitempty"`
	Model          DistortionModel   `json:"model"`
	SolverRMS      float64           `json:"solver_rms,omitempty"`
}

// Clone returns a deep copy.
func (r *Result) Clone() *Result {
	if r == nil {
		return nil
	}
	c := *r
	c.Distortion = append([]float64(nil), r.Distortion...)
	c.PerImageErrors = append([]float64(nil), r.PerImageErrors...)
	c.Poses = append([]projection.Pose(nil), r.Poses...)
	return &c
}

// Parameters converts the result to its persisted form.
func (r *Result) Parameters() params.Parameters {
	return params.Parameters{
		Fx:                   r.CameraMatrix.Fx,
		Fy:                   r.CameraMatrix.Fy,
		Cx:                   r.CameraMatrix.Cx,
		Cy:                   r.CameraMatrix.Cy,
		DistortionCoeffs:     append([]float64(nil), r.Distortion...),
		HorizontalResolution: r.Resolution.Width,
		VerticalResolution:   r.Resolution.Height,
		ReprojectionError:    r.ReprojectionError,
	}
}

// ResultFromParameters rebuilds a Result from persisted parameters. The model is
// inferred from the vector length; 12 entries are reported as thin prism.
func ResultFromParameters(p params.Parameters) *Result {
	model := ModelStandard
	switch {
	case len(p.DistortionCoeffs) >= 12:
		model = ModelThinPrism
	case len(p.DistortionCoeffs) >= 8:
		model = ModelRational
	}
	return &Result{
		CameraMatrix: projection.CameraMatrix{
			Fx: p.Fx, Fy: p.Fy, Cx: p.Cx, Cy: p.Cy,
		},
		Distortion:        append([]float64(nil), p.DistortionCoeffs...),
		Resolution:        geometry.NewSize(p.HorizontalResolution, p.VerticalResolution),
		ReprojectionError: p.ReprojectionError,
		Model:             model,
	}
}
