package calib

import (
	"fmt"
	"strings"

	pkgerrors "github.com/pkg/errors"
)

// DistortionModel selects the lens distortion polynomial fitted by the solver.
type DistortionModel int

const (
	ModelStandard          DistortionModel = iota // k1 k2 p1 p2 k3
	ModelRational                                 // + k4 k5 k6
	ModelThinPrism                                // + s1 s2 s3 s4
	ModelRationalThinPrism                        // rational and thin prism terms
)

// OpenCV calibrateCamera flag bits.
const (
	FlagRationalModel  = 0x04000
	FlagThinPrismModel = 0x08000
)

var modelNames = map[DistortionModel]string{
	ModelStandard:          "standard",
	ModelRational:          "rational",
	ModelThinPrism:         "thin-prism",
	ModelRationalThinPrism: "rational-thin-prism",
}

func (m DistortionModel) String() string {
	if name, ok := modelNames[m]; ok {
		return name
	}
	return fmt.Sprintf("unknown(%d)", int(m))
}

// Valid reports whether m is one of the known models.
func (m DistortionModel) Valid() bool {
	_, ok := modelNames[m]
	return ok
}

// Flags returns the solver flag bits for the model.
func (m DistortionModel) Flags() (int, error) {
	switch m {
	case ModelStandard:
		return 0, nil
	case ModelRational:
		return FlagRationalModel, nil
	case ModelThinPrism:
		return FlagThinPrismModel, nil
	case ModelRationalThinPrism:
		return FlagRationalModel | FlagThinPrismModel, nil
	default:
		return 0, pkgerrors.Errorf("unknown distortion model %d", int(m))
	}
}

// NumCoefficients returns the length of the distortion vector for the model.
func (m DistortionModel) NumCoefficients() (int, error) {
	switch m {
	case ModelStandard:
		return 5, nil
	case ModelRational:
		return 8, nil
	case ModelThinPrism, ModelRationalThinPrism:
		return 12, nil
	default:
		return 0, pkgerrors.Errorf("unknown distortion model %d", int(m))
	}
}

// ParseDistortionModel parses a model name as produced by String.
func ParseDistortionModel(s string) (DistortionModel, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	name = strings.ReplaceAll(name, "_", "-")
	for m, n := range modelNames {
		if n == name {
			return m, nil
		}
	}
	return 0, pkgerrors.Errorf("unknown distortion model %q (want standard, rational, thin-prism or rational-thin-prism)", s)
}

// MarshalText implements encoding.TextMarshaler.
func (m DistortionModel) MarshalText() ([]byte, error) {
	if !m.Valid() {
		return nil, pkgerrors.Errorf("unknown distortion model %d", int(m))
	}
	return []byte(m.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (m *DistortionModel) UnmarshalText(text []byte) error {
	parsed, err := ParseDistortionModel(string(text))
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}
