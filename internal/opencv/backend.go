package opencv

import (
	"camcal/internal/calib"
	imgdec "camcal/internal/image"
	"camcal/internal/projection"

	"github.com/sirupsen/logrus"
)

// NewEngine wires the OpenCV collaborators, the file decoder and the pure Go
// projector into a calibration engine.
func NewEngine(log *logrus.Entry) *calib.Engine {
	if log == nil {
		log = logrus.WithField("component", "calibration")
	}
	return &calib.Engine{
		Decoder:   imgdec.NewDecoder(),
		Detector:  NewDetector(),
		Refiner:   NewRefiner(),
		Solver:    NewSolver(),
		Projector: projection.Projector{},
		Log:       log,
	}
}

// NewSession creates a calibration session backed by OpenCV.
func NewSession(log *logrus.Entry) *calib.Session {
	return calib.NewSession(NewEngine(log))
}
