package calib

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"camcal/internal/board"
	"camcal/internal/params"
	"camcal/internal/projection"

	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// State is the lifecycle phase of a Session.
type State string

const (
	StateIdle      State = "Idle"
	StateRunning   State = "Running"
	StateSucceeded State = "Succeeded"
	StateFailed    State = "Failed"
	StateCancelled State = "Cancelled"
)

// OutcomeKind classifies how a run ended.
type OutcomeKind int

const (
	OutcomeSuccess OutcomeKind = iota
	OutcomeFailure
	OutcomeCancelled
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeSuccess:
		return "success"
	case OutcomeFailure:
		return "failure"
	case OutcomeCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Outcome is the single terminal message of a run.
type Outcome struct {
	Kind   OutcomeKind
	Result *Result // set on success
	Err    error   // set on failure and cancellation
}

// EventType identifies session events.
type EventType int

const (
	EventImagesChanged EventType = iota
	EventConfigChanged
	EventRunStarted
	EventRunFinished // data is the Outcome
	EventParametersLoaded
)

// EventListener is called when an event occurs.
type EventListener func(data interface{})

// SessionStatus is a point-in-time summary of a session.
type SessionStatus struct {
	State              State           `json:"state"`
	Images             int             `json:"images"`
	Chessboard         board.Spec      `json:"chessboard"`
	Model              DistortionModel `json:"model"`
	CalibDataAvailable bool            `json:"calib_data_available"`
	ReprojectionError  float64         `json:"reprojection_error"`
	LastError          string          `json:"last_error,omitempty"`
}

// Session owns the calibration inputs, the last valid result and at most one
// active run.
type Session struct {
	mu sync.RWMutex

	engine   *Engine
	registry Registry
	spec     board.Spec
	model    DistortionModel

	result    *Result
	available bool
	state     State
	lastErr   error

	cancel  context.CancelFunc
	channel ProgressChannel

	listeners map[EventType][]EventListener
	log       *logrus.Entry
}

// NewSession creates an idle session with the default chessboard and the
// standard distortion model.
func NewSession(engine *Engine) *Session {
	return &Session{
		engine:    engine,
		spec:      board.DefaultSpec(),
		model:     ModelStandard,
		state:     StateIdle,
		listeners: make(map[EventType][]EventListener),
		log:       logrus.WithField("component", "session"),
	}
}

// On registers an event listener for the specified event type.
func (s *Session) On(event EventType, listener EventListener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners[event] = append(s.listeners[event], listener)
}

func (s *Session) emit(event EventType, data interface{}) {
	s.mu.RLock()
	listeners := s.listeners[event]
	s.mu.RUnlock()

	for _, listener := range listeners {
		listener(data)
	}
}

// mutate runs fn under the write lock unless a run is active.
func (s *Session) mutate(event EventType, fn func() error) error {
	s.mu.Lock()
	if s.state == StateRunning {
		s.mu.Unlock()
		return ErrSessionBusy
	}
	if err := fn(); err != nil {
		s.mu.Unlock()
		return err
	}
	s.mu.Unlock()
	s.emit(event, nil)
	return nil
}

// AddImage registers an image path.
func (s *Session) AddImage(path string) error {
	return s.mutate(EventImagesChanged, func() error {
		s.registry.Add(path)
		return nil
	})
}

// AddImages registers several image paths at once. Either all of them are
// added or, on error, none.
func (s *Session) AddImages(paths []string) error {
	for i, p := range paths {
		if p == "" {
			return &InputError{Field: "images", Reason: fmt.Sprintf("path %d is empty", i)}
		}
	}
	return s.mutate(EventImagesChanged, func() error {
		for _, p := range paths {
			s.registry.Add(p)
		}
		return nil
	})
}

// SetImages replaces the registered images.
func (s *Session) SetImages(paths []string) error {
	return s.mutate(EventImagesChanged, func() error {
		s.registry.Set(paths)
		return nil
	})
}

// RemoveImage deregisters the image at index.
func (s *Session) RemoveImage(index int) error {
	return s.mutate(EventImagesChanged, func() error {
		return s.registry.Remove(index)
	})
}

// ClearImages removes all registered images.
func (s *Session) ClearImages() error {
	return s.mutate(EventImagesChanged, func() error {
		s.registry.Clear()
		return nil
	})
}

// Images returns a snapshot of the registered images and their detection state.
func (s *Session) Images() []Image {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.registry.Snapshot()
}

// Files returns the registered image paths.
func (s *Session) Files() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.registry.Files()
}

// SetSpec replaces the chessboard description used by the next run.
func (s *Session) SetSpec(spec board.Spec) error {
	if err := spec.Validate(); err != nil {
		return &InputError{Field: "chessboard", Reason: err.Error()}
	}
	return s.mutate(EventConfigChanged, func() error {
		s.spec = spec
		return nil
	})
}

// SetModel selects the distortion model used by the next run.
func (s *Session) SetModel(model DistortionModel) error {
	if !model.Valid() {
		return &InputError{Field: "model", Reason: model.String()}
	}
	return s.mutate(EventConfigChanged, func() error {
		s.model = model
		return nil
	})
}

// Spec returns the current chessboard description.
func (s *Session) Spec() board.Spec {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.spec
}

// Model returns the current distortion model.
func (s *Session) Model() DistortionModel {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.model
}

// NumDistortionCoefficients returns the vector length of the current model.
func (s *Session) NumDistortionCoefficients() int {
	n, _ := s.Model().NumCoefficients()
	return n
}

// State returns the session lifecycle phase.
func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// LastError returns the error of the last failed run, if any.
func (s *Session) LastError() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastErr
}

// CalibDataAvailable reports whether a valid result exists, from a run or a load.
func (s *Session) CalibDataAvailable() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.available
}

// Result returns a copy of the current result, or nil.
func (s *Session) Result() *Result {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.available {
		return nil
	}
	return s.result.Clone()
}

// CameraMatrix returns the calibrated intrinsics.
func (s *Session) CameraMatrix() (projection.CameraMatrix, error) {
	r := s.Result()
	if r == nil {
		return projection.CameraMatrix{}, ErrNoResult
	}
	return r.CameraMatrix, nil
}

// Distortion returns the calibrated distortion coefficients.
func (s *Session) Distortion() ([]float64, error) {
	r := s.Result()
	if r == nil {
		return nil, ErrNoResult
	}
	return r.Distortion, nil
}

// ReprojectionError returns the overall reprojection error of the current result.
func (s *Session) ReprojectionError() (float64, error) {
	r := s.Result()
	if r == nil {
		return NotComputed, ErrNoResult
	}
	return r.ReprojectionError, nil
}

// Status returns a summary of the session.
func (s *Session) Status() SessionStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st := SessionStatus{
		State:              s.state,
		Images:             s.registry.Len(),
		Chessboard:         s.spec,
		Model:              s.model,
		CalibDataAvailable: s.available,
		ReprojectionError:  NotComputed,
	}
	if s.available {
		st.ReprojectionError = s.result.ReprojectionError
	}
	if s.lastErr != nil {
		st.LastError = s.lastErr.Error()
	}
	return st
}

// Start launches a run over a snapshot of the current inputs. Input errors are
// returned synchronously. A stop requested on progress before Start is
// discarded. The returned channel delivers exactly one Outcome and is then
// closed.
func (s *Session) Start(ctx context.Context, progress ProgressChannel) (<-chan Outcome, error) {
	if progress == nil {
		progress = NewChannel(0)
	}

	s.mu.Lock()
	if s.state == StateRunning {
		s.mu.Unlock()
		return nil, &ConcurrentRunError{}
	}
	images := s.registry.Snapshot()
	spec, model := s.spec, s.model
	if s.engine == nil {
		s.mu.Unlock()
		return nil, &InputError{Field: "engine", Reason: "session has no calibration engine"}
	}
	if err := s.engine.Validate(images, spec, model); err != nil {
		s.mu.Unlock()
		return nil, err
	}

	if sc, ok := progress.(stopClearer); ok {
		sc.ClearStop()
	}

	runCtx, cancel := context.WithCancel(ctx)
	s.state = StateRunning
	s.cancel = cancel
	s.channel = progress
	s.mu.Unlock()

	s.log.WithField("images", len(images)).Info("calibration run started")
	s.emit(EventRunStarted, nil)

	out := make(chan Outcome, 1)
	go func() {
		defer close(out)
		result, err := s.engine.Calibrate(runCtx, images, spec, model, progress)
		cancel()

		outcome := s.finish(images, result, err)
		s.emit(EventRunFinished, outcome)
		out <- outcome
	}()
	return out, nil
}

func (s *Session) finish(images []Image, result *Result, err error) Outcome {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cancel = nil
	s.channel = nil

	var solveErr *SolveError
	switch {
	case err == nil:
		s.registry.commit(images)
		s.result = result
		s.available = true
		s.state = StateSucceeded
		s.lastErr = nil
		return Outcome{Kind: OutcomeSuccess, Result: result.Clone()}

	case errors.Is(err, ErrCancelled):
		s.state = StateCancelled
		s.lastErr = nil
		s.log.Info("calibration run cancelled")
		return Outcome{Kind: OutcomeCancelled, Err: err}

	case errors.As(err, &solveErr):
		// The detection pass completed, keep its per-image state.
		s.registry.commit(images)
		fallthrough

	default:
		s.state = StateFailed
		s.lastErr = err
		s.log.WithError(err).Error("calibration run failed")
		return Outcome{Kind: OutcomeFailure, Err: err}
	}
}

// Calibrate starts a run and waits for its outcome.
func (s *Session) Calibrate(ctx context.Context, progress ProgressChannel) (*Result, error) {
	out, err := s.Start(ctx, progress)
	if err != nil {
		return nil, err
	}
	outcome := <-out
	return outcome.Result, outcome.Err
}

// Stop requests the active run to stop at its next check point. It is a no-op
// when no run is active.
func (s *Session) Stop() {
	s.mu.RLock()
	cancel, channel := s.cancel, s.channel
	s.mu.RUnlock()

	if channel != nil {
		if sr, ok := channel.(stopRequester); ok {
			sr.RequestStop()
		}
	}
	if cancel != nil {
		cancel()
	}
}

// Save writes the current result to path. The format follows the extension.
func (s *Session) Save(path string) error {
	r := s.Result()
	if r == nil {
		return ErrNoResult
	}
	if err := params.Save(path, r.Parameters()); err != nil {
		return pkgerrors.Wrap(err, "save calibration parameters")
	}
	s.log.WithField("file", path).Info("calibration parameters saved")
	return nil
}

// Load replaces the current result with parameters read from path.
func (s *Session) Load(path string) error {
	p, err := params.Load(path)
	if err != nil {
		return pkgerrors.Wrap(err, "load calibration parameters")
	}

	s.mu.Lock()
	if s.state == StateRunning {
		s.mu.Unlock()
		return ErrSessionBusy
	}
	s.result = ResultFromParameters(p)
	s.available = true
	s.mu.Unlock()

	s.log.WithField("file", path).Info("calibration parameters loaded")
	s.emit(EventParametersLoaded, nil)
	return nil
}
