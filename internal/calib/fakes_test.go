package calib

import (
	"fmt"
	"image"
	"sync"
	"sync/atomic"

	"camcal/internal/board"
	"camcal/internal/projection"
	"camcal/pkg/geometry"

	"github.com/golang/geo/r3"
	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
)

var (
	testCamera = projection.CameraMatrix{Fx: 500, Fy: 500, Cx: 320, Cy: 240}
	testSize   = geometry.NewSize(640, 480)
	testSpec   = board.OpenCV9x6Spec()
)

// testPose returns a distinct, slightly rotated board pose for view i.
func testPose(i int) projection.Pose {
	a := 0.05 * float64(i%5-2)
	return projection.Pose{
		Rotation:    r3.Vector{X: a, Y: -a / 2, Z: 0.02 * float64(i%3)},
		Translation: r3.Vector{X: -0.1 + 0.005*float64(i), Y: -0.06, Z: 0.5 + 0.01*float64(i)},
	}
}

// fakeView describes what the fake backend reports for one image path.
type fakeView struct {
	size      geometry.Size
	corners   []geometry.Point2D
	found     bool
	decodeErr error
	detectErr error
	refineErr error
}

// fakeBackend implements Decoder, Detector, Refiner and Solver.
type fakeBackend struct {
	mu      sync.Mutex
	views   map[string]*fakeView
	byImage map[*image.Gray]string

	// beforeDecode runs before every decode, outside the lock.
	beforeDecode func(path string)

	solution   *Solution
	solveErr   error
	solveCalls atomic.Int32
	lastModel  DistortionModel
	lastViews  int
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		views:   make(map[string]*fakeView),
		byImage: make(map[*image.Gray]string),
	}
}

// addSynthetic registers a view whose corners are the exact projection of the
// test chessboard at testPose(i).
func (b *fakeBackend) addSynthetic(path string, i int) {
	corners := projection.Project(testSpec.PatternPoints(), testPose(i), testCamera, nil)
	b.views[path] = &fakeView{size: testSize, corners: corners, found: true}
}

// solveWith makes the solver return the true camera with the given view poses.
func (b *fakeBackend) solveWith(views ...int) {
	poses := make([]projection.Pose, len(views))
	for i, v := range views {
		poses[i] = testPose(v)
	}
	b.solution = &Solution{
		CameraMatrix: testCamera,
		Distortion:   make([]float64, 5),
		Poses:        poses,
		RMS:          0,
	}
}

func (b *fakeBackend) Decode(path string) (*image.Gray, error) {
	if b.beforeDecode != nil {
		b.beforeDecode(path)
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	v, ok := b.views[path]
	if !ok {
		return nil, pkgerrors.New("no such file")
	}
	if v.decodeErr != nil {
		return nil, v.decodeErr
	}
	img := image.NewGray(image.Rect(0, 0, v.size.Width, v.size.Height))
	b.byImage[img] = path
	return img, nil
}

func (b *fakeBackend) view(img *image.Gray) *fakeView {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.views[b.byImage[img]]
}

func (b *fakeBackend) FindCorners(img *image.Gray, size board.Size) ([]geometry.Point2D, bool, error) {
	v := b.view(img)
	if v.detectErr != nil {
		return nil, false, v.detectErr
	}
	if !v.found {
		return nil, false, nil
	}
	return append([]geometry.Point2D(nil), v.corners...), true, nil
}

func (b *fakeBackend) Refine(img *image.Gray, corners []geometry.Point2D, window board.Window) ([]geometry.Point2D, error) {
	v := b.view(img)
	if v.refineErr != nil {
		return nil, v.refineErr
	}
	return corners, nil
}

func (b *fakeBackend) Solve(objectPoints [][]r3.Vector, imagePoints [][]geometry.Point2D, imageSize geometry.Size, model DistortionModel) (*Solution, error) {
	b.solveCalls.Add(1)
	b.mu.Lock()
	b.lastModel = model
	b.lastViews = len(imagePoints)
	b.mu.Unlock()

	if b.solveErr != nil {
		return nil, b.solveErr
	}
	if b.solution == nil {
		return nil, pkgerrors.New("no solution configured")
	}
	sol := *b.solution
	sol.Distortion = append([]float64(nil), b.solution.Distortion...)
	return &sol, nil
}

func (b *fakeBackend) engine() *Engine {
	logger, _ := test.NewNullLogger()
	return &Engine{
		Decoder:   b,
		Detector:  b,
		Refiner:   b,
		Solver:    b,
		Projector: projection.Projector{},
		Log:       logrus.NewEntry(logger),
	}
}

// recorder is a synchronous ProgressChannel that can request a stop after a
// given number of events.
type recorder struct {
	mu        sync.Mutex
	events    []Progress
	stopAfter int
	stop      atomic.Bool
}

func (r *recorder) Emit(step, total int, label string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, Progress{Step: step, Total: total, Label: label})
	if r.stopAfter > 0 && len(r.events) == r.stopAfter {
		r.stop.Store(true)
	}
}

func (r *recorder) IsStopRequested() bool {
	return r.stop.Load()
}

func (r *recorder) RequestStop() {
	r.stop.Store(true)
}

func (r *recorder) Events() []Progress {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Progress(nil), r.events...)
}

func imageNames(n int) []string {
	names := make([]string, n)
	for i := range names {
		names[i] = fmt.Sprintf("view%02d.png", i)
	}
	return names
}

func imagesFor(paths []string) []Image {
	images := make([]Image, len(paths))
	for i, p := range paths {
		images[i] = NewImage(p)
	}
	return images
}
