package server

import (
	"context"
	"errors"
	"io/fs"
	"net/http"
	"strconv"

	"camcal/internal/board"
	"camcal/internal/calib"
	"camcal/internal/params"
	"camcal/internal/version"

	"github.com/gin-gonic/gin"
	pkgerrors "github.com/pkg/errors"
)

type statusResponse struct {
	calib.SessionStatus
	ResultSource string    `json:"result_source,omitempty"`
	Run          RunStatus `json:"run"`
}

type imagesRequest struct {
	Path  string   `json:"path"`
	Paths []string `json:"paths"`
}

type chessboardRequest struct {
	Preset       string        `json:"preset"`
	Rows         *int          `json:"rows"`
	Cols         *int          `json:"cols"`
	SquareWidth  *float64      `json:"square_width"`
	RefineWindow *board.Window `json:"refine_window"`
}

type pathRequest struct {
	Path string `json:"path" binding:"required"`
}

type resultResponse struct {
	*calib.Result
	Parameters params.Parameters `json:"parameters"`
}

// abort writes err as a JSON message and records it on the context.
func abort(c *gin.Context, code int, err error) {
	c.IndentedJSON(code, gin.H{"error": err.Error()})
	_ = c.Error(err)
	c.Abort()
}

// errorStatus maps session errors to HTTP status codes.
func errorStatus(err error) int {
	var (
		inputErr    *calib.InputError
		concurrent  *calib.ConcurrentRunError
		unsupported *params.UnsupportedFormatError
		parseErr    *params.ParseError
	)
	switch {
	case errors.Is(err, calib.ErrSessionBusy), errors.As(err, &concurrent):
		return http.StatusConflict
	case errors.Is(err, calib.ErrNoResult), errors.Is(err, fs.ErrNotExist):
		return http.StatusNotFound
	case errors.As(err, &inputErr), errors.As(err, &unsupported), errors.As(err, &parseErr):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) getStatus(c *gin.Context) {
	c.IndentedJSON(http.StatusOK, statusResponse{
		SessionStatus: s.session.Status(),
		ResultSource:  s.resultSource(),
		Run:           s.runStatus(),
	})
}

func (s *Server) getImages(c *gin.Context) {
	c.IndentedJSON(http.StatusOK, s.session.Images())
}

func (s *Server) addImages(c *gin.Context) {
	var req imagesRequest
	if err := c.BindJSON(&req); err != nil {
		return
	}
	paths := req.Paths
	if req.Path != "" {
		paths = append([]string{req.Path}, paths...)
	}
	if len(paths) == 0 {
		abort(c, http.StatusBadRequest, pkgerrors.New("no image path given"))
		return
	}
	if err := s.session.AddImages(paths); err != nil {
		abort(c, errorStatus(err), err)
		return
	}
	s.log.WithField("count", len(paths)).Info("images added")
	c.IndentedJSON(http.StatusCreated, s.session.Files())
}

func (s *Server) clearImages(c *gin.Context) {
	if err := s.session.ClearImages(); err != nil {
		abort(c, errorStatus(err), err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) removeImage(c *gin.Context) {
	index, err := strconv.Atoi(c.Param("index"))
	if err != nil {
		abort(c, http.StatusBadRequest, pkgerrors.Errorf("invalid image index %q", c.Param("index")))
		return
	}
	if err := s.session.RemoveImage(index); err != nil {
		code := errorStatus(err)
		if code == http.StatusInternalServerError {
			code = http.StatusNotFound
		}
		abort(c, code, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) getChessboard(c *gin.Context) {
	c.IndentedJSON(http.StatusOK, s.session.Spec())
}

func (s *Server) setChessboard(c *gin.Context) {
	var req chessboardRequest
	if err := c.BindJSON(&req); err != nil {
		return
	}

	spec := s.session.Spec()
	if req.Preset != "" {
		preset, ok := board.GetSpec(req.Preset)
		if !ok {
			abort(c, http.StatusBadRequest, pkgerrors.Errorf("unknown chessboard preset %q", req.Preset))
			return
		}
		spec = preset
	}
	if req.Rows != nil {
		spec = spec.WithCorners(*req.Rows, spec.Corners.Cols)
	}
	if req.Cols != nil {
		spec = spec.WithCorners(spec.Corners.Rows, *req.Cols)
	}
	if req.SquareWidth != nil {
		spec = spec.WithSquareWidth(*req.SquareWidth)
	}
	if req.RefineWindow != nil {
		spec = spec.WithRefineWindow(req.RefineWindow.Width, req.RefineWindow.Height)
	}

	if err := s.session.SetSpec(spec); err != nil {
		abort(c, errorStatus(err), err)
		return
	}
	c.IndentedJSON(http.StatusOK, spec)
}

func (s *Server) getModel(c *gin.Context) {
	c.IndentedJSON(http.StatusOK, s.session.Model())
}

func (s *Server) setModel(c *gin.Context) {
	var model calib.DistortionModel
	if err := c.BindJSON(&model); err != nil {
		return
	}
	if err := s.session.SetModel(model); err != nil {
		abort(c, errorStatus(err), err)
		return
	}
	c.IndentedJSON(http.StatusOK, model)
}

func (s *Server) startCalibration(c *gin.Context) {
	ch := calib.NewChannel(0)
	out, err := s.session.Start(context.Background(), ch)
	if err != nil {
		abort(c, errorStatus(err), err)
		return
	}

	done := make(chan struct{})
	s.mu.Lock()
	s.channel = ch
	s.done = done
	s.mu.Unlock()

	go s.track(ch, out, done)

	c.IndentedJSON(http.StatusAccepted, gin.H{"state": calib.StateRunning, "images": len(s.session.Files())})
}

func (s *Server) stopCalibration(c *gin.Context) {
	s.session.Stop()
	c.IndentedJSON(http.StatusOK, gin.H{"state": s.session.State()})
}

func (s *Server) getResult(c *gin.Context) {
	result := s.session.Result()
	if result == nil {
		abort(c, http.StatusNotFound, calib.ErrNoResult)
		return
	}
	c.IndentedJSON(http.StatusOK, resultResponse{Result: result, Parameters: result.Parameters()})
}

func (s *Server) saveParameters(c *gin.Context) {
	var req pathRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abort(c, http.StatusBadRequest, err)
		return
	}
	if err := s.session.Save(req.Path); err != nil {
		abort(c, errorStatus(err), err)
		return
	}
	c.IndentedJSON(http.StatusOK, gin.H{"path": req.Path})
}

func (s *Server) loadParameters(c *gin.Context) {
	var req pathRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abort(c, http.StatusBadRequest, err)
		return
	}
	if err := s.session.Load(req.Path); err != nil {
		abort(c, errorStatus(err), err)
		return
	}
	c.IndentedJSON(http.StatusOK, s.session.Result().Parameters())
}

func getVersion(c *gin.Context) {
	c.IndentedJSON(http.StatusOK, version.Get())
}
