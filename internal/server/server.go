// Package server exposes a calibration session over HTTP.
package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"camcal/internal/calib"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// RunStatus describes the most recent run started through the server.
type RunStatus struct {
	Progress calib.Progress `json:"progress"`
	Dropped  uint64         `json:"dropped_events"`
	Outcome  string         `json:"outcome,omitempty"`
	Error    string         `json:"error,omitempty"`
}

// Server serves one calibration session.
type Server struct {
	session *calib.Session
	log     *logrus.Entry
	router  *gin.Engine

	mu      sync.RWMutex
	run     RunStatus
	source  string
	channel *calib.Channel
	done    chan struct{}
}

// Result sources reported by GET /status.
const (
	sourceRun  = "run"
	sourceFile = "file"
)

// New creates a server for session.
func New(session *calib.Session, log *logrus.Entry) *Server {
	if log == nil {
		log = logrus.WithField("component", "server")
	}
	s := &Server{
		session: session,
		log:     log,
	}
	s.router = s.setupRoutes()

	session.On(calib.EventRunStarted, s.onRunStarted)
	session.On(calib.EventRunFinished, s.onRunFinished)
	session.On(calib.EventParametersLoaded, s.onParametersLoaded)
	return s
}

func (s *Server) onRunStarted(interface{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.run = RunStatus{}
}

func (s *Server) onRunFinished(data interface{}) {
	outcome, ok := data.(calib.Outcome)
	if !ok {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.run.Outcome = outcome.Kind.String()
	if outcome.Err != nil {
		s.run.Error = outcome.Err.Error()
	}
	if outcome.Kind == calib.OutcomeSuccess {
		s.source = sourceRun
	}
	s.log.WithField("outcome", s.run.Outcome).Info("calibration run finished")
}

func (s *Server) onParametersLoaded(interface{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.source = sourceFile
}

func (s *Server) setupRoutes() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(ginLogger(s.log))

	router.GET("/status", s.getStatus)
	router.GET("/images", s.getImages)
	router.POST("/images", s.addImages)
	router.DELETE("/images", s.clearImages)
	router.DELETE("/images/:index", s.removeImage)
	router.GET("/chessboard", s.getChessboard)
	router.PUT("/chessboard", s.setChessboard)
	router.GET("/model", s.getModel)
	router.PUT("/model", s.setModel)
	router.POST("/calibrate", s.startCalibration)
	router.POST("/stop", s.stopCalibration)
	router.GET("/result", s.getResult)
	router.POST("/parameters/save", s.saveParameters)
	router.POST("/parameters/load", s.loadParameters)
	router.GET("/version", getVersion)

	return router
}

// Handler returns the HTTP handler of the server.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves on addr until ctx is cancelled. An active calibration is stopped
// before returning.
func (s *Server) Run(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		s.log.WithField("addr", ln.Addr().String()).Info("http server listening")
		errc <- srv.Serve(ln)
	}()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	s.log.Info("shutting down http server")
	s.session.Stop()
	s.Wait()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return nil
}

// Wait blocks until the run started by the last POST /calibrate has finished.
func (s *Server) Wait() {
	s.mu.RLock()
	done := s.done
	s.mu.RUnlock()
	if done != nil {
		<-done
	}
}

// track records progress events until the run's outcome arrives. The outcome
// itself is recorded by onRunFinished.
func (s *Server) track(ch *calib.Channel, out <-chan calib.Outcome, done chan struct{}) {
	defer close(done)
	for {
		select {
		case p := <-ch.Events():
			s.setProgress(p)
		case <-out:
			// Events emitted before the outcome may still be queued.
			for drained := false; !drained; {
				select {
				case p := <-ch.Events():
					s.setProgress(p)
				default:
					drained = true
				}
			}
			s.mu.Lock()
			s.run.Dropped = ch.Dropped()
			s.mu.Unlock()
			return
		}
	}
}

func (s *Server) setProgress(p calib.Progress) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.run.Progress = p
}

func (s *Server) resultSource() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.source
}

func (s *Server) runStatus() RunStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st := s.run
	if s.channel != nil && st.Outcome == "" {
		st.Dropped = s.channel.Dropped()
	}
	return st
}
