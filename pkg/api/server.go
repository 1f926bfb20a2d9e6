package api

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/itohio/energymon/pkg/acquire"
	"github.com/itohio/energymon/pkg/analysis"
	"github.com/itohio/energymon/pkg/calib"
	"github.com/itohio/energymon/pkg/metrics"
	"github.com/itohio/energymon/pkg/sample"
)

// Acquirer is the part of the acquisition controller exposed over HTTP.
type Acquirer interface {
	Start() error
	Stop() error
	CalibrateZero(n int) (int, error)
	CalibrateScale(measuredA, sensorMA float64)
	Calibration() calib.State
	State() acquire.State
	Summarize() (analysis.Summary, bool)
	SamplesSince(n int) []sample.Sample
	Subscribe(bufSize int) (<-chan sample.Sample, func())
	LogPath() string
}

var _ Acquirer = (*acquire.Controller)(nil)

const shutdownTimeout = 5 * time.Second

// Server serves the control and streaming routes.
type Server struct {
	ctl    Acquirer
	router *gin.Engine
}

// New builds the router for ctl.
func New(ctl Acquirer) *Server {
	s := &Server{ctl: ctl}
	s.router = s.setupRoutes()
	return s
}

// Handler returns the router.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) setupRoutes() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(ginLogger(logrus.StandardLogger()))

	router.POST("/start", s.start)
	router.POST("/stop", s.stop)
	router.POST("/calibrate/zero", s.calibrateZero)
	router.PUT("/calibrate/scale", s.calibrateScale)
	router.GET("/calibration", s.getCalibration)
	router.GET("/status", s.getStatus)
	router.GET("/summary", s.getSummary)
	router.GET("/samples", s.getSamples)
	router.GET("/stream", s.stream)
	router.GET("/metrics", gin.WrapH(metrics.Handler()))

	return router
}

// ListenAndServe serves on addr until ctx is done, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, l)
}

// Serve serves on l until ctx is done.
func (s *Server) Serve(ctx context.Context, l net.Listener) error {
	srv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		logrus.Infof("http server listening on %s", l.Addr().String())
		errc <- srv.Serve(l)
	}()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	logrus.Info("shutting down http server")
	sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil {
		return err
	}
	<-errc
	return nil
}
