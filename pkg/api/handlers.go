package api

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/itohio/energymon/pkg/acquire"
	"github.com/itohio/energymon/pkg/link"
)

// Status is the body of GET /status.
type Status struct {
	State   string `json:"state"`
	LogPath string `json:"log_path,omitempty"`
}

type zeroRequest struct {
	Samples int `json:"samples"`
}

type zeroResponse struct {
	Collected int     `json:"collected"`
	OffsetMA  float64 `json:"offset_ma"`
}

type scaleRequest struct {
	MeasuredA float64 `json:"measured_a"`
	SensorMA  float64 `json:"sensor_ma"`
}

// errorStatus maps controller errors to HTTP codes.
func errorStatus(err error) int {
	switch {
	case errors.Is(err, acquire.ErrRunning):
		return http.StatusConflict
	case errors.Is(err, link.ErrConnection):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func abort(c *gin.Context, code int, err error) {
	_ = c.Error(err)
	c.AbortWithStatusJSON(code, gin.H{"error": err.Error()})
}

func (s *Server) start(c *gin.Context) {
	if err := s.ctl.Start(); err != nil {
		abort(c, errorStatus(err), err)
		return
	}
	c.IndentedJSON(http.StatusOK, s.status())
}

func (s *Server) stop(c *gin.Context) {
	if err := s.ctl.Stop(); err != nil {
		abort(c, errorStatus(err), err)
		return
	}
	c.IndentedJSON(http.StatusOK, s.status())
}

func (s *Server) calibrateZero(c *gin.Context) {
	var req zeroRequest
	// An empty body uses the configured sample count.
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		abort(c, http.StatusBadRequest, err)
		return
	}
	if req.Samples < 0 {
		abort(c, http.StatusBadRequest, fmt.Errorf("samples must not be negative, got %d", req.Samples))
		return
	}

	n, err := s.ctl.CalibrateZero(req.Samples)
	if err != nil {
		abort(c, errorStatus(err), err)
		return
	}
	c.IndentedJSON(http.StatusOK, zeroResponse{
		Collected: n,
		OffsetMA:  s.ctl.Calibration().OffsetMA,
	})
}

func (s *Server) calibrateScale(c *gin.Context) {
	var req scaleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abort(c, http.StatusBadRequest, err)
		return
	}
	if req.SensorMA == 0 {
		abort(c, http.StatusBadRequest, errors.New("sensor_ma must not be zero"))
		return
	}

	s.ctl.CalibrateScale(req.MeasuredA, req.SensorMA)
	cal := s.ctl.Calibration()
	logrus.Infof("scale calibrated to %.4f", cal.Scale)
	c.IndentedJSON(http.StatusOK, cal)
}

func (s *Server) getCalibration(c *gin.Context) {
	c.IndentedJSON(http.StatusOK, s.ctl.Calibration())
}

func (s *Server) getStatus(c *gin.Context) {
	c.IndentedJSON(http.StatusOK, s.status())
}

func (s *Server) getSummary(c *gin.Context) {
	summary, ok := s.ctl.Summarize()
	if !ok {
		c.Status(http.StatusNoContent)
		return
	}
	c.IndentedJSON(http.StatusOK, summary)
}

func (s *Server) getSamples(c *gin.Context) {
	since := 0
	if v := c.Query("since"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			abort(c, http.StatusBadRequest, fmt.Errorf("invalid since %q", v))
			return
		}
		since = n
	}
	c.JSON(http.StatusOK, s.ctl.SamplesSince(since))
}

func (s *Server) status() Status {
	return Status{
		State:   s.ctl.State().String(),
		LogPath: s.ctl.LogPath(),
	}
}
