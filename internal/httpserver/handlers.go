package httpserver

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tinytelemetry/adpulse/internal/adops"
	"github.com/tinytelemetry/adpulse/internal/model"
)

func (s *Server) handleCreatives(c *gin.Context) {
	n, ok := s.count(c, model.DefaultCreativesCount)
	if !ok {
		return
	}
	data := s.data.Creatives(n)
	c.JSON(http.StatusOK, model.CreativesResponse{
		Success: true,
		Data:    data,
		Meta:    model.Meta{Total: len(data), Timestamp: now()},
	})
}

func (s *Server) handleTelemetry(c *gin.Context) {
	n, ok := s.count(c, model.DefaultTelemetryCount)
	if !ok {
		return
	}
	data := s.data.Telemetry(n)
	c.JSON(http.StatusOK, model.TelemetryResponse{
		Success: true,
		Data:    data,
		Meta: model.Meta{
			Total:     len(data),
			Timestamp: now(),
			Summary:   adops.TelemetrySummary(data),
		},
	})
}

func (s *Server) handleGeos(c *gin.Context) {
	data := s.data.GeoStats()
	c.JSON(http.StatusOK, model.GeosResponse{
		Success: true,
		Data:    data,
		Meta: model.Meta{
			Total:     len(data),
			Timestamp: now(),
			Totals:    adops.GeoTotalsOf(data),
		},
	})
}

func (s *Server) handlePacing(c *gin.Context) {
	n, ok := s.count(c, model.DefaultPacingCount)
	if !ok {
		return
	}
	data := s.data.Pacing(n)
	c.JSON(http.StatusOK, model.PacingResponse{
		Success: true,
		Data:    data,
		Meta: model.Meta{
			Total:     len(data),
			Timestamp: now(),
			Summary:   adops.PacingSummary(data),
		},
	})
}

// count reads the count query parameter. On a bad value it writes a 400
// envelope and reports false.
func (s *Server) count(c *gin.Context, def int) (int, bool) {
	n, err := parseCount(c.Query("count"), def, s.opts.MaxCount)
	if err != nil {
		c.JSON(http.StatusBadRequest, model.Envelope[any]{
			Success: false,
			Meta:    model.Meta{Timestamp: now()},
			Error:   err.Error(),
		})
		return 0, false
	}
	return n, true
}

func parseCount(raw string, def, limit int) (int, error) {
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("count must be an integer, got %q", raw)
	}
	if n < 0 {
		return 0, fmt.Errorf("count must not be negative, got %d", n)
	}
	if limit > 0 && n > limit {
		n = limit
	}
	return n, nil
}

func now() time.Time {
	return time.Now().UTC()
}
