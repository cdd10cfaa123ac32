package server

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"clawcredit-gateway/internal/metrics"
)

// writeStream re-emits a complete chat completion as server-sent events.
// Once headers are out, write failures can only be logged.
func (s *Server) writeStream(c echo.Context, body []byte) error {
	res := c.Response()
	header := res.Header()
	header.Set("Content-Type", "text/event-stream")
	header.Set("Cache-Control", "no-cache")
	header.Set("Connection", "keep-alive")
	res.WriteHeader(http.StatusOK)

	degraded, err := s.emulator.Write(res, res.Flush, body)
	mode := "normal"
	if degraded {
		mode = "degraded"
		s.log.Debugw("stream emulation degraded to raw frames", "bytes", len(body))
	}
	metrics.StreamEmulations.WithLabelValues(mode).Inc()

	if err != nil {
		s.log.Warnw("failed to write SSE frames", "error", err)
	}
	return nil
}
