package server

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"clawcredit-gateway/internal/capture"
	"clawcredit-gateway/internal/forwarder"
	"clawcredit-gateway/internal/pricing"
	"clawcredit-gateway/internal/translator"
	"clawcredit-gateway/internal/version"
)

type healthResponse struct {
	Status      string `json:"status"`
	Service     string `json:"service"`
	PaymentMode string `json:"payment_mode"`
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, healthResponse{
		Status:      "ok",
		Service:     version.ServiceName,
		PaymentMode: version.PaymentMode,
	})
}

func (s *Server) handleChatCompletions(c echo.Context) error {
	ctx := c.Request().Context()
	started := time.Now()
	requestID := s.newRequestID()

	body, err := readBody(c)
	if err != nil {
		s.captureError(c, requestID, err)
		return err
	}

	normalized := translator.Normalize(body)
	estimated := pricing.Estimate(s.cfg.Payment.DefaultAmountUSD, normalized.MaxTokens)
	header := c.Request().Header

	s.capture.Write(ctx, capture.Record{
		Kind:            capture.KindRequest,
		RequestID:       requestID,
		At:              started,
		Source:          &capture.Source{UserAgent: headerValue(header, "User-Agent"), XOpenClawSession: headerValue(header, "X-Openclaw-Session-Id")},
		Method:          http.MethodPost,
		Target:          s.forwarder.Target(),
		EstimatedMicros: strconv.FormatInt(estimated, 10),
		Headers:         forwarder.OutboundHeaders(header),
		Body:            capture.Body(normalized.Body),
	})

	resp, err := s.forwarder.Forward(ctx, forwarder.Request{
		Body:            normalized.Body,
		Header:          header,
		EstimatedMicros: estimated,
	})
	if err != nil {
		s.captureError(c, requestID, err)
		return err
	}

	duration := time.Since(started).Milliseconds()
	s.capture.Write(ctx, capture.Record{
		Kind:       capture.KindResponse,
		RequestID:  requestID,
		DurationMs: &duration,
		Status:     resp.StatusCode,
		Headers:    capture.Headers(resp.Header),
		Body:       capture.Body(resp.Body),
	})

	if normalized.Stream && resp.OK() {
		return s.writeStream(c, resp.Body)
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = echo.MIMEApplicationJSON
	}
	return c.Blob(resp.StatusCode, contentType, resp.Body)
}

func (s *Server) captureError(c echo.Context, requestID string, err error) {
	s.capture.Write(c.Request().Context(), capture.Record{
		Kind:      capture.KindError,
		RequestID: requestID,
		At:        time.Now(),
		Message:   err.Error(),
	})
}

func readBody(c echo.Context) ([]byte, error) {
	req := c.Request()
	defer req.Body.Close()

	body, err := io.ReadAll(http.MaxBytesReader(c.Response(), req.Body, maxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, requestError{
				Status:  http.StatusRequestEntityTooLarge,
				Message: fmt.Sprintf("request body exceeds %d bytes", tooLarge.Limit),
			}
		}
		return nil, fmt.Errorf("read request body: %w", err)
	}
	return body, nil
}

func headerValue(h http.Header, key string) *string {
	v := h.Get(key)
	if v == "" {
		return nil
	}
	return &v
}
