package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"clawcredit-gateway/internal/capture"
	"clawcredit-gateway/internal/config"
	"clawcredit-gateway/internal/forwarder"
	"clawcredit-gateway/internal/metrics"
	"clawcredit-gateway/internal/models"
	"clawcredit-gateway/internal/translator"
	"clawcredit-gateway/internal/version"
)

const (
	maxBodyBytes        = 32 << 20 // 32 MiB
	shutdownGracePeriod = 10 * time.Second
	readTimeout         = 30 * time.Second
	idleTimeout         = 120 * time.Second
)

// Forwarder pays for a chat completion and returns the merchant response.
type Forwarder interface {
	Target() string
	Forward(ctx context.Context, req forwarder.Request) (*models.UpstreamResponse, error)
}

type Server struct {
	cfg          config.Config
	forwarder    Forwarder
	capture      capture.Sink
	emulator     *translator.StreamEmulator
	app          *echo.Echo
	address      string
	log          *zap.SugaredLogger
	newRequestID func() string
}

// New constructs an HTTP server wired with routing and middleware.
func New(cfg config.Config, fw Forwarder, sink capture.Sink, log *zap.SugaredLogger) (*Server, error) {
	if fw == nil {
		return nil, errors.New("forwarder must not be nil")
	}
	if log == nil {
		return nil, errors.New("logger must not be nil")
	}
	if sink == nil {
		sink = capture.Nop{}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = gatewayErrorHandler(log)

	e.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{
		StackSize: 1 << 10, // 1 KB
		LogErrorFunc: func(c echo.Context, err error, stack []byte) error {
			log.Errorw("handler panic", "error", err.Error(), "stack", string(stack))
			return requestError{Status: http.StatusBadGateway, Message: err.Error()}
		},
	}))
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogLatency:   true,
		LogMethod:    true,
		LogURI:       true,
		LogRoutePath: true,
		LogStatus:    true,
		HandleError:  true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			route := v.RoutePath
			if route == "" {
				route = "unmatched"
			}
			metrics.RequestCount.WithLabelValues(route, strconv.Itoa(v.Status)).Inc()
			metrics.RequestDuration.WithLabelValues(route).Observe(v.Latency.Seconds())

			fields := []any{
				"method", v.Method,
				"uri", v.URI,
				"status", v.Status,
				"latency_ms", v.Latency.Milliseconds(),
			}
			if v.Error != nil {
				fields = append(fields, "error", v.Error.Error())
			}
			log.Infow("request", fields...)
			return nil
		},
	}))

	srv := &Server{
		cfg:          cfg,
		forwarder:    fw,
		capture:      sink,
		emulator:     translator.NewStreamEmulator(),
		app:          e,
		address:      net.JoinHostPort(cfg.Server.Host, strconv.Itoa(cfg.Server.Port)),
		log:          log,
		newRequestID: uuid.NewString,
	}

	srv.registerRoutes()

	return srv, nil
}

// Run starts the HTTP server, and the metrics listener when configured, and
// blocks until the context is cancelled.
func (s *Server) Run(ctx context.Context) error {
	printStartupBanner(s.address, s.forwarder.Target())
	s.log.Infow("starting server", "addr", s.address, "upstream", s.forwarder.Target(), "chain", s.cfg.Payment.Chain, "asset", s.cfg.Payment.Asset)

	httpServer := &http.Server{
		Addr:        s.address,
		Handler:     s.app,
		ReadTimeout: readTimeout,
		IdleTimeout: idleTimeout,
	}

	errCh := make(chan error, 2)
	go func() {
		if err := s.app.StartServer(httpServer); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	var metricsServer *http.Server
	if addr := s.cfg.Server.MetricsAddress; addr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler())
		metricsServer = &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: readTimeout,
		}
		s.log.Infow("starting metrics listener", "addr", addr)
		go func() {
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- fmt.Errorf("metrics listener: %w", err)
			}
		}()
	}

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGracePeriod)
		defer cancel()
		if metricsServer != nil {
			_ = metricsServer.Shutdown(shutdownCtx)
		}
		if err := s.app.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		s.log.Info("server shutdown complete")
		return nil
	case err := <-errCh:
		return err
	}
}

func (s *Server) registerRoutes() {
	s.app.GET("/health", s.handleHealth)
	s.app.POST("/v1/chat/completions", s.handleChatCompletions)

	// echo answers OPTIONS on known paths with 204 unless a route claims it.
	s.app.OPTIONS("/health", handleNotFound)
	s.app.OPTIONS("/v1/chat/completions", handleNotFound)
}

func printStartupBanner(address, upstream string) {
	fmt.Println()
	fmt.Printf("%s %s ready\n", version.ServiceName, version.Version)
	fmt.Printf("Listening on http://%s\n", address)
	fmt.Printf("Paying %s through claw.credit\n", upstream)
	fmt.Println("Endpoints:")
	fmt.Println("  GET  /health")
	fmt.Println("  POST /v1/chat/completions")
	fmt.Printf("Example:\n  curl http://%s/v1/chat/completions -H 'Content-Type: application/json' -d '{\"model\":\"openai/gpt-4o\",\"messages\":[{\"role\":\"user\",\"content\":\"hello\"}]}'\n\n", address)
}
