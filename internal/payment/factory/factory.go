// Package factory builds the configured payment authority.
package factory

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"go.uber.org/zap"

	"clawcredit-gateway/internal/config"
	"clawcredit-gateway/internal/payment"
	"clawcredit-gateway/internal/payment/clawcredit"
)

const (
	defaultDialTimeout     = 10 * time.Second
	defaultKeepAlive       = 30 * time.Second
	defaultIdleConnTimeout = 90 * time.Second
)

// New constructs the claw.credit authority from configuration. A zero
// payment timeout leaves the client unbounded, since settling includes the
// full upstream inference.
func New(cfg config.Config, log *zap.SugaredLogger) (payment.Authority, error) {
	if log == nil {
		return nil, errors.New("logger must not be nil")
	}

	client, err := clawcredit.New(clawcredit.Options{
		BaseURL:  cfg.Payment.BaseURL,
		APIToken: cfg.Payment.APIToken,
		Agent:    cfg.Payment.Agent,
		AgentID:  cfg.Payment.AgentID,
	}, newHTTPClient(cfg.Payment.Timeout), log.Named("clawcredit"))
	if err != nil {
		return nil, fmt.Errorf("initialise claw.credit client: %w", err)
	}
	return client, nil
}

func newHTTPClient(timeout time.Duration) *http.Client {
	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           (&net.Dialer{Timeout: defaultDialTimeout, KeepAlive: defaultKeepAlive}).DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          50,
		IdleConnTimeout:       defaultIdleConnTimeout,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}

	return &http.Client{
		Timeout:   timeout,
		Transport: transport,
	}
}
