package payment

import (
	"net/http"
	"regexp"
	"strconv"
	"strings"
)

const (
	paymentRequired  = "payment required"
	prequalification = "prequalification_pending"
	unauthorized     = "unauthorized"
)

var (
	apiErrorPattern = regexp.MustCompile(`(?i)api error:\s*(\d{3})\s*-`)
	embeddedPattern = regexp.MustCompile(`\b([1-5]\d{2})\s+-\s`)
)

// InferStatus maps a payment failure to the HTTP status returned to the
// client. The authority only reports failures as text, so the status is
// sniffed from the message: an embedded "<code> -" wins, then well-known
// phrases, then 502.
func InferStatus(err error) int {
	if err == nil {
		return http.StatusOK
	}
	return StatusFromMessage(err.Error())
}

// StatusFromMessage applies the InferStatus rules to a raw message.
func StatusFromMessage(msg string) int {
	for _, pattern := range []*regexp.Regexp{apiErrorPattern, embeddedPattern} {
		if match := pattern.FindStringSubmatch(msg); match != nil {
			if code, err := strconv.Atoi(match[1]); err == nil && code >= 100 && code <= 599 {
				return code
			}
		}
	}

	lower := strings.ToLower(msg)
	switch {
	case strings.Contains(lower, paymentRequired):
		return http.StatusPaymentRequired
	case strings.Contains(lower, prequalification):
		return http.StatusForbidden
	case strings.Contains(lower, unauthorized):
		return http.StatusUnauthorized
	default:
		return http.StatusBadGateway
	}
}
