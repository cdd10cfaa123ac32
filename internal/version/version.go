// Package version identifies the gateway build.
package version

// Version is overridden at build time with -ldflags "-X clawcredit-gateway/internal/version.Version=...".
var Version = "0.1.0"

// ServiceName is reported by the health endpoint and in the user agent.
const ServiceName = "clawcredit-blockrun-gateway"

// PaymentMode is the payment backend reported by the health endpoint.
const PaymentMode = "clawcredit"

// UserAgent is attached to every outbound request.
func UserAgent() string {
	return ServiceName + "/" + Version
}
