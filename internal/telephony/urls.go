package telephony

import (
	"fmt"
	"net/http"
	"strings"
)

// Webhook paths served by the HTTP layer.
const (
	PathVoice         = "/twilio/voice"
	PathGather        = "/twilio/gather"
	PathGatherTimeout = "/twilio/gather-timeout"
	PathStatus        = "/twilio/status"
)

// URLBuilder builds public absolute URLs for webhooks.
type URLBuilder struct {
	// BaseURL, when set, wins over anything derived from a request.
	BaseURL string
}

// Absolute resolves path against BaseURL, then X-Forwarded-* headers, then the request Host.
func (b URLBuilder) Absolute(r *http.Request, path string) string {
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	base := strings.TrimRight(b.BaseURL, "/")
	if base == "" && r != nil {
		proto := r.Header.Get("X-Forwarded-Proto")
		host := r.Header.Get("X-Forwarded-Host")
		if proto != "" && host != "" {
			base = fmt.Sprintf("%s://%s", proto, host)
		}
	}
	if base == "" && r != nil {
		host := r.Host
		proto := "https"
		if strings.HasPrefix(host, "localhost:") || strings.HasPrefix(host, "127.0.0.1:") {
			proto = "http"
		}
		base = fmt.Sprintf("%s://%s", proto, host)
	}
	return base + path
}

// Webhooks returns the answer and status callback URLs for a placed call.
func (b URLBuilder) Webhooks() (answer, status string, err error) {
	if strings.TrimSpace(b.BaseURL) == "" {
		return "", "", fmt.Errorf("public base url is not configured")
	}
	return b.Absolute(nil, PathVoice), b.Absolute(nil, PathStatus), nil
}
