package httputil

import (
	"net"
	"net/http"
	"strings"
	"time"
)

// NewTimeoutClient returns http.Client with a limit on how long it takes
// to connect and how long the whole request can take
func NewTimeoutClient(connectTimeout time.Duration, requestTimeout time.Duration) *http.Client {
	dialer := &net.Dialer{
		Timeout:   connectTimeout,
		KeepAlive: 30 * time.Second,
	}
	return &http.Client{
		Transport: &http.Transport{
			DialContext:         dialer.DialContext,
			Proxy:               http.ProxyFromEnvironment,
			TLSHandshakeTimeout: connectTimeout,
			IdleConnTimeout:     90 * time.Second,
		},
		Timeout: requestTimeout,
	}
}

func NewDefaultTimeoutClient() *http.Client {
	return NewTimeoutClient(time.Second*30, time.Second*120)
}

func JoinURL(s1, s2 string) string {
	if strings.HasSuffix(s1, "/") {
		if strings.HasPrefix(s2, "/") {
			return s1 + s2[1:]
		}
		return s1 + s2
	}

	if strings.HasPrefix(s2, "/") {
		return s1 + s2
	}
	return s1 + "/" + s2
}

// NormalizeServerURL turns "localhost:8080" into "http://localhost:8080"
// and removes trailing "/"
func NormalizeServerURL(s string) string {
	s = strings.TrimSpace(s)
	if !strings.Contains(s, "://") {
		s = "http://" + s
	}
	return strings.TrimSuffix(s, "/")
}
