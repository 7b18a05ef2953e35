// Package httpc builds the HTTP clients used for the speech and chat
// APIs. They share one connection pool, so a fallback from ElevenLabs to
// OpenAI reuses warm connections.
package httpc

import (
	"net"
	"net/http"
	"time"
)

// Transport defaults.
const (
	DefaultConnectTimeout  = 10 * time.Second
	DefaultKeepAlive       = 30 * time.Second
	DefaultIdleConnTimeout = 90 * time.Second
)

var shared = &http.Transport{
	Proxy: http.ProxyFromEnvironment,
	DialContext: (&net.Dialer{
		Timeout:   DefaultConnectTimeout,
		KeepAlive: DefaultKeepAlive,
	}).DialContext,
	ForceAttemptHTTP2:     true,
	MaxIdleConns:          32,
	MaxIdleConnsPerHost:   8,
	IdleConnTimeout:       DefaultIdleConnTimeout,
	TLSHandshakeTimeout:   10 * time.Second,
	ExpectContinueTimeout: time.Second,
}

// NewClient returns a client bounded by timeout. Zero leaves requests
// bounded only by their context.
func NewClient(timeout time.Duration) *http.Client {
	return &http.Client{Timeout: timeout, Transport: shared}
}

// Streaming returns a client for long-lived bodies such as chunked audio.
func Streaming() *http.Client {
	return NewClient(0)
}
