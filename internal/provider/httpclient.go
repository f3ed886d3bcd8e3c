package provider

import (
	"net/http"
	"time"
)

const defaultRequestTimeout = 120 * time.Second

// newHTTPClient builds the client used for decision API calls. All requests
// go to one host, so idle connections stay warm between steps.
func newHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.MaxIdleConnsPerHost = 8
	transport.IdleConnTimeout = 2 * time.Minute
	transport.ResponseHeaderTimeout = timeout
	return &http.Client{
		Timeout:   timeout,
		Transport: transport,
	}
}
