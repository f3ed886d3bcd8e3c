package provider

import (
	"testing"
	"time"
)

func TestNewHTTPClientTimeout(t *testing.T) {
	c := newHTTPClient(0)
	if c.Timeout != defaultRequestTimeout {
		t.Errorf("default timeout = %v, want %v", c.Timeout, defaultRequestTimeout)
	}

	c = newHTTPClient(5 * time.Second)
	if c.Timeout != 5*time.Second {
		t.Errorf("timeout = %v, want 5s", c.Timeout)
	}
}
