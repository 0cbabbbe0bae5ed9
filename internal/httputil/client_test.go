package httputil

import (
	"net/http"
	"testing"
	"time"
)

func TestNewClient(t *testing.T) {
	tests := []struct {
		in, want time.Duration
	}{
		{0, DefaultTimeout},
		{-time.Second, DefaultTimeout},
		{5 * time.Second, 5 * time.Second},
	}
	for _, tt := range tests {
		c := NewClient(tt.in)
		if c.Timeout != tt.want {
			t.Errorf("NewClient(%v).Timeout = %v, want %v", tt.in, c.Timeout, tt.want)
		}
		if c.Transport == http.DefaultTransport {
			t.Error("client should not share the default transport")
		}
	}
}
