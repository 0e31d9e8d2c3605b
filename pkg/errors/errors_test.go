package errors

import (
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGatewayError_Error(t *testing.T) {
	cause := errors.New("dial tcp: connection refused")
	err := NewUnavailable("vector store unreachable", cause)
	assert.Contains(t, err.Error(), "unavailable")
	assert.Contains(t, err.Error(), "vector store unreachable")
	assert.Contains(t, err.Error(), "connection refused")

	bare := NewBadRequest("unknown mode")
	assert.Equal(t, "[bad_request] unknown mode", bare.Error())
}

func TestGatewayError_Unwrap(t *testing.T) {
	cause := errors.New("boom")
	err := NewInternal("pipeline panic recovered", cause)
	assert.True(t, errors.Is(err, cause))
}

func TestGatewayError_HTTPStatusCode(t *testing.T) {
	tests := []struct {
		name string
		err  *GatewayError
		want int
	}{
		{"bad request", NewBadRequest("msg"), http.StatusBadRequest},
		{"timeout", NewTimeout("msg", nil), http.StatusGatewayTimeout},
		{"unavailable", NewUnavailable("msg", nil), http.StatusServiceUnavailable},
		{"internal", NewInternal("msg", nil), http.StatusInternalServerError},
		{"rate limited", NewRateLimited("msg", 1000, nil), http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.err.HTTPStatusCode())
		})
	}
}

func TestFromHTTPStatus(t *testing.T) {
	tests := []struct {
		name       string
		statusCode int
		wantCode   Code
	}{
		{"429 maps to unavailable, rate limited", http.StatusTooManyRequests, CodeUnavailable},
		{"408 maps to timeout", http.StatusRequestTimeout, CodeTimeout},
		{"504 maps to timeout", http.StatusGatewayTimeout, CodeTimeout},
		{"400 maps to bad request", http.StatusBadRequest, CodeBadRequest},
		{"404 maps to bad request", http.StatusNotFound, CodeBadRequest},
		{"500 maps to unavailable", http.StatusInternalServerError, CodeUnavailable},
		{"503 maps to unavailable", http.StatusServiceUnavailable, CodeUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FromHTTPStatus(tt.statusCode, "msg", nil)
			assert.Equal(t, tt.wantCode, got.Code)
		})
	}

	assert.True(t, IsRateLimited(FromHTTPStatus(http.StatusTooManyRequests, "msg", nil)))
	assert.False(t, IsRateLimited(FromHTTPStatus(http.StatusServiceUnavailable, "msg", nil)))
}

func TestCountsAgainstBreaker(t *testing.T) {
	assert.False(t, CountsAgainstBreaker(NewBadRequest("bad input")))
	assert.True(t, CountsAgainstBreaker(NewUnavailable("down", nil)))
	assert.True(t, CountsAgainstBreaker(NewTimeout("slow", nil)))
	assert.True(t, CountsAgainstBreaker(NewInternal("bug", nil)))
	assert.True(t, CountsAgainstBreaker(errors.New("not a gateway error")))
}
