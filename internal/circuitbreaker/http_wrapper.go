package circuitbreaker

import (
	"net/http"
	"time"

	"go.uber.org/zap"
)

// HTTPWrapper wraps an http.Client with a circuit breaker. Transport errors
// and 5xx responses count as breaker failures; 4xx responses do not.
type HTTPWrapper struct {
	client *http.Client
	cb     *CircuitBreaker
}

// NewHTTPWrapper creates a breaker-guarded HTTP client.
func NewHTTPWrapper(client *http.Client, name string, config Config, logger *zap.Logger) *HTTPWrapper {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &HTTPWrapper{
		client: client,
		cb:     New(name, config, logger),
	}
}

// Do executes the request through the breaker. A 5xx response trips failure
// accounting but is still returned to the caller for status handling.
func (hw *HTTPWrapper) Do(req *http.Request) (*http.Response, error) {
	var resp *http.Response
	err := hw.cb.Execute(req.Context(), func() error {
		var doErr error
		resp, doErr = hw.client.Do(req)
		if doErr != nil {
			return doErr
		}
		if resp.StatusCode >= 500 {
			return &httpStatusError{code: resp.StatusCode}
		}
		return nil
	})

	if _, ok := err.(*httpStatusError); ok {
		return resp, nil
	}
	return resp, err
}

// State exposes the breaker state for health reporting.
func (hw *HTTPWrapper) State() State {
	return hw.cb.State()
}

type httpStatusError struct{ code int }

func (e *httpStatusError) Error() string { return http.StatusText(e.code) }
