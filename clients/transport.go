// Package clients talks to the facilitator over HTTP. It owns the base URL
// and credentials; callers address endpoints by path only.
package clients

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/vitwit/qwery/logger"
	"github.com/vitwit/qwery/types"
	"github.com/vitwit/qwery/utils"
)

// Facilitator endpoints.
const (
	PathCreatePayment = "/payments/create"
	PathSettlePayment = "/payments/settle"
	PathVerifyPayment = "/payments/verify"
	PathHealth        = "/health"
)

// HeaderRequestID correlates a request with facilitator logs.
const HeaderRequestID = "X-Request-ID"

// Request is one facilitator call. Body, when non-nil, is sent as JSON.
type Request struct {
	Method        string
	Path          string
	Body          any
	Authenticated bool
}

// Response is the raw facilitator answer. Non-2xx statuses are returned as
// responses, not errors.
type Response struct {
	StatusCode int
	Body       []byte
	RequestID  string
}

// OK reports a 2xx status.
func (r *Response) OK() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// Transport performs facilitator calls. Implementations must be safe for
// concurrent use.
type Transport interface {
	Do(ctx context.Context, req Request) (*Response, error)
}

// HTTPTransport is the net/http Transport.
type HTTPTransport struct {
	baseURL string
	apiKey  string
	client  *http.Client
	logger  logger.Logger
}

var _ Transport = (*HTTPTransport)(nil)

// NewHTTPTransport creates a transport for baseURL. A nil httpClient gets a
// fresh client with the given timeout; a supplied client is used as is.
func NewHTTPTransport(baseURL, apiKey string, timeout time.Duration, httpClient *http.Client, log logger.Logger) *HTTPTransport {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: timeout}
	}
	return &HTTPTransport{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		client:  httpClient,
		logger:  logger.OrNoop(log),
	}
}

// BaseURL returns the facilitator endpoint without trailing slash.
func (t *HTTPTransport) BaseURL() string {
	return t.baseURL
}

func (t *HTTPTransport) Do(ctx context.Context, req Request) (*Response, error) {
	var body io.Reader
	if req.Body != nil {
		b, err := utils.EncodeRequest(req.Body)
		if err != nil {
			return nil, err
		}
		body = bytes.NewReader(b)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, t.baseURL+req.Path, body)
	if err != nil {
		return nil, types.NewError(types.ErrNetworkError, fmt.Sprintf("cannot build %s %s", req.Method, req.Path), err)
	}

	requestID := uuid.NewString()
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set(HeaderRequestID, requestID)
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	if req.Authenticated && t.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+t.apiKey)
	}

	fields := map[string]any{
		"method":     req.Method,
		"path":       req.Path,
		"request_id": requestID,
	}
	start := time.Now()

	resp, err := t.client.Do(httpReq)
	if err != nil {
		fields["error"] = err
		t.logger.Debug("facilitator request failed", fields)
		return nil, networkError(req, err)
	}
	defer resp.Body.Close()

	// A body that cannot be read still yields a response so the status is
	// reported; the diagnostic is just empty.
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		fields["read_error"] = err
		data = nil
	}

	fields["status"] = resp.StatusCode
	fields["duration"] = time.Since(start).String()
	t.logger.Debug("facilitator response", fields)

	return &Response{
		StatusCode: resp.StatusCode,
		Body:       data,
		RequestID:  requestID,
	}, nil
}

// CloseIdleConnections releases pooled connections.
func (t *HTTPTransport) CloseIdleConnections() {
	t.client.CloseIdleConnections()
}

func networkError(req Request, err error) *types.QweryError {
	qe := types.NewError(types.ErrNetworkError, fmt.Sprintf("%s %s failed", req.Method, req.Path), err)
	qe.Timeout = isTimeout(err)
	return qe
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
