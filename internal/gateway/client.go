package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/MikeMC777/ordenes-checkout/internal/config"
	"github.com/MikeMC777/ordenes-checkout/internal/logging"
	"github.com/MikeMC777/ordenes-checkout/internal/metrics"
)

const (
	DefaultTimeout  = 20 * time.Second
	maxResponseSize = 1 << 20
)

// Deps are the collaborators shared by all gateway clients.
type Deps struct {
	HTTP    *http.Client
	Log     *zap.Logger
	Metrics *metrics.Metrics
	Timeout time.Duration
	Debug   bool
}

func (d Deps) httpClient() *http.Client {
	if d.HTTP != nil {
		return d.HTTP
	}
	timeout := d.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &http.Client{Timeout: timeout}
}

// client is the JSON-over-HTTP transport with bearer auth shared by the
// providers.
type client struct {
	name    string
	cfg     config.Gateway
	baseURL string
	http    *http.Client
	log     *zap.Logger
	metrics *metrics.Metrics
	debug   bool
	// errorText extracts the provider's message from an error body.
	errorText func(body []byte) string
}

func newClient(name string, cfg config.Gateway, defaultURL string, d Deps) client {
	base := cfg.BaseURL()
	if base == "" {
		base = defaultURL
	}
	log := d.Log
	if log == nil {
		log = zap.NewNop()
	}
	return client{
		name:      name,
		cfg:       cfg,
		baseURL:   strings.TrimRight(base, "/"),
		http:      d.httpClient(),
		log:       log,
		metrics:   d.Metrics,
		debug:     d.Debug,
		errorText: genericErrorText,
	}
}

// call describes one request. Label is the low-cardinality endpoint name used
// in logs, spans and metrics.
type call struct {
	method string
	path   string
	label  string
	body   any
}

// do sends c and decodes a 2xx response body into out when out is non-nil.
// The raw body is returned for persistence.
func (cl *client) do(ctx context.Context, c call, out any) (json.RawMessage, error) {
	ctx, span := otel.Tracer("checkout.gateway").Start(ctx, cl.name+" "+c.label)
	defer span.End()
	span.SetAttributes(
		attribute.String("gateway.name", cl.name),
		attribute.String("gateway.endpoint", c.label),
	)

	log := logging.FromContext(ctx, cl.log).With(zap.String("gateway", cl.name), zap.String("endpoint", c.label))
	start := time.Now()
	raw, status, err := cl.roundTrip(ctx, c)
	if err == nil && status >= http.StatusBadRequest {
		err = &Error{Gateway: cl.name, Endpoint: c.label, Status: status, Message: cl.errorText(raw)}
	}
	if err == nil && out != nil && len(raw) > 0 {
		if uerr := json.Unmarshal(raw, out); uerr != nil {
			err = &Error{Gateway: cl.name, Endpoint: c.label, Status: status, Message: "malformed response", Err: uerr}
		}
	}

	outcome := "success"
	if err != nil {
		outcome = "error"
		var gerr *Error
		if errors.As(err, &gerr) && gerr.Timeout() {
			outcome = "timeout"
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		log.Error("gateway request failed",
			zap.Int("status", status),
			zap.Any("request", c.body),
			zap.ByteString("response", raw),
			zap.Error(err),
		)
	} else if cl.debug {
		log.Debug("gateway request",
			zap.Int("status", status),
			zap.Any("request", c.body),
			zap.ByteString("response", raw),
		)
	}
	span.SetAttributes(attribute.Int("http.status_code", status))
	cl.metrics.GatewayRequest(cl.name, c.label, outcome, time.Since(start))
	return raw, err
}

func (cl *client) roundTrip(ctx context.Context, c call) ([]byte, int, error) {
	var body io.Reader
	if c.body != nil {
		b, err := json.Marshal(c.body)
		if err != nil {
			return nil, 0, fmt.Errorf("%s %s: encode request: %w", cl.name, c.label, err)
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, c.method, cl.baseURL+"/"+strings.TrimLeft(c.path, "/"), body)
	if err != nil {
		return nil, 0, &Error{Gateway: cl.name, Endpoint: c.label, Message: "invalid request", Err: err}
	}
	req.Header.Set("Authorization", "Bearer "+cl.cfg.APIKey())
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	res, err := cl.http.Do(req)
	if err != nil {
		gerr := &Error{Gateway: cl.name, Endpoint: c.label, Message: "request failed", Err: err}
		if isTimeout(err) {
			gerr.Message = "request timed out"
			gerr.timeout = true
		}
		return nil, 0, gerr
	}
	defer res.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(res.Body, maxResponseSize))
	if err != nil {
		return nil, res.StatusCode, &Error{Gateway: cl.name, Endpoint: c.label, Status: res.StatusCode, Message: "read response", Err: err}
	}
	return raw, res.StatusCode, nil
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var nerr net.Error
	return errors.As(err, &nerr) && nerr.Timeout()
}

// genericErrorText understands the {"message"}, {"error"} and
// {"errors":[{"message"|"error_code"}]} error bodies.
func genericErrorText(body []byte) string {
	var e struct {
		Message string          `json:"message"`
		Error   json.RawMessage `json:"error"`
		Errors  []struct {
			Message   string `json:"message"`
			ErrorCode string `json:"error_code"`
		} `json:"errors"`
	}
	if err := json.Unmarshal(body, &e); err != nil {
		return unknownError
	}
	if e.Message != "" {
		return e.Message
	}
	var s string
	if len(e.Error) > 0 && json.Unmarshal(e.Error, &s) == nil && s != "" {
		return s
	}
	var parts []string
	for _, x := range e.Errors {
		switch {
		case x.Message != "":
			parts = append(parts, x.Message)
		case x.ErrorCode != "":
			parts = append(parts, x.ErrorCode)
		}
	}
	if len(parts) > 0 {
		return strings.Join(parts, ", ")
	}
	return unknownError
}
