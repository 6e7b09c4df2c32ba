// Package soap implements the outbound SOAP 1.1 RPC/encoded transport
// for the TestTrack SDK CGI endpoint. It owns the wire codec, including
// the pre-encoding correction stage for polymorphic arrays, and decodes
// service faults into api.Fault values.
package soap

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"pkt.systems/pslog"

	"github.com/dougn/testtrackpro/api"
)

// Resolver supplies the schema knowledge the codec needs: type
// descriptors for re-tagging and operation descriptors for parameter
// names.
type Resolver interface {
	ResolveType(name string) (api.TypeDescriptor, bool)
	Operation(name string) (api.Operation, bool)
}

// TransportError is a network-level failure: the call never produced a
// service-level response.
type TransportError struct {
	// Op is the operation that was being attempted.
	Op string
	// Err is the underlying cause.
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("soap: %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// Options configures a Transport.
type Options struct {
	// HTTPClient overrides the default HTTP client.
	HTTPClient *http.Client
	// Logger receives transport-level events. Defaults to a noop logger.
	Logger pslog.Base
}

// Option mutates Options.
type Option func(*Options)

// WithHTTPClient sets the HTTP client used for SOAP posts.
func WithHTTPClient(hc *http.Client) Option {
	return func(o *Options) {
		o.HTTPClient = hc
	}
}

// WithLogger routes transport events to the supplied logger.
func WithLogger(logger pslog.Base) Option {
	return func(o *Options) {
		o.Logger = logger
	}
}

// Transport performs one SOAP RPC per Call against a fixed endpoint.
type Transport struct {
	endpoint string
	hc       *http.Client
	resolver Resolver
	logger   pslog.Base
}

// New builds a Transport for the given SOAP endpoint address.
func New(endpoint string, resolver Resolver, opts ...Option) *Transport {
	var options Options
	for _, opt := range opts {
		opt(&options)
	}
	hc := options.HTTPClient
	if hc == nil {
		hc = http.DefaultClient
	}
	logger := options.Logger
	if logger == nil {
		logger = pslog.NoopLogger()
	}
	return &Transport{endpoint: endpoint, hc: hc, resolver: resolver, logger: logger}
}

// Call performs one RPC. It returns the decoded result value, an
// *api.Fault when the service rejected the call, or a *TransportError
// when the call never reached a service-level response.
func (t *Transport) Call(ctx context.Context, op string, args []any) (any, error) {
	t.logger.Trace("soap.call.start", "op", op, "endpoint", t.endpoint, "args", len(args))
	envelope, err := t.encodeRequest(op, args)
	if err != nil {
		t.logger.Error("soap.call.encode_error", "op", op, "error", err)
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.endpoint, bytes.NewReader(envelope))
	if err != nil {
		return nil, &TransportError{Op: op, Err: err}
	}
	req.Header.Set("Content-Type", `text/xml; charset="utf-8"`)
	req.Header.Set("SOAPAction", `"`+op+`"`)
	resp, err := t.hc.Do(req)
	if err != nil {
		t.logger.Warn("soap.call.transport_error", "op", op, "endpoint", t.endpoint, "error", err)
		return nil, &TransportError{Op: op, Err: err}
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &TransportError{Op: op, Err: err}
	}
	result, err := t.decodeResponse(op, body)
	if err != nil {
		var fault *api.Fault
		if errors.As(err, &fault) {
			t.logger.Debug("soap.call.fault", "op", op, "code", fault.Code, "reason", fault.Message)
			return nil, err
		}
		if resp.StatusCode != http.StatusOK {
			// No parseable fault in a non-200 response: network-level.
			err = &TransportError{Op: op, Err: fmt.Errorf("status %d: %w", resp.StatusCode, err)}
		}
		t.logger.Warn("soap.call.decode_error", "op", op, "status", resp.StatusCode, "error", err)
		return nil, err
	}
	t.logger.Trace("soap.call.success", "op", op, "endpoint", t.endpoint)
	return result, nil
}
