package client

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/rs/xid"
	"pkt.systems/pslog"

	"github.com/dougn/testtrackpro/api"
	"github.com/dougn/testtrackpro/soap"
	"github.com/dougn/testtrackpro/wsdl"
)

// DefaultCloseTimeout bounds the implicit logoff performed by Close.
const DefaultCloseTimeout = 10 * time.Second

// Transport performs one RPC given an operation name and positional
// arguments. Implementations return *api.Fault for service-level
// rejections; any other error is treated as a connection failure.
type Transport interface {
	Call(ctx context.Context, op string, args []any) (any, error)
}

// Schema supplies the type and operation knowledge the client needs:
// existence checks for dispatch, descriptors for encoding, and the
// entity factory.
type Schema interface {
	ResolveType(name string) (api.TypeDescriptor, bool)
	HasOperation(name string) bool
	Create(name string) (any, error)
}

// Credentials are the cached logon credentials: database (project)
// name, username, and password.
type Credentials struct {
	Database string
	Username string
	Password string
}

// Options configures a Client.
type Options struct {
	// Logger receives client events. Defaults to a noop logger.
	Logger pslog.Base
	// Credentials pre-populates the cached logon credentials. Connect
	// performs an implicit DatabaseLogon when all three are set.
	Credentials Credentials
	// Cookie clones an existing session token from another client.
	// When set, Connect skips the implicit logon.
	Cookie any
	// HTTPClient overrides the HTTP client Connect uses for the WSDL
	// fetch and the SOAP transport.
	HTTPClient *http.Client
	// CloseTimeout bounds the implicit logoff performed by Close.
	CloseTimeout time.Duration
}

// Option mutates Options.
type Option func(*Options)

// WithLogger routes client events to the supplied logger. Passing nil
// falls back to pslog.NoopLogger().
func WithLogger(logger pslog.Base) Option {
	return func(o *Options) {
		if logger == nil {
			logger = pslog.NoopLogger()
		}
		o.Logger = logger
	}
}

// WithCredentials caches logon credentials on the client.
func WithCredentials(database, username, password string) Option {
	return func(o *Options) {
		o.Credentials = Credentials{Database: database, Username: username, Password: password}
	}
}

// WithCookie adopts a session token from another client session.
func WithCookie(cookie any) Option {
	return func(o *Options) {
		o.Cookie = cookie
	}
}

// WithHTTPClient sets the HTTP client used by Connect.
func WithHTTPClient(hc *http.Client) Option {
	return func(o *Options) {
		o.HTTPClient = hc
	}
}

// WithCloseTimeout overrides the deadline for the logoff issued by Close.
func WithCloseTimeout(d time.Duration) Option {
	return func(o *Options) {
		if d > 0 {
			o.CloseTimeout = d
		}
	}
}

// Client is an outbound session-holding client for the TestTrack SOAP
// service. It owns the session cookie, injects it into every call, and
// dispatches operations by naming convention.
//
// One Client holds one logical session. The caller is responsible for
// serializing calls on a single Client; the session cookie is not
// guarded against concurrent mutation. Edit sessions are independent of
// each other and may be held concurrently.
type Client struct {
	transport Transport
	schema    Schema
	logger    pslog.Base
	clientID  string

	closeTimeout time.Duration

	creds  Credentials
	cookie any

	mu       sync.Mutex
	ops      map[string]*operation
	sessions map[*api.Entity]*EditSession
}

// New wires a Client to an existing transport and schema. Most callers
// want Connect instead.
func New(transport Transport, schema Schema, opts ...Option) (*Client, error) {
	if transport == nil || schema == nil {
		return nil, errors.New("testtrackpro: transport and schema are required")
	}
	var options Options
	for _, opt := range opts {
		opt(&options)
	}
	logger := options.Logger
	if logger == nil {
		logger = pslog.NoopLogger()
	}
	closeTimeout := options.CloseTimeout
	if closeTimeout <= 0 {
		closeTimeout = DefaultCloseTimeout
	}
	c := &Client{
		transport:    transport,
		schema:       schema,
		logger:       logger,
		clientID:     xid.New().String(),
		closeTimeout: closeTimeout,
		creds:        options.Credentials,
		cookie:       options.Cookie,
		ops:          make(map[string]*operation),
		sessions:     make(map[*api.Entity]*EditSession),
	}
	c.logDebug("client.new", "client_id", c.clientID)
	return c, nil
}

// Connect loads the service description from rawURL (a base site URL,
// CGI URL, or WSDL URL), builds a SOAP transport against the declared
// endpoint, and returns a ready Client. When credentials were supplied
// and no cookie was adopted, it performs an implicit DatabaseLogon.
func Connect(ctx context.Context, rawURL string, opts ...Option) (*Client, error) {
	var options Options
	for _, opt := range opts {
		opt(&options)
	}
	logger := options.Logger
	if logger == nil {
		logger = pslog.NoopLogger()
	}
	var wsdlOpts []wsdl.Option
	if options.HTTPClient != nil {
		wsdlOpts = append(wsdlOpts, wsdl.WithHTTPClient(options.HTTPClient))
	}
	schema, err := wsdl.Load(ctx, rawURL, wsdlOpts...)
	if err != nil {
		logger.Error("client.connect.wsdl_error", "url", rawURL, "error", err)
		return nil, &ConnectionError{Op: "loadSchema", Err: err}
	}
	endpoint := schema.Endpoint()
	if endpoint == "" {
		docURL, urlErr := wsdl.NormalizeURL(rawURL)
		if urlErr != nil {
			return nil, &ConnectionError{Op: "loadSchema", Err: urlErr}
		}
		endpoint = wsdl.EndpointFromDocumentURL(docURL)
	}
	soapOpts := []soap.Option{soap.WithLogger(logger)}
	if options.HTTPClient != nil {
		soapOpts = append(soapOpts, soap.WithHTTPClient(options.HTTPClient))
	}
	transport := soap.New(endpoint, schema, soapOpts...)
	c, err := New(transport, schema, opts...)
	if err != nil {
		return nil, err
	}
	c.logInfo("client.connect", "endpoint", endpoint)
	creds := c.creds
	if c.cookie == nil && creds.Database != "" && creds.Username != "" && creds.Password != "" {
		if err := c.DatabaseLogon(ctx, creds.Database, creds.Username, creds.Password); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// Cookie returns the current session token, nil when no session is held.
func (c *Client) Cookie() any {
	return c.cookie
}

// Credentials returns the cached logon credentials.
func (c *Client) Credentials() Credentials {
	return c.creds
}

// Create builds an empty value of the named schema type: an *api.Entity
// for complex types, an *api.Array for array types.
func (c *Client) Create(typeName string) (any, error) {
	return c.schema.Create(typeName)
}

// createEntity builds the DENIED placeholder for a table's entity type.
func (c *Client) createEntity(typeName string) (*api.Entity, error) {
	v, err := c.schema.Create(typeName)
	if err != nil {
		return nil, err
	}
	e, ok := v.(*api.Entity)
	if !ok {
		return nil, &api.TypeResolutionError{TypeName: typeName}
	}
	return e, nil
}

// call performs one cookie-injected RPC. The session token is always
// prepended, even when no session is held: the server rejects the call,
// the client does not pre-validate. Service faults pass through
// unchanged; everything else is wrapped as a ConnectionError.
func (c *Client) call(ctx context.Context, op string, args ...any) (any, error) {
	if CorrelationIDFromContext(ctx) == "" {
		ctx = WithCorrelationID(ctx, GenerateCorrelationID())
	}
	c.logTraceCtx(ctx, "client.call.start", "op", op)
	all := make([]any, 0, len(args)+1)
	all = append(all, c.cookie)
	all = append(all, args...)
	result, err := c.transport.Call(ctx, op, all)
	if err != nil {
		var fault *api.Fault
		if errors.As(err, &fault) {
			c.logDebugCtx(ctx, "client.call.fault", "op", op, "code", fault.Code, "reason", fault.Message)
			return nil, err
		}
		c.logWarnCtx(ctx, "client.call.transport_error", "op", op, "error", err)
		return nil, &ConnectionError{Op: op, Err: err}
	}
	c.logTraceCtx(ctx, "client.call.success", "op", op)
	return result, nil
}

// rawCall performs one RPC without cookie injection; logon-family
// operations authenticate with explicit credentials instead.
func (c *Client) rawCall(ctx context.Context, op string, args ...any) (any, error) {
	if CorrelationIDFromContext(ctx) == "" {
		ctx = WithCorrelationID(ctx, GenerateCorrelationID())
	}
	result, err := c.transport.Call(ctx, op, args)
	if err != nil {
		var fault *api.Fault
		if errors.As(err, &fault) {
			return nil, err
		}
		return nil, &ConnectionError{Op: op, Err: err}
	}
	return result, nil
}

func (c *Client) registerSession(s *EditSession) {
	c.mu.Lock()
	c.sessions[s.entity] = s
	c.mu.Unlock()
}

func (c *Client) unregisterSession(s *EditSession) {
	c.mu.Lock()
	delete(c.sessions, s.entity)
	c.mu.Unlock()
}

// sessionFor returns the edit session owning an entity, nil when the
// entity was not produced by an edit call on this client.
func (c *Client) sessionFor(e *api.Entity) *EditSession {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessions[e]
}

func (c *Client) enrichKeyvals(ctx context.Context, keyvals []any) []any {
	if ctx == nil {
		return keyvals
	}
	cid := CorrelationIDFromContext(ctx)
	if cid == "" {
		return keyvals
	}
	enriched := append([]any(nil), keyvals...)
	return append(enriched, "cid", cid)
}

func (c *Client) logTraceCtx(ctx context.Context, msg string, keyvals ...any) {
	c.logger.Trace(msg, c.enrichKeyvals(ctx, keyvals)...)
}

func (c *Client) logDebugCtx(ctx context.Context, msg string, keyvals ...any) {
	c.logger.Debug(msg, c.enrichKeyvals(ctx, keyvals)...)
}

func (c *Client) logInfoCtx(ctx context.Context, msg string, keyvals ...any) {
	c.logger.Info(msg, c.enrichKeyvals(ctx, keyvals)...)
}

func (c *Client) logWarnCtx(ctx context.Context, msg string, keyvals ...any) {
	c.logger.Warn(msg, c.enrichKeyvals(ctx, keyvals)...)
}

func (c *Client) logErrorCtx(ctx context.Context, msg string, keyvals ...any) {
	c.logger.Error(msg, c.enrichKeyvals(ctx, keyvals)...)
}

func (c *Client) logDebug(msg string, keyvals ...any) {
	c.logDebugCtx(context.Background(), msg, keyvals...)
}

func (c *Client) logInfo(msg string, keyvals ...any) {
	c.logInfoCtx(context.Background(), msg, keyvals...)
}
