package client

import (
	"context"
	"errors"

	"github.com/dougn/testtrackpro/api"
)

// Session-manager surface: logon produces the session cookie, logoff
// invalidates it, and every dispatched call carries it implicitly (see
// Client.call). The logon family authenticates with explicit
// credentials and never injects a cookie.

// GetProjectList returns the projects the user can access. Credentials
// fall back to the cached ones when empty. The call neither consumes
// nor alters the session cookie.
func (c *Client) GetProjectList(ctx context.Context, username, password string) (*api.Array, error) {
	if username == "" {
		username = c.creds.Username
	}
	if password == "" {
		password = c.creds.Password
	}
	if username == "" || password == "" {
		return nil, &LogonError{Op: "getProjectList", Err: errors.New("username and password are required")}
	}
	result, err := c.rawCall(ctx, "getProjectList", username, password)
	if err != nil {
		return nil, logonFailure("getProjectList", err)
	}
	list, _ := result.(*api.Array)
	return list, nil
}

// ProjectLogon authenticates against the project described by a
// CProject entity and stores the new session cookie, implicitly logging
// off an existing session first. Supplied credentials update the cached
// ones; empty values fall back to the cache.
func (c *Client) ProjectLogon(ctx context.Context, project *api.Entity, username, password string) error {
	if c.cookie != nil {
		if err := c.Logoff(ctx, false); err != nil {
			return err
		}
	}
	if project == nil {
		return &LogonError{Op: "ProjectLogon", Err: errors.New("a project entity is required")}
	}
	if db, ok := project.Get("database").(*api.Entity); ok {
		if name := db.GetString("name"); name != "" {
			c.creds.Database = name
		}
	}
	if username != "" {
		c.creds.Username = username
	}
	if password != "" {
		c.creds.Password = password
	}
	if c.creds.Database == "" || c.creds.Username == "" || c.creds.Password == "" {
		return &LogonError{Op: "ProjectLogon", Err: errors.New("project database name, username, and password are required")}
	}
	cookie, err := c.rawCall(ctx, "ProjectLogon", project, c.creds.Username, c.creds.Password)
	if err != nil {
		c.logErrorCtx(ctx, "client.logon.error", "op", "ProjectLogon", "database", c.creds.Database, "error", err)
		return logonFailure("ProjectLogon", err)
	}
	c.cookie = cookie
	c.logInfoCtx(ctx, "client.logon.success", "op", "ProjectLogon", "database", c.creds.Database, "client_id", c.clientID)
	return nil
}

// DatabaseLogon authenticates with a database name and stores the new
// session cookie, implicitly logging off an existing session first.
// The service has deprecated this call in favor of ProjectLogon; it is
// kept for older servers.
func (c *Client) DatabaseLogon(ctx context.Context, database, username, password string) error {
	if c.cookie != nil {
		if err := c.Logoff(ctx, false); err != nil {
			return err
		}
	}
	if database != "" {
		c.creds.Database = database
	}
	if username != "" {
		c.creds.Username = username
	}
	if password != "" {
		c.creds.Password = password
	}
	if c.creds.Database == "" || c.creds.Username == "" || c.creds.Password == "" {
		return &LogonError{Op: "DatabaseLogon", Err: errors.New("database name, username, and password are required")}
	}
	cookie, err := c.rawCall(ctx, "DatabaseLogon", c.creds.Database, c.creds.Username, c.creds.Password)
	if err != nil {
		c.logErrorCtx(ctx, "client.logon.error", "op", "DatabaseLogon", "database", c.creds.Database, "error", err)
		return logonFailure("DatabaseLogon", err)
	}
	c.cookie = cookie
	c.logInfoCtx(ctx, "client.logon.success", "op", "DatabaseLogon", "database", c.creds.Database, "client_id", c.clientID)
	return nil
}

// Logoff invalidates the session. It is a no-op when no cookie is held,
// and the cookie is cleared regardless of outcome. The service's
// "Session Dropped." rejection is always treated as success. Other
// failures are a LogonError unless tolerateErrors is set, in which case
// they are only logged.
func (c *Client) Logoff(ctx context.Context, tolerateErrors bool) error {
	if c.cookie == nil {
		return nil
	}
	cookie := c.cookie
	c.cookie = nil
	_, err := c.transport.Call(ctx, "DatabaseLogoff", []any{cookie})
	if err == nil {
		c.logInfoCtx(ctx, "client.logoff.success", "client_id", c.clientID)
		return nil
	}
	if api.Reason(err) == api.SessionDroppedMessage {
		c.logDebugCtx(ctx, "client.logoff.session_dropped", "client_id", c.clientID)
		return nil
	}
	if tolerateErrors {
		c.logWarnCtx(ctx, "client.logoff.tolerated", "client_id", c.clientID, "error", err)
		return nil
	}
	c.logErrorCtx(ctx, "client.logoff.error", "client_id", c.clientID, "error", err)
	return &LogonError{Op: "DatabaseLogoff", Err: err}
}

// Close logs the session off, tolerating logoff errors so an earlier
// substantive error is never masked by the implicit logoff. A Client is
// a scoped resource: defer Close after construction.
func (c *Client) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), c.closeTimeout)
	defer cancel()
	return c.Logoff(ctx, true)
}

// logonFailure maps errors from logon-family calls: service faults
// become LogonError, transport failures stay ConnectionError.
func logonFailure(op string, err error) error {
	var fault *api.Fault
	if errors.As(err, &fault) {
		return &LogonError{Op: op, Err: err}
	}
	var conn *ConnectionError
	if errors.As(err, &conn) {
		return err
	}
	return &ConnectionError{Op: op, Err: err}
}
