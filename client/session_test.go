package client

import (
	"context"
	"errors"
	"testing"

	"github.com/dougn/testtrackpro/api"
)

func TestDatabaseLogonStoresCookie(t *testing.T) {
	ft := &fakeTransport{respond: func(op string, _ []any) (any, error) {
		if op == "DatabaseLogon" {
			return int64(31337), nil
		}
		return nil, nil
	}}
	c := newTestClient(t, ft)
	if err := c.DatabaseLogon(context.Background(), "Sample", "alice", "secret"); err != nil {
		t.Fatalf("DatabaseLogon: %v", err)
	}
	if c.Cookie() != int64(31337) {
		t.Fatalf("cookie = %v, want the logon result", c.Cookie())
	}
	args := ft.calls[0].args
	// Logon authenticates with credentials; no cookie slot.
	if len(args) != 3 || args[0] != "Sample" || args[1] != "alice" || args[2] != "secret" {
		t.Fatalf("logon args = %v", args)
	}
	if got := c.Credentials(); got.Database != "Sample" || got.Username != "alice" {
		t.Fatalf("credentials not cached: %+v", got)
	}
}

func TestLogonImplicitlyLogsOffExistingSession(t *testing.T) {
	ft := &fakeTransport{respond: func(op string, _ []any) (any, error) {
		if op == "DatabaseLogon" {
			return int64(2), nil
		}
		return nil, nil
	}}
	c := newTestClient(t, ft, WithCookie(int64(1)))
	if err := c.DatabaseLogon(context.Background(), "Sample", "alice", "secret"); err != nil {
		t.Fatalf("DatabaseLogon: %v", err)
	}
	ops := ft.ops()
	if len(ops) != 2 || ops[0] != "DatabaseLogoff" || ops[1] != "DatabaseLogon" {
		t.Fatalf("ops = %v, want logoff then logon", ops)
	}
	if c.Cookie() != int64(2) {
		t.Fatalf("cookie = %v, want the new session", c.Cookie())
	}
}

func TestDatabaseLogonMapsFaultToLogonError(t *testing.T) {
	ft := &fakeTransport{respond: func(op string, _ []any) (any, error) {
		return nil, &api.Fault{Code: "4", Message: "bad password", Op: op}
	}}
	c := newTestClient(t, ft)
	err := c.DatabaseLogon(context.Background(), "Sample", "alice", "wrong")
	var logon *LogonError
	if !errors.As(err, &logon) {
		t.Fatalf("err = %v, want LogonError", err)
	}
	if c.Cookie() != nil {
		t.Fatal("failed logon left a cookie behind")
	}
}

func TestProjectLogonTakesDatabaseFromProject(t *testing.T) {
	ft := &fakeTransport{respond: func(op string, _ []any) (any, error) {
		if op == "ProjectLogon" {
			return "cookie-1", nil
		}
		return nil, nil
	}}
	c := newTestClient(t, ft)
	db := api.NewEntity("CDatabase")
	db.Set("name", "Sample")
	project := api.NewEntity("CProject")
	project.Set("database", db)
	if err := c.ProjectLogon(context.Background(), project, "alice", "secret"); err != nil {
		t.Fatalf("ProjectLogon: %v", err)
	}
	if c.Cookie() != "cookie-1" {
		t.Fatalf("cookie = %v", c.Cookie())
	}
	if c.Credentials().Database != "Sample" {
		t.Fatalf("database = %q, want the project's database name", c.Credentials().Database)
	}
	if ft.calls[0].args[0] != project {
		t.Fatal("project entity not passed to the logon call")
	}
}

func TestGetProjectListFallsBackToCachedCredentials(t *testing.T) {
	ft := &fakeTransport{respond: func(op string, _ []any) (any, error) {
		return api.NewArray("ArrayOfCProject", "CProject"), nil
	}}
	c := newTestClient(t, ft, WithCredentials("", "alice", "secret"))
	list, err := c.GetProjectList(context.Background(), "", "")
	if err != nil {
		t.Fatalf("GetProjectList: %v", err)
	}
	if list == nil || list.ElemType != "CProject" {
		t.Fatalf("list = %+v", list)
	}
	args := ft.calls[0].args
	if len(args) != 2 || args[0] != "alice" || args[1] != "secret" {
		t.Fatalf("args = %v, want the cached credentials", args)
	}
}

func TestGetProjectListRequiresCredentials(t *testing.T) {
	ft := &fakeTransport{}
	c := newTestClient(t, ft)
	_, err := c.GetProjectList(context.Background(), "", "")
	var logon *LogonError
	if !errors.As(err, &logon) {
		t.Fatalf("err = %v, want LogonError", err)
	}
	if len(ft.calls) != 0 {
		t.Fatal("credential check reached the transport")
	}
}

func TestLogoffNoSessionIsNoop(t *testing.T) {
	ft := &fakeTransport{}
	c := newTestClient(t, ft)
	if err := c.Logoff(context.Background(), false); err != nil {
		t.Fatalf("Logoff: %v", err)
	}
	if len(ft.calls) != 0 {
		t.Fatal("logoff without a session reached the transport")
	}
}

func TestLogoffClearsCookieEvenOnError(t *testing.T) {
	cause := errors.New("connection reset")
	ft := &fakeTransport{respond: func(string, []any) (any, error) { return nil, cause }}
	c := newTestClient(t, ft, WithCookie(int64(5)))
	err := c.Logoff(context.Background(), false)
	var logon *LogonError
	if !errors.As(err, &logon) {
		t.Fatalf("err = %v, want LogonError", err)
	}
	if c.Cookie() != nil {
		t.Fatal("cookie survived a failed logoff")
	}
	if ft.calls[0].args[0] != int64(5) {
		t.Fatalf("logoff args = %v, want the old cookie", ft.calls[0].args)
	}
}

func TestLogoffSessionDroppedIsSuccess(t *testing.T) {
	ft := &fakeTransport{respond: func(op string, _ []any) (any, error) {
		return nil, &api.Fault{Message: api.SessionDroppedMessage, Op: op}
	}}
	c := newTestClient(t, ft, WithCookie(int64(5)))
	if err := c.Logoff(context.Background(), false); err != nil {
		t.Fatalf("Logoff: %v, want session-dropped treated as success", err)
	}
	if c.Cookie() != nil {
		t.Fatal("cookie survived logoff")
	}
}

func TestLogoffToleratesErrorsWhenAsked(t *testing.T) {
	ft := &fakeTransport{respond: func(string, []any) (any, error) {
		return nil, errors.New("connection reset")
	}}
	c := newTestClient(t, ft, WithCookie(int64(5)))
	if err := c.Logoff(context.Background(), true); err != nil {
		t.Fatalf("tolerant Logoff: %v", err)
	}
}

func TestCloseLogsOffTolerantly(t *testing.T) {
	ft := &fakeTransport{respond: func(string, []any) (any, error) {
		return nil, errors.New("connection reset")
	}}
	c := newTestClient(t, ft, WithCookie(int64(5)))
	if err := c.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if len(ft.calls) != 1 || ft.calls[0].op != "DatabaseLogoff" {
		t.Fatalf("ops = %v, want one logoff", ft.ops())
	}
}

func TestCorrelationIDRoundTrip(t *testing.T) {
	ctx := WithCorrelationID(context.Background(), "abc")
	if got := CorrelationIDFromContext(ctx); got != "abc" {
		t.Fatalf("got %q", got)
	}
	if got := CorrelationIDFromContext(context.Background()); got != "" {
		t.Fatalf("empty context yielded %q", got)
	}
	if WithCorrelationID(context.Background(), "  ") != context.Background() {
		t.Fatal("blank id should not annotate the context")
	}
	if GenerateCorrelationID() == GenerateCorrelationID() {
		t.Fatal("generated ids collide")
	}
}
