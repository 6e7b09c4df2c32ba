package client

import (
	"context"
	"strings"

	"github.com/dougn/testtrackpro/api"
)

// opKind is the closed set of operation categories. Names are
// classified once per operation and the result is cached; call sites
// never re-inspect the name.
type opKind int

const (
	opPlain opKind = iota
	opEdit
	opSave
	opCancelSave
)

const editByRecordIDSuffix = "ByRecordID"

// operation is the cached classification of one remote operation name.
type operation struct {
	kind  opKind
	name  string
	table string // entity table for edit/save/cancelSave kinds
	call  Callable
}

// Callable invokes one resolved remote operation. Edit-kind callables
// return an *EditSession; the others return the decoded RPC result.
type Callable func(ctx context.Context, args ...any) (any, error)

// classify maps an operation name onto its category by prefix. The
// table name is what remains after the prefix (and, for edit
// operations, the ByRecordID suffix).
func classify(name string) (opKind, string) {
	switch {
	case strings.HasPrefix(name, "edit") && len(name) > len("edit"):
		table := strings.TrimSuffix(name[len("edit"):], editByRecordIDSuffix)
		return opEdit, table
	case strings.HasPrefix(name, "save") && len(name) > len("save"):
		return opSave, name[len("save"):]
	case strings.HasPrefix(name, "cancelSave") && len(name) > len("cancelSave"):
		return opCancelSave, name[len("cancelSave"):]
	}
	return opPlain, ""
}

// Resolve returns the callable for a remote operation name. Unknown
// names are an OperationNotFoundError. Resolution is memoized: repeated
// calls for the same name return the identical callable.
func (c *Client) Resolve(name string) (Callable, error) {
	op, err := c.resolveOperation(name)
	if err != nil {
		return nil, err
	}
	return op.call, nil
}

// Call resolves and invokes a remote operation in one step.
func (c *Client) Call(ctx context.Context, name string, args ...any) (any, error) {
	op, err := c.resolveOperation(name)
	if err != nil {
		return nil, err
	}
	return op.call(ctx, args...)
}

func (c *Client) resolveOperation(name string) (*operation, error) {
	c.mu.Lock()
	if op, ok := c.ops[name]; ok {
		c.mu.Unlock()
		return op, nil
	}
	c.mu.Unlock()
	if !c.schema.HasOperation(name) {
		return nil, &OperationNotFoundError{Name: name}
	}
	kind, table := classify(name)
	op := &operation{kind: kind, name: name, table: table}
	switch kind {
	case opEdit:
		op.call = func(ctx context.Context, args ...any) (any, error) {
			return c.edit(ctx, op, args)
		}
	case opSave:
		op.call = func(ctx context.Context, args ...any) (any, error) {
			return c.callSave(ctx, op, args)
		}
	case opCancelSave:
		op.call = func(ctx context.Context, args ...any) (any, error) {
			return c.callCancelSave(ctx, op, args)
		}
	default:
		op.call = func(ctx context.Context, args ...any) (any, error) {
			return c.call(ctx, name, args...)
		}
	}
	c.mu.Lock()
	if cached, ok := c.ops[name]; ok {
		// Lost a resolution race; keep the first classification.
		op = cached
	} else {
		c.ops[name] = op
	}
	c.mu.Unlock()
	return op, nil
}

// callSave dispatches a save* operation. The first argument may be an
// *EditSession, an entity owned by one, or a raw entity with no owning
// session (legitimate when the concrete type is only known at runtime,
// e.g. entities received inside polymorphic arrays).
func (c *Client) callSave(ctx context.Context, op *operation, args []any) (any, error) {
	if len(args) == 0 {
		return nil, &ProtocolMisuseError{Op: op.name, Detail: "an entity or edit session is required"}
	}
	sess, err := c.owningSession(op, args[0])
	if err != nil {
		return nil, err
	}
	if sess != nil {
		return nil, sess.Save(ctx, args[1:]...)
	}
	return c.call(ctx, op.name, args...)
}

// callCancelSave dispatches a cancelSave* operation. The first argument
// may be an *EditSession, an entity owned by one, or a raw record ID.
func (c *Client) callCancelSave(ctx context.Context, op *operation, args []any) (any, error) {
	if len(args) == 0 {
		return nil, &ProtocolMisuseError{Op: op.name, Detail: "an edit session or record id is required"}
	}
	sess, err := c.owningSession(op, args[0])
	if err != nil {
		return nil, err
	}
	if sess != nil {
		return nil, sess.CancelSave(ctx)
	}
	return c.call(ctx, op.name, args...)
}

// owningSession locates the edit session a save/cancelSave target
// belongs to, validating table agreement. A nil session with nil error
// means the target has no owning session and the call passes through.
func (c *Client) owningSession(op *operation, target any) (*EditSession, error) {
	var sess *EditSession
	switch v := target.(type) {
	case *EditSession:
		sess = v
	case *api.Entity:
		sess = c.sessionFor(v)
	default:
		return nil, nil
	}
	if sess == nil {
		return nil, nil
	}
	if sess.client != c {
		return nil, &ProtocolMisuseError{Op: op.name, Detail: "edit session belongs to a different client"}
	}
	if sess.table != op.table {
		return nil, &ProtocolMisuseError{Op: op.name, Detail: "edit session is for table " + sess.table}
	}
	return sess, nil
}
