package client

import (
	"context"
	"errors"

	"github.com/dougn/testtrackpro/api"
)

// EditFlag values adjust how an edit call acquires its lock.
type EditFlag int

const (
	// TolerateEditLockError turns an edit-lock rejection into a DENIED
	// session instead of an error. The session carries a placeholder
	// entity, its lifecycle operations are no-ops, and the rejection is
	// retrievable through LockError.
	TolerateEditLockError EditFlag = iota
)

type editState int

const (
	stateHeld editState = iota
	stateDenied
	stateCommitted
	stateDiscarded
)

// EditSession is the handle for one held (or denied) edit lock. It is
// produced by edit-kind operations and pairs the fetched entity with
// the save/cancelSave operations that release the lock. Release is
// idempotent: once committed or discarded, further lifecycle calls are
// no-ops.
//
// An EditSession is safe for use by a single goroutine at a time.
type EditSession struct {
	client *Client
	table  string
	saveOp string

	entity   *api.Entity
	recordID int64

	state    editState
	errored  bool
	tolerate bool
	lockErr  error
}

// edit performs the lease-acquire RPC for an edit-kind operation and
// wraps the outcome in an EditSession.
func (c *Client) edit(ctx context.Context, op *operation, args []any) (*EditSession, error) {
	tolerate := false
	callArgs := make([]any, 0, len(args))
	for _, a := range args {
		if flag, ok := a.(EditFlag); ok {
			if flag == TolerateEditLockError {
				tolerate = true
			}
			continue
		}
		callArgs = append(callArgs, a)
	}
	sess := &EditSession{
		client:   c,
		table:    op.table,
		saveOp:   "save" + op.table,
		tolerate: tolerate,
	}
	result, err := c.call(ctx, op.name, callArgs...)
	if err != nil {
		if tolerate && api.IsEditLockHeld(err) {
			placeholder, perr := c.createEntity("C" + op.table)
			if perr != nil {
				return nil, perr
			}
			sess.state = stateDenied
			sess.lockErr = err
			sess.entity = placeholder
			c.logDebugCtx(ctx, "client.edit.lock_denied", "op", op.name, "table", op.table)
			return sess, nil
		}
		c.logDebugCtx(ctx, "client.edit.error", "op", op.name, "table", op.table, "error", err)
		return nil, err
	}
	entity, ok := result.(*api.Entity)
	if !ok {
		return nil, &api.TypeResolutionError{TypeName: "C" + op.table}
	}
	sess.state = stateHeld
	sess.entity = entity
	sess.recordID = entity.RecordID()
	c.registerSession(sess)
	c.logDebugCtx(ctx, "client.edit.acquired", "op", op.name, "table", op.table, "recordid", sess.recordID)
	return sess, nil
}

// Edit acquires an edit lock through the named edit operation and
// returns the session holding it. Pass TolerateEditLockError among the
// args to get a DENIED session instead of an error when another user
// holds the lock. Most callers want EditForUpdate, which guarantees
// release.
func (c *Client) Edit(ctx context.Context, name string, args ...any) (*EditSession, error) {
	op, err := c.resolveOperation(name)
	if err != nil {
		return nil, err
	}
	if op.kind != opEdit {
		return nil, &ProtocolMisuseError{Op: name, Detail: "not an edit operation"}
	}
	return c.edit(ctx, op, args)
}

// EditHandler works on a held entity. Returning nil commits the edit;
// returning an error discards it.
type EditHandler func(ctx context.Context, sess *EditSession) error

// EditForUpdate acquires an edit lock, runs handler, and releases the
// lock exactly once on every path: commit when the handler returns nil,
// discard when it returns an error. A commit failure triggers a
// best-effort discard and surfaces the commit error; a handler error is
// surfaced unchanged. On a tolerated lock denial the handler still runs
// against the placeholder session so shared code can inspect it.
func (c *Client) EditForUpdate(ctx context.Context, name string, handler EditHandler, args ...any) error {
	sess, err := c.Edit(ctx, name, args...)
	if err != nil {
		return err
	}
	if err := handler(ctx, sess); err != nil {
		return sess.release(ctx, false, err)
	}
	return sess.release(ctx, true, nil)
}

// release is the single exit point of the lifecycle. A normal exit
// commits a held lock; an abnormal exit discards it and returns cause
// unchanged. DENIED sessions stay DENIED and release without any RPC.
// Already-released sessions are a no-op. Release always leaves the
// session terminal: a failed discard does not keep the lock held, it
// marks the session errored.
func (sess *EditSession) release(ctx context.Context, normal bool, cause error) error {
	switch sess.state {
	case stateCommitted, stateDiscarded:
		return cause
	case stateDenied:
		if !normal {
			sess.errored = true
			if sess.tolerate && sess.lockErr != nil && errors.Is(cause, sess.lockErr) {
				return nil
			}
		}
		return cause
	}
	if normal {
		if err := sess.Save(ctx); err != nil {
			if derr := sess.CancelSave(ctx); derr != nil {
				sess.client.logWarnCtx(ctx, "client.edit.discard_after_save_error", "table", sess.table, "recordid", sess.recordID, "error", derr)
				sess.abandon()
			}
			sess.errored = true
			return err
		}
		return nil
	}
	sess.errored = true
	if err := sess.CancelSave(ctx); err != nil {
		sess.client.logWarnCtx(ctx, "client.edit.discard_error", "table", sess.table, "recordid", sess.recordID, "error", err)
		sess.abandon()
	}
	return cause
}

// abandon forces a held session terminal after a failed discard. The
// server-side lock may linger, but this handle is spent: no further
// lifecycle call may issue an RPC for it.
func (sess *EditSession) abandon() {
	if sess.state != stateHeld {
		return
	}
	sess.state = stateDiscarded
	sess.client.unregisterSession(sess)
}

// Save commits the held edit: the entity, with any mutations made since
// acquisition, is written back and the lock is released. Extra args are
// appended to the save operation after the entity. On failure the lock
// is still considered held. A no-op unless the lock is held.
func (sess *EditSession) Save(ctx context.Context, extra ...any) error {
	if sess.state != stateHeld {
		return nil
	}
	args := make([]any, 0, len(extra)+1)
	args = append(args, sess.entity)
	args = append(args, extra...)
	if _, err := sess.client.call(ctx, sess.saveOp, args...); err != nil {
		sess.client.logDebugCtx(ctx, "client.edit.save_error", "table", sess.table, "recordid", sess.recordID, "error", err)
		return err
	}
	sess.state = stateCommitted
	sess.errored = false
	sess.client.unregisterSession(sess)
	sess.client.logDebugCtx(ctx, "client.edit.saved", "table", sess.table, "recordid", sess.recordID)
	return nil
}

// CancelSave discards the held edit, releasing the lock without writing
// anything back. A no-op unless the lock is held.
func (sess *EditSession) CancelSave(ctx context.Context) error {
	if sess.state != stateHeld {
		return nil
	}
	if _, err := sess.client.call(ctx, "cancelSave"+sess.table, sess.recordID); err != nil {
		sess.client.logDebugCtx(ctx, "client.edit.cancel_error", "table", sess.table, "recordid", sess.recordID, "error", err)
		return err
	}
	sess.state = stateDiscarded
	sess.client.unregisterSession(sess)
	sess.client.logDebugCtx(ctx, "client.edit.cancelled", "table", sess.table, "recordid", sess.recordID)
	return nil
}

// Table returns the entity table this session edits.
func (sess *EditSession) Table() string { return sess.table }

// Entity returns the fetched entity, or the empty placeholder when the
// lock was denied.
func (sess *EditSession) Entity() *api.Entity { return sess.entity }

// RecordID returns the record identifier captured at acquisition. Zero
// for denied sessions.
func (sess *EditSession) RecordID() int64 { return sess.recordID }

// Held reports whether the edit lock is currently held.
func (sess *EditSession) Held() bool { return sess.state == stateHeld }

// LockDenied reports whether the acquisition was rejected because
// another user held the edit lock and the rejection was tolerated.
func (sess *EditSession) LockDenied() bool { return sess.state == stateDenied }

// Saved reports whether the edit was committed.
func (sess *EditSession) Saved() bool { return sess.state == stateCommitted }

// Errored reports whether the session was released abnormally.
func (sess *EditSession) Errored() bool { return sess.errored }

// LockError returns the tolerated edit-lock rejection for a denied
// session, nil otherwise.
func (sess *EditSession) LockError() error { return sess.lockErr }

// Commit saves the edit session owning target, which may be the session
// itself or its entity. Unowned targets are a ProtocolMisuseError; use
// Call with the save operation for raw passthrough.
func (c *Client) Commit(ctx context.Context, target any, extra ...any) error {
	sess, err := c.mustOwn("Commit", target)
	if err != nil {
		return err
	}
	return sess.Save(ctx, extra...)
}

// Discard cancels the edit session owning target, which may be the
// session itself or its entity.
func (c *Client) Discard(ctx context.Context, target any) error {
	sess, err := c.mustOwn("Discard", target)
	if err != nil {
		return err
	}
	return sess.CancelSave(ctx)
}

func (c *Client) mustOwn(op string, target any) (*EditSession, error) {
	switch v := target.(type) {
	case *EditSession:
		if v.client != c {
			return nil, &ProtocolMisuseError{Op: op, Detail: "edit session belongs to a different client"}
		}
		return v, nil
	case *api.Entity:
		if sess := c.sessionFor(v); sess != nil {
			return sess, nil
		}
		return nil, &ProtocolMisuseError{Op: op, Detail: "entity has no owning edit session"}
	}
	return nil, &ProtocolMisuseError{Op: op, Detail: "an edit session or entity is required"}
}

// EditLockFailed reports whether the session was denied its edit lock.
// Nil sessions report false.
func EditLockFailed(sess *EditSession) bool {
	return sess != nil && sess.LockDenied()
}

// HaveEditLock reports whether the session currently holds its edit lock.
func HaveEditLock(sess *EditSession) bool {
	return sess != nil && sess.Held()
}

// HasErrored reports whether the session was released abnormally.
func HasErrored(sess *EditSession) bool {
	return sess != nil && sess.Errored()
}

// WasSaved reports whether the session committed its edit.
func WasSaved(sess *EditSession) bool {
	return sess != nil && sess.Saved()
}

// BreakOnEditLockFailure returns the first tolerated lock rejection
// among the sessions, nil when every lock was acquired. Use it after a
// batch of tolerant edits to bail out of the batch's scope.
func BreakOnEditLockFailure(sessions ...*EditSession) error {
	for _, sess := range sessions {
		if EditLockFailed(sess) {
			return sess.LockError()
		}
	}
	return nil
}
