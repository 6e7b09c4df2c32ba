// Package client is the session-holding access layer for Seapine
// TestTrack's SOAP service. It loads the service description, owns the
// logon session, dispatches the service's operations by naming
// convention, and manages the edit locks behind entity updates so a
// crash or an error path never strands a record locked on the server.
//
// # Connecting
//
// Connect fetches and patches the WSDL, wires a SOAP transport to the
// declared endpoint, and logs on when credentials are supplied:
//
//	ttp, err := client.Connect(ctx, "http://tt.example.com/",
//	    client.WithCredentials("Sample Project", "alice", "secret"))
//	if err != nil { log.Fatal(err) }
//	defer ttp.Close()
//
// Close logs the session off tolerantly, so a deferred Close never
// masks the error that unwound the stack.
//
// # Calling operations
//
// Every service operation is reachable through Call; the session cookie
// is injected as the implicit first argument:
//
//	result, err := ttp.Call(ctx, "getDefect", int64(42))
//
// Operation names decide dispatch. Names starting with "edit" acquire
// an edit lock and return an *EditSession; "save" and "cancelSave"
// names release one; everything else is a plain call.
//
// # Editing entities
//
// EditForUpdate scopes the edit lock to a handler and releases it on
// every path: the lock commits when the handler returns nil and is
// discarded when it returns an error.
//
//	err := ttp.EditForUpdate(ctx, "editDefect",
//	    func(ctx context.Context, sess *client.EditSession) error {
//	        sess.Entity().Set("priority", "Immediate")
//	        return nil
//	    }, int64(42))
//
// Pass TolerateEditLockError to proceed when another user holds the
// lock; the session is then denied, carries a placeholder entity, and
// its lifecycle calls are no-ops. BreakOnEditLockFailure turns a denied
// session back into its rejection for batch flows.
package client
