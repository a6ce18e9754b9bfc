// Package transport is the boundary between the agent's control loop and
// the remote marketplaces.
//
// The loop never blocks on the network. It submits Requests to a
// Dispatcher, whose worker goroutines call the Remote implementations and
// queue a Reply for each request. The loop drains replies at its own
// checkpoints, or waits for outstanding requests with WaitPending.
//
// # Errors
//
// Remote failures are wrapped in a *RequestError and classified as
// ErrConnect, ErrNoReply or ErrMalformed. ErrNoReply is the ambiguous case:
// the remote may or may not have applied the request, so callers must not
// trust any partial outcome.
//
// After ConsecutiveErrorLimit failures in a row for one service the
// dispatcher resets that service's Remote if it implements Resetter and
// flags the reply, so the loop can count it as a sync failure.
//
// # Usage
//
//	d := transport.NewDispatcher(remotes, transport.Config{Workers: 2}, logger)
//	d.Start(ctx)
//	defer d.Close()
//
//	d.Submit(transport.Request{Service: inventory.Primary, Op: transport.OpFetchInventory})
//	for _, reply := range d.Drain() {
//	    ...
//	}
package transport
