// Package agent runs the control loop that keeps the tracked inventory and
// the two marketplaces in step.
//
// Each service has a ServiceState carrying four flags:
//
//	MustCheck    poll for new orders
//	MustSync     download the full inventory and reconcile it
//	MustUpdate   push the pending delta
//	PartialSync  part of the pending delta waits for quota headroom
//
// The loop runs on one goroutine. Every iteration rolls the quota
// histories, applies finished replies from the dispatcher, starts at most
// one operation per service and then waits for a reply, a command line or
// the next timer. Remote calls never run on the loop goroutine.
//
// Orders are consumed before anything else: each sold unit is removed from
// the tracked inventory and queued as a quantity change for the other
// service. A full sync is discarded when the downloaded snapshot mentions an
// order newer than the last consumed one. The secondary service waits while
// the primary has a sync or update outstanding.
//
// Every change to the tracked inventory or the state is committed through
// core/journal so a crash leaves either the old or the new pair of files.
// A failed commit stops the agent with ErrFatal.
//
// # Commands
//
//	sync [svc]             force a full sync
//	verify [svc]           reconcile without pushing and log the differences
//	check [svc]            poll for orders now
//	resetapihistory [svc]  clear the quota history
//	status                 log the state of every service
//	quit                   stop the loop
package agent
