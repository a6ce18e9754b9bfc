// Package bridge implements transport.Remote on top of an object storage
// bucket shared with a marketplace connector.
//
// The connector exports the marketplace's state and executes the agent's
// changes. For each service the bucket holds:
//
//	<prefix>/<service>/inventory.json      latest inventory export
//	<prefix>/<service>/orders.json         recent orders, any order
//	<prefix>/<service>/catalog.json        primary catalog key to secondary id
//	<prefix>/<service>/outbox/<id>.json    change requests written by the agent
//	<prefix>/<service>/results/<id>.json   outcome written by the connector
//
// A push writes its request to the outbox and polls for the matching result
// until the call's deadline. A push without a result is reported as
// transport.ErrNoReply because the connector may still execute it. Once a
// result is read both objects are removed.
package bridge
