package transport

import (
	"time"

	"stock-sync/core/inventory"
	"stock-sync/core/reconcile"
)

// Op is a remote operation.
type Op int

const (
	OpFetchInventory Op = iota + 1
	OpFetchOrders
	OpPush
	OpResolve
)

func (o Op) String() string {
	switch o {
	case OpFetchInventory:
		return "fetch_inventory"
	case OpFetchOrders:
		return "fetch_orders"
	case OpPush:
		return "push"
	case OpResolve:
		return "resolve"
	default:
		return "unknown"
	}
}

// Request is one queued remote call.
type Request struct {
	// ID correlates the request with its reply and log lines.
	ID      string
	Service inventory.Service
	Op      Op

	// Since bounds OpFetchOrders.
	Since time.Time
	// Deltas is the payload of OpPush.
	Deltas []reconcile.Delta
	// ItemType and ItemID identify the item of OpResolve.
	ItemType byte
	ItemID   string
}

// Reply is the completion record of a Request.
type Reply struct {
	Request Request

	Snapshot  *Snapshot
	Orders    []Order
	Push      PushResult
	CatalogID int64

	// Err is a *RequestError when the call failed.
	Err error
	// Reset is set when this failure crossed the consecutive error limit
	// and the remote was reset.
	Reset    bool
	Duration time.Duration
}
