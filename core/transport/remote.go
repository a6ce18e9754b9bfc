package transport

import (
	"context"
	"time"

	"stock-sync/core/inventory"
	"stock-sync/core/reconcile"
)

// Snapshot is a full remote inventory download.
type Snapshot struct {
	// Inventory holds the remote lots; each lot's foreign id for the
	// service is its remote lot id.
	Inventory *inventory.Inventory `json:"inventory"`
	// LatestOrderTime is the newest order the remote knew about when the
	// snapshot was taken.
	LatestOrderTime time.Time `json:"latest_order_time"`
}

// OrderItem is one lot line of an order.
type OrderItem struct {
	LotID    int64 `json:"lot_id"`
	Quantity int   `json:"quantity"`
}

// Order is a sale recorded by a remote marketplace.
type Order struct {
	ID    string      `json:"id"`
	Time  time.Time   `json:"time"`
	Items []OrderItem `json:"items"`
}

// PushResult reports what a remote did with a pushed delta.
type PushResult struct {
	// Applied is the number of deltas the remote executed.
	Applied int `json:"applied"`
	// Created maps the LocalID of each created lot to its new remote lot id.
	Created map[int64]int64 `json:"created,omitempty"`
}

// Remote is the capability set the agent needs from a marketplace.
type Remote interface {
	// FetchInventory downloads the full remote inventory.
	FetchInventory(ctx context.Context) (*Snapshot, error)
	// FetchOrders returns orders placed strictly after since, oldest first.
	FetchOrders(ctx context.Context, since time.Time) ([]Order, error)
	// PushDelta asks the remote to execute deltas in order.
	PushDelta(ctx context.Context, deltas []reconcile.Delta) (PushResult, error)
	// ResolveItem translates a primary catalog id into the remote's own.
	ResolveItem(ctx context.Context, itemType byte, idA string) (int64, error)
}

// Resetter is implemented by remotes that can drop and re-establish their
// connection state.
type Resetter interface {
	Reset(ctx context.Context) error
}
