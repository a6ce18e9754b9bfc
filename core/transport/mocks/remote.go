package mocks

import (
	"context"
	"time"

	"stock-sync/core/reconcile"
	"stock-sync/core/transport"

	"github.com/stretchr/testify/mock"
)

// Remote is a mock implementation of transport.Remote
type Remote struct {
	mock.Mock
}

func (m *Remote) FetchInventory(ctx context.Context) (*transport.Snapshot, error) {
	args := m.Called(ctx)
	if snap, ok := args.Get(0).(*transport.Snapshot); ok {
		return snap, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *Remote) FetchOrders(ctx context.Context, since time.Time) ([]transport.Order, error) {
	args := m.Called(ctx, since)
	if orders, ok := args.Get(0).([]transport.Order); ok {
		return orders, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *Remote) PushDelta(ctx context.Context, deltas []reconcile.Delta) (transport.PushResult, error) {
	args := m.Called(ctx, deltas)
	return args.Get(0).(transport.PushResult), args.Error(1)
}

func (m *Remote) ResolveItem(ctx context.Context, itemType byte, idA string) (int64, error) {
	args := m.Called(ctx, itemType, idA)
	return args.Get(0).(int64), args.Error(1)
}

// ResettableRemote also implements transport.Resetter
type ResettableRemote struct {
	Remote
}

func (m *ResettableRemote) Reset(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}
