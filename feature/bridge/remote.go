package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"sort"
	"time"

	"stock-sync/core/inventory"
	"stock-sync/core/reconcile"
	"stock-sync/core/storage"
	"stock-sync/core/transport"
	"stock-sync/core/utils"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// ErrUnknownItem is returned by ResolveItem when the catalog has no entry.
var ErrUnknownItem = errors.New("bridge: item not in catalog")

// snapshotFile is the inventory export written by the connector.
type snapshotFile struct {
	LatestOrderTime time.Time       `json:"latest_order_time"`
	Lots            []inventory.Lot `json:"lots"`
}

// outboxFile is a change request for the connector.
type outboxFile struct {
	ID        string            `json:"id"`
	Service   string            `json:"service"`
	CreatedAt time.Time         `json:"created_at"`
	Deltas    []reconcile.Delta `json:"deltas"`
}

// resultFile is the connector's answer to an outbox request.
type resultFile struct {
	transport.PushResult
	Error string `json:"error,omitempty"`
}

// Remote exchanges data with one marketplace through object storage.
type Remote struct {
	client  storage.Client
	bucket  string
	region  string
	service inventory.Service
	cfg     Config
	logger  *zap.Logger

	sf    singleflight.Group
	newID func() string
}

// New creates the remote for svc.
func New(client storage.Client, bucket, region string, svc inventory.Service, cfg Config, logger *zap.Logger) *Remote {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Prefix == "" {
		cfg.Prefix = "exchange"
	}
	if cfg.PollIntervalMillis <= 0 {
		cfg.PollIntervalMillis = 2000
	}
	return &Remote{
		client:  client,
		bucket:  bucket,
		region:  region,
		service: svc,
		cfg:     cfg,
		logger:  logger.With(zap.String("service", svc.String())),
		newID:   uuid.NewString,
	}
}

func (r *Remote) object(name string) string {
	return path.Join(r.cfg.Prefix, r.service.String(), name)
}

// InventoryObject returns the name of the inventory export.
func (r *Remote) InventoryObject() string { return r.object("inventory.json") }

// OrdersObject returns the name of the orders export.
func (r *Remote) OrdersObject() string { return r.object("orders.json") }

// CatalogObject returns the name of the catalog map.
func (r *Remote) CatalogObject() string { return r.object("catalog.json") }

// OutboxObject returns the name of the request with id.
func (r *Remote) OutboxObject(id string) string { return r.object(path.Join("outbox", id+".json")) }

// ResultObject returns the name of the result for the request with id.
func (r *Remote) ResultObject(id string) string { return r.object(path.Join("results", id+".json")) }

// FetchInventory downloads the latest inventory export. Concurrent calls
// share one download.
func (r *Remote) FetchInventory(ctx context.Context) (*transport.Snapshot, error) {
	name := r.InventoryObject()
	v, err, shared := r.sf.Do(name, func() (any, error) {
		return r.readObject(ctx, name)
	})
	if err != nil {
		return nil, err
	}
	if shared {
		r.logger.Debug("Inventory download shared")
	}
	return DecodeSnapshot(v.([]byte))
}

// DecodeSnapshot parses an inventory export. Local ids in the export are
// discarded; lot identity comes from the foreign ids.
func DecodeSnapshot(data []byte) (*transport.Snapshot, error) {
	var f snapshotFile
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("%w: inventory export: %w", transport.ErrMalformed, err)
	}
	for i := range f.Lots {
		f.Lots[i].LocalID = 0
	}
	return &transport.Snapshot{Inventory: inventory.FromLots(f.Lots), LatestOrderTime: f.LatestOrderTime}, nil
}

// FetchOrders returns exported orders placed after since, oldest first.
// A missing export means no orders.
func (r *Remote) FetchOrders(ctx context.Context, since time.Time) ([]transport.Order, error) {
	var all []transport.Order
	err := r.readJSON(ctx, r.OrdersObject(), &all)
	if errors.Is(err, storage.ErrObjectNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	out := make([]transport.Order, 0, len(all))
	for _, o := range all {
		if o.Time.After(since) {
			out = append(out, o)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Time.Before(out[j].Time) })
	return out, nil
}

// PushDelta writes deltas to the outbox and waits for the connector's result.
func (r *Remote) PushDelta(ctx context.Context, deltas []reconcile.Delta) (transport.PushResult, error) {
	id := r.newID()
	req := outboxFile{ID: id, Service: r.service.String(), CreatedAt: time.Now().UTC(), Deltas: deltas}
	if err := storage.WriteJSON(ctx, r.client, r.bucket, r.OutboxObject(id), req); err != nil {
		return transport.PushResult{}, fmt.Errorf("%w: %w", transport.ErrConnect, err)
	}
	r.logger.Debug("Push request written", zap.String("id", id), zap.Int("deltas", len(deltas)))

	ticker := time.NewTicker(time.Duration(r.cfg.PollIntervalMillis) * time.Millisecond)
	defer ticker.Stop()
	for {
		var res resultFile
		err := storage.ReadJSON(ctx, r.client, r.bucket, r.ResultObject(id), &res)
		switch {
		case err == nil:
			r.discard(ctx, id)
			if res.Error != "" {
				return res.PushResult, fmt.Errorf("connector rejected %s: %s", id, res.Error)
			}
			return res.PushResult, nil
		case !errors.Is(err, storage.ErrObjectNotFound):
			return transport.PushResult{}, fmt.Errorf("%w: %w", transport.ErrNoReply, err)
		}

		select {
		case <-ctx.Done():
			return transport.PushResult{}, fmt.Errorf("%w: waiting for %s: %w", transport.ErrNoReply, id, ctx.Err())
		case <-ticker.C:
		}
	}
}

// discard removes a consumed request and its result.
func (r *Remote) discard(ctx context.Context, id string) {
	for _, name := range []string{r.OutboxObject(id), r.ResultObject(id)} {
		if err := storage.RemoveObject(ctx, r.client, r.bucket, name); err != nil {
			r.logger.Warn("Failed to remove exchange object", zap.String("object", name), zap.Error(err))
		}
	}
}

// ResolveItem looks the primary catalog key up in the catalog map. Catalog
// exports carry ids as numbers or numeric strings.
func (r *Remote) ResolveItem(ctx context.Context, itemType byte, idA string) (int64, error) {
	if r.service != inventory.Secondary {
		return 0, transport.ErrNotSupported
	}
	var catalog map[string]any
	if err := r.readJSON(ctx, r.CatalogObject(), &catalog); err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			return 0, fmt.Errorf("%w: %w", transport.ErrNotSupported, err)
		}
		return 0, err
	}
	key := CatalogKey(itemType, idA)
	raw, ok := catalog[key]
	idB := int64(utils.ToInt(raw))
	if !ok || idB <= 0 {
		return 0, fmt.Errorf("%w: %s", ErrUnknownItem, key)
	}
	return idB, nil
}

// Reset forgets in-flight shared downloads and makes sure the bucket exists.
func (r *Remote) Reset(ctx context.Context) error {
	r.sf.Forget(r.InventoryObject())
	return storage.EnsureBucket(ctx, r.client, r.bucket, r.region)
}

// CatalogKey formats a primary catalog key as stored in catalog.json.
func CatalogKey(itemType byte, idA string) string {
	return fmt.Sprintf("%c:%s", itemType, idA)
}

func (r *Remote) readJSON(ctx context.Context, name string, v any) error {
	data, err := r.readObject(ctx, name)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%w: %s: %w", transport.ErrMalformed, name, err)
	}
	return nil
}

// readObject downloads name, classifying failures for the dispatcher.
func (r *Remote) readObject(ctx context.Context, name string) ([]byte, error) {
	data, err := storage.ReadObject(ctx, r.client, r.bucket, name)
	switch {
	case err == nil:
		return data, nil
	case errors.Is(err, storage.ErrObjectNotFound):
		return nil, err
	case ctx.Err() != nil:
		return nil, fmt.Errorf("%w: %w", transport.ErrNoReply, err)
	case transport.Classify(err) != nil:
		return nil, err
	default:
		return nil, fmt.Errorf("%w: %w", transport.ErrConnect, err)
	}
}

var _ transport.Remote = (*Remote)(nil)
var _ transport.Resetter = (*Remote)(nil)
