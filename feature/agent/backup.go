package agent

import (
	"context"
	"fmt"
	"path"
	"time"

	"stock-sync/core/storage"
)

// ObjectBackup stores inventory copies in an object storage bucket.
type ObjectBackup struct {
	client storage.Client
	bucket string
	prefix string
	keep   int
}

// NewObjectBackup creates a backup target under prefix in bucket that
// retains the newest keep copies.
func NewObjectBackup(client storage.Client, bucket, prefix string, keep int) *ObjectBackup {
	if prefix == "" {
		prefix = "backups"
	}
	return &ObjectBackup{client: client, bucket: bucket, prefix: prefix, keep: keep}
}

// ObjectName returns the object a backup taken at at is stored under.
func (b *ObjectBackup) ObjectName(at time.Time) string {
	return path.Join(b.prefix, at.UTC().Format("20060102T150405Z")+".json")
}

// Save uploads data and prunes copies beyond the retention count.
func (b *ObjectBackup) Save(ctx context.Context, data []byte, at time.Time) error {
	if err := storage.WriteObject(ctx, b.client, b.bucket, b.ObjectName(at), data, "application/json"); err != nil {
		return err
	}
	return b.prune(ctx)
}

// prune relies on the timestamped names sorting chronologically.
func (b *ObjectBackup) prune(ctx context.Context) error {
	if b.keep <= 0 {
		return nil
	}
	names, err := storage.ListNames(ctx, b.client, b.bucket, b.prefix+"/")
	if err != nil {
		return fmt.Errorf("prune backups: %w", err)
	}
	for len(names) > b.keep {
		if err := storage.RemoveObject(ctx, b.client, b.bucket, names[0]); err != nil {
			return fmt.Errorf("prune backups: %w", err)
		}
		names = names[1:]
	}
	return nil
}
