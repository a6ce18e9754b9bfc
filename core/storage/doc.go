// Package storage provides an abstraction layer for object storage services.
//
// It wraps the MinIO Go client behind the Client interface, which supports
// both AWS S3 and self-hosted MinIO instances and is mocked in
// core/storage/mocks for unit tests.
//
// # Helpers
//
//   - EnsureBucket: creates the target bucket if needed.
//   - ReadObject / ReadJSON: download an object, mapping a missing key to
//     ErrObjectNotFound.
//   - WriteObject / WriteJSON: upload a buffer or a JSON document.
//
// The object-storage marketplace bridge and the inventory backups are both
// built on these helpers.
//
// # Usage
//
//	client, err := storage.NewClient(cfg.Storage)
//	err = storage.WriteJSON(ctx, client, cfg.Storage.Bucket, "backups/latest.json", inv)
package storage
