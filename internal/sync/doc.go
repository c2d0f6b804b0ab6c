// Package sync reconciles the embedded local store with the per-user
// remote document store under unreliable connectivity.
//
// # Model
//
// The local database is authoritative for this device: local mutations are
// never rolled back. Each device tags its writes with a stable device id
// and an advisory _version counter; conflicts between devices are resolved
// per record by last write wins on the bill's updatedAt clock. Payments are
// immutable and append-only, so they cannot conflict.
//
// A single persisted watermark records the instant up to which local and
// remote are known reconciled. It drives every incremental query and is
// advanced only after a full cycle completes without error, so any partial
// failure causes a safe full retry (all remote writes are idempotent
// upserts or deletes keyed by record id).
//
// # Cycle
//
// A full cycle runs pull, then offline-queue drain, then push:
//
//	syncer.Sync(ctx, userID)
//
// Local mutations call LocalChange independently of the cycle; when the
// device is offline (or the direct write fails) the mutation is demoted to
// the durable offline queue and replayed on the next cycle.
//
// The realtime listener triggers incremental pulls for changes written by
// other devices; this device's own pending writes are skipped.
//
// # Serialization
//
// Sync cycles, queue drains, and migration are serialized by an internal
// mutex; they are not designed to run concurrently with each other on one
// device. Concurrency across devices is the case the design defends
// against, and it is handled entirely by the rules above.
package sync
