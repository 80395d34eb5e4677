// Package operations runs background work for uploads and report exports.
//
// Core Components:
//
// JobQueue: A fixed pool of workers fed by a bounded buffer. Submit never
// blocks; it fails with ErrQueueFull when the buffer is exhausted and with
// ErrQueueStopped after Stop.
//
// Task: A unit of work. Run receives a context carrying the submitting
// request's trace ID and is bounded by the queue's task timeout. OnError is
// invoked once when Run fails, panics or times out, so the owner of the
// subject record can move it to a failed state.
//
// JobStore: Bookkeeping of every submitted task. MemoryJobStore is the
// default implementation and backs the /api/v1/jobs endpoints.
//
// Shutdown:
//
// Stop lets running tasks finish, then abandons whatever is still queued.
// Abandoned tasks resolve with ErrQueueStopped and do not touch their
// subjects, which therefore stay in their queued state.
package operations
