// Package sync holds the durable job model that drives all background
// work: channel pushes and pulls, allocation recomputes, conflict
// resolution and webhook processing. Jobs survive restarts; a queued or
// running job found after a crash is picked up again by the queue.
package sync
