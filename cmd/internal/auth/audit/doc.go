// Package audit persists guard events to an append-only log without
// slowing requests down: events are queued on a bounded channel and written
// by a single background goroutine. When the queue is full events are
// dropped and counted.
package audit
