// Package notify delivers security notifications (challenge codes, hijack and
// impossible-travel alerts) off the request path.
//
// # Design
//
// A [Dispatcher] owns a buffered queue and a fixed pool of workers. Enqueue
// never blocks: when the queue is full the message is dropped and counted.
// Each worker retries a failed send a bounded number of times with a constant
// backoff, then records the message in an optional [FailureLog] and moves on.
// Delivery outcome never feeds back into an authentication decision.
//
// # What this package must NOT do
//
//   - Block or fail the caller of Enqueue.
//   - Log message bodies; they may carry one-time codes.
package notify
