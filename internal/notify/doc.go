// Package notify delivers welcome/goodbye email requests out of band.
//
// The [Dispatcher] is a buffered asynchronous relay: Emit never blocks the
// caller and drops events when the buffer is full, counting each drop. A
// [Sink] performs delivery; [RedisStreamSink] appends to a Redis stream read by
// the mail worker.
//
// This package does not decide when to notify; the member service does.
package notify
