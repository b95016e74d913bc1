// Package queue abstracts the message transport behind the worker: a
// Source that receives and acknowledges task messages under visibility
// timeouts, and a Sink that publishes outcome messages.
//
// Three backends are provided:
//
//   - Redis Streams (RedisQueue): consumer groups with XAUTOCLAIM-based
//     redelivery of messages whose previous consumer never acked.
//   - NATS JetStream (NATSQueue): durable pull consumers with explicit
//     acks and AckWait redelivery.
//   - In-memory (MemoryQueue): single-process implementation with real
//     visibility semantics, for tests and local runs.
//
// All backends assume at-least-once delivery; callers absorb duplicate
// deliveries with their own idempotency checks.
package queue
