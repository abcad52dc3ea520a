// Package kafkasink publishes goGuard audit events to Kafka through
// segmentio/kafka-go.
//
// Plug a [Sink] into the engine with Builder.WithAuditSink; the engine's
// bounded dispatcher calls Emit off the request path.
package kafkasink
