// Package otel exposes goGuard counters and the authentication latency
// histogram as OpenTelemetry observable instruments.
//
// [New] registers one Int64ObservableCounter per engine counter. The
// histogram becomes a cumulative "_bucket" gauge with an "le" attribute per
// upper bound plus a "_count" gauge. One callback reads
// [goGuard.Engine.MetricsSnapshot] per collection.
//
// The caller owns the MeterProvider; the exporter never mutates the engine.
package otel
