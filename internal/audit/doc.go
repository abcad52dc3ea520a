// Package audit relays security events from the engine to pluggable sinks.
//
// The [Dispatcher] buffers events on a channel and hands them to one sink
// goroutine, either dropping or blocking when the buffer is full. Sinks
// decide where events go: a channel, a JSON line writer, a zerolog logger,
// or several of them through [MultiSink].
//
// The package never decides which events exist; the engine and its flows
// do. Raw tokens and one-time codes must never appear in [Event.Metadata].
package audit
