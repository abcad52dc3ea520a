// Package rate provides the atomic, auto-expiring counters behind the risk
// engine's velocity signals.
//
// # Window semantics
//
// Fixed-window counters: INCR + conditional PEXPIRE on first hit, executed as
// one Lua script. Callers namespace keys themselves (for example "ip:<addr>"
// and "fp:<fingerprint>").
//
// # What this package must NOT do
//
//   - Decide whether a count is risky (that lives in the risk package).
//   - Be imported outside the goGuard module.
package rate
