// Package risk scores login attempts from independent, additive signals:
// IP and fingerprint velocity, new device, geo jump, impossible travel and
// elevated standing risk.
//
// Scoring is deterministic given its inputs except for the velocity
// counters, which are injected so tests can use an
// in-memory fake.
package risk
