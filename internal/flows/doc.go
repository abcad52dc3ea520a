// Package flows contains pure-function orchestrators for every Engine operation.
//
// Each flow function (RunLogin, RunVerifyChallenge, RunDetect, RunAuthenticate,
// etc.) accepts a typed dependency struct and returns results without
// side-effects beyond those dependencies. This keeps the Engine type thin and
// lets every branch be tested with in-memory fakes.
//
// # Architecture boundaries
//
// Flow functions coordinate calls to the session repository, the risk engine,
// the challenge store, the JWT manager, notifications, audit and metrics. They
// do NOT own any of these resources; ownership stays with the Engine.
//
// # What this package must NOT do
//
//   - Hold mutable state between calls.
//   - Import goGuard (to avoid import cycles).
//   - Perform I/O directly. All I/O is mediated through dependency functions.
package flows
