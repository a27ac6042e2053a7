// Package tds implements a client driver for the Tabular Data Stream
// protocol used by SQL Server and its wire-compatible peers: connection
// setup (PRELOGIN, optional TLS, LOGIN7), SQL batch and RPC execution,
// transaction management, and session reset, all driven by a single
// goroutine per Connection per the protocol's single-logical-task model.
//
// Wire encoding/decoding lives in the wire and token subpackages; packet
// framing and message reassembly live in framing. This package owns the
// connection state machine and the public API built on top of it.
package tds
