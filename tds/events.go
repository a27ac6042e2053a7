package tds

import "github.com/ha1tch/tdsdriver/token"

// EventHandler receives the connection-scoped events spec.md §6 lists as
// observable to the caller. Modeled as a static interface the caller
// implements, rather than a generic string-keyed pub/sub, mirroring the
// teacher's Authenticator/protocol.Connection interface style
// (protocol/tds/connection.go) over any event-bus dependency — Go favors
// this over the source language's event-emitter idiom.
type EventHandler interface {
	// OnConnect fires exactly once: nil on a successful login, or the
	// error that ended the attempt.
	OnConnect(err error)
	// OnEnd fires exactly once, when the connection reaches Final.
	OnEnd()
	// OnError reports the wire/protocol error that ends an established
	// connection; OnEnd follows as the connection closes.
	OnError(err error)
	OnDebug(msg string)
	OnInfoMessage(msg token.InfoMsg)
	OnErrorMessage(msg token.InfoMsg)
	OnDatabaseChange(newValue, oldValue string)
	OnLanguageChange(newValue, oldValue string)
	OnCharsetChange(newValue, oldValue string)
	OnSecure()
	OnResetConnection()
}

// NopEventHandler implements EventHandler with no-ops, so a caller that
// only cares about a few events can embed it and override the rest —
// the same convenience the teacher gets from embedding
// DefaultAuthenticator (protocol/tds/connection.go) instead of
// implementing every method of a narrow interface.
type NopEventHandler struct{}

func (NopEventHandler) OnConnect(err error)                      {}
func (NopEventHandler) OnEnd()                                   {}
func (NopEventHandler) OnError(err error)                        {}
func (NopEventHandler) OnDebug(msg string)                       {}
func (NopEventHandler) OnInfoMessage(msg token.InfoMsg)          {}
func (NopEventHandler) OnErrorMessage(msg token.InfoMsg)         {}
func (NopEventHandler) OnDatabaseChange(newValue, oldValue string) {}
func (NopEventHandler) OnLanguageChange(newValue, oldValue string) {}
func (NopEventHandler) OnCharsetChange(newValue, oldValue string)  {}
func (NopEventHandler) OnSecure()                                {}
func (NopEventHandler) OnResetConnection()                       {}
