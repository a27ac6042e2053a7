package tds

import (
	"github.com/ha1tch/tdsdriver/token"
	"github.com/ha1tch/tdsdriver/wire"
)

// Callback is invoked exactly once when a simple request (SQL batch or
// a stored-procedure call with no driver-interpreted output params)
// completes, whether by success, server error, or cancellation.
type Callback func(err error, rowCount int64, rows []token.Row)

// Request is the single pending operation a Connection may have in
// flight at any moment (I2: at most one Request is active). It
// accumulates token events as the token reader reports them and is
// released back to nil on the terminal `done`. onComplete, not a plain
// Callback, is the completion primitive: Prepare needs to inspect
// returnValues (the @handle output parameter) before translating the
// outcome to its own callback shape, which a fixed (err, rowCount, rows)
// signature can't carry — onComplete hands it the whole Request instead, and the Callback-based wrappers are just
// the common case of an onComplete that discards everything but err/
// rowCount/rows.
type Request struct {
	payload    []byte
	pktType    requestPacketType
	onComplete func(*Request)

	columnNames  []string
	rows         []token.Row
	rowCount     int64
	err          error
	canceled     bool
	returnStatus *int32
	returnValues []token.ReturnValue
}

// requestPacketType distinguishes the two outbound shapes a Request can
// carry; Connection.makeRequestRaw derives it from the caller-supplied
// wire.PacketType and records it on the Request, while the actual send
// always uses that wire.PacketType directly.
type requestPacketType int

const (
	requestSQLBatch requestPacketType = iota
	requestRPC
)

func newRequest(pktType requestPacketType, payload []byte, onComplete func(*Request)) *Request {
	return &Request{
		pktType:    pktType,
		payload:    payload,
		onComplete: onComplete,
		rows:       []token.Row{},
	}
}

// addRowCount folds in a DONE-family token's row count, per spec.md §4.4
// ("add rowCount") — terminal tokens (doneProc/doneInProc/done) each
// contribute to the request's running total, which the round-trip law in
// spec.md §8 requires to equal the sum of all of them.
func (r *Request) addRowCount(n uint64) {
	r.rowCount += int64(n)
}

// setError records the first error seen, matching spec.md's
// "set request.error" language: later errors during the same request
// don't overwrite the first.
func (r *Request) setError(err error) {
	if r.err == nil {
		r.err = err
	}
}

// setColumns applies the useColumnNames dedupe rule (keep first
// occurrence of a repeated name) and records the resulting names.
func (r *Request) setColumns(cols []wire.Column, dedupe bool) {
	if !dedupe {
		for _, c := range cols {
			r.columnNames = append(r.columnNames, c.Name)
		}
		return
	}
	seen := make(map[string]bool, len(cols))
	for _, c := range cols {
		if seen[c.Name] {
			continue
		}
		seen[c.Name] = true
		r.columnNames = append(r.columnNames, c.Name)
	}
}

// finish invokes onComplete with the request's accumulated outcome.
func (r *Request) finish() {
	if r.onComplete != nil {
		r.onComplete(r)
	}
}

// callbackComplete adapts a plain Callback into an onComplete hook, the
// shape every wrapper that doesn't need output parameters uses.
func callbackComplete(cb Callback) func(*Request) {
	if cb == nil {
		return nil
	}
	return func(r *Request) {
		cb(r.err, r.rowCount, r.rows)
	}
}
