package tds

import (
	"sync"

	"github.com/ha1tch/tdsdriver/wire"
)

// preparedEntry is one cached statement: the server-assigned handle plus
// the parameter shape it was prepared with, since a handle is only valid
// for the exact parameter types/order it was prepared against.
type preparedEntry struct {
	handle    int32
	paramDefs string
}

// PreparedCache avoids re-issuing sp_prepare for SQL text the caller runs
// repeatedly: the first Execute call for a given (sql, params shape) pair
// prepares it and remembers the handle; later calls with the same shape
// go straight to sp_execute. Grounded on the teacher's server-side
// PreparedStatementCache (tds/prepared.go), adapted from "cache parsed
// statements to serve repeat client requests" to "cache prepared handles
// to avoid repeat sp_prepare round-trips" — the client-side mirror of the
// same idea.
type PreparedCache struct {
	mu      sync.Mutex
	entries map[string]preparedEntry
}

// NewPreparedCache builds an empty cache.
func NewPreparedCache() *PreparedCache {
	return &PreparedCache{entries: make(map[string]preparedEntry)}
}

// Execute runs sql with params against conn, preparing it first if this
// exact (sql, param shape) pair hasn't been seen on this cache before.
func (pc *PreparedCache) Execute(conn *Connection, sql string, params []wire.RPCParam, cb Callback) {
	paramDefs := formatParamDefs(params)
	key := sql + "\x00" + paramDefs

	pc.mu.Lock()
	entry, ok := pc.entries[key]
	pc.mu.Unlock()

	if ok {
		conn.Execute(entry.handle, params, cb)
		return
	}

	conn.Prepare(sql, params, func(err error, handle int32) {
		if err != nil {
			if cb != nil {
				cb(err, 0, nil)
			}
			return
		}
		pc.mu.Lock()
		pc.entries[key] = preparedEntry{handle: handle, paramDefs: paramDefs}
		pc.mu.Unlock()
		conn.Execute(handle, params, cb)
	})
}

// Close unprepares every cached handle. Callers should invoke this before
// dropping a PreparedCache whose Connection is still open; once the
// Connection itself is closed the handles are already gone server-side.
func (pc *PreparedCache) Close(conn *Connection) {
	pc.mu.Lock()
	handles := make([]int32, 0, len(pc.entries))
	for _, e := range pc.entries {
		handles = append(handles, e.handle)
	}
	pc.entries = make(map[string]preparedEntry)
	pc.mu.Unlock()

	for _, h := range handles {
		conn.Unprepare(h, nil)
	}
}
