package tds

import "github.com/ha1tch/tdsdriver/wire"

// sentinelDescriptor is the all-zero descriptor pushed at construction
// (I3), so txnStack.current() is always defined even outside any
// transaction. Preserve exactly: the server expects non-transactional
// requests to carry this value, not an all-zero-but-differently-shaped
// one.
var sentinelDescriptor = [8]byte{}

// Transaction names an open transaction scope: a name plus the
// isolation level it was opened with. Only begin/commit/rollback are
// modeled — savepoints are server-side bookkeeping this client core
// has no use for, unlike the teacher's nested-savepoint tracking in
// pkg/protocol/tds/txn_handler.go.
type Transaction struct {
	Name      string
	Isolation wire.IsolationLevel
}

// txnStack is the LIFO of server-issued descriptors; its top is the
// descriptor attached to every outbound request payload (I3).
type txnStack struct {
	descriptors []([8]byte)
	open        []Transaction
}

func newTxnStack() *txnStack {
	return &txnStack{descriptors: [][8]byte{sentinelDescriptor}}
}

// current returns the top descriptor, always defined per I3.
func (s *txnStack) current() [8]byte {
	return s.descriptors[len(s.descriptors)-1]
}

// pushDescriptor is called when the token reader reports a
// beginTransaction ENVCHANGE, recording the server's new descriptor.
func (s *txnStack) pushDescriptor(d [8]byte) {
	s.descriptors = append(s.descriptors, d)
}

// popDescriptor is called on commitTransaction/rollbackTransaction
// ENVCHANGEs. The sentinel at index 0 is never popped.
func (s *txnStack) popDescriptor() {
	if len(s.descriptors) > 1 {
		s.descriptors = s.descriptors[:len(s.descriptors)-1]
	}
}

// pushOpen records a caller-initiated beginTransaction before the
// server's descriptor has arrived, so commitTransaction/
// rollbackTransaction can be rejected synchronously with ENOTRNINPROG
// when the open list is empty.
func (s *txnStack) pushOpen(t Transaction) {
	s.open = append(s.open, t)
}

func (s *txnStack) popOpen() (Transaction, bool) {
	if len(s.open) == 0 {
		return Transaction{}, false
	}
	t := s.open[len(s.open)-1]
	s.open = s.open[:len(s.open)-1]
	return t, true
}

func (s *txnStack) inTransaction() bool {
	return len(s.open) > 0
}
