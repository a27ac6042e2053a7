package tds

import (
	"testing"

	"github.com/ha1tch/tdsdriver/wire"
)

func TestNewTxnStackSeedsSentinel(t *testing.T) {
	s := newTxnStack()
	if s.current() != sentinelDescriptor {
		t.Fatalf("current(): got %v, want sentinel", s.current())
	}
	if s.inTransaction() {
		t.Fatal("a freshly created stack should not be in a transaction")
	}
}

func TestPushPopDescriptorLIFO(t *testing.T) {
	s := newTxnStack()
	d1 := [8]byte{1, 2, 3, 4, 5, 6, 7, 8}
	d2 := [8]byte{8, 7, 6, 5, 4, 3, 2, 1}

	s.pushDescriptor(d1)
	if s.current() != d1 {
		t.Fatalf("current(): got %v, want %v", s.current(), d1)
	}

	s.pushDescriptor(d2)
	if s.current() != d2 {
		t.Fatalf("current(): got %v, want %v", s.current(), d2)
	}

	s.popDescriptor()
	if s.current() != d1 {
		t.Fatalf("after pop, current(): got %v, want %v", s.current(), d1)
	}

	s.popDescriptor()
	if s.current() != sentinelDescriptor {
		t.Fatalf("after popping last pushed descriptor, current(): got %v, want sentinel", s.current())
	}
}

func TestPopDescriptorNeverPopsSentinel(t *testing.T) {
	s := newTxnStack()
	s.popDescriptor()
	s.popDescriptor()
	if s.current() != sentinelDescriptor {
		t.Fatal("popDescriptor must never remove the sentinel at index 0")
	}
}

func TestPushPopOpenAndInTransaction(t *testing.T) {
	s := newTxnStack()
	if s.inTransaction() {
		t.Fatal("expected inTransaction() to be false initially")
	}

	s.pushOpen(Transaction{Name: "t1", Isolation: wire.IsolationReadCommitted})
	if !s.inTransaction() {
		t.Fatal("expected inTransaction() to be true after pushOpen")
	}

	got, ok := s.popOpen()
	if !ok || got.Name != "t1" {
		t.Fatalf("popOpen(): got (%v, %v), want (t1, true)", got, ok)
	}
	if s.inTransaction() {
		t.Fatal("expected inTransaction() to be false after popping the only open transaction")
	}
}

func TestPopOpenOnEmptyStack(t *testing.T) {
	s := newTxnStack()
	_, ok := s.popOpen()
	if ok {
		t.Fatal("popOpen on an empty stack must return ok=false")
	}
}

func TestPushOpenNestedLIFO(t *testing.T) {
	s := newTxnStack()
	s.pushOpen(Transaction{Name: "outer"})
	s.pushOpen(Transaction{Name: "inner"})

	got, ok := s.popOpen()
	if !ok || got.Name != "inner" {
		t.Fatalf("expected to pop 'inner' first, got %v", got)
	}
	if !s.inTransaction() {
		t.Fatal("expected 'outer' to still be open")
	}
	got, ok = s.popOpen()
	if !ok || got.Name != "outer" {
		t.Fatalf("expected to pop 'outer' second, got %v", got)
	}
}
