package instance_test

import (
	"context"
	"testing"

	"github.com/ha1tch/tdsdriver/instance"
	"github.com/ha1tch/tdsdriver/tdserrors"
)

func TestNoLookupAlwaysFails(t *testing.T) {
	var r instance.Resolver = instance.NoLookup{}

	_, err := r.Resolve(context.Background(), "db1.example.com", "SQLEXPRESS")
	if err == nil {
		t.Fatal("expected NoLookup to always fail")
	}
	if got := tdserrors.CodeOf(err); got != tdserrors.EInstLookup {
		t.Errorf("error code: got %q, want %q", got, tdserrors.EInstLookup)
	}
}
