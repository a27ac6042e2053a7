// Package instance defines the pluggable collaborator the connection
// core calls on to turn a (server, instanceName) pair into a TCP port,
// when the caller configured an instance name instead of an explicit
// port. The SQL Browser UDP lookup protocol itself is out of scope
// (spec.md §1 lists it as an external collaborator); this package only
// fixes the shape of that collaborator, analogous to how the teacher's
// protocol/tds.Connection takes a pluggable Authenticator rather than
// hard-coding one credential check.
package instance

import (
	"context"
	"fmt"

	"github.com/ha1tch/tdsdriver/tdserrors"
)

// Resolver resolves a named instance on server to the port it is
// currently listening on.
type Resolver interface {
	Resolve(ctx context.Context, server, instanceName string) (port int, err error)
}

// NoLookup is the default Resolver: every call fails with EINSTLOOKUP,
// the same outcome spec.md describes for "ask the external
// instance-lookup collaborator ... On lookup failure, emit
// connect(error)". A Config with no Resolver set uses this, so a build
// that never wires in a real SQL Browser client still behaves
// correctly — it just can't use instanceName, only an explicit port.
type NoLookup struct{}

func (NoLookup) Resolve(ctx context.Context, server, instanceName string) (int, error) {
	return 0, tdserrors.NewConnectionError(tdserrors.EInstLookup,
		fmt.Sprintf("no instance resolver configured: cannot resolve %q on %q", instanceName, server))
}
