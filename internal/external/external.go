// Package external defines the interfaces this module expects a host
// process to implement for concerns that are explicitly out of scope here:
// relational persistence, process supervision and HTTP routing. No
// implementation lives in this package; it exists so the rest of the
// module can be compiled and tested against these boundaries without
// pulling in a database driver, a process manager or an HTTP router.
package external

import (
	"context"
	"net/http"

	"github.com/martinfeng/kiro-relay/internal/account"
)

// AccountPersister loads and saves account records to whatever relational
// store a host process chooses to run. Relational persistence is a
// "persistence primitive" this module deliberately leaves external, so it
// only ever reads accounts from the Shared-File Synchronizer, never from a
// database directly.
type AccountPersister interface {
	LoadAccounts(ctx context.Context) ([]*account.Account, error)
	SaveAccount(ctx context.Context, a *account.Account) error
}

// ProcessSupervisor starts, stops and health-checks the engine binary this
// module is compiled into. Process lifecycle and OS-level installer
// concerns belong to the host, not to the relay logic itself.
type ProcessSupervisor interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Healthy(ctx context.Context) bool
}

// AdminTransport registers the admin control surface's operations against
// a caller-supplied router. This module exposes only the plain functions
// in internal/admin; wiring them to routes, CORS and auth middleware is
// the host's responsibility.
type AdminTransport interface {
	RegisterRoutes(mux *http.ServeMux)
}
