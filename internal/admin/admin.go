package admin

import (
	"sort"

	"github.com/martinfeng/kiro-relay/internal/account"
	"github.com/martinfeng/kiro-relay/internal/pool"
)

// CredentialSummary is one row of the GET /api/admin/credentials response.
type CredentialSummary struct {
	ID           string `json:"id"`
	Email        string `json:"email"`
	AuthMethod   string `json:"authMethod"`
	Disabled     bool   `json:"disabled"`
	FailureCount uint64 `json:"failureCount"`
	Priority     int    `json:"priority"`
	IsCurrent    bool   `json:"isCurrent"`
}

// CredentialsView is the full GET /api/admin/credentials response body.
type CredentialsView struct {
	Total       int                 `json:"total"`
	Available   int                 `json:"available"`
	CurrentID   string              `json:"currentId"`
	Credentials []CredentialSummary `json:"credentials"`
}

// Surface wires the Credential Store and Account Pool into the admin
// control-surface operations: listing, enabling, resetting credentials
// and switching the load-balancing mode. It holds no HTTP state of its own.
type Surface struct {
	store *account.CredentialStore
	pool  *pool.Pool
}

func NewSurface(store *account.CredentialStore, p *pool.Pool) *Surface {
	return &Surface{store: store, pool: p}
}

// ListCredentials builds the admin view, sorted by id for stable output.
// currentId is the account with the most recent lastUsedAt, the best
// available proxy for "the one a new request would most likely reuse"
// since selection itself is policy-dependent and has no fixed "current".
func (s *Surface) ListCredentials() CredentialsView {
	accounts := s.store.Snapshot()
	sort.Slice(accounts, func(i, j int) bool { return accounts[i].ID < accounts[j].ID })

	var currentID string
	var currentAt int64
	available := 0
	rows := make([]CredentialSummary, 0, len(accounts))
	for _, a := range accounts {
		if a.Status == account.StatusActive {
			available++
		}
		if a.LastUsedAt != nil && a.LastUsedAt.Unix() > currentAt {
			currentAt = a.LastUsedAt.Unix()
			currentID = a.ID
		}
		rows = append(rows, CredentialSummary{
			ID:           a.ID,
			Email:        a.Name,
			AuthMethod:   string(a.Credentials.AuthMethod),
			Disabled:     a.Status == account.StatusDisabled,
			FailureCount: a.ErrorCount,
			Priority:     a.Priority,
		})
	}
	for i := range rows {
		rows[i].IsCurrent = rows[i].ID == currentID
	}

	return CredentialsView{Total: len(rows), Available: available, CurrentID: currentID, Credentials: rows}
}

// SetDisabled toggles an account's disabled state. Rejected in shared-file
// mode, per the pool's write-operation restriction.
func (s *Surface) SetDisabled(id string, disabled bool) error {
	if disabled {
		return s.pool.Disable(id)
	}
	return s.pool.Enable(id)
}

// ResetCredential resets an account's counters and status to active.
func (s *Surface) ResetCredential(id string) error {
	return s.pool.Reset(id)
}

// LoadBalancingMode mirrors the admin surface's "priority"|"balanced"
// vocabulary onto the pool's internal policy names: "priority" maps to
// least-used (the
// pool picks the account with the smallest request count, approximating a
// priority ordering without a separate priority-aware selection path) and
// "balanced" maps to round-robin.
type LoadBalancingMode string

const (
	ModePriority LoadBalancingMode = "priority"
	ModeBalanced LoadBalancingMode = "balanced"
)

func (s *Surface) GetLoadBalancingMode() LoadBalancingMode {
	if s.pool.Policy() == pool.PolicyLeastUsed {
		return ModePriority
	}
	return ModeBalanced
}

func (s *Surface) SetLoadBalancingMode(mode LoadBalancingMode) {
	switch mode {
	case ModePriority:
		s.pool.SetPolicy(pool.PolicyLeastUsed)
	default:
		s.pool.SetPolicy(pool.PolicyRoundRobin)
	}
}
