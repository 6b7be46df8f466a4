// Package pool implements the Account Pool: holds the Credential Store,
// exposes selection under three policies (round-robin, random,
// least-used), records per-account counters, and drives cooldown and
// invalidation state transitions.
package pool

import (
	"math/rand"
	"sync"
	"time"

	"github.com/martinfeng/kiro-relay/internal/account"
	"github.com/martinfeng/kiro-relay/internal/events"
	"github.com/martinfeng/kiro-relay/internal/relayerr"
)

type Policy string

const (
	PolicyRoundRobin Policy = "round-robin"
	PolicyRandom     Policy = "random"
	PolicyLeastUsed  Policy = "least-used"
)

// Pool wraps a CredentialStore with selection policy state. Selection,
// counter updates and state transitions are one atomic critical section
// via the store's WithLock.
type Pool struct {
	store          *account.CredentialStore
	bus            *events.Bus
	policy         Policy
	cooldownWindow time.Duration

	mu        sync.Mutex // guards policy, cursor, order and sharedMode only
	cursor    int
	order     []string // insertion order, for least-used tie-breaking
	rng       *rand.Rand
	sharedMode bool
}

func New(store *account.CredentialStore, bus *events.Bus, policy Policy, cooldownWindow time.Duration) *Pool {
	return &Pool{
		store:          store,
		bus:            bus,
		policy:         policy,
		cooldownWindow: cooldownWindow,
		rng:            rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Policy returns the pool's current selection policy.
func (p *Pool) Policy() Policy {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.policy
}

// SetPolicy changes the selection policy the admin control surface's
// load-balancing-mode endpoint exposes. Round-robin's cursor is left as is;
// switching policies mid-flight does not require resetting it, since the
// cursor is only ever read modulo the current eligible-account count.
func (p *Pool) SetPolicy(policy Policy) {
	p.mu.Lock()
	p.policy = policy
	p.mu.Unlock()
}

// SetSharedMode marks the pool as shared-file backed: Enable, Disable and
// Reset are rejected while true. The pool has no Add or Remove operation.
func (p *Pool) SetSharedMode(shared bool) {
	p.mu.Lock()
	p.sharedMode = shared
	p.mu.Unlock()
}

func (p *Pool) IsSharedMode() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.sharedMode
}

// TrackOrder records id's position in insertion order if not already
// tracked, and drops ids no longer present. Called by the synchronizer
// after every sync. Ids first seen in the same call are appended in map
// iteration order, so their relative order is not defined.
func (p *Pool) TrackOrder(liveIDs map[string]bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	next := make([]string, 0, len(p.order))
	seen := make(map[string]bool, len(p.order))
	for _, id := range p.order {
		if liveIDs[id] {
			next = append(next, id)
			seen[id] = true
		}
	}
	for id := range liveIDs {
		if !seen[id] {
			next = append(next, id)
		}
	}
	p.order = next
}

// Select picks one active account per the configured policy. Counters and
// the round-robin cursor update atomically with the choice, under the
// store's lock, so lastUsedAt and requestCount always move together.
func (p *Pool) Select() (*account.Account, error) {
	var selected *account.Account
	var selectErr error

	p.store.WithLock(func(accounts map[string]*account.Account) {
		eligible := p.eligibleLocked(accounts)
		if len(eligible) == 0 {
			selectErr = relayerr.New(relayerr.KindNoAvailableAccount, "no active accounts in pool")
			return
		}

		p.mu.Lock()
		policy := p.policy
		p.mu.Unlock()

		switch policy {
		case PolicyRandom:
			selected = eligible[p.rng.Intn(len(eligible))]
		case PolicyLeastUsed:
			selected = eligible[0]
			for _, a := range eligible[1:] {
				if a.RequestCount < selected.RequestCount {
					selected = a
				}
			}
		default: // PolicyRoundRobin
			p.mu.Lock()
			idx := p.cursor % len(eligible)
			p.cursor++
			p.mu.Unlock()
			selected = eligible[idx]
		}

		now := time.Now().UTC()
		selected.RequestCount++
		selected.LastUsedAt = &now
	})

	if selectErr != nil {
		return nil, selectErr
	}
	return selected.Clone(), nil
}

// eligibleLocked returns active accounts in stable insertion order, the
// ordering least-used ties and round-robin indices are computed against.
// Must be called with the store's write lock already held.
func (p *Pool) eligibleLocked(accounts map[string]*account.Account) []*account.Account {
	p.mu.Lock()
	order := p.order
	p.mu.Unlock()

	var eligible []*account.Account
	seen := make(map[string]bool, len(order))
	for _, id := range order {
		if a, ok := accounts[id]; ok && a.Status == account.StatusActive {
			eligible = append(eligible, a)
		}
		seen[id] = true
	}
	// Any account not yet tracked in order (pool used before a sync/track
	// call) is still eligible; append in map iteration order as a fallback.
	for id, a := range accounts {
		if seen[id] {
			continue
		}
		if a.Status == account.StatusActive {
			eligible = append(eligible, a)
		}
	}
	return eligible
}

// RecordError increments the error counter and, for rate-limit errors,
// transitions the account to cooldown with an automatic recovery
// deadline. Fatal auth errors are reported via MarkInvalid instead.
func (p *Pool) RecordError(id string, isRateLimit bool) {
	p.store.WithLock(func(accounts map[string]*account.Account) {
		a, ok := accounts[id]
		if !ok {
			return
		}
		a.ErrorCount++
		if isRateLimit {
			a.Status = account.StatusCooldown
			until := time.Now().UTC().Add(p.cooldownWindow)
			a.CooldownUntil = &until
		}
	})
	if isRateLimit {
		p.publish(events.EventCooldown, id, "rate limit")
	}
}

// MarkInvalid transitions id to invalid unconditionally.
func (p *Pool) MarkInvalid(id string) {
	p.store.WithLock(func(accounts map[string]*account.Account) {
		if a, ok := accounts[id]; ok {
			a.Status = account.StatusInvalid
			a.CooldownUntil = nil
		}
	})
	p.publish(events.EventInvalid, id, "fatal auth error")
}

// RecoverCooldown moves id from cooldown to active, ignored if id is not
// currently in cooldown.
func (p *Pool) RecoverCooldown(id string) {
	p.store.WithLock(func(accounts map[string]*account.Account) {
		if a, ok := accounts[id]; ok && a.Status == account.StatusCooldown {
			a.Status = account.StatusActive
			a.CooldownUntil = nil
		}
	})
	p.publish(events.EventRecover, id, "manual recover")
}

// RecoverAllCooldowns moves every cooldown account to active.
func (p *Pool) RecoverAllCooldowns() {
	p.store.WithLock(func(accounts map[string]*account.Account) {
		for _, a := range accounts {
			if a.Status == account.StatusCooldown {
				a.Status = account.StatusActive
				a.CooldownUntil = nil
			}
		}
	})
}

// Enable/Disable are rejected in shared-file mode, per the Shared-File
// Synchronizer's write-operation restriction.
func (p *Pool) Enable(id string) error {
	if p.IsSharedMode() {
		return relayerr.New(relayerr.KindConfigurationError, "enable rejected: pool is in shared-file mode")
	}
	p.store.WithLock(func(accounts map[string]*account.Account) {
		if a, ok := accounts[id]; ok && a.Status == account.StatusDisabled {
			a.Status = account.StatusActive
		}
	})
	return nil
}

func (p *Pool) Disable(id string) error {
	if p.IsSharedMode() {
		return relayerr.New(relayerr.KindConfigurationError, "disable rejected: pool is in shared-file mode")
	}
	p.store.WithLock(func(accounts map[string]*account.Account) {
		if a, ok := accounts[id]; ok {
			a.Status = account.StatusDisabled
		}
	})
	return nil
}

// Reset clears an account's counters and restores it to active, for the
// admin control surface's reset operation. Rejected in shared-file mode,
// same as Enable/Disable.
func (p *Pool) Reset(id string) error {
	if p.IsSharedMode() {
		return relayerr.New(relayerr.KindConfigurationError, "reset rejected: pool is in shared-file mode")
	}
	p.store.WithLock(func(accounts map[string]*account.Account) {
		if a, ok := accounts[id]; ok {
			a.Status = account.StatusActive
			a.RequestCount = 0
			a.ErrorCount = 0
			a.CooldownUntil = nil
		}
	})
	return nil
}

// RunCooldownSweeper periodically flips expired cooldowns back to active.
// It re-checks each account's state under the store's lock immediately
// before mutating, so a manual recovery or a subsequent invalidation that
// raced ahead of the timer is never clobbered.
func (p *Pool) RunCooldownSweeper(stop <-chan struct{}, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			p.sweepCooldowns()
		}
	}
}

func (p *Pool) sweepCooldowns() {
	var recovered []string
	now := time.Now().UTC()
	p.store.WithLock(func(accounts map[string]*account.Account) {
		for id, a := range accounts {
			if a.Status != account.StatusCooldown || a.CooldownUntil == nil {
				continue
			}
			if now.After(*a.CooldownUntil) {
				a.Status = account.StatusActive
				a.CooldownUntil = nil
				recovered = append(recovered, id)
			}
		}
	})
	for _, id := range recovered {
		p.publish(events.EventRecover, id, "cooldown window elapsed")
	}
}

func (p *Pool) publish(t events.EventType, accountID, msg string) {
	if p.bus == nil {
		return
	}
	p.bus.Publish(events.Event{Type: t, AccountID: accountID, Message: msg})
}
