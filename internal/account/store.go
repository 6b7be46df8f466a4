package account

import (
	"fmt"
	"sync"
	"time"
)

// CredentialStore is the in-memory mapping from account id to account
// record plus its cached access token and expiry. It owns the sealed
// secrets; callers never see plaintext tokens except via the decrypt
// accessors, and only for the instant they need them.
type CredentialStore struct {
	mu       sync.RWMutex
	accounts map[string]*Account
	crypto   *Crypto
}

func NewCredentialStore(crypto *Crypto) *CredentialStore {
	return &CredentialStore{
		accounts: make(map[string]*Account),
		crypto:   crypto,
	}
}

// Get returns a cloned snapshot of the account, safe to read without
// holding the store's lock.
func (s *CredentialStore) Get(id string) (*Account, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.accounts[id]
	if !ok {
		return nil, false
	}
	return a.Clone(), true
}

// Snapshot returns cloned copies of every account, for admin listing.
func (s *CredentialStore) Snapshot() []*Account {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Account, 0, len(s.accounts))
	for _, a := range s.accounts {
		out = append(out, a.Clone())
	}
	return out
}

// WithLock runs fn with direct access to the live account map under the
// store's write lock. The Account Pool uses this to make selection,
// counter updates and state transitions atomic as one critical section,
// per the concurrency model's requirement that lastUsedAt and
// requestCount move together with the choice.
func (s *CredentialStore) WithLock(fn func(accounts map[string]*Account)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(s.accounts)
}

// Put inserts or replaces a single account. It does not consult the
// pool's shared-file mode.
func (s *CredentialStore) Put(a *Account) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accounts[a.ID] = a
}

func (s *CredentialStore) Delete(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.accounts, id)
}

// SyncFromFile atomically swaps in a new account set parsed from the
// shared file. Records absent from incoming are dropped. Records present
// in both the old and new set preserve their runtime counters and a
// cooldown status, per the Shared-File Synchronizer's contract.
func (s *CredentialStore) SyncFromFile(incoming []*Account) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := make(map[string]*Account, len(incoming))
	for _, in := range incoming {
		if existing, ok := s.accounts[in.ID]; ok {
			in.RequestCount = existing.RequestCount
			in.ErrorCount = existing.ErrorCount
			in.LastUsedAt = existing.LastUsedAt
			if existing.Status == StatusCooldown {
				in.Status = StatusCooldown
				in.CooldownUntil = existing.CooldownUntil
			}
		} else if in.CreatedAt.IsZero() {
			in.CreatedAt = time.Now().UTC()
		}
		next[in.ID] = in
	}
	s.accounts = next
}

// --- sealed secret accessors ---

// SealRefreshToken encrypts a plaintext refresh token for storage.
func (s *CredentialStore) SealRefreshToken(plaintext string) (string, error) {
	return s.crypto.Encrypt(plaintext, cryptoSalt)
}

func (s *CredentialStore) SealClientSecret(plaintext string) (string, error) {
	return s.crypto.Encrypt(plaintext, cryptoSalt)
}

// DecryptedRefreshToken returns the plaintext refresh token for id.
func (s *CredentialStore) DecryptedRefreshToken(id string) (string, error) {
	s.mu.RLock()
	a, ok := s.accounts[id]
	s.mu.RUnlock()
	if !ok {
		return "", fmt.Errorf("account %s not found", id)
	}
	return s.crypto.Decrypt(a.Credentials.RefreshToken, cryptoSalt)
}

func (s *CredentialStore) DecryptedAccessToken(id string) (string, error) {
	s.mu.RLock()
	a, ok := s.accounts[id]
	s.mu.RUnlock()
	if !ok {
		return "", fmt.Errorf("account %s not found", id)
	}
	return s.crypto.Decrypt(a.Credentials.AccessToken, cryptoSalt)
}

func (s *CredentialStore) DecryptedClientSecret(id string) (string, error) {
	s.mu.RLock()
	a, ok := s.accounts[id]
	s.mu.RUnlock()
	if !ok {
		return "", fmt.Errorf("account %s not found", id)
	}
	return s.crypto.Decrypt(a.Credentials.ClientSecret, cryptoSalt)
}

// StoreTokens seals and stores new tokens after a successful refresh,
// computing the new expiry as now + min(upstreamReportedTTL, safetyCap).
func (s *CredentialStore) StoreTokens(id, accessToken, refreshToken string, ttl, safetyCap time.Duration) error {
	if ttl > safetyCap {
		ttl = safetyCap
	}

	encAccess, err := s.crypto.Encrypt(accessToken, cryptoSalt)
	if err != nil {
		return fmt.Errorf("seal access token: %w", err)
	}
	encRefresh, err := s.crypto.Encrypt(refreshToken, cryptoSalt)
	if err != nil {
		return fmt.Errorf("seal refresh token: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[id]
	if !ok {
		return fmt.Errorf("account %s not found", id)
	}
	a.Credentials.AccessToken = encAccess
	a.Credentials.RefreshToken = encRefresh
	a.Credentials.ExpiresAt = time.Now().UTC().Add(ttl)
	return nil
}

// MarkInvalid transitions id to invalid, used when a refresh is rejected.
func (s *CredentialStore) MarkInvalid(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if a, ok := s.accounts[id]; ok {
		a.Status = StatusInvalid
	}
}
