// Package syncfile implements the Shared-File Synchronizer: a one-way
// importer from an external JSON file that enumerates accounts, debounced
// by file mtime, following the same best-effort ticker idiom the rate
// limit manager and transport pool use for background cleanup.
package syncfile

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/martinfeng/kiro-relay/internal/account"
)

// rawRecord accepts both camelCase and snake_case field variants, per the
// shared accounts file's external interface.
type rawRecord struct {
	ID       string `json:"id"`
	Email    string `json:"email"`
	Label    string `json:"label"`
	Status   string `json:"status"`
	Provider string `json:"provider"`

	RefreshToken  string `json:"refreshToken"`
	RefreshToken2 string `json:"refresh_token"`
	AccessToken   string `json:"accessToken"`
	AccessToken2  string `json:"access_token"`

	ExpiresAt  json.RawMessage `json:"expiresAt"`
	ExpiresAt2 json.RawMessage `json:"expires_at"`

	MachineID  string `json:"machineId"`
	MachineID2 string `json:"machine_id"`

	ClientID      string `json:"clientId"`
	ClientID2     string `json:"client_id"`
	ClientSecret  string `json:"clientSecret"`
	ClientSecret2 string `json:"client_secret"`

	Region string `json:"region"`

	AddedAt   string `json:"addedAt"`
	AddedAt2  string `json:"added_at"`
	CreatedAt string `json:"createdAt"`

	Usage     json.RawMessage `json:"usage"`
	UsageData json.RawMessage `json:"usageData"`
	UsageData2 json.RawMessage `json:"usage_data"`
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

var idcHint = regexp.MustCompile(`(?i)idc|identity center|builder`)

var invalidStatus = regexp.MustCompile(`(?i)invalid|ban|封禁|失效`)
var disabledStatus = regexp.MustCompile(`(?i)disabled|禁用`)
var cooldownStatus = regexp.MustCompile(`(?i)cooldown|冷却`)

func normalizeStatus(s string) account.Status {
	switch {
	case invalidStatus.MatchString(s):
		return account.StatusInvalid
	case disabledStatus.MatchString(s):
		return account.StatusDisabled
	case cooldownStatus.MatchString(s):
		return account.StatusCooldown
	default:
		return account.StatusActive
	}
}

func parseExpiry(a, b json.RawMessage) time.Time {
	raw := strings.Trim(string(a), `"`)
	if raw == "" || raw == "null" {
		raw = strings.Trim(string(b), `"`)
	}
	if raw == "" || raw == "null" {
		return time.Time{}
	}
	if ms, err := strconv.ParseInt(raw, 10, 64); err == nil {
		// Heuristic: values above 10^12 are already epoch milliseconds;
		// smaller values are epoch seconds.
		if ms > 1_000_000_000_000 {
			return time.UnixMilli(ms)
		}
		return time.Unix(ms, 0)
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t
	}
	return time.Time{}
}

func parseCreatedAt(vals ...string) time.Time {
	for _, v := range vals {
		if v == "" {
			continue
		}
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			return t
		}
	}
	return time.Time{}
}

func toAccount(r rawRecord) (*account.Account, error) {
	if r.ID == "" {
		return nil, fmt.Errorf("record missing id")
	}
	refresh := firstNonEmpty(r.RefreshToken, r.RefreshToken2)
	if refresh == "" {
		return nil, fmt.Errorf("record %s missing refreshToken", r.ID)
	}

	clientID := firstNonEmpty(r.ClientID, r.ClientID2)
	clientSecret := firstNonEmpty(r.ClientSecret, r.ClientSecret2)

	authMethod := account.AuthSocial
	if clientID != "" || clientSecret != "" || idcHint.MatchString(r.Provider) {
		authMethod = account.AuthIDC
		if clientID == "" || clientSecret == "" {
			return nil, fmt.Errorf("record %s: idc auth requires clientId and clientSecret", r.ID)
		}
	}

	return &account.Account{
		ID:     r.ID,
		Name:   firstNonEmpty(r.Label, r.Email, r.ID),
		Status: normalizeStatus(r.Status),
		Credentials: account.Credentials{
			RefreshToken: refresh, // sealed by the caller before store insertion
			AccessToken:  firstNonEmpty(r.AccessToken, r.AccessToken2),
			ExpiresAt:    parseExpiry(r.ExpiresAt, r.ExpiresAt2),
			MachineID:    firstNonEmpty(r.MachineID, r.MachineID2),
			Region:       r.Region,
			AuthMethod:   authMethod,
			ClientID:     clientID,
			ClientSecret: clientSecret, // sealed by the caller before store insertion
		},
		CreatedAt: parseCreatedAt(r.AddedAt, r.AddedAt2, r.CreatedAt),
	}, nil
}

// Synchronizer is the one-way importer: when configured with a path, the
// account pool's store is treated as read-only except through this
// component.
type Synchronizer struct {
	path   string
	store  *account.CredentialStore
	onSync func(ids map[string]bool) // notifies the pool to refresh order

	mu            sync.Mutex // serializes concurrent Sync calls (single in-flight)
	lastSeenMtime time.Time
	warnedMissing bool
}

func New(path string, store *account.CredentialStore, onSync func(ids map[string]bool)) *Synchronizer {
	return &Synchronizer{path: path, store: store, onSync: onSync}
}

// Sync stats the file; if mtime advanced or force is set, it reads,
// parses and swaps in the new account set. At most one sync runs at a
// time — concurrent callers block on the mutex and observe the same
// outcome as the caller that actually performed the read.
func (s *Synchronizer) Sync(force bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	info, err := os.Stat(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			if !s.warnedMissing {
				slog.Warn("accounts file missing, treating as empty", "path", s.path)
				s.warnedMissing = true
			}
			s.store.SyncFromFile(nil)
			if s.onSync != nil {
				s.onSync(map[string]bool{})
			}
			return nil
		}
		return fmt.Errorf("stat accounts file: %w", err)
	}
	s.warnedMissing = false

	if !force && !info.ModTime().After(s.lastSeenMtime) {
		return nil
	}

	data, err := os.ReadFile(s.path)
	if err != nil {
		return fmt.Errorf("read accounts file: %w", err)
	}

	var raws []rawRecord
	if err := json.Unmarshal(data, &raws); err != nil {
		return fmt.Errorf("parse accounts file (must be a JSON array): %w", err)
	}

	parsed := make([]*account.Account, 0, len(raws))
	for _, r := range raws {
		a, err := toAccount(r)
		if err != nil {
			slog.Warn("skipping invalid account record", "error", err)
			continue
		}
		sealedRefresh, err := s.store.SealRefreshToken(a.Credentials.RefreshToken)
		if err != nil {
			slog.Warn("seal refresh token failed, skipping record", "id", a.ID, "error", err)
			continue
		}
		a.Credentials.RefreshToken = sealedRefresh
		if a.Credentials.AccessToken != "" {
			if sealed, err := s.store.SealRefreshToken(a.Credentials.AccessToken); err == nil {
				a.Credentials.AccessToken = sealed
			}
		}
		if a.Credentials.ClientSecret != "" {
			if sealed, err := s.store.SealClientSecret(a.Credentials.ClientSecret); err == nil {
				a.Credentials.ClientSecret = sealed
			}
		}
		parsed = append(parsed, a)
	}

	s.store.SyncFromFile(parsed)
	s.lastSeenMtime = info.ModTime()

	live := make(map[string]bool, len(parsed))
	for _, a := range parsed {
		live[a.ID] = true
	}
	if s.onSync != nil {
		s.onSync(live)
	}

	slog.Info("accounts file synced", "path", s.path, "count", len(parsed))
	return nil
}

// Run periodically syncs on the given interval until stop is closed.
// Failures are logged and never block request handling.
func (s *Synchronizer) Run(stop <-chan struct{}, interval, readTimeout time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			done := make(chan struct{})
			go func() {
				if err := s.Sync(false); err != nil {
					slog.Error("periodic accounts sync failed", "error", err)
				}
				close(done)
			}()
			select {
			case <-done:
			case <-time.After(readTimeout):
				slog.Warn("accounts sync exceeded read timeout, will retry next tick")
			}
		}
	}
}
