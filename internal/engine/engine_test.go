package engine

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/martinfeng/kiro-relay/internal/account"
	"github.com/martinfeng/kiro-relay/internal/config"
	"github.com/martinfeng/kiro-relay/internal/log"
	"github.com/martinfeng/kiro-relay/internal/pool"
	"github.com/martinfeng/kiro-relay/internal/relayerr"
	"github.com/martinfeng/kiro-relay/internal/resolver"
	"github.com/martinfeng/kiro-relay/internal/translate"
	"github.com/martinfeng/kiro-relay/internal/upstream"
)

func newTestEngine(t *testing.T, mappings []resolver.Mapping, ids ...string) *Engine {
	t.Helper()
	r, err := resolver.New(mappings)
	if err != nil {
		t.Fatalf("new resolver: %v", err)
	}

	store := account.NewCredentialStore(account.NewCrypto("k"))
	for _, id := range ids {
		store.Put(&account.Account{ID: id, Status: account.StatusActive, CreatedAt: time.Now()})
	}
	p := pool.New(store, nil, pool.PolicyRoundRobin, 5*time.Minute)
	live := make(map[string]bool, len(ids))
	for _, id := range ids {
		live[id] = true
	}
	p.TrackOrder(live)

	refresher := account.NewTokenRefresher(account.RefresherConfig{Timeout: time.Second})
	caller, err := upstream.NewCaller("us-east-1", "1.0", "m1", "", time.Second)
	if err != nil {
		t.Fatalf("new caller: %v", err)
	}

	return New(r, p, store, refresher, translate.NewTranslator(), caller, log.NewRing(10), config.CompatBalanced)
}

func TestHandleReturnsUnsupportedModelWithoutSelectingAccount(t *testing.T) {
	e := newTestEngine(t, []resolver.Mapping{
		{ExternalPattern: "known", InternalID: "internal-known", MatchType: resolver.MatchExact, Enabled: true},
	}, "A")

	_, err := e.Handle(context.Background(), translate.Request{Model: "unknown-model"}, "sess-1")
	if relayerr.KindOf(err) != relayerr.KindUnsupportedModel {
		t.Fatalf("expected UnsupportedModel, got %v", err)
	}
}

func TestHandleReturnsNoAvailableAccountWhenPoolEmpty(t *testing.T) {
	e := newTestEngine(t, []resolver.Mapping{
		{ExternalPattern: "known", InternalID: "internal-known", MatchType: resolver.MatchExact, Enabled: true},
	})

	_, err := e.Handle(context.Background(), translate.Request{Model: "known"}, "sess-1")
	if relayerr.KindOf(err) != relayerr.KindNoAvailableAccount {
		t.Fatalf("expected NoAvailableAccount, got %v", err)
	}
}

// TestHandleRetriesTokenRevokedWithAnotherAccountThenGivesUp exercises the
// cross-account retry budget entirely through the refresh path, so it never
// needs to reach the upstream caller (same network limitation noted in
// upstream_test.go): both seeded accounts have their refresh token rejected,
// so Handle must mark the first invalid, re-select the second (the single
// TokenRevoked retry), mark it invalid too, and then give up with
// TokenRevoked since that single retry is already spent.
func TestHandleRetriesTokenRevokedWithAnotherAccountThenGivesUp(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error":"invalid_grant"}`))
	}))
	defer srv.Close()

	r, err := resolver.New([]resolver.Mapping{
		{ExternalPattern: "known", InternalID: "internal-known", MatchType: resolver.MatchExact, Enabled: true},
	})
	if err != nil {
		t.Fatalf("new resolver: %v", err)
	}

	crypto := account.NewCrypto("k")
	store := account.NewCredentialStore(crypto)
	for _, id := range []string{"A", "B"} {
		sealed, err := store.SealRefreshToken("refresh-" + id)
		if err != nil {
			t.Fatalf("seal refresh token: %v", err)
		}
		store.Put(&account.Account{
			ID:          id,
			Status:      account.StatusActive,
			Credentials: account.Credentials{RefreshToken: sealed, AuthMethod: account.AuthSocial},
			CreatedAt:   time.Now(),
		})
	}
	p := pool.New(store, nil, pool.PolicyRoundRobin, 5*time.Minute)
	p.TrackOrder(map[string]bool{"A": true, "B": true})

	refresher := account.NewTokenRefresher(account.RefresherConfig{SocialTokenURL: srv.URL, Timeout: time.Second})
	caller, err := upstream.NewCaller("us-east-1", "1.0", "m1", "", time.Second)
	if err != nil {
		t.Fatalf("new caller: %v", err)
	}

	e := New(r, p, store, refresher, translate.NewTranslator(), caller, log.NewRing(10), config.CompatBalanced)

	_, err = e.Handle(context.Background(), translate.Request{Model: "known"}, "sess-1")
	if relayerr.KindOf(err) != relayerr.KindTokenRevoked {
		t.Fatalf("expected TokenRevoked after exhausting the retry budget, got %v", err)
	}

	for _, id := range []string{"A", "B"} {
		a, ok := store.Get(id)
		if !ok || a.Status != account.StatusInvalid {
			t.Fatalf("expected account %s marked invalid, got %+v", id, a)
		}
	}
}
