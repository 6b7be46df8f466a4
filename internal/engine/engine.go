// Package engine orchestrates one conversation request end to end: resolve
// the caller's model name, pick an account, ensure its token is fresh,
// translate the request, and drive the degradation retry ladder against
// the upstream until a 2xx response comes back or every mode is
// exhausted. It has no net/http route of its own; a host HTTP server
// calls Handle and streams the result, per the "HTTP plumbing is an
// external collaborator" boundary (internal/external.AdminTransport
// covers the admin side of that same boundary).
package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/martinfeng/kiro-relay/internal/account"
	"github.com/martinfeng/kiro-relay/internal/config"
	"github.com/martinfeng/kiro-relay/internal/degrade"
	"github.com/martinfeng/kiro-relay/internal/log"
	"github.com/martinfeng/kiro-relay/internal/pool"
	"github.com/martinfeng/kiro-relay/internal/relayerr"
	"github.com/martinfeng/kiro-relay/internal/resolver"
	"github.com/martinfeng/kiro-relay/internal/translate"
	"github.com/martinfeng/kiro-relay/internal/upstream"
)

// Engine holds every long-lived collaborator one request needs. One Engine
// is shared across requests; it carries no per-request state.
type Engine struct {
	resolver   *resolver.Resolver
	pool       *pool.Pool
	store      *account.CredentialStore
	refresher  *account.TokenRefresher
	translator *translate.Translator
	caller     *upstream.Caller
	logs       *log.Ring
	compat     config.CompatMode
}

func New(
	r *resolver.Resolver,
	p *pool.Pool,
	store *account.CredentialStore,
	refresher *account.TokenRefresher,
	translator *translate.Translator,
	caller *upstream.Caller,
	logs *log.Ring,
	compat config.CompatMode,
) *Engine {
	return &Engine{
		resolver:   r,
		pool:       p,
		store:      store,
		refresher:  refresher,
		translator: translator,
		caller:     caller,
		logs:       logs,
		compat:     compat,
	}
}

// Result is a completed attempt: the upstream response, which account
// served it, and which degradation mode (if any) it took to get a 2xx.
type Result struct {
	Response     *upstream.Response
	AccountID    string
	FallbackMode degrade.Mode
}

const (
	// maxTokenRevokedRetries is how many times Handle re-selects a fresh
	// account after TokenRevoked before giving up and surfacing 503.
	maxTokenRevokedRetries = 1
	// maxRateLimitedRetries is how many times Handle re-selects a fresh
	// account after a 429 before giving up.
	maxRateLimitedRetries = 2
	// transientRetryDelay is the fixed backoff before the single retry a
	// network error or upstream 5xx gets, on the same account and attempt
	// body.
	transientRetryDelay = 500 * time.Millisecond
)

// Handle resolves req.Model, translates req once, then drives account
// selection and the degradation ladder until a 2xx response or every
// retry budget is exhausted. Every attempt is logged to the ring buffer
// regardless of outcome.
//
// Account selection retries per the documented budgets: TokenRevoked
// re-selects a fresh account once, UpstreamRateLimited up to twice. Both
// work by relying on the pool's own eligibility rules — MarkInvalid and
// RecordError(isRateLimit=true) make the failing account ineligible, so
// the next Select naturally lands on a different one (or reports
// NoAvailableAccount if none remain).
func (e *Engine) Handle(ctx context.Context, req translate.Request, sessionID string) (*Result, error) {
	internalModel, err := e.resolver.ResolveWith(req.Model)
	if err != nil {
		return nil, err
	}
	req.Model = internalModel

	out := e.translator.Translate(req)
	attempts := degrade.BuildAttempts(out.Body, out.Body.ConversationState.History, e.compat)

	var lastErr error
	tokenRetries, rateLimitRetries := 0, 0

	for {
		acct, err := e.pool.Select()
		if err != nil {
			if lastErr != nil {
				return nil, lastErr
			}
			return nil, err
		}

		token, err := e.refresher.EnsureValidToken(ctx, e.store, acct.ID)
		if err != nil {
			if relayerr.KindOf(err) == relayerr.KindTokenRevoked {
				e.pool.MarkInvalid(acct.ID)
				if tokenRetries < maxTokenRevokedRetries {
					tokenRetries++
					lastErr = err
					continue
				}
			}
			return nil, err
		}

		result, rateLimited, err := e.runLadder(ctx, attempts, token, acct.ID, req.Model, sessionID)
		if err == nil {
			return result, nil
		}
		if rateLimited && rateLimitRetries < maxRateLimitedRetries {
			rateLimitRetries++
			lastErr = err
			continue
		}
		return nil, err
	}
}

// runLadder drives the degradation ladder for one account's token. It
// returns rateLimited=true when the failure was a 429, so Handle knows to
// re-select a different account rather than trying the next degradation
// mode on the same one.
func (e *Engine) runLadder(ctx context.Context, attempts []degrade.Attempt, token, accountID, model, sessionID string) (*Result, bool, error) {
	for i, attempt := range attempts {
		resp, duration, callErr := e.callWithTransientRetry(ctx, token, attempt.Body)

		if callErr != nil {
			e.logAttempt(sessionID, model, accountID, 0, callErr.Error(), duration, attempt.Mode)
			return nil, false, relayerr.Wrap(relayerr.KindUpstreamTransient, "upstream call", callErr)
		}

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			e.pool.CaptureUsageHeaders(accountID, resp.Header)
			e.logAttempt(sessionID, model, accountID, resp.StatusCode, "", duration, attempt.Mode)
			return &Result{Response: resp, AccountID: accountID, FallbackMode: attempt.Mode}, false, nil
		}

		body := upstream.ReadErrorBody(resp)
		e.logAttempt(sessionID, model, accountID, resp.StatusCode, string(body), duration, attempt.Mode)

		if resp.StatusCode == 429 {
			e.pool.RecordError(accountID, true)
			return nil, true, relayerr.New(relayerr.KindUpstreamRateLimited, "upstream rate limited")
		}
		if resp.StatusCode >= 500 {
			e.pool.RecordError(accountID, false)
			return nil, false, relayerr.New(relayerr.KindUpstreamTransient, fmt.Sprintf("upstream returned %d after retry", resp.StatusCode))
		}
		if resp.StatusCode == 401 || resp.StatusCode == 403 {
			e.pool.MarkInvalid(accountID)
		}

		if !degrade.ShouldRetry(resp.StatusCode, body) || i == len(attempts)-1 {
			return nil, false, degrade.Exhausted(attempt.Mode, attempt.Body, string(body))
		}
	}

	return nil, false, fmt.Errorf("no degradation attempts were configured")
}

// callWithTransientRetry calls once and, on a network error or a 5xx
// response, retries exactly once after transientRetryDelay. duration
// covers only the final (returned) attempt.
func (e *Engine) callWithTransientRetry(ctx context.Context, token string, body *translate.UpstreamBody) (*upstream.Response, time.Duration, error) {
	start := time.Now()
	resp, callErr := e.caller.Call(ctx, token, body)
	if callErr == nil && resp.StatusCode < 500 {
		return resp, time.Since(start), nil
	}

	select {
	case <-time.After(transientRetryDelay):
	case <-ctx.Done():
		return resp, time.Since(start), callErr
	}

	start = time.Now()
	resp, callErr = e.caller.Call(ctx, token, body)
	return resp, time.Since(start), callErr
}

func (e *Engine) logAttempt(sessionID, model, accountID string, status int, statusText string, d time.Duration, mode degrade.Mode) {
	if e.logs == nil {
		return
	}
	e.logs.Append(log.Record{
		SessionID:    sessionID,
		Model:        model,
		AccountID:    accountID,
		StatusCode:   status,
		StatusText:   statusText,
		DurationMs:   d.Milliseconds(),
		FallbackMode: string(mode),
	})
}
