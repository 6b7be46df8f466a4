package pool

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/martinfeng/kiro-relay/internal/account"
)

// CaptureUsageHeaders parses the upstream's quota-window response headers
// and accumulates them into the account's usage snapshot. Populating this
// is the only place Account.Usage is ever written; without it the field
// would sit unused despite being part of the data model.
func (p *Pool) CaptureUsageHeaders(id string, headers http.Header) {
	windowStart, hasStart := parseHeaderTime(headers.Get("x-amz-kiro-quota-window-start"))
	windowEnd, hasEnd := parseHeaderTime(headers.Get("x-amz-kiro-quota-window-end"))
	if !hasStart && !hasEnd {
		return
	}

	now := time.Now().UTC()
	p.store.WithLock(func(accounts map[string]*account.Account) {
		a, ok := accounts[id]
		if !ok {
			return
		}
		if a.Usage == nil {
			a.Usage = &account.Usage{}
		}
		if hasStart {
			a.Usage.FiveHourWindowStart = &windowStart
		}
		if hasEnd {
			a.Usage.FiveHourWindowEnd = &windowEnd
		}
		a.Usage.LastUpdatedAt = now
	})
}

// AccumulateOpusCost adds an estimated cost to the account's running usage
// total, mirroring the per-model cost accumulation pattern a pooled
// multi-account relay needs to surface per-account spend to an admin.
func (p *Pool) AccumulateOpusCost(id string, inputTokens, outputTokens int, inputRate, outputRate float64) {
	cost := float64(inputTokens)/1_000_000*inputRate + float64(outputTokens)/1_000_000*outputRate
	if cost <= 0 {
		return
	}

	p.store.WithLock(func(accounts map[string]*account.Account) {
		a, ok := accounts[id]
		if !ok {
			return
		}
		if a.Usage == nil {
			a.Usage = &account.Usage{}
		}
		a.Usage.OpusCostAccumulated += cost
		a.Usage.LastUpdatedAt = time.Now().UTC()
	})
}

func parseHeaderTime(v string) (time.Time, bool) {
	if v == "" {
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		slog.Warn("parse usage header time", "value", v, "error", err)
		return time.Time{}, false
	}
	return t, true
}
