// Package degrade implements the Degradation Retry Engine: it wraps an
// upstream call with an ordered list of progressively more aggressive
// fallback transformations, applied when the upstream reports an
// "improperly formed request" class error, following the same ordered
// pattern-table shape relay's error classifier uses for status
// dispatch.
package degrade

import (
	"regexp"
	"strings"

	"github.com/martinfeng/kiro-relay/internal/config"
	"github.com/martinfeng/kiro-relay/internal/relayerr"
	"github.com/martinfeng/kiro-relay/internal/translate"
)

type Mode string

const (
	ModePrimary         Mode = "primary"
	ModeCompactTools    Mode = "compact-tools"
	ModeNoTools         Mode = "no-tools"
	ModeTrimHistory     Mode = "trim-history"
	ModeMinimalHistory  Mode = "minimal-history"
	ModeSingleTurn      Mode = "single-turn"
)

var modeOrder = map[config.CompatMode][]Mode{
	config.CompatStrict: {ModePrimary, ModeCompactTools},
	config.CompatBalanced: {
		ModePrimary, ModeCompactTools, ModeNoTools, ModeTrimHistory,
	},
	config.CompatRelaxed: {
		ModePrimary, ModeCompactTools, ModeNoTools, ModeTrimHistory,
		ModeMinimalHistory, ModeSingleTurn,
	},
}

// Modes returns the ordered transformation list for a compat mode.
func Modes(compat config.CompatMode) []Mode {
	if modes, ok := modeOrder[compat]; ok {
		return modes
	}
	return modeOrder[config.CompatBalanced]
}

var retryTriggerPattern = regexp.MustCompile(`(?i)improperly formed request|malformed|invalid_request_error`)

// ShouldRetry reports whether a failed attempt at the given status/body
// should trigger the next fallback mode. Only the narrow "improperly
// formed request" class retries; every other failure is surfaced
// immediately as the caller's problem, not the translator's.
func ShouldRetry(statusCode int, body []byte) bool {
	return statusCode == 400 && retryTriggerPattern.MatchString(string(body))
}

// Attempt is one fallback step's prepared request body and the mode that
// produced it.
type Attempt struct {
	Mode Mode
	Body *translate.UpstreamBody
}

// BuildAttempts renders every mode in the given order against primary,
// eagerly, so the caller (the engine) can iterate with no further
// transformation logic of its own.
func BuildAttempts(primary *translate.UpstreamBody, originalHistory []translate.HistoryEntry, compat config.CompatMode) []Attempt {
	modes := Modes(compat)
	out := make([]Attempt, 0, len(modes))
	for _, m := range modes {
		out = append(out, Attempt{Mode: m, Body: apply(m, primary, originalHistory)})
	}
	return out
}

func apply(mode Mode, primary *translate.UpstreamBody, originalHistory []translate.HistoryEntry) *translate.UpstreamBody {
	switch mode {
	case ModePrimary:
		return primary
	case ModeCompactTools:
		return compactTools(clone(primary))
	case ModeNoTools:
		return dropTools(clone(primary))
	case ModeTrimHistory:
		return trimHistory(clone(primary), 24)
	case ModeMinimalHistory:
		return minimalHistory(clone(primary), 8)
	case ModeSingleTurn:
		return singleTurn(clone(primary), originalHistory)
	default:
		return primary
	}
}

// clone deep-copies everything a later transformation might mutate, so
// each Attempt's body is independent of the others and of primary. Every
// pointer a transformation could reach through (history entries, their
// context structs, their slices) gets its own backing storage; sharing
// any of them would let one mode's mutation (dropTools, trimHistory,
// ...) bleed into an already-built Attempt, including Primary itself.
func clone(b *translate.UpstreamBody) *translate.UpstreamBody {
	cp := *b
	cs := b.ConversationState
	cs.History = cloneHistory(b.ConversationState.History)
	cs.CurrentMessage.UserInputMessage.UserInputMessageContext = cloneContext(
		b.ConversationState.CurrentMessage.UserInputMessage.UserInputMessageContext)
	cp.ConversationState = cs
	return &cp
}

func cloneHistory(entries []translate.HistoryEntry) []translate.HistoryEntry {
	if entries == nil {
		return nil
	}
	out := make([]translate.HistoryEntry, len(entries))
	for i, e := range entries {
		if e.UserInputMessage != nil {
			uim := *e.UserInputMessage
			uim.UserInputMessageContext = cloneContext(e.UserInputMessage.UserInputMessageContext)
			out[i].UserInputMessage = &uim
		}
		if e.AssistantResponseMessage != nil {
			arm := *e.AssistantResponseMessage
			arm.ToolUses = append([]translate.ToolUse(nil), e.AssistantResponseMessage.ToolUses...)
			out[i].AssistantResponseMessage = &arm
		}
	}
	return out
}

func cloneContext(ctx *translate.UserInputMessageContext) *translate.UserInputMessageContext {
	if ctx == nil {
		return nil
	}
	cp := *ctx
	cp.Tools = append([]translate.ToolSpec(nil), ctx.Tools...)
	cp.ToolResults = append([]translate.ToolResult(nil), ctx.ToolResults...)
	return &cp
}

func compactTools(b *translate.UpstreamBody) *translate.UpstreamBody {
	ctx := b.ConversationState.CurrentMessage.UserInputMessage.UserInputMessageContext
	if ctx == nil || len(ctx.Tools) == 0 {
		return b
	}
	tools := ctx.Tools
	if len(tools) > 24 {
		tools = tools[:24]
	}
	for i := range tools {
		tools[i].ToolSpecification.InputSchema = translate.InputSchemaWrapper{
			JSON: map[string]interface{}{"type": "object", "properties": map[string]interface{}{}},
		}
		if len(tools[i].ToolSpecification.Description) > 256 {
			tools[i].ToolSpecification.Description = tools[i].ToolSpecification.Description[:256]
		}
	}
	ctx.Tools = tools
	return b
}

func dropTools(b *translate.UpstreamBody) *translate.UpstreamBody {
	if ctx := b.ConversationState.CurrentMessage.UserInputMessage.UserInputMessageContext; ctx != nil {
		ctx.Tools = nil
	}
	for i := range b.ConversationState.History {
		if uim := b.ConversationState.History[i].UserInputMessage; uim != nil && uim.UserInputMessageContext != nil {
			uim.UserInputMessageContext.Tools = nil
		}
	}
	b.ConversationState.ChatTriggerType = "MANUAL"
	return b
}

func trimHistory(b *translate.UpstreamBody, keepLast int) *translate.UpstreamBody {
	dropTools(b)
	for i := range b.ConversationState.History {
		if arm := b.ConversationState.History[i].AssistantResponseMessage; arm != nil {
			arm.ToolUses = nil
		}
	}
	b.ConversationState.History = lastN(b.ConversationState.History, keepLast)
	return b
}

func minimalHistory(b *translate.UpstreamBody, keepLast int) *translate.UpstreamBody {
	dropTools(b)
	for i := range b.ConversationState.History {
		if uim := b.ConversationState.History[i].UserInputMessage; uim != nil && uim.UserInputMessageContext != nil {
			uim.UserInputMessageContext.ToolResults = nil
		}
	}
	b.ConversationState.History = lastN(b.ConversationState.History, keepLast)
	return b
}

// singleTurn rebuilds the request with empty history and a single user
// turn taken from the latest non-"continue" user text in the original
// (pre-degradation) history, falling back to "continue" if none exists.
func singleTurn(b *translate.UpstreamBody, originalHistory []translate.HistoryEntry) *translate.UpstreamBody {
	text := "continue"
	for i := len(originalHistory) - 1; i >= 0; i-- {
		uim := originalHistory[i].UserInputMessage
		if uim == nil {
			continue
		}
		if uim.Content != "" && !strings.EqualFold(uim.Content, "continue") {
			text = uim.Content
			break
		}
	}
	b.ConversationState.History = nil
	b.ConversationState.CurrentMessage.UserInputMessage.Content = text
	b.ConversationState.CurrentMessage.UserInputMessage.UserInputMessageContext = nil
	b.ConversationState.ChatTriggerType = "MANUAL"
	return b
}

func lastN(entries []translate.HistoryEntry, n int) []translate.HistoryEntry {
	if len(entries) <= n {
		return entries
	}
	return entries[len(entries)-n:]
}

// Exhausted builds the UpstreamRejected error raised when every mode in
// the configured order has been tried and the upstream kept rejecting the
// request, carrying a redacted summary of the last attempted body instead
// of the raw (potentially sensitive) payload.
func Exhausted(lastMode Mode, lastBody *translate.UpstreamBody, upstreamMessage string) error {
	summary := Summarize(lastBody, 0)
	return relayerr.Wrap(relayerr.KindUpstreamRejected,
		"upstream rejected request after exhausting fallback mode "+string(lastMode)+": "+upstreamMessage+" body="+summary,
		nil)
}
