package degrade

import (
	"strings"
	"testing"

	"github.com/martinfeng/kiro-relay/internal/config"
	"github.com/martinfeng/kiro-relay/internal/translate"
)

func samplePrimary() *translate.UpstreamBody {
	return translate.NewTranslator().Translate(translate.Request{
		Model: "sonnet",
		Messages: []translate.ForeignMessage{
			{Role: "user", Content: "first question"},
			{Role: "assistant", Content: "first answer"},
			{Role: "user", Content: "second question"},
		},
	}).Body
}

func TestShouldRetryOnlyOnImproperlyFormedClass(t *testing.T) {
	if !ShouldRetry(400, []byte(`{"message":"Improperly formed request"}`)) {
		t.Fatal("expected retry trigger on improperly formed request")
	}
	if !ShouldRetry(400, []byte(`{"type":"invalid_request_error"}`)) {
		t.Fatal("expected retry trigger on invalid_request_error")
	}
	if ShouldRetry(500, []byte(`malformed`)) {
		t.Fatal("expected non-400 status to never retry regardless of body")
	}
	if ShouldRetry(400, []byte(`{"message":"not found"}`)) {
		t.Fatal("expected unrelated 400 body to not retry")
	}
}

func TestModesPerCompatMode(t *testing.T) {
	strict := Modes(config.CompatStrict)
	if len(strict) != 2 || strict[len(strict)-1] != ModeCompactTools {
		t.Fatalf("unexpected strict modes: %v", strict)
	}
	balanced := Modes(config.CompatBalanced)
	if len(balanced) != 4 || balanced[len(balanced)-1] != ModeTrimHistory {
		t.Fatalf("unexpected balanced modes: %v", balanced)
	}
	relaxed := Modes(config.CompatRelaxed)
	if len(relaxed) != 6 || relaxed[len(relaxed)-1] != ModeSingleTurn {
		t.Fatalf("unexpected relaxed modes: %v", relaxed)
	}
}

func TestBuildAttemptsIndependentCopies(t *testing.T) {
	primary := samplePrimary()
	attempts := BuildAttempts(primary, primary.ConversationState.History, config.CompatRelaxed)

	noTools := findMode(attempts, ModeNoTools)
	if ctx := noTools.Body.ConversationState.CurrentMessage.UserInputMessage.UserInputMessageContext; ctx != nil && len(ctx.Tools) != 0 {
		t.Fatal("expected no-tools attempt to have no tools")
	}
	// mutating one attempt's body must not affect primary's
	noTools.Body.ConversationState.ChatTriggerType = "MUTATED"
	if primary.ConversationState.ChatTriggerType == "MUTATED" {
		t.Fatal("expected attempts to be independent copies of primary")
	}
}

func TestBuildAttemptsDoesNotMutatePrimaryHistoryOrToolUses(t *testing.T) {
	primary := translate.NewTranslator().Translate(translate.Request{
		Model: "sonnet",
		Messages: []translate.ForeignMessage{
			{Role: "assistant", Content: []interface{}{
				map[string]interface{}{
					"type":  "tool_use",
					"name":  "read-file",
					"id":    "tu_1",
					"input": map[string]interface{}{"path": "/a"},
				},
			}},
			{Role: "user", Content: []interface{}{
				map[string]interface{}{
					"type":        "tool_result",
					"tool_use_id": "tu_1",
					"content":     "hello",
				},
			}},
			{Role: "assistant", Content: "ack"},
			{Role: "user", Content: "second question"},
		},
	}).Body

	// Sanity check the fixture actually carries a toolUse/toolResult into
	// history before degrading it, otherwise this test can't catch aliasing.
	armBefore := primary.ConversationState.History[0].AssistantResponseMessage
	if armBefore == nil || len(armBefore.ToolUses) != 1 {
		t.Fatalf("fixture setup broken: expected one toolUse in primary history, got %+v", primary.ConversationState.History)
	}
	uimBefore := primary.ConversationState.History[1].UserInputMessage
	if uimBefore == nil || uimBefore.UserInputMessageContext == nil || len(uimBefore.UserInputMessageContext.ToolResults) != 1 {
		t.Fatalf("fixture setup broken: expected one toolResult in primary history, got %+v", primary.ConversationState.History)
	}

	// BuildAttempts renders every mode eagerly, including no-tools and
	// trim-history which strip tool data from their own copies — this must
	// not touch Primary's body, since Primary is sent first and unmodified.
	_ = BuildAttempts(primary, primary.ConversationState.History, config.CompatRelaxed)

	armAfter := primary.ConversationState.History[0].AssistantResponseMessage
	if armAfter == nil || len(armAfter.ToolUses) != 1 {
		t.Fatalf("expected primary's toolUses to survive BuildAttempts untouched, got %+v", armAfter)
	}
	uimAfter := primary.ConversationState.History[1].UserInputMessage
	if uimAfter == nil || uimAfter.UserInputMessageContext == nil || len(uimAfter.UserInputMessageContext.ToolResults) != 1 {
		t.Fatalf("expected primary's toolResults to survive BuildAttempts untouched, got %+v", uimAfter)
	}
}

func TestSingleTurnRebuildsFromLatestUserText(t *testing.T) {
	primary := samplePrimary()
	attempts := BuildAttempts(primary, primary.ConversationState.History, config.CompatRelaxed)
	single := findMode(attempts, ModeSingleTurn)

	if len(single.Body.ConversationState.History) != 0 {
		t.Fatalf("expected empty history for single-turn, got %d", len(single.Body.ConversationState.History))
	}
	if single.Body.ConversationState.CurrentMessage.UserInputMessage.Content == "" {
		t.Fatal("expected a non-empty rebuilt current message")
	}
}

func TestApplyModeIdempotent(t *testing.T) {
	primary := samplePrimary()
	a := apply(ModeTrimHistory, primary, primary.ConversationState.History)
	b := apply(ModeTrimHistory, a, a.ConversationState.History)
	if len(a.ConversationState.History) != len(b.ConversationState.History) {
		t.Fatal("expected applying the same fallback transformation twice to produce an equal body")
	}
}

func TestExhaustedCarriesRedactedSummaryNotRawText(t *testing.T) {
	primary := samplePrimary()
	err := Exhausted(ModeCompactTools, primary, "improperly formed request")
	if !strings.Contains(err.Error(), "UpstreamRejected") {
		t.Fatalf("expected UpstreamRejected kind in error, got %v", err)
	}
	for _, m := range primary.ConversationState.History {
		if m.UserInputMessage != nil && strings.Contains(err.Error(), m.UserInputMessage.Content) {
			t.Fatal("expected summary to redact raw history text")
		}
	}
}

func findMode(attempts []Attempt, mode Mode) Attempt {
	for _, a := range attempts {
		if a.Mode == mode {
			return a
		}
	}
	return Attempt{}
}
