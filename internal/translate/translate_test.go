package translate

import "testing"

func TestTranslatePureTextNoTools(t *testing.T) {
	out := NewTranslator().Translate(Request{
		Model: "claude-sonnet-4.5",
		Messages: []ForeignMessage{
			{Role: "user", Content: "hi"},
		},
	})

	cs := out.Body.ConversationState
	if cs.ChatTriggerType != chatTriggerManual {
		t.Fatalf("expected MANUAL, got %s", cs.ChatTriggerType)
	}
	if cs.CurrentMessage.UserInputMessage.Content != "hi" {
		t.Fatalf("expected content 'hi', got %q", cs.CurrentMessage.UserInputMessage.Content)
	}
	if cs.CurrentMessage.UserInputMessage.UserInputMessageContext != nil {
		t.Fatal("expected no userInputMessageContext")
	}
	if len(cs.History) != 0 {
		t.Fatalf("expected empty history, got %d entries", len(cs.History))
	}
}

func TestTranslateThinkingEnabledNoSystem(t *testing.T) {
	out := NewTranslator().Translate(Request{
		Model: "claude-sonnet-4.5",
		Messages: []ForeignMessage{
			{Role: "user", Content: "hi"},
		},
		Thinking: &ForeignThinking{Type: "enabled", BudgetTokens: 2048},
	})

	history := out.Body.ConversationState.History
	if len(history) != 2 {
		t.Fatalf("expected 2 history entries, got %d", len(history))
	}
	want := "<thinking_mode>enabled</thinking_mode><max_thinking_length>2048</max_thinking_length>"
	if history[0].UserInputMessage == nil || history[0].UserInputMessage.Content != want {
		t.Fatalf("unexpected history[0]: %+v", history[0].UserInputMessage)
	}
	if history[1].AssistantResponseMessage == nil || history[1].AssistantResponseMessage.Content != "I will follow these instructions." {
		t.Fatalf("unexpected history[1]: %+v", history[1].AssistantResponseMessage)
	}
}

func TestTranslateToolCallRoundTrip(t *testing.T) {
	out := NewTranslator().Translate(Request{
		Model: "claude-sonnet-4.5",
		Messages: []ForeignMessage{
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
		},
	})

	history := out.Body.ConversationState.History
	if len(history) != 1 {
		t.Fatalf("expected 1 history entry (the assistant tool_use turn), got %d", len(history))
	}
	arm := history[0].AssistantResponseMessage
	if arm == nil || len(arm.ToolUses) != 1 {
		t.Fatalf("expected one toolUse, got %+v", arm)
	}
	tu := arm.ToolUses[0]
	if tu.ToolUseID != "tu_1" || tu.Name != "read_file" || tu.Input["path"] != "/a" {
		t.Fatalf("unexpected toolUse: %+v", tu)
	}

	uim := out.Body.ConversationState.CurrentMessage.UserInputMessage
	if uim.UserInputMessageContext == nil || len(uim.UserInputMessageContext.ToolResults) != 1 {
		t.Fatalf("expected one current-turn toolResult, got %+v", uim.UserInputMessageContext)
	}
	tr := uim.UserInputMessageContext.ToolResults[0]
	if tr.ToolUseID != "tu_1" || tr.Status != "success" || len(tr.Content) != 1 || tr.Content[0].Text != "hello" {
		t.Fatalf("unexpected toolResult: %+v", tr)
	}
}

func TestTranslateOnlyAssistantMessagesSynthesizeContinue(t *testing.T) {
	out := NewTranslator().Translate(Request{
		Model: "claude-sonnet-4.5",
		Messages: []ForeignMessage{
			{Role: "assistant", Content: "hello there"},
		},
	})

	if out.Body.ConversationState.CurrentMessage.UserInputMessage.Content != "continue" {
		t.Fatalf("expected synthetic continue, got %q", out.Body.ConversationState.CurrentMessage.UserInputMessage.Content)
	}
	history := out.Body.ConversationState.History
	if len(history) != 1 || history[0].AssistantResponseMessage == nil || history[0].AssistantResponseMessage.Content != "hello there" {
		t.Fatalf("expected history to end with the assistant message, got %+v", history)
	}
}

func TestTranslateAssistantTailWithPrecedingHistoryStaysAlternating(t *testing.T) {
	out := NewTranslator().Translate(Request{
		Model: "claude-sonnet-4.5",
		Messages: []ForeignMessage{
			{Role: "user", Content: "q1"},
			{Role: "assistant", Content: "a1"},
		},
	})

	if out.Body.ConversationState.CurrentMessage.UserInputMessage.Content != "continue" {
		t.Fatalf("expected synthetic continue, got %q", out.Body.ConversationState.CurrentMessage.UserInputMessage.Content)
	}
	history := out.Body.ConversationState.History
	if len(history) != 2 {
		t.Fatalf("expected 2 history entries (user q1, assistant a1), got %d: %+v", len(history), history)
	}
	if history[0].UserInputMessage == nil || history[0].UserInputMessage.Content != "q1" {
		t.Fatalf("expected history[0] to be the user turn, got %+v", history[0])
	}
	if history[1].AssistantResponseMessage == nil || history[1].AssistantResponseMessage.Content != "a1" {
		t.Fatalf("expected history[1] to be the real trailing assistant message, not a synthetic OK; got %+v", history[1])
	}
}

func TestTranslateCaps201MessagesToLast200(t *testing.T) {
	msgs := make([]ForeignMessage, 0, 201)
	for i := 0; i < 200; i++ {
		if i%2 == 0 {
			msgs = append(msgs, ForeignMessage{Role: "user", Content: "u"})
		} else {
			msgs = append(msgs, ForeignMessage{Role: "assistant", Content: "a"})
		}
	}
	msgs = append([]ForeignMessage{{Role: "user", Content: "dropped"}}, msgs...)

	out := NewTranslator().Translate(Request{Model: "claude-sonnet-4.5", Messages: msgs})
	// The oldest message (role user, content "dropped") must not survive
	// into history once capped to the last 200.
	for _, h := range out.Body.ConversationState.History {
		if h.UserInputMessage != nil && h.UserInputMessage.Content == "dropped" {
			t.Fatal("expected the 201st-from-tail message to be dropped by the 200-message cap")
		}
	}
}

func TestTranslateWebSearchToolDropped(t *testing.T) {
	out := NewTranslator().Translate(Request{
		Model: "claude-sonnet-4.5",
		Messages: []ForeignMessage{{Role: "user", Content: "hi"}},
		Tools: []ForeignTool{
			{Name: "web_search", Description: "search the web", InputSchema: map[string]interface{}{}},
		},
	})
	uim := out.Body.ConversationState.CurrentMessage.UserInputMessage
	if uim.UserInputMessageContext != nil && len(uim.UserInputMessageContext.Tools) != 0 {
		t.Fatalf("expected web_search to be dropped, got %+v", uim.UserInputMessageContext.Tools)
	}
}

func TestTranslateToolNameSanitization(t *testing.T) {
	out := NewTranslator().Translate(Request{
		Model: "claude-sonnet-4.5",
		Messages: []ForeignMessage{{Role: "user", Content: "hi"}},
		Tools: []ForeignTool{
			{Name: "3d-lookup", Description: "lookup", InputSchema: map[string]interface{}{"type": "object"}},
		},
	})
	tools := out.Body.ConversationState.CurrentMessage.UserInputMessage.UserInputMessageContext.Tools
	if len(tools) != 1 || tools[0].ToolSpecification.Name != "t_3d_lookup" {
		t.Fatalf("expected t_3d_lookup, got %+v", tools)
	}
	if out.ToolNameMap["t_3d_lookup"] != "3d-lookup" {
		t.Fatalf("expected reverse map entry, got %+v", out.ToolNameMap)
	}
}

func TestTranslateChatTriggerAutoOnlyWithToolChoiceAnyOrTool(t *testing.T) {
	base := func(choiceType string) Output {
		return NewTranslator().Translate(Request{
			Model:      "claude-sonnet-4.5",
			Messages:   []ForeignMessage{{Role: "user", Content: "hi"}},
			Tools:      []ForeignTool{{Name: "search", Description: "d", InputSchema: map[string]interface{}{}}},
			ToolChoice: &ForeignToolChoice{Type: choiceType},
		})
	}

	if base("any").Body.ConversationState.ChatTriggerType != chatTriggerAuto {
		t.Fatal("expected AUTO for tool_choice.type=any")
	}
	if base("tool").Body.ConversationState.ChatTriggerType != chatTriggerAuto {
		t.Fatal("expected AUTO for tool_choice.type=tool")
	}
	if base("auto").Body.ConversationState.ChatTriggerType != chatTriggerManual {
		t.Fatal("expected MANUAL for tool_choice.type=auto (conservative default)")
	}
}

func TestSanitizeSchemaDepthAndKeyLimits(t *testing.T) {
	deep := map[string]interface{}{"$schema": "http://x", "description": "ok"}
	cur := deep
	for i := 0; i < 10; i++ {
		next := map[string]interface{}{"type": "object"}
		cur["properties"] = map[string]interface{}{"nested": next}
		cur = next
	}

	out := sanitizeSchema(deep, 0)
	if _, ok := out["$schema"]; ok {
		t.Fatal("expected $schema to be dropped")
	}

	levels := 0
	for node := out; ; levels++ {
		props, ok := node["properties"].(map[string]interface{})
		if !ok {
			break
		}
		next, ok := props["nested"].(map[string]interface{})
		if !ok {
			break
		}
		node = next
	}
	if levels > schemaMaxDepth {
		t.Fatalf("expected nesting cut off by the depth limit, got %d levels", levels)
	}
}

func TestSanitizeSchemaEmptySubstitutesPermissiveObject(t *testing.T) {
	out := sanitizeSchema(map[string]interface{}{"$schema": "x"}, 0)
	if out["type"] != "object" {
		t.Fatalf("expected permissive object substitute, got %+v", out)
	}
}
