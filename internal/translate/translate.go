package translate

import (
	"encoding/json"
	"regexp"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// Translator converts a foreign request into the upstream wire form. It
// holds no state and performs no I/O; every call is independent.
type Translator struct{}

func NewTranslator() *Translator {
	return &Translator{}
}

// normalizedMessage is an internal view over a foreign message's content,
// split out by content-block kind ahead of history/current-turn assembly.
type normalizedMessage struct {
	role        string
	text        string
	thinking    string
	toolUses    []ToolUse
	toolResults []ToolResult
}

// Translate builds the upstream body for req. Fresh UUIDs are generated for
// conversationId and agentContinuationId on every call.
func (t *Translator) Translate(req Request) Output {
	nameMap := map[string]string{} // original -> sanitized, populated by sanitizeTools first

	tools := sanitizeTools(req.Tools, nameMap)

	messages := dropUnsupportedRoles(req.Messages)
	if len(messages) > maxMessages {
		messages = messages[len(messages)-maxMessages:]
	}

	currentStart, currentSynthetic := findCurrentTurnStart(messages)
	historyMessages := messages[:currentStart]
	currentMessages := messages[currentStart:]

	normalized := make([]normalizedMessage, len(historyMessages))
	for i, m := range historyMessages {
		normalized[i] = normalizeMessage(m, nameMap)
	}

	history := buildHistory(normalized, currentSynthetic)

	if currentSynthetic {
		// tail was an assistant message; it becomes the last history entry
		// and the current turn is synthetic "continue".
		last := normalizeMessage(currentMessages[0], nameMap)
		history = appendAssistantHistory(history, last)
	}

	if sysText, hasSys := systemText(req.System); hasSys || req.Thinking != nil {
		history = prependSystemTurn(history, sysText, req.Thinking)
	}

	var currentText string
	var currentToolResults []ToolResult
	if currentSynthetic {
		currentText = "continue"
	} else {
		var texts []string
		for _, m := range currentMessages {
			nm := normalizeMessage(m, nameMap)
			if nm.text != "" {
				texts = append(texts, nm.text)
			}
			currentToolResults = append(currentToolResults, nm.toolResults...)
		}
		currentText = strings.Join(texts, "\n")
		if currentText == "" {
			currentText = "continue"
		}
	}
	currentText = truncate(currentText, maxCurrentMessageLen)

	var uimContext *UserInputMessageContext
	if len(tools) > 0 || len(currentToolResults) > 0 {
		uimContext = &UserInputMessageContext{
			Tools:       tools,
			ToolResults: currentToolResults,
		}
	}

	chatTrigger := chatTriggerManual
	if len(tools) > 0 && req.ToolChoice != nil &&
		(req.ToolChoice.Type == "any" || req.ToolChoice.Type == "tool") {
		chatTrigger = chatTriggerAuto
	}

	body := &UpstreamBody{
		ConversationState: ConversationState{
			AgentContinuationID: uuid.New().String(),
			AgentTaskType:       agentTaskTypeVibe,
			ChatTriggerType:     chatTrigger,
			CurrentMessage: CurrentMessage{
				UserInputMessage: UserInputMessage{
					Content:                 currentText,
					ModelID:                 req.Model,
					Origin:                  originDefault,
					UserInputMessageContext: uimContext,
				},
			},
			ConversationID: uuid.New().String(),
			History:        history,
		},
		ProfileArn: req.ProfileArn,
	}

	return Output{Body: body, ToolNameMap: invert(nameMap)}
}

func dropUnsupportedRoles(msgs []ForeignMessage) []ForeignMessage {
	out := make([]ForeignMessage, 0, len(msgs))
	for _, m := range msgs {
		if m.Role == "user" || m.Role == "assistant" {
			out = append(out, m)
		}
	}
	return out
}

// findCurrentTurnStart scans backward from the tail for the contiguous run
// of trailing user messages. It returns the index where that run begins,
// and whether the turn is synthetic (tail was an assistant message).
func findCurrentTurnStart(msgs []ForeignMessage) (int, bool) {
	if len(msgs) == 0 {
		return 0, false
	}
	if msgs[len(msgs)-1].Role == "assistant" {
		return len(msgs) - 1, true
	}
	i := len(msgs)
	for i > 0 && msgs[i-1].Role == "user" {
		i--
	}
	return i, false
}

func normalizeMessage(m ForeignMessage, nameMap map[string]string) normalizedMessage {
	nm := normalizedMessage{role: m.Role}

	blocks := asBlocks(m.Content)
	var textParts []string
	for _, b := range blocks {
		kind, _ := b["type"].(string)
		switch kind {
		case "text":
			if s, ok := b["text"].(string); ok {
				textParts = append(textParts, s)
			}
		case "thinking":
			if m.Role == "assistant" {
				if s, ok := b["thinking"].(string); ok {
					nm.thinking += s
				}
			}
		case "redacted_thinking":
			// dropped
		case "tool_use":
			if m.Role == "assistant" {
				name, _ := b["name"].(string)
				sanitized := sanitizedUpstreamName(name, nameMap)
				id, _ := b["id"].(string)
				nm.toolUses = append(nm.toolUses, ToolUse{
					ToolUseID: sanitizeToolUseID(id),
					Name:      sanitized,
					Input:     normalizeToolInput(b["input"]),
				})
			}
		case "tool_result":
			if m.Role == "user" {
				nm.toolResults = append(nm.toolResults, normalizeToolResult(b))
			}
		default:
			// unknown block types are ignored; string/number items were
			// already coerced to text blocks by asBlocks
		}
	}
	nm.text = strings.Join(textParts, "\n")
	if nm.thinking != "" {
		wrapped := "<thinking>" + nm.thinking + "</thinking>"
		if nm.text != "" {
			nm.text = wrapped + nm.text
		} else {
			nm.text = wrapped
		}
	}
	return nm
}

// asBlocks normalizes a message's content into a uniform block list. A
// plain string becomes a single text block; bare scalars coerce the same
// way.
func asBlocks(content interface{}) []map[string]interface{} {
	switch c := content.(type) {
	case string:
		return []map[string]interface{}{{"type": "text", "text": c}}
	case float64:
		return []map[string]interface{}{{"type": "text", "text": strconv.FormatFloat(c, 'f', -1, 64)}}
	case []interface{}:
		out := make([]map[string]interface{}, 0, len(c))
		for _, item := range c {
			switch v := item.(type) {
			case map[string]interface{}:
				out = append(out, v)
			case string:
				out = append(out, map[string]interface{}{"type": "text", "text": v})
			case float64:
				out = append(out, map[string]interface{}{"type": "text", "text": strconv.FormatFloat(v, 'f', -1, 64)})
			}
		}
		return out
	default:
		return nil
	}
}

func normalizeToolInput(raw interface{}) map[string]interface{} {
	switch v := raw.(type) {
	case map[string]interface{}:
		return v
	case string:
		var m map[string]interface{}
		if err := json.Unmarshal([]byte(v), &m); err == nil {
			return m
		}
		return map[string]interface{}{}
	default:
		return map[string]interface{}{}
	}
}

func normalizeToolResult(b map[string]interface{}) ToolResult {
	id, _ := b["tool_use_id"].(string)
	status := "success"
	if isErr, ok := b["is_error"].(bool); ok && isErr {
		status = "error"
	}

	var text string
	switch c := b["content"].(type) {
	case string:
		text = c
	case []interface{}:
		var parts []string
		for _, item := range c {
			if m, ok := item.(map[string]interface{}); ok {
				if s, ok := m["text"].(string); ok {
					parts = append(parts, s)
				}
			}
		}
		text = strings.Join(parts, "\n")
	}
	if text == "" {
		text = "OK"
	}

	return ToolResult{
		ToolUseID: sanitizeToolUseID(id),
		Status:    status,
		Content:   []ToolResultContent{{Text: text}},
	}
}

var toolUseIDPattern = regexp.MustCompile(`[^\w\-:.]`)

func sanitizeToolUseID(id string) string {
	cleaned := toolUseIDPattern.ReplaceAllString(id, "")
	if len(cleaned) > maxToolUseIDLen {
		cleaned = cleaned[:maxToolUseIDLen]
	}
	return cleaned
}

// buildHistory merges consecutive user-role normalized messages into one
// entry and preserves assistant entries individually, appending a
// synthetic "OK" assistant turn when a terminal user run has no following
// assistant response. skipTrailingSynthetic suppresses that synthetic
// append for the terminal run: the caller already knows a real assistant
// entry is about to be appended right after (the tail message was
// assistant, so Translate calls appendAssistantHistory itself), and two
// consecutive assistantResponseMessage entries would break history
// alternation.
func buildHistory(msgs []normalizedMessage, skipTrailingSynthetic bool) []HistoryEntry {
	var out []HistoryEntry
	i := 0
	for i < len(msgs) {
		if msgs[i].role == "assistant" {
			out = append(out, HistoryEntry{AssistantResponseMessage: &AssistantResponseMessage{
				Content:  msgs[i].text,
				ToolUses: msgs[i].toolUses,
			}})
			i++
			continue
		}

		// merge the run of consecutive user messages
		var texts []string
		var results []ToolResult
		for i < len(msgs) && msgs[i].role == "user" {
			if msgs[i].text != "" {
				texts = append(texts, msgs[i].text)
			}
			results = append(results, msgs[i].toolResults...)
			i++
		}
		var ctx *UserInputMessageContext
		if len(results) > 0 {
			ctx = &UserInputMessageContext{ToolResults: results}
		}
		out = append(out, HistoryEntry{UserInputMessage: &HistoryUserInputMessage{
			Content:                 strings.Join(texts, "\n"),
			UserInputMessageContext: ctx,
		}})

		if i == len(msgs) && !skipTrailingSynthetic {
			// terminal user run with no following assistant message
			out = append(out, HistoryEntry{AssistantResponseMessage: &AssistantResponseMessage{Content: "OK"}})
		}
	}
	return out
}

func appendAssistantHistory(history []HistoryEntry, nm normalizedMessage) []HistoryEntry {
	return append(history, HistoryEntry{AssistantResponseMessage: &AssistantResponseMessage{
		Content:  nm.text,
		ToolUses: nm.toolUses,
	}})
}

func systemText(system interface{}) (string, bool) {
	switch s := system.(type) {
	case string:
		return s, s != ""
	case []interface{}:
		var parts []string
		for _, entry := range s {
			if m, ok := entry.(map[string]interface{}); ok {
				if t, ok := m["text"].(string); ok {
					parts = append(parts, t)
				}
			}
		}
		joined := strings.Join(parts, "\n")
		return joined, joined != ""
	default:
		return "", false
	}
}

func prependSystemTurn(history []HistoryEntry, sysText string, thinking *ForeignThinking) []HistoryEntry {
	content := sysText
	if thinking != nil && thinking.Type == "enabled" {
		budget := thinking.BudgetTokens
		if budget <= 0 {
			budget = defaultThinkingBudget
		}
		prefix := "<thinking_mode>enabled</thinking_mode><max_thinking_length>" +
			strconv.Itoa(budget) + "</max_thinking_length>"
		if content != "" {
			content = prefix + content
		} else {
			content = prefix
		}
	}

	pair := []HistoryEntry{
		{UserInputMessage: &HistoryUserInputMessage{Content: content}},
		{AssistantResponseMessage: &AssistantResponseMessage{Content: "I will follow these instructions."}},
	}
	return append(pair, history...)
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}

// invert turns the original->sanitized map built during tool sanitization
// into the sanitized->original map the caller needs to restore names in
// the streamed response.
func invert(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for original, sanitized := range m {
		out[sanitized] = original
	}
	return out
}
