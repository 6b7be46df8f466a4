// Package translate implements the Request Translator: a pure,
// deterministic conversion of the foreign chat schema into the upstream
// conversationState wire form, with tool-name sanitization, schema
// sanitization and thinking-prefix injection.
package translate

// ForeignMessage is one entry of the caller's messages array.
type ForeignMessage struct {
	Role    string      `json:"role"`
	Content interface{} `json:"content"` // string or []map[string]interface{}
}

// ForeignTool is one caller-declared tool definition.
type ForeignTool struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	InputSchema map[string]interface{} `json:"input_schema"`
}

// ForeignToolChoice mirrors the caller's tool_choice field.
type ForeignToolChoice struct {
	Type string `json:"type"`
	Name string `json:"name,omitempty"`
}

// ForeignThinking mirrors the caller's thinking field.
type ForeignThinking struct {
	Type         string `json:"type"`
	BudgetTokens int    `json:"budget_tokens"`
}

// Request is the foreign request this package translates.
type Request struct {
	Model      string
	Messages   []ForeignMessage
	System     interface{} // string, []map[string]interface{}, or nil
	Tools      []ForeignTool
	ToolChoice *ForeignToolChoice
	Thinking   *ForeignThinking
	ProfileArn string // from the credential record, attached verbatim
}

// --- upstream wire types, struct field order is the wire field order ---

// UpstreamBody is the full request body sent to the upstream.
type UpstreamBody struct {
	ConversationState ConversationState `json:"conversationState"`
	ProfileArn        string            `json:"profileArn,omitempty"`
}

// ConversationState's field order is load-bearing: the upstream parser
// requires agentContinuationId, agentTaskType, chatTriggerType,
// currentMessage, conversationId, history in exactly this sequence.
type ConversationState struct {
	AgentContinuationID string         `json:"agentContinuationId"`
	AgentTaskType       string         `json:"agentTaskType"`
	ChatTriggerType     string         `json:"chatTriggerType"`
	CurrentMessage      CurrentMessage `json:"currentMessage"`
	ConversationID      string         `json:"conversationId"`
	History             []HistoryEntry `json:"history"`
}

type CurrentMessage struct {
	UserInputMessage UserInputMessage `json:"userInputMessage"`
}

type UserInputMessage struct {
	Content                 string                   `json:"content"`
	ModelID                 string                   `json:"modelId"`
	Origin                  string                   `json:"origin"`
	UserInputMessageContext *UserInputMessageContext `json:"userInputMessageContext,omitempty"`
}

type UserInputMessageContext struct {
	Tools       []ToolSpec   `json:"tools,omitempty"`
	ToolResults []ToolResult `json:"toolResults,omitempty"`
}

// HistoryEntry is either a user turn or an assistant turn; exactly one of
// the two fields is populated.
type HistoryEntry struct {
	UserInputMessage         *HistoryUserInputMessage  `json:"userInputMessage,omitempty"`
	AssistantResponseMessage *AssistantResponseMessage `json:"assistantResponseMessage,omitempty"`
}

type HistoryUserInputMessage struct {
	Content                 string                   `json:"content"`
	UserInputMessageContext *UserInputMessageContext `json:"userInputMessageContext,omitempty"`
}

type AssistantResponseMessage struct {
	Content  string    `json:"content"`
	ToolUses []ToolUse `json:"toolUses,omitempty"`
}

type ToolUse struct {
	ToolUseID string                 `json:"toolUseId"`
	Name      string                 `json:"name"`
	Input     map[string]interface{} `json:"input"`
}

type ToolResult struct {
	ToolUseID string              `json:"toolUseId"`
	Status    string              `json:"status"` // "success" | "error"
	Content   []ToolResultContent `json:"content"`
}

type ToolResultContent struct {
	Text string `json:"text"`
}

type ToolSpec struct {
	ToolSpecification ToolSpecification `json:"toolSpecification"`
}

type ToolSpecification struct {
	Name        string              `json:"name"`
	Description string              `json:"description"`
	InputSchema InputSchemaWrapper `json:"inputSchema"`
}

type InputSchemaWrapper struct {
	JSON map[string]interface{} `json:"json"`
}

const (
	originDefault         = "AI_EDITOR"
	chatTriggerManual     = "MANUAL"
	chatTriggerAuto       = "AUTO"
	agentTaskTypeVibe     = "vibe"

	maxMessages           = 200
	maxCurrentMessageLen  = 12000
	defaultThinkingBudget = 10000
	maxToolUseIDLen       = 128
	maxToolDescriptionLen = 2000

	schemaMaxDepth      = 6
	schemaMaxArrayItems = 32
	schemaMaxObjectKeys = 96
	schemaShortStrLen   = 512 // description, title
	schemaLongStrLen    = 1024
)

// Output is what the translator hands to the Degradation Retry Engine: the
// upstream-shaped body plus the sanitized->original tool-name map needed
// to restore original names in the streamed response.
type Output struct {
	Body        *UpstreamBody
	ToolNameMap map[string]string // sanitized -> original
}
