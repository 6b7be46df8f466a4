package degrade

import (
	"fmt"
	"sort"
	"strings"

	"github.com/martinfeng/kiro-relay/internal/translate"
)

const summaryMaxDepth = 6

// Summarize renders a depth-limited, content-redacted description of an
// exhausted attempt's body, used only for the final error surfaced to the
// caller — never the raw request, which may carry user text or tool
// arguments.
func Summarize(b *translate.UpstreamBody, depth int) string {
	if b == nil {
		return "<nil>"
	}
	m := map[string]interface{}{
		"conversationId":      b.ConversationState.ConversationID,
		"chatTriggerType":     b.ConversationState.ChatTriggerType,
		"currentMessage":      b.ConversationState.CurrentMessage.UserInputMessage.Content,
		"historyLen":          len(b.ConversationState.History),
		"hasProfileArn":       b.ProfileArn != "",
	}
	return summarizeValue(m, depth)
}

func summarizeValue(v interface{}, depth int) string {
	if depth >= summaryMaxDepth {
		return "<truncated>"
	}
	switch val := v.(type) {
	case string:
		return fmt.Sprintf("<string len=%d>", len(val))
	case []interface{}:
		sample := val
		if len(sample) > 3 {
			sample = sample[:3]
		}
		parts := make([]string, len(sample))
		for i, item := range sample {
			parts[i] = summarizeValue(item, depth+1)
		}
		return fmt.Sprintf("<array len=%d sample=[%s]>", len(val), strings.Join(parts, ", "))
	case map[string]interface{}:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, len(keys))
		for i, k := range keys {
			parts[i] = k + "=" + summarizeValue(val[k], depth+1)
		}
		return fmt.Sprintf("{%s}", strings.Join(parts, ", "))
	case bool, int:
		return fmt.Sprintf("%v", val)
	default:
		return fmt.Sprintf("%v", val)
	}
}
