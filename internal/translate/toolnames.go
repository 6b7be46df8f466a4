package translate

import (
	"regexp"
	"strconv"
	"strings"
)

var (
	nonIdentChar  = regexp.MustCompile(`[^A-Za-z0-9_]`)
	repeatUnderscore = regexp.MustCompile(`_+`)
	webSearchName = regexp.MustCompile(`(?i)^(web_search|websearch|web-search)`)
)

// sanitizeTools converts the foreign tool list into upstream tool specs,
// skipping unsupported web-search variants and recording the
// original->sanitized rename for every kept tool in nameMap.
func sanitizeTools(tools []ForeignTool, nameMap map[string]string) []ToolSpec {
	if len(tools) == 0 {
		return nil
	}

	used := make(map[string]bool, len(tools))
	out := make([]ToolSpec, 0, len(tools))
	for _, tool := range tools {
		if webSearchName.MatchString(tool.Name) {
			continue
		}

		sanitized := disambiguate(sanitizeIdentifier(tool.Name), used)
		used[sanitized] = true
		nameMap[tool.Name] = sanitized

		out = append(out, ToolSpec{ToolSpecification: ToolSpecification{
			Name:        sanitized,
			Description: truncate(tool.Description, maxToolDescriptionLen),
			InputSchema: InputSchemaWrapper{JSON: sanitizeSchema(tool.InputSchema, 0)},
		}})
	}
	return out
}

// sanitizeIdentifier collapses a foreign tool name down to [A-Za-z0-9_]+:
// non-identifier chars replaced with underscores, repeated underscores collapsed,
// leading/trailing underscores stripped, a leading digit gets a t_ prefix.
func sanitizeIdentifier(name string) string {
	s := nonIdentChar.ReplaceAllString(name, "_")
	s = repeatUnderscore.ReplaceAllString(s, "_")
	s = strings.Trim(s, "_")
	if s == "" {
		s = "tool"
	}
	if s[0] >= '0' && s[0] <= '9' {
		s = "t_" + s
	}
	return s
}

func disambiguate(name string, used map[string]bool) string {
	if !used[name] {
		return name
	}
	for n := 2; ; n++ {
		candidate := name + "_" + strconv.Itoa(n)
		if !used[candidate] {
			return candidate
		}
	}
}

// sanitizedUpstreamName resolves a tool_use block's name against the
// original->sanitized map built while sanitizing tool definitions. A name
// with no matching tool definition (a caller-side inconsistency) still
// gets deterministically sanitized, just without dedup against the tool
// list.
func sanitizedUpstreamName(original string, nameMap map[string]string) string {
	if sanitized, ok := nameMap[original]; ok {
		return sanitized
	}
	return sanitizeIdentifier(original)
}
