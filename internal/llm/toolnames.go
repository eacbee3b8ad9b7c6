package llm

import "strings"

// canonicalizeToolName renders a tool name in the canonical Claude-Code form
// used on the Anthropic OAuth path: each underscore-separated segment is
// title-cased, e.g. "my_read" -> "My_Read".
func canonicalizeToolName(name string) string {
	segments := strings.Split(name, "_")
	for i, seg := range segments {
		if seg == "" {
			continue
		}
		segments[i] = strings.ToUpper(seg[:1]) + seg[1:]
	}
	return strings.Join(segments, "_")
}

// ToolNameTable is the (canonical, original) round-trip table built once per
// request from the tools the caller declared. It lets the Anthropic OAuth
// path rename tools outbound and restore the caller's original names on
// anything the provider echoes back (spec.md §4.2, §8.6).
type ToolNameTable struct {
	canonicalToOriginal map[string]string
}

// BuildToolNameTable derives the table from a request's tool definitions.
func BuildToolNameTable(tools []ToolDefinition) *ToolNameTable {
	t := &ToolNameTable{canonicalToOriginal: make(map[string]string, len(tools))}
	for _, tool := range tools {
		t.canonicalToOriginal[canonicalizeToolName(tool.Name)] = tool.Name
	}
	return t
}

// ToCanonical renames an original tool name to its canonical outbound form.
func (t *ToolNameTable) ToCanonical(original string) string {
	return canonicalizeToolName(original)
}

// ToOriginal reverses a canonical name back to what the caller declared. If
// the canonical name is unknown (e.g. the provider echoed something never
// declared), it is returned unchanged rather than dropped.
func (t *ToolNameTable) ToOriginal(canonical string) string {
	if t == nil {
		return canonical
	}
	if original, ok := t.canonicalToOriginal[canonical]; ok {
		return original
	}
	return canonical
}
