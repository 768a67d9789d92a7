package generator

import "strings"

// ItemSeparator 是模型被要求在列表项之间插入的分隔符。
const ItemSeparator = "|"

// StructuredText is model output that was asked to separate its items with
// ItemSeparator. The model may not comply, so parsing never fails.
type StructuredText string

// Items splits on ItemSeparator, trims each item and drops empty ones.
func (s StructuredText) Items() []string {
	var out []string
	for _, part := range strings.Split(string(s), ItemSeparator) {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// ItemsN parses the items and reports whether exactly want were found. A
// mismatch only degrades display; the items are still returned.
func (s StructuredText) ItemsN(want int) ([]string, bool) {
	items := s.Items()
	return items, len(items) == want
}
