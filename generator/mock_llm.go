package generator

import (
	"context"
	"strconv"
	"strings"
)

// MockLLM 一个简单的占位实现，便于本地调试，不调用外部模型。
// 输出按提示词确定，流式模式下逐词回调。
type MockLLM struct{}

func (m MockLLM) Complete(ctx context.Context, prompt string, opts CompletionOptions) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	var sb strings.Builder
	sb.WriteString("# Mock response\n\n")
	sb.WriteString("Generated offline from a prompt of ")
	sb.WriteString(strconv.Itoa(len(prompt)))
	sb.WriteString(" bytes.\n\n")
	sb.WriteString("Point one | Point two | Point three\n\n")
	for _, line := range strings.Split(excerpt(prompt, 400), "\n") {
		sb.WriteString("> ")
		sb.WriteString(line)
		sb.WriteString("\n")
	}
	out := sb.String()

	if opts.Stream && opts.OnChunk != nil {
		for _, w := range strings.SplitAfter(out, " ") {
			opts.OnChunk(w)
		}
	}
	return out, nil
}

func excerpt(s string, limit int) string {
	s = strings.TrimSpace(s)
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	return string(r[:limit]) + "…"
}
