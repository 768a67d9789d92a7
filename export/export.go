package export

import (
	"bytes"
	"fmt"
	"html"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"content_draft_generator/generator"
)

var md = goldmark.New(goldmark.WithExtensions(extension.GFM))

// Markdown composes one document from a run and its feedback thread.
func Markdown(p generator.Presentation, thread []generator.FeedbackRecord) string {
	var b strings.Builder
	title := p.Title
	if title == "" {
		title = p.Pipeline
	}
	fmt.Fprintf(&b, "# %s\n\n", title)

	for _, sec := range p.Sections {
		fmt.Fprintf(&b, "## %s\n\n", sec.Heading)
		if len(sec.Items) > 1 {
			for _, item := range sec.Items {
				item = closeFences(item)
				fmt.Fprintf(&b, "- %s\n", strings.ReplaceAll(item, "\n", "\n  "))
			}
			b.WriteString("\n")
			continue
		}
		b.WriteString(closeFences(sec.Text))
		b.WriteString("\n\n")
	}

	if len(thread) > 0 {
		b.WriteString("## Feedback Thread\n\n")
		for i, rec := range thread {
			fmt.Fprintf(&b, "### Round %d\n\n", i+1)
			fmt.Fprintf(&b, "> Feedback: %s\n\n", strings.TrimSpace(rec.Feedback))
			b.WriteString(closeFences(strings.TrimSpace(rec.Output)))
			b.WriteString("\n\n")
		}
	}
	return strings.TrimRight(b.String(), "\n") + "\n"
}

// closeFences terminates a code fence left open in text, which happens when
// model output is cut off at the token limit.
func closeFences(text string) string {
	var open string
	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimLeft(line, " ")
		if len(line)-len(trimmed) > 3 {
			continue
		}
		fence := fenceRun(trimmed)
		switch {
		case fence == "":
		case open == "":
			open = fence
		case fence[0] == open[0] && len(fence) >= len(open) && strings.TrimSpace(trimmed[len(fence):]) == "":
			open = ""
		}
	}
	if open == "" {
		return text
	}
	return strings.TrimRight(text, "\n") + "\n" + open
}

// fenceRun returns the leading run of three or more backticks or tildes.
func fenceRun(line string) string {
	if line == "" || (line[0] != '`' && line[0] != '~') {
		return ""
	}
	n := 0
	for n < len(line) && line[n] == line[0] {
		n++
	}
	if n < 3 {
		return ""
	}
	if line[0] == '`' && strings.Contains(line[n:], "`") {
		return ""
	}
	return line[:n]
}

// HTML converts markdown to an HTML fragment.
func HTML(markdown string) (string, error) {
	var buf bytes.Buffer
	if err := md.Convert([]byte(markdown), &buf); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// Document wraps an HTML fragment in a minimal standalone page.
func Document(title, body string) string {
	var b strings.Builder
	b.WriteString("<!DOCTYPE html>\n<html>\n<head>\n<meta charset=\"utf-8\">\n<title>")
	b.WriteString(html.EscapeString(title))
	b.WriteString("</title>\n</head>\n<body>\n")
	b.WriteString(body)
	b.WriteString("</body>\n</html>\n")
	return b.String()
}

// Summary 取压缩空白后的前 limit 个字符，用作摘要。
func Summary(text string, limit int) string {
	joined := strings.Join(strings.Fields(text), " ")
	r := []rune(joined)
	if len(r) <= limit {
		return joined
	}
	return string(r[:limit])
}
