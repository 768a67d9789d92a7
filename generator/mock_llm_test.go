package generator

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMockLLMOutputNestsWithoutFences(t *testing.T) {
	res, err := mustRunner(t, MockLLM{}).Run(context.Background(), ArticleVariant().Pipeline, articleInputs())
	require.NoError(t, err)

	for _, f := range res.Outputs() {
		out := res.Value(f)
		assert.NotContains(t, out, "```", f)
		assert.True(t, strings.HasPrefix(out, "# Mock response\n"), f)
	}
	assert.Contains(t, res.Value(FieldCritique), "Point two")
}

func TestMockLLMStreamsWholeOutput(t *testing.T) {
	var chunks []string
	opts := DefaultCompletionOptions()
	opts.Stream = true
	opts.OnChunk = func(c string) { chunks = append(chunks, c) }

	out, err := MockLLM{}.Complete(context.Background(), "hello world", opts)
	require.NoError(t, err)
	assert.Equal(t, out, strings.Join(chunks, ""))
	assert.Contains(t, out, "> hello world\n")
}
