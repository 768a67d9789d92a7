package generator

import (
	"context"
	"strings"
	"sync"
	"testing"

	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m, goleak.IgnoreTopFunction("go.opencensus.io/stats/view.(*worker).start"))
}

// recordingLLM records every prompt and answers with fn.
type recordingLLM struct {
	mu      sync.Mutex
	prompts []string
	opts    []CompletionOptions
	fn      func(prompt string) (string, error)
}

func newRecordingLLM(fn func(prompt string) (string, error)) *recordingLLM {
	return &recordingLLM{fn: fn}
}

func echoLLM() *recordingLLM {
	return newRecordingLLM(func(p string) (string, error) { return "ECHO:" + p, nil })
}

func upperLLM() *recordingLLM {
	return newRecordingLLM(func(p string) (string, error) { return strings.ToUpper(p), nil })
}

func (r *recordingLLM) Complete(_ context.Context, prompt string, opts CompletionOptions) (string, error) {
	r.mu.Lock()
	r.prompts = append(r.prompts, prompt)
	r.opts = append(r.opts, opts)
	r.mu.Unlock()
	out, err := r.fn(prompt)
	if err == nil && opts.Stream && opts.OnChunk != nil {
		half := len(out) / 2
		opts.OnChunk(out[:half])
		opts.OnChunk(out[half:])
	}
	return out, err
}

func (r *recordingLLM) calls() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.prompts...)
}

func articleInputs() map[string]string {
	return map[string]string{
		FieldContentType:            "Blog Post",
		FieldBrand:                  "Dasho",
		FieldBrandDescription:       "a scheduling app for small teams",
		FieldTopic:                  "async standups",
		FieldWritingStyle:           "friendly",
		FieldTargetAudience:         "engineering managers",
		FieldAdditionalInstructions: "keep it under 800 words",
	}
}

func mustRunner(t *testing.T, llm TextCompletion, opts ...RunnerOption) *Runner {
	t.Helper()
	r, err := NewRunner(llm, opts...)
	if err != nil {
		t.Fatalf("NewRunner: %v", err)
	}
	return r
}
