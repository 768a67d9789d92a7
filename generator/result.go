package generator

import (
	"encoding/json"
	"maps"
	"slices"
	"time"
)

// GenerationResult 是一次完整运行结束时的只读快照：外部输入 + 各 stage 输出。
type GenerationResult struct {
	pipeline string
	fields   map[string]string
	outputs  []string
}

func newGenerationResult(pipeline string, fields map[string]string, outputs []string) *GenerationResult {
	return &GenerationResult{
		pipeline: pipeline,
		fields:   maps.Clone(fields),
		outputs:  slices.Clone(outputs),
	}
}

// Pipeline is the name of the pipeline that produced the result.
func (r *GenerationResult) Pipeline() string { return r.pipeline }

// Get returns the value of one field.
func (r *GenerationResult) Get(field string) (string, bool) {
	v, ok := r.fields[field]
	return v, ok
}

// Value returns the field value or "" when absent.
func (r *GenerationResult) Value(field string) string {
	return r.fields[field]
}

// Fields returns a copy of every field.
func (r *GenerationResult) Fields() map[string]string {
	return maps.Clone(r.fields)
}

// Keys returns the field names sorted.
func (r *GenerationResult) Keys() []string {
	return slices.Sorted(maps.Keys(r.fields))
}

// Outputs returns the declared final output names in declaration order.
func (r *GenerationResult) Outputs() []string {
	return slices.Clone(r.outputs)
}

// Equal reports whether two results hold the same pipeline and fields.
func (r *GenerationResult) Equal(o *GenerationResult) bool {
	if r == nil || o == nil {
		return r == o
	}
	return r.pipeline == o.pipeline && maps.Equal(r.fields, o.fields) && slices.Equal(r.outputs, o.outputs)
}

type generationResultJSON struct {
	Pipeline string            `json:"pipeline"`
	Fields   map[string]string `json:"fields"`
	Outputs  []string          `json:"outputs"`
}

func (r *GenerationResult) MarshalJSON() ([]byte, error) {
	return json.Marshal(generationResultJSON{Pipeline: r.pipeline, Fields: r.fields, Outputs: r.outputs})
}

func (r *GenerationResult) UnmarshalJSON(data []byte) error {
	var raw generationResultJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if raw.Fields == nil {
		raw.Fields = map[string]string{}
	}
	*r = GenerationResult{pipeline: raw.Pipeline, fields: raw.Fields, outputs: raw.Outputs}
	return nil
}

// FeedbackRecord 记录一轮反馈及对应修订，创建后不再修改。
type FeedbackRecord struct {
	Feedback  string    `json:"feedback"`
	Output    string    `json:"output"`
	CreatedAt time.Time `json:"created_at"`
}
