package generator

import (
	"context"
	"errors"
	"regexp"
	"slices"
	"strings"
)

var placeholderRe = regexp.MustCompile(`\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// StageSpec 描述一次模板化的模型调用：命名输入 -> 提示词 -> 命名输出。
type StageSpec struct {
	Name     string   `json:"name"`
	Inputs   []string `json:"inputs"`
	Output   string   `json:"output"`
	Template string   `json:"-"`
}

// Placeholders returns the distinct {field} names used by the template, in
// order of first appearance.
func (s StageSpec) Placeholders() []string {
	var out []string
	for _, m := range placeholderRe.FindAllStringSubmatch(s.Template, -1) {
		if !slices.Contains(out, m[1]) {
			out = append(out, m[1])
		}
	}
	return out
}

// Stage is a validated StageSpec.
type Stage struct {
	spec StageSpec
}

// NewStage checks that the stage is named, has an output field and that
// every template placeholder is a declared input.
func NewStage(spec StageSpec) (*Stage, error) {
	if strings.TrimSpace(spec.Name) == "" {
		return nil, configErrorf("stage name is required")
	}
	if strings.TrimSpace(spec.Output) == "" {
		return nil, configErrorf("stage %q: output field is required", spec.Name)
	}
	if strings.TrimSpace(spec.Template) == "" {
		return nil, configErrorf("stage %q: template is required", spec.Name)
	}
	for _, p := range spec.Placeholders() {
		if !slices.Contains(spec.Inputs, p) {
			return nil, &MissingFieldError{Stage: spec.Name, Field: p}
		}
	}
	spec.Inputs = slices.Clone(spec.Inputs)
	return &Stage{spec: spec}, nil
}

func (s *Stage) Name() string     { return s.spec.Name }
func (s *Stage) Output() string   { return s.spec.Output }
func (s *Stage) Inputs() []string { return slices.Clone(s.spec.Inputs) }
func (s *Stage) Spec() StageSpec {
	spec := s.spec
	spec.Inputs = slices.Clone(spec.Inputs)
	return spec
}

// Render 做纯字符串替换，不做转义；值中出现的 {x} 不会被二次替换。
func (s *Stage) Render(inputs map[string]string) (string, error) {
	for _, f := range s.spec.Inputs {
		if _, ok := inputs[f]; !ok {
			return "", &MissingFieldError{Stage: s.spec.Name, Field: f}
		}
	}
	var missing error
	out := placeholderRe.ReplaceAllStringFunc(s.spec.Template, func(m string) string {
		name := m[1 : len(m)-1]
		v, ok := inputs[name]
		if !ok {
			if missing == nil {
				missing = &MissingFieldError{Stage: s.spec.Name, Field: name}
			}
			return m
		}
		return v
	})
	if missing != nil {
		return "", missing
	}
	return out, nil
}

// Run renders the prompt and sends it to the model.
func (s *Stage) Run(ctx context.Context, llm TextCompletion, opts CompletionOptions, inputs map[string]string) (string, error) {
	prompt, err := s.Render(inputs)
	if err != nil {
		return "", err
	}
	return s.complete(ctx, llm, opts, prompt)
}

// complete sends an already rendered prompt.
func (s *Stage) complete(ctx context.Context, llm TextCompletion, opts CompletionOptions, prompt string) (string, error) {
	out, err := llm.Complete(ctx, prompt, opts)
	if err != nil {
		return "", &StageError{Stage: s.spec.Name, Err: err}
	}
	return out, nil
}

func asStageError(err error) (*StageError, bool) {
	var se *StageError
	if errors.As(err, &se) {
		return se, true
	}
	return nil, false
}
