package generator

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"
)

// Agent 负责按会话运行 pipeline 或基于反馈修订稿件。
type Agent struct {
	runner   *Runner
	variants map[string]*Variant
	order    []string
}

// NewAgent wires a runner to the given variants, or to the built-in ones when
// none are passed.
func NewAgent(runner *Runner, variants ...*Variant) (*Agent, error) {
	if runner == nil {
		return nil, errors.New("runner is required")
	}
	if len(variants) == 0 {
		variants = BuiltinVariants()
	}
	a := &Agent{runner: runner, variants: make(map[string]*Variant, len(variants))}
	for _, v := range variants {
		if v == nil || v.Pipeline == nil || v.Feedback == nil {
			return nil, configErrorf("variant requires a pipeline and a feedback stage")
		}
		name := v.Pipeline.Name()
		if _, dup := a.variants[name]; dup {
			return nil, configErrorf("duplicate pipeline %q", name)
		}
		if v.Feedback.pipeline != name {
			return nil, configErrorf("feedback stage %q is bound to %q, not %q", v.Feedback.Name(), v.Feedback.pipeline, name)
		}
		a.variants[name] = v
		a.order = append(a.order, name)
	}
	return a, nil
}

// Variant looks up a variant by pipeline name.
func (a *Agent) Variant(name string) (*Variant, bool) {
	v, ok := a.variants[name]
	return v, ok
}

// Variants returns the registered variants in registration order.
func (a *Agent) Variants() []*Variant {
	out := make([]*Variant, 0, len(a.order))
	for _, name := range a.order {
		out = append(out, a.variants[name])
	}
	return out
}

// Defaults returns the runner's completion defaults, used to seed new sessions.
func (a *Agent) Defaults() CompletionOptions { return a.runner.Defaults() }

// Generate runs the session's pipeline and replaces its stored result.
// The feedback log is kept.
func (a *Agent) Generate(ctx context.Context, s *Session, opts ...RunOption) (*GenerationResult, error) {
	v, ok := a.variants[s.Pipeline]
	if !ok {
		return nil, fmt.Errorf("%w: unknown pipeline %q", ErrInputValidation, s.Pipeline)
	}
	res, err := a.runner.Run(ctx, v.Pipeline, s.Inputs, a.sessionOptions(s, opts)...)
	if err != nil {
		return nil, err
	}
	s.Result = res
	s.UpdatedAt = time.Now()
	return res, nil
}

// Revise applies feedback to the session's stored result and appends the
// round to the feedback log. Every round revises the stored run, not the
// previous revision.
func (a *Agent) Revise(ctx context.Context, s *Session, feedback string, opts ...RunOption) (FeedbackRecord, error) {
	if s.Result == nil {
		return FeedbackRecord{}, ErrNoActiveRun
	}
	v, ok := a.variants[s.Result.Pipeline()]
	if !ok {
		return FeedbackRecord{}, fmt.Errorf("%w: unknown pipeline %q", ErrInputValidation, s.Result.Pipeline())
	}
	out, err := a.runner.Revise(ctx, v.Feedback, s.Result, feedback, a.sessionOptions(s, opts)...)
	if err != nil {
		return FeedbackRecord{}, err
	}
	rec := FeedbackRecord{Feedback: feedback, Output: out, CreatedAt: time.Now()}
	s.Feedback = append(s.Feedback, rec)
	s.UpdatedAt = rec.CreatedAt
	return rec, nil
}

func (a *Agent) sessionOptions(s *Session, opts []RunOption) []RunOption {
	if s.Options == nil {
		return opts
	}
	return append([]RunOption{WithCompletionOptions(*s.Options)}, opts...)
}

// Session 持有一次主题的运行结果和反馈记录，由调用方持有并传入。
// 同一会话内的调用需由调用方串行化。
type Session struct {
	ID        string             `json:"id"`
	Pipeline  string             `json:"pipeline"`
	Inputs    map[string]string  `json:"inputs"`
	Options   *CompletionOptions `json:"options,omitempty"`
	Result    *GenerationResult  `json:"result,omitempty"`
	Feedback  []FeedbackRecord   `json:"feedback"`
	CreatedAt time.Time          `json:"created_at"`
	UpdatedAt time.Time          `json:"updated_at"`
}

// NewSession 创建 session，尚未生成稿件。
func NewSession(id, pipeline string, inputs map[string]string) *Session {
	now := time.Now()
	in := make(map[string]string, len(inputs))
	for k, v := range inputs {
		in[k] = v
	}
	return &Session{
		ID:        id,
		Pipeline:  pipeline,
		Inputs:    in,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Thread returns the feedback log, newest first when reverse is set.
func (s *Session) Thread(reverse bool) []FeedbackRecord {
	out := slices.Clone(s.Feedback)
	if reverse {
		slices.Reverse(out)
	}
	return out
}
