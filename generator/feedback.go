package generator

import (
	"context"
	"fmt"
	"slices"
	"strings"
)

// FeedbackField is the input name that carries the user's feedback text.
const FeedbackField = "user_feedback"

// FeedbackStage 基于已保存的运行结果和一条用户反馈生成修订稿。
// 每次调用互相独立：之前的反馈和修订都不会进入提示词。
type FeedbackStage struct {
	pipeline string
	stage    *Stage
}

// NewFeedbackStage binds a revision stage to the results of p. Every input
// must be FeedbackField or a field the pipeline's results carry.
func NewFeedbackStage(p *Pipeline, spec StageSpec) (*FeedbackStage, error) {
	st, err := NewStage(spec)
	if err != nil {
		return nil, fmt.Errorf("feedback for pipeline %q: %w", p.Name(), err)
	}
	if !slices.Contains(spec.Inputs, FeedbackField) {
		return nil, configErrorf("feedback stage %q must take %q as input", spec.Name, FeedbackField)
	}
	fields := p.Fields()
	for _, in := range spec.Inputs {
		if in == FeedbackField {
			continue
		}
		if !slices.Contains(fields, in) {
			return nil, fmt.Errorf("feedback for pipeline %q: %w", p.Name(), &UnresolvedFieldError{Stage: spec.Name, Field: in})
		}
	}
	return &FeedbackStage{pipeline: p.Name(), stage: st}, nil
}

// MustFeedbackStage panics on an invalid spec.
func MustFeedbackStage(p *Pipeline, spec StageSpec) *FeedbackStage {
	fs, err := NewFeedbackStage(p, spec)
	if err != nil {
		panic(err)
	}
	return fs
}

func (f *FeedbackStage) Name() string    { return f.stage.Name() }
func (f *FeedbackStage) Output() string  { return f.stage.Output() }
func (f *FeedbackStage) Spec() StageSpec { return f.stage.Spec() }

// Revise produces a revision of stored using feedback. stored is never
// modified; the caller owns appending the result to its feedback log.
func (r *Runner) Revise(ctx context.Context, f *FeedbackStage, stored *GenerationResult, feedback string, opts ...RunOption) (string, error) {
	if stored == nil {
		return "", ErrNoActiveRun
	}
	if stored.Pipeline() != f.pipeline {
		return "", configErrorf("feedback stage %q belongs to pipeline %q, result came from %q", f.stage.Name(), f.pipeline, stored.Pipeline())
	}
	if strings.TrimSpace(feedback) == "" {
		return "", fmt.Errorf("%w: feedback text is required", ErrInputValidation)
	}

	inputs := make(map[string]string, len(f.stage.spec.Inputs))
	for _, in := range f.stage.spec.Inputs {
		if in == FeedbackField {
			inputs[in] = feedback
			continue
		}
		v, ok := stored.Get(in)
		if !ok {
			return "", &UnresolvedFieldError{Stage: f.stage.Name(), Field: in}
		}
		inputs[in] = v
	}

	out, err := r.runStage(ctx, f.pipeline, -1, f.stage, inputs, r.callConfig(opts))
	if err != nil {
		return "", err
	}
	return out, nil
}
