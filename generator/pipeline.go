package generator

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"content_draft_generator/logger"
)

// PipelineSpec 按顺序列出 stage；每个 stage 只能引用外部输入或更早 stage 的输出。
type PipelineSpec struct {
	Name           string      `json:"name"`
	Description    string      `json:"description,omitempty"`
	Stages         []StageSpec `json:"stages"`
	ExternalInputs []string    `json:"external_inputs"`
	// Outputs 为空时取所有 stage 输出。
	Outputs []string `json:"outputs"`
}

// Pipeline is a validated PipelineSpec. It is immutable and safe to share
// between sessions.
type Pipeline struct {
	spec   PipelineSpec
	stages []*Stage
	fields []string
}

// NewPipeline validates the wiring once so that misconfigured templates fail
// at startup rather than on the first model call.
func NewPipeline(spec PipelineSpec) (*Pipeline, error) {
	if strings.TrimSpace(spec.Name) == "" {
		return nil, configErrorf("pipeline name is required")
	}
	if len(spec.Stages) == 0 {
		return nil, configErrorf("pipeline %q: at least one stage is required", spec.Name)
	}

	available := make(map[string]bool, len(spec.ExternalInputs)+len(spec.Stages))
	var fields []string
	for _, in := range spec.ExternalInputs {
		if strings.TrimSpace(in) == "" {
			return nil, configErrorf("pipeline %q: empty external input name", spec.Name)
		}
		if available[in] {
			return nil, configErrorf("pipeline %q: duplicate external input %q", spec.Name, in)
		}
		available[in] = true
		fields = append(fields, in)
	}

	stages := make([]*Stage, 0, len(spec.Stages))
	var produced []string
	for _, ss := range spec.Stages {
		st, err := NewStage(ss)
		if err != nil {
			return nil, fmt.Errorf("pipeline %q: %w", spec.Name, err)
		}
		for _, in := range ss.Inputs {
			if !available[in] {
				return nil, fmt.Errorf("pipeline %q: %w", spec.Name, &UnresolvedFieldError{Stage: ss.Name, Field: in})
			}
		}
		if !available[ss.Output] {
			fields = append(fields, ss.Output)
		}
		available[ss.Output] = true
		produced = append(produced, ss.Output)
		stages = append(stages, st)
	}

	if len(spec.Outputs) == 0 {
		spec.Outputs = produced
	}
	for _, out := range spec.Outputs {
		if !slices.Contains(produced, out) {
			return nil, configErrorf("pipeline %q: declared output %q is not produced by any stage", spec.Name, out)
		}
	}

	spec.ExternalInputs = slices.Clone(spec.ExternalInputs)
	spec.Outputs = slices.Clone(spec.Outputs)
	spec.Stages = slices.Clone(spec.Stages)
	return &Pipeline{spec: spec, stages: stages, fields: fields}, nil
}

// MustPipeline panics on an invalid spec. Used for the built-in pipelines.
func MustPipeline(spec PipelineSpec) *Pipeline {
	p, err := NewPipeline(spec)
	if err != nil {
		panic(err)
	}
	return p
}

func (p *Pipeline) Name() string             { return p.spec.Name }
func (p *Pipeline) Description() string      { return p.spec.Description }
func (p *Pipeline) ExternalInputs() []string { return slices.Clone(p.spec.ExternalInputs) }
func (p *Pipeline) Outputs() []string        { return slices.Clone(p.spec.Outputs) }

// Fields lists every key a result of this pipeline holds: external inputs
// followed by stage outputs in execution order.
func (p *Pipeline) Fields() []string { return slices.Clone(p.fields) }

func (p *Pipeline) Stages() []StageSpec {
	out := make([]StageSpec, len(p.stages))
	for i, st := range p.stages {
		out[i] = st.Spec()
	}
	return out
}

// MissingInputs returns the declared external inputs absent from inputs, sorted.
func (p *Pipeline) MissingInputs(inputs map[string]string) []string {
	var missing []string
	for _, in := range p.spec.ExternalInputs {
		if _, ok := inputs[in]; !ok {
			missing = append(missing, in)
		}
	}
	slices.Sort(missing)
	return missing
}

// StageEvent 在每个 stage 调用前后传给 Hooks。
type StageEvent struct {
	Pipeline string
	Stage    string
	Index    int // -1 for the feedback stage
	Prompt   string
	Output   string
	Duration time.Duration
	Err      error
}

// Hooks observe stage execution. They must not block for long.
type Hooks struct {
	OnStageStart func(ctx context.Context, e StageEvent)
	OnStageEnd   func(ctx context.Context, e StageEvent)
}

// ProgressSink receives streamed chunks tagged with the stage producing them.
type ProgressSink func(stage, chunk string)

// Runner executes pipelines against one TextCompletion.
type Runner struct {
	llm      TextCompletion
	defaults CompletionOptions
	hooks    []Hooks
	logger   *logger.Logger
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithLogger sets the logger used for stage-level debug output.
func WithLogger(l *logger.Logger) RunnerOption {
	return func(r *Runner) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithHooks registers lifecycle hooks. May be passed more than once.
func WithHooks(h Hooks) RunnerOption {
	return func(r *Runner) {
		r.hooks = append(r.hooks, h)
	}
}

// WithDefaults sets completion options used when a run does not override them.
func WithDefaults(opts CompletionOptions) RunnerOption {
	return func(r *Runner) {
		r.defaults = opts
	}
}

// NewRunner 创建 Runner；llm 不能为空。
func NewRunner(llm TextCompletion, opts ...RunnerOption) (*Runner, error) {
	if llm == nil {
		return nil, fmt.Errorf("%w: text completion client is required", ErrConfiguration)
	}
	r := &Runner{
		llm:      llm,
		defaults: DefaultCompletionOptions(),
		logger:   logger.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Defaults returns the runner's default completion options.
func (r *Runner) Defaults() CompletionOptions { return r.defaults }

type runConfig struct {
	completion CompletionOptions
	progress   ProgressSink
	hooks      []Hooks
}

// RunOption adjusts a single Run or Revise call.
type RunOption func(*runConfig)

// WithCompletionOptions overrides the runner defaults for one call.
func WithCompletionOptions(opts CompletionOptions) RunOption {
	return func(c *runConfig) {
		c.completion = opts
	}
}

// WithProgress streams partial model output to sink when streaming is enabled.
func WithProgress(sink ProgressSink) RunOption {
	return func(c *runConfig) {
		c.progress = sink
	}
}

// WithCallHooks adds hooks that fire only for one call, after the runner's own.
func WithCallHooks(h Hooks) RunOption {
	return func(c *runConfig) {
		c.hooks = append(c.hooks, h)
	}
}

func (r *Runner) callConfig(opts []RunOption) runConfig {
	cfg := runConfig{completion: r.defaults}
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

// runContext 只属于一次 Run，结束后丢弃。
type runContext map[string]string

// Run executes every stage in declaration order, threading each output into
// the context seen by later stages. Nothing is returned on failure.
func (r *Runner) Run(ctx context.Context, p *Pipeline, inputs map[string]string, opts ...RunOption) (*GenerationResult, error) {
	if missing := p.MissingInputs(inputs); len(missing) > 0 {
		return nil, &MissingExternalInputError{Fields: missing}
	}
	cfg := r.callConfig(opts)

	rc := make(runContext, len(p.fields))
	for _, in := range p.spec.ExternalInputs {
		rc[in] = inputs[in]
	}

	log := r.logger.With("pipeline", p.spec.Name)
	for i, st := range p.stages {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("pipeline %q: %w", p.spec.Name, err)
		}
		stageInputs := make(map[string]string, len(st.spec.Inputs))
		for _, f := range st.spec.Inputs {
			v, ok := rc[f]
			if !ok {
				return nil, &UnresolvedFieldError{Stage: st.spec.Name, Field: f}
			}
			stageInputs[f] = v
		}

		out, err := r.runStage(ctx, p.spec.Name, i, st, stageInputs, cfg)
		if err != nil {
			log.Warn("stage failed", "stage", st.spec.Name, "error", err)
			return nil, err
		}
		if _, exists := rc[st.spec.Output]; exists {
			log.Debug("stage output overwrites existing field", "stage", st.spec.Name, "field", st.spec.Output)
		}
		rc[st.spec.Output] = out
	}

	log.Info("pipeline run complete", "stages", len(p.stages))
	return newGenerationResult(p.spec.Name, rc, p.spec.Outputs), nil
}

func (r *Runner) runStage(ctx context.Context, pipeline string, idx int, st *Stage, inputs map[string]string, cfg runConfig) (string, error) {
	prompt, err := st.Render(inputs)
	if err != nil {
		return "", err
	}

	completion := cfg.completion
	completion.OnChunk = nil
	if completion.Stream && cfg.progress != nil {
		name := st.spec.Name
		completion.OnChunk = func(chunk string) { cfg.progress(name, chunk) }
	}

	ev := StageEvent{Pipeline: pipeline, Stage: st.spec.Name, Index: idx, Prompt: prompt}
	hooks := append(slices.Clone(r.hooks), cfg.hooks...)
	fireHooks(ctx, hooks, ev, true)
	start := time.Now()
	out, err := st.complete(ctx, r.llm, completion, prompt)
	if se, ok := asStageError(err); ok {
		se.Pipeline = pipeline
	}
	ev.Duration = time.Since(start)
	ev.Output = out
	ev.Err = err
	fireHooks(ctx, hooks, ev, false)
	if err != nil {
		return "", err
	}
	r.logger.Debug("stage complete", "pipeline", pipeline, "stage", st.spec.Name, "duration", ev.Duration)
	return out, nil
}

func fireHooks(ctx context.Context, hooks []Hooks, ev StageEvent, start bool) {
	for _, h := range hooks {
		switch {
		case start && h.OnStageStart != nil:
			h.OnStageStart(ctx, ev)
		case !start && h.OnStageEnd != nil:
			h.OnStageEnd(ctx, ev)
		}
	}
}
