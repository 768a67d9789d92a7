package generator

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReviseBeforeRun(t *testing.T) {
	v := ArticleVariant()
	_, err := mustRunner(t, echoLLM()).Revise(context.Background(), v.Feedback, nil, "shorter please")
	assert.ErrorIs(t, err, ErrNoActiveRun)
	assert.ErrorIs(t, err, ErrPrecondition)
}

func TestReviseIsStatelessAcrossRounds(t *testing.T) {
	llm := echoLLM()
	r := mustRunner(t, llm)
	v := ArticleVariant()

	stored, err := r.Run(context.Background(), v.Pipeline, articleInputs())
	require.NoError(t, err)
	before := stored.Fields()

	first, err := r.Revise(context.Background(), v.Feedback, stored, "make it punchier")
	require.NoError(t, err)
	second, err := r.Revise(context.Background(), v.Feedback, stored, "add a call to action")
	require.NoError(t, err)

	calls := llm.calls()
	require.Len(t, calls, 6)
	p1, p2 := calls[4], calls[5]

	for _, p := range []string{p1, p2} {
		assert.Contains(t, p, stored.Value(FieldFinalOutput))
		assert.Contains(t, p, stored.Value(FieldCritique))
	}
	assert.Contains(t, p1, "make it punchier")
	assert.NotContains(t, p2, "make it punchier")
	assert.NotContains(t, p2, first)
	assert.Contains(t, p2, "add a call to action")
	assert.Equal(t, "ECHO:"+p2, second)

	assert.Equal(t, before, stored.Fields())
}

func TestReviseRejectsEmptyFeedback(t *testing.T) {
	llm := echoLLM()
	r := mustRunner(t, llm)
	v := ArticleVariant()
	stored, err := r.Run(context.Background(), v.Pipeline, articleInputs())
	require.NoError(t, err)

	_, err = r.Revise(context.Background(), v.Feedback, stored, "   ")
	assert.ErrorIs(t, err, ErrInputValidation)
	assert.Len(t, llm.calls(), 4)
}

func TestReviseRejectsResultFromOtherPipeline(t *testing.T) {
	r := mustRunner(t, echoLLM())
	stored, err := r.Run(context.Background(), ArticleVariant().Pipeline, articleInputs())
	require.NoError(t, err)

	_, err = r.Revise(context.Background(), BrandStrategyVariant().Feedback, stored, "more")
	assert.ErrorIs(t, err, ErrConfiguration)
}

func TestNewFeedbackStageValidation(t *testing.T) {
	p := MustPipeline(twoStageSpec())

	_, err := NewFeedbackStage(p, StageSpec{Name: "fb", Inputs: []string{"b"}, Output: "r", Template: "{b}"})
	assert.ErrorIs(t, err, ErrConfiguration)

	_, err = NewFeedbackStage(p, StageSpec{Name: "fb", Inputs: []string{"nope", FeedbackField}, Output: "r", Template: "{nope} {user_feedback}"})
	var ue *UnresolvedFieldError
	require.ErrorAs(t, err, &ue)
	assert.Equal(t, "nope", ue.Field)

	fs, err := NewFeedbackStage(p, StageSpec{Name: "fb", Inputs: []string{"a", "b", FeedbackField}, Output: "r", Template: "{b} <- {user_feedback}"})
	require.NoError(t, err)
	assert.Equal(t, "r", fs.Output())
}
