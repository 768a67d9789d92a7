package generator

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStageSpecPlaceholders(t *testing.T) {
	spec := StageSpec{Template: "{b} then {a} then {b} and '|' stays"}
	assert.Equal(t, []string{"b", "a"}, spec.Placeholders())
}

func TestNewStageRejectsUndeclaredPlaceholder(t *testing.T) {
	_, err := NewStage(StageSpec{Name: "s", Inputs: []string{"a"}, Output: "o", Template: "{a} {b}"})
	require.Error(t, err)

	var mf *MissingFieldError
	require.ErrorAs(t, err, &mf)
	assert.Equal(t, "b", mf.Field)
	assert.ErrorIs(t, err, ErrConfiguration)
}

func TestNewStageRequiresNameOutputTemplate(t *testing.T) {
	for _, spec := range []StageSpec{
		{Output: "o", Template: "x"},
		{Name: "s", Template: "x"},
		{Name: "s", Output: "o"},
	} {
		_, err := NewStage(spec)
		assert.ErrorIs(t, err, ErrConfiguration)
	}
}

func TestStageRenderSubstitutesLiterally(t *testing.T) {
	st, err := NewStage(StageSpec{Name: "s", Inputs: []string{"a", "b"}, Output: "o", Template: "A={a}; B={b}; A again={a}"})
	require.NoError(t, err)

	out, err := st.Render(map[string]string{"a": "{b}", "b": "2"})
	require.NoError(t, err)
	assert.Equal(t, "A={b}; B=2; A again={b}", out)
}

func TestStageRenderMissingField(t *testing.T) {
	st, err := NewStage(StageSpec{Name: "s", Inputs: []string{"a", "unused"}, Output: "o", Template: "{a}"})
	require.NoError(t, err)

	_, err = st.Render(map[string]string{"a": "1"})
	var mf *MissingFieldError
	require.ErrorAs(t, err, &mf)
	assert.Equal(t, "s", mf.Stage)
	assert.Equal(t, "unused", mf.Field)
}

func TestStageRunWrapsModelFailure(t *testing.T) {
	boom := errors.New("rate limited")
	llm := newRecordingLLM(func(string) (string, error) { return "", boom })
	st, err := NewStage(StageSpec{Name: "s", Inputs: []string{"a"}, Output: "o", Template: "{a}"})
	require.NoError(t, err)

	_, err = st.Run(context.Background(), llm, CompletionOptions{}, map[string]string{"a": "x"})
	assert.ErrorIs(t, err, ErrExternalCall)
	assert.ErrorIs(t, err, boom)
}
