package reasoning

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type verdict struct {
	CharacterID string `json:"character_id"`
	Severity    int    `json:"severity"`
}

func TestDecodeJSONStrict(t *testing.T) {
	var v verdict
	stage, err := DecodeJSON(`{"character_id": "butler", "severity": 80}`, &v)
	require.NoError(t, err)
	assert.Equal(t, StageStrict, stage)
	assert.Equal(t, "butler", v.CharacterID)
}

func TestDecodeJSONLenient(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{
			"markdown fence",
			"```json\n{\"character_id\": \"butler\", \"severity\": 80}\n```",
		},
		{
			"bare fence",
			"```\n{\"character_id\": \"butler\", \"severity\": 80}\n```",
		},
		{
			"surrounding prose",
			"Here is my analysis:\n{\"character_id\": \"butler\", \"severity\": 80}\nLet me know if you need more.",
		},
		{
			"braces inside strings",
			"Result: {\"character_id\": \"butler {senior}\", \"severity\": 80} done",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var v verdict
			stage, err := DecodeJSON(tc.raw, &v)
			require.NoError(t, err)
			assert.Equal(t, StageLenient, stage)
			assert.Equal(t, 80, v.Severity)
		})
	}
}

func TestDecodeJSONArray(t *testing.T) {
	var vs []verdict
	stage, err := DecodeJSON("The contradictions I found:\n[{\"character_id\": \"maid\", \"severity\": 65}]", &vs)
	require.NoError(t, err)
	assert.Equal(t, StageLenient, stage)
	require.Len(t, vs, 1)
	assert.Equal(t, "maid", vs[0].CharacterID)
}

func TestDecodeJSONNoJSON(t *testing.T) {
	var v verdict
	_, err := DecodeJSON("I could not find any contradictions this round.", &v)
	assert.ErrorIs(t, err, ErrNoJSON)

	_, err = DecodeJSON("unbalanced { \"character_id\": \"butler\"", &v)
	assert.ErrorIs(t, err, ErrNoJSON)
}

func TestDecodeJSONEscapedQuotes(t *testing.T) {
	var v verdict
	stage, err := DecodeJSON(`noise {"character_id": "the \"butler\"", "severity": 10} noise`, &v)
	require.NoError(t, err)
	assert.Equal(t, StageLenient, stage)
	assert.Equal(t, `the "butler"`, v.CharacterID)
}
