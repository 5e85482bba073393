package coqa

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAnswerTypeRoundTrip(t *testing.T) {
	for _, at := range AnswerTypes(true) {
		parsed, err := ParseAnswerType(at.String())
		require.NoError(t, err)
		assert.Equal(t, at, parsed)
	}
}

func TestParseAnswerTypeUnknown(t *testing.T) {
	_, err := ParseAnswerType("essay")
	require.Error(t, err)
}

func TestAnswerTypeJSON(t *testing.T) {
	b, err := json.Marshal(AnswerYesNo)
	require.NoError(t, err)
	assert.Equal(t, `"yes_no"`, string(b))

	var at AnswerType
	require.NoError(t, json.Unmarshal([]byte(`"counting"`), &at))
	assert.Equal(t, AnswerCounting, at)
}

func TestAnswerTypesExcludesUnknown(t *testing.T) {
	types := AnswerTypes(false)
	assert.NotContains(t, types, AnswerUnknown)
	assert.Len(t, types, 5)

	assert.Len(t, AnswerTypes(true), 6)
}
