package model

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionStatusTransitions(t *testing.T) {
	cases := []struct {
		from, to SessionStatus
		ok       bool
	}{
		{SessionStatusNotStarted, SessionStatusInProgress, true},
		{SessionStatusInProgress, SessionStatusSubmitted, true},
		{SessionStatusSubmitted, SessionStatusGraded, true},
		// Backward and skipping steps are never legal.
		{SessionStatusInProgress, SessionStatusNotStarted, false},
		{SessionStatusSubmitted, SessionStatusInProgress, false},
		{SessionStatusNotStarted, SessionStatusSubmitted, false},
		{SessionStatusInProgress, SessionStatusGraded, false},
		{SessionStatusGraded, SessionStatusSubmitted, false},
		{SessionStatusGraded, SessionStatusGraded, false},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.ok, tc.from.CanTransitionTo(tc.to), "%s -> %s", tc.from, tc.to)
	}
}

func TestAnswerValueDecoding(t *testing.T) {
	var a AnswerValue
	require.NoError(t, json.Unmarshal([]byte(`"B"`), &a))
	assert.False(t, a.IsSet)
	assert.Equal(t, "B", a.Single)

	require.NoError(t, json.Unmarshal([]byte(`["1","3"]`), &a))
	assert.True(t, a.IsSet)
	assert.Equal(t, []string{"1", "3"}, a.Multi)

	assert.Error(t, json.Unmarshal([]byte(`42`), &a))
	assert.Error(t, json.Unmarshal([]byte(`{"v":"B"}`), &a))

	raw, err := json.Marshal(SetValue("x", "y"))
	require.NoError(t, err)
	assert.JSONEq(t, `["x","y"]`, string(raw))

	raw, err = json.Marshal(SingleValue("x"))
	require.NoError(t, err)
	assert.JSONEq(t, `"x"`, string(raw))
}
