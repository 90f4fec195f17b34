package models

import (
	"database/sql"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVisibilityValid(t *testing.T) {
	assert.True(t, VisibilityPublic.Valid())
	assert.True(t, VisibilityPrivate.Valid())
	assert.False(t, Visibility("secret").Valid())
	assert.False(t, Visibility("").Valid())
}

func TestUserResponseMarshalJSON(t *testing.T) {
	t.Run("present feedback renders as string", func(t *testing.T) {
		response := UserResponse{
			ID:         "r1",
			QuestionID: "q1",
			IsCorrect:  true,
			Feedback:   sql.NullString{String: "Ben fatto!", Valid: true},
		}

		raw, err := json.Marshal(response)
		require.NoError(t, err)

		var decoded map[string]interface{}
		require.NoError(t, json.Unmarshal(raw, &decoded))
		assert.Equal(t, "Ben fatto!", decoded["feedback"])
	})

	t.Run("absent feedback renders as null", func(t *testing.T) {
		response := UserResponse{ID: "r1", QuestionID: "q1"}

		raw, err := json.Marshal(response)
		require.NoError(t, err)

		var decoded map[string]interface{}
		require.NoError(t, json.Unmarshal(raw, &decoded))
		val, present := decoded["feedback"]
		assert.True(t, present)
		assert.Nil(t, val)
	})
}

func TestUserPasswordHashNeverSerialized(t *testing.T) {
	raw, err := json.Marshal(User{ID: "u1", Email: "a@b.test", PasswordHash: "bcrypt-hash"})
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "bcrypt-hash")
}
