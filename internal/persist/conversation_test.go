package persist

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeConversation(t *testing.T) {
	input := `{
		"id": "` + testConversationID + `",
		"title": "Trip planning",
		"messages": [
			{"id": "m1", "role": "user", "content": "where to?", "createdAt": "2024-01-01T00:00:00Z"},
			{"id": "m2", "role": "assistant", "content": [{"type": "reasoning", "text": "thinking"}, {"type": "text", "text": "Lisbon"}], "createdAt": "2024-01-01T00:00:01Z"}
		]
	}`

	conversation, err := DecodeConversation(strings.NewReader(input))
	require.NoError(t, err)
	assert.Equal(t, testConversationID, conversation.ID)
	assert.Equal(t, "Trip planning", conversation.Metadata.Title)
	require.Len(t, conversation.Messages, 2)
	assert.Equal(t, "where to?", conversation.Messages[0].Text)
	require.Len(t, conversation.Messages[1].Parts, 2)
	assert.Equal(t, PartTypeReasoning, conversation.Messages[1].Parts[0].Type)
	assert.Equal(t, 1, conversation.Messages[1].CreatedAt.Second())
}

func TestDecodeConversationRejectsBadInput(t *testing.T) {
	_, err := DecodeConversation(strings.NewReader(`{"title":"no id"}`))
	assert.ErrorIs(t, err, errEmptyConversationID)

	_, err = DecodeConversation(strings.NewReader(`{"id":"x","messages":[{"id":"m","role":"user","content":{"text":"obj"},"createdAt":"2024-01-01T00:00:00Z"}]}`))
	assert.Error(t, err)

	_, err = DecodeConversation(strings.NewReader(`not json`))
	assert.Error(t, err)
}
