package compose

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/user/composablestudio/internal/types"
)

var fixedTime = time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)

func msg(id string, role types.Role, text string) types.ChatMessage {
	return types.ChatMessage{ID: types.MessageID(id), Role: role, Content: text, Timestamp: fixedTime}
}

func TestAppendMessageKeepsPrefix(t *testing.T) {
	log := []types.ChatMessage{
		msg("m1", types.RoleUser, "make me a landing page"),
		msg("m2", types.RoleAgent, "on it"),
	}
	before := append([]types.ChatMessage(nil), log...)

	m3 := msg("m3", types.RoleUser, "make it blue")
	out, err := AppendMessage(log, m3)
	require.NoError(t, err)

	require.Len(t, out, len(log)+1)
	require.Equal(t, m3, out[len(out)-1])
	require.Equal(t, log, out[:len(log)])
	require.Equal(t, before, log, "input log must not change")
}

func TestAppendMessageDoesNotAliasInput(t *testing.T) {
	log := make([]types.ChatMessage, 1, 8)
	log[0] = msg("m1", types.RoleUser, "hi")

	a, err := AppendMessage(log, msg("m2", types.RoleAgent, "a"))
	require.NoError(t, err)
	b, err := AppendMessage(log, msg("m3", types.RoleAgent, "b"))
	require.NoError(t, err)

	require.Equal(t, types.MessageID("m2"), a[1].ID)
	require.Equal(t, types.MessageID("m3"), b[1].ID)
}

func TestAppendMessageRejectsDuplicateID(t *testing.T) {
	log := []types.ChatMessage{msg("m1", types.RoleUser, "hi")}

	_, err := AppendMessage(log, msg("m1", types.RoleAgent, "hello"))
	require.Error(t, err)
	require.True(t, IsValidation(err))
}

func TestAppendMessageValidation(t *testing.T) {
	tests := []struct {
		name string
		msg  types.ChatMessage
	}{
		{"empty id", types.ChatMessage{Role: types.RoleUser}},
		{"bad role", types.ChatMessage{ID: "x", Role: "assistant"}},
		{"bad action kind", types.ChatMessage{ID: "x", Role: types.RoleAgent, Actions: []types.MessageAction{{ID: "a", Kind: "link"}}}},
		{"duplicate action", types.ChatMessage{ID: "x", Role: types.RoleAgent, Actions: []types.MessageAction{
			{ID: "a", Kind: types.ActionButton}, {ID: "a", Kind: types.ActionButton},
		}}},
		{"bad attachment kind", types.ChatMessage{ID: "x", Role: types.RoleUser, Attachments: []types.MessageAttachment{{ID: "f", Kind: "spreadsheet"}}}},
		{"confidence out of range", types.ChatMessage{ID: "x", Role: types.RoleAgent, Disambiguation: []types.DisambiguationOption{{ID: "a", Confidence: 1.5}}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := AppendMessage(nil, tt.msg)
			require.True(t, IsValidation(err), "expected ValidationError, got %v", err)
		})
	}
}

func TestNewMessage(t *testing.T) {
	m := NewMessage(types.RoleSystem, "session started")
	require.NotEmpty(t, m.ID)
	require.False(t, m.Timestamp.IsZero())

	out, err := AppendMessage(nil, m)
	require.NoError(t, err)
	require.Len(t, out, 1)
}

func TestAppendMessageCopiesNestedFields(t *testing.T) {
	m := msg("m1", types.RoleAgent, "here is what I saw")
	m.Actions = []types.MessageAction{{ID: "a1", Label: "Use it", Kind: types.ActionButton}}
	m.Attachments = []types.MessageAttachment{{
		ID: "f1", Kind: types.AttachmentImage, Name: "mock.png",
		Analysis: &types.AttachmentAnalysis{Summary: "wireframe", Tags: []string{"sketch"}},
	}}
	m.VisualAnalysis = &types.VisualAnalysis{Summary: "hero", Palette: []string{"#fff"}}

	out, err := AppendMessage(nil, m)
	require.NoError(t, err)
	require.Equal(t, m, out[0])

	m.Actions[0].Label = "changed"
	m.Attachments[0].Analysis.Tags[0] = "changed"
	m.VisualAnalysis.Palette[0] = "changed"

	require.Equal(t, "Use it", out[0].Actions[0].Label)
	require.Equal(t, "sketch", out[0].Attachments[0].Analysis.Tags[0])
	require.Equal(t, "#fff", out[0].VisualAnalysis.Palette[0])
}

func TestAppendMessageRejectsUnknownSelectedOption(t *testing.T) {
	m := msg("m1", types.RoleAgent, "pick one")
	m.Disambiguation = heroOptions()
	m.SelectedOption = "zzz"

	_, err := AppendMessage(nil, m)
	require.True(t, IsValidation(err))
}
